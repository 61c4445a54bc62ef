package activities

import "go.temporal.io/sdk/worker"

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivity(a.BuildManifestActivity)
	w.RegisterActivity(a.IngestCorpusActivity)
	w.RegisterActivity(a.EmbedCorpusActivity)
	w.RegisterActivity(a.VerifyIndexActivity)
	w.RegisterActivity(a.WriteBuildReportActivity)
}
