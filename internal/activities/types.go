package activities

import "dory/internal/pipeline"

type CorpusInput struct {
	Corpus string `json:"corpus"`
}

type BuildManifestOutput struct {
	Files int `json:"files"`
}

type IngestCorpusOutput struct {
	Result pipeline.IngestResult `json:"result"`
}

type EmbedCorpusOutput struct {
	Result pipeline.EmbedResult `json:"result"`
}

type CorpusRows struct {
	Corpus string `json:"corpus"`
	Rows   int    `json:"rows"`
	Dim    int    `json:"dim"`
}

type VerifyIndexOutput struct {
	Corpora []CorpusRows `json:"corpora"`
}

type WriteBuildReportInput struct {
	RunID  string         `json:"run_id"`
	Report map[string]any `json:"report"`
}

type WriteBuildReportOutput struct {
	Path string `json:"path"`
}
