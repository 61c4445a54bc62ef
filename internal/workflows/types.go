package workflows

type IndexBuildInput struct {
	RunID   string   `json:"run_id"`
	Corpora []string `json:"corpora"`
}

type CorpusIndexInput struct {
	Corpus string `json:"corpus"`
}

type CorpusStatus struct {
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	Steps       map[string]string `json:"steps"`
	Files       int               `json:"files"`
	Skipped     int               `json:"skipped"`
	Chunks      int               `json:"chunks"`
	Rows        int               `json:"rows"`
	FailReason  string            `json:"fail_reason,omitempty"`
}

type IndexBuildProgress struct {
	RunID     string            `json:"run_id"`
	Total     int               `json:"total"`
	Done      int               `json:"done"`
	Failed    int               `json:"failed"`
	Status    string            `json:"status"`
	PerCorpus map[string]string `json:"per_corpus"`
	Children  map[string]string `json:"child_workflows"`
	Rows      map[string]int    `json:"rows"`
}
