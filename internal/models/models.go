package models

import "time"

// Domain names a knowledge corpus. DomainNone is returned when no corpus qualifies.
type Domain string

const (
	DomainDE     Domain = "de"
	DomainSummit Domain = "summit"
	DomainNone   Domain = ""
)

var Domains = []Domain{DomainDE, DomainSummit}

func ParseDomain(s string) (Domain, bool) {
	switch Domain(s) {
	case DomainDE:
		return DomainDE, true
	case DomainSummit:
		return DomainSummit, true
	}
	return DomainNone, false
}

type ChunkMeta struct {
	SourcePath string `json:"source_path"`
	SourceName string `json:"source_name"`
	Mime       string `json:"mime"`
}

// ChunkRecord is one line of chunks_<corpus>.jsonl and meta_<corpus>.jsonl.
type ChunkRecord struct {
	Meta ChunkMeta `json:"meta"`
	Text string    `json:"text"`
}

type Hit struct {
	Score  float64   `json:"score"`
	Text   string    `json:"text"`
	Meta   ChunkMeta `json:"meta"`
	Domain Domain    `json:"domain"`
}

type ManifestFile struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Mime   string `json:"mime"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

type Manifest struct {
	Corpus    Domain         `json:"corpus"`
	Root      string         `json:"root"`
	CreatedAt time.Time      `json:"created_at"`
	Files     []ManifestFile `json:"files"`
}

type FAQEntry struct {
	QuestionNorm string    `json:"question_norm" badgerhold:"key"`
	Answer       string    `json:"answer"`
	CreatedAt    time.Time `json:"created_at"`
}

// Answer sources recorded on chat logs.
const (
	SourceFAQ    = "faq"
	SourceManual = "manual"
	SourceModel  = "model"
	SourceError  = "error"
)

type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	CachedTokens int64 `json:"cached_tokens"`
}

type ChatLog struct {
	ID             string     `json:"id"`
	TS             time.Time  `json:"ts"`
	SessionID      string     `json:"session_id"`
	UserText       string     `json:"user_text"`
	Answer         string     `json:"answer"`
	Source         string     `json:"source"`
	Domain         Domain     `json:"domain"`
	UsedRAG        bool       `json:"used_rag"`
	ManualOverride bool       `json:"manual_override"`
	Model          string     `json:"model,omitempty"`
	Usage          TokenUsage `json:"usage"`
}

type ChatStats struct {
	Turns        int64            `json:"turns"`
	Sessions     int64            `json:"sessions"`
	BySource     map[string]int64 `json:"by_source"`
	RAGTurns     int64            `json:"rag_turns"`
	InputTokens  int64            `json:"input_tokens"`
	OutputTokens int64            `json:"output_tokens"`
	CachedTokens int64            `json:"cached_tokens"`
}
