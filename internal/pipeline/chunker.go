package pipeline

import (
	"fmt"
	"strings"

	"dory/internal/config"
	"dory/internal/util"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunker splits cleaned document text into retrieval-sized pieces.
type Chunker interface {
	Split(text string) ([]string, error)
}

type paragraphChunker struct {
	size, overlap int
}

func (p paragraphChunker) Split(text string) ([]string, error) {
	return util.ChunkText(text, p.size, p.overlap), nil
}

type recursiveChunker struct {
	splitter textsplitter.RecursiveCharacter
}

func (r recursiveChunker) Split(text string) ([]string, error) {
	parts, err := r.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

func NewChunker(cfg config.Ingest) (Chunker, error) {
	switch cfg.Chunker {
	case "", "paragraph":
		return paragraphChunker{size: cfg.ChunkSize, overlap: cfg.ChunkOverlap}, nil
	case "recursive":
		return recursiveChunker{splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.ChunkSize),
			textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown chunker %q", util.ErrConfig, cfg.Chunker)
	}
}
