package providers

import (
	"fmt"
	"strings"

	"dory/internal/util"
)

// ModelRef names a chat model, optionally pinned to a provider ("anthropic:claude-...").
type ModelRef struct {
	Raw      string
	Provider string
	Model    string
}

func ParseModelRef(raw string) (ModelRef, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ModelRef{}, fmt.Errorf("%w: empty model name", util.ErrConfig)
	}
	ref := ModelRef{Raw: raw, Model: raw}
	if p, m, ok := strings.Cut(raw, ":"); ok {
		p = strings.ToLower(strings.TrimSpace(p))
		if _, known := chatProviders[p]; known {
			ref.Provider = p
			ref.Model = strings.TrimSpace(m)
		}
	}
	if ref.Model == "" {
		return ModelRef{}, fmt.Errorf("%w: model name missing in %q", util.ErrConfig, raw)
	}
	return ref, nil
}
