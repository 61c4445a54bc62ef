package chat

import (
	"fmt"
	"os"
	"strings"

	"dory/internal/config"
	"dory/internal/models"
	"dory/internal/providers"
)

const (
	PromptCompactOnly   = "compact_only"
	PromptFirstTurnFull = "first_turn_full"
	PromptAlwaysFull    = "always_full"
)

const defaultCompactPrompt = "You are Dory, a Digital Engineering assistant for UNSW Canberra. " +
	"Be accurate, concise, friendly; prefer bullets; avoid speculation."

const maxContextHits = 5

type Prompts struct {
	Compact string
	Full    string
}

// LoadPrompts reads the system prompts. A missing compact prompt falls back to a
// built-in one; a missing full prompt is left empty.
func LoadPrompts(cfg config.Chat) Prompts {
	return Prompts{
		Compact: readPrompt(cfg.CompactPromptPath, defaultCompactPrompt),
		Full:    readPrompt(cfg.FullPromptPath, ""),
	}
}

func readPrompt(path, fallback string) string {
	if path == "" {
		return fallback
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fallback
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s
	}
	return fallback
}

// BuildContextBlock renders up to five hits as "- [0.83] source: text" lines.
func BuildContextBlock(hits []models.Hit) string {
	if len(hits) == 0 {
		return ""
	}
	lines := []string{"# Knowledge Context (Top Matches)"}
	for i, h := range hits {
		if i == maxContextHits {
			break
		}
		src := h.Meta.SourceName
		if src == "" {
			src = "source"
		}
		lines = append(lines, fmt.Sprintf("- [%.2f] %s: %s", h.Score, src, h.Text))
	}
	return strings.Join(lines, "\n")
}

type promptInput struct {
	Mode           string
	FirstTurn      bool
	Prompts        Prompts
	ProgramContext string
	ContextBlock   string
	History        []providers.Message
	UserText       string
	HistoryLimit   int
}

func includeFullPrompt(mode string, firstTurn bool) bool {
	switch mode {
	case PromptAlwaysFull:
		return true
	case PromptFirstTurnFull:
		return firstTurn
	default:
		return false
	}
}

// buildMessages orders the model input: system prompts, program context,
// knowledge context, recent history and finally the current user text.
func buildMessages(in promptInput) []providers.Message {
	msgs := []providers.Message{{Role: providers.RoleSystem, Content: in.Prompts.Compact}}
	if includeFullPrompt(in.Mode, in.FirstTurn) && in.Prompts.Full != "" {
		msgs = append(msgs, providers.Message{Role: providers.RoleSystem, Content: in.Prompts.Full})
	}
	if in.ProgramContext != "" {
		msgs = append(msgs, providers.Message{Role: providers.RoleSystem, Content: "Summit program context:\n" + in.ProgramContext})
	}
	if in.ContextBlock != "" {
		msgs = append(msgs, providers.Message{Role: providers.RoleSystem, Content: in.ContextBlock})
	}

	history := in.History
	// the current user turn counts toward the limit
	limit := max(in.HistoryLimit-1, 0)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	for _, m := range history {
		if m.Role == providers.RoleUser || m.Role == providers.RoleAssistant {
			msgs = append(msgs, m)
		}
	}
	return append(msgs, providers.Message{Role: providers.RoleUser, Content: in.UserText})
}

// historyFromLogs turns logged turns (oldest first) into alternating messages.
func historyFromLogs(logs []models.ChatLog) []providers.Message {
	out := make([]providers.Message, 0, 2*len(logs))
	for _, l := range logs {
		out = append(out,
			providers.Message{Role: providers.RoleUser, Content: l.UserText},
			providers.Message{Role: providers.RoleAssistant, Content: l.Answer},
		)
	}
	return out
}
