package faq

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dory/internal/models"
)

//go:embed seeds.yaml
var defaultSeeds []byte

type Seed struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
}

type seedFile struct {
	FAQs []Seed `yaml:"faqs"`
}

// LoadSeeds parses the seed file at path, or the built-in seeds when path is empty.
func LoadSeeds(path string) ([]Seed, error) {
	data := defaultSeeds
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read faq seeds: %w", err)
		}
		data = b
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse faq seeds: %w", err)
	}
	out := make([]Seed, 0, len(f.FAQs))
	for i, s := range f.FAQs {
		if Normalize(s.Question) == "" || strings.TrimSpace(s.Answer) == "" {
			return nil, fmt.Errorf("faq seed %d: question and answer are required", i)
		}
		out = append(out, s)
	}
	return out, nil
}

type Inserter interface {
	// InsertFAQ stores e unless its normalized question exists; added reports which.
	InsertFAQ(ctx context.Context, e models.FAQEntry) (added bool, err error)
}

// SeedStore inserts missing seeds and returns how many were added.
func SeedStore(ctx context.Context, store Inserter, seeds []Seed) (int, error) {
	added := 0
	now := time.Now().UTC()
	for _, s := range seeds {
		ok, err := store.InsertFAQ(ctx, models.FAQEntry{
			QuestionNorm: Normalize(s.Question),
			Answer:       strings.TrimSpace(s.Answer),
			CreatedAt:    now,
		})
		if err != nil {
			return added, fmt.Errorf("insert faq %q: %w", s.Question, err)
		}
		if ok {
			added++
		}
	}
	return added, nil
}
