// Package classifier maps free-text input to the active skill that should
// handle it.
//
// The algorithm is deliberately simple and deterministic: an ordered scan of
// the active catalog looking for the first skill whose name appears in the
// input. Determinism (including registration-order tie-breaks) is an
// observable contract that tests and replayed history depend on, so richer
// scoring must not be introduced casually.
package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/ashita-ai/annai/internal/model"
	"github.com/ashita-ai/annai/internal/storage"
)

// Confidence values. A substring hit is a binary signal, not a graded score.
const (
	ConfidenceMatched  = 1.0
	ConfidenceFallback = 0.0
)

// FallbackIntent names the sentinel intent returned when no skill is
// registered at all.
const FallbackIntent = "general"

// Intent is the classifier's selection for one input.
// SkillID is nil only when the active catalog is empty.
type Intent struct {
	SkillID    *int64
	SkillName  string
	Confidence float64
}

// SkillSource lists skills for classification. *storage.DB satisfies it.
type SkillSource interface {
	ListSkills(ctx context.Context, filter storage.SkillFilter) ([]model.Skill, error)
}

// Classifier selects a skill for free-text input.
type Classifier struct {
	skills SkillSource
}

// New creates a Classifier backed by the given skill source.
func New(skills SkillSource) *Classifier {
	return &Classifier{skills: skills}
}

// Classify resolves input to an intent. It never fails to pick a skill when
// at least one active skill exists: unmatched input falls back to the active
// skill whose name contains "general", else the first active skill. An empty
// active catalog yields the sentinel intent with no skill id — the caller
// must treat that as "no skill available", not as an error.
func (c *Classifier) Classify(ctx context.Context, input string) (Intent, error) {
	active := true
	skills, err := c.skills.ListSkills(ctx, storage.SkillFilter{IsActive: &active})
	if err != nil {
		return Intent{}, fmt.Errorf("classifier: list active skills: %w", err)
	}

	if len(skills) == 0 {
		return Intent{SkillName: FallbackIntent, Confidence: ConfidenceFallback}, nil
	}

	normalized := strings.ToLower(input)

	// First match in registration order wins; ties break by insertion order
	// because the catalog arrives ordered by id.
	for _, s := range skills {
		if strings.Contains(normalized, strings.ToLower(s.Name)) {
			id := s.ID
			return Intent{SkillID: &id, SkillName: s.Name, Confidence: ConfidenceMatched}, nil
		}
	}

	fallback := skills[0]
	for _, s := range skills {
		if strings.Contains(strings.ToLower(s.Name), FallbackIntent) {
			fallback = s
			break
		}
	}
	id := fallback.ID
	return Intent{SkillID: &id, SkillName: fallback.Name, Confidence: ConfidenceFallback}, nil
}
