package causal

import (
	"context"
	"fmt"
	"sort"
)

// CausePattern is one direct-causation observation surfaced by Analyze.
type CausePattern struct {
	CauseID  string  `json:"causeId"`
	Count    int     `json:"count"`
	Strength float64 `json:"strength"`
}

// EffectPattern is one observed effect occurrence.
type EffectPattern struct {
	EffectID  string  `json:"effectId"`
	Frequency int     `json:"frequency"`
	Magnitude float64 `json:"magnitude"`
}

// CategoryPattern aggregates relationships per category. Strength is a
// running average that weights recent observations more heavily: each new
// observation is averaged against the accumulated value, not the raw sum.
type CategoryPattern struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
	Strength float64  `json:"strength"`
}

// TemporalPattern is a cause→effect pairing with its observed delay.
type TemporalPattern struct {
	Pattern      string  `json:"pattern"`
	AverageDelay float64 `json:"averageDelay"`
}

// PatternSummary is the result of analyzing an agent's relationship history.
// All slices are non-nil; an agent with no relationships gets empty ones.
type PatternSummary struct {
	StrongestCauses  []CausePattern    `json:"strongestCauses"`
	CommonEffects    []EffectPattern   `json:"commonEffects"`
	CausalCategories []CategoryPattern `json:"causalCategories"`
	TemporalPatterns []TemporalPattern `json:"temporalPatterns"`
}

// Analyze folds over an agent's relationships in chronological order and
// extracts recurring patterns: the strongest direct causes, the observed
// effects, per-category aggregates, and temporal cause→effect pairings.
func (s *Store) Analyze(ctx context.Context, agentID string) (*PatternSummary, error) {
	rels, err := s.QueryByAgent(ctx, agentID, nil)
	if err != nil {
		return nil, err
	}

	// QueryByAgent returns newest first; fold oldest first so the category
	// running average weights later observations the same way every run.
	for i, j := 0, len(rels)-1; i < j; i, j = i+1, j-1 {
		rels[i], rels[j] = rels[j], rels[i]
	}

	summary := &PatternSummary{
		StrongestCauses:  []CausePattern{},
		CommonEffects:    []EffectPattern{},
		CausalCategories: []CategoryPattern{},
		TemporalPatterns: []TemporalPattern{},
	}

	categories := map[Category]*CategoryPattern{}
	var categoryOrder []Category

	for _, rel := range rels {
		if rel.Type == RelationDirect {
			summary.StrongestCauses = append(summary.StrongestCauses, CausePattern{
				CauseID:  rel.Cause.ID,
				Count:    1,
				Strength: rel.Strength,
			})
		}

		summary.CommonEffects = append(summary.CommonEffects, EffectPattern{
			EffectID:  rel.Effect.ID,
			Frequency: 1,
			Magnitude: rel.Effect.Magnitude,
		})

		if cat, ok := categories[rel.Category]; ok {
			cat.Count++
			cat.Strength = (cat.Strength + rel.Strength) / 2
		} else {
			categories[rel.Category] = &CategoryPattern{
				Category: rel.Category,
				Count:    1,
				Strength: rel.Strength,
			}
			categoryOrder = append(categoryOrder, rel.Category)
		}

		if rel.Type == RelationTemporal {
			summary.TemporalPatterns = append(summary.TemporalPatterns, TemporalPattern{
				Pattern:      fmt.Sprintf("%s -> %s", rel.Cause.ID, rel.Effect.ID),
				AverageDelay: rel.Effect.Delay,
			})
		}
	}

	for _, cat := range categoryOrder {
		summary.CausalCategories = append(summary.CausalCategories, *categories[cat])
	}
	sort.SliceStable(summary.CausalCategories, func(i, j int) bool {
		if summary.CausalCategories[i].Count != summary.CausalCategories[j].Count {
			return summary.CausalCategories[i].Count > summary.CausalCategories[j].Count
		}
		return summary.CausalCategories[i].Category < summary.CausalCategories[j].Category
	})

	sort.SliceStable(summary.StrongestCauses, func(i, j int) bool {
		return summary.StrongestCauses[i].Strength > summary.StrongestCauses[j].Strength
	})

	return summary, nil
}
