package causal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzePatterns(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r1 := testRel("agent-1", "a", "b", 0.8)
	r1.Timestamp = base
	r2 := testRel("agent-1", "b", "c", 0.6)
	r2.Timestamp = base.Add(time.Hour)

	_, err := store.Store(ctx, r1)
	require.NoError(t, err)
	_, err = store.Store(ctx, r2)
	require.NoError(t, err)

	summary, err := store.Analyze(ctx, "agent-1")
	require.NoError(t, err)

	// Both relationships are direct, strongest first
	require.Len(t, summary.StrongestCauses, 2)
	assert.Equal(t, "a", summary.StrongestCauses[0].CauseID)
	assert.Equal(t, 0.8, summary.StrongestCauses[0].Strength)
	assert.Equal(t, 1, summary.StrongestCauses[0].Count)
	assert.Equal(t, "b", summary.StrongestCauses[1].CauseID)

	require.Len(t, summary.CommonEffects, 2)
	assert.Equal(t, "b", summary.CommonEffects[0].EffectID)
	assert.Equal(t, 1, summary.CommonEffects[0].Frequency)

	// Running average over the physical category: 0.8 then (0.8+0.6)/2
	require.Len(t, summary.CausalCategories, 1)
	assert.Equal(t, CategoryPhysical, summary.CausalCategories[0].Category)
	assert.Equal(t, 2, summary.CausalCategories[0].Count)
	assert.InDelta(t, 0.7, summary.CausalCategories[0].Strength, 1e-9)

	assert.Empty(t, summary.TemporalPatterns)
}

func TestAnalyzeCategoryRunningAverage(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	strengths := []float64{0.2, 0.4, 1.0}
	for i, s := range strengths {
		r := testRel("agent-1", "a", "b", s)
		r.Timestamp = base.Add(time.Duration(i) * time.Hour)
		_, err := store.Store(ctx, r)
		require.NoError(t, err)
	}

	summary, err := store.Analyze(ctx, "agent-1")
	require.NoError(t, err)

	// Later observations weigh more: ((0.2+0.4)/2 + 1.0) / 2 = 0.65
	require.Len(t, summary.CausalCategories, 1)
	assert.Equal(t, 3, summary.CausalCategories[0].Count)
	assert.InDelta(t, 0.65, summary.CausalCategories[0].Strength, 1e-9)
}

func TestAnalyzeTemporalPatterns(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	r := testRel("agent-1", "deploy", "latency-spike", 0.7)
	r.Type = RelationTemporal
	r.Category = CategoryTemporal
	r.Effect.Delay = 120
	_, err := store.Store(ctx, r)
	require.NoError(t, err)

	summary, err := store.Analyze(ctx, "agent-1")
	require.NoError(t, err)

	require.Len(t, summary.TemporalPatterns, 1)
	assert.Equal(t, "deploy -> latency-spike", summary.TemporalPatterns[0].Pattern)
	assert.Equal(t, 120.0, summary.TemporalPatterns[0].AverageDelay)

	// Temporal relationships are not direct causes
	assert.Empty(t, summary.StrongestCauses)
}

func TestAnalyzeCategorySorting(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mk := func(cat Category, offset int) {
		r := testRel("agent-1", "a", "b", 0.5)
		r.Category = cat
		r.Timestamp = base.Add(time.Duration(offset) * time.Minute)
		_, err := store.Store(ctx, r)
		require.NoError(t, err)
	}
	mk(CategoryLogical, 0)
	mk(CategoryPhysical, 1)
	mk(CategoryPhysical, 2)

	summary, err := store.Analyze(ctx, "agent-1")
	require.NoError(t, err)

	require.Len(t, summary.CausalCategories, 2)
	assert.Equal(t, CategoryPhysical, summary.CausalCategories[0].Category)
	assert.Equal(t, 2, summary.CausalCategories[0].Count)
	assert.Equal(t, CategoryLogical, summary.CausalCategories[1].Category)
}

func TestAnalyzeEmptyAgent(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	summary, err := store.Analyze(context.Background(), "agent-with-no-history")
	require.NoError(t, err)

	assert.NotNil(t, summary.StrongestCauses)
	assert.NotNil(t, summary.CommonEffects)
	assert.NotNil(t, summary.CausalCategories)
	assert.NotNil(t, summary.TemporalPatterns)
	assert.Empty(t, summary.StrongestCauses)
	assert.Empty(t, summary.CommonEffects)
	assert.Empty(t, summary.CausalCategories)
	assert.Empty(t, summary.TemporalPatterns)
}
