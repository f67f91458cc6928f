package acceptance

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/CanopyHQ/xylem/internal/causal"
)

// TestContext holds state between steps
type TestContext struct {
	ctx     context.Context
	store   *causal.Store
	tmpDir  string
	seq     int
	chains  []*causal.ChainResult
	summary *causal.PatternSummary
	lastErr error
}

// InitializeScenario sets up step definitions
func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &TestContext{ctx: context.Background()}

	ctx.After(func(c context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		tc.teardown()
		return c, nil
	})

	// Store steps
	ctx.Step(`^a fresh causal store$`, tc.freshStore)
	ctx.Step(`^a relationship from "([^"]*)" to "([^"]*)" with strength ([0-9.]+)$`, tc.addRelationship)
	ctx.Step(`^a temporal relationship from "([^"]*)" to "([^"]*)" with delay ([0-9.]+)$`, tc.addTemporalRelationship)

	// Traversal steps
	ctx.Step(`^I trace (forward|backward|both) from "([^"]*)" with max depth (-?\d+)$`, tc.trace)
	ctx.Step(`^I should get (\d+) chains?$`, tc.checkChainCount)
	ctx.Step(`^the first chain path should be "([^"]*)"$`, tc.checkFirstChainPath)
	ctx.Step(`^the first chain total strength should be ([0-9.]+)$`, tc.checkFirstChainStrength)
	ctx.Step(`^the first chain depth should be (\d+)$`, tc.checkFirstChainDepth)
	ctx.Step(`^the traversal should fail$`, tc.checkTraversalFailed)

	// Analysis steps
	ctx.Step(`^I analyze patterns for agent "([^"]*)"$`, tc.analyze)
	ctx.Step(`^the category "([^"]*)" should have count (\d+)$`, tc.checkCategoryCount)
	ctx.Step(`^the category "([^"]*)" should have strength ([0-9.]+)$`, tc.checkCategoryStrength)
	ctx.Step(`^there should be (\d+) strongest causes$`, tc.checkStrongestCauses)
	ctx.Step(`^there should be a temporal pattern "([^"]*)"$`, tc.checkTemporalPattern)
}

func (tc *TestContext) teardown() {
	if tc.store != nil {
		tc.store.Close()
		tc.store = nil
	}
	if tc.tmpDir != "" {
		os.RemoveAll(tc.tmpDir)
		os.Unsetenv("XYLEM_DATA_DIR")
		tc.tmpDir = ""
	}
	tc.seq = 0
	tc.chains = nil
	tc.summary = nil
	tc.lastErr = nil
}

func (tc *TestContext) freshStore() error {
	tc.teardown()

	tmpDir, err := os.MkdirTemp("", "xylem-acceptance-*")
	if err != nil {
		return err
	}
	os.Setenv("XYLEM_DATA_DIR", tmpDir)
	tc.tmpDir = tmpDir

	store, err := causal.NewStore()
	if err != nil {
		return err
	}
	tc.store = store
	return nil
}

func (tc *TestContext) addRelationship(causeID, effectID string, strength float64) error {
	return tc.record(causeID, effectID, strength, causal.RelationDirect, 0)
}

func (tc *TestContext) addTemporalRelationship(causeID, effectID string, delay float64) error {
	return tc.record(causeID, effectID, 0.5, causal.RelationTemporal, delay)
}

func (tc *TestContext) record(causeID, effectID string, strength float64, relType causal.RelationType, delay float64) error {
	if tc.store == nil {
		return fmt.Errorf("store not initialized")
	}

	// Explicit timestamps keep the fold order deterministic
	tc.seq++
	rel := &causal.CausalRelationship{
		AgentID:    "default",
		Timestamp:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(tc.seq) * time.Minute),
		Type:       relType,
		Category:   causal.CategoryPhysical,
		Strength:   strength,
		Confidence: 0.9,
		Cause:      causal.Cause{ID: causeID, Name: causeID},
		Effect: causal.Effect{
			ID: effectID, Name: effectID,
			Magnitude: 0.5, Probability: 0.9, Delay: delay,
		},
	}

	_, err := tc.store.Store(tc.ctx, rel)
	return err
}

func (tc *TestContext) trace(direction, startID string, maxDepth int) error {
	tc.chains, tc.lastErr = tc.store.Traverse(tc.ctx, startID, causal.Direction(direction), maxDepth)
	return nil
}

func (tc *TestContext) checkChainCount(count int) error {
	if tc.lastErr != nil {
		return fmt.Errorf("traversal failed: %v", tc.lastErr)
	}
	if len(tc.chains) != count {
		return fmt.Errorf("got %d chains, want %d", len(tc.chains), count)
	}
	return nil
}

func (tc *TestContext) checkFirstChainPath(expected string) error {
	if len(tc.chains) == 0 {
		return fmt.Errorf("no chains")
	}
	got := strings.Join(tc.chains[0].Path, ",")
	if got != expected {
		return fmt.Errorf("path = %s, want %s", got, expected)
	}
	return nil
}

func (tc *TestContext) checkFirstChainStrength(expected float64) error {
	if len(tc.chains) == 0 {
		return fmt.Errorf("no chains")
	}
	if math.Abs(tc.chains[0].TotalStrength-expected) > 1e-9 {
		return fmt.Errorf("total strength = %v, want %v", tc.chains[0].TotalStrength, expected)
	}
	return nil
}

func (tc *TestContext) checkFirstChainDepth(expected int) error {
	if len(tc.chains) == 0 {
		return fmt.Errorf("no chains")
	}
	if tc.chains[0].Depth != expected {
		return fmt.Errorf("depth = %d, want %d", tc.chains[0].Depth, expected)
	}
	return nil
}

func (tc *TestContext) checkTraversalFailed() error {
	if tc.lastErr == nil {
		return fmt.Errorf("expected traversal to fail")
	}
	return nil
}

func (tc *TestContext) analyze(agentID string) error {
	var err error
	tc.summary, err = tc.store.Analyze(tc.ctx, agentID)
	return err
}

func (tc *TestContext) checkCategoryCount(category string, count int) error {
	for _, c := range tc.summary.CausalCategories {
		if string(c.Category) == category {
			if c.Count != count {
				return fmt.Errorf("category %s count = %d, want %d", category, c.Count, count)
			}
			return nil
		}
	}
	return fmt.Errorf("category %s not found", category)
}

func (tc *TestContext) checkCategoryStrength(category string, strength float64) error {
	for _, c := range tc.summary.CausalCategories {
		if string(c.Category) == category {
			if math.Abs(c.Strength-strength) > 1e-9 {
				return fmt.Errorf("category %s strength = %v, want %v", category, c.Strength, strength)
			}
			return nil
		}
	}
	return fmt.Errorf("category %s not found", category)
}

func (tc *TestContext) checkStrongestCauses(count int) error {
	if len(tc.summary.StrongestCauses) != count {
		return fmt.Errorf("strongest causes = %d, want %d", len(tc.summary.StrongestCauses), count)
	}
	return nil
}

func (tc *TestContext) checkTemporalPattern(pattern string) error {
	for _, p := range tc.summary.TemporalPatterns {
		if p.Pattern == pattern {
			return nil
		}
	}
	return fmt.Errorf("temporal pattern %q not found in %v", pattern, tc.summary.TemporalPatterns)
}
