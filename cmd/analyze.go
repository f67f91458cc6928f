package cmd

import (
	"context"
	"fmt"

	"github.com/CanopyHQ/xylem/internal/causal"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze an agent's causal patterns",
	Long: `Analyze an agent's recorded history and report recurring patterns:
strongest direct causes, common effects, per-category aggregates, and
temporal cause→effect pairings.

Examples:
  xylem analyze
  xylem analyze --agent planner-1`,
	RunE: func(cmd *cobra.Command, args []string) error {
		agentID, _ := cmd.Flags().GetString("agent")
		return runAnalyze(agentID)
	},
}

func init() {
	analyzeCmd.Flags().String("agent", "default", "Agent whose history to analyze")
}

func runAnalyze(agentID string) error {
	store, err := causal.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open causal store: %w", err)
	}
	defer store.Close()

	summary, err := store.Analyze(context.Background(), agentID)
	if err != nil {
		return fmt.Errorf("analyze failed: %w", err)
	}

	fmt.Printf("Causal patterns for %s:\n\n", agentID)

	fmt.Printf("Strongest causes (%d):\n", len(summary.StrongestCauses))
	for i, c := range summary.StrongestCauses {
		if i >= 10 {
			fmt.Printf("  ... and %d more\n", len(summary.StrongestCauses)-10)
			break
		}
		fmt.Printf("  %.3f  %s\n", c.Strength, c.CauseID)
	}

	fmt.Printf("\nCategories (%d):\n", len(summary.CausalCategories))
	for _, c := range summary.CausalCategories {
		fmt.Printf("  %-14s count %-3d strength %.3f\n", c.Category, c.Count, c.Strength)
	}

	if len(summary.TemporalPatterns) > 0 {
		fmt.Printf("\nTemporal patterns (%d):\n", len(summary.TemporalPatterns))
		for _, p := range summary.TemporalPatterns {
			fmt.Printf("  %s (delay %.1f)\n", p.Pattern, p.AverageDelay)
		}
	}

	return nil
}
