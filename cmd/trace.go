package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/CanopyHQ/xylem/internal/causal"
	"github.com/spf13/cobra"
)

var traceCmd = &cobra.Command{
	Use:   "trace <node-id>",
	Short: "Trace causal chains from a node",
	Long: `Trace causal chains starting at a node.

Direction 'forward' follows effects (what does this cause?), 'backward'
follows causes (what causes this?), and 'both' runs each independently.
Chains are ranked by total strength.

Examples:
  xylem trace deploy-fail
  xylem trace outage --direction backward
  xylem trace deploy-fail --direction both --depth 3`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		direction, _ := cmd.Flags().GetString("direction")
		depth, _ := cmd.Flags().GetInt("depth")
		return runTrace(args[0], direction, depth)
	},
}

var relatedCmd = &cobra.Command{
	Use:   "related <query>",
	Short: "Find nodes similar to a query",
	Long: `Find cause/effect nodes whose name or description is semantically
similar to the query. Useful to locate node IDs before tracing.

Examples:
  xylem related "deployment failure"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return runRelated(args[0], limit)
	},
}

func init() {
	traceCmd.Flags().String("direction", "forward", "Traversal direction (forward, backward, both)")
	traceCmd.Flags().Int("depth", causal.DefaultMaxDepth, "Maximum edges per chain")
	relatedCmd.Flags().Int("limit", 10, "Maximum nodes to return")
}

func runTrace(startID, direction string, depth int) error {
	store, err := causal.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open causal store: %w", err)
	}
	defer store.Close()

	chains, err := store.Traverse(context.Background(), startID, causal.Direction(direction), depth)
	if err != nil {
		return fmt.Errorf("trace failed: %w", err)
	}

	if len(chains) == 0 {
		fmt.Printf("No causal chains found from %s\n", startID)
		return nil
	}

	fmt.Printf("Causal chains from %s (%d):\n\n", startID, len(chains))
	for i, chain := range chains {
		arrow := " -> "
		if chain.Direction == causal.DirectionBackward {
			arrow = " <- "
		}
		fmt.Printf("%d. %s\n", i+1, strings.Join(chain.Path, arrow))
		fmt.Printf("   strength %.3f | depth %d | %s\n", chain.TotalStrength, chain.Depth, chain.Direction)
	}
	return nil
}

func runRelated(query string, limit int) error {
	store, err := causal.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open causal store: %w", err)
	}
	defer store.Close()

	nodes, err := store.FindRelatedNodes(context.Background(), query, limit)
	if err != nil {
		return fmt.Errorf("related search failed: %w", err)
	}

	if len(nodes) == 0 {
		fmt.Println("No related nodes found.")
		return nil
	}

	fmt.Printf("Related nodes (%d):\n", len(nodes))
	for _, node := range nodes {
		fmt.Printf("  [%.0f%%] %s — %s\n", node.Similarity*100, node.ID, node.Name)
	}
	return nil
}
