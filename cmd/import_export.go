package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/CanopyHQ/xylem/internal/causal"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import relationships from a JSON export",
	Long: `Import causal relationships from a JSON file previously produced
by 'xylem export' (a JSON array of relationship documents).

Imported relationships keep their cause/effect ids, types, and strengths
but receive fresh ids and timestamps.

Examples:
  xylem import relationships.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agentOverride, _ := cmd.Flags().GetString("agent")
		return runImportFile(args[0], agentOverride)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [output]",
	Short: "Export all relationships",
	Long: `Export an agent's relationships to a JSON file.

If no output path is given, a default filename is generated.

Examples:
  xylem export
  xylem export relationships.json
  xylem export relationships.json --agent planner-1`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output := ""
		if len(args) >= 1 {
			output = args[0]
		}
		agentID, _ := cmd.Flags().GetString("agent")
		return runExportFile(agentID, output)
	},
}

func init() {
	exportCmd.Flags().String("agent", "default", "Agent whose relationships to export")
	importCmd.Flags().String("agent", "", "Override the agent id on imported relationships")
}

func runImportFile(path, agentOverride string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot read file: %w", err)
	}

	var rels []causal.CausalRelationship
	if err := json.Unmarshal(data, &rels); err != nil {
		return fmt.Errorf("invalid export file: %w", err)
	}

	store, err := causal.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open causal store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	start := time.Now()
	imported := 0
	var errs []string

	for i := range rels {
		rel := rels[i]
		rel.ID = ""
		rel.CreatedAt = time.Time{}
		rel.UpdatedAt = time.Time{}
		if agentOverride != "" {
			rel.AgentID = agentOverride
		}
		if rel.AgentID == "" {
			rel.AgentID = "default"
		}

		if _, err := store.Store(ctx, &rel); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		imported++
	}

	fmt.Printf("\n✅ Import Complete!\n")
	fmt.Printf("   Relationships imported: %d\n", imported)
	fmt.Printf("   Duration: %s\n", time.Since(start).Round(time.Millisecond))

	if len(errs) > 0 {
		fmt.Printf("\n⚠️  Errors (%d):\n", len(errs))
		for i, e := range errs {
			if i >= 5 {
				fmt.Printf("   ... and %d more\n", len(errs)-5)
				break
			}
			fmt.Printf("   - %s\n", e)
		}
	}

	return nil
}

func runExportFile(agentID, output string) error {
	store, err := causal.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open causal store: %w", err)
	}
	defer store.Close()

	rels, err := store.QueryByAgent(context.Background(), agentID, nil)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if output == "" {
		output = fmt.Sprintf("xylem-export-%s.json", time.Now().Format("2006-01-02"))
	}

	data, err := json.MarshalIndent(rels, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal relationships: %w", err)
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	fmt.Printf("✅ Exported %d relationships to %s\n", len(rels), output)
	return nil
}
