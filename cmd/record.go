package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/CanopyHQ/xylem/internal/causal"
	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record <cause-id> <effect-id>",
	Short: "Record a causal relationship",
	Long: `Record a cause→effect relationship in the causal store.

With positional arguments, a minimal relationship is built from flags.
With --file (or --file -), a full relationship JSON document is read
instead and the positional arguments are omitted.

Examples:
  xylem record deploy-fail outage --strength 0.8 --confidence 0.9
  xylem record rain wet-ground --type direct --category physical
  xylem record --file relationship.json
  cat relationship.json | xylem record --file -`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		if file != "" {
			return runRecordFile(file)
		}
		if len(args) != 2 {
			return fmt.Errorf("cause-id and effect-id are required (or use --file)")
		}

		agentID, _ := cmd.Flags().GetString("agent")
		relType, _ := cmd.Flags().GetString("type")
		category, _ := cmd.Flags().GetString("category")
		strength, _ := cmd.Flags().GetFloat64("strength")
		confidence, _ := cmd.Flags().GetFloat64("confidence")
		return runRecord(args[0], args[1], agentID, relType, category, strength, confidence)
	},
}

func init() {
	recordCmd.Flags().String("agent", "default", "Agent recording the relationship")
	recordCmd.Flags().String("type", "direct", "Relationship type (direct, indirect, conditional, probabilistic, temporal)")
	recordCmd.Flags().String("category", "physical", "Category (physical, logical, social, economic, psychological, temporal)")
	recordCmd.Flags().Float64("strength", 0.5, "Causal strength in [0,1]")
	recordCmd.Flags().Float64("confidence", 0.5, "Confidence in [0,1]")
	recordCmd.Flags().String("file", "", "Read a full relationship JSON document from this file ('-' for stdin)")
}

func runRecord(causeID, effectID, agentID, relType, category string, strength, confidence float64) error {
	store, err := causal.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open causal store: %w", err)
	}
	defer store.Close()

	rel := &causal.CausalRelationship{
		AgentID:    agentID,
		Type:       causal.RelationType(relType),
		Category:   causal.Category(category),
		Strength:   strength,
		Confidence: confidence,
		Cause:      causal.Cause{ID: causeID, Name: causeID},
		Effect:     causal.Effect{ID: effectID, Name: effectID, Probability: confidence},
	}

	id, err := store.Store(context.Background(), rel)
	if err != nil {
		return fmt.Errorf("record failed: %w", err)
	}

	fmt.Printf("✅ Recorded %s -> %s (id: %s)\n", causeID, effectID, id)
	return nil
}

func runRecordFile(path string) error {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("failed to read relationship: %w", err)
	}

	var rel causal.CausalRelationship
	if err := json.Unmarshal(data, &rel); err != nil {
		return fmt.Errorf("invalid relationship document: %w", err)
	}
	if rel.AgentID == "" {
		rel.AgentID = "default"
	}

	store, err := causal.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open causal store: %w", err)
	}
	defer store.Close()

	id, err := store.Store(context.Background(), &rel)
	if err != nil {
		return fmt.Errorf("record failed: %w", err)
	}

	fmt.Printf("✅ Recorded %s -> %s (id: %s)\n", rel.Cause.ID, rel.Effect.ID, id)
	return nil
}
