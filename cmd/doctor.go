package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/CanopyHQ/xylem/internal/causal"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose common setup issues",
	Long: `Diagnose common setup issues and optionally fix them.

Examples:
  xylem doctor        # check for issues
  xylem doctor --fix  # check and auto-fix issues`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fix, _ := cmd.Flags().GetBool("fix")
		return runDoctor(fix)
	},
}

func init() {
	doctorCmd.Flags().Bool("fix", false, "Attempt to automatically fix issues")
}

// runDoctor diagnoses common setup issues
func runDoctor(fix bool) error {
	fmt.Println("🔍 Xylem Doctor - Diagnosing Setup")
	if fix {
		fmt.Println("🛠️  Auto-fix enabled")
	}
	fmt.Println()

	issues := 0
	warnings := 0
	fixed := 0

	// 1. Check if binary is in PATH
	fmt.Print("✓ Checking if xylem is in PATH... ")
	path, err := exec.LookPath("xylem")
	if err != nil {
		fmt.Println("⚠️  WARNING")
		fmt.Println("  xylem binary not found in PATH")
		fmt.Println("  Fix: Add xylem to your PATH or use full path")
		warnings++
	} else {
		fmt.Printf("✅ OK (%s)\n", path)
	}

	// 2. Check data directory
	fmt.Print("✓ Checking data directory... ")
	dataDir := os.Getenv("XYLEM_DATA_DIR")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".xylem")
	}
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		if fix {
			fmt.Print("🛠️  Creating... ")
			if err := os.MkdirAll(dataDir, 0700); err != nil {
				fmt.Printf("❌ FAILED: %v\n", err)
				issues++
			} else {
				fmt.Println("✅ FIXED")
				fixed++
			}
		} else {
			fmt.Println("⚠️  WARNING")
			fmt.Printf("  Data directory does not exist: %s\n", dataDir)
			fmt.Println("  It will be created on first run")
			warnings++
		}
	} else {
		fmt.Printf("✅ OK (%s)\n", dataDir)
	}

	// 3. Check the database opens and answers queries
	fmt.Print("✓ Checking database... ")
	store, err := causal.NewStore()
	if err != nil {
		fmt.Println("❌ FAILED")
		fmt.Printf("  Issue: cannot open database: %v\n", err)
		issues++
	} else {
		count, cErr := store.Count(context.Background())
		size, _ := store.Size()
		store.Close()
		if cErr != nil {
			fmt.Println("❌ FAILED")
			fmt.Printf("  Issue: database query failed: %v\n", cErr)
			issues++
		} else {
			fmt.Printf("✅ OK (%d relationships, %s)\n", count, size)
		}
	}

	// Summary
	fmt.Println()
	if issues == 0 && warnings == 0 {
		fmt.Println("✅ All checks passed!")
	} else {
		fmt.Printf("Found %d issue(s), %d warning(s)", issues, warnings)
		if fixed > 0 {
			fmt.Printf(", fixed %d", fixed)
		}
		fmt.Println()
		if issues > 0 && !fix {
			fmt.Println("Run 'xylem doctor --fix' to attempt automatic fixes.")
		}
	}

	return nil
}
