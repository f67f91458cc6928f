package cmd

import (
	"fmt"
	"os"

	"github.com/CanopyHQ/xylem/internal/mcp"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"mcp"},
	Short:   "Start MCP server (default)",
	Long: `Start the MCP server using stdio transport.

The server communicates via JSON-RPC over stdin/stdout and is designed
to be connected to by an MCP client such as Claude Code, Cursor, etc.

Examples:
  xylem serve
  xylem mcp`,
	RunE: func(cmd *cobra.Command, args []string) error { return runServe() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("xylem %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show causal store statistics",
	Long: `Show current store statistics including total relationships,
distinct nodes, database size, and last activity.

Examples:
  xylem status`,
	RunE: func(cmd *cobra.Command, args []string) error { return runStatus() },
}

func runServe() error {
	fmt.Fprintln(os.Stderr, "🌿 Xylem MCP - Causal Memory Layer")
	fmt.Fprintln(os.Stderr, "Starting MCP server (stdio transport)...")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "This server communicates via JSON-RPC over stdin/stdout.")
	fmt.Fprintln(os.Stderr, "It is not an interactive CLI — connect an MCP client (Claude Code, Cursor, etc.).")
	fmt.Fprintln(os.Stderr, "Press Ctrl+C to stop. Run 'xylem help' for available commands.")
	fmt.Fprintln(os.Stderr, "")

	mcp.Version = Version

	server, err := mcp.NewServer()
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return server.Start()
}

func runStatus() error {
	server, err := mcp.NewServer()
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	defer server.Stop()

	stats := server.GetCausalStats()
	fmt.Printf("Xylem Causal Store Status:\n")
	fmt.Printf("  Total Relationships: %d\n", stats.TotalRelationships)
	fmt.Printf("  Distinct Nodes: %d\n", stats.TotalNodes)
	fmt.Printf("  Database Size: %s\n", stats.DatabaseSize)
	fmt.Printf("  Last Activity: %s\n", stats.LastActivity)
	return nil
}
