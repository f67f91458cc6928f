package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/CanopyHQ/xylem/internal/api"
	"github.com/CanopyHQ/xylem/internal/causal"
	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the local HTTP API server",
	Long: `Start the HTTP API server for non-MCP integrations.

The API exposes the same store as the MCP server: recording and querying
relationships, tracing chains, pattern analysis, and related-node search.

Examples:
  xylem api
  xylem api --addr 127.0.0.1:7433`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		return runAPI(addr)
	},
}

func init() {
	apiCmd.Flags().String("addr", "127.0.0.1:7433", "Listen address")
}

func runAPI(addr string) error {
	store, err := causal.NewStore()
	if err != nil {
		return fmt.Errorf("failed to open causal store: %w", err)
	}
	defer store.Close()

	srv := api.New(store, Version)

	fmt.Fprintf(os.Stderr, "🌿 Xylem API listening on http://%s\n", addr)
	return http.ListenAndServe(addr, srv)
}
