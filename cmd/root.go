package cmd

import (
	"github.com/spf13/cobra"
)

// Build-time variables
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// SetVersion sets the version info from main
func SetVersion(v, c, d string) {
	Version = v
	Commit = c
	Date = d
}

var rootCmd = &cobra.Command{
	Use:   "xylem",
	Short: "Xylem MCP - Causal Memory Layer",
	Long:  "Local-first cause→effect memory for AI agents via Model Context Protocol.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the xylem command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// serve, version, status (defined in serve.go)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)

	// record (defined in record.go)
	rootCmd.AddCommand(recordCmd)

	// trace, related (defined in trace.go)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(relatedCmd)

	// analyze (defined in analyze.go)
	rootCmd.AddCommand(analyzeCmd)

	// import, export (defined in import_export.go)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)

	// api (defined in api.go)
	rootCmd.AddCommand(apiCmd)

	// doctor (defined in doctor.go)
	rootCmd.AddCommand(doctorCmd)
}
