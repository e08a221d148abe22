// Package cmd provides the command-line interface for nanoclaw-sidecar.
package cmd

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	outputJSON bool
	configFile string
	noColor    bool
	quiet      bool
)

const defaultTimeout = 30 * time.Second

// NewRootCmd creates the root command. Without a subcommand it serves.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nanoclaw-sidecar",
		Short: "HTTP to IPC bridge for the nanoclaw WhatsApp bot",
		Long: `nanoclaw-sidecar accepts POST /send requests and writes nanoclaw IPC
message files into the shared data volume, so the running nanoclaw container
delivers them to WhatsApp.

Without a command the server is started on 0.0.0.0:5000.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
		RunE: runServe,
	}

	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default: search ./config.yaml, ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newDepsCmd())
	rootCmd.AddCommand(newGroupsCmd())
	rootCmd.AddCommand(newSendCmd())

	return rootCmd
}

// Execute runs the CLI with args.
func Execute(ctx context.Context, args []string) error {
	rootCmd := NewRootCmd()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// outputAsJSON writes data as indented JSON.
func outputAsJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
