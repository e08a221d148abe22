package cmd

import (
	"nanoclaw-sidecar/bootstrap"

	"github.com/spf13/cobra"
)

// newServeCmd creates the 'serve' subcommand
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Load the configured application (server.app, default main:app), bind
server.host:server.port (default 0.0.0.0:5000) and serve until SIGINT or
SIGTERM. Failing to load the application or to bind the port exits non-zero.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := bootstrap.InitConfig(configFile)
	if err != nil {
		return err
	}
	return bootstrap.Run(cmd.Context(), cfg)
}
