package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// serveCmd runs the long-lived duewatch process.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the OAuth callback server and the notification scheduler",
	Long: `Starts the HTTP server that receives OAuth redirects, the cron-driven
notification sweep and, if enabled, the registry file watcher.

The process runs until interrupted (SIGINT or SIGTERM). Under systemd with
Type=notify it reports readiness and shutdown.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := bootstrap(cmd)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	return application.Serve(commandContext(cmd))
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
