package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"duewatch/internal/app"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates the subject has no usable credential.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed or timed out.
	ExitCodeAuthFailed = 3
)

// Global flags.
var (
	configPath string
	debug      bool
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "duewatch",
	Short: "Deadline reminders backed by per-user OAuth credentials",
	Long: `duewatch keeps per-user OAuth credentials for a coursework API, refreshes
them as needed, and runs a periodic sweep that alerts registered users about
items that are due within the next three days.

Run 'duewatch serve' for the long-lived process (OAuth callback endpoint plus
scheduler), and use 'duewatch authorize' or 'duewatch revoke' to manage
individual users.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the root command and exits with a semantic exit code on
// failure. It is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "duewatch version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	var authRequired *AuthRequiredError
	if errors.As(err, &authRequired) {
		return ExitCodeAuthRequired
	}

	var authFailed *AuthFailedError
	if errors.As(err, &authFailed) {
		return ExitCodeAuthFailed
	}

	return ExitCodeError
}

// bootstrap creates the application from the global flags.
func bootstrap(cmd *cobra.Command) (*app.Application, error) {
	cfg := app.NewConfig(debug, configPath)
	cfg.LogOutput = cmd.ErrOrStderr()
	return app.NewApplication(cfg)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default is $HOME/.config/duewatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
}
