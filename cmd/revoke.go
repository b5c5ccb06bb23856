package cmd

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"duewatch/internal/credential"
)

// revokeCmd removes a subject's stored credential.
var revokeCmd = &cobra.Command{
	Use:   "revoke <subject>",
	Short: "Remove a user's stored credential",
	Long: `Deletes the stored credential for the given subject and, when a revocation
endpoint is configured, asks the provider to invalidate the tokens.

Revoking a subject that has no credential is not an error.`,
	Args: cobra.ExactArgs(1),
	RunE: runRevoke,
}

func runRevoke(cmd *cobra.Command, args []string) error {
	subject := args[0]

	application, err := bootstrap(cmd)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	manager, err := application.Manager()
	if err != nil {
		return err
	}

	res, err := manager.Revoke(commandContext(cmd), subject)
	if err != nil {
		return fmt.Errorf("%s: %w", credential.UserMessage(err), err)
	}

	out := cmd.OutOrStdout()
	if res.Existed {
		fmt.Fprintf(out, "%s %s\n", text.FgGreen.Sprint("✓"), credential.MsgRevoked)
	} else {
		fmt.Fprintf(out, "Nothing stored for %s\n", subject)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(revokeCmd)
}
