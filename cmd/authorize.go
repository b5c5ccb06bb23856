package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"duewatch/internal/credential"
)

const authorizePollInterval = 2 * time.Second

var (
	authorizeWait    bool
	authorizeTimeout time.Duration
)

// authorizeCmd issues an authorization link for one subject.
var authorizeCmd = &cobra.Command{
	Use:   "authorize <subject>",
	Short: "Create an OAuth authorization link for a user",
	Long: `Creates an authorization link for the given subject and prints it.
The link must be opened by the user; the provider then redirects the browser
to the callback endpoint served by 'duewatch serve'.

If the subject already holds a usable credential nothing is issued.

Use --wait to block until the callback has been processed.`,
	Example: `  duewatch authorize U024BE7LH
  duewatch authorize U024BE7LH --wait --timeout 10m`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthorize,
}

func runAuthorize(cmd *cobra.Command, args []string) error {
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

	ctx := commandContext(cmd)
	res, err := manager.Authorize(ctx, subject)
	if err != nil {
		return &AuthFailedError{Subject: subject, Reason: credential.UserMessage(err)}
	}

	out := cmd.OutOrStdout()
	if res.AlreadyAuthorized {
		fmt.Fprintf(out, "%s %s\n", text.FgGreen.Sprint("✓"), credential.MsgAlreadyAuthorized)
		return nil
	}

	fmt.Fprintln(out, "Open this link to authorize access:")
	fmt.Fprintln(out, res.AuthURL)

	if !authorizeWait {
		return nil
	}
	return waitForAuthorization(ctx, cmd, manager, subject)
}

// waitForAuthorization polls until subject is authorized or the timeout
// elapses.
func waitForAuthorization(ctx context.Context, cmd *cobra.Command, manager *credential.Manager, subject string) error {
	ctx, cancel := context.WithTimeout(ctx, authorizeTimeout)
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	s.Suffix = " Waiting for authorization..."
	s.Start()
	defer s.Stop()

	ticker := time.NewTicker(authorizePollInterval)
	defer ticker.Stop()

	for {
		state, err := manager.Status(ctx, subject)
		if err != nil {
			s.FinalMSG = text.FgRed.Sprint("Failed to read credential state") + "\n"
			return &AuthFailedError{Subject: subject, Reason: credential.UserMessage(err)}
		}
		if state == credential.StateAuthorized {
			s.FinalMSG = fmt.Sprintf("%s Authorization complete\n", text.FgGreen.Sprint("✓"))
			return nil
		}

		select {
		case <-ctx.Done():
			s.FinalMSG = text.FgRed.Sprint("Timed out waiting for authorization") + "\n"
			return &AuthFailedError{Subject: subject, Reason: "timed out waiting for the callback"}
		case <-ticker.C:
		}
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func init() {
	authorizeCmd.Flags().BoolVar(&authorizeWait, "wait", false, "Wait until the callback completes")
	authorizeCmd.Flags().DurationVar(&authorizeTimeout, "timeout", 5*time.Minute, "How long --wait blocks before giving up")
	rootCmd.AddCommand(authorizeCmd)
}
