package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"duewatch/internal/credential"
	"duewatch/internal/scheduler"
	"duewatch/internal/source"
)

// statusCmd shows the credential state of registered users.
var statusCmd = &cobra.Command{
	Use:   "status [subject]",
	Short: "Show credential state for registered users",
	Long: `Lists every user in the registry with their data source, recipient and
credential state. Pass a subject to show a single user; in that case the
command exits with code 2 when the user has no usable credential.

Credential states:
  unauthorized  No credential stored
  authorizing   An authorization link is outstanding
  authorized    A usable credential is stored
  expired       The access token expired and will be refreshed on next use`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

type statusRow struct {
	subject   string
	source    string
	recipient string
	state     string
	expires   string
}

func runStatus(cmd *cobra.Command, args []string) error {
	application, err := bootstrap(cmd)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	settings := application.Settings()
	manager, _ := application.Manager()
	ctx := commandContext(cmd)

	if len(args) == 1 {
		subject := args[0]
		if manager == nil {
			return errors.New("oauth is not configured; credential state is unavailable")
		}
		user := scheduler.RegisteredUser{SubjectID: subject}
		if registry, err := scheduler.LoadRegistry(settings.Scheduler.RegistryPath, settings.Scheduler.DefaultSource); err == nil {
			if u, ok := registry.Get(subject); ok {
				user = u
			}
		}
		row, state, err := credentialRow(ctx, manager, user)
		if err != nil {
			return err
		}
		renderStatusTable(cmd.OutOrStdout(), []statusRow{row})
		if state == credential.StateUnauthorized || state == credential.StateAuthorizing {
			return &AuthRequiredError{Subject: subject}
		}
		return nil
	}

	registry, err := scheduler.LoadRegistry(settings.Scheduler.RegistryPath, settings.Scheduler.DefaultSource)
	if err != nil {
		return err
	}

	users := registry.Users()
	if len(users) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No users registered in %s\n", registry.Path())
		return nil
	}

	rows := make([]statusRow, 0, len(users))
	for _, u := range users {
		if manager == nil || u.Source != source.CourseworkSourceName {
			rows = append(rows, statusRow{subject: u.SubjectID, source: u.Source, recipient: u.Recipient, state: "-", expires: "-"})
			continue
		}
		row, _, err := credentialRow(ctx, manager, u)
		if err != nil {
			return err
		}
		rows = append(rows, row)
	}
	renderStatusTable(cmd.OutOrStdout(), rows)
	return nil
}

func credentialRow(ctx context.Context, manager *credential.Manager, u scheduler.RegisteredUser) (statusRow, credential.State, error) {
	row := statusRow{subject: u.SubjectID, source: u.Source, recipient: u.Recipient, expires: "-"}
	if row.source == "" {
		row.source = "-"
	}
	if row.recipient == "" {
		row.recipient = u.SubjectID
	}

	state, err := manager.Status(ctx, u.SubjectID)
	if err != nil {
		return row, state, fmt.Errorf("failed to read credential for %s: %w", u.SubjectID, err)
	}
	row.state = state.String()

	if state == credential.StateAuthorized || state == credential.StateExpired {
		record, err := manager.Lookup(ctx, u.SubjectID)
		switch {
		case errors.Is(err, credential.ErrNotFound):
		case err != nil:
			return row, state, fmt.Errorf("failed to read credential for %s: %w", u.SubjectID, err)
		case !record.Expiry.IsZero():
			row.expires = record.Expiry.Local().Format(time.DateTime)
		}
	}
	return row, state, nil
}

func renderStatusTable(out io.Writer, rows []statusRow) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("SUBJECT"),
		text.FgHiCyan.Sprint("SOURCE"),
		text.FgHiCyan.Sprint("RECIPIENT"),
		text.FgHiCyan.Sprint("CREDENTIAL"),
		text.FgHiCyan.Sprint("EXPIRES"),
	})
	for _, r := range rows {
		t.AppendRow(table.Row{r.subject, r.source, r.recipient, colorState(r.state), r.expires})
	}
	t.Render()
}

func colorState(state string) string {
	switch state {
	case credential.StateAuthorized.String():
		return text.FgGreen.Sprint(state)
	case credential.StateExpired.String(), credential.StateAuthorizing.String():
		return text.FgYellow.Sprint(state)
	case credential.StateUnauthorized.String():
		return text.FgRed.Sprint(state)
	default:
		return state
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
