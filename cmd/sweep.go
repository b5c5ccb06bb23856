package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"duewatch/internal/scheduler"
	strutil "duewatch/pkg/strings"
)

var (
	sweepDryRun   bool
	sweepScanOnly bool
)

// sweepCmd runs one notification sweep and exits.
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a single notification sweep",
	Long: `Runs one sweep over the registry outside of the schedule and prints
the outcome for every user.

Flags set during this run only live in this process, so a one-off sweep does
not affect the de-duplication state of a running 'duewatch serve'.`,
	Example: `  duewatch sweep --dry-run
  duewatch sweep --scan-only`,
	Args: cobra.NoArgs,
	RunE: runSweep,
}

func runSweep(cmd *cobra.Command, args []string) error {
	application, err := bootstrap(cmd)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	sched, err := application.NewScheduler(sweepDryRun, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	var report *scheduler.SweepReport
	if sweepScanOnly {
		report, err = sched.Scan(ctx)
	} else {
		report, err = sched.RunSweep(ctx)
	}
	if err != nil {
		return err
	}

	renderSweepReport(cmd.OutOrStdout(), report)
	return nil
}

func renderSweepReport(out io.Writer, report *scheduler.SweepReport) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("SUBJECT"),
		text.FgHiCyan.Sprint("OUTCOME"),
		text.FgHiCyan.Sprint("MATCHED"),
		text.FgHiCyan.Sprint("DETAIL"),
	})
	for _, r := range report.Results {
		t.AppendRow(table.Row{r.SubjectID, colorOutcome(r.Outcome), r.Matched, resultDetail(r)})
	}
	t.Render()

	fmt.Fprintf(out, "Sweep %s: %d notified, %d failed, took %s (reset: %t)\n",
		report.ID,
		report.Count(scheduler.OutcomeNotified),
		report.Count(scheduler.OutcomeFetchFailed)+report.Count(scheduler.OutcomeDeliveryFailed)+report.Count(scheduler.OutcomePanicked),
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
		report.Reset)
}

func resultDetail(r scheduler.UserResult) string {
	switch {
	case r.Err == nil:
		return ""
	case errors.Is(r.Err, scheduler.ErrAuthorizationRequired):
		return "authorization required"
	default:
		return strutil.SingleLine(r.Err.Error(), strutil.DefaultCellMaxLen)
	}
}

func colorOutcome(o scheduler.Outcome) string {
	switch o {
	case scheduler.OutcomeNotified:
		return text.FgGreen.Sprint(string(o))
	case scheduler.OutcomeFetchFailed, scheduler.OutcomeDeliveryFailed, scheduler.OutcomePanicked:
		return text.FgRed.Sprint(string(o))
	case scheduler.OutcomeCancelled:
		return text.FgYellow.Sprint(string(o))
	default:
		return string(o)
	}
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", false, "Print alerts instead of delivering them")
	sweepCmd.Flags().BoolVar(&sweepScanOnly, "scan-only", false, "Skip the end-of-period reset")
	rootCmd.AddCommand(sweepCmd)
}
