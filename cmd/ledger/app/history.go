package app

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ledger/internal/core"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent link attempts and sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			account, _ := cmd.Flags().GetInt64("account")

			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			attempts, err := e.repo.RecentAttempts(cmd.Context(), limit)
			if err != nil {
				return err
			}
			runs, err := e.repo.RecentSyncRuns(cmd.Context(), account, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printAttempts(out, attempts)
			fmt.Fprintln(out)
			printSyncRuns(out, runs)
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "Maximum rows per section")
	cmd.Flags().Int64("account", 0, "Only show sync runs for this account id")
	return cmd
}

func printAttempts(w io.Writer, attempts []core.AttemptRecord) {
	fmt.Fprintln(w, "Link attempts")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tACCOUNT\tPROVIDER\tOUTCOME\tREASON\tROLLED BACK")
	for _, a := range attempts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n",
			a.StartedAt.Local().Format("2006-01-02 15:04"), a.AccountName, a.Provider.Name, a.State, a.Reason, a.RolledBack)
	}
	tw.Flush()
}

func printSyncRuns(w io.Writer, runs []core.SyncRun) {
	fmt.Fprintln(w, "Sync runs")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tACCOUNT\tKIND\tTRIGGER\tDURATION\tRESULT")
	for _, r := range runs {
		result := r.Message
		if r.Error != "" {
			result = "error: " + r.Error
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.AccountID, r.Kind.PathSegment(), r.Trigger, r.Duration, result)
	}
	tw.Flush()
}
