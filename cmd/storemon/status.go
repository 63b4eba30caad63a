package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/caevv/storemon/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status [report-id]",
	Short: "Show recent reports or one report",
	Long: `Without arguments, list the most recent reports in the configured store.
With a report id, show that report's status and rows.

Examples:
  storemon status --limit 10
  storemon status 6f1c2e0a-3b7d-4c55-9a8e-2d4f7b1e9c30`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntP("limit", "n", 20, "Number of reports to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	st, err := store.NewStore(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		return showReport(ctx, out, st, args[0])
	}
	limit, _ := cmd.Flags().GetInt("limit")
	return listReports(ctx, out, st, limit)
}

func listReports(ctx context.Context, out io.Writer, st store.Store, limit int) error {
	jobs, err := st.List(ctx, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "REPORT ID\tSTATUS\tCREATED\tDURATION\tSTORES")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			j.ReportID,
			j.Status,
			j.CreatedAt.Format(time.RFC3339),
			j.Duration().Round(time.Millisecond),
			j.StoreCount,
		)
	}
	w.Flush()
	fmt.Fprintf(out, "\nTotal reports: %d\n", len(jobs))
	return nil
}

func showReport(ctx context.Context, out io.Writer, st store.Store, id string) error {
	job, err := st.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("report %s not found", id)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Report:    %s\n", job.ReportID)
	fmt.Fprintf(out, "Status:    %s\n", job.Status)
	fmt.Fprintf(out, "Created:   %s\n", job.CreatedAt.Format(time.RFC3339))
	if !job.ReferenceInstant.IsZero() {
		fmt.Fprintf(out, "Reference: %s\n", job.ReferenceInstant.Format(time.RFC3339))
	}
	if job.Error != "" {
		fmt.Fprintf(out, "Error:     %s\n", job.Error)
	}
	if len(job.Rows) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STORE\tUP 1H\tUP 1D\tUP 1W\tDOWN 1H\tDOWN 1D\tDOWN 1W\tNOTE")
	for _, r := range job.Rows {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.StoreID,
			r.UptimeLastHour, r.UptimeLastDay, r.UptimeLastWeek,
			r.DowntimeLastHour, r.DowntimeLastDay, r.DowntimeLastWeek,
			r.PartialFailure,
		)
	}
	return w.Flush()
}
