package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/caevv/storemon/internal/report"
	"github.com/caevv/storemon/internal/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compute a report once and write it to a file",
	Long: `Trigger a report, wait for it to finish and write it to
<output-dir>/report_<report_id>.<format>. The job is recorded in the configured
store like any API-triggered report.

Example:
  storemon report --format xlsx --output-dir ./out`,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringP("format", "f", "", "Output format: csv, xlsx, pdf or json (overrides report.format)")
	reportCmd.Flags().StringP("output-dir", "o", "", "Directory for the report file (overrides report.output_dir)")
}

func runReport(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	formatName := cfg.Report.Format
	if f, _ := cmd.Flags().GetString("format"); f != "" {
		formatName = f
	}
	format, err := report.ParseFormat(formatName)
	if err != nil {
		return err
	}
	outDir := cfg.Report.OutputDir
	if d, _ := cmd.Flags().GetString("output-dir"); d != "" {
		outDir = d
	}

	ctx := setupSignalHandler()

	a, err := newApp(ctx, cfg, prometheus.NewRegistry(), logger)
	if err != nil {
		return err
	}
	defer a.Close()

	path, err := generateReport(ctx, a, format, outDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", path)
	return nil
}

// generateReport runs one job to completion and writes its file.
func generateReport(ctx context.Context, a *app, format report.Format, outDir string) (string, error) {
	id, err := a.runner.Trigger(ctx)
	if err != nil {
		return "", err
	}
	a.runner.Wait()

	job, err := a.runner.Status(ctx, id)
	if err != nil {
		return "", err
	}
	if job.Status != store.StatusComplete {
		return "", fmt.Errorf("report %s %s: %s", id, job.Status, job.Error)
	}

	body, err := report.Encode(job.Document(), format)
	if err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(outDir, "report_"+format.FileName(id))
	if err := os.WriteFile(path, body, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}

	logger.Info("report written", "report_id", id, "path", path, "stores", len(job.Rows))
	return path, nil
}
