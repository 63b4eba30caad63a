package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/caevv/storemon/internal/scheduler"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate storemon configuration file",
	Long: `Validate the syntax and semantics of a storemon configuration file,
including environment overrides. It checks:
  - Valid YAML syntax
  - Known data and store drivers, and their required settings
  - Default timezone, leading-gap policy and output format
  - Report schedule expression
  - Logging level and format

Example:
  storemon validate --config ./storemon.yaml`,
	RunE: validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	defer closeLog()

	path, _ := cmd.Flags().GetString("config")
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Configuration is valid: %s\n", path)
	switch cfg.Data.Driver {
	case "postgres":
		fmt.Fprintf(out, "  Data:     postgres\n")
	default:
		fmt.Fprintf(out, "  Data:     csv (%s)\n", cfg.Data.StatusCSV)
	}
	fmt.Fprintf(out, "  Store:    %s (%s)\n", cfg.Store.Driver, cfg.Store.Path)
	fmt.Fprintf(out, "  Timezone: %s\n", cfg.Report.DefaultTimezone)
	fmt.Fprintf(out, "  Leading:  %s\n", cfg.Report.LeadingGap)
	if cfg.Report.Schedule != "" {
		next, err := scheduler.NextRun(cfg.Report.Schedule, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "  Schedule: %s (next run %s)\n", cfg.Report.Schedule, next.Format(time.RFC3339))
	}
	return nil
}
