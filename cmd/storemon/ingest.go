package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caevv/storemon/internal/datastore"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Load the CSV exports into Postgres",
	Long: `Create the schema if needed and load store_status, business_hours and
store_timezones CSV files into Postgres in one transaction. Timezones are
upserted; status and hours rows are appended.

Example:
  storemon ingest --dsn postgres://storemon@localhost/storemon \
    --status store_status.csv --hours business_hours.csv --timezones store_timezones.csv`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("dsn", "", "Postgres DSN (defaults to data.dsn)")
	ingestCmd.Flags().String("status", "", "store_status CSV (defaults to data.status_csv)")
	ingestCmd.Flags().String("hours", "", "business_hours CSV (defaults to data.hours_csv)")
	ingestCmd.Flags().String("timezones", "", "store_timezones CSV (defaults to data.timezone_csv)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	flagOr := func(name, fallback string) string {
		if v, _ := cmd.Flags().GetString(name); v != "" {
			return v
		}
		return fallback
	}
	dsn := flagOr("dsn", cfg.Data.DSN)
	statusPath := flagOr("status", cfg.Data.StatusCSV)
	hoursPath := flagOr("hours", cfg.Data.HoursCSV)
	tzPath := flagOr("timezones", cfg.Data.TimezoneCSV)

	if dsn == "" {
		return fmt.Errorf("a postgres dsn is required (--dsn or data.dsn)")
	}
	if statusPath == "" {
		return fmt.Errorf("a store_status csv is required (--status or data.status_csv)")
	}

	ds, err := datastore.ReadDataset(statusPath, hoursPath, tzPath, logger)
	if err != nil {
		return err
	}

	ctx := setupSignalHandler()
	pg, err := datastore.OpenPostgres(ctx, dsn, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		return err
	}
	if err := pg.Ingest(ctx, ds); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "ingested %d observations, %d business hours, %d timezones\n",
		len(ds.Observations), len(ds.BusinessHours), len(ds.Timezones))
	return nil
}
