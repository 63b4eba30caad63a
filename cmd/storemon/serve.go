package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/caevv/storemon/internal/scheduler"
	"github.com/caevv/storemon/internal/server"
)

// purgeSchedule is how often finished reports past retention are removed.
const purgeSchedule = "every 1h"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the report trigger/poll API",
	Long: `Start the HTTP API and, when report.schedule is set, trigger reports
periodically.

Endpoints:
  POST /trigger_report             start a report, returns {"report_id": ...}
  GET  /get_report?report_id=ID    poll; downloads the file once complete
  GET  /api/reports[/{id}]         recent reports as JSON
  GET  /api/health                 liveness
  GET  /metrics                    Prometheus metrics

Example:
  storemon serve --config ./storemon.yaml --addr :8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "HTTP server address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer closeLog()

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	ctx := setupSignalHandler()

	a, err := newApp(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := scheduler.New(ctx, logger)
	if err := addTasks(sched, a); err != nil {
		return err
	}

	srv := server.New(a.runner, server.Options{
		Addr:         cfg.Server.Addr,
		TriggerRate:  cfg.Server.TriggerRate,
		TriggerBurst: cfg.Server.TriggerBurst,
		Metrics:      a.metrics,
	}, logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := sched.Start(); err != nil {
			return fmt.Errorf("scheduler error: %w", err)
		}
		<-gCtx.Done()
		err := sched.Stop()
		for _, st := range sched.AllStats() {
			logger.Info("task summary",
				"task_id", st.TaskID,
				"runs", st.RunCount,
				"last_run", st.LastRun,
				"last_error", st.LastError)
		}
		return err
	})

	g.Go(func() error {
		if err := srv.Start(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	logger.Info("storemon serve mode started",
		"addr", cfg.Server.Addr,
		"data_driver", cfg.Data.Driver,
		"store_driver", cfg.Store.Driver,
		"report_schedule", cfg.Report.Schedule)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("error during execution", "error", err)
		return err
	}

	logger.Info("storemon stopped")
	return nil
}

// addTasks registers the retention purge and, if configured, the periodic
// report trigger.
func addTasks(sched *scheduler.Scheduler, a *app) error {
	retention := a.cfg.Report.Retention
	purge := scheduler.TaskFunc(func(ctx context.Context) error {
		_, err := a.runner.Purge(ctx, retention)
		return err
	})
	if err := sched.AddTask("purge", purgeSchedule, purge); err != nil {
		return err
	}

	if a.cfg.Report.Schedule == "" {
		return nil
	}
	trigger := scheduler.TaskFunc(func(ctx context.Context) error {
		_, err := a.runner.Trigger(ctx)
		return err
	})
	return sched.AddTask("report", a.cfg.Report.Schedule, trigger)
}
