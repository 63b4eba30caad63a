package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/caevv/storemon/internal/config"
	"github.com/caevv/storemon/internal/datastore"
	"github.com/caevv/storemon/internal/metrics"
	"github.com/caevv/storemon/internal/report"
	"github.com/caevv/storemon/internal/runner"
	"github.com/caevv/storemon/internal/store"
	"github.com/caevv/storemon/internal/uptime"
)

// app wires the data source, job store and runner described by a Config.
type app struct {
	cfg     *config.Config
	data    datastore.DataStore
	store   store.Store
	runner  *runner.Runner
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, logger *slog.Logger) (*app, error) {
	policy, err := uptime.ParseLeadingGapPolicy(cfg.Report.LeadingGap)
	if err != nil {
		return nil, err
	}

	ds, err := datastore.Open(ctx, datastore.Options{
		Driver:      cfg.Data.Driver,
		StatusCSV:   cfg.Data.StatusCSV,
		HoursCSV:    cfg.Data.HoursCSV,
		TimezoneCSV: cfg.Data.TimezoneCSV,
		DSN:         cfg.Data.DSN,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open data source: %w", err)
	}
	logger.Info("data source opened", "driver", cfg.Data.Driver)

	st, err := store.NewStore(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		ds.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	logger.Info("store initialized", "driver", cfg.Store.Driver, "path", cfg.Store.Path)

	m := metrics.New(reg)
	agg, err := report.NewAggregator(ds, report.Options{
		DefaultTimezone: cfg.Report.DefaultTimezone,
		LeadingGap:      policy,
		Workers:         cfg.Report.Workers,
	}, logger, m)
	if err != nil {
		st.Close()
		ds.Close()
		return nil, err
	}

	r := runner.New(st, ds, agg, runner.Options{MaxConcurrentJobs: cfg.Report.MaxConcurrentJobs}, logger, m)
	n, err := r.Recover(ctx)
	if err != nil {
		st.Close()
		ds.Close()
		return nil, err
	}
	if n > 0 {
		logger.Warn("failed reports interrupted by a previous run", "count", n)
	}

	return &app{cfg: cfg, data: ds, store: st, runner: r, metrics: m, logger: logger}, nil
}

// Close waits for running jobs, then releases the store and data source.
func (a *app) Close() {
	a.runner.Wait()
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", "error", err)
	}
	if err := a.data.Close(); err != nil {
		a.logger.Error("failed to close data source", "error", err)
	}
}
