package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/pario-ai/tollgate/pkg/budget"
	"github.com/pario-ai/tollgate/pkg/config"
	"github.com/pario-ai/tollgate/pkg/engine"
	"github.com/pario-ai/tollgate/pkg/history"
	"github.com/pario-ai/tollgate/pkg/logging"
	"github.com/pario-ai/tollgate/pkg/metrics"
	"github.com/pario-ai/tollgate/pkg/models"
)

// session is one process worth of decision state: config, engine and the
// optional journal, metrics endpoint and budget rollover.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	engine   *engine.Engine
	history  *history.Store
	metrics  *metrics.Collector
	rollover *budget.Rollover
	server   *http.Server
}

type sessionOpts struct {
	// serve starts the metrics endpoint and the budget rollover.
	serve bool
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func openSession(ctx context.Context, configPath string, opts sessionOpts) (*session, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	slog.SetDefault(logger)

	s := &session{cfg: cfg, logger: logger}

	engineOpts := []engine.Option{engine.WithLogger(logger)}
	if cfg.Metrics.Enabled {
		s.metrics = metrics.New(cfg.Metrics.Namespace)
		engineOpts = append(engineOpts, engine.WithRecorder(s.metrics))
	}

	s.engine, err = engine.FromConfig(cfg, engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	if s.metrics != nil {
		s.metrics.WatchBudget(func() float64 { return s.engine.Stats().Budget.Remaining })
	}

	if cfg.History.Enabled {
		s.history, err = history.Open(cfg.History)
		if err != nil {
			return nil, fmt.Errorf("init history: %w", err)
		}
	}

	if opts.serve {
		if err := s.serve(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *session) serve(ctx context.Context) error {
	s.rollover = budget.NewRollover(s.engine, s.cfg.Budget.DailyLimit, s.cfg.Budget.Period, s.cfg.Budget.ResetSchedule).
		WithLogger(s.logger)
	if err := s.rollover.Start(ctx); err != nil {
		return fmt.Errorf("start budget rollover: %w", err)
	}

	if s.metrics == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())
	s.server = &http.Server{
		Addr:              s.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		s.logger.Info("metrics endpoint listening", "addr", s.cfg.Metrics.Listen)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics endpoint failed", "error", err)
		}
	}()
	return nil
}

// decide runs one request and journals the result when history is enabled.
func (s *session) decide(ctx context.Context, text string) models.DecisionRecord {
	rec := s.engine.Decide(text)
	if s.history != nil {
		if err := s.history.Record(ctx, rec); err != nil {
			s.logger.Warn("record decision", "id", rec.ID, "error", err)
		}
	}
	return rec
}

func (s *session) Close() {
	if s.rollover != nil {
		s.rollover.Stop()
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.history != nil {
		_ = s.history.Close()
	}
}
