// Package scheduler drives the time-based summary trigger: a periodic
// sweep that gives every live meeting a chance to fold its pending turns
// into the topic summary even when the turn threshold is never reached.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/parleyhq/parley/internal/contextmgr"
)

type Service struct {
	registry *contextmgr.Registry
	logger   *slog.Logger
	spec     string
}

func New(registry *contextmgr.Registry, spec string, logger *slog.Logger) *Service {
	if spec == "" {
		spec = "@every 1m"
	}
	return &Service{
		registry: registry,
		logger:   logger,
		spec:     spec,
	}
}

// Start runs the sweep on the configured cron spec until ctx is cancelled,
// then waits for an in-flight sweep to finish.
func (s *Service) Start(ctx context.Context) error {
	runner := cron.New()
	if _, err := runner.AddFunc(s.spec, func() { s.Sweep(ctx) }); err != nil {
		return fmt.Errorf("schedule summary sweep %q: %w", s.spec, err)
	}
	runner.Start()
	s.logger.Info("summary sweep scheduled", "spec", s.spec)

	<-ctx.Done()
	stopped := runner.Stop()
	<-stopped.Done()
	s.logger.Info("summary sweep stopped")
	return nil
}

// Sweep visits every registered meeting once. Exported so tests and the
// runtime can trigger a pass directly.
func (s *Service) Sweep(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	swept := 0
	s.registry.ForEach(func(m *contextmgr.Manager) {
		m.MaybeSummarize(ctx)
		swept++
	})
	if swept > 0 {
		s.logger.Debug("summary sweep completed", "meetings", swept)
	}
}
