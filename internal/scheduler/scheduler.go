// Package scheduler runs the periodic maintenance jobs: hub metrics
// reporting and cache sweeps.
package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"tradeedge/internal/entitlement"
	"tradeedge/internal/logging"
	"tradeedge/internal/stream"
)

// Config holds the cron specs for each job.
type Config struct {
	MetricsSpec    string
	CacheSweepSpec string
}

// Scheduler owns the cron runner and its job set.
type Scheduler struct {
	cron   *cron.Cron
	hub    *stream.Hub
	filter *entitlement.Filter
	logger zerolog.Logger
}

// New creates a scheduler with the metrics and cache-sweep jobs registered.
func New(cfg Config, hub *stream.Hub, filter *entitlement.Filter, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(),
		hub:    hub,
		filter: filter,
		logger: logging.WithComponent(logger, "scheduler"),
	}

	if _, err := s.cron.AddFunc(cfg.MetricsSpec, s.reportMetrics); err != nil {
		return nil, err
	}
	if _, err := s.cron.AddFunc(cfg.CacheSweepSpec, s.sweepCaches); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Msg("Scheduler started")
}

// Stop halts the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

func (s *Scheduler) reportMetrics() {
	m := s.hub.Metrics()
	s.logger.Info().
		Uint64("events_received", m.EventsReceived).
		Uint64("events_dropped", m.EventsDropped).
		Uint64("delivered", m.Delivered).
		Uint64("delivery_failures", m.DeliveryFailures).
		Uint64("entitlement_denied", m.EntitlementDenied).
		Uint64("unreachable_users", m.UnreachableUsers).
		Int("connections", m.Connections).
		Int("connected_users", m.ConnectedUsers).
		Msg("Dispatch metrics")
}

func (s *Scheduler) sweepCaches() {
	s.hub.SweepSubscriberCache()
	s.filter.SweepExpired()
	s.logger.Debug().Msg("Cache sweep complete")
}
