package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"fleetcmd/internal/server/data"
	"fleetcmd/internal/server/database"
	"fleetcmd/internal/server/dispatch"
	"fleetcmd/internal/server/notify"
	"fleetcmd/internal/server/registry"
	"fleetcmd/internal/server/template"
	"fleetcmd/internal/server/track"
	"fleetcmd/internal/validator"
)

// Options configures the background behavior of the service.
type Options struct {
	DefaultTimeout   time.Duration `mapstructure:"default_timeout"`
	MaxTimeout       time.Duration `mapstructure:"max_timeout"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	OfflineThreshold time.Duration `mapstructure:"offline_threshold"`
	OfflineInterval  time.Duration `mapstructure:"offline_interval"`
	Retention        time.Duration `mapstructure:"retention"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
}

// DefaultOptions returns the service defaults.
func DefaultOptions() Options {
	return Options{
		DefaultTimeout:   30 * time.Second,
		MaxTimeout:       10 * time.Minute,
		SweepInterval:    5 * time.Second,
		OfflineThreshold: 90 * time.Second,
		OfflineInterval:  30 * time.Second,
		Retention:        24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Service ties the registry, template store, dispatcher and tracker into
// the single entry point the API and transport layers talk to.
type Service struct {
	registry   *registry.Registry
	templates  *template.Store
	dispatcher *dispatch.Dispatcher
	tracker    *track.Tracker
	db         *database.Database
	history    *data.HistoryIndexer
	notifier   *notify.Manager
	validate   *validator.Validator
	opts       Options
	logger     *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New assembles a service. db and history may be nil.
func New(reg *registry.Registry, templates *template.Store, dispatcher *dispatch.Dispatcher,
	tracker *track.Tracker, db *database.Database, history *data.HistoryIndexer,
	opts Options, logger *zap.Logger) *Service {
	return &Service{
		registry:   reg,
		templates:  templates,
		dispatcher: dispatcher,
		tracker:    tracker,
		db:         db,
		history:    history,
		validate:   validator.New(),
		opts:       opts,
		logger:     logger,
	}
}

// SetNotifier attaches the alerting manager. Must be called before Start.
func (s *Service) SetNotifier(n *notify.Manager) {
	s.notifier = n
}

// Start seeds in-memory state from the database and launches the
// background loops: the timeout sweeper, the stale-agent monitor and the
// retention cleanup.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	s.templates.Seed(template.BuiltinTemplates())

	if s.db != nil {
		agents, err := s.db.GetAgents(ctx)
		if err != nil {
			return fmt.Errorf("failed to load agents: %w", err)
		}
		s.registry.Seed(agents)

		templates, err := s.db.GetTemplates(ctx)
		if err != nil {
			return fmt.Errorf("failed to load templates: %w", err)
		}
		s.templates.Seed(templates)

		s.logger.Info("State restored from database",
			zap.Int("agents", len(agents)),
			zap.Int("templates", len(templates)))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tracker.RunSweeper(ctx, s.opts.SweepInterval)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runStaleMonitor(ctx)
	}()

	if s.db != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runCleanup(ctx)
		}()
	}

	return nil
}

// Stop halts the background loops.
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// runStaleMonitor periodically demotes agents that stopped heartbeating.
func (s *Service) runStaleMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.opts.OfflineInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stale := s.registry.MarkStale(ctx, s.opts.OfflineThreshold)
			if s.notifier == nil {
				continue
			}
			for _, agentID := range stale {
				if agent, err := s.registry.Get(agentID); err == nil {
					s.notifier.NotifyAgentOffline(agent)
				}
			}
		}
	}
}

// runCleanup periodically deletes terminal executions past retention.
func (s *Service) runCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.opts.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.opts.Retention)
			n, err := s.db.Cleanup(ctx, cutoff)
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("Execution cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("Cleaned up old executions", zap.Int64("deleted", n))
			}
		}
	}
}
