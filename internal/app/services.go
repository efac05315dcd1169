package app

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/api"
	"github.com/dokzlo13/climated/internal/apply"
	"github.com/dokzlo13/climated/internal/config"
	"github.com/dokzlo13/climated/internal/coordinator"
	"github.com/dokzlo13/climated/internal/db"
	"github.com/dokzlo13/climated/internal/device"
	"github.com/dokzlo13/climated/internal/emitter"
	"github.com/dokzlo13/climated/internal/eventbus"
	"github.com/dokzlo13/climated/internal/history"
	"github.com/dokzlo13/climated/internal/ledger"
	"github.com/dokzlo13/climated/internal/metrics"
	"github.com/dokzlo13/climated/internal/notify"
	"github.com/dokzlo13/climated/internal/override"
	"github.com/dokzlo13/climated/internal/resolver"
	"github.com/dokzlo13/climated/internal/state"
	"github.com/dokzlo13/climated/internal/store"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg   *config.Config
	clock clock.Clock

	// Core infrastructure
	DB      *db.DB
	Ledger  *ledger.Ledger
	History *history.Store
	Bus     *eventbus.Bus
	Metrics *metrics.Metrics

	// Domain
	Store       *store.Store
	Calendar    resolver.Calendar
	Device      device.Adapter
	Coordinator *coordinator.Coordinator

	// High-level services
	Schedule  *ScheduleService
	Retention *RetentionService
	Health    *HealthService
	API       *APIService
}

// pinger is implemented by adapters that can check their upstream.
type pinger interface {
	Ping(ctx context.Context) error
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	cal, err := resolver.NewWeekCalendar(cfg.Calendar.Workdays, cfg.Calendar.Holidays)
	if err != nil {
		return nil, err
	}

	s := &Services{
		cfg:      cfg,
		clock:    newZonedClock(clock.New(), loc),
		Calendar: cal,
	}

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Metrics = metrics.New()
	s.Ledger = ledger.New(database.DB, s.clock)
	s.History = history.New(database.DB)
	s.Store = store.New(state.NewStore(database.DB, s.clock))
	report, err := s.Store.Load()
	if err != nil {
		s.Close()
		return nil, err
	}
	log.Info().
		Int("groups", report.Groups).
		Int("profiles", report.Profiles).
		Int("migrated", len(report.Migrated)).
		Int("repaired", len(report.Repaired)).
		Int("quarantined", len(report.Quarantined)).
		Msg("Schedules loaded")

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())
	s.Bus.OnDrop(s.Metrics.EventDropped)
	emitter.RecordToLedger(s.Bus, s.Ledger)

	notifier := notify.New(cfg.Notify.Webhooks, cfg.Notify.Timeout.Duration())
	notifier.OnError(func(string, error) { s.Metrics.WebhookErrors.Inc() })
	notifier.Attach(s.Bus)

	switch cfg.Device.Driver {
	case "homeassistant":
		s.Device = device.NewHomeAssistant(cfg.Device.URL, cfg.Device.Token, cfg.Device.Timeout.Duration(), cfg.Device.RateLimitRPS)
	default:
		log.Warn().Msg("Using in-memory device driver; no real devices will be driven")
		s.Device = device.NewMemory(true)
	}

	s.Coordinator = coordinator.New(
		s.Store,
		override.NewManager(cal, s.History),
		apply.NewEngine(s.Device, cfg.Coordinator.CallTimeout.Duration(), s.Metrics),
		emitter.New(s.Bus, s.clock),
		cal,
		coordinator.Options{
			TickInterval: cfg.Coordinator.TickInterval.Duration(),
			Workers:      cfg.Coordinator.Workers,
			Clock:        s.clock,
			History:      s.History,
			Metrics:      s.Metrics,
		},
	)

	s.Schedule = NewScheduleService(cfg, s.Coordinator, s.Store, cal, s.clock)
	s.Retention = NewRetentionService(cfg, s.Ledger, s.History, s.clock, loc)
	s.Health = NewHealthService(cfg, s.Metrics)
	s.API = NewAPIService(cfg, api.New(cfg.API.Host, cfg.API.Port, s.Store, s.Coordinator, cal, s.clock))

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a background service fails.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if p, ok := s.Device.(pinger); ok {
		pingCtx, cancel := context.WithTimeout(ctx, s.cfg.Device.Timeout.Duration())
		if err := p.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Str("url", s.cfg.Device.URL).Msg("Device API not reachable yet, calls will be retried")
		} else {
			log.Info().Str("url", s.cfg.Device.URL).Msg("Connected to device API")
		}
		cancel()
	}

	// Start all background services
	s.Schedule.Start(ctx, onFatalError)
	if err := s.Retention.Start(ctx); err != nil {
		return err
	}
	s.Health.Start(ctx)
	s.API.Start(ctx, onFatalError)

	s.Health.SetReady(true)
	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Health.SetReady(false)
	s.Retention.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
	defer cancel()
	s.Schedule.Wait(ctx)

	// Let in-flight events reach the ledger and webhooks before the database closes
	s.Bus.Close(ctx)

	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if c, ok := s.Device.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close device adapter")
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

// retentionCutoff converts a retention in days to a duration.
func retentionCutoff(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}
