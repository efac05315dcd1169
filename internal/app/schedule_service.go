package app

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/config"
	"github.com/dokzlo13/climated/internal/coordinator"
	"github.com/dokzlo13/climated/internal/resolver"
	"github.com/dokzlo13/climated/internal/store"
)

// ScheduleService runs the coordinator loop and the periodic schedule printout.
type ScheduleService struct {
	cfg      *config.Config
	coord    *coordinator.Coordinator
	store    *store.Store
	calendar resolver.Calendar
	clock    clock.Clock
	done     chan struct{}
}

// NewScheduleService creates a new ScheduleService.
func NewScheduleService(
	cfg *config.Config,
	coord *coordinator.Coordinator,
	st *store.Store,
	cal resolver.Calendar,
	clk clock.Clock,
) *ScheduleService {
	return &ScheduleService{
		cfg:      cfg,
		coord:    coord,
		store:    st,
		calendar: cal,
		clock:    clk,
		done:     make(chan struct{}),
	}
}

// Start runs the coordinator until ctx is cancelled.
func (s *ScheduleService) Start(ctx context.Context, onFatalError func(error)) {
	go func() {
		defer close(s.done)
		if err := s.coord.Run(ctx); err != nil {
			onFatalError(fmt.Errorf("coordinator: %w", err))
		}
	}()

	if interval := s.cfg.Log.PrintSchedule.Duration(); interval > 0 {
		s.PrintSchedules()
		go s.runPrinter(ctx, interval)
	}
}

// Wait blocks until the coordinator loop has returned or ctx expires.
func (s *ScheduleService) Wait(ctx context.Context) {
	select {
	case <-s.done:
	case <-ctx.Done():
		log.Warn().Msg("Coordinator did not stop in time")
	}
}

func (s *ScheduleService) runPrinter(ctx context.Context, interval time.Duration) {
	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.PrintSchedules()
		}
	}
}

// PrintSchedules logs today's activations of every active group.
func (s *ScheduleService) PrintSchedules() {
	now := s.clock.Now()
	for _, g := range s.store.Groups() {
		if !g.Active() {
			continue
		}
		_, sched, err := s.store.Effective(g.Name)
		if err != nil {
			continue
		}
		log.Info().Msg("\n" + resolver.FormatDay(g.Name, sched, now, now, s.calendar))
	}
}
