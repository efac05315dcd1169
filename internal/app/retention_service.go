package app

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/climated/internal/config"
	"github.com/dokzlo13/climated/internal/history"
	"github.com/dokzlo13/climated/internal/ledger"
)

// RetentionService prunes old ledger and advance history rows on a cron schedule.
type RetentionService struct {
	cfg     *config.Config
	ledger  *ledger.Ledger
	history *history.Store
	clock   clock.Clock
	cron    *cron.Cron
}

// NewRetentionService creates a new RetentionService.
func NewRetentionService(
	cfg *config.Config,
	l *ledger.Ledger,
	h *history.Store,
	clk clock.Clock,
	loc *time.Location,
) *RetentionService {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &RetentionService{
		cfg:     cfg,
		ledger:  l,
		history: h,
		clock:   clk,
		cron:    cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
	}
}

// Start registers the cleanup job. A non-positive retention disables it.
func (s *RetentionService) Start(ctx context.Context) error {
	if s.cfg.Ledger.RetentionDays <= 0 {
		log.Info().Msg("Ledger retention is disabled")
		return nil
	}

	expr := s.cfg.Ledger.CleanupSchedule
	if _, err := s.cron.AddFunc(expr, s.Cleanup); err != nil {
		return fmt.Errorf("invalid ledger.cleanup_schedule %q: %w", expr, err)
	}
	s.cron.Start()

	log.Info().
		Str("schedule", expr).
		Int("retention_days", s.cfg.Ledger.RetentionDays).
		Msg("Ledger retention scheduled")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the cron scheduler and waits for a running cleanup to finish.
func (s *RetentionService) Stop() {
	<-s.cron.Stop().Done()
}

// Cleanup deletes ledger entries and ended advance history older than the retention period.
func (s *RetentionService) Cleanup() {
	retention := retentionCutoff(s.cfg.Ledger.RetentionDays)

	deleted, err := s.ledger.DeleteOlderThan(retention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
	}

	deleted, err = s.history.DeleteOlderThan(s.clock.Now().Add(-retention))
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old advance history")
	} else if deleted > 0 {
		log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old advance history")
	}
}
