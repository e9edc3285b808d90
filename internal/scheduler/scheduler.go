// Package scheduler triggers pipeline runs on a fixed interval and
// broadcasts alerts after each successful run.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/elonfeng/narradar/internal/pipeline"
	"github.com/elonfeng/narradar/pkg/alert"
)

// Scheduler runs the detection pipeline periodically.
type Scheduler struct {
	pipe     *pipeline.Pipeline
	alertMgr *alert.Manager
	interval time.Duration
	days     int
	logger   *zap.Logger
}

// New creates a new scheduler.
func New(pipe *pipeline.Pipeline, alertMgr *alert.Manager, interval time.Duration, days int, logger *zap.Logger) *Scheduler {
	if interval == 0 {
		interval = 6 * time.Hour
	}
	if days == 0 {
		days = 14
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		pipe:     pipe,
		alertMgr: alertMgr,
		interval: interval,
		days:     days,
		logger:   logger,
	}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start.
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	report, err := s.pipe.Run(ctx, s.days)
	if err != nil {
		// A run may already be in flight if a manual trigger raced the tick.
		if errors.Is(err, pipeline.ErrRunInProgress) {
			s.logger.Warn("run already in progress, skipping tick")
			return
		}
		s.logger.Error("scheduled run failed", zap.Error(err))
		return
	}

	s.logger.Info("scheduled run complete",
		zap.Int("narratives", len(report.Narratives)),
		zap.Int("ideas", len(report.Ideas)))

	if s.alertMgr == nil || !s.alertMgr.HasNotifiers() {
		return
	}
	if err := s.alertMgr.NotifyStrong(ctx, report.Narratives, report.Ideas); err != nil {
		s.logger.Error("alert broadcast failed", zap.Error(err))
	}
}
