package services

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/playarena/credit_engine/internal/storage"
	"github.com/playarena/credit_engine/pkg/errors"
	"github.com/playarena/credit_engine/pkg/logger"
)

// Sweeper advances stale payment orders on a fixed interval without any
// external trigger: pending orders past their expiry horizon become
// expired, and error orders older than twice the horizon become failed.
// Both sweeps are bulk non-transactional updates whose per-row guards
// make a partial failure safe to retry next tick.
type Sweeper struct {
	store     storage.Datastore
	interval  time.Duration
	horizon   time.Duration
	scheduler gocron.Scheduler
}

func NewSweeper(store storage.Datastore, interval, horizon time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if horizon <= 0 {
		horizon = 30 * time.Minute
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		horizon:  horizon,
	}
}

func (s *Sweeper) Start() error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to create sweeper scheduler")
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.SweepOnce),
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to schedule sweep job")
	}

	scheduler.Start()
	s.scheduler = scheduler

	logger.Info("Payment sweeper started", "interval", s.interval, "horizon", s.horizon)
	return nil
}

func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		_ = s.scheduler.Shutdown()
	}
}

// SweepOnce runs both sweeps immediately. Exposed so boot and tests can
// trigger a pass outside the timer.
func (s *Sweeper) SweepOnce() {
	now := time.Now().UTC()

	expired, err := s.store.Orders().ExpireStalePending(now)
	if err != nil {
		logger.Error("Sweep of pending orders failed", "error", err)
	} else if expired > 0 {
		logger.Info("Expired stale pending orders", "count", expired)
	}

	failed, err := s.store.Orders().FailStaleErrors(now.Add(-2 * s.horizon))
	if err != nil {
		logger.Error("Sweep of error orders failed", "error", err)
	} else if failed > 0 {
		logger.Info("Failed stale error orders", "count", failed)
	}
}
