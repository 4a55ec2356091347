package services

import (
	"context"

	"github.com/playarena/credit_engine/internal/storage"
	"github.com/playarena/credit_engine/pkg/logger"
)

// StatsJob is one account's aggregate update for a settled match.
type StatsJob struct {
	MatchID    string
	AccountID  uint
	OpponentID *uint
	Outcome    storage.MatchOutcome
}

// StatsWorker applies aggregate statistics on a fire-and-forget path
// after settlement commits. The queue is bounded; when it is full, jobs
// are dropped and logged rather than backpressuring settlement. Pending
// exposes the current lag.
type StatsWorker struct {
	store storage.Datastore
	jobs  chan StatsJob
}

func NewStatsWorker(store storage.Datastore, queueSize int) *StatsWorker {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &StatsWorker{
		store: store,
		jobs:  make(chan StatsJob, queueSize),
	}
}

// Enqueue hands a job to the worker without blocking. Returns false
// when the queue is full and the job was dropped.
func (w *StatsWorker) Enqueue(job StatsJob) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		logger.Warn("Stats queue full, dropping update",
			"match_id", job.MatchID, "account_id", job.AccountID)
		return false
	}
}

// Pending reports the number of queued, not yet applied updates.
func (w *StatsWorker) Pending() int {
	return len(w.jobs)
}

// Run processes jobs until ctx is cancelled. Failures are logged and
// swallowed; a stats update must never fail a settlement that already
// committed.
func (w *StatsWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("Stats worker stopping", "pending", len(w.jobs))
			return
		case job := <-w.jobs:
			w.apply(job)
		}
	}
}

func (w *StatsWorker) apply(job StatsJob) {
	if err := w.store.Accounts().ApplyMatchOutcome(job.AccountID, job.Outcome); err != nil {
		logger.Error("Failed to apply match stats",
			"match_id", job.MatchID, "account_id", job.AccountID, "error", err)
		return
	}

	if job.OpponentID != nil {
		if err := w.store.Accounts().BumpHeadToHead(job.AccountID, *job.OpponentID, job.Outcome); err != nil {
			logger.Error("Failed to update head-to-head stats",
				"match_id", job.MatchID, "account_id", job.AccountID, "error", err)
		}
	}
}
