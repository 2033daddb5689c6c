package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"autocare/internal/queue"
)

const sweepBatch = 100

type Enqueuer interface {
	Enqueue(ctx context.Context, values map[string]any) (string, error)
}

// PendingFinder lists diagnostics still pending since before t.
type PendingFinder interface {
	ListPendingBefore(ctx context.Context, t time.Time, limit int) ([]string, error)
}

type Scheduler struct {
	cron         *cron.Cron
	queue        Enqueuer
	pending      PendingFinder
	pendingAfter time.Duration
	now          func() time.Time
	log          zerolog.Logger
}

func NewScheduler(queue Enqueuer, pending PendingFinder, pendingAfter time.Duration, log zerolog.Logger) *Scheduler {
	if pendingAfter <= 0 {
		pendingAfter = 5 * time.Minute
	}
	return &Scheduler{
		cron:         cron.New(cron.WithSeconds()),
		queue:        queue,
		pending:      pending,
		pendingAfter: pendingAfter,
		now:          time.Now,
		log:          log.With().Str("component", "scheduler").Logger(),
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil {
		return nil
	}

	if _, err := s.cron.AddFunc("0 0 0 * * *", s.enqueueCleanup); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc("0 */10 * * * *", s.requeuePending); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron loop and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler jobs still running at shutdown")
	}
}

func (s *Scheduler) enqueueCleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.queue.Enqueue(ctx, queue.CleanupTask()); err != nil {
		s.log.Error().Err(err).Msg("enqueue cleanup failed")
	}
}

// requeuePending re-enqueues diagnostics whose task was lost or never
// published.
func (s *Scheduler) requeuePending() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.sweep(ctx)
}

func (s *Scheduler) sweep(ctx context.Context) int {
	if s.pending == nil {
		return 0
	}
	ids, err := s.pending.ListPendingBefore(ctx, s.now().Add(-s.pendingAfter), sweepBatch)
	if err != nil {
		s.log.Error().Err(err).Msg("list pending diagnostics failed")
		return 0
	}
	queued := 0
	for _, id := range ids {
		if _, err := s.queue.Enqueue(ctx, queue.DiagnoseTask(id)); err != nil {
			s.log.Error().Err(err).Str("diagnostic_id", id).Msg("requeue diagnostic failed")
			continue
		}
		queued++
	}
	if queued > 0 {
		s.log.Info().Int("count", queued).Msg("requeued pending diagnostics")
	}
	return queued
}
