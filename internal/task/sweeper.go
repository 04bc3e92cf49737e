package task

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"reelmint/internal/providers/video"
)

// Sweeper bounds the staleness of tasks stuck in SUBMITTED. Tasks with
// a provider task id are re-polled; tasks whose submission was never
// confirmed are failed (and refunded) once they exceed the give-up
// cutoff. Both paths go through the state machine's single entry point,
// so the sweep can race webhooks and polls safely.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	// pollAfter is how long a task may sit in SUBMITTED before the sweep
	// re-polls it; giveUpAfter is when an unconfirmed submission is
	// declared failed.
	pollAfter   time.Duration
	giveUpAfter time.Duration
	batchSize   int
	logger      zerolog.Logger
}

func NewSweeper(svc *Service, interval, pollAfter, giveUpAfter time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if pollAfter <= 0 {
		pollAfter = 2 * time.Minute
	}
	if giveUpAfter <= 0 {
		giveUpAfter = 30 * time.Minute
	}
	return &Sweeper{
		svc:         svc,
		interval:    interval,
		pollAfter:   pollAfter,
		giveUpAfter: giveUpAfter,
		batchSize:   50,
		logger:      logger,
	}
}

// Run loops until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	now := time.Now().UTC()
	stale, err := s.svc.store.Tasks().ListStaleSubmitted(ctx, now.Add(-s.pollAfter), s.batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweep: list stale tasks")
		return
	}
	for _, t := range stale {
		if ctx.Err() != nil {
			return
		}
		switch {
		case t.ProviderTaskID != "":
			adapter, err := s.svc.providers.Get(t.Provider)
			if err != nil {
				s.logger.Error().Err(err).Str("task_id", t.ID).Msg("sweep: unknown provider")
				continue
			}
			st, err := adapter.Poll(ctx, t.ProviderTaskID)
			if err != nil {
				s.logger.Warn().Err(err).Str("task_id", t.ID).Msg("sweep: poll failed")
				continue
			}
			if _, err := s.svc.ApplyStatusUpdate(ctx, t.ID, st, SourceSweep); err != nil {
				s.logger.Error().Err(err).Str("task_id", t.ID).Msg("sweep: apply update")
			}

		case t.SubmittedAt != nil && now.Sub(*t.SubmittedAt) > s.giveUpAfter:
			st := video.Status{State: video.StateFailed, Reason: "submission never confirmed by provider"}
			if _, err := s.svc.ApplyStatusUpdate(ctx, t.ID, st, SourceSweep); err != nil {
				s.logger.Error().Err(err).Str("task_id", t.ID).Msg("sweep: fail unconfirmed task")
			}
		}
	}
}
