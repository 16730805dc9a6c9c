package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"claimaudit/internal/queue"
)

// RunWorker pops audit jobs until ctx is done, running at most
// Worker.Concurrency audits at once.
func (a *App) RunWorker(ctx context.Context) error {
	if a.Queue == nil {
		return ErrNoQueue
	}
	log := a.Logger.With().Str("component", "worker").Logger()
	limit := a.Config.Worker.Concurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	log.Info().Int("concurrency", limit).Msg("worker started")
	for {
		select {
		case <-gctx.Done():
			_ = g.Wait()
			return nil
		default:
		}
		job, err := a.Queue.PopAuditJob(gctx, a.Config.Worker.PollTimeout)
		if err != nil {
			if !errors.Is(err, queue.ErrEmpty) && gctx.Err() == nil {
				log.Warn().Err(err).Msg("pop audit job failed")
				select {
				case <-gctx.Done():
				case <-time.After(time.Second):
				}
			}
			continue
		}
		g.Go(func() error {
			a.processJob(gctx, job)
			return nil
		})
	}
}

// processJob runs a popped job to completion even when the worker is
// shutting down. The job has already left the queue, so cancelling it
// would lose it or record a mock result for a reachable provider.
func (a *App) processJob(ctx context.Context, job queue.Job) {
	log := a.Logger.With().Str("component", "worker").Int64("claim_id", job.ClaimID).Logger()
	jctx, cancel := jobContext(ctx, a.Config.Inference.Timeout)
	defer cancel()
	res, err := a.AuditClaim(jctx, job.ClaimID, job.Model)
	if err != nil {
		log.Error().Err(err).Msg("audit job failed")
		return
	}
	log.Info().
		Str("routing", string(res.Details.Routing)).
		Float64("fraud_score", res.Details.FraudScore).
		Msg("processed audit job")
}

// jobContext detaches a job from worker cancellation while keeping its
// values. The deadline covers a primary and a fallback provider call.
func jobContext(ctx context.Context, providerTimeout time.Duration) (context.Context, context.CancelFunc) {
	if providerTimeout <= 0 {
		providerTimeout = time.Minute
	}
	return context.WithTimeout(context.WithoutCancel(ctx), 2*providerTimeout+10*time.Second)
}
