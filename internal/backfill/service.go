package backfill

import (
	"context"
	"fmt"
	"time"

	"claimaudit/internal/queue"
)

// Store is the slice of store.Store the backfill needs.
type Store interface {
	ListUnscoredClaims(ctx context.Context, limit int) ([]int64, error)
	LastAuditRunAt(ctx context.Context, claimID int64) (time.Time, bool, error)
}

type Queue interface {
	PushAuditJob(ctx context.Context, job queue.Job) error
}

type Service struct {
	Store     Store
	Queue     Queue
	Model     string
	BatchSize int
	// Cooldown skips claims audited more recently than this. Mock results
	// are never persisted, so those claims stay unscored between runs.
	Cooldown time.Duration
	DryRun   bool
	Now      func() time.Time
}

type Report struct {
	Enqueued int
	Skipped  int
}

func NewService(st Store, q Queue) *Service {
	return &Service{
		Store:     st,
		Queue:     q,
		BatchSize: 500,
		Cooldown:  time.Hour,
		Now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Run(ctx context.Context) (Report, error) {
	var report Report
	if s == nil || s.Store == nil {
		return report, nil
	}

	ids, err := s.Store.ListUnscoredClaims(ctx, s.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list unscored claims: %w", err)
	}
	now := s.Now()
	for _, id := range ids {
		if s.Cooldown > 0 {
			last, ok, err := s.Store.LastAuditRunAt(ctx, id)
			if err != nil {
				return report, fmt.Errorf("last audit for claim %d: %w", id, err)
			}
			if ok && now.Sub(last) < s.Cooldown {
				report.Skipped++
				continue
			}
		}
		if s.DryRun || s.Queue == nil {
			report.Skipped++
			continue
		}
		if err := s.Queue.PushAuditJob(ctx, queue.Job{ClaimID: id, Model: s.Model, RequestedAt: now}); err != nil {
			return report, fmt.Errorf("enqueue claim %d: %w", id, err)
		}
		report.Enqueued++
	}
	return report, nil
}
