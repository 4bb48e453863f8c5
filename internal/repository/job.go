package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/google/uuid"
)

// JobRepository depends on interface, not concrete implementation: lets the
// ingest/dispatch services swap the store later without touching callers,
// and lets tests pass a fake.
type JobRepository interface {
	// Insert persists a new job row. inserted is false (with a nil error)
	// if a row with this ID already existed and nothing was written —
	// callers can't tell a retried at-least-once command apart from a
	// genuine conflict at the repository layer, so they treat both as
	// success.
	Insert(ctx context.Context, job *domain.Job) (inserted bool, err error)

	// Cancel marks a pending job cancelled. rowsAffected is 0 if the job
	// didn't exist or was already done/cancelled — callers treat that as
	// a no-op, not an error.
	Cancel(ctx context.Context, id uuid.UUID) (rowsAffected int, err error)

	// ClaimDue opens a transaction, locks up to limit pending jobs whose
	// next_run_at <= now (FOR UPDATE SKIP LOCKED, ordered by next_run_at
	// ascending), and returns them wrapped in a ClaimedBatch the caller
	// must either Commit or Rollback.
	ClaimDue(ctx context.Context, now time.Time, limit int) (*ClaimedBatch, error)
}

// ClaimedBatch is a transaction-scoped view over a set of claimed jobs.
// The caller must call Reschedule or MarkDone for every job in Jobs, then
// Commit; calling Rollback discards every change the batch made. A batch
// that is neither committed nor rolled back keeps its transaction open.
type ClaimedBatch struct {
	Jobs []*domain.Job

	Reschedule func(ctx context.Context, id uuid.UUID, nextRunAt time.Time) error
	MarkDone   func(ctx context.Context, id uuid.UUID) error
	Commit     func(ctx context.Context) error
	Rollback   func(ctx context.Context) error
}
