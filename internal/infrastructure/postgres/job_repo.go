package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Insert(ctx context.Context, job *domain.Job) (bool, error) {
	query := `
		INSERT INTO jobs (id, job_type, payload, rrule, dtstart, next_run_at, retries, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		job.ID, job.JobType, job.Payload, job.RRule, job.DTStart, job.NextRunAt,
		job.Retries, job.Status, job.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("insert job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *JobRepository) Cancel(ctx context.Context, id uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = 'cancelled'
		WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return 0, fmt.Errorf("cancel job: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *JobRepository) ClaimDue(ctx context.Context, now time.Time, limit int) (*repository.ClaimedBatch, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin claim tx: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id, job_type, payload, rrule, dtstart, next_run_at, retries, status, created_at
		FROM jobs
		WHERE status = 'pending' AND next_run_at <= $1
		ORDER BY next_run_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, now, limit)
	if err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}

	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			rows.Close()
			_ = tx.Rollback(ctx)
			return nil, err
		}
		jobs = append(jobs, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("claim due jobs: %w", err)
	}

	return &repository.ClaimedBatch{
		Jobs: jobs,
		Reschedule: func(ctx context.Context, id uuid.UUID, nextRunAt time.Time) error {
			_, err := tx.Exec(ctx, `UPDATE jobs SET next_run_at = $2, retries = retries + 1 WHERE id = $1`, id, nextRunAt)
			return err
		},
		MarkDone: func(ctx context.Context, id uuid.UUID) error {
			_, err := tx.Exec(ctx, `UPDATE jobs SET status = 'done' WHERE id = $1`, id)
			return err
		},
		Commit: func(ctx context.Context) error {
			return tx.Commit(ctx)
		},
		Rollback: func(ctx context.Context) error {
			return tx.Rollback(ctx)
		},
	}, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJob is a private helper — avoids repeating Scan calls across multiple queries.
func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	err := row.Scan(
		&j.ID, &j.JobType, &j.Payload, &j.RRule, &j.DTStart, &j.NextRunAt,
		&j.Retries, &j.Status, &j.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	return &j, nil
}
