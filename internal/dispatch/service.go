// Package dispatch claims due jobs from Postgres and publishes one
// ScheduleDue event per row, advancing or finishing each job only after
// its publish is confirmed.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/broker"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/schedule"
)

// publisher is the narrow surface Service needs from broker.Publisher.
type publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// gauge lets tests/metrics observe batch sizes without importing
// prometheus here.
type gauge interface {
	Observe(v float64)
}

// Service ticks, claims a batch of due jobs, and fires each one.
type Service struct {
	repo      repository.JobRepository
	publisher publisher
	logger    *slog.Logger

	lockBatch int
	tick      time.Duration

	batchSize gauge
}

// New builds a dispatch Service. batchSize may be nil.
func New(repo repository.JobRepository, pub publisher, logger *slog.Logger, lockBatch int, tick time.Duration, batchSize gauge) *Service {
	return &Service{
		repo:      repo,
		publisher: pub,
		logger:    logger.With("component", "dispatch"),
		lockBatch: lockBatch,
		tick:      tick,
		batchSize: batchSize,
	}
}

// Run loops until ctx is cancelled, sleeping tick between cycles that find
// nothing to do.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		worked, err := s.processBatch(ctx)
		if err != nil {
			s.logger.Warn("dispatch batch failed", "error", err)
		}
		if !worked {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.tick):
			}
		}
	}
}

// processBatch claims up to lockBatch due jobs, fires each in order, and
// commits only if every publish in the batch confirmed. Returns true only
// when a non-empty batch was committed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	batch, err := s.repo.ClaimDue(ctx, time.Now().UTC(), s.lockBatch)
	if err != nil {
		return false, err
	}
	if len(batch.Jobs) == 0 {
		return false, batch.Rollback(ctx)
	}

	if s.batchSize != nil {
		s.batchSize.Observe(float64(len(batch.Jobs)))
	}

	for _, job := range batch.Jobs {
		if err := s.fireJob(ctx, batch, job); err != nil {
			_ = batch.Rollback(ctx)
			return false, err
		}
	}

	if err := batch.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) fireJob(ctx context.Context, batch *repository.ClaimedBatch, job *domain.Job) error {
	firedAt := time.Now().UTC()
	event := domain.DueEvent{
		ID:      job.ID,
		JobType: job.JobType,
		Payload: job.Payload,
		FiredAt: firedAt,
		Attempt: job.Retries + 1,
	}

	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, broker.RoutingKeyDue, body); err != nil {
		return err
	}

	if job.IsRecurring() {
		rrule := *job.RRule
		spec, err := schedule.NewRRule(rrule, "", job.DTStart)
		if err != nil {
			return err
		}
		next, ok := spec.NextAfter(job.NextRunAt.Add(time.Microsecond))
		if !ok {
			s.logger.Info("recurring series finished", "job_id", job.ID)
			return batch.MarkDone(ctx, job.ID)
		}
		s.logger.Info("job rescheduled", "job_id", job.ID, "next_run_at", next)
		return batch.Reschedule(ctx, job.ID, next)
	}

	s.logger.Info("one-shot job done", "job_id", job.ID)
	return batch.MarkDone(ctx, job.ID)
}
