// Package ingest consumes ScheduleRequest and ScheduleCancel commands from
// the inbox queue and applies them against the jobs table.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/broker"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/requestid"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/schedule"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// scheduleRequest is the wire shape of a "request" command: create (or
// idempotently no-op re-create) a job.
type scheduleRequest struct {
	ID       uuid.UUID       `json:"id"`
	JobType  string          `json:"job_type"`
	Payload  json.RawMessage `json:"payload"`
	Schedule schedule.Raw    `json:"schedule"`
	Timezone string          `json:"timezone"`
}

// scheduleCancel is the wire shape of a "cancel" command.
type scheduleCancel struct {
	ID uuid.UUID `json:"id"`
}

// Service consumes the inbox queue and applies each command to repo.
type Service struct {
	consumer *broker.Consumer
	repo     repository.JobRepository
	logger   *slog.Logger

	requestsTotal counterByOutcome
	cancelsTotal  counterByOutcome
}

// counterByOutcome is satisfied by the metrics package's CounterVec; kept
// as a narrow interface so tests can supply a no-op.
type counterByOutcome interface {
	Inc(outcome string)
}

// New builds an ingest Service. requests/cancels may be nil if the caller
// doesn't want per-outcome counters recorded.
func New(consumer *broker.Consumer, repo repository.JobRepository, logger *slog.Logger, requests, cancels counterByOutcome) *Service {
	return &Service{
		consumer:      consumer,
		repo:          repo,
		logger:        logger.With("component", "ingest"),
		requestsTotal: requests,
		cancelsTotal:  cancels,
	}
}

// Run consumes deliveries until ctx is cancelled or the delivery channel
// closes.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-s.consumer.Deliveries:
			if !ok {
				return errors.New("ingest: delivery channel closed")
			}
			s.handle(ctx, d)
		}
	}
}

func (s *Service) handle(ctx context.Context, d amqp.Delivery) {
	id := requestid.New()
	ctx = requestid.WithRequestID(ctx, id)
	logger := s.logger.With("request_id", id, "routing_key", d.RoutingKey)

	var err error
	switch d.RoutingKey {
	case broker.RoutingKeyRequest:
		err = s.handleRequest(ctx, d.Body, logger)
	case broker.RoutingKeyCancel:
		err = s.handleCancel(ctx, d.Body, logger)
	default:
		logger.Warn("ignoring unknown routing key")
		_ = d.Ack(false)
		return
	}

	if err == nil {
		_ = d.Ack(false)
		return
	}

	if errors.Is(err, domain.ErrInvalidMessage) || errors.Is(err, domain.ErrPastSchedule) || errors.Is(err, domain.ErrInvalidCancel) {
		logger.Warn("rejecting command, routing to dead-letter", "error", err)
		_ = d.Reject(false)
		return
	}

	logger.Warn("transient failure handling command, requeueing", "error", err)
	_ = d.Reject(true)
}

func (s *Service) handleRequest(ctx context.Context, body []byte, logger *slog.Logger) error {
	var req scheduleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.incRequest("invalid")
		return domain.ErrInvalidMessage
	}
	if req.ID == uuid.Nil || req.JobType == "" {
		s.incRequest("invalid")
		return domain.ErrInvalidMessage
	}

	dtstart := time.Now().UTC()
	if req.Schedule.At != nil {
		dtstart = *req.Schedule.At
	}

	spec, err := schedule.New(req.Schedule, req.Timezone, dtstart)
	if err != nil {
		s.incRequest("invalid")
		return domain.ErrInvalidMessage
	}

	nextRun, ok := spec.NextAfter(time.Now().UTC().Add(-time.Microsecond))
	if !ok {
		s.incRequest("past")
		return domain.ErrPastSchedule
	}

	job := &domain.Job{
		ID:        req.ID,
		JobType:   req.JobType,
		Payload:   req.Payload,
		DTStart:   dtstart,
		NextRunAt: nextRun,
		Status:    domain.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if spec.IsRecurring() {
		rrule := spec.RRule()
		job.RRule = &rrule
	}

	inserted, err := s.repo.Insert(ctx, job)
	if err != nil {
		s.incRequest("error")
		return err
	}
	if inserted {
		logger.Info("job scheduled", "job_id", job.ID, "job_type", job.JobType, "next_run_at", job.NextRunAt)
		s.incRequest("inserted")
	} else {
		logger.Info("duplicate schedule request ignored", "job_id", job.ID)
		s.incRequest("duplicate")
	}
	return nil
}

func (s *Service) handleCancel(ctx context.Context, body []byte, logger *slog.Logger) error {
	var cmd scheduleCancel
	if err := json.Unmarshal(body, &cmd); err != nil || cmd.ID == uuid.Nil {
		s.incCancel("invalid")
		return domain.ErrInvalidCancel
	}

	rows, err := s.repo.Cancel(ctx, cmd.ID)
	if err != nil {
		s.incCancel("error")
		return err
	}
	if rows == 0 {
		logger.Info("cancel no-op: job absent or not pending", "job_id", cmd.ID)
		s.incCancel("noop")
	} else {
		logger.Info("job cancelled", "job_id", cmd.ID)
		s.incCancel("cancelled")
	}
	return nil
}

func (s *Service) incRequest(outcome string) {
	if s.requestsTotal != nil {
		s.requestsTotal.Inc(outcome)
	}
}

func (s *Service) incCancel(outcome string) {
	if s.cancelsTotal != nil {
		s.cancelsTotal.Inc(outcome)
	}
}
