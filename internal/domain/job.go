package domain

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrPastSchedule   = errors.New("schedule has no future occurrence")
	ErrInvalidCancel  = errors.New("cancel command has an invalid job id")
	ErrInvalidMessage = errors.New("command message is malformed")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
)

// Job is a row in the jobs table: a durable, priority-queued unit of work
// that fires a "due" event at or after NextRunAt.
type Job struct {
	ID      uuid.UUID
	JobType string
	Payload json.RawMessage
	RRule   *string // nil iff one-off

	// DTStart anchors the RRULE's occurrence series. It is fixed at
	// creation and never changes; NextAfter must always be computed
	// against it, never against the row's current NextRunAt, or a
	// COUNT/UNTIL-bounded series never terminates.
	DTStart   time.Time
	NextRunAt time.Time
	Retries   int
	Status    Status
	CreatedAt time.Time
}

// IsRecurring reports whether this row reschedules itself instead of
// terminating after a single dispatch.
func (j *Job) IsRecurring() bool {
	return j.RRule != nil
}

// DueEvent is the JSON payload published to the event exchange with
// routing key "due" when a job fires.
type DueEvent struct {
	ID      uuid.UUID       `json:"id"`
	JobType string          `json:"job_type"`
	Payload json.RawMessage `json:"payload"`
	FiredAt time.Time       `json:"fired_at"`
	Attempt int             `json:"attempt"`
}
