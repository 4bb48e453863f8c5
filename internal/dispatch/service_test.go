package dispatch_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/dispatch"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/domain"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/repository"
	"github.com/google/uuid"
)

type fakePublisher struct {
	published  [][]byte
	failOnCall int // 1-indexed call number to fail, 0 = never fail
	calls      int
}

func (f *fakePublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	f.calls++
	if f.failOnCall != 0 && f.calls == f.failOnCall {
		return errors.New("publish failed")
	}
	f.published = append(f.published, body)
	return nil
}

type fakeRepo struct {
	batch       *repository.ClaimedBatch
	claimErr    error
	claims      int
	rolledBack  bool
	committed   bool
	rescheduled map[uuid.UUID]time.Time
	markedDone  map[uuid.UUID]bool
}

func newFakeRepo(jobs []*domain.Job) *fakeRepo {
	r := &fakeRepo{
		rescheduled: make(map[uuid.UUID]time.Time),
		markedDone:  make(map[uuid.UUID]bool),
	}
	r.batch = &repository.ClaimedBatch{
		Jobs: jobs,
		Reschedule: func(ctx context.Context, id uuid.UUID, nextRunAt time.Time) error {
			r.rescheduled[id] = nextRunAt
			return nil
		},
		MarkDone: func(ctx context.Context, id uuid.UUID) error {
			r.markedDone[id] = true
			return nil
		},
		Commit: func(ctx context.Context) error {
			r.committed = true
			return nil
		},
		Rollback: func(ctx context.Context) error {
			r.rolledBack = true
			return nil
		},
	}
	return r
}

func (r *fakeRepo) Insert(ctx context.Context, job *domain.Job) (bool, error) { return true, nil }
func (r *fakeRepo) Cancel(ctx context.Context, id uuid.UUID) (int, error)     { return 0, nil }

// ClaimDue hands back the seeded batch exactly once; every later call
// returns an empty batch so the test's Run loop doesn't keep re-firing
// the same jobs forever.
func (r *fakeRepo) ClaimDue(ctx context.Context, now time.Time, limit int) (*repository.ClaimedBatch, error) {
	if r.claimErr != nil {
		return nil, r.claimErr
	}
	r.claims++
	if r.claims == 1 {
		return r.batch, nil
	}
	return &repository.ClaimedBatch{
		Rollback: func(ctx context.Context) error { return nil },
		Commit:   func(ctx context.Context) error { return nil },
	}, nil
}

func TestDispatch_OneShotJobMarkedDone(t *testing.T) {
	job := &domain.Job{ID: uuid.New(), JobType: "notify", NextRunAt: time.Now().UTC(), Status: domain.StatusPending}
	repo := newFakeRepo([]*domain.Job{job})
	pub := &fakePublisher{}

	svc := dispatch.New(repo, pub, slog.Default(), 10, 10*time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = svc.Run(ctx)
		close(done)
	}()
	<-ctx.Done()
	<-done

	if !repo.markedDone[job.ID] {
		t.Fatal("expected one-shot job to be marked done")
	}
	if !repo.committed {
		t.Fatal("expected batch to commit")
	}
	if len(pub.published) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pub.published))
	}
}

func TestDispatch_RecurringJobRescheduled(t *testing.T) {
	now := time.Now().UTC()
	rrule := "FREQ=DAILY;COUNT=5"
	job := &domain.Job{ID: uuid.New(), JobType: "digest", RRule: &rrule, DTStart: now, NextRunAt: now, Status: domain.StatusPending}
	repo := newFakeRepo([]*domain.Job{job})
	pub := &fakePublisher{}

	svc := dispatch.New(repo, pub, slog.Default(), 10, 10*time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = svc.Run(ctx)

	next, ok := repo.rescheduled[job.ID]
	if !ok {
		t.Fatal("expected recurring job to be rescheduled")
	}
	if !next.After(now) {
		t.Fatalf("expected next run after %v, got %v", now, next)
	}
}

// fakeRecurringRepo simulates a job being reclaimed across repeated ticks,
// mutating the same row in place the way Postgres would — this is what
// catches a COUNT-bounded series that never terminates because the
// scheduler re-anchors DTSTART to next_run_at on every fire instead of
// holding it fixed.
type fakeRecurringRepo struct {
	job         *domain.Job
	markedDone  bool
	reschedules int
}

func (r *fakeRecurringRepo) Insert(ctx context.Context, job *domain.Job) (bool, error) { return true, nil }
func (r *fakeRecurringRepo) Cancel(ctx context.Context, id uuid.UUID) (int, error)     { return 0, nil }

func (r *fakeRecurringRepo) ClaimDue(ctx context.Context, now time.Time, limit int) (*repository.ClaimedBatch, error) {
	if r.markedDone || r.job.NextRunAt.After(now) {
		return &repository.ClaimedBatch{
			Commit:   func(ctx context.Context) error { return nil },
			Rollback: func(ctx context.Context) error { return nil },
		}, nil
	}
	return &repository.ClaimedBatch{
		Jobs: []*domain.Job{r.job},
		Reschedule: func(ctx context.Context, id uuid.UUID, nextRunAt time.Time) error {
			r.reschedules++
			r.job.NextRunAt = nextRunAt
			r.job.Retries++
			return nil
		},
		MarkDone: func(ctx context.Context, id uuid.UUID) error {
			r.markedDone = true
			return nil
		},
		Commit:   func(ctx context.Context) error { return nil },
		Rollback: func(ctx context.Context) error { return nil },
	}, nil
}

func TestDispatch_RecurringSeriesTerminatesAtCount(t *testing.T) {
	dtstart := time.Now().UTC().Add(-2 * 24 * time.Hour)
	rrule := "FREQ=DAILY;COUNT=3"
	job := &domain.Job{ID: uuid.New(), JobType: "digest", RRule: &rrule, DTStart: dtstart, NextRunAt: dtstart, Status: domain.StatusPending}
	repo := &fakeRecurringRepo{job: job}
	pub := &fakePublisher{}

	svc := dispatch.New(repo, pub, slog.Default(), 10, time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = svc.Run(ctx)

	if !repo.markedDone {
		t.Fatal("expected a COUNT=3 series to terminate instead of rescheduling forever")
	}
	if repo.reschedules != 2 {
		t.Fatalf("expected exactly 2 reschedules before the series finished, got %d", repo.reschedules)
	}
	if len(pub.published) != 3 {
		t.Fatalf("expected exactly 3 publishes for a COUNT=3 series, got %d", len(pub.published))
	}
}

func TestDispatch_PublishFailureRollsBackBatch(t *testing.T) {
	job1 := &domain.Job{ID: uuid.New(), NextRunAt: time.Now().UTC()}
	job2 := &domain.Job{ID: uuid.New(), NextRunAt: time.Now().UTC()}
	repo := newFakeRepo([]*domain.Job{job1, job2})
	pub := &fakePublisher{failOnCall: 1}

	svc := dispatch.New(repo, pub, slog.Default(), 10, 10*time.Millisecond, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_ = svc.Run(ctx)

	if !repo.rolledBack {
		t.Fatal("expected batch rollback after publish failure")
	}
	if repo.committed {
		t.Fatal("expected batch not to commit after publish failure")
	}
	if len(repo.markedDone) != 0 {
		t.Fatal("expected no job marked done after rollback")
	}
}
