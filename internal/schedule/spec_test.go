package schedule_test

import (
	"testing"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/internal/schedule"
)

func TestNewAt_RejectsZeroTime(t *testing.T) {
	_, err := schedule.NewAt(time.Time{})
	if err != schedule.ErrInvalidSchedule {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestNewAt_NextAfter(t *testing.T) {
	fire := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	spec, err := schedule.NewAt(fire)
	if err != nil {
		t.Fatalf("NewAt: %v", err)
	}

	next, ok := spec.NextAfter(fire.Add(-time.Second))
	if !ok || !next.Equal(fire) {
		t.Fatalf("expected %v, got %v ok=%v", fire, next, ok)
	}

	_, ok = spec.NextAfter(fire)
	if ok {
		t.Fatal("expected exhausted spec after its own fire time")
	}
	_, ok = spec.NextAfter(fire.Add(time.Second))
	if ok {
		t.Fatal("expected exhausted spec after its fire time has passed")
	}
}

func TestNewRRule_InvalidBody(t *testing.T) {
	_, err := schedule.NewRRule("not a valid rrule", "", time.Now())
	if err != schedule.ErrInvalidSchedule {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestNewRRule_InvalidTimezone(t *testing.T) {
	_, err := schedule.NewRRule("FREQ=DAILY", "Not/AZone", time.Now())
	if err != schedule.ErrInvalidSchedule {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestNewRRule_DailyOccurrences(t *testing.T) {
	dtstart := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	spec, err := schedule.NewRRule("FREQ=DAILY;COUNT=3", "UTC", dtstart)
	if err != nil {
		t.Fatalf("NewRRule: %v", err)
	}
	if !spec.IsRecurring() {
		t.Fatal("expected recurring spec")
	}

	first, ok := spec.NextAfter(dtstart.Add(-time.Second))
	if !ok || !first.Equal(dtstart) {
		t.Fatalf("expected first occurrence %v, got %v ok=%v", dtstart, first, ok)
	}

	second, ok := spec.NextAfter(first.Add(time.Microsecond))
	if !ok || !second.Equal(dtstart.AddDate(0, 0, 1)) {
		t.Fatalf("expected second occurrence %v, got %v ok=%v", dtstart.AddDate(0, 0, 1), second, ok)
	}

	third, ok := spec.NextAfter(second.Add(time.Microsecond))
	if !ok || !third.Equal(dtstart.AddDate(0, 0, 2)) {
		t.Fatalf("expected third occurrence, got %v ok=%v", third, ok)
	}

	_, ok = spec.NextAfter(third.Add(time.Microsecond))
	if ok {
		t.Fatal("expected exhausted series after COUNT=3")
	}
}

func TestNextAfter_Idempotent(t *testing.T) {
	dtstart := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	spec, err := schedule.NewRRule("FREQ=HOURLY;COUNT=5", "", dtstart)
	if err != nil {
		t.Fatalf("NewRRule: %v", err)
	}

	probe := dtstart.Add(30 * time.Minute)
	a, okA := spec.NextAfter(probe)
	b, okB := spec.NextAfter(probe)
	if okA != okB || !a.Equal(b) {
		t.Fatalf("expected idempotent NextAfter, got (%v,%v) and (%v,%v)", a, okA, b, okB)
	}
}

func TestNextAfter_Monotonic(t *testing.T) {
	dtstart := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	spec, err := schedule.NewRRule("FREQ=HOURLY;COUNT=10", "", dtstart)
	if err != nil {
		t.Fatalf("NewRRule: %v", err)
	}

	t1 := dtstart
	t2 := dtstart.Add(2 * time.Hour)
	n1, _ := spec.NextAfter(t1)
	n2, _ := spec.NextAfter(t2)
	if n1.After(n2) {
		t.Fatalf("expected NextAfter(t1) <= NextAfter(t2), got %v > %v", n1, n2)
	}
}

func TestNew_RejectsBothOrNeither(t *testing.T) {
	at := time.Now()
	rrule := "FREQ=DAILY"

	_, err := schedule.New(schedule.Raw{}, "", time.Now())
	if err != schedule.ErrInvalidSchedule {
		t.Fatalf("expected ErrInvalidSchedule for neither, got %v", err)
	}

	_, err = schedule.New(schedule.Raw{At: &at, RRule: &rrule}, "", time.Now())
	if err != schedule.ErrInvalidSchedule {
		t.Fatalf("expected ErrInvalidSchedule for both, got %v", err)
	}
}
