// Package schedule models when a job fires: either a single instant or an
// RFC 5545 recurrence rule, plus the fluent builder producers use to
// construct RRULE strings.
package schedule

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"
)

// ErrInvalidSchedule is returned when a Spec cannot be constructed: both (or
// neither) of "at" and "rrule" were supplied, the RRULE body failed to
// parse, the timezone name is not a known IANA zone, or the one-shot
// instant carries no usable timestamp.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Raw is the wire shape of the "schedule" field on a ScheduleRequest
// command: exactly one of At or RRule must be set.
type Raw struct {
	At    *time.Time `json:"at,omitempty"`
	RRule *string    `json:"rrule,omitempty"`
}

// Spec is a tagged variant describing when a job fires. The zero value is
// not valid; construct one with New, NewAt, or NewRRule.
type Spec struct {
	at       time.Time
	rrule    string
	timezone string
	rule     *rrule.RRule
}

// New builds a Spec from the wire representation of a ScheduleRequest's
// "schedule" field, anchoring any RRULE at dtstart and carrying timezone
// alongside it for display (RFC 5545 keeps TZID out of the RRULE body
// itself).
func New(raw Raw, timezone string, dtstart time.Time) (Spec, error) {
	hasAt := raw.At != nil
	hasRRule := raw.RRule != nil && *raw.RRule != ""
	switch {
	case hasAt == hasRRule:
		return Spec{}, ErrInvalidSchedule
	case hasAt:
		return NewAt(*raw.At)
	default:
		return NewRRule(*raw.RRule, timezone, dtstart)
	}
}

// NewAt builds a one-shot Spec firing exactly at t. t must not be the zero
// time.Time — Go's time.Time is always timezone-aware, so the zero value
// stands in for "no timestamp supplied" in this port of the spec's
// "missing timezone" failure.
func NewAt(t time.Time) (Spec, error) {
	if t.IsZero() {
		return Spec{}, ErrInvalidSchedule
	}
	return Spec{at: t.UTC()}, nil
}

// NewRRule builds a recurring Spec from an RFC 5545 RRULE body (without a
// leading "RRULE:" or DTSTART line), anchored at dtstart in UTC. timezone
// is an optional IANA zone name carried alongside the rule for display —
// it is never embedded in the RRULE body per RFC 5545.
func NewRRule(body string, timezone string, dtstart time.Time) (Spec, error) {
	if body == "" || dtstart.IsZero() {
		return Spec{}, ErrInvalidSchedule
	}
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return Spec{}, ErrInvalidSchedule
		}
	}

	opt, err := rrule.StrToROption(body)
	if err != nil {
		return Spec{}, ErrInvalidSchedule
	}
	opt.Dtstart = dtstart.UTC()

	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return Spec{}, ErrInvalidSchedule
	}

	return Spec{rrule: body, timezone: timezone, rule: rule}, nil
}

// IsRecurring reports whether this Spec is the RRULE variant.
func (s Spec) IsRecurring() bool {
	return s.rule != nil
}

// RRule returns the raw RRULE body, or "" for a one-shot Spec.
func (s Spec) RRule() string {
	return s.rrule
}

// Timezone returns the IANA zone name carried alongside an RRULE Spec, or
// "" if none was set or the Spec is one-shot.
func (s Spec) Timezone() string {
	return s.timezone
}

// NextAfter returns the smallest occurrence strictly greater than t, or
// (zero, false) if the spec is exhausted (one-shot already fired, or the
// RRULE's UNTIL/COUNT bound has been reached).
//
// Calling NextAfter twice with the same t on the same Spec always returns
// the same result (idempotence of inquiry), and for t1 <= t2,
// NextAfter(t1) precedes-or-equals NextAfter(t2) (monotonicity).
func (s Spec) NextAfter(t time.Time) (time.Time, bool) {
	if !s.IsRecurring() {
		if s.at.After(t) {
			return s.at, true
		}
		return time.Time{}, false
	}

	next := s.rule.After(t, false)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next.UTC(), true
}
