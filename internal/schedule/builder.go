package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Freq is one of the seven RFC 5545 FREQ values.
type Freq string

const (
	FreqSecondly Freq = "SECONDLY"
	FreqMinutely Freq = "MINUTELY"
	FreqHourly   Freq = "HOURLY"
	FreqDaily    Freq = "DAILY"
	FreqWeekly   Freq = "WEEKLY"
	FreqMonthly  Freq = "MONTHLY"
	FreqYearly   Freq = "YEARLY"
)

// fieldOrder is the canonical RFC 5545 field order this builder renders in.
var fieldOrder = []string{
	"FREQ", "INTERVAL", "BYSECOND", "BYMINUTE", "BYHOUR",
	"BYDAY", "BYMONTHDAY", "BYMONTH", "COUNT", "UNTIL",
}

// RRuleBuilder is a fluent constructor for RFC 5545 RRULE bodies, mirroring
// the producer-facing builder SDK this system's producers use to assemble
// ScheduleRequest.schedule.rrule strings. It is not itself used by the
// scheduler's own NextAfter computation (that parses whatever body the
// producer sent); it exists so producers don't hand-assemble RRULE text.
type RRuleBuilder struct {
	parts    map[string]string
	timezone string
	err      error
}

// NewRRuleBuilder starts a builder with no FREQ set; Build fails until one
// of the frequency constructors or Freq is called.
func NewRRuleBuilder() *RRuleBuilder {
	return &RRuleBuilder{parts: make(map[string]string)}
}

func (b *RRuleBuilder) setFreq(f Freq) *RRuleBuilder {
	b.parts["FREQ"] = string(f)
	return b
}

func Secondly() *RRuleBuilder { return NewRRuleBuilder().setFreq(FreqSecondly) }
func Minutely() *RRuleBuilder { return NewRRuleBuilder().setFreq(FreqMinutely) }
func Hourly() *RRuleBuilder   { return NewRRuleBuilder().setFreq(FreqHourly) }
func Daily() *RRuleBuilder    { return NewRRuleBuilder().setFreq(FreqDaily) }
func Weekly() *RRuleBuilder   { return NewRRuleBuilder().setFreq(FreqWeekly) }
func Monthly() *RRuleBuilder  { return NewRRuleBuilder().setFreq(FreqMonthly) }
func Yearly() *RRuleBuilder   { return NewRRuleBuilder().setFreq(FreqYearly) }

// Freq sets FREQ directly.
func (b *RRuleBuilder) Freq(f Freq) *RRuleBuilder {
	return b.setFreq(f)
}

// Interval sets INTERVAL; n must be >= 1.
func (b *RRuleBuilder) Interval(n int) *RRuleBuilder {
	if b.err != nil {
		return b
	}
	if n < 1 {
		b.err = fmt.Errorf("INTERVAL must be >= 1, got %d", n)
		return b
	}
	b.parts["INTERVAL"] = strconv.Itoa(n)
	return b
}

// Count sets COUNT; n must be >= 1. COUNT and UNTIL are mutually
// exclusive — setting one clears the other.
func (b *RRuleBuilder) Count(n int) *RRuleBuilder {
	if b.err != nil {
		return b
	}
	if n < 1 {
		b.err = fmt.Errorf("COUNT must be >= 1, got %d", n)
		return b
	}
	b.parts["COUNT"] = strconv.Itoa(n)
	delete(b.parts, "UNTIL")
	return b
}

// Until sets UNTIL; dt must be UTC. COUNT and UNTIL are mutually
// exclusive — setting one clears the other.
func (b *RRuleBuilder) Until(dt time.Time) *RRuleBuilder {
	if b.err != nil {
		return b
	}
	if _, offset := dt.Zone(); offset != 0 {
		b.err = fmt.Errorf("UNTIL must be a UTC time, got offset %s", dt.Format("-07:00"))
		return b
	}
	b.parts["UNTIL"] = dt.UTC().Format("20060102T150405Z")
	delete(b.parts, "COUNT")
	return b
}

func joinInts(ns []int) string {
	ss := make([]string, len(ns))
	for i, n := range ns {
		ss[i] = strconv.Itoa(n)
	}
	return strings.Join(ss, ",")
}

// BySecond sets BYSECOND.
func (b *RRuleBuilder) BySecond(seconds ...int) *RRuleBuilder {
	b.parts["BYSECOND"] = joinInts(seconds)
	return b
}

// ByMinute sets BYMINUTE.
func (b *RRuleBuilder) ByMinute(minutes ...int) *RRuleBuilder {
	b.parts["BYMINUTE"] = joinInts(minutes)
	return b
}

// ByHour sets BYHOUR.
func (b *RRuleBuilder) ByHour(hours ...int) *RRuleBuilder {
	b.parts["BYHOUR"] = joinInts(hours)
	return b
}

// ByWeekday sets BYDAY from two-letter RFC 5545 weekday codes, e.g. "MO",
// "TU". Codes are upper-cased automatically.
func (b *RRuleBuilder) ByWeekday(days ...string) *RRuleBuilder {
	upper := make([]string, len(days))
	for i, d := range days {
		upper[i] = strings.ToUpper(d)
	}
	b.parts["BYDAY"] = strings.Join(upper, ",")
	return b
}

// ByMonthday sets BYMONTHDAY.
func (b *RRuleBuilder) ByMonthday(days ...int) *RRuleBuilder {
	b.parts["BYMONTHDAY"] = joinInts(days)
	return b
}

// ByMonth sets BYMONTH.
func (b *RRuleBuilder) ByMonth(months ...int) *RRuleBuilder {
	b.parts["BYMONTH"] = joinInts(months)
	return b
}

// At is shorthand for BYHOUR/BYMINUTE/BYSECOND.
func (b *RRuleBuilder) At(hour, minute, second int) *RRuleBuilder {
	return b.ByHour(hour).ByMinute(minute).BySecond(second)
}

// Timezone attaches an IANA zone name, stored alongside — not inside — the
// RRULE string, per RFC 5545.
func (b *RRuleBuilder) Timezone(name string) *RRuleBuilder {
	b.timezone = name
	return b
}

// Build renders the RRULE body in canonical field order and returns it
// together with the timezone name set via Timezone (empty if none was
// set). It fails if FREQ was never set, if a component setter reported an
// error, or if both COUNT and UNTIL somehow ended up set.
func (b *RRuleBuilder) Build() (rrule string, timezone string, err error) {
	if b.err != nil {
		return "", "", b.err
	}
	if _, ok := b.parts["FREQ"]; !ok {
		return "", "", fmt.Errorf("RRULE must contain FREQ")
	}
	_, hasUntil := b.parts["UNTIL"]
	_, hasCount := b.parts["COUNT"]
	if hasUntil && hasCount {
		return "", "", fmt.Errorf("RRULE can't have both COUNT and UNTIL")
	}

	var ordered []string
	for _, key := range fieldOrder {
		if v, ok := b.parts[key]; ok {
			ordered = append(ordered, key+"="+v)
		}
	}
	return strings.Join(ordered, ";"), b.timezone, nil
}
