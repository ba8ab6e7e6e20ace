// Package workday implements the per-day activity state machine: it turns a
// stream of sampling ticks (current time plus time of the last observed
// input) into normal and overtime seconds, lunch and break usage, and the
// first/last activity bounds of the day.
//
// Advance is pure. Persisting the resulting state and appending to the
// activity log are the caller's job.
package workday

import (
	"time"
)

// DateLayout is the calendar-date key format used by the ledger.
const DateLayout = "2006-01-02"

// Policy is the immutable work policy applied by Advance.
type Policy struct {
	Tick          time.Duration // Sampling interval, also the accrual unit
	ActiveWindow  time.Duration // Idle below this makes the tick active
	WorkIdleLimit time.Duration // Idle at or above this stops accrual
	BreakIdle     time.Duration
	LunchIdle     time.Duration
	MaxBreaks     int
	NormalLimit   time.Duration
	MaxOvertime   time.Duration
}

// DefaultPolicy returns the stock 8h + 4h policy with 15 minute breaks and a
// 60 minute lunch.
func DefaultPolicy() Policy {
	return Policy{
		Tick:          time.Minute,
		ActiveWindow:  time.Minute,
		WorkIdleLimit: 20 * time.Minute,
		BreakIdle:     15 * time.Minute,
		LunchIdle:     60 * time.Minute,
		MaxBreaks:     2,
		NormalLimit:   8 * time.Hour,
		MaxOvertime:   4 * time.Hour,
	}
}

func (p Policy) tickSeconds() int64 {
	return int64(p.Tick / time.Second)
}

// IdleKind is the classification already applied to the current idle period.
type IdleKind int

const (
	IdleNone IdleKind = iota
	IdleBreak
	IdleLunch
)

// ParseIdleKind is the inverse of String. Unknown values map to IdleNone.
func ParseIdleKind(s string) IdleKind {
	switch s {
	case "break":
		return IdleBreak
	case "lunch":
		return IdleLunch
	default:
		return IdleNone
	}
}

func (k IdleKind) String() string {
	switch k {
	case IdleBreak:
		return "break"
	case IdleLunch:
		return "lunch"
	default:
		return "none"
	}
}

// State is the live accounting state for one calendar day.
type State struct {
	Date          string // YYYY-MM-DD
	NormalSeconds int64
	OTSeconds     int64
	FirstSeen     *time.Time
	LastSeen      *time.Time

	LunchUsed  bool
	BreaksUsed int

	// IdleAccumulated counts idle seconds in whole ticks and resets when
	// input resumes.
	IdleAccumulated int64
	// LastIdleBucket is the last whole-minute idle bucket that was
	// classified; nil while active.
	LastIdleBucket *int64
	IdleKind       IdleKind
}

// NewState returns a zero-valued state for the calendar date of t.
func NewState(t time.Time) State {
	return State{Date: DateOf(t)}
}

// DateOf returns the ledger date key of t in t's location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

// TotalSeconds returns payable work time.
func (s State) TotalSeconds() int64 {
	return s.NormalSeconds + s.OTSeconds
}

// HasStarted reports whether any activity was seen on this day.
func (s State) HasStarted() bool {
	return s.FirstSeen != nil
}

// Clone returns a deep copy so callers never share pointer fields.
func (s State) Clone() State {
	c := s
	if s.FirstSeen != nil {
		t := *s.FirstSeen
		c.FirstSeen = &t
	}
	if s.LastSeen != nil {
		t := *s.LastSeen
		c.LastSeen = &t
	}
	if s.LastIdleBucket != nil {
		b := *s.LastIdleBucket
		c.LastIdleBucket = &b
	}
	return c
}
