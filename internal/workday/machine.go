package workday

import "time"

// Tick is the input to one sampling step.
type Tick struct {
	Now       time.Time
	LastInput time.Time
}

// Effects describes what a single Advance did, for logging and side effects.
type Effects struct {
	Idle          time.Duration // Measured idle for this tick
	Active        bool
	LunchStarted  bool
	BreakStarted  bool
	BreakRefunded bool // A break of the same idle period was reclassified as lunch
	Accrued       int64
	Discarded     int64 // Work seconds lost to the normal and overtime caps
}

// Advance applies one sampling tick to s and returns the new state. The
// input state is not modified.
//
// Steps, in order: idle measurement, edge-triggered lunch/break
// classification (once per whole-minute idle bucket, lunch before break),
// then work accrual through the capping rule once the day has started.
func Advance(s State, tick Tick, p Policy) (State, Effects) {
	next := s.Clone()
	fx := Effects{}

	idle := tick.Now.Sub(tick.LastInput)
	if idle < 0 {
		idle = 0
	}
	fx.Idle = idle

	if idle < p.ActiveWindow {
		fx.Active = true
		next.IdleAccumulated = 0
		next.LastIdleBucket = nil
		next.IdleKind = IdleNone

		now := tick.Now
		if next.FirstSeen == nil {
			first := now
			next.FirstSeen = &first
		}
		if next.LastSeen == nil || now.After(*next.LastSeen) {
			last := now
			next.LastSeen = &last
		}
	} else {
		next.IdleAccumulated += p.tickSeconds()
		// A tick that arrives late (suspend, stalled process) must not hide
		// the idle time the input source already reports.
		if measured := wholeTicks(idle, p.Tick); measured > next.IdleAccumulated {
			next.IdleAccumulated = measured
		}
		classify(&next, &fx, p)
	}

	// Nothing accrues before the first active tick, so a row without bounds
	// always has zero totals.
	if idle < p.WorkIdleLimit && !next.LunchUsed && next.HasStarted() {
		fx.Accrued, fx.Discarded = next.AddWork(p.tickSeconds(), p)
	}

	return next, fx
}

func classify(s *State, fx *Effects, p Policy) {
	bucket := s.IdleAccumulated / 60
	if s.LastIdleBucket != nil && *s.LastIdleBucket == bucket {
		return
	}
	s.LastIdleBucket = &bucket

	if s.LunchUsed {
		return
	}

	idle := time.Duration(s.IdleAccumulated) * time.Second
	switch {
	case idle >= p.LunchIdle:
		s.LunchUsed = true
		if s.IdleKind == IdleBreak {
			s.BreaksUsed--
			fx.BreakRefunded = true
		}
		s.IdleKind = IdleLunch
		fx.LunchStarted = true
	case idle >= p.BreakIdle && s.IdleKind == IdleNone && s.BreaksUsed < p.MaxBreaks:
		s.BreaksUsed++
		s.IdleKind = IdleBreak
		fx.BreakStarted = true
	}
}

// AddWork adds n seconds of work: normal time first, up to NormalLimit,
// then overtime up to MaxOvertime. Whatever does not fit is discarded.
func (s *State) AddWork(n int64, p Policy) (accrued, discarded int64) {
	if n <= 0 {
		return 0, 0
	}

	normalLimit := int64(p.NormalLimit / time.Second)
	otLimit := int64(p.MaxOvertime / time.Second)
	remaining := n

	if s.NormalSeconds < normalLimit {
		used := min(remaining, normalLimit-s.NormalSeconds)
		s.NormalSeconds += used
		remaining -= used
		accrued += used
	}

	if remaining > 0 && s.OTSeconds < otLimit {
		used := min(remaining, otLimit-s.OTSeconds)
		s.OTSeconds += used
		remaining -= used
		accrued += used
	}

	return accrued, remaining
}

func wholeTicks(d, tick time.Duration) int64 {
	if tick <= 0 {
		return int64(d / time.Second)
	}
	return int64(d/tick) * int64(tick/time.Second)
}
