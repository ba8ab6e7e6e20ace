// Package tracker drives the workday state machine once per tick: it closes
// the previous day on a date change, advances the live state from the input
// gateway, writes it through to the ledger and the activity log, and fires
// periodic screenshots.
package tracker

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shiftledger/shiftledger/internal/activitylog"
	"github.com/shiftledger/shiftledger/internal/models"
	"github.com/shiftledger/shiftledger/internal/workday"
	"github.com/shiftledger/shiftledger/pkg/screenshot"
	"github.com/shiftledger/shiftledger/pkg/utils"
)

// Ledger is the part of the day ledger the tracker writes to.
type Ledger interface {
	UpsertDay(ctx context.Context, rec *models.DayRecord) error
	GetDay(ctx context.Context, date string) (*models.DayRecord, error)
	CreateErrorLog(errorLog *models.ErrorLog) error
	DeleteOldErrors(before time.Time) (int64, error)
}

// InputGateway supplies the time of the most recent user input.
type InputGateway interface {
	LastInput() time.Time
	Reset(t time.Time)
}

type ActivityLog interface {
	Append(e activitylog.Entry) error
}

// SyncTrigger asks the synchronizer for a run. Implementations must not block.
type SyncTrigger interface {
	Trigger()
}

type ScreenshotOptions struct {
	Enabled         bool
	IntervalMinutes int
	DuringOvertime  bool
	Dir             string
	Timeout         time.Duration
}

type Options struct {
	Policy       workday.Policy
	TickInterval time.Duration
	Screenshot   ScreenshotOptions

	// Attempts made to persist the outgoing day before a rollover is
	// postponed to the next tick.
	CloseAttempts int
	CloseBackoff  time.Duration

	// Error log rows older than this are pruned at every rollover.
	ErrorRetention time.Duration

	Now func() time.Time
}

// Deps are the collaborators of a Service. Sync and Capturer are optional.
type Deps struct {
	Ledger   Ledger
	Input    InputGateway
	Activity ActivityLog
	Sync     SyncTrigger
	Capturer screenshot.Capturer
}

type Service struct {
	deps Deps
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	state    workday.State
	lastShot string // minute key of the last screenshot

	shots    sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  bool
}

func NewService(deps Deps, opts Options, log *slog.Logger) *Service {
	if opts.TickInterval <= 0 {
		opts.TickInterval = opts.Policy.Tick
	}
	if opts.CloseAttempts <= 0 {
		opts.CloseAttempts = 3
	}
	if opts.CloseBackoff <= 0 {
		opts.CloseBackoff = time.Second
	}
	if opts.ErrorRetention <= 0 {
		opts.ErrorRetention = 30 * 24 * time.Hour
	}
	if opts.Screenshot.Timeout <= 0 {
		opts.Screenshot.Timeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		deps:     deps,
		opts:     opts,
		log:      log.With("component", "tracker"),
		state:    workday.NewState(opts.Now()),
		stopChan: make(chan struct{}),
	}
}

// Resume seeds the live state from today's ledger row so a restarted agent
// continues the day instead of starting over.
func (s *Service) Resume(ctx context.Context) error {
	now := s.opts.Now()
	rec, err := s.deps.Ledger.GetDay(ctx, workday.DateOf(now))
	if err != nil {
		return errors.Wrap(err, "failed to load today's ledger row")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = workday.NewState(now)
	if rec == nil {
		return nil
	}
	s.state.NormalSeconds = rec.NormalSeconds
	s.state.OTSeconds = rec.OTSeconds
	s.state.FirstSeen = rec.FirstSeen.TimePtr()
	s.state.LastSeen = rec.LastSeen.TimePtr()
	s.state.LunchUsed = rec.LunchUsed
	s.state.BreaksUsed = rec.BreaksUsed
	// A pause already counted as a break before the restart stays one pause.
	s.state.IdleKind = workday.ParseIdleKind(rec.IdleKind)

	s.log.Info("resumed day", "date", rec.WorkDate,
		"normal", utils.FormatHM(rec.NormalSeconds), "overtime", utils.FormatHM(rec.OTSeconds),
		"lunch_used", rec.LunchUsed, "breaks_used", rec.BreaksUsed)
	return nil
}

// Start resumes today's state and ticks until ctx is cancelled or Stop is
// called.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("tracker is already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.shots.Wait()
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if err := s.Resume(ctx); err != nil {
		s.storeError(models.SourceLedger, workday.DateOf(s.opts.Now()), err)
	}

	s.log.Info("starting tracker", "tick", s.opts.TickInterval)

	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("tracker stopped by context")
			return nil

		case <-s.stopChan:
			s.log.Info("tracker stopped")
			return nil

		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.log.Warn("tick incomplete", "error", err)
			}
		}
	}
}

func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Snapshot returns a copy of the live state.
func (s *Service) Snapshot() workday.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Tick performs one sampling step at the current time. A returned error means
// a ledger write failed; the in-memory state is kept either way and the next
// tick retries.
func (s *Service) Tick(ctx context.Context) error {
	now := s.opts.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if workday.DateOf(now) != s.state.Date {
		if err := s.closeDay(ctx, now); err != nil {
			s.storeError(models.SourceLedger, s.state.Date, err)
			return err
		}
	}

	next, fx := workday.Advance(s.state, workday.Tick{Now: now, LastInput: s.deps.Input.LastInput()}, s.opts.Policy)
	s.state = next
	s.logEffects(fx)

	var writeErr error
	if err := s.deps.Ledger.UpsertDay(ctx, recordOf(s.state)); err != nil {
		writeErr = errors.Wrap(err, "failed to write day")
		s.storeError(models.SourceLedger, s.state.Date, writeErr)
	}

	if s.deps.Activity != nil {
		entry := activitylog.Entry{
			Timestamp:   now,
			NormalHours: utils.Hours(s.state.NormalSeconds),
			OTHours:     utils.Hours(s.state.OTSeconds),
			IdleSeconds: int64(fx.Idle / time.Second),
			LunchUsed:   s.state.LunchUsed,
			BreaksUsed:  s.state.BreaksUsed,
		}
		if err := s.deps.Activity.Append(entry); err != nil {
			s.log.Warn("failed to append activity log", "error", err)
		}
	}

	s.maybeScreenshot(ctx, now, fx.Idle)

	return writeErr
}

// closeDay persists the outgoing day and starts a fresh one. If the final
// write keeps failing the state is left untouched.
func (s *Service) closeDay(ctx context.Context, now time.Time) error {
	outgoing := recordOf(s.state)

	var err error
	for attempt := 1; attempt <= s.opts.CloseAttempts; attempt++ {
		if err = s.deps.Ledger.UpsertDay(ctx, outgoing); err == nil {
			break
		}
		s.log.Warn("failed to close day", "date", outgoing.WorkDate, "attempt", attempt, "error", err)
		if attempt == s.opts.CloseAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "closing day %s", outgoing.WorkDate)
		case <-time.After(s.opts.CloseBackoff * time.Duration(attempt)):
		}
	}
	if err != nil {
		return errors.Wrapf(err, "failed to close day %s", outgoing.WorkDate)
	}

	s.log.Info("day closed", "date", outgoing.WorkDate,
		"normal", utils.FormatHM(outgoing.NormalSeconds), "overtime", utils.FormatHM(outgoing.OTSeconds),
		"first_seen", outgoing.FirstSeen, "last_seen", outgoing.LastSeen)

	if s.deps.Sync != nil {
		s.deps.Sync.Trigger()
	}

	if n, err := s.deps.Ledger.DeleteOldErrors(now.Add(-s.opts.ErrorRetention)); err != nil {
		s.log.Warn("failed to prune error log", "error", err)
	} else if n > 0 {
		s.log.Debug("pruned error log", "rows", n)
	}

	s.state = workday.NewState(now)
	s.lastShot = ""
	s.deps.Input.Reset(now)
	return nil
}

func (s *Service) logEffects(fx workday.Effects) {
	switch {
	case fx.LunchStarted && fx.BreakRefunded:
		s.log.Info("break extended into lunch", "date", s.state.Date)
	case fx.LunchStarted:
		s.log.Info("lunch detected", "date", s.state.Date)
	case fx.BreakStarted:
		s.log.Info("break detected", "date", s.state.Date, "breaks_used", s.state.BreaksUsed)
	}
	if fx.Discarded > 0 {
		s.log.Debug("daily cap reached, work discarded", "seconds", fx.Discarded)
	}
}

func (s *Service) maybeScreenshot(ctx context.Context, now time.Time, idle time.Duration) {
	opts := s.opts.Screenshot
	if !opts.Enabled || s.deps.Capturer == nil || opts.IntervalMinutes <= 0 {
		return
	}
	if idle >= s.opts.Policy.WorkIdleLimit || s.state.LunchUsed {
		return
	}
	inOvertime := s.state.NormalSeconds >= int64(s.opts.Policy.NormalLimit/time.Second)
	if inOvertime && !opts.DuringOvertime {
		return
	}
	if now.Minute()%opts.IntervalMinutes != 0 {
		return
	}
	key := now.Format("2006-01-02 15:04")
	if s.lastShot == key {
		return
	}
	s.lastShot = key

	path := filepath.Join(opts.Dir, screenshot.FileName(now))
	s.shots.Add(1)
	go func() {
		defer s.shots.Done()
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.Timeout)
		defer cancel()
		if err := s.deps.Capturer.Capture(cctx, path); err != nil {
			s.log.Warn("screenshot failed", "error", err)
			s.storeError(models.SourceTracker, workday.DateOf(now), err)
			return
		}
		s.log.Debug("screenshot saved", "path", path)
	}()
}

func (s *Service) storeError(source, date string, err error) {
	errorLog := &models.ErrorLog{
		Timestamp: s.opts.Now(),
		Source:    source,
		WorkDate:  date,
		ErrorMsg:  err.Error(),
	}

	if dbErr := s.deps.Ledger.CreateErrorLog(errorLog); dbErr != nil {
		s.log.Error("failed to store error in database", "error", dbErr, "original_error", err)
	} else {
		s.log.Debug("error logged to database", "error", err)
	}
}

func recordOf(st workday.State) *models.DayRecord {
	return &models.DayRecord{
		WorkDate:      st.Date,
		NormalSeconds: st.NormalSeconds,
		OTSeconds:     st.OTSeconds,
		FirstSeen:     models.TimestampPtr(st.FirstSeen),
		LastSeen:      models.TimestampPtr(st.LastSeen),
		LunchUsed:     st.LunchUsed,
		BreaksUsed:    st.BreaksUsed,
		IdleKind:      st.IdleKind.String(),
	}
}
