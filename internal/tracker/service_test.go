package tracker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shiftledger/shiftledger/internal/activitylog"
	"github.com/shiftledger/shiftledger/internal/database"
	"github.com/shiftledger/shiftledger/internal/logging"
	"github.com/shiftledger/shiftledger/internal/models"
	"github.com/shiftledger/shiftledger/internal/workday"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDisk = errors.New("disk I/O error")

type memLedger struct {
	mu     sync.Mutex
	days   map[string]models.DayRecord
	errs   []models.ErrorLog
	fail   bool
	writes int
	pruned int
}

func newMemLedger() *memLedger {
	return &memLedger{days: make(map[string]models.DayRecord)}
}

func (l *memLedger) UpsertDay(ctx context.Context, rec *models.DayRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writes++
	if l.fail {
		return errDisk
	}
	r := *rec
	if prev, ok := l.days[rec.WorkDate]; ok && prev.FirstSeen != nil {
		r.FirstSeen = prev.FirstSeen
	}
	l.days[rec.WorkDate] = r
	return nil
}

func (l *memLedger) GetDay(ctx context.Context, date string) (*models.DayRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.days[date]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (l *memLedger) CreateErrorLog(e *models.ErrorLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, *e)
	return nil
}

func (l *memLedger) DeleteOldErrors(before time.Time) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruned++
	return 0, nil
}

func (l *memLedger) day(date string) (models.DayRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.days[date]
	return rec, ok
}

func (l *memLedger) setFail(v bool) {
	l.mu.Lock()
	l.fail = v
	l.mu.Unlock()
}

type fakeInput struct {
	last   time.Time
	resets []time.Time
}

func (f *fakeInput) LastInput() time.Time { return f.last }

func (f *fakeInput) Reset(t time.Time) {
	f.resets = append(f.resets, t)
	if t.After(f.last) {
		f.last = t
	}
}

type countingTrigger struct{ n int }

func (c *countingTrigger) Trigger() { c.n++ }

type fakeCapturer struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeCapturer) Capture(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	return nil
}

func (f *fakeCapturer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}

type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

type fixture struct {
	svc    *Service
	ledger *memLedger
	input  *fakeInput
	sync   *countingTrigger
	shots  *fakeCapturer
	clock  *clock
	actLog *activitylog.Log
}

func newFixture(t *testing.T, start time.Time, mutate func(*Options)) *fixture {
	t.Helper()
	al, err := activitylog.New(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		ledger: newMemLedger(),
		input:  &fakeInput{last: start},
		sync:   &countingTrigger{},
		shots:  &fakeCapturer{},
		clock:  &clock{t: start},
		actLog: al,
	}
	opts := Options{
		Policy:        workday.DefaultPolicy(),
		CloseAttempts: 2,
		CloseBackoff:  time.Millisecond,
		Screenshot: ScreenshotOptions{
			Dir: t.TempDir(),
		},
		Now: f.clock.Now,
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.svc = NewService(Deps{
		Ledger:   f.ledger,
		Input:    f.input,
		Activity: al,
		Sync:     f.sync,
		Capturer: f.shots,
	}, opts, logging.Discard())
	return f
}

// step advances the clock by d with input at the new time, then ticks.
func (f *fixture) step(t *testing.T, d time.Duration) error {
	t.Helper()
	f.clock.t = f.clock.t.Add(d)
	f.input.last = f.clock.t
	return f.svc.Tick(context.Background())
}

func TestTick_WritesThrough(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)
	f := newFixture(t, start, nil)

	for i := 0; i < 3; i++ {
		require.NoError(t, f.step(t, time.Minute))
	}

	rec, ok := f.ledger.day("2024-01-01")
	require.True(t, ok)
	assert.Equal(t, int64(180), rec.NormalSeconds)
	require.NotNil(t, rec.FirstSeen)
	assert.Equal(t, start.Add(time.Minute), rec.FirstSeen.Time())
	assert.Equal(t, start.Add(3*time.Minute), rec.LastSeen.Time())

	entries, err := f.actLog.Read("2024-01-01")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.InDelta(t, 0.05, entries[2].NormalHours, 0.001)
	assert.Equal(t, int64(0), entries[2].IdleSeconds)
}

func TestTick_RolloverClosesPreviousDay(t *testing.T) {
	start := time.Date(2024, 1, 1, 23, 58, 0, 0, time.Local)
	f := newFixture(t, start, nil)

	require.NoError(t, f.step(t, time.Minute)) // 23:59
	before, ok := f.ledger.day("2024-01-01")
	require.True(t, ok)

	// 00:01 the next day; last input is still before midnight.
	f.clock.t = time.Date(2024, 1, 2, 0, 1, 0, 0, time.Local)
	require.NoError(t, f.svc.Tick(context.Background()))

	after, ok := f.ledger.day("2024-01-01")
	require.True(t, ok)
	assert.Equal(t, before.NormalSeconds, after.NormalSeconds)
	assert.Equal(t, before.OTSeconds, after.OTSeconds)
	assert.Equal(t, before.FirstSeen.String(), after.FirstSeen.String())
	assert.Equal(t, before.LastSeen.String(), after.LastSeen.String())

	fresh, ok := f.ledger.day("2024-01-02")
	require.True(t, ok)
	assert.Equal(t, int64(60), fresh.NormalSeconds, "one tick from zero, nothing carried over")
	assert.Equal(t, int64(0), fresh.OTSeconds)
	assert.False(t, fresh.LunchUsed)
	assert.Equal(t, 0, fresh.BreaksUsed)

	assert.Equal(t, 1, f.sync.n)
	assert.Equal(t, 1, f.ledger.pruned)
	require.Len(t, f.input.resets, 1)
	assert.Equal(t, f.clock.t, f.input.resets[0])
	assert.Equal(t, "2024-01-02", f.svc.Snapshot().Date)
}

func TestTick_RolloverRetriedWhenLedgerFails(t *testing.T) {
	start := time.Date(2024, 1, 1, 23, 58, 0, 0, time.Local)
	f := newFixture(t, start, nil)
	require.NoError(t, f.step(t, time.Minute))
	live := f.svc.Snapshot()

	f.ledger.setFail(true)
	f.clock.t = time.Date(2024, 1, 2, 0, 1, 0, 0, time.Local)
	err := f.svc.Tick(context.Background())
	require.Error(t, err)

	// Nothing was lost or reset.
	snap := f.svc.Snapshot()
	assert.Equal(t, "2024-01-01", snap.Date)
	assert.Equal(t, live.NormalSeconds, snap.NormalSeconds)
	assert.Equal(t, 0, f.sync.n)
	assert.Empty(t, f.input.resets)

	require.NotEmpty(t, f.ledger.errs)
	assert.Equal(t, models.SourceLedger, f.ledger.errs[0].Source)
	assert.Equal(t, "2024-01-01", f.ledger.errs[0].WorkDate)

	f.ledger.setFail(false)
	require.NoError(t, f.step(t, time.Minute))
	assert.Equal(t, "2024-01-02", f.svc.Snapshot().Date)
	assert.Equal(t, 1, f.sync.n)
}

func TestTick_LedgerFailureKeepsState(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)
	f := newFixture(t, start, nil)

	f.ledger.setFail(true)
	require.Error(t, f.step(t, time.Minute))
	require.Error(t, f.step(t, time.Minute))
	assert.Equal(t, int64(120), f.svc.Snapshot().NormalSeconds)
	assert.Len(t, f.ledger.errs, 2)

	f.ledger.setFail(false)
	require.NoError(t, f.step(t, time.Minute))

	rec, ok := f.ledger.day("2024-01-01")
	require.True(t, ok)
	assert.Equal(t, int64(180), rec.NormalSeconds)
	assert.Equal(t, start.Add(time.Minute), rec.FirstSeen.Time())
}

func TestTick_IdleStopsAccrual(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)
	f := newFixture(t, start, nil)
	require.NoError(t, f.step(t, time.Minute))

	// No further input for 30 minutes.
	for i := 0; i < 30; i++ {
		f.clock.t = f.clock.t.Add(time.Minute)
		require.NoError(t, f.svc.Tick(context.Background()))
	}

	snap := f.svc.Snapshot()
	assert.Equal(t, int64(20*60), snap.NormalSeconds)
	assert.Equal(t, 1, snap.BreaksUsed)
}

func TestResume_SeedsFromLedger(t *testing.T) {
	start := time.Date(2024, 1, 1, 13, 0, 0, 0, time.Local)
	f := newFixture(t, start, nil)

	first := time.Date(2024, 1, 1, 8, 30, 0, 0, time.Local)
	last := time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)
	require.NoError(t, f.ledger.UpsertDay(context.Background(), &models.DayRecord{
		WorkDate:      "2024-01-01",
		NormalSeconds: 3 * 3600,
		FirstSeen:     models.NewTimestamp(first),
		LastSeen:      models.NewTimestamp(last),
		LunchUsed:     true,
		BreaksUsed:    1,
	}))

	require.NoError(t, f.svc.Resume(context.Background()))
	snap := f.svc.Snapshot()
	assert.Equal(t, int64(3*3600), snap.NormalSeconds)
	assert.True(t, snap.LunchUsed)
	assert.Equal(t, 1, snap.BreaksUsed)
	require.NotNil(t, snap.FirstSeen)
	assert.Equal(t, first, *snap.FirstSeen)
}

func TestResume_PauseCountedOnce(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local)
	f := newFixture(t, start, nil)
	require.NoError(t, f.step(t, time.Minute))

	// 16 idle minutes: the pause becomes a break.
	for i := 0; i < 16; i++ {
		f.clock.t = f.clock.t.Add(time.Minute)
		require.NoError(t, f.svc.Tick(context.Background()))
	}
	require.Equal(t, 1, f.svc.Snapshot().BreaksUsed)
	rec, ok := f.ledger.day("2024-01-01")
	require.True(t, ok)
	assert.Equal(t, "break", rec.IdleKind)

	// The agent restarts during the same pause; the new input baseline is
	// the restart time, so idle is measured from zero again.
	restarted := NewService(Deps{Ledger: f.ledger, Input: f.input}, Options{
		Policy: workday.DefaultPolicy(),
		Now:    f.clock.Now,
	}, logging.Discard())
	require.NoError(t, restarted.Resume(context.Background()))
	f.input.last = f.clock.t

	for i := 0; i < 16; i++ {
		f.clock.t = f.clock.t.Add(time.Minute)
		require.NoError(t, restarted.Tick(context.Background()))
	}
	assert.Equal(t, 1, restarted.Snapshot().BreaksUsed)

	// Activity ends the pause and the next one can be a break again.
	f.clock.t = f.clock.t.Add(time.Minute)
	f.input.last = f.clock.t
	require.NoError(t, restarted.Tick(context.Background()))
	rec, ok = f.ledger.day("2024-01-01")
	require.True(t, ok)
	assert.Equal(t, "none", rec.IdleKind)
}

func TestResume_OtherDayIgnored(t *testing.T) {
	start := time.Date(2024, 1, 2, 9, 0, 0, 0, time.Local)
	f := newFixture(t, start, nil)
	require.NoError(t, f.ledger.UpsertDay(context.Background(), &models.DayRecord{
		WorkDate:      "2024-01-01",
		NormalSeconds: 3600,
	}))

	require.NoError(t, f.svc.Resume(context.Background()))
	snap := f.svc.Snapshot()
	assert.Equal(t, "2024-01-02", snap.Date)
	assert.Equal(t, int64(0), snap.NormalSeconds)
}

func TestResume_RealLedger(t *testing.T) {
	db, err := database.Connect(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Initialize())
	repo := database.NewRepository(db)

	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)
	c := &clock{t: start}
	in := &fakeInput{last: start}
	newSvc := func() *Service {
		return NewService(Deps{Ledger: repo, Input: in}, Options{
			Policy: workday.DefaultPolicy(),
			Now:    c.Now,
		}, logging.Discard())
	}

	svc := newSvc()
	require.NoError(t, svc.Resume(context.Background()))
	for i := 0; i < 5; i++ {
		c.t = c.t.Add(time.Minute)
		in.last = c.t
		require.NoError(t, svc.Tick(context.Background()))
	}

	// A restart continues the same day.
	restarted := newSvc()
	require.NoError(t, restarted.Resume(context.Background()))
	c.t = c.t.Add(time.Minute)
	in.last = c.t
	require.NoError(t, restarted.Tick(context.Background()))

	rec, err := repo.GetDay(context.Background(), "2024-01-01")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(360), rec.NormalSeconds)
	assert.WithinDuration(t, start.Add(time.Minute), rec.FirstSeen.Time(), 0)
	assert.WithinDuration(t, c.t, rec.LastSeen.Time(), 0)
	assert.Equal(t, "none", rec.IdleKind)
}

func TestScreenshotPolicy(t *testing.T) {
	tests := []struct {
		name     string
		at       time.Time
		idle     time.Duration
		lunch    bool
		normal   int64
		duringOT bool
		want     int
	}{
		{"on interval", time.Date(2024, 1, 1, 10, 20, 0, 0, time.Local), 0, false, 0, true, 1},
		{"off interval", time.Date(2024, 1, 1, 10, 21, 0, 0, time.Local), 0, false, 0, true, 0},
		{"idle", time.Date(2024, 1, 1, 10, 20, 0, 0, time.Local), 25 * time.Minute, false, 0, true, 0},
		{"short idle still counts", time.Date(2024, 1, 1, 10, 20, 0, 0, time.Local), 5 * time.Minute, false, 0, true, 1},
		{"after lunch", time.Date(2024, 1, 1, 10, 20, 0, 0, time.Local), 0, true, 0, true, 0},
		{"overtime allowed", time.Date(2024, 1, 1, 18, 20, 0, 0, time.Local), 0, false, 8 * 3600, true, 1},
		{"overtime suppressed", time.Date(2024, 1, 1, 18, 20, 0, 0, time.Local), 0, false, 8 * 3600, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.at, func(o *Options) {
				o.Screenshot.Enabled = true
				o.Screenshot.IntervalMinutes = 10
				o.Screenshot.DuringOvertime = tt.duringOT
			})
			f.svc.state.LunchUsed = tt.lunch
			f.svc.state.NormalSeconds = tt.normal
			f.input.last = tt.at.Add(-tt.idle)

			require.NoError(t, f.svc.Tick(context.Background()))
			f.svc.shots.Wait()

			assert.Equal(t, tt.want, f.shots.count())
		})
	}
}

func TestScreenshot_OncePerMinute(t *testing.T) {
	at := time.Date(2024, 1, 1, 10, 30, 0, 0, time.Local)
	f := newFixture(t, at, func(o *Options) {
		o.Screenshot.Enabled = true
		o.Screenshot.IntervalMinutes = 10
		o.Policy.Tick = 20 * time.Second
	})

	require.NoError(t, f.svc.Tick(context.Background()))
	require.NoError(t, f.step(t, 20*time.Second))
	require.NoError(t, f.step(t, 20*time.Second))
	f.svc.shots.Wait()

	require.Equal(t, 1, f.shots.count())
	assert.Equal(t, filepath.Join(f.svc.opts.Screenshot.Dir, "20240101_103000.png"), f.shots.paths[0])
}

func TestStartStop(t *testing.T) {
	start := time.Now()
	f := newFixture(t, start, func(o *Options) {
		o.TickInterval = 10 * time.Millisecond
		o.Now = time.Now
	})

	done := make(chan error, 1)
	go func() { done <- f.svc.Start(context.Background()) }()

	require.Eventually(t, f.svc.IsRunning, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		f.ledger.mu.Lock()
		defer f.ledger.mu.Unlock()
		return f.ledger.writes > 0
	}, time.Second, 5*time.Millisecond)

	f.svc.Stop()
	f.svc.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("tracker did not stop")
	}
	assert.False(t, f.svc.IsRunning())
}
