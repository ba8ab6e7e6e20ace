// Package syncer pushes closed ledger days to the ERP.
//
// The remote system is the only record of what has been synced. Every
// mutation is preceded by a lookup for the record it would create
// ("existence-probe before mutate"), so a run can be repeated any number of
// times without creating duplicates:
//
//   - IN checkin: created once at first_seen, never touched again.
//   - OUT checkin: created at last_seen, or moved to last_seen if present.
//   - Timesheet: created with one time log, or its time logs replaced by that
//     same single entry.
package syncer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shiftledger/shiftledger/internal/device"
	"github.com/shiftledger/shiftledger/internal/erp"
	"github.com/shiftledger/shiftledger/internal/models"
	"github.com/shiftledger/shiftledger/internal/workday"
	"github.com/shiftledger/shiftledger/pkg/utils"
)

// ErrSyncInProgress is returned by Run when another run has not finished.
var ErrSyncInProgress = errors.New("sync already in progress")

type Ledger interface {
	ClosedDays(ctx context.Context, before string) ([]models.DayRecord, error)
	CreateErrorLog(errorLog *models.ErrorLog) error
}

type Identity interface {
	Load() (*device.Device, error)
}

// Remote is the ERP surface the engine depends on.
type Remote interface {
	FindCheckin(ctx context.Context, employee, logType, date string) (*erp.Checkin, error)
	CreateCheckin(ctx context.Context, in erp.Checkin) (*erp.Checkin, error)
	UpdateCheckinTime(ctx context.Context, name string, at string) error
	FindTimesheet(ctx context.Context, employee, date string) (*erp.Timesheet, error)
	CreateTimesheet(ctx context.Context, ts erp.Timesheet) error
	ReplaceTimesheet(ctx context.Context, name string, ts erp.Timesheet) error
}

type Options struct {
	Interval   time.Duration
	RowTimeout time.Duration
	Now        func() time.Time
}

// DayResult is what one run did for one ledger day.
type DayResult struct {
	Date              string
	Hours             float64
	INCreated         bool
	OUTCreated        bool
	OUTUpdated        bool
	TimesheetCreated  bool
	TimesheetReplaced bool
	Err               error
}

type Result struct {
	Days   []DayResult
	Synced int
	Failed int
}

type Engine struct {
	ledger   Ledger
	remote   Remote
	identity Identity
	opts     Options
	log      *slog.Logger

	mu      sync.Mutex
	trigger chan struct{}
}

func New(ledger Ledger, remote Remote, identity Identity, opts Options, log *slog.Logger) *Engine {
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Minute
	}
	if opts.RowTimeout <= 0 {
		opts.RowTimeout = 90 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		ledger:   ledger,
		remote:   remote,
		identity: identity,
		opts:     opts,
		log:      log.With("component", "sync"),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a run as soon as possible. It never blocks; triggers that
// arrive while one is pending are merged.
func (e *Engine) Trigger() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// Start runs once immediately, then on every interval and trigger, until ctx
// is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	ticker := time.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	e.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.runLogged(ctx)
		case <-e.trigger:
			e.runLogged(ctx)
		}
	}
}

func (e *Engine) runLogged(ctx context.Context) {
	res, err := e.Run(ctx)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		e.log.Debug("sync skipped, previous run still active")
	case errors.Is(err, device.ErrNotRegistered):
		e.log.Warn("sync skipped, device is not registered")
	case err != nil:
		e.log.Error("sync run failed", "error", err)
		e.recordError("", err)
	case len(res.Days) > 0:
		e.log.Info("sync run finished", "days", len(res.Days), "synced", res.Synced, "failed", res.Failed)
	}
}

// Run syncs every closed day once. Failures of individual days are reported
// in the result and do not stop the run; the returned error covers only
// conditions that prevent the run as a whole.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if !e.mu.TryLock() {
		return nil, ErrSyncInProgress
	}
	defer e.mu.Unlock()

	dev, err := e.identity.Load()
	if err != nil {
		return nil, errors.Wrap(err, "no employee identity")
	}

	today := workday.DateOf(e.opts.Now())
	days, err := e.ledger.ClosedDays(ctx, today)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, rec := range days {
		if ctx.Err() != nil {
			break
		}
		dr := e.syncDay(ctx, dev, rec)
		res.Days = append(res.Days, dr)
		if dr.Err != nil {
			res.Failed++
			e.log.Warn("day sync failed", "date", dr.Date, "error", dr.Err)
			e.recordError(dr.Date, dr.Err)
			continue
		}
		res.Synced++
		e.log.Debug("day synced", "date", dr.Date, "hours", dr.Hours,
			"in_created", dr.INCreated, "out_created", dr.OUTCreated, "timesheet_created", dr.TimesheetCreated)
	}

	return res, nil
}

func (e *Engine) syncDay(ctx context.Context, dev *device.Device, rec models.DayRecord) DayResult {
	res := DayResult{Date: rec.WorkDate, Hours: utils.Hours(rec.TotalSeconds())}
	if rec.FirstSeen == nil || rec.LastSeen == nil {
		res.Err = errors.Errorf("day %s has no activity bounds", rec.WorkDate)
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, e.opts.RowTimeout)
	defer cancel()

	employee := dev.EmployeeID
	firstSeen := rec.FirstSeen.Time().Format(erp.TimeLayout)
	lastSeen := rec.LastSeen.Time().Format(erp.TimeLayout)

	in, err := e.remote.FindCheckin(ctx, employee, erp.LogIn, rec.WorkDate)
	if err != nil {
		res.Err = errors.Wrap(err, "find IN checkin")
		return res
	}
	if in == nil {
		if _, err := e.remote.CreateCheckin(ctx, erp.Checkin{
			Employee: employee, LogType: erp.LogIn, Time: firstSeen, DeviceID: dev.DeviceID,
		}); err != nil {
			res.Err = errors.Wrap(err, "create IN checkin")
			return res
		}
		res.INCreated = true
	}

	out, err := e.remote.FindCheckin(ctx, employee, erp.LogOut, rec.WorkDate)
	if err != nil {
		res.Err = errors.Wrap(err, "find OUT checkin")
		return res
	}
	if out == nil {
		if _, err := e.remote.CreateCheckin(ctx, erp.Checkin{
			Employee: employee, LogType: erp.LogOut, Time: lastSeen, DeviceID: dev.DeviceID,
		}); err != nil {
			res.Err = errors.Wrap(err, "create OUT checkin")
			return res
		}
		res.OUTCreated = true
	} else {
		if err := e.remote.UpdateCheckinTime(ctx, out.Name, lastSeen); err != nil {
			res.Err = errors.Wrap(err, "update OUT checkin")
			return res
		}
		res.OUTUpdated = true
	}

	sheet := erp.DailyTimesheet(employee, rec.WorkDate, firstSeen, res.Hours)
	existing, err := e.remote.FindTimesheet(ctx, employee, rec.WorkDate)
	if err != nil {
		res.Err = errors.Wrap(err, "find timesheet")
		return res
	}
	if existing == nil {
		if err := e.remote.CreateTimesheet(ctx, sheet); err != nil {
			res.Err = errors.Wrap(err, "create timesheet")
			return res
		}
		res.TimesheetCreated = true
	} else {
		if err := e.remote.ReplaceTimesheet(ctx, existing.Name, sheet); err != nil {
			res.Err = errors.Wrap(err, "replace timesheet")
			return res
		}
		res.TimesheetReplaced = true
	}

	return res
}

func (e *Engine) recordError(date string, err error) {
	rec := &models.ErrorLog{
		Timestamp: e.opts.Now(),
		Source:    models.SourceSync,
		WorkDate:  date,
		ErrorMsg:  err.Error(),
	}
	if werr := e.ledger.CreateErrorLog(rec); werr != nil {
		e.log.Error("failed to store error log", "error", werr)
	}
}
