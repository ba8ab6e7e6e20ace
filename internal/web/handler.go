package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/pkg/errors"
	"github.com/shiftledger/shiftledger/internal/activitylog"
	"github.com/shiftledger/shiftledger/internal/device"
	"github.com/shiftledger/shiftledger/internal/models"
	"github.com/shiftledger/shiftledger/internal/reporter"
	"github.com/shiftledger/shiftledger/internal/workday"
	"github.com/shiftledger/shiftledger/pkg/utils"
)

// Store is the read-only view of the ledger served by the API.
type Store interface {
	GetDay(ctx context.Context, date string) (*models.DayRecord, error)
	DaysBetween(ctx context.Context, from, to string) ([]models.DayRecord, error)
	RecentErrors(limit int) ([]models.ErrorLog, error)
}

type Identity interface {
	Load() (*device.Device, error)
}

type ActivityReader interface {
	Read(date string) ([]activitylog.Entry, error)
}

// Live exposes the in-memory state of a running tracker.
type Live interface {
	Snapshot() workday.State
}

type Handler struct {
	store    Store
	identity Identity
	activity ActivityReader
	live     Live
	reporter *reporter.Reporter
	log      *slog.Logger
	now      func() time.Time
}

// NewHandler builds the API handlers. activity and live may be nil.
func NewHandler(store Store, identity Identity, activity ActivityReader, live Live, log *slog.Logger) *Handler {
	h := &Handler{
		store:    store,
		identity: identity,
		activity: activity,
		live:     live,
		log:      log,
		now:      time.Now,
	}
	h.reporter = reporter.New(store).WithClock(func() time.Time { return h.now() })
	return h
}

func (h *Handler) SetupRoutes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness check",
		Tags:        []string{"system"},
	}, h.health)

	huma.Register(api, huma.Operation{
		OperationID: "employee-get",
		Method:      http.MethodGet,
		Path:        "/api/employee",
		Summary:     "Registered employee and device",
		Tags:        []string{"device"},
	}, h.employee)

	huma.Register(api, huma.Operation{
		OperationID: "today-get",
		Method:      http.MethodGet,
		Path:        "/api/today",
		Summary:     "Work recorded today",
		Tags:        []string{"ledger"},
	}, h.today)

	huma.Register(api, huma.Operation{
		OperationID: "timesheet-get",
		Method:      http.MethodGet,
		Path:        "/api/timesheet",
		Summary:     "Work recorded over the last N days",
		Tags:        []string{"ledger"},
	}, h.timesheet)

	huma.Register(api, huma.Operation{
		OperationID: "day-get",
		Method:      http.MethodGet,
		Path:        "/api/days/{date}",
		Summary:     "One ledger day",
		Tags:        []string{"ledger"},
	}, h.day)

	huma.Register(api, huma.Operation{
		OperationID: "activity-list",
		Method:      http.MethodGet,
		Path:        "/api/activity",
		Summary:     "Per-tick activity log of one day",
		Tags:        []string{"ledger"},
	}, h.activityLog)

	huma.Register(api, huma.Operation{
		OperationID: "errors-list",
		Method:      http.MethodGet,
		Path:        "/api/errors",
		Summary:     "Recently recorded errors",
		Tags:        []string{"system"},
	}, h.errorLog)
}

type healthOutput struct {
	Body struct {
		Status string `json:"status"`
		Time   string `json:"time"`
	}
}

func (h *Handler) health(_ context.Context, _ *struct{}) (*healthOutput, error) {
	out := &healthOutput{}
	out.Body.Status = "healthy"
	out.Body.Time = h.now().Format(time.RFC3339)
	return out, nil
}

type employeeOutput struct {
	Body *device.Device
}

func (h *Handler) employee(_ context.Context, _ *struct{}) (*employeeOutput, error) {
	dev, err := h.identity.Load()
	if errors.Is(err, device.ErrNotRegistered) {
		return nil, huma.Error404NotFound("device is not registered")
	}
	if err != nil {
		h.log.Error("failed to load device", "error", err)
		return nil, huma.Error500InternalServerError("failed to load device registration")
	}
	return &employeeOutput{Body: dev}, nil
}

type todayBody struct {
	Date        string            `json:"date"`
	NormalHours float64           `json:"normal_hours"`
	OTHours     float64           `json:"ot_hours"`
	TotalHours  float64           `json:"total_hours"`
	FirstSeen   *models.Timestamp `json:"first_seen,omitempty"`
	LastSeen    *models.Timestamp `json:"last_seen,omitempty"`
	LunchUsed   bool              `json:"lunch_used"`
	BreaksUsed  int               `json:"breaks_used"`
	Live        bool              `json:"live" doc:"True when served from a running tracker"`
}

type todayOutput struct {
	Body todayBody
}

func (h *Handler) today(ctx context.Context, _ *struct{}) (*todayOutput, error) {
	date := workday.DateOf(h.now())

	if h.live != nil {
		st := h.live.Snapshot()
		if st.Date == date {
			return &todayOutput{Body: todayBody{
				Date:        st.Date,
				NormalHours: utils.Hours(st.NormalSeconds),
				OTHours:     utils.Hours(st.OTSeconds),
				TotalHours:  utils.Hours(st.TotalSeconds()),
				FirstSeen:   models.TimestampPtr(st.FirstSeen),
				LastSeen:    models.TimestampPtr(st.LastSeen),
				LunchUsed:   st.LunchUsed,
				BreaksUsed:  st.BreaksUsed,
				Live:        true,
			}}, nil
		}
	}

	rec, err := h.store.GetDay(ctx, date)
	if err != nil {
		h.log.Error("failed to read today", "error", err)
		return nil, huma.Error500InternalServerError("failed to read ledger")
	}
	if rec == nil {
		return &todayOutput{Body: todayBody{Date: date}}, nil
	}

	s := reporter.Summarize(rec)
	return &todayOutput{Body: todayBody{
		Date:        s.Date,
		NormalHours: s.NormalHours,
		OTHours:     s.OTHours,
		TotalHours:  s.TotalHours,
		FirstSeen:   s.FirstSeen,
		LastSeen:    s.LastSeen,
		LunchUsed:   s.LunchUsed,
		BreaksUsed:  s.BreaksUsed,
	}}, nil
}

type timesheetInput struct {
	Days int `query:"days" default:"7" minimum:"1" maximum:"366" doc:"Number of days, today included"`
}

type reportOutput struct {
	Body *models.Report
}

func (h *Handler) timesheet(ctx context.Context, in *timesheetInput) (*reportOutput, error) {
	report, err := h.reporter.LastDays(ctx, in.Days)
	if err != nil {
		h.log.Error("failed to build timesheet", "error", err)
		return nil, huma.Error500InternalServerError("failed to read ledger")
	}
	return &reportOutput{Body: report}, nil
}

type dayInput struct {
	Date string `path:"date" pattern:"^[0-9]{4}-[0-9]{2}-[0-9]{2}$" example:"2024-01-05" doc:"Calendar date"`
}

type dayOutput struct {
	Body models.DaySummary
}

func (h *Handler) day(ctx context.Context, in *dayInput) (*dayOutput, error) {
	rec, err := h.store.GetDay(ctx, in.Date)
	if err != nil {
		h.log.Error("failed to read day", "date", in.Date, "error", err)
		return nil, huma.Error500InternalServerError("failed to read ledger")
	}
	if rec == nil {
		return nil, huma.Error404NotFound("no work recorded on " + in.Date)
	}
	return &dayOutput{Body: reporter.Summarize(rec)}, nil
}

type activityInput struct {
	Date string `query:"date" pattern:"^[0-9]{4}-[0-9]{2}-[0-9]{2}$" doc:"Calendar date, defaults to today"`
}

type activityOutput struct {
	Body struct {
		Date    string              `json:"date"`
		Entries []activitylog.Entry `json:"entries"`
	}
}

func (h *Handler) activityLog(_ context.Context, in *activityInput) (*activityOutput, error) {
	if h.activity == nil {
		return nil, huma.Error503ServiceUnavailable("activity log is not configured")
	}

	date := in.Date
	if date == "" {
		date = workday.DateOf(h.now())
	}

	entries, err := h.activity.Read(date)
	if err != nil {
		h.log.Error("failed to read activity log", "date", date, "error", err)
		return nil, huma.Error500InternalServerError("failed to read activity log")
	}
	if entries == nil {
		entries = []activitylog.Entry{}
	}

	out := &activityOutput{}
	out.Body.Date = date
	out.Body.Entries = entries
	return out, nil
}

type errorsInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500"`
}

type errorsOutput struct {
	Body []models.ErrorLog
}

func (h *Handler) errorLog(_ context.Context, in *errorsInput) (*errorsOutput, error) {
	logs, err := h.store.RecentErrors(in.Limit)
	if err != nil {
		h.log.Error("failed to read error log", "error", err)
		return nil, huma.Error500InternalServerError("failed to read error log")
	}
	if logs == nil {
		logs = []models.ErrorLog{}
	}
	return &errorsOutput{Body: logs}, nil
}
