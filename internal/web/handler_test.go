package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shiftledger/shiftledger/internal/activitylog"
	"github.com/shiftledger/shiftledger/internal/device"
	"github.com/shiftledger/shiftledger/internal/logging"
	"github.com/shiftledger/shiftledger/internal/models"
	"github.com/shiftledger/shiftledger/internal/workday"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) GetDay(ctx context.Context, date string) (*models.DayRecord, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DayRecord), args.Error(1)
}

func (m *MockStore) DaysBetween(ctx context.Context, from, to string) ([]models.DayRecord, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).([]models.DayRecord), args.Error(1)
}

func (m *MockStore) RecentErrors(limit int) ([]models.ErrorLog, error) {
	args := m.Called(limit)
	return args.Get(0).([]models.ErrorLog), args.Error(1)
}

type MockIdentity struct {
	mock.Mock
}

func (m *MockIdentity) Load() (*device.Device, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*device.Device), args.Error(1)
}

type staticLive struct{ st workday.State }

func (s staticLive) Snapshot() workday.State { return s.st.Clone() }

var now = time.Date(2024, 1, 5, 11, 0, 0, 0, time.Local)

func newTestRouter(t *testing.T, store Store, identity Identity, activity ActivityReader, live Live) http.Handler {
	t.Helper()
	h := NewHandler(store, identity, activity, live, logging.Discard())
	h.now = func() time.Time { return now }
	return NewRouter(h, logging.Discard())
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func sampleDay(date string) *models.DayRecord {
	d, _ := time.ParseInLocation("2006-01-02", date, time.Local)
	return &models.DayRecord{
		WorkDate:      date,
		NormalSeconds: 8 * 3600,
		OTSeconds:     1800,
		FirstSeen:     models.NewTimestamp(d.Add(9 * time.Hour)),
		LastSeen:      models.NewTimestamp(d.Add(17*time.Hour + 30*time.Minute)),
		BreaksUsed:    1,
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, new(MockStore), new(MockIdentity), nil, nil)

	rec := get(t, router, "/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status string `json:"status"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body.Status)
}

func TestEmployee(t *testing.T) {
	identity := new(MockIdentity)
	identity.On("Load").Return(&device.Device{EmployeeID: "HR-EMP-0001", DeviceID: "dev-1"}, nil).Once()
	identity.On("Load").Return(nil, device.ErrNotRegistered).Once()
	identity.On("Load").Return(nil, errors.New("corrupt file")).Once()
	router := newTestRouter(t, new(MockStore), identity, nil, nil)

	rec := get(t, router, "/api/employee")
	require.Equal(t, http.StatusOK, rec.Code)
	var dev device.Device
	decode(t, rec, &dev)
	assert.Equal(t, "HR-EMP-0001", dev.EmployeeID)

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/employee").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, router, "/api/employee").Code)
	identity.AssertExpectations(t)
}

func TestToday_FromLedger(t *testing.T) {
	store := new(MockStore)
	store.On("GetDay", mock.Anything, "2024-01-05").Return(sampleDay("2024-01-05"), nil)
	router := newTestRouter(t, store, new(MockIdentity), nil, nil)

	rec := get(t, router, "/api/today")
	require.Equal(t, http.StatusOK, rec.Code)

	var body todayBody
	decode(t, rec, &body)
	assert.Equal(t, "2024-01-05", body.Date)
	assert.Equal(t, 8.5, body.TotalHours)
	assert.False(t, body.Live)
	require.NotNil(t, body.FirstSeen)
	assert.Equal(t, "2024-01-05 09:00:00", body.FirstSeen.String())
}

func TestToday_NothingYet(t *testing.T) {
	store := new(MockStore)
	store.On("GetDay", mock.Anything, "2024-01-05").Return(nil, nil)
	router := newTestRouter(t, store, new(MockIdentity), nil, nil)

	rec := get(t, router, "/api/today")
	require.Equal(t, http.StatusOK, rec.Code)

	var body todayBody
	decode(t, rec, &body)
	assert.Equal(t, "2024-01-05", body.Date)
	assert.Equal(t, 0.0, body.TotalHours)
	assert.Nil(t, body.FirstSeen)
}

func TestToday_Live(t *testing.T) {
	st := workday.NewState(now)
	st.NormalSeconds = 2 * 3600
	first := now.Add(-2 * time.Hour)
	st.FirstSeen = &first
	store := new(MockStore)
	router := newTestRouter(t, store, new(MockIdentity), nil, staticLive{st})

	rec := get(t, router, "/api/today")
	require.Equal(t, http.StatusOK, rec.Code)

	var body todayBody
	decode(t, rec, &body)
	assert.True(t, body.Live)
	assert.Equal(t, 2.0, body.NormalHours)
	store.AssertNotCalled(t, "GetDay", mock.Anything, mock.Anything)
}

func TestTimesheet(t *testing.T) {
	store := new(MockStore)
	store.On("DaysBetween", mock.Anything, "2023-12-30", "2024-01-05").
		Return([]models.DayRecord{*sampleDay("2024-01-02"), *sampleDay("2024-01-03")}, nil)
	router := newTestRouter(t, store, new(MockIdentity), nil, nil)

	rec := get(t, router, "/api/timesheet")
	require.Equal(t, http.StatusOK, rec.Code)

	var report models.Report
	decode(t, rec, &report)
	require.Len(t, report.Days, 2)
	assert.Equal(t, 17.0, report.TotalHours)
	assert.Equal(t, 2, report.DaysWorked)
	store.AssertExpectations(t)
}

func TestTimesheet_Days(t *testing.T) {
	store := new(MockStore)
	store.On("DaysBetween", mock.Anything, "2024-01-05", "2024-01-05").Return([]models.DayRecord{}, nil)
	router := newTestRouter(t, store, new(MockIdentity), nil, nil)

	assert.Equal(t, http.StatusOK, get(t, router, "/api/timesheet?days=1").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, get(t, router, "/api/timesheet?days=0").Code)
	store.AssertExpectations(t)
}

func TestDay(t *testing.T) {
	store := new(MockStore)
	store.On("GetDay", mock.Anything, "2024-01-03").Return(sampleDay("2024-01-03"), nil)
	store.On("GetDay", mock.Anything, "2024-01-04").Return(nil, nil)
	store.On("GetDay", mock.Anything, "2024-01-06").Return(nil, errors.New("database is locked"))
	router := newTestRouter(t, store, new(MockIdentity), nil, nil)

	rec := get(t, router, "/api/days/2024-01-03")
	require.Equal(t, http.StatusOK, rec.Code)
	var s models.DaySummary
	decode(t, rec, &s)
	assert.Equal(t, 8.0, s.NormalHours)
	assert.Equal(t, 0.5, s.OTHours)
	assert.Equal(t, 1, s.BreaksUsed)

	assert.Equal(t, http.StatusNotFound, get(t, router, "/api/days/2024-01-04").Code)
	assert.Equal(t, http.StatusInternalServerError, get(t, router, "/api/days/2024-01-06").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, get(t, router, "/api/days/yesterday").Code)
}

func TestActivity(t *testing.T) {
	al, err := activitylog.New(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, al.Append(activitylog.Entry{Timestamp: now, NormalHours: 1.5, BreaksUsed: 1}))

	router := newTestRouter(t, new(MockStore), new(MockIdentity), al, nil)

	rec := get(t, router, "/api/activity")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Date    string              `json:"date"`
		Entries []activitylog.Entry `json:"entries"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "2024-01-05", body.Date)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, 1.5, body.Entries[0].NormalHours)

	rec = get(t, router, "/api/activity?date=2024-01-04")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Empty(t, body.Entries)
}

func TestActivity_NotConfigured(t *testing.T) {
	router := newTestRouter(t, new(MockStore), new(MockIdentity), nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, router, "/api/activity").Code)
}

func TestErrors(t *testing.T) {
	store := new(MockStore)
	store.On("RecentErrors", 50).Return([]models.ErrorLog{
		{ID: 2, Source: models.SourceSync, WorkDate: "2024-01-04", ErrorMsg: "503 Service Unavailable"},
	}, nil)
	store.On("RecentErrors", 5).Return([]models.ErrorLog(nil), nil)
	router := newTestRouter(t, store, new(MockIdentity), nil, nil)

	rec := get(t, router, "/api/errors")
	require.Equal(t, http.StatusOK, rec.Code)
	var logs []models.ErrorLog
	decode(t, rec, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, models.SourceSync, logs[0].Source)

	rec = get(t, router, "/api/errors?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	store.AssertExpectations(t)
}

func TestServerRun_StopsOnCancel(t *testing.T) {
	srv := NewServer("127.0.0.1", 0, http.NotFoundHandler(), logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
