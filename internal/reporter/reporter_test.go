package reporter

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/shiftledger/shiftledger/internal/database"
	"github.com/shiftledger/shiftledger/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestReporter(t *testing.T, now time.Time, rows ...models.DayRecord) *Reporter {
	t.Helper()
	db, err := database.Connect(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Initialize())

	repo := database.NewRepository(db)
	for i := range rows {
		require.NoError(t, repo.UpsertDay(context.Background(), &rows[i]))
	}

	r := New(repo)
	r.now = func() time.Time { return now }
	return r
}

func day(date string, normal, ot int64) models.DayRecord {
	d, _ := time.ParseInLocation("2006-01-02", date, time.Local)
	return models.DayRecord{
		WorkDate:      date,
		NormalSeconds: normal,
		OTSeconds:     ot,
		FirstSeen:     models.NewTimestamp(d.Add(9 * time.Hour)),
		LastSeen:      models.NewTimestamp(d.Add(17*time.Hour + 30*time.Minute)),
	}
}

// Wednesday
var now = time.Date(2024, 1, 17, 15, 0, 0, 0, time.Local)

func TestGetPeriod(t *testing.T) {
	r := New(nil)
	r.now = func() time.Time { return now }

	tests := []struct {
		period    string
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{"day", "2024-01-17", "2024-01-18", false},
		{"today", "2024-01-17", "2024-01-18", false},
		{"week", "2024-01-15", "2024-01-22", false},
		{"month", "2024-01-01", "2024-02-01", false},
		{"year", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.period, func(t *testing.T) {
			p, err := r.getPeriod(tt.period)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, p.Start.Format("2006-01-02"))
			assert.Equal(t, tt.wantEnd, p.End.Format("2006-01-02"))
		})
	}
}

func TestGetPeriod_WeekOnSunday(t *testing.T) {
	r := New(nil)
	r.now = func() time.Time { return time.Date(2024, 1, 21, 10, 0, 0, 0, time.Local) }

	p, err := r.getPeriod("week")
	require.NoError(t, err)
	assert.Equal(t, "2024-01-15", p.Start.Format("2006-01-02"))
}

func TestGenerateReport_Week(t *testing.T) {
	r := newTestReporter(t, now,
		day("2024-01-12", 8*3600, 0), // previous week
		day("2024-01-15", 8*3600, 1800),
		day("2024-01-16", 6*3600, 0),
		day("2024-01-17", 2*3600, 0),
	)

	report, err := r.GenerateReport(context.Background(), "week")
	require.NoError(t, err)

	require.Len(t, report.Days, 3)
	assert.Equal(t, "2024-01-15", report.Days[0].Date)
	assert.Equal(t, 8.5, report.Days[0].TotalHours)
	assert.Equal(t, 16.0, report.NormalHours)
	assert.Equal(t, 0.5, report.OTHours)
	assert.Equal(t, 16.5, report.TotalHours)
	assert.Equal(t, 3, report.DaysWorked)
}

func TestGenerateReport_Empty(t *testing.T) {
	r := newTestReporter(t, now)

	report, err := r.GenerateReport(context.Background(), "day")
	require.NoError(t, err)
	assert.Empty(t, report.Days)
	assert.Equal(t, 0.0, report.TotalHours)

	text := r.FormatReportText(report)
	assert.Contains(t, text, "No work recorded")
}

func TestLastDays(t *testing.T) {
	r := newTestReporter(t, now,
		day("2024-01-10", 3600, 0),
		day("2024-01-16", 3600, 0),
		day("2024-01-17", 1800, 0),
	)

	report, err := r.LastDays(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, report.Days, 2)
	assert.Equal(t, "2024-01-11", report.Period.Start.Format("2006-01-02"))
	assert.Equal(t, 1.5, report.TotalHours)

	_, err = r.LastDays(context.Background(), 0)
	assert.Error(t, err)
}

func TestFormatReportText(t *testing.T) {
	r := newTestReporter(t, now, day("2024-01-17", 7*3600, 0))
	report, err := r.GenerateReport(context.Background(), "day")
	require.NoError(t, err)

	text := r.FormatReportText(report)
	assert.Contains(t, text, "Work Report - day")
	assert.Contains(t, text, "Period: 2024-01-17 to 2024-01-17")
	assert.Contains(t, text, "2024-01-17")
	assert.Contains(t, text, "09:00")
	assert.Contains(t, text, "17:30")
	assert.Contains(t, text, "7.00")
}

func TestFormatReportJSON(t *testing.T) {
	r := newTestReporter(t, now, day("2024-01-17", 3600, 0))
	report, err := r.GenerateReport(context.Background(), "day")
	require.NoError(t, err)

	out, err := r.FormatReportJSON(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 1.0, decoded["total_hours"])
	days := decoded["days"].([]any)
	require.Len(t, days, 1)
	assert.Equal(t, "2024-01-17 09:00:00", days[0].(map[string]any)["first_seen"])
}
