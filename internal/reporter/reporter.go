package reporter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shiftledger/shiftledger/internal/models"
	"github.com/shiftledger/shiftledger/internal/workday"
	"github.com/shiftledger/shiftledger/pkg/utils"
)

// DayReader is the read side of the day ledger.
type DayReader interface {
	DaysBetween(ctx context.Context, from, to string) ([]models.DayRecord, error)
}

// Reporter handles report generation
type Reporter struct {
	repo DayReader
	now  func() time.Time
}

// New creates a new reporter
func New(repo DayReader) *Reporter {
	return &Reporter{
		repo: repo,
		now:  time.Now,
	}
}

// WithClock replaces the time source used to place report periods.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// GenerateReport generates a report for the specified period
func (r *Reporter) GenerateReport(ctx context.Context, periodType string) (*models.Report, error) {
	period, err := r.getPeriod(periodType)
	if err != nil {
		return nil, err
	}

	last := period.End.AddDate(0, 0, -1)
	return r.build(ctx, *period, workday.DateOf(period.Start), workday.DateOf(last))
}

// LastDays reports the n calendar days ending today, today included.
func (r *Reporter) LastDays(ctx context.Context, n int) (*models.Report, error) {
	if n < 1 {
		return nil, errors.Errorf("days must be at least 1, got %d", n)
	}
	now := r.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	period := models.ReportPeriod{
		Start: today.AddDate(0, 0, -(n - 1)),
		End:   today.AddDate(0, 0, 1),
		Type:  fmt.Sprintf("last %d days", n),
	}
	return r.build(ctx, period, workday.DateOf(period.Start), workday.DateOf(today))
}

func (r *Reporter) build(ctx context.Context, period models.ReportPeriod, from, to string) (*models.Report, error) {
	rows, err := r.repo.DaysBetween(ctx, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read ledger")
	}

	report := &models.Report{
		Period:      period,
		Days:        make([]models.DaySummary, 0, len(rows)),
		GeneratedAt: r.now(),
	}

	// Sum seconds and round once, so totals match the ledger exactly.
	var normal, ot int64
	for i := range rows {
		report.Days = append(report.Days, Summarize(&rows[i]))
		normal += rows[i].NormalSeconds
		ot += rows[i].OTSeconds
		if rows[i].TotalSeconds() > 0 {
			report.DaysWorked++
		}
	}
	report.NormalHours = utils.Hours(normal)
	report.OTHours = utils.Hours(ot)
	report.TotalHours = utils.Hours(normal + ot)

	return report, nil
}

// Summarize converts a ledger row to its reporting view.
func Summarize(rec *models.DayRecord) models.DaySummary {
	return models.DaySummary{
		Date:        rec.WorkDate,
		NormalHours: utils.Hours(rec.NormalSeconds),
		OTHours:     utils.Hours(rec.OTSeconds),
		TotalHours:  utils.Hours(rec.TotalSeconds()),
		FirstSeen:   rec.FirstSeen,
		LastSeen:    rec.LastSeen,
		LunchUsed:   rec.LunchUsed,
		BreaksUsed:  rec.BreaksUsed,
	}
}

// getPeriod calculates the time range for the report
func (r *Reporter) getPeriod(periodType string) (*models.ReportPeriod, error) {
	now := r.now()
	var start, end time.Time

	switch periodType {
	case "day", "today":
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 0, 1)

	case "week":
		// Start of week (Monday)
		weekday := int(now.Weekday())
		if weekday == 0 {
			weekday = 7 // Sunday = 7
		}
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -(weekday - 1))
		end = start.AddDate(0, 0, 7)

	case "month":
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		end = start.AddDate(0, 1, 0)

	default:
		return nil, errors.Errorf("invalid period type: %s (valid: day, week, month)", periodType)
	}

	return &models.ReportPeriod{
		Start: start,
		End:   end,
		Type:  periodType,
	}, nil
}

// FormatReportText formats the report as human-readable text
func (r *Reporter) FormatReportText(report *models.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Work Report - %s\n", report.Period.Type)
	fmt.Fprintf(&b, "Period: %s to %s\n",
		report.Period.Start.Format("2006-01-02"),
		report.Period.End.AddDate(0, 0, -1).Format("2006-01-02"))
	fmt.Fprintf(&b, "Total: %.2fh (normal %.2fh, overtime %.2fh) over %d day(s)\n\n",
		report.TotalHours, report.NormalHours, report.OTHours, report.DaysWorked)

	if len(report.Days) == 0 {
		b.WriteString("No work recorded for this period.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-12s %8s %8s %8s %6s %6s %6s %6s\n", "Date", "Normal", "OT", "Total", "In", "Out", "Lunch", "Breaks")
	b.WriteString(strings.Repeat("-", 72) + "\n")

	for _, d := range report.Days {
		lunch := "no"
		if d.LunchUsed {
			lunch = "yes"
		}
		fmt.Fprintf(&b, "%-12s %8.2f %8.2f %8.2f %6s %6s %6s %6d\n",
			d.Date, d.NormalHours, d.OTHours, d.TotalHours,
			clock(d.FirstSeen), clock(d.LastSeen), lunch, d.BreaksUsed)
	}

	return b.String()
}

// FormatReportJSON formats the report as JSON
func (r *Reporter) FormatReportJSON(report *models.Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal JSON")
	}
	return string(data), nil
}

func clock(ts *models.Timestamp) string {
	if ts == nil {
		return "-"
	}
	return ts.Time().Format("15:04")
}
