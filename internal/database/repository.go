package database

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shiftledger/shiftledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository handles all ledger and error log operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// UpsertDay merges rec into the ledger row for rec.WorkDate. Totals, lunch
// and break usage and last_seen take the given values; a stored first_seen
// is never replaced.
func (r *Repository) UpsertDay(ctx context.Context, rec *models.DayRecord) error {
	if rec.WorkDate == "" {
		return errors.New("work date is required")
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "work_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"normal_seconds": gorm.Expr("excluded.normal_seconds"),
			"ot_seconds":     gorm.Expr("excluded.ot_seconds"),
			"first_seen":     gorm.Expr("COALESCE(daily_work.first_seen, excluded.first_seen)"),
			"last_seen":      gorm.Expr("excluded.last_seen"),
			"lunch_used":     gorm.Expr("excluded.lunch_used"),
			"breaks_used":    gorm.Expr("excluded.breaks_used"),
			"idle_kind":      gorm.Expr("excluded.idle_kind"),
			"updated_at":     gorm.Expr("excluded.updated_at"),
		}),
	}).Create(rec)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "failed to upsert day %s", rec.WorkDate)
	}
	return nil
}

// GetDay returns the row for date, or nil if there is none.
func (r *Repository) GetDay(ctx context.Context, date string) (*models.DayRecord, error) {
	var rec models.DayRecord
	result := r.db.WithContext(ctx).Where("work_date = ?", date).Limit(1).Find(&rec)
	if result.Error != nil {
		return nil, errors.Wrapf(result.Error, "failed to get day %s", date)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &rec, nil
}

// ClosedDays returns rows dated strictly before the given date that have both
// activity bounds, oldest first.
func (r *Repository) ClosedDays(ctx context.Context, before string) ([]models.DayRecord, error) {
	var recs []models.DayRecord
	result := r.db.WithContext(ctx).
		Where("work_date < ? AND first_seen IS NOT NULL AND last_seen IS NOT NULL", before).
		Order("work_date ASC").
		Find(&recs)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query closed days")
	}
	return recs, nil
}

// DaysBetween returns rows with from <= work_date <= to, oldest first.
func (r *Repository) DaysBetween(ctx context.Context, from, to string) ([]models.DayRecord, error) {
	var recs []models.DayRecord
	result := r.db.WithContext(ctx).
		Where("work_date >= ? AND work_date <= ?", from, to).
		Order("work_date ASC").
		Find(&recs)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query days")
	}
	return recs, nil
}

// CreateErrorLog inserts a new error log into the database
func (r *Repository) CreateErrorLog(errorLog *models.ErrorLog) error {
	result := r.db.Create(errorLog)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert error log")
	}
	return nil
}

// RecentErrors returns up to limit error logs, newest first.
func (r *Repository) RecentErrors(limit int) ([]models.ErrorLog, error) {
	var logs []models.ErrorLog
	result := r.db.Order("timestamp DESC").Order("id DESC").Limit(limit).Find(&logs)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query error logs")
	}
	return logs, nil
}

// DeleteOldErrors soft-deletes error logs older than before
func (r *Repository) DeleteOldErrors(before time.Time) (int64, error) {
	result := r.db.Where("timestamp < ?", before).Delete(&models.ErrorLog{})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "failed to delete old error logs")
	}
	return result.RowsAffected, nil
}
