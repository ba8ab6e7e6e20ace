package models

import (
	"time"
)

// DayRecord is one ledger row per calendar date.
type DayRecord struct {
	WorkDate      string     `gorm:"primaryKey;size:10" json:"work_date"` // YYYY-MM-DD
	NormalSeconds int64      `gorm:"not null;default:0" json:"normal_seconds"`
	OTSeconds     int64      `gorm:"column:ot_seconds;not null;default:0" json:"ot_seconds"`
	FirstSeen     *Timestamp `gorm:"type:text" json:"first_seen,omitempty"`
	LastSeen      *Timestamp `gorm:"type:text" json:"last_seen,omitempty"`
	LunchUsed     bool       `gorm:"not null;default:false" json:"lunch_used"`
	BreaksUsed    int        `gorm:"not null;default:0" json:"breaks_used"`
	IdleKind      string     `gorm:"size:8;not null;default:'none'" json:"idle_kind"` // classification of the pause in progress
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DayRecord) TableName() string {
	return "daily_work"
}

// TotalSeconds returns normal plus overtime seconds.
func (d *DayRecord) TotalSeconds() int64 {
	return d.NormalSeconds + d.OTSeconds
}

// Closed reports whether the row can no longer change relative to today.
func (d *DayRecord) Closed(today string) bool {
	return d.WorkDate < today
}

// DaySummary is the reporting view of a DayRecord.
type DaySummary struct {
	Date        string     `json:"date"`
	NormalHours float64    `json:"normal_hours"`
	OTHours     float64    `json:"ot_hours"`
	TotalHours  float64    `json:"total_hours"`
	FirstSeen   *Timestamp `json:"first_seen,omitempty"`
	LastSeen    *Timestamp `json:"last_seen,omitempty"`
	LunchUsed   bool       `json:"lunch_used"`
	BreaksUsed  int        `json:"breaks_used"`
}

type ReportPeriod struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Type  string    `json:"type"` // "day", "week", "month"
}

type Report struct {
	Period      ReportPeriod `json:"period"`
	Days        []DaySummary `json:"days"`
	NormalHours float64      `json:"normal_hours"`
	OTHours     float64      `json:"ot_hours"`
	TotalHours  float64      `json:"total_hours"`
	DaysWorked  int          `json:"days_worked"`
	GeneratedAt time.Time    `json:"generated_at"`
}
