package models

import (
	"time"

	"gorm.io/gorm"
)

// Error sources recorded in ErrorLog.Source.
const (
	SourceTracker = "tracker"
	SourceLedger  = "ledger"
	SourceSync    = "sync"
)

type ErrorLog struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Timestamp time.Time      `gorm:"not null;index" json:"timestamp"`
	Source    string         `gorm:"not null;default:'tracker';index" json:"source"`
	WorkDate  string         `gorm:"size:10" json:"work_date,omitempty"`
	ErrorMsg  string         `gorm:"not null" json:"error_msg"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
