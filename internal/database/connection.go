package database

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/shiftledger/shiftledger/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const busyTimeoutMs = 10000

type DB struct {
	*gorm.DB
}

// Connect opens the ledger at dbPath. The pool is limited to one connection
// so every read and write in the process is serialized.
func Connect(dbPath string) (*DB, error) {
	if dbPath == "" {
		return nil, errors.New("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL", dbPath, busyTimeoutMs)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get underlying sql.DB")
	}
	sqlDB.SetMaxOpenConns(1)

	return &DB{db}, nil
}

// Initialize creates the schema, or upgrades an existing ledger in place by
// adding columns it lacks. Existing rows are never rewritten.
func (db *DB) Initialize() error {
	m := db.Migrator()

	if m.HasTable(&models.DayRecord{}) {
		for _, field := range []string{"FirstSeen", "LastSeen", "LunchUsed", "BreaksUsed", "IdleKind", "CreatedAt", "UpdatedAt"} {
			if m.HasColumn(&models.DayRecord{}, field) {
				continue
			}
			if err := m.AddColumn(&models.DayRecord{}, field); err != nil {
				return errors.Wrapf(err, "failed to add column %s to ledger", field)
			}
		}
	} else if err := db.AutoMigrate(&models.DayRecord{}); err != nil {
		return errors.Wrap(err, "failed to create ledger table")
	}

	if err := db.AutoMigrate(&models.ErrorLog{}); err != nil {
		return errors.Wrap(err, "failed to initialize database schema")
	}

	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return errors.Wrap(err, "failed to get underlying sql.DB")
	}
	return sqlDB.Close()
}
