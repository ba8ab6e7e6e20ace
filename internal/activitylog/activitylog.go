// Package activitylog is the append-only per-tick audit trail: one JSON line
// per sampling tick, one file per calendar day.
package activitylog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const filePrefix = "activity-"

// Entry is one line of the activity log.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	NormalHours float64   `json:"normal_hours"`
	OTHours     float64   `json:"ot_hours"`
	IdleSeconds int64     `json:"idle_seconds"`
	LunchUsed   bool      `json:"lunch_used"`
	BreaksUsed  int       `json:"breaks_used"`
}

// Log writes entries under dir, in files named activity-YYYY-MM-DD.jsonl.
type Log struct {
	dir string
	mu  sync.Mutex
}

func New(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create activity log directory")
	}
	return &Log{dir: dir}, nil
}

// Path returns the file holding entries for date (YYYY-MM-DD).
func (l *Log) Path(date string) string {
	return filepath.Join(l.dir, filePrefix+date+".jsonl")
}

// Append writes e to the file of its timestamp's date.
func (l *Log) Append(e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "failed to encode activity entry")
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.Path(e.Timestamp.Format("2006-01-02")), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrap(err, "failed to open activity log")
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return errors.Wrap(err, "failed to append activity entry")
	}
	return nil
}

// Read returns all entries recorded for date. A missing file yields no
// entries. Lines that do not decode are skipped, so a torn final write does
// not hide the rest of the day.
func (l *Log) Read(date string) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.Path(date))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to open activity log")
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, errors.Wrap(err, "failed to read activity log")
	}
	return entries, nil
}
