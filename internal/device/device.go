// Package device manages the one-time registration artifact that binds this
// machine to an employee record.
package device

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrNotRegistered is returned when no usable registration exists.
var ErrNotRegistered = errors.New("device is not registered")

type Device struct {
	EmployeeID   string    `json:"employee_id"`
	EmployeeName string    `json:"employee_name,omitempty"`
	Email        string    `json:"email,omitempty"`
	Department   string    `json:"department,omitempty"`
	Designation  string    `json:"designation,omitempty"`
	DeviceID     string    `json:"device_id"`
	MachineName  string    `json:"machine_name"`
	OS           string    `json:"os"`
	FirstLogin   time.Time `json:"first_login"`
}

// New returns a registration for employeeID with a fresh device id.
func New(employeeID string) *Device {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return &Device{
		EmployeeID:  employeeID,
		DeviceID:    uuid.NewString(),
		MachineName: host,
		OS:          runtime.GOOS,
		FirstLogin:  time.Now(),
	}
}

// Store reads and writes the registration file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the stored registration.
func (s *Store) Load() (*Device, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, ErrNotRegistered
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read device file")
	}

	var d Device
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errors.Wrap(err, "failed to parse device file")
	}
	if strings.TrimSpace(d.EmployeeID) == "" {
		return nil, ErrNotRegistered
	}
	return &d, nil
}

// Save writes d atomically. An existing device id is preserved so that
// re-registering the same machine keeps its identity.
func (s *Store) Save(d *Device) error {
	if strings.TrimSpace(d.EmployeeID) == "" {
		return errors.New("employee id is required")
	}
	if prev, err := s.Load(); err == nil && prev.DeviceID != "" {
		d.DeviceID = prev.DeviceID
		d.FirstLogin = prev.FirstLogin
	}
	if d.DeviceID == "" {
		d.DeviceID = uuid.NewString()
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode device file")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrap(err, "failed to create device directory")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write device file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "failed to replace device file")
	}
	return nil
}

// EmployeeID returns the registered employee id or ErrNotRegistered.
func (s *Store) EmployeeID() (string, error) {
	d, err := s.Load()
	if err != nil {
		return "", err
	}
	return d.EmployeeID, nil
}
