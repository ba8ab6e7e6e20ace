package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shiftledger/shiftledger/internal/workday"
)

// Config holds all application configuration
type Config struct {
	// Base directory for the ledger, device file, logs and screenshots
	DataDir string

	// Database configuration
	Database DatabaseConfig

	// Tracker configuration
	Tracker TrackerConfig

	// Screenshot configuration
	Screenshot ScreenshotConfig

	// ERP sync configuration
	Sync SyncConfig

	// Device registration configuration
	Device DeviceConfig

	// Activity log configuration
	ActivityLog ActivityLogConfig

	// Daemon configuration
	Daemon DaemonConfig

	// Web server configuration
	Web WebConfig

	// Log configuration
	Log LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Path string // Path to SQLite ledger file
}

// TrackerConfig holds the sampling and work policy configuration
type TrackerConfig struct {
	TickInterval      time.Duration // Sampling tick, also the unit of accrual
	MinTickInterval   time.Duration
	MaxTickInterval   time.Duration
	InputPollInterval time.Duration // How often the idle source is polled
	ActiveWindow      time.Duration // Input newer than this makes a tick active
	WorkIdleLimit     time.Duration // Idle at or above this stops work accrual
	BreakIdle         time.Duration
	LunchIdle         time.Duration
	MaxBreaks         int
	NormalLimit       time.Duration
	MaxOvertime       time.Duration
}

// ScreenshotConfig holds periodic screenshot configuration
type ScreenshotConfig struct {
	Enabled         bool
	IntervalMinutes int
	DuringOvertime  bool
	Dir             string
}

// SyncConfig holds remote HR system configuration
type SyncConfig struct {
	Enabled    bool
	BaseURL    string
	APIKey     string
	APISecret  string
	Interval   time.Duration
	Timeout    time.Duration // Per HTTP request
	RowTimeout time.Duration // Per ledger row, covers all remote calls for the day
}

// DeviceConfig holds the device registration artifact location
type DeviceConfig struct {
	Path string
}

// ActivityLogConfig holds the append-only activity log location
type ActivityLogConfig struct {
	Dir string
}

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	PIDFile string // Path to PID file for daemon management
	LogFile string // Where the detached daemon writes its log
}

// WebConfig holds web server configuration
type WebConfig struct {
	Enabled bool
	Host    string // Host to bind web server to
	Port    int    // Port for web server
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		DataDir: "", // Empty means ~/.config/shiftledger
		Database: DatabaseConfig{
			Path: "", // Empty means use default ~/.config/shiftledger/ledger.db
		},
		Tracker: TrackerConfig{
			TickInterval:      60 * time.Second,
			MinTickInterval:   10 * time.Second,
			MaxTickInterval:   300 * time.Second,
			InputPollInterval: 5 * time.Second,
			ActiveWindow:      60 * time.Second,
			WorkIdleLimit:     20 * time.Minute,
			BreakIdle:         15 * time.Minute,
			LunchIdle:         60 * time.Minute,
			MaxBreaks:         2,
			NormalLimit:       8 * time.Hour,
			MaxOvertime:       4 * time.Hour,
		},
		Screenshot: ScreenshotConfig{
			Enabled:         false,
			IntervalMinutes: 10,
			DuringOvertime:  true,
			Dir:             "", // Empty means <data dir>/screenshots
		},
		Sync: SyncConfig{
			Enabled:    true,
			BaseURL:    "",
			Interval:   10 * time.Minute,
			Timeout:    20 * time.Second,
			RowTimeout: 90 * time.Second,
		},
		Device: DeviceConfig{
			Path: "", // Empty means <data dir>/device.json
		},
		ActivityLog: ActivityLogConfig{
			Dir: "", // Empty means <data dir>/activity_logs
		},
		Daemon: DaemonConfig{
			PIDFile: fmt.Sprintf("/tmp/shiftledger-%d.pid", os.Getuid()),
			LogFile: fmt.Sprintf("/tmp/shiftledger-%d.log", os.Getuid()),
		},
		Web: WebConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    10000 + os.Getuid()%50000, // Default port based on user ID
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	t := c.Tracker
	if t.TickInterval < t.MinTickInterval {
		return fmt.Errorf("tick interval (%v) cannot be less than minimum (%v)",
			t.TickInterval, t.MinTickInterval)
	}

	if t.TickInterval > t.MaxTickInterval {
		return fmt.Errorf("tick interval (%v) cannot be greater than maximum (%v)",
			t.TickInterval, t.MaxTickInterval)
	}

	if t.InputPollInterval <= 0 {
		return fmt.Errorf("input poll interval must be positive")
	}

	if t.ActiveWindow <= 0 || t.WorkIdleLimit <= 0 || t.BreakIdle <= 0 || t.LunchIdle <= 0 {
		return fmt.Errorf("idle thresholds must be positive")
	}

	if t.BreakIdle > t.LunchIdle {
		return fmt.Errorf("break threshold (%v) cannot exceed lunch threshold (%v)", t.BreakIdle, t.LunchIdle)
	}

	if t.MaxBreaks < 0 {
		return fmt.Errorf("max breaks cannot be negative")
	}

	if t.NormalLimit <= 0 || t.MaxOvertime < 0 {
		return fmt.Errorf("normal limit must be positive and overtime limit non-negative")
	}

	if c.Screenshot.Enabled && (c.Screenshot.IntervalMinutes < 1 || c.Screenshot.IntervalMinutes > 60) {
		return fmt.Errorf("screenshot interval must be between 1 and 60 minutes, got %d", c.Screenshot.IntervalMinutes)
	}

	if c.Sync.Enabled {
		if c.Sync.BaseURL != "" && !strings.HasPrefix(c.Sync.BaseURL, "http://") && !strings.HasPrefix(c.Sync.BaseURL, "https://") {
			return fmt.Errorf("sync base URL must start with http:// or https://, got %q", c.Sync.BaseURL)
		}
		if c.Sync.Interval <= 0 || c.Sync.Timeout <= 0 || c.Sync.RowTimeout <= 0 {
			return fmt.Errorf("sync interval and timeouts must be positive")
		}
	}

	// Validate web config
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
	}

	if c.Web.Host == "" {
		return fmt.Errorf("web host cannot be empty")
	}

	// Validate daemon config
	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("PID file path cannot be empty")
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// SetTickInterval sets the tick interval with validation
func (c *Config) SetTickInterval(interval time.Duration) error {
	if interval < c.Tracker.MinTickInterval {
		return fmt.Errorf("tick interval cannot be less than %v", c.Tracker.MinTickInterval)
	}
	if interval > c.Tracker.MaxTickInterval {
		return fmt.Errorf("tick interval cannot be greater than %v", c.Tracker.MaxTickInterval)
	}
	c.Tracker.TickInterval = interval
	return nil
}

// SetWebPort sets the web server port with validation
func (c *Config) SetWebPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	c.Web.Port = port
	return nil
}

// SyncConfigured reports whether the ERP synchronizer has enough
// configuration to run.
func (c *Config) SyncConfigured() bool {
	return c.Sync.Enabled && c.Sync.BaseURL != ""
}

// Policy returns the immutable work policy consumed by the state machine.
func (c *Config) Policy() workday.Policy {
	return workday.Policy{
		Tick:          c.Tracker.TickInterval,
		ActiveWindow:  c.Tracker.ActiveWindow,
		WorkIdleLimit: c.Tracker.WorkIdleLimit,
		BreakIdle:     c.Tracker.BreakIdle,
		LunchIdle:     c.Tracker.LunchIdle,
		MaxBreaks:     c.Tracker.MaxBreaks,
		NormalLimit:   c.Tracker.NormalLimit,
		MaxOvertime:   c.Tracker.MaxOvertime,
	}
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Data Dir: %s
  Database:
    Path: %s
  Tracker:
    Tick Interval: %v
    Input Poll: %v
    Work Idle Limit: %v
    Break / Lunch: %v / %v (max %d breaks)
    Normal / Overtime: %v / %v
  Screenshot:
    Enabled: %v
    Interval: %dm
    During Overtime: %v
  Sync:
    Enabled: %v
    Base URL: %s
    Interval: %v
    Timeout: %v
  Daemon:
    PID File: %s
  Web:
    Enabled: %v
    Host: %s
    Port: %d
  Log:
    Level: %s
    Format: %s`,
		c.DataDir,
		c.Database.Path,
		c.Tracker.TickInterval,
		c.Tracker.InputPollInterval,
		c.Tracker.WorkIdleLimit,
		c.Tracker.BreakIdle,
		c.Tracker.LunchIdle,
		c.Tracker.MaxBreaks,
		c.Tracker.NormalLimit,
		c.Tracker.MaxOvertime,
		c.Screenshot.Enabled,
		c.Screenshot.IntervalMinutes,
		c.Screenshot.DuringOvertime,
		c.Sync.Enabled,
		c.Sync.BaseURL,
		c.Sync.Interval,
		c.Sync.Timeout,
		c.Daemon.PIDFile,
		c.Web.Enabled,
		c.Web.Host,
		c.Web.Port,
		c.Log.Level,
		c.Log.Format,
	)
}
