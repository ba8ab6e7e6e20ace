package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "SHIFTLEDGER"
	defaultDataDir = ".config/shiftledger"
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	return v
}

// loadDotEnv loads a .env file from the working directory if one exists.
// Variables already present in the environment win.
func loadDotEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}
}

// LoadFromEnv loads configuration from environment variables
// Environment variables override default values
func LoadFromEnv(cfg *Config) {
	apply(newViper(), cfg)
}

// New creates a new Config with default values and loads from environment
func New() *Config {
	loadDotEnv()
	cfg := Default()
	LoadFromEnv(cfg)
	return cfg
}

// Load is like New but also reads a YAML/TOML/JSON config file. Keys in the
// file use the environment names without the prefix, e.g. erp_base_url.
// Environment variables override the file.
func Load(path string) (*Config, error) {
	if path == "" {
		return New(), nil
	}

	loadDotEnv()
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	cfg := Default()
	apply(v, cfg)
	return cfg, nil
}

func apply(v *viper.Viper, cfg *Config) {
	if dir := v.GetString("data_dir"); dir != "" {
		cfg.DataDir = dir
	}

	// Database configuration
	if dbPath := v.GetString("db_path"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	// Tracker configuration
	if seconds := v.GetInt("tick_interval"); seconds > 0 {
		interval := time.Duration(seconds) * time.Second
		if interval >= cfg.Tracker.MinTickInterval && interval <= cfg.Tracker.MaxTickInterval {
			cfg.Tracker.TickInterval = interval
		}
	}
	if seconds := v.GetInt("input_poll_interval"); seconds > 0 {
		cfg.Tracker.InputPollInterval = time.Duration(seconds) * time.Second
	}
	if minutes := v.GetInt("work_idle_minutes"); minutes > 0 {
		cfg.Tracker.WorkIdleLimit = time.Duration(minutes) * time.Minute
	}
	if minutes := v.GetInt("break_minutes"); minutes > 0 {
		cfg.Tracker.BreakIdle = time.Duration(minutes) * time.Minute
	}
	if minutes := v.GetInt("lunch_minutes"); minutes > 0 {
		cfg.Tracker.LunchIdle = time.Duration(minutes) * time.Minute
	}
	if v.IsSet("max_breaks") {
		if n := v.GetInt("max_breaks"); n >= 0 {
			cfg.Tracker.MaxBreaks = n
		}
	}
	if hours := v.GetInt("normal_hours"); hours > 0 {
		cfg.Tracker.NormalLimit = time.Duration(hours) * time.Hour
	}
	if v.IsSet("max_overtime_hours") {
		if hours := v.GetInt("max_overtime_hours"); hours >= 0 {
			cfg.Tracker.MaxOvertime = time.Duration(hours) * time.Hour
		}
	}

	// Screenshot configuration
	if v.IsSet("screenshot_enabled") {
		cfg.Screenshot.Enabled = v.GetBool("screenshot_enabled")
	}
	if minutes := v.GetInt("screenshot_interval"); minutes > 0 {
		cfg.Screenshot.IntervalMinutes = minutes
	}
	if v.IsSet("screenshot_during_overtime") {
		cfg.Screenshot.DuringOvertime = v.GetBool("screenshot_during_overtime")
	}
	if dir := v.GetString("screenshot_dir"); dir != "" {
		cfg.Screenshot.Dir = dir
	}

	// Sync configuration
	if v.IsSet("sync_enabled") {
		cfg.Sync.Enabled = v.GetBool("sync_enabled")
	}
	if url := v.GetString("erp_base_url"); url != "" {
		cfg.Sync.BaseURL = url
	}
	if key := v.GetString("erp_api_key"); key != "" {
		cfg.Sync.APIKey = key
	}
	if secret := v.GetString("erp_api_secret"); secret != "" {
		cfg.Sync.APISecret = secret
	}
	if minutes := v.GetInt("sync_interval"); minutes > 0 {
		cfg.Sync.Interval = time.Duration(minutes) * time.Minute
	}
	if seconds := v.GetInt("sync_timeout"); seconds > 0 {
		cfg.Sync.Timeout = time.Duration(seconds) * time.Second
	}

	if path := v.GetString("device_file"); path != "" {
		cfg.Device.Path = path
	}
	if dir := v.GetString("activity_log_dir"); dir != "" {
		cfg.ActivityLog.Dir = dir
	}

	// Daemon configuration
	if pidFile := v.GetString("pid_file"); pidFile != "" {
		cfg.Daemon.PIDFile = pidFile
	}
	if logFile := v.GetString("log_file"); logFile != "" {
		cfg.Daemon.LogFile = logFile
	}

	// Web configuration
	if v.IsSet("web_enabled") {
		cfg.Web.Enabled = v.GetBool("web_enabled")
	}
	if webHost := v.GetString("web_host"); webHost != "" {
		cfg.Web.Host = webHost
	}
	if port := v.GetInt("web_port"); port > 0 && port <= 65535 {
		cfg.Web.Port = port
	}

	if level := v.GetString("log_level"); level != "" {
		cfg.Log.Level = level
	}
	if format := v.GetString("log_format"); format != "" {
		cfg.Log.Format = format
	}
}

// ResolvePaths fills every empty path with its location under DataDir and
// creates the directories the agent writes to.
func (c *Config) ResolvePaths() error {
	if c.DataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return errors.Wrap(err, "failed to get home directory")
		}
		c.DataDir = filepath.Join(homeDir, defaultDataDir)
	}

	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDir, "ledger.db")
	}
	if c.Device.Path == "" {
		c.Device.Path = filepath.Join(c.DataDir, "device.json")
	}
	if c.ActivityLog.Dir == "" {
		c.ActivityLog.Dir = filepath.Join(c.DataDir, "activity_logs")
	}
	if c.Screenshot.Dir == "" {
		c.Screenshot.Dir = filepath.Join(c.DataDir, "screenshots")
	}

	for _, dir := range []string{
		c.DataDir,
		filepath.Dir(c.Database.Path),
		filepath.Dir(c.Device.Path),
		c.ActivityLog.Dir,
		c.Screenshot.Dir,
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "failed to create directory %s", dir)
		}
	}
	return nil
}
