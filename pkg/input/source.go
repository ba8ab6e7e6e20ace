// Package input reports how long the user has been idle and turns that into
// a last-input timestamp the sampler can read without blocking.
package input

import (
	"context"
	"os"
	"os/exec"
	"time"
)

// IdleSource measures time since the last keyboard or mouse input.
type IdleSource interface {
	// Name identifies the source in logs and status output.
	Name() string

	// IsAvailable reports whether the source can work on this system.
	IsAvailable() bool

	// IdleTime returns the current idle duration.
	IdleTime(ctx context.Context) (time.Duration, error)

	Close() error
}

// DetectDisplayServer returns "wayland", "x11" or "unknown" from the session
// environment.
func DetectDisplayServer() string {
	sessionType := os.Getenv("XDG_SESSION_TYPE")
	waylandDisplay := os.Getenv("WAYLAND_DISPLAY")
	x11Display := os.Getenv("DISPLAY")

	if sessionType == "wayland" || waylandDisplay != "" {
		return "wayland"
	}

	if sessionType == "x11" || x11Display != "" {
		return "x11"
	}

	return "unknown"
}

// runner executes a command and returns its stdout.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// commandExists checks if a command is available in PATH
func commandExists(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}
