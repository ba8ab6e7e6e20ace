package input

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// CommandSource reads idle time from an external tool.
type CommandSource struct {
	name  string
	cmd   string
	args  []string
	parse func(out []byte) (time.Duration, error)
	run   runner
}

// NewXprintidleSource uses xprintidle, which prints idle milliseconds.
func NewXprintidleSource() *CommandSource {
	return &CommandSource{
		name:  "xprintidle",
		cmd:   "xprintidle",
		parse: parseMilliseconds,
		run:   execRunner,
	}
}

// NewMutterSource asks the GNOME Mutter idle monitor over D-Bus. This is the
// only reliable idle source on GNOME Wayland sessions.
func NewMutterSource() *CommandSource {
	return &CommandSource{
		name: "gnome-mutter",
		cmd:  "gdbus",
		args: []string{
			"call", "--session",
			"--dest", "org.gnome.Mutter.IdleMonitor",
			"--object-path", "/org/gnome/Mutter/IdleMonitor/Core",
			"--method", "org.gnome.Mutter.IdleMonitor.GetIdletime",
		},
		parse: parseGVariantUint64,
		run:   execRunner,
	}
}

func (s *CommandSource) Name() string {
	return s.name
}

func (s *CommandSource) IsAvailable() bool {
	return commandExists(s.cmd)
}

func (s *CommandSource) IdleTime(ctx context.Context) (time.Duration, error) {
	out, err := s.run(ctx, s.cmd, s.args...)
	if err != nil {
		return 0, errors.Wrapf(err, "%s failed", s.name)
	}
	return s.parse(out)
}

func (s *CommandSource) Close() error {
	return nil
}

func parseMilliseconds(out []byte) (time.Duration, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "unexpected idle output %q", strings.TrimSpace(string(out)))
	}
	if ms < 0 {
		return 0, errors.Errorf("negative idle time %d", ms)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

var gvariantUint64 = regexp.MustCompile(`\(\s*(?:uint64\s+)?(\d+)\s*,?\s*\)`)

// parseGVariantUint64 parses gdbus output such as "(uint64 12345,)".
func parseGVariantUint64(out []byte) (time.Duration, error) {
	m := gvariantUint64.FindSubmatch(out)
	if m == nil {
		return 0, errors.Errorf("unexpected gdbus output %q", strings.TrimSpace(string(out)))
	}
	return parseMilliseconds(m[1])
}
