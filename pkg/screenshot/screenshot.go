// Package screenshot captures the screen to PNG files with whatever capture
// tool the session provides.
package screenshot

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// ErrNoTool is returned when no supported capture tool is installed.
var ErrNoTool = errors.New("no screenshot tool available")

// Capturer writes a screenshot to path.
type Capturer interface {
	Capture(ctx context.Context, path string) error
}

// FileName returns the file name for a screenshot taken at t.
func FileName(t time.Time) string {
	return t.Format("20060102_150405") + ".png"
}

// Tool is one external capture program.
type Tool struct {
	Name string
	Args func(path string) []string
}

var (
	grim            = Tool{"grim", func(p string) []string { return []string{p} }}
	gnomeScreenshot = Tool{"gnome-screenshot", func(p string) []string { return []string{"-f", p} }}
	spectacle       = Tool{"spectacle", func(p string) []string { return []string{"-b", "-n", "-f", "-o", p} }}
	scrot           = Tool{"scrot", func(p string) []string { return []string{"-o", p} }}
	imImport        = Tool{"import", func(p string) []string { return []string{"-window", "root", p} }}
)

// toolsFor lists capture tools in preference order for a display server.
func toolsFor(displayServer string) []Tool {
	if displayServer == "wayland" {
		return []Tool{grim, gnomeScreenshot, spectacle}
	}
	return []Tool{scrot, imImport, gnomeScreenshot, spectacle}
}

// ExecCapturer runs an external capture tool.
type ExecCapturer struct {
	tool Tool
	run  func(ctx context.Context, name string, args ...string) error
}

// New picks the first installed tool suitable for displayServer.
func New(displayServer string) (*ExecCapturer, error) {
	return newCapturer(displayServer, func(name string) bool {
		_, err := exec.LookPath(name)
		return err == nil
	})
}

func newCapturer(displayServer string, exists func(string) bool) (*ExecCapturer, error) {
	for _, t := range toolsFor(displayServer) {
		if exists(t.Name) {
			return &ExecCapturer{tool: t, run: runCommand}, nil
		}
	}
	return nil, ErrNoTool
}

func (c *ExecCapturer) ToolName() string {
	return c.tool.Name
}

func (c *ExecCapturer) Capture(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "failed to create screenshot directory")
	}
	if err := c.run(ctx, c.tool.Name, c.tool.Args(path)...); err != nil {
		return errors.Wrapf(err, "%s failed", c.tool.Name)
	}
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "%s produced no file", c.tool.Name)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}
