// Package daemon manages the agent's PID file and detaches the agent from
// the terminal that started it.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// ChildEnv marks the detached child so it does not fork again.
const ChildEnv = "SHIFTLEDGER_DAEMON_CHILD"

var (
	ErrAlreadyRunning = errors.New("agent is already running")
	ErrNotRunning     = errors.New("agent is not running")
)

// Daemon guards the PID file. The agent holding it keeps an exclusive flock
// on the file for its whole lifetime; the lock, not the PID written inside,
// decides whether an agent is running.
type Daemon struct {
	pidFile string
	lock    *os.File
}

func New(pidFile string) *Daemon {
	return &Daemon{pidFile: pidFile}
}

func (d *Daemon) PIDFile() string {
	return d.pidFile
}

// Acquire locks the PID file and writes the current PID into it. It fails
// with ErrAlreadyRunning while another process holds the lock. A file left
// behind by a dead agent is taken over.
func (d *Daemon) Acquire() error {
	if d.lock != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(d.pidFile), 0755); err != nil {
		return errors.Wrap(err, "failed to create PID file directory")
	}

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(d.pidFile, os.O_RDWR|os.O_CREATE, 0644)
		if err != nil {
			return errors.Wrap(err, "failed to open PID file")
		}

		if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
			f.Close()
			if errors.Is(err, syscall.EWOULDBLOCK) {
				pid, _ := d.ReadPID()
				return errors.Wrapf(ErrAlreadyRunning, "pid %d", pid)
			}
			return errors.Wrap(err, "failed to lock PID file")
		}

		// The previous holder removed the file between our open and lock.
		if !samePath(f, d.pidFile) {
			f.Close()
			continue
		}

		if err := f.Truncate(0); err != nil {
			f.Close()
			return errors.Wrap(err, "failed to truncate PID file")
		}
		if _, err := f.WriteAt(fmt.Appendf(nil, "%d\n", os.Getpid()), 0); err != nil {
			f.Close()
			return errors.Wrap(err, "failed to write PID file")
		}
		d.lock = f
		return nil
	}

	return errors.Wrapf(ErrAlreadyRunning, "PID file %s keeps changing", d.pidFile)
}

// Release removes the PID file and drops the lock. It does nothing unless
// Acquire succeeded on this Daemon.
func (d *Daemon) Release() error {
	if d.lock == nil {
		return nil
	}
	err := d.RemovePID()
	if cerr := d.lock.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, "failed to unlock PID file")
	}
	d.lock = nil
	return err
}

// ReadPID returns 0 when there is no PID file or it is still empty.
func (d *Daemon) ReadPID() (int, error) {
	data, err := os.ReadFile(d.pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to read PID file")
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(text)
	if err != nil {
		return 0, errors.Wrap(err, "invalid PID in file")
	}

	return pid, nil
}

func (d *Daemon) RemovePID() error {
	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove PID file")
	}
	return nil
}

// IsRunning reports whether some process holds the PID file lock, and the
// PID it recorded. An unlocked file is stale and is removed.
func (d *Daemon) IsRunning() (bool, int, error) {
	if d.lock != nil {
		return true, os.Getpid(), nil
	}

	f, err := os.Open(d.pidFile)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, errors.Wrap(err, "failed to open PID file")
	}
	defer f.Close()

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if errors.Is(err, syscall.EWOULDBLOCK) {
		pid, err := d.ReadPID()
		return true, pid, err
	}
	if err != nil {
		return false, 0, errors.Wrap(err, "failed to probe PID file lock")
	}

	// Removed while we hold the lock, so a starting agent retries on a new file.
	if samePath(f, d.pidFile) {
		_ = d.RemovePID()
	}
	return false, 0, nil
}

// Stop sends SIGTERM to the running agent and waits up to timeout for it to
// exit. The agent removes its own PID file on the way out; a file left by a
// killed agent is cleaned up by the next IsRunning.
func (d *Daemon) Stop(timeout time.Duration) (int, error) {
	running, pid, err := d.IsRunning()
	if err != nil {
		return 0, errors.Wrap(err, "error checking agent status")
	}

	if !running {
		return 0, ErrNotRunning
	}
	if pid == 0 {
		return 0, errors.New("agent is starting, try again")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return pid, errors.Wrap(err, "failed to find process")
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return pid, ErrNotRunning
		}
		return pid, errors.Wrap(err, "failed to send SIGTERM")
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !alive(pid) {
			return pid, nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	return pid, errors.Errorf("agent (pid %d) did not exit within %v", pid, timeout)
}

// IsChild reports whether this process is the detached agent.
func IsChild() bool {
	return os.Getenv(ChildEnv) == "1"
}

// Spawn restarts the current executable with args in a new session, with its
// standard streams detached, and returns the child's PID.
func Spawn(args []string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, errors.Wrap(err, "failed to locate executable")
	}

	procAttr := &os.ProcAttr{
		Env:   append(os.Environ(), ChildEnv+"=1"),
		Files: []*os.File{nil, nil, nil},
		Sys: &syscall.SysProcAttr{
			Setsid: true,
		},
	}

	process, err := os.StartProcess(exe, append([]string{exe}, args...), procAttr)
	if err != nil {
		return 0, errors.Wrap(err, "failed to start agent process")
	}
	pid := process.Pid
	_ = process.Release()
	return pid, nil
}

func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func samePath(f *os.File, path string) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(held, current)
}
