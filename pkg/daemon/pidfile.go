package daemon

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
)

// PIDFile tracks the background process through a single pid file.
// Writes go through a temp file plus rename so a reader never observes
// a partial pid.
type PIDFile struct {
	mu   sync.Mutex
	path string
}

// NewPIDFile creates a PIDFile at the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// ProcessRunningError reports that the pid file names a live process.
type ProcessRunningError struct {
	pid  int
	Path string
}

func (e *ProcessRunningError) Error() string {
	return fmt.Sprintf("process already running with pid %d (pidfile %s)", e.pid, e.Path)
}

// GetPID returns the pid of the running process.
func (e *ProcessRunningError) GetPID() int {
	return e.pid
}

// WritePID records pid, refusing if the file already names a live
// process other than pid itself. Stale entries are overwritten.
func (p *PIDFile) WritePID(pid int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing := p.read(); existing != 0 && existing != pid && IsProcessRunning(existing) {
		return &ProcessRunningError{pid: existing, Path: p.path}
	}

	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return fmt.Errorf("failed to create pidfile directory: %w", err)
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to commit pidfile: %w", err)
	}
	return nil
}

// Read returns the recorded pid, or 0 when the file is missing or
// malformed.
func (p *PIDFile) Read() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.read()
}

func (p *PIDFile) read() int {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// Remove deletes the pid file. Removing a missing file is not an error.
func (p *PIDFile) Remove() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove pidfile: %w", err)
	}
	return nil
}

// IsProcessRunning checks whether pid names a live process via
// signal 0. EPERM still means the process exists.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}

// ProcessUptime reports how long pid has been running, derived from its
// start tick in /proc/<pid>/stat and the system uptime clock.
func ProcessUptime(pid int) (time.Duration, error) {
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return 0, fmt.Errorf("failed to read process stat: %w", err)
	}

	// comm may contain spaces, so count fields after the closing paren.
	idx := bytes.LastIndexByte(stat, ')')
	if idx < 0 {
		return 0, fmt.Errorf("malformed stat line for pid %d", pid)
	}
	fields := strings.Fields(string(stat[idx+1:]))
	// The slice starts at stat field 3; starttime is stat field 22.
	if len(fields) < 20 {
		return 0, fmt.Errorf("malformed stat line for pid %d", pid)
	}
	startTicks, err := strconv.ParseFloat(fields[19], 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse process start time: %w", err)
	}

	uptimeData, err := os.ReadFile("/proc/uptime")
	if err != nil {
		return 0, fmt.Errorf("failed to read system uptime: %w", err)
	}
	uptimeFields := strings.Fields(string(uptimeData))
	if len(uptimeFields) == 0 {
		return 0, errors.New("malformed /proc/uptime")
	}
	bootSeconds, err := strconv.ParseFloat(uptimeFields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse system uptime: %w", err)
	}

	// Start times are exposed in USER_HZ ticks, fixed at 100.
	const clockTicksPerSecond = 100
	seconds := bootSeconds - startTicks/clockTicksPerSecond
	if seconds < 0 {
		seconds = 0
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
