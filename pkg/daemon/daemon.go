package daemon

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bashme-ai/bashme/pkg/logger"
)

const (
	// DefaultStopTimeout bounds how long Stop waits after SIGTERM
	// before escalating to SIGKILL.
	DefaultStopTimeout = 10 * time.Second

	stopPollInterval = 100 * time.Millisecond
)

// Config describes how the background process is launched and tracked.
type Config struct {
	PIDPath     string
	LogPath     string
	Executable  string
	Args        []string
	StopTimeout time.Duration
}

// Daemon manages the completion server as a detached background process.
type Daemon struct {
	cfg     Config
	pidFile *PIDFile
}

// Status describes a running daemon.
type Status struct {
	PID    int
	Uptime time.Duration
}

// New creates a new Daemon instance.
func New(cfg Config) *Daemon {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	return &Daemon{
		cfg:     cfg,
		pidFile: NewPIDFile(cfg.PIDPath),
	}
}

// Start launches the configured executable detached from the current
// terminal, with stdout and stderr appended to the log file, and
// records the child pid. It returns the child pid.
func (d *Daemon) Start() (int, error) {
	// Check if already running.
	if pid := d.pidFile.Read(); pid != 0 && IsProcessRunning(pid) {
		return 0, &ProcessRunningError{pid: pid, Path: d.cfg.PIDPath}
	}

	if err := os.MkdirAll(filepath.Dir(d.cfg.LogPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create log directory: %w", err)
	}
	logFH, err := os.OpenFile(d.cfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFH.Close()

	cmd := exec.Command(d.cfg.Executable, d.cfg.Args...)
	cmd.Stdout = logFH
	cmd.Stderr = logFH
	// Detach into its own process group.
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
	}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon: %w", err)
	}
	pid := cmd.Process.Pid

	if err := d.pidFile.WritePID(pid); err != nil {
		// If the pid cannot be recorded, kill the process.
		_ = cmd.Process.Kill()
		return 0, fmt.Errorf("failed to write pidfile: %w", err)
	}
	_ = cmd.Process.Release()

	logger.InfoCF("daemon", "Daemon started", map[string]any{
		"pid": pid,
		"log": d.cfg.LogPath,
	})
	return pid, nil
}

// Stop terminates the background process with SIGTERM, waits up to the
// configured timeout, then escalates to SIGKILL. The pid file is
// removed on success.
func (d *Daemon) Stop() error {
	pid := d.pidFile.Read()
	if pid == 0 {
		return errors.New("daemon not running")
	}

	if !IsProcessRunning(pid) {
		_ = d.pidFile.Remove()
		return fmt.Errorf("daemon not running (removed stale pidfile for pid %d)", pid)
	}

	logger.InfoCF("daemon", "Stopping daemon", map[string]any{"pid": pid})

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH) {
			return d.pidFile.Remove()
		}
		return fmt.Errorf("failed to signal process: %w", err)
	}

	// The daemon is not our child, so poll instead of wait(2).
	deadline := time.Now().Add(d.cfg.StopTimeout)
	for time.Now().Before(deadline) {
		if !IsProcessRunning(pid) {
			logger.InfoC("daemon", "Daemon stopped")
			return d.pidFile.Remove()
		}
		time.Sleep(stopPollInterval)
	}

	logger.WarnCF("daemon", "Shutdown timeout, forcing kill", map[string]any{"pid": pid})
	if err := process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to kill process: %w", err)
	}
	return d.pidFile.Remove()
}

// Restart stops the daemon if it is running, then starts it again.
func (d *Daemon) Restart() (int, error) {
	if pid := d.pidFile.Read(); pid != 0 && IsProcessRunning(pid) {
		if err := d.Stop(); err != nil {
			return 0, fmt.Errorf("failed to stop daemon: %w", err)
		}
		// Give the listener a moment to release the port.
		time.Sleep(time.Second)
	}
	return d.Start()
}

// Status reports the running daemon's pid and uptime. It returns an
// error when no live process is recorded.
func (d *Daemon) Status() (*Status, error) {
	pid := d.pidFile.Read()
	if pid == 0 {
		return nil, errors.New("daemon not running")
	}
	if !IsProcessRunning(pid) {
		return nil, fmt.Errorf("daemon not running (stale pidfile for pid %d)", pid)
	}

	uptime, err := ProcessUptime(pid)
	if err != nil {
		logger.DebugCF("daemon", "Process uptime unavailable", map[string]any{
			"pid":   pid,
			"error": err.Error(),
		})
		uptime = 0
	}
	return &Status{PID: pid, Uptime: uptime}, nil
}
