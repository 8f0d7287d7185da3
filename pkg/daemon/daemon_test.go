package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// deadPID is above the default kernel pid_max, so no live process can
// own it.
const deadPID = 99999999

func newTestPIDFile(t *testing.T) *PIDFile {
	t.Helper()
	return NewPIDFile(filepath.Join(t.TempDir(), "bashme.pid"))
}

func TestPIDFileWriteReadRemove(t *testing.T) {
	pf := newTestPIDFile(t)

	if got := pf.Read(); got != 0 {
		t.Errorf("Expected 0 from missing pidfile, got %d", got)
	}

	if err := pf.WritePID(12345); err != nil {
		t.Fatalf("WritePID() failed: %v", err)
	}
	if got := pf.Read(); got != 12345 {
		t.Errorf("Expected pid 12345, got %d", got)
	}

	if err := pf.Remove(); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if got := pf.Read(); got != 0 {
		t.Errorf("Expected 0 after Remove, got %d", got)
	}

	// Removing a missing file is fine.
	if err := pf.Remove(); err != nil {
		t.Errorf("Second Remove() failed: %v", err)
	}
}

func TestPIDFileRefusesLiveProcess(t *testing.T) {
	pf := newTestPIDFile(t)

	if err := pf.WritePID(os.Getpid()); err != nil {
		t.Fatalf("WritePID() failed: %v", err)
	}

	err := pf.WritePID(deadPID)
	var running *ProcessRunningError
	if !errors.As(err, &running) {
		t.Fatalf("Expected ProcessRunningError, got %v", err)
	}
	if running.GetPID() != os.Getpid() {
		t.Errorf("Expected pid %d in error, got %d", os.Getpid(), running.GetPID())
	}
	if running.Path != pf.path {
		t.Errorf("Expected path %s in error, got %s", pf.path, running.Path)
	}

	// Re-recording the same live pid is allowed.
	if err := pf.WritePID(os.Getpid()); err != nil {
		t.Errorf("WritePID() with same pid failed: %v", err)
	}
}

func TestPIDFileOverwritesStaleEntry(t *testing.T) {
	pf := newTestPIDFile(t)

	if err := pf.WritePID(deadPID); err != nil {
		t.Fatalf("WritePID() failed: %v", err)
	}
	if err := pf.WritePID(os.Getpid()); err != nil {
		t.Fatalf("WritePID() over stale entry failed: %v", err)
	}
	if got := pf.Read(); got != os.Getpid() {
		t.Errorf("Expected pid %d, got %d", os.Getpid(), got)
	}
}

func TestPIDFileReadGarbage(t *testing.T) {
	pf := newTestPIDFile(t)

	if err := os.WriteFile(pf.path, []byte("not-a-pid\n"), 0o644); err != nil {
		t.Fatalf("Failed to seed pidfile: %v", err)
	}
	if got := pf.Read(); got != 0 {
		t.Errorf("Expected 0 from garbage pidfile, got %d", got)
	}

	if err := os.WriteFile(pf.path, []byte("-5"), 0o644); err != nil {
		t.Fatalf("Failed to seed pidfile: %v", err)
	}
	if got := pf.Read(); got != 0 {
		t.Errorf("Expected 0 from negative pid, got %d", got)
	}
}

func TestPIDFileWriteLeavesNoTempFile(t *testing.T) {
	pf := newTestPIDFile(t)

	for i := 0; i < 10; i++ {
		if err := pf.WritePID(deadPID + i); err != nil {
			t.Fatalf("WritePID() iteration %d failed: %v", i, err)
		}
	}
	if got := pf.Read(); got != deadPID+9 {
		t.Errorf("Expected final pid %d, got %d", deadPID+9, got)
	}
	if _, err := os.Stat(pf.path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temp file was not cleaned up")
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !IsProcessRunning(os.Getpid()) {
		t.Error("Expected current process to be running")
	}
	if IsProcessRunning(0) {
		t.Error("Expected pid 0 to not be running")
	}
	if IsProcessRunning(-1) {
		t.Error("Expected negative pid to not be running")
	}
	if IsProcessRunning(deadPID) {
		t.Errorf("Expected pid %d to not be running", deadPID)
	}
}

func TestProcessUptimeSelf(t *testing.T) {
	if _, err := os.Stat("/proc/self/stat"); err != nil {
		t.Skip("procfs not available")
	}

	uptime, err := ProcessUptime(os.Getpid())
	if err != nil {
		t.Fatalf("ProcessUptime() failed: %v", err)
	}
	if uptime < 0 {
		t.Errorf("Expected non-negative uptime, got %v", uptime)
	}
	if uptime > time.Hour {
		t.Errorf("Expected a fresh test process, got uptime %v", uptime)
	}
}

func TestProcessUptimeMissingProcess(t *testing.T) {
	if _, err := os.Stat("/proc"); err != nil {
		t.Skip("procfs not available")
	}
	if _, err := ProcessUptime(deadPID); err == nil {
		t.Error("Expected error for missing process")
	}
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	dir := t.TempDir()
	return New(Config{
		PIDPath:    filepath.Join(dir, "bashme.pid"),
		LogPath:    filepath.Join(dir, "bashme.log"),
		Executable: "/usr/bin/false",
	})
}

func TestNewBackfillsStopTimeout(t *testing.T) {
	d := newTestDaemon(t)
	if d.cfg.StopTimeout != DefaultStopTimeout {
		t.Errorf("Expected default stop timeout %v, got %v", DefaultStopTimeout, d.cfg.StopTimeout)
	}
}

func TestStartRefusesWhenRunning(t *testing.T) {
	d := newTestDaemon(t)

	if err := d.pidFile.WritePID(os.Getpid()); err != nil {
		t.Fatalf("WritePID() failed: %v", err)
	}

	_, err := d.Start()
	var running *ProcessRunningError
	if !errors.As(err, &running) {
		t.Fatalf("Expected ProcessRunningError, got %v", err)
	}
	if running.GetPID() != os.Getpid() {
		t.Errorf("Expected pid %d, got %d", os.Getpid(), running.GetPID())
	}
}

func TestStopNotRunning(t *testing.T) {
	d := newTestDaemon(t)
	if err := d.Stop(); err == nil {
		t.Error("Expected error when daemon not running")
	}
}

func TestStopRemovesStalePidfile(t *testing.T) {
	d := newTestDaemon(t)

	if err := d.pidFile.WritePID(deadPID); err != nil {
		t.Fatalf("WritePID() failed: %v", err)
	}

	if err := d.Stop(); err == nil {
		t.Error("Expected stale pidfile error")
	}
	if got := d.pidFile.Read(); got != 0 {
		t.Errorf("Expected pidfile removed, found pid %d", got)
	}
}

func TestStatusNotRunning(t *testing.T) {
	d := newTestDaemon(t)
	if _, err := d.Status(); err == nil {
		t.Error("Expected error when daemon not running")
	}
}

func TestStatusRunningProcess(t *testing.T) {
	d := newTestDaemon(t)

	if err := d.pidFile.WritePID(os.Getpid()); err != nil {
		t.Fatalf("WritePID() failed: %v", err)
	}

	status, err := d.Status()
	if err != nil {
		t.Fatalf("Status() failed: %v", err)
	}
	if status.PID != os.Getpid() {
		t.Errorf("Expected PID %d, got %d", os.Getpid(), status.PID)
	}
	if status.Uptime < 0 {
		t.Errorf("Expected non-negative uptime, got %v", status.Uptime)
	}
}
