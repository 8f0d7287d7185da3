package toolserver

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestListDirectory_ReturnsSortedEntryNames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "cache"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	got := ListDirectory(dir)
	want := []string{"a.txt", "b.txt", "cache"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ListDirectory() = %v, want %v", got, want)
	}
}

func TestListDirectory_MissingPathReturnsEmpty(t *testing.T) {
	got := ListDirectory(filepath.Join(t.TempDir(), "nope"))
	if got == nil {
		t.Fatalf("ListDirectory() = nil, want empty slice")
	}
	if len(got) != 0 {
		t.Fatalf("ListDirectory() = %v, want empty", got)
	}
}

func TestListDirectory_FileIsNotADirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if got := ListDirectory(file); len(got) != 0 {
		t.Fatalf("ListDirectory() on a file = %v, want empty", got)
	}
}

func TestListDirectory_EmptyPathListsWorkingDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "here.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Chdir(dir)

	got := ListDirectory("")
	want := []string{"here.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf(`ListDirectory("") = %v, want %v`, got, want)
	}
}

func TestListDirectory_ExpandsTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := os.WriteFile(filepath.Join(home, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got := ListDirectory("~")
	want := []string{"notes.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf(`ListDirectory("~") = %v, want %v`, got, want)
	}
}

func TestManualPage_EmptyNameReturnsEmpty(t *testing.T) {
	if got := ManualPage(t.Context(), "   "); got != "" {
		t.Fatalf("ManualPage() = %q, want empty", got)
	}
}

func TestManualPage_UnknownCommandReturnsEmpty(t *testing.T) {
	if got := ManualPage(t.Context(), "bashme-no-such-command-xyz"); got != "" {
		t.Fatalf("ManualPage() = %q, want empty", got)
	}
}

func writeHistoryFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bash_history")
	content := "#1700000000\nls -la\n\n# a comment\ngit status\n   \ncd /tmp\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRecentHistory_SkipsCommentsAndBlanks(t *testing.T) {
	path := writeHistoryFixture(t)

	got := RecentHistory(path, 10)
	want := []string{"ls -la", "git status", "cd /tmp"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("RecentHistory() = %v, want %v", got, want)
	}
}

func TestRecentHistory_ReturnsLastNOldestFirst(t *testing.T) {
	path := writeHistoryFixture(t)

	got := RecentHistory(path, 2)
	want := []string{"git status", "cd /tmp"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("RecentHistory() = %v, want %v", got, want)
	}
}

func TestRecentHistory_NonPositiveNReturnsEmpty(t *testing.T) {
	path := writeHistoryFixture(t)

	for _, n := range []int{0, -1} {
		if got := RecentHistory(path, n); len(got) != 0 {
			t.Fatalf("RecentHistory(n=%d) = %v, want empty", n, got)
		}
	}
}

func TestRecentHistory_MissingFileReturnsEmpty(t *testing.T) {
	got := RecentHistory(filepath.Join(t.TempDir(), "nope"), 5)
	if got == nil || len(got) != 0 {
		t.Fatalf("RecentHistory() = %v, want empty slice", got)
	}
}

func TestResolveHistoryFile_OverrideWins(t *testing.T) {
	t.Setenv("HISTFILE", "/elsewhere/history")
	if got := ResolveHistoryFile("/configured/history"); got != "/configured/history" {
		t.Fatalf("ResolveHistoryFile() = %q, want configured override", got)
	}
}

func TestResolveHistoryFile_HistfileEnvFallback(t *testing.T) {
	t.Setenv("HISTFILE", "/from/env/history")
	if got := ResolveHistoryFile(""); got != "/from/env/history" {
		t.Fatalf("ResolveHistoryFile() = %q, want $HISTFILE", got)
	}
}

func TestResolveHistoryFile_DefaultsToBashHistory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("HISTFILE", "")

	want := filepath.Join(home, ".bash_history")
	if got := ResolveHistoryFile(""); got != want {
		t.Fatalf("ResolveHistoryFile() = %q, want %q", got, want)
	}
}

func TestEnvironmentSnapshot_IsDisconnectedCopy(t *testing.T) {
	t.Setenv("BASHME_SNAPSHOT_PROBE", "alpha")

	snapshot := EnvironmentSnapshot()
	if snapshot["BASHME_SNAPSHOT_PROBE"] != "alpha" {
		t.Fatalf("snapshot missing probe variable: %q", snapshot["BASHME_SNAPSHOT_PROBE"])
	}

	snapshot["BASHME_SNAPSHOT_PROBE"] = "mutated"

	if got := os.Getenv("BASHME_SNAPSHOT_PROBE"); got != "alpha" {
		t.Fatalf("live environment changed to %q after mutating snapshot", got)
	}
	if again := EnvironmentSnapshot(); again["BASHME_SNAPSHOT_PROBE"] != "alpha" {
		t.Fatalf("second snapshot = %q, want %q", again["BASHME_SNAPSHOT_PROBE"], "alpha")
	}
}
