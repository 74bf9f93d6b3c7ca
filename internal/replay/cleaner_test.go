package replay

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"driftpursuit/netsync/internal/logging"
)

func writeSession(t *testing.T, root, name string, modTime time.Time, size int) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestName), []byte("{}"), 0o644); err != nil {
		t.Fatalf("manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, framesName), make([]byte, size), 0o644); err != nil {
		t.Fatalf("frames: %v", err)
	}
	if err := os.Chtimes(dir, modTime, modTime); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func listDirs(t *testing.T, root string) []string {
	t.Helper()
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

func TestCleanerKeepsNewestSessions(t *testing.T) {
	tmp := t.TempDir()
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	writeSession(t, tmp, "alpha", now.Add(-3*time.Hour), 64)
	writeSession(t, tmp, "bravo", now.Add(-2*time.Hour), 32)
	writeSession(t, tmp, "charlie", now.Add(-time.Hour), 48)

	cleaner := NewCleaner(tmp, RetentionPolicy{MaxSessions: 2}, logging.NewTestLogger())
	cleaner.now = func() time.Time { return now }
	cleaner.RunOnce()

	remaining := listDirs(t, tmp)
	if len(remaining) != 2 || remaining[0] != "bravo" || remaining[1] != "charlie" {
		t.Fatalf("remaining = %v", remaining)
	}
	stats := cleaner.Stats()
	if stats.Sessions != 2 || stats.Bytes != int64(32+48+2+2) || !stats.LastSweep.Equal(now) {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestCleanerPrunesByAgeAndIgnoresStrayEntries(t *testing.T) {
	tmp := t.TempDir()
	now := time.Date(2024, 7, 16, 9, 0, 0, 0, time.UTC)
	writeSession(t, tmp, "old", now.Add(-72*time.Hour), 8)
	writeSession(t, tmp, "fresh", now.Add(-time.Hour), 8)
	if err := os.Mkdir(filepath.Join(tmp, "not-a-session"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "notes.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cleaner := NewCleaner(tmp, RetentionPolicy{MaxAge: 36 * time.Hour}, logging.NewTestLogger())
	cleaner.now = func() time.Time { return now }
	cleaner.RunOnce()

	remaining := listDirs(t, tmp)
	if len(remaining) != 2 || remaining[0] != "fresh" || remaining[1] != "not-a-session" {
		t.Fatalf("remaining = %v", remaining)
	}
	if _, err := os.Stat(filepath.Join(tmp, "notes.txt")); err != nil {
		t.Fatalf("stray file removed: %v", err)
	}
	if cleaner.Stats().Sessions != 1 {
		t.Fatalf("stats = %+v", cleaner.Stats())
	}
}
