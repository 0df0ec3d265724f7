package clip

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTmpClip(t *testing.T, s *Store, cameraID, alarmID string) string {
	t.Helper()
	tmp := s.AllocatePath(cameraID, alarmID)
	if err := os.MkdirAll(filepath.Dir(tmp), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tmp, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	return tmp
}

func TestCommitMovesAndReturnsURL(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, "http://10.0.0.2:9000", 10)
	if err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2025, 9, 1, 12, 0, 0, 0, time.Local)
	tmp := writeTmpClip(t, s, "cam1", "a1")
	url, err := s.Commit(tmp, "cam1", "a1", ts)
	if err != nil {
		t.Fatal(err)
	}
	if url != "http://10.0.0.2:9000/api/clips/2025-09-01/cam1/a1.mp4" {
		t.Fatalf("unexpected url: %s", url)
	}

	if _, err := os.Stat(tmp); !os.IsNotExist(err) {
		t.Fatal("tmp file should be gone after commit")
	}
	if _, err := os.Stat(s.FinalPath("cam1", "a1", ts)); err != nil {
		t.Fatalf("final clip missing: %v", err)
	}
}

func TestEvictOldestBeyondCap(t *testing.T) {
	dir := t.TempDir()

	var gotEvicted []Evicted
	s, err := NewStore(dir, "http://host", 3, WithEvictFunc(func(e []Evicted) {
		gotEvicted = append(gotEvicted, e...)
	}))
	if err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2025, 9, 1, 12, 0, 0, 0, time.Local)
	for i, id := range []string{"a1", "a2", "a3", "a4", "a5"} {
		tmp := writeTmpClip(t, s, "cam1", id)
		if _, err := s.Commit(tmp, "cam1", id, ts); err != nil {
			t.Fatal(err)
		}
		// 拉开 mtime，保证淘汰顺序确定
		final := s.FinalPath("cam1", id, ts)
		mt := ts.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(final, mt, mt); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(filepath.Join(dir, "2025-09-01", "cam1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 clips after eviction, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Name() == "a1.mp4" || e.Name() == "a2.mp4" {
			t.Fatalf("old clip survived: %s", e.Name())
		}
	}

	if len(gotEvicted) != 2 {
		t.Fatalf("expected 2 evictions, got %+v", gotEvicted)
	}
	for _, e := range gotEvicted {
		if e.CameraID != "cam1" {
			t.Fatalf("unexpected eviction: %+v", e)
		}
		if e.AlarmID != "a1" && e.AlarmID != "a2" {
			t.Fatalf("unexpected evicted alarm: %+v", e)
		}
	}
}

func TestEvictionScopedPerCamera(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, "http://host", 1)
	if err != nil {
		t.Fatal(err)
	}

	ts := time.Date(2025, 9, 1, 12, 0, 0, 0, time.Local)
	for _, cam := range []string{"cam1", "cam2"} {
		tmp := writeTmpClip(t, s, cam, "a1")
		if _, err := s.Commit(tmp, cam, "a1", ts); err != nil {
			t.Fatal(err)
		}
	}

	for _, cam := range []string{"cam1", "cam2"} {
		if _, err := os.Stat(s.FinalPath(cam, "a1", ts)); err != nil {
			t.Fatalf("%s clip should survive: %v", cam, err)
		}
	}
}

func TestResolveRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, "http://host", 1)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.Resolve("../../etc/passwd"); err == nil {
		t.Fatal("expected path escape to be rejected")
	}
	full, err := s.Resolve("2025-09-01/cam1/a1.mp4")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(full, dir) {
		t.Fatalf("resolved outside base: %s", full)
	}
}
