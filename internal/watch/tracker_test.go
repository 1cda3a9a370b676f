package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// memRecorder accumulates reported paths per session.
type memRecorder struct {
	mu    sync.Mutex
	paths map[string][]string
}

func newMemRecorder() *memRecorder {
	return &memRecorder{paths: make(map[string][]string)}
}

func (r *memRecorder) MarkFilesModified(_ context.Context, sessionID string, paths []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths[sessionID] = append(r.paths[sessionID], paths...)
	return nil
}

func (r *memRecorder) get(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths[sessionID]...)
}

func TestTracker_NewAndStop(t *testing.T) {
	tr, err := NewTracker(newMemRecorder())
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}

	tr.Start(context.Background())
	time.Sleep(10 * time.Millisecond)
	tr.Stop()
}

func TestTracker_StopIsIdempotent(t *testing.T) {
	tr, err := NewTracker(newMemRecorder())
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}

	tr.Start(context.Background())
	time.Sleep(10 * time.Millisecond)

	tr.Stop()
	tr.Stop()
	tr.Stop()
}

func TestTracker_AddSessionNonExistentPath(t *testing.T) {
	tr, err := NewTracker(newMemRecorder())
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	defer tr.Stop()

	missing := filepath.Join(t.TempDir(), "does-not-exist")
	if err := tr.AddSession("s1", missing); err == nil {
		t.Fatal("AddSession with missing root succeeded, want error")
	}
}

func TestTracker_RecordsWrites(t *testing.T) {
	rec := newMemRecorder()
	tr, err := NewTracker(rec)
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	defer tr.Stop()

	root := t.TempDir()
	if err := tr.AddSession("s1", root); err != nil {
		t.Fatalf("AddSession() error = %v", err)
	}
	tr.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		if paths := rec.get("s1"); len(paths) > 0 {
			found := false
			for _, p := range paths {
				if p == "main.go" {
					found = true
				}
			}
			if !found {
				t.Errorf("recorded paths = %v, want main.go", paths)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("no modification recorded within deadline")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestTracker_IgnoresConfiguredDirectories(t *testing.T) {
	rec := newMemRecorder()
	tr, err := NewTracker(rec)
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	defer tr.Stop()

	root := t.TempDir()
	gitDir := filepath.Join(root, ".git")
	if err := os.MkdirAll(gitDir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := tr.AddSession("s1", root); err != nil {
		t.Fatalf("AddSession() error = %v", err)
	}
	tr.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(gitDir, "HEAD"), []byte("ref\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "kept.go"), []byte("package kept\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		paths := rec.get("s1")
		for _, p := range paths {
			if filepath.Dir(p) == ".git" || p == ".git" {
				t.Fatalf("ignored path recorded: %s", p)
			}
		}
		if len(paths) > 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("no modification recorded within deadline")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestTracker_RemoveSessionStopsAttribution(t *testing.T) {
	rec := newMemRecorder()
	tr, err := NewTracker(rec)
	if err != nil {
		t.Fatalf("NewTracker() error = %v", err)
	}
	defer tr.Stop()

	root := t.TempDir()
	if err := tr.AddSession("s1", root); err != nil {
		t.Fatalf("AddSession() error = %v", err)
	}
	tr.Start(context.Background())
	time.Sleep(20 * time.Millisecond)

	tr.RemoveSession("s1")

	if err := os.WriteFile(filepath.Join(root, "late.go"), []byte("package late\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	if paths := rec.get("s1"); len(paths) != 0 {
		t.Errorf("paths recorded after removal: %v", paths)
	}
}
