package coordination

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"parbuild/internal/event"
	"parbuild/internal/scaling"
	"parbuild/internal/store"
)

func writeFile(t *testing.T, dir, name string) error {
	t.Helper()
	return os.WriteFile(filepath.Join(dir, name), []byte("package x\n"), 0o644)
}

func newTestHub(t *testing.T, opts ...Option) *Hub {
	t.Helper()
	h, err := NewHub(context.Background(), Config{
		Bus:   event.NewBus(),
		Store: store.NewMemory(),
	}, opts...)
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	return h
}

func TestNewHub_RequiresBusAndStore(t *testing.T) {
	ctx := context.Background()

	if _, err := NewHub(ctx, Config{Store: store.NewMemory()}); err == nil {
		t.Error("NewHub without bus succeeded")
	}
	if _, err := NewHub(ctx, Config{Bus: event.NewBus()}); err == nil {
		t.Error("NewHub without store succeeded")
	}
}

func TestHub_StartStop(t *testing.T) {
	h := newTestHub(t)

	if h.Running() {
		t.Error("hub reports running before Start")
	}
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !h.Running() {
		t.Error("hub not running after Start")
	}
	if err := h.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded, want error")
	}

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if h.Running() {
		t.Error("hub still running after Stop")
	}
	// Idempotent.
	if err := h.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestHub_StopWithScalingAndWatcher(t *testing.T) {
	h := newTestHub(t, WithScaling(1, 4), WithWatcher())

	if h.ScalingMonitor() == nil {
		t.Fatal("scaling monitor not constructed")
	}
	if err := h.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		_ = h.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return")
	}
}

func TestHub_RestartDoesNotStackScalingHandlers(t *testing.T) {
	h := newTestHub(t, WithScaling(1, 4))

	if got := h.ScalingMonitor().HandlerCount(); got != 1 {
		t.Fatalf("decision handlers after NewHub = %d, want 1", got)
	}

	for i := 0; i < 2; i++ {
		if err := h.Start(context.Background()); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := h.Stop(); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	}

	if got := h.ScalingMonitor().HandlerCount(); got != 1 {
		t.Errorf("decision handlers after two Start/Stop cycles = %d, want 1", got)
	}

	// A decision arriving after Stop must not touch the pool.
	h.applyScalingDecision(scaling.Decision{Action: scaling.ActionScaleUp, Delta: 3, Target: 3})
	if got := len(h.Workers().List(nil)); got != 0 {
		t.Errorf("workers after post-stop decision = %d, want 0", got)
	}
}

func TestHub_TaskFlowUpdatesSessionProgress(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t)

	s, err := h.Sessions().Create(ctx, "build", 2, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := h.Sessions().Start(ctx, s.ID, ""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	w, err := h.Workers().Register(ctx, nil)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	workerID, err := h.Workers().AssignTask(ctx, "t1", nil, s.ID)
	if err != nil {
		t.Fatalf("AssignTask() error = %v", err)
	}
	if workerID != w.ID {
		t.Fatalf("task went to %s, want %s", workerID, w.ID)
	}

	got, _ := h.Sessions().Get(s.ID)
	if got.InProgressTasks != 1 {
		t.Errorf("in progress = %d after assign, want 1", got.InProgressTasks)
	}

	if err := h.Workers().CompleteTask(ctx, w.ID, "t1", true); err != nil {
		t.Fatalf("CompleteTask() error = %v", err)
	}

	got, _ = h.Sessions().Get(s.ID)
	if got.CompletedTasks != 1 || got.InProgressTasks != 0 {
		t.Errorf("counters = %d completed %d in progress, want 1/0",
			got.CompletedTasks, got.InProgressTasks)
	}

	snap := h.Status().Snapshot()
	if snap.ActiveSessions != 1 || len(snap.Workers) != 1 {
		t.Errorf("snapshot = %d active sessions %d workers, want 1/1",
			snap.ActiveSessions, len(snap.Workers))
	}
}

func TestHub_HealthLoopRequeuesInterruptedWork(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, WithHealthCheck(time.Millisecond, 10*time.Millisecond))

	s, err := h.Sessions().Create(ctx, "build", 1, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := h.Workers().Register(ctx, nil); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := h.Workers().AssignTask(ctx, "t1", nil, s.ID); err != nil {
		t.Fatalf("AssignTask() error = %v", err)
	}

	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Stop()

	deadline := time.After(2 * time.Second)
	for {
		pending := h.Workers().PendingTasks()
		if len(pending) == 1 && pending[0].TaskID == "t1" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("in-flight task not requeued by health loop")
		case <-time.After(20 * time.Millisecond):
		}
	}

	// The hook moved the session's task back out of in-progress.
	got, _ := h.Sessions().Get(s.ID)
	if got.InProgressTasks != 0 {
		t.Errorf("in progress = %d after requeue, want 0", got.InProgressTasks)
	}
}

func TestHub_WatcherFeedsModifiedFiles(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, WithWatcher())

	s, err := h.Sessions().Create(ctx, "build", 1, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	root := t.TempDir()
	if err := h.WatchWorkspace(s.ID, root); err != nil {
		t.Fatalf("WatchWorkspace() error = %v", err)
	}
	if err := h.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer h.Stop()
	time.Sleep(20 * time.Millisecond)

	if err := writeFile(t, root, "touched.go"); err != nil {
		t.Fatalf("writeFile() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		got, _ := h.Sessions().Get(s.ID)
		if len(got.ModifiedFiles) > 0 {
			if got.ModifiedFiles[0] != "touched.go" {
				t.Errorf("modified files = %v, want [touched.go]", got.ModifiedFiles)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("modification never reached the session record")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
