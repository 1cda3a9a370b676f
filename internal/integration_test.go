// Package internal contains integration tests that verify the coordinator
// packages work together correctly: event bus routing, the hub composition,
// and the session/worker/lock flow end to end.
package internal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"parbuild/internal/coordination"
	"parbuild/internal/event"
	"parbuild/internal/filelock"
	"parbuild/internal/store"
)

// TestEventBusIntegration verifies that the event bus routes component
// events to the right subscribers.
func TestEventBusIntegration(t *testing.T) {
	bus := event.NewBus()

	var mu sync.Mutex
	var received []event.Event

	bus.Subscribe("session.created", func(e event.Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})
	bus.Subscribe("task.assigned", func(e event.Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})

	var all []event.Event
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		all = append(all, e)
		mu.Unlock()
	})

	ctx := context.Background()
	hub, err := coordination.NewHub(ctx, coordination.Config{
		Bus:   bus,
		Store: store.NewMemory(),
	})
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}

	s, err := hub.Sessions().Create(ctx, "build", 1, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := hub.Workers().Register(ctx, nil); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := hub.Workers().AssignTask(ctx, "t1", nil, s.ID); err != nil {
		t.Fatalf("AssignTask() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	types := make(map[string]int)
	for _, e := range received {
		types[e.EventType()]++
	}
	if types["session.created"] != 1 {
		t.Errorf("session.created delivered %d times, want 1", types["session.created"])
	}
	if types["task.assigned"] != 1 {
		t.Errorf("task.assigned delivered %d times, want 1", types["task.assigned"])
	}
	if len(all) < len(received) {
		t.Errorf("wildcard subscriber saw %d events, typed subscribers saw %d", len(all), len(received))
	}
}

// TestSessionWorkerLockFlow drives a full coordinated run: two sessions
// compete for files, workers execute tasks, and terminal cleanup frees
// the contested path.
func TestSessionWorkerLockFlow(t *testing.T) {
	ctx := context.Background()
	hub, err := coordination.NewHub(ctx, coordination.Config{
		Bus:   event.NewBus(),
		Store: store.NewMemory(),
	})
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	sessions, workers := hub.Sessions(), hub.Workers()

	build, err := sessions.Create(ctx, "build", 2, nil)
	if err != nil {
		t.Fatalf("Create(build) error = %v", err)
	}
	lint, err := sessions.Create(ctx, "lint", 1, nil)
	if err != nil {
		t.Fatalf("Create(lint) error = %v", err)
	}

	if err := sessions.Start(ctx, build.ID, ""); err != nil {
		t.Fatalf("Start(build) error = %v", err)
	}
	if err := sessions.LockFiles(ctx, build.ID, []string{"go.mod", "main.go"}); err != nil {
		t.Fatalf("LockFiles(build) error = %v", err)
	}

	// The competing session is refused the contested path, atomically.
	err = sessions.LockFiles(ctx, lint.ID, []string{"main.go", "lint.go"})
	var conflict *filelock.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("LockFiles(lint) error = %v, want ConflictError", err)
	}
	if conflict.Holder != build.ID {
		t.Errorf("conflict holder = %s, want %s", conflict.Holder, build.ID)
	}

	// One worker executes both build tasks back to back.
	w, err := workers.Register(ctx, nil)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	for _, task := range []string{"compile", "link"} {
		id, err := workers.AssignTask(ctx, task, nil, build.ID)
		if err != nil {
			t.Fatalf("AssignTask(%s) error = %v", task, err)
		}
		if id != w.ID {
			t.Fatalf("task %s went to %s, want %s", task, id, w.ID)
		}
		if err := workers.CompleteTask(ctx, w.ID, task, true); err != nil {
			t.Fatalf("CompleteTask(%s) error = %v", task, err)
		}
	}

	got, _ := sessions.Get(build.ID)
	if got.CompletedTasks != 2 || got.Progress() != 100 {
		t.Errorf("build session = %d completed %.0f%%, want 2 tasks 100%%",
			got.CompletedTasks, got.Progress())
	}

	// Finishing the build session releases its locks for the lint session.
	if err := sessions.Complete(ctx, build.ID); err != nil {
		t.Fatalf("Complete(build) error = %v", err)
	}
	if err := sessions.LockFiles(ctx, lint.ID, []string{"main.go", "lint.go"}); err != nil {
		t.Errorf("LockFiles(lint) after release error = %v", err)
	}

	snap := hub.Status().Snapshot()
	if snap.ActiveSessions != 1 || snap.TotalSessions != 2 {
		t.Errorf("snapshot = %d active of %d, want 1 of 2", snap.ActiveSessions, snap.TotalSessions)
	}
	if snap.LockedFiles != 2 {
		t.Errorf("locked files = %d, want lint's 2", snap.LockedFiles)
	}
}

// TestHubRestartRecoversDurableState verifies that a second hub over the
// same store sees sessions with their progress and workers as offline.
func TestHubRestartRecoversDurableState(t *testing.T) {
	ctx := context.Background()
	shared := store.NewMemory()

	h1, err := coordination.NewHub(ctx, coordination.Config{Bus: event.NewBus(), Store: shared})
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	s, err := h1.Sessions().Create(ctx, "build", 3, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := h1.Sessions().Start(ctx, s.ID, ""); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	w, err := h1.Workers().Register(ctx, nil)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := h1.Workers().AssignTask(ctx, "t1", nil, s.ID); err != nil {
		t.Fatalf("AssignTask() error = %v", err)
	}

	h2, err := coordination.NewHub(ctx, coordination.Config{Bus: event.NewBus(), Store: shared})
	if err != nil {
		t.Fatalf("NewHub(restart) error = %v", err)
	}

	gotSession, err := h2.Sessions().Get(s.ID)
	if err != nil {
		t.Fatalf("Get(session) after restart error = %v", err)
	}
	if gotSession.Status != "running" {
		t.Errorf("session status after restart = %s, want running", gotSession.Status)
	}

	gotWorker, err := h2.Workers().Get(w.ID)
	if err != nil {
		t.Fatalf("Get(worker) after restart error = %v", err)
	}
	if gotWorker.Status != "offline" {
		t.Errorf("worker status after restart = %s, want offline", gotWorker.Status)
	}

	// A heartbeat proves the worker alive again and it picks up new work.
	if err := h2.Workers().Heartbeat(ctx, w.ID); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if id, _ := h2.Workers().AssignTask(ctx, "t2", nil, s.ID); id != w.ID {
		t.Errorf("task after revival went to %q, want %s", id, w.ID)
	}
}

// TestHubLifecycleUnderLoad starts a hub with fast housekeeping and runs
// concurrent traffic against it to shake out races.
func TestHubLifecycleUnderLoad(t *testing.T) {
	ctx := context.Background()
	hub, err := coordination.NewHub(ctx, coordination.Config{
		Bus:   event.NewBus(),
		Store: store.NewMemory(),
	}, coordination.WithHealthCheck(time.Hour, 5*time.Millisecond))
	if err != nil {
		t.Fatalf("NewHub() error = %v", err)
	}
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer hub.Stop()

	s, err := hub.Sessions().Create(ctx, "stress", 100, nil)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for i := 0; i < 4; i++ {
		if _, err := hub.Workers().Register(ctx, nil); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				taskID := string(rune('a'+n)) + string(rune('0'+j))
				workerID, err := hub.Workers().AssignTask(ctx, taskID, nil, s.ID)
				if err != nil {
					t.Errorf("AssignTask error = %v", err)
					return
				}
				if workerID != "" {
					_ = hub.Workers().CompleteTask(ctx, workerID, taskID, true)
					_ = hub.Workers().Heartbeat(ctx, workerID)
				}
			}
		}(i)
	}
	wg.Wait()

	snap := hub.Status().Snapshot()
	if len(snap.Workers) != 4 {
		t.Errorf("workers = %d, want 4", len(snap.Workers))
	}
}
