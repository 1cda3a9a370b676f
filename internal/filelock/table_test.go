package filelock

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"parbuild/internal/event"
)

func TestClaimAndHolder(t *testing.T) {
	table := NewTable(nil)

	if err := table.Claim("s1", "src/a.go"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	holder, ok := table.Holder("src/a.go")
	if !ok || holder != "s1" {
		t.Errorf("Holder = (%q, %v), want (s1, true)", holder, ok)
	}
	if _, ok := table.Holder("src/b.go"); ok {
		t.Error("Holder reported a claim on an unclaimed path")
	}
}

func TestClaimIdempotentForSameSession(t *testing.T) {
	table := NewTable(nil)

	if err := table.Claim("s1", "src/a.go"); err != nil {
		t.Fatalf("first Claim: %v", err)
	}
	if err := table.Claim("s1", "src/a.go"); err != nil {
		t.Fatalf("re-claim by holder: %v", err)
	}
	if table.Len() != 1 {
		t.Errorf("Len = %d, want 1", table.Len())
	}
}

func TestClaimConflict(t *testing.T) {
	table := NewTable(nil)

	if err := table.Claim("s1", "src/a.go"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	err := table.Claim("s2", "src/a.go")
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("got %v, want *ConflictError", err)
	}
	if conflict.Path != "src/a.go" || conflict.Holder != "s1" {
		t.Errorf("conflict = %+v, want path src/a.go held by s1", conflict)
	}
}

func TestClaimAllAtomicRollback(t *testing.T) {
	table := NewTable(nil)

	if err := table.Claim("s1", "src/b.go"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	err := table.ClaimAll("s2", []string{"src/a.go", "src/b.go", "src/c.go"})
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("got %v, want *ConflictError", err)
	}
	if conflict.Path != "src/b.go" || conflict.Holder != "s1" {
		t.Errorf("conflict = %+v, want src/b.go held by s1", conflict)
	}

	// s2 must hold none of the requested paths afterward.
	if got := table.SessionPaths("s2"); len(got) != 0 {
		t.Errorf("s2 holds %v after failed ClaimAll, want none", got)
	}
	if holder, _ := table.Holder("src/b.go"); holder != "s1" {
		t.Errorf("src/b.go holder = %q, want s1", holder)
	}
}

func TestClaimAllRollbackPreservesExistingClaims(t *testing.T) {
	table := NewTable(nil)

	// s2 already holds a.go; the failed batch must not release it.
	if err := table.Claim("s2", "src/a.go"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := table.Claim("s1", "src/b.go"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	if err := table.ClaimAll("s2", []string{"src/a.go", "src/b.go"}); err == nil {
		t.Fatal("ClaimAll should have failed")
	}

	if holder, _ := table.Holder("src/a.go"); holder != "s2" {
		t.Errorf("pre-existing claim lost: src/a.go holder = %q, want s2", holder)
	}
}

func TestReleaseErrors(t *testing.T) {
	table := NewTable(nil)

	if err := table.Release("s1", "src/a.go"); !errors.Is(err, ErrNotClaimed) {
		t.Errorf("Release unclaimed = %v, want ErrNotClaimed", err)
	}

	if err := table.Claim("s1", "src/a.go"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := table.Release("s2", "src/a.go"); !errors.Is(err, ErrNotHolder) {
		t.Errorf("Release by non-holder = %v, want ErrNotHolder", err)
	}
	if err := table.Release("s1", "src/a.go"); err != nil {
		t.Errorf("Release by holder = %v, want nil", err)
	}
}

func TestReleaseAll(t *testing.T) {
	table := NewTable(nil)

	for _, p := range []string{"src/c.go", "src/a.go", "src/b.go"} {
		if err := table.Claim("s1", p); err != nil {
			t.Fatalf("Claim(%s): %v", p, err)
		}
	}
	if err := table.Claim("s2", "src/d.go"); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	released := table.ReleaseAll("s1")
	want := []string{"src/a.go", "src/b.go", "src/c.go"}
	if len(released) != len(want) {
		t.Fatalf("released %v, want %v", released, want)
	}
	for i := range want {
		if released[i] != want[i] {
			t.Errorf("released[%d] = %q, want %q", i, released[i], want[i])
		}
	}

	if table.Len() != 1 {
		t.Errorf("Len = %d, want 1 (s2's claim remains)", table.Len())
	}
	if got := table.ReleaseAll("s1"); len(got) != 0 {
		t.Errorf("second ReleaseAll returned %v, want empty", got)
	}
}

func TestClaimEventsPublished(t *testing.T) {
	bus := event.NewBus()
	table := NewTable(bus)

	var claims, releases int
	bus.Subscribe("file.claimed", func(event.Event) { claims++ })
	bus.Subscribe("file.released", func(event.Event) { releases++ })

	if err := table.ClaimAll("s1", []string{"a", "b"}); err != nil {
		t.Fatalf("ClaimAll: %v", err)
	}
	if claims != 2 {
		t.Errorf("claim events = %d, want 2", claims)
	}

	// Re-entrant claim publishes nothing.
	if err := table.Claim("s1", "a"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if claims != 2 {
		t.Errorf("claim events after no-op = %d, want 2", claims)
	}

	table.ReleaseAll("s1")
	if releases != 2 {
		t.Errorf("release events = %d, want 2", releases)
	}
}

func TestDisjointHoldingsUnderConcurrentClaims(t *testing.T) {
	table := NewTable(nil)

	// Two sessions race over an overlapping set of paths; every path must
	// end with exactly one holder.
	paths := make([]string, 20)
	for i := range paths {
		paths[i] = fmt.Sprintf("src/f%d.go", i)
	}

	var wg sync.WaitGroup
	for _, sess := range []string{"s1", "s2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for _, p := range paths {
				_ = table.Claim(id, p)
			}
		}(sess)
	}
	wg.Wait()

	s1 := table.SessionPaths("s1")
	s2 := table.SessionPaths("s2")
	if len(s1)+len(s2) != len(paths) {
		t.Errorf("total held = %d, want %d", len(s1)+len(s2), len(paths))
	}
	held := make(map[string]bool)
	for _, p := range append(s1, s2...) {
		if held[p] {
			t.Errorf("path %s held by both sessions", p)
		}
		held[p] = true
	}
}
