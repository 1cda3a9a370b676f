package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"parbuild/internal/logging"
)

const debounceWindow = 50 * time.Millisecond

// Recorder receives batched modification reports. The session manager's
// MarkFilesModified satisfies this surface.
type Recorder interface {
	MarkFilesModified(ctx context.Context, sessionID string, paths []string) error
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *logging.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithIgnore replaces the default ignore list (.git, node_modules, and
// friends) with the given directory names.
func WithIgnore(names ...string) Option {
	return func(t *Tracker) { t.ignorePaths = names }
}

// Tracker watches session workspace roots for file writes and records the
// touched paths against the owning session.
type Tracker struct {
	watcher  *fsnotify.Watcher
	recorder Recorder
	logger   *logging.Logger

	mu    sync.RWMutex
	roots map[string]string // session id -> workspace root

	ignorePaths []string
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewTracker creates a Tracker reporting to the given recorder.
func NewTracker(recorder Recorder, opts ...Option) (*Tracker, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	t := &Tracker{
		watcher:     watcher,
		recorder:    recorder,
		logger:      logging.NopLogger(),
		roots:       make(map[string]string),
		ignorePaths: []string{".git", ".parbuild", "node_modules", ".DS_Store"},
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// AddSession starts watching a session's workspace root, including
// subdirectories present at call time.
func (t *Tracker) AddSession(sessionID, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve workspace root: %w", err)
	}

	t.mu.Lock()
	t.roots[sessionID] = abs
	t.mu.Unlock()

	if err := t.watcher.Add(abs); err != nil {
		return fmt.Errorf("watch %s: %w", abs, err)
	}
	return t.watchDirRecursive(abs)
}

// watchDirRecursive adds all subdirectories to the watcher. fsnotify only
// watches directories, not trees.
func (t *Tracker) watchDirRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries, keep walking
		}
		base := filepath.Base(path)
		for _, ignore := range t.ignorePaths {
			if base == ignore {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}
		if info.IsDir() {
			_ = t.watcher.Add(path)
		}
		return nil
	})
}

// RemoveSession stops watching a session's workspace root.
func (t *Tracker) RemoveSession(sessionID string) {
	t.mu.Lock()
	root, ok := t.roots[sessionID]
	delete(t.roots, sessionID)
	t.mu.Unlock()

	if ok {
		_ = t.watcher.Remove(root)
	}
}

// Start begins processing filesystem events until the context is cancelled
// or Stop is called.
func (t *Tracker) Start(ctx context.Context) {
	go t.watchLoop(ctx)
}

// Stop stops the tracker and releases the underlying watcher.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		_ = t.watcher.Close()
	})
}

func (t *Tracker) watchLoop(ctx context.Context) {
	debounceTimer := time.NewTimer(0)
	<-debounceTimer.C // drain initial fire

	pending := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return

		case <-t.stopCh:
			return

		case ev, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending[ev.Name] = struct{}{}
			debounceTimer.Reset(debounceWindow)

			// A new directory needs its own watch.
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = t.watchDirRecursive(ev.Name)
				}
			}

		case <-debounceTimer.C:
			batch := pending
			pending = make(map[string]struct{})
			t.flush(ctx, batch)

		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.logger.Warn("watcher error", "error", err)
		}
	}
}

// flush attributes each batched path to its owning session and reports the
// per-session sets to the recorder.
func (t *Tracker) flush(ctx context.Context, batch map[string]struct{}) {
	if len(batch) == 0 {
		return
	}

	t.mu.RLock()
	roots := make(map[string]string, len(t.roots))
	for id, root := range t.roots {
		roots[id] = root
	}
	t.mu.RUnlock()

	bySession := make(map[string][]string)
	for path := range batch {
		if t.ignored(path) {
			continue
		}
		for sessionID, root := range roots {
			if !strings.HasPrefix(path, root+string(filepath.Separator)) {
				continue
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				continue
			}
			bySession[sessionID] = append(bySession[sessionID], rel)
			break
		}
	}

	for sessionID, paths := range bySession {
		sort.Strings(paths)
		if err := t.recorder.MarkFilesModified(ctx, sessionID, paths); err != nil {
			t.logger.Warn("failed to record modified files",
				"session_id", sessionID, "paths", len(paths), "error", err)
			continue
		}
		t.logger.Debug("modified files recorded", "session_id", sessionID, "paths", len(paths))
	}
}

func (t *Tracker) ignored(path string) bool {
	sep := string(filepath.Separator)
	for _, ignore := range t.ignorePaths {
		if strings.Contains(path, sep+ignore+sep) ||
			strings.HasSuffix(path, sep+ignore) ||
			filepath.Base(path) == ignore {
			return true
		}
	}
	return false
}
