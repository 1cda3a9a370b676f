package coordination

import (
	"context"
	"errors"
	"sync"
	"time"

	"parbuild/internal/event"
	"parbuild/internal/logging"
	"parbuild/internal/scaling"
	"parbuild/internal/session"
	"parbuild/internal/status"
	"parbuild/internal/watch"
	"parbuild/internal/worker"
)

// Default lifecycle timings.
const (
	defaultHeartbeatTimeout = 30 * time.Second
	defaultHealthInterval   = 10 * time.Second
	defaultCleanupInterval  = 30 * time.Minute
)

// Store is the durable persistence surface the hub's components share.
// internal/store's Memory and internal/store/sqlite's Store satisfy it.
type Store interface {
	session.Store
	worker.Store
}

// Config holds required dependencies for creating a Hub.
type Config struct {
	Bus    *event.Bus
	Store  Store
	Logger *logging.Logger
}

// sessionHook feeds worker task transitions into session progress
// accounting.
type sessionHook struct {
	sessions *session.Manager
}

func (h *sessionHook) TaskStarted(ctx context.Context, sessionID string) error {
	return h.sessions.RecordTaskStarted(ctx, sessionID)
}

func (h *sessionHook) TaskFinished(ctx context.Context, sessionID string, success bool) error {
	return h.sessions.RecordTaskResult(ctx, sessionID, success)
}

func (h *sessionHook) TaskRequeued(ctx context.Context, sessionID string) error {
	return h.sessions.RecordTaskRequeued(ctx, sessionID)
}

// Hub wires the coordinator components together and owns their lifecycle.
type Hub struct {
	mu      sync.RWMutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	cfg hubConfig

	bus        *event.Bus
	logger     *logging.Logger
	sessions   *session.Manager
	workers    *worker.Coordinator
	aggregator *status.Aggregator

	scalingMonitor *scaling.Monitor
	tracker        *watch.Tracker

	// monitorDone is closed when the scaling monitor goroutine exits.
	monitorDone chan struct{}

	// runCtx is the context of the current Start. The scaling decision
	// handler runs on bus publishers' goroutines, so it reads runCtx
	// through its own mutex rather than the hub lock.
	ctxMu  sync.Mutex
	runCtx context.Context
}

// NewHub creates a Hub, loading persisted state from the store.
func NewHub(ctx context.Context, cfg Config, opts ...Option) (*Hub, error) {
	if cfg.Bus == nil {
		return nil, errors.New("coordination: Bus is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("coordination: Store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}

	hc := hubConfig{
		heartbeatTimeout: defaultHeartbeatTimeout,
		healthInterval:   defaultHealthInterval,
		cleanupInterval:  defaultCleanupInterval,
	}
	for _, opt := range opts {
		opt(&hc)
	}

	sessions, err := session.NewManager(ctx, cfg.Store,
		session.WithBus(cfg.Bus),
		session.WithLogger(logger.WithComponent("session")),
	)
	if err != nil {
		return nil, err
	}

	workerOpts := []worker.Option{
		worker.WithBus(cfg.Bus),
		worker.WithLogger(logger.WithComponent("worker")),
		worker.WithSessionHook(&sessionHook{sessions: sessions}),
	}
	if hc.requeueAtBack {
		workerOpts = append(workerOpts, worker.WithRequeueAtBack())
	}
	workers, err := worker.NewCoordinator(ctx, cfg.Store, workerOpts...)
	if err != nil {
		return nil, err
	}

	h := &Hub{
		cfg:        hc,
		bus:        cfg.Bus,
		logger:     logger,
		sessions:   sessions,
		workers:    workers,
		aggregator: status.NewAggregator(sessions, workers),
	}

	if hc.scalingEnabled {
		policy := hc.scalingPolicy
		if policy == nil {
			var policyOpts []scaling.Option
			if hc.minWorkers > 0 {
				policyOpts = append(policyOpts, scaling.WithMinWorkers(hc.minWorkers))
			}
			if hc.maxWorkers > 0 {
				policyOpts = append(policyOpts, scaling.WithMaxWorkers(hc.maxWorkers))
			}
			policy = scaling.NewPolicy(policyOpts...)
		}
		h.scalingMonitor = scaling.NewMonitor(cfg.Bus, policy, len(workers.List(nil)))
		h.scalingMonitor.OnDecision(h.applyScalingDecision)
	}

	if hc.watchEnabled {
		watchOpts := []watch.Option{watch.WithLogger(logger.WithComponent("watch"))}
		if len(hc.watchIgnore) > 0 {
			watchOpts = append(watchOpts, watch.WithIgnore(hc.watchIgnore...))
		}
		tracker, err := watch.NewTracker(sessions, watchOpts...)
		if err != nil {
			return nil, err
		}
		h.tracker = tracker
	}

	return h, nil
}

// Sessions returns the session manager.
func (h *Hub) Sessions() *session.Manager { return h.sessions }

// Workers returns the worker coordinator.
func (h *Hub) Workers() *worker.Coordinator { return h.workers }

// Status returns the read-only status aggregator.
func (h *Hub) Status() *status.Aggregator { return h.aggregator }

// ScalingMonitor returns the scaling monitor, or nil when scaling is
// disabled.
func (h *Hub) ScalingMonitor() *scaling.Monitor { return h.scalingMonitor }

// WatchWorkspace registers a session's workspace root with the tracker.
// A no-op when watching is disabled.
func (h *Hub) WatchWorkspace(sessionID, root string) error {
	if h.tracker == nil {
		return nil
	}
	return h.tracker.AddSession(sessionID, root)
}

// UnwatchWorkspace removes a session's workspace root from the tracker.
func (h *Hub) UnwatchWorkspace(sessionID string) {
	if h.tracker != nil {
		h.tracker.RemoveSession(sessionID)
	}
}

// Start begins the health check loop, cleanup loop, scaling monitor, and
// workspace tracker. Returns an error if the hub is already started.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return errors.New("coordination: hub already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.started = true
	h.done = make(chan struct{})

	h.ctxMu.Lock()
	h.runCtx = ctx
	h.ctxMu.Unlock()

	if h.scalingMonitor != nil {
		h.monitorDone = make(chan struct{})
		go func() {
			defer close(h.monitorDone)
			h.scalingMonitor.Start(ctx)
		}()
	}

	if h.tracker != nil {
		h.tracker.Start(ctx)
	}

	go h.housekeepingLoop(ctx)

	h.logger.Info("hub started",
		"heartbeat_timeout", h.cfg.heartbeatTimeout,
		"health_interval", h.cfg.healthInterval,
		"scaling", h.scalingMonitor != nil,
		"watch", h.tracker != nil)
	return nil
}

// applyScalingDecision is registered with the monitor once at
// construction, so Stop/Start cycles do not stack duplicate handlers.
func (h *Hub) applyScalingDecision(d scaling.Decision) {
	h.ctxMu.Lock()
	ctx := h.runCtx
	h.ctxMu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	added, removed, err := h.workers.ScaleTo(ctx, d.Target)
	if err != nil {
		h.logger.Warn("scaling failed", "target", d.Target, "error", err)
	}
	h.scalingMonitor.SetCurrentWorkers(len(h.workers.List(nil)))
	h.logger.Info("scaling applied",
		"action", d.Action, "target", d.Target,
		"added", len(added), "removed", len(removed), "reason", d.Reason)
}

// housekeepingLoop sweeps stale workers and expired sessions on fixed
// intervals until the context is cancelled.
func (h *Hub) housekeepingLoop(ctx context.Context) {
	defer close(h.done)

	health := time.NewTicker(h.cfg.healthInterval)
	defer health.Stop()

	var cleanup <-chan time.Time
	if h.cfg.cleanupMaxAge > 0 {
		t := time.NewTicker(h.cfg.cleanupInterval)
		defer t.Stop()
		cleanup = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-health.C:
			if gone := h.workers.CheckHealth(ctx, h.cfg.heartbeatTimeout); len(gone) > 0 {
				h.logger.Warn("workers taken offline", "count", len(gone))
			}
		case <-cleanup:
			if removed, err := h.sessions.CleanupOldSessions(ctx, h.cfg.cleanupMaxAge); err != nil {
				h.logger.Warn("session cleanup failed", "error", err)
			} else if removed > 0 {
				h.logger.Info("sessions cleaned up", "count", removed)
			}
		}
	}
}

// Stop stops all components in reverse order. It is idempotent.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.started {
		return nil
	}

	h.cancel()
	<-h.done

	if h.scalingMonitor != nil {
		h.scalingMonitor.Stop()
		<-h.monitorDone
	}
	if h.tracker != nil {
		h.tracker.Stop()
	}

	h.started = false
	h.logger.Info("hub stopped")
	return nil
}

// Running returns whether the hub is currently started.
func (h *Hub) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.started
}
