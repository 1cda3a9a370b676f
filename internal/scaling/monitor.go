package scaling

import (
	"context"
	"sync"

	"parbuild/internal/event"
)

// Monitor watches queue depth events on the event bus and applies a scaling
// policy to recommend worker count changes.
type Monitor struct {
	mu       sync.Mutex
	bus      *event.Bus
	policy   *Policy
	handlers []func(Decision)
	subID    string
	cancel   context.CancelFunc

	// currentWorkers is maintained by the monitor. The caller is expected to
	// update it via SetCurrentWorkers when the pool actually changes size.
	currentWorkers int
}

// NewMonitor creates a Monitor that evaluates the given policy whenever a
// QueueDepthChangedEvent is received on the bus.
func NewMonitor(bus *event.Bus, policy *Policy, initialWorkers int) *Monitor {
	return &Monitor{
		bus:            bus,
		policy:         policy,
		currentWorkers: initialWorkers,
	}
}

// OnDecision registers a callback that is invoked when a non-none scaling
// decision is made. Multiple handlers may be registered.
func (m *Monitor) OnDecision(handler func(Decision)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// HandlerCount returns the number of registered decision handlers.
func (m *Monitor) HandlerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handlers)
}

// SetCurrentWorkers updates the worker count known to the monitor.
// Call this after actually adding or removing workers so subsequent
// evaluations use the correct count.
func (m *Monitor) SetCurrentWorkers(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentWorkers = n
}

// Start subscribes to queue depth events and begins evaluating the policy.
// It blocks until the context is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	subID := m.bus.Subscribe("queue.depth_changed", func(e event.Event) {
		de, ok := e.(event.QueueDepthChangedEvent)
		if !ok {
			return
		}
		load := Load{
			Queued: de.Queued,
			Busy:   de.Busy,
		}

		m.mu.Lock()
		current := m.currentWorkers
		handlers := make([]func(Decision), len(m.handlers))
		copy(handlers, m.handlers)
		m.mu.Unlock()

		decision := m.policy.Evaluate(load, current)
		if decision.Action != ActionNone {
			m.bus.Publish(event.NewScalingDecisionEvent(
				string(decision.Action), decision.Delta, decision.Reason, current,
			))
			for _, h := range handlers {
				h(decision)
			}
		}
	})

	m.mu.Lock()
	m.subID = subID
	m.cancel = cancel
	m.mu.Unlock()

	<-ctx.Done()
}

// Stop unsubscribes from events and cancels the monitor.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	subID := m.subID
	m.mu.Unlock()

	if subID != "" {
		m.bus.Unsubscribe(subID)
	}
	if cancel != nil {
		cancel()
	}
}
