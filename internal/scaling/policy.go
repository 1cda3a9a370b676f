package scaling

import (
	"fmt"
	"sync"
	"time"
)

// Default policy values.
const (
	defaultMinWorkers         = 1
	defaultMaxWorkers         = 8
	defaultScaleUpThreshold   = 2
	defaultScaleDownThreshold = 1
	defaultCooldownPeriod     = 30 * time.Second
)

// Option configures a Policy.
type Option func(*Policy)

// WithMinWorkers sets the minimum number of workers to maintain.
func WithMinWorkers(n int) Option {
	return func(p *Policy) { p.minWorkers = n }
}

// WithMaxWorkers sets the maximum number of workers allowed.
func WithMaxWorkers(n int) Option {
	return func(p *Policy) { p.maxWorkers = n }
}

// WithScaleUpThreshold sets the queue depth above which to scale up.
// When queued tasks exceed this threshold and queued > busy, scaling up
// is recommended.
func WithScaleUpThreshold(n int) Option {
	return func(p *Policy) { p.scaleUpThreshold = n }
}

// WithScaleDownThreshold sets the busy worker threshold for scaling down.
// When the queue is empty and busy <= this threshold, scaling down is
// recommended.
func WithScaleDownThreshold(n int) Option {
	return func(p *Policy) { p.scaleDownThreshold = n }
}

// WithCooldownPeriod sets the minimum time between scaling decisions.
func WithCooldownPeriod(d time.Duration) Option {
	return func(p *Policy) { p.cooldownPeriod = d }
}

// Policy defines the rules for elastic scaling decisions.
// It is safe for concurrent use.
type Policy struct {
	mu                 sync.Mutex
	minWorkers         int
	maxWorkers         int
	scaleUpThreshold   int
	scaleDownThreshold int
	cooldownPeriod     time.Duration
	lastDecisionTime   time.Time
}

// NewPolicy creates a Policy with the given options.
// Unset options use defaults.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		minWorkers:         defaultMinWorkers,
		maxWorkers:         defaultMaxWorkers,
		scaleUpThreshold:   defaultScaleUpThreshold,
		scaleDownThreshold: defaultScaleDownThreshold,
		cooldownPeriod:     defaultCooldownPeriod,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate inspects the pool load and current worker count, returning a
// scaling decision. The cooldown period prevents rapid scaling thrash.
func (p *Policy) Evaluate(load Load, currentWorkers int) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()

	if !p.lastDecisionTime.IsZero() && now.Sub(p.lastDecisionTime) < p.cooldownPeriod {
		return Decision{
			Action: ActionNone,
			Target: currentWorkers,
			Reason: "cooldown period active",
		}
	}

	// Scale up: queued tasks exceed threshold and there's more work than workers.
	if load.Queued > p.scaleUpThreshold && load.Queued > load.Busy && currentWorkers < p.maxWorkers {
		delta := load.Queued - load.Busy
		if currentWorkers+delta > p.maxWorkers {
			delta = p.maxWorkers - currentWorkers
		}
		if delta > 0 {
			p.lastDecisionTime = now
			return Decision{
				Action: ActionScaleUp,
				Delta:  delta,
				Target: currentWorkers + delta,
				Reason: fmt.Sprintf("%d queued tasks with %d busy workers (threshold: %d)", load.Queued, load.Busy, p.scaleUpThreshold),
			}
		}
	}

	// Scale down: no queued work and few busy workers. One at a time to stay
	// conservative.
	if load.Queued == 0 && load.Busy <= p.scaleDownThreshold && currentWorkers > p.minWorkers {
		delta := currentWorkers - p.minWorkers
		if delta > 1 {
			delta = 1
		}
		p.lastDecisionTime = now
		return Decision{
			Action: ActionScaleDown,
			Delta:  -delta,
			Target: currentWorkers - delta,
			Reason: fmt.Sprintf("empty queue with %d busy workers (threshold: %d)", load.Busy, p.scaleDownThreshold),
		}
	}

	return Decision{
		Action: ActionNone,
		Target: currentWorkers,
		Reason: "no scaling needed",
	}
}
