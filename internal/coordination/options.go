package coordination

import (
	"time"

	"parbuild/internal/scaling"
)

// hubConfig holds optional configuration for a Hub.
type hubConfig struct {
	scalingPolicy    *scaling.Policy
	scalingEnabled   bool
	watchEnabled     bool
	requeueAtBack    bool
	heartbeatTimeout time.Duration
	healthInterval   time.Duration
	cleanupMaxAge    time.Duration
	cleanupInterval  time.Duration
	minWorkers       int
	maxWorkers       int
	watchIgnore      []string
}

// Option configures a Hub.
type Option func(*hubConfig)

// WithScalingPolicy sets the scaling policy used by the scaling monitor
// and enables scaling. If nil, a default policy is created.
func WithScalingPolicy(p *scaling.Policy) Option {
	return func(c *hubConfig) {
		c.scalingPolicy = p
		c.scalingEnabled = true
	}
}

// WithScaling enables the scaling monitor with a default policy bounded
// by min and max. Zero values use the policy defaults.
func WithScaling(min, max int) Option {
	return func(c *hubConfig) {
		c.scalingEnabled = true
		c.minWorkers = min
		c.maxWorkers = max
	}
}

// WithWatcher enables the workspace modified-file tracker. An empty
// ignore list keeps the tracker defaults.
func WithWatcher(ignore ...string) Option {
	return func(c *hubConfig) {
		c.watchEnabled = true
		c.watchIgnore = ignore
	}
}

// WithHealthCheck sets the heartbeat timeout and how often stale workers
// are swept.
func WithHealthCheck(timeout, interval time.Duration) Option {
	return func(c *hubConfig) {
		c.heartbeatTimeout = timeout
		c.healthInterval = interval
	}
}

// WithCleanup sets the terminal-session retention age and how often the
// cleanup pass runs. A zero maxAge disables cleanup.
func WithCleanup(maxAge, interval time.Duration) Option {
	return func(c *hubConfig) {
		c.cleanupMaxAge = maxAge
		c.cleanupInterval = interval
	}
}

// WithRequeueAtBack makes interrupted tasks rejoin the queue at the back.
func WithRequeueAtBack() Option {
	return func(c *hubConfig) { c.requeueAtBack = true }
}
