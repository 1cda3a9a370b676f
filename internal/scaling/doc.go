// Package scaling provides queue-depth-based elastic sizing of the worker
// pool.
//
// As build sessions enqueue tasks, the pool may need to grow or shrink.
// The scaling package watches queue depth events and applies a configurable
// policy to recommend pool size changes.
//
// The core types are:
//
//   - [Policy]: Defines scaling rules (thresholds, cooldown, worker limits)
//   - [Monitor]: Watches queue depth events on the event bus and applies the policy
//   - [Decision]: The output of policy evaluation: scale up, scale down, or hold
//
// # Usage
//
//	policy := scaling.NewPolicy(
//	    scaling.WithMinWorkers(1),
//	    scaling.WithMaxWorkers(8),
//	    scaling.WithScaleUpThreshold(2),
//	    scaling.WithScaleDownThreshold(1),
//	    scaling.WithCooldownPeriod(30 * time.Second),
//	)
//
//	monitor := scaling.NewMonitor(bus, policy, initialWorkers)
//	monitor.OnDecision(func(d scaling.Decision) {
//	    coordinator.ScaleTo(ctx, d.Target)
//	})
//	go monitor.Start(ctx)
//	defer monitor.Stop()
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package scaling
