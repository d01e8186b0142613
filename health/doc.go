// Package health implements the partition health tracker: fine-grained,
// per-partition-per-region circuit breaking that is independent of the
// region-level unavailability marks kept by the location cache.
//
// Each (partition, region) pair accumulates consecutive read/write failure
// counters and a rolling failure-rate window, driving a monotonic
// Healthy → UnhealthyTentative → Unhealthy state machine. A tripped pair
// is excluded from routing until its cooldown elapses, after which exactly
// one request is admitted as a recovery probe; the probe's outcome either
// closes the circuit or restarts the cooldown.
package health
