package health

import (
	"sync"
	"time"

	"github.com/arloliu/meridian/internal/logging"
	"github.com/arloliu/meridian/internal/metrics"
	"github.com/arloliu/meridian/types"
)

// Status is the health state of one (partition, region) pair.
//
// Transitions are monotonic per incident: Healthy advances to
// UnhealthyTentative and then Unhealthy on failure accumulation; the only
// way back to Healthy is a successful recovery probe.
type Status int

const (
	// StatusHealthy means requests route to the region normally.
	StatusHealthy Status = iota
	// StatusUnhealthyTentative means the pair tripped once and is being
	// avoided while it cools down.
	StatusUnhealthyTentative
	// StatusUnhealthy means the pair tripped again and is avoided until a
	// probe succeeds.
	StatusUnhealthy
)

// String returns the display name of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthyTentative:
		return "unhealthy_tentative"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Defaults for the tracker thresholds. Write failures trip sooner than
// read failures because a masked write failure is costlier.
const (
	DefaultReadFailureThreshold        = 10
	DefaultWriteFailureThreshold       = 5
	DefaultFailureRateThreshold        = 90 // percent tolerated; trips above
	DefaultMinimumRequestsForRateCheck = 100
	DefaultInitialUnavailableDuration  = time.Minute
	DefaultFailureRateWindow           = time.Minute
	DefaultProbeClaimTimeout           = time.Minute
)

// healthInfo is the per-(partition, region) failure state.
//
// Created lazily on the first request touching the pair and never
// destroyed; success resets counters instead.
type healthInfo struct {
	mu sync.Mutex

	status           Status
	readConsecutive  int
	writeConsecutive int

	// Rolling window for the failure-rate trigger.
	windowStart    time.Time
	windowRequests int
	windowFailures int

	unavailableSince time.Time

	// probing is the single-prober gate: once the cooldown elapses,
	// exactly one request may claim it and probe the region. probeStarted
	// bounds the claim so a prober that never reports an outcome cannot
	// wedge the pair.
	probing      bool
	probeStarted time.Time
}

// rollWindow starts a fresh rate window when the current one has elapsed.
func (h *healthInfo) rollWindow(now time.Time, window time.Duration) {
	if h.windowStart.IsZero() || now.Sub(h.windowStart) >= window {
		h.windowStart = now
		h.windowRequests = 0
		h.windowFailures = 0
	}
}

// consecutive returns the consecutive-failure counter for the operation.
func (h *healthInfo) consecutive(op types.OperationType) int {
	if op.IsWrite() {
		return h.writeConsecutive
	}

	return h.readConsecutive
}

// Tracker maintains per-partition-per-region failure state and decides,
// independently of region-level unavailability, whether a partition should
// avoid a region.
//
// All state mutation happens through RecordSuccess/RecordFailure; the one
// deliberate exception is the recovery-probe claim taken inside
// ExclusionsForAttempt, which must be atomic with the exclusion decision.
// CircuitBrokenRegions is the read-only view for plain resolution.
//
// Tracker is safe for concurrent use from multiple goroutines.
type Tracker struct {
	readFailureThreshold        int
	writeFailureThreshold       int
	failureRateThreshold        int
	minimumRequestsForRateCheck int
	initialUnavailableDuration  time.Duration
	failureRateWindow           time.Duration
	probeClaimTimeout           time.Duration

	logger  types.Logger
	metrics types.MetricsCollector

	mu      sync.RWMutex
	entries map[types.PartitionKeyRange]map[string]*healthInfo
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithReadFailureThreshold sets the consecutive read failures that trip a
// (partition, region) pair.
//
// Default: 10
//
// Parameters:
//   - n: Number of consecutive read failures
//
// Returns:
//   - TrackerOption: Configuration option
func WithReadFailureThreshold(n int) TrackerOption {
	return func(t *Tracker) {
		t.readFailureThreshold = n
	}
}

// WithWriteFailureThreshold sets the consecutive write failures that trip
// a (partition, region) pair.
//
// Default: 5
//
// Parameters:
//   - n: Number of consecutive write failures
//
// Returns:
//   - TrackerOption: Configuration option
func WithWriteFailureThreshold(n int) TrackerOption {
	return func(t *Tracker) {
		t.writeFailureThreshold = n
	}
}

// WithFailureRateThreshold sets the tolerated failure percentage. Once the
// minimum sample size is reached, a window failure rate above this trips
// the pair.
//
// Default: 90
//
// Parameters:
//   - percent: Tolerated failure rate in percent
//
// Returns:
//   - TrackerOption: Configuration option
func WithFailureRateThreshold(percent int) TrackerOption {
	return func(t *Tracker) {
		t.failureRateThreshold = percent
	}
}

// WithMinimumRequestsForRateCheck sets the sample-size gate for the
// failure-rate trigger.
//
// Default: 100
//
// Parameters:
//   - n: Minimum window requests before the rate is evaluated
//
// Returns:
//   - TrackerOption: Configuration option
func WithMinimumRequestsForRateCheck(n int) TrackerOption {
	return func(t *Tracker) {
		t.minimumRequestsForRateCheck = n
	}
}

// WithInitialUnavailableDuration sets the cooldown a tripped pair stays
// excluded before a recovery probe is allowed.
//
// Default: 1m
//
// Parameters:
//   - d: The cooldown duration
//
// Returns:
//   - TrackerOption: Configuration option
func WithInitialUnavailableDuration(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.initialUnavailableDuration = d
	}
}

// WithProbeClaimTimeout sets how long an unreported probe claim stays
// held before another request may steal it.
//
// Default: 1m
//
// Parameters:
//   - d: The claim timeout
//
// Returns:
//   - TrackerOption: Configuration option
func WithProbeClaimTimeout(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.probeClaimTimeout = d
	}
}

// WithFailureRateWindow sets the length of the rolling failure-rate
// window.
//
// Default: 1m
//
// Parameters:
//   - d: The window duration
//
// Returns:
//   - TrackerOption: Configuration option
func WithFailureRateWindow(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		t.failureRateWindow = d
	}
}

// WithTrackerLogger sets the logger for the tracker.
//
// Parameters:
//   - l: The logger
//
// Returns:
//   - TrackerOption: Configuration option
func WithTrackerLogger(l types.Logger) TrackerOption {
	return func(t *Tracker) {
		t.logger = l
	}
}

// WithTrackerMetrics sets the metrics collector for the tracker.
//
// Parameters:
//   - m: The metrics collector
//
// Returns:
//   - TrackerOption: Configuration option
func WithTrackerMetrics(m types.MetricsCollector) TrackerOption {
	return func(t *Tracker) {
		t.metrics = m
	}
}

// NewTracker creates a partition health tracker.
//
// Defaults: read threshold 10, write threshold 5, tolerated failure rate
// 90%, minimum sample 100, cooldown 1m, rate window 1m, probe claim
// timeout 1m.
//
// Parameters:
//   - opts: Optional configuration options
//
// Returns:
//   - *Tracker: A new tracker
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{
		readFailureThreshold:        DefaultReadFailureThreshold,
		writeFailureThreshold:       DefaultWriteFailureThreshold,
		failureRateThreshold:        DefaultFailureRateThreshold,
		minimumRequestsForRateCheck: DefaultMinimumRequestsForRateCheck,
		initialUnavailableDuration:  DefaultInitialUnavailableDuration,
		failureRateWindow:           DefaultFailureRateWindow,
		probeClaimTimeout:           DefaultProbeClaimTimeout,
		entries:                     make(map[types.PartitionKeyRange]map[string]*healthInfo),
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.logger == nil {
		t.logger = logging.NewNopLogger()
	}
	if t.metrics == nil {
		t.metrics = metrics.NewNopMetrics()
	}

	return t
}

// entry returns the healthInfo for a pair, creating it lazily.
func (t *Tracker) entry(rng types.PartitionKeyRange, region string) *healthInfo {
	t.mu.RLock()
	if regions, ok := t.entries[rng]; ok {
		if info, ok := regions[region]; ok {
			t.mu.RUnlock()
			return info
		}
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()

	regions, ok := t.entries[rng]
	if !ok {
		regions = make(map[string]*healthInfo)
		t.entries[rng] = regions
	}

	info, ok := regions[region]
	if !ok {
		info = &healthInfo{}
		regions[region] = info
	}

	return info
}

// RecordSuccess records a successful attempt against a region for one or
// more partitions.
//
// Consecutive-failure counters reset to zero. If the attempt was the
// recovery probe for a tripped pair, the pair returns to Healthy;
// otherwise an Unhealthy status is left for the probe mechanism to clear.
//
// Parameters:
//   - region: The region the attempt ran against
//   - op: The operation type of the attempt
//   - ranges: Every partition the attempt spanned
func (t *Tracker) RecordSuccess(region string, op types.OperationType, ranges ...types.PartitionKeyRange) {
	now := time.Now()

	for _, rng := range ranges {
		info := t.entry(rng, region)

		info.mu.Lock()
		info.rollWindow(now, t.failureRateWindow)
		info.windowRequests++
		info.readConsecutive = 0
		info.writeConsecutive = 0

		wasProbe := info.probing
		info.probing = false
		if wasProbe && info.status != StatusHealthy {
			info.status = StatusHealthy
			info.unavailableSince = time.Time{}
			info.windowFailures = 0

			t.metrics.SetCircuitState(region, int(StatusHealthy))
			t.logger.Info("partition circuit closed after successful probe",
				"region", region,
				"collection", rng.Collection,
				"rangeID", rng.RangeID,
				"operation", op.String(),
			)
		}
		info.mu.Unlock()
	}
}

// RecordFailure records a failed attempt against a region for one or more
// partitions.
//
// Cross-partition operations (queries, scans, change feed without a
// partition key) must pass every partition they span so a single failing
// request is attributed to all of them.
//
// Parameters:
//   - region: The region the attempt ran against
//   - op: The operation type of the attempt
//   - ranges: Every partition the attempt spanned
func (t *Tracker) RecordFailure(region string, op types.OperationType, ranges ...types.PartitionKeyRange) {
	now := time.Now()

	for _, rng := range ranges {
		info := t.entry(rng, region)

		info.mu.Lock()
		info.rollWindow(now, t.failureRateWindow)
		info.windowRequests++
		info.windowFailures++
		if op.IsWrite() {
			info.writeConsecutive++
		} else {
			info.readConsecutive++
		}

		// A failed probe trips regardless of counters and restarts the
		// cooldown.
		if info.probing {
			info.probing = false
			t.advance(info, rng, region, now)
			info.mu.Unlock()
			continue
		}

		if t.shouldTrip(info, op) {
			t.advance(info, rng, region, now)
		}
		info.mu.Unlock()
	}
}

// shouldTrip evaluates the consecutive and failure-rate triggers.
// Caller holds info.mu.
func (t *Tracker) shouldTrip(info *healthInfo, op types.OperationType) bool {
	threshold := t.readFailureThreshold
	if op.IsWrite() {
		threshold = t.writeFailureThreshold
	}

	if info.consecutive(op) >= threshold {
		return true
	}

	if info.windowRequests >= t.minimumRequestsForRateCheck {
		rate := info.windowFailures * 100 / info.windowRequests
		if rate > t.failureRateThreshold {
			return true
		}
	}

	return false
}

// advance moves the pair one state forward and restarts its cooldown.
// Caller holds info.mu.
func (t *Tracker) advance(info *healthInfo, rng types.PartitionKeyRange, region string, now time.Time) {
	previous := info.status

	switch info.status {
	case StatusHealthy:
		info.status = StatusUnhealthyTentative
	case StatusUnhealthyTentative:
		info.status = StatusUnhealthy
	case StatusUnhealthy:
		// Stays unhealthy; the cooldown restart below is the effect.
	}

	info.unavailableSince = now
	info.readConsecutive = 0
	info.writeConsecutive = 0

	t.metrics.SetCircuitState(region, int(info.status))
	if previous == StatusHealthy {
		t.metrics.IncCircuitTrip(region)
	}

	t.logger.Warn("partition circuit tripped",
		"region", region,
		"collection", rng.Collection,
		"rangeID", rng.RangeID,
		"status", info.status.String(),
	)
}

// CircuitBrokenRegions returns the regions the given partition should
// avoid: every region whose pair is UnhealthyTentative or Unhealthy.
//
// The exclusion set is operation-independent; op is part of the contract
// for callers that classify their requests but does not change the result.
//
// This is a read-only view with no side effects, suitable for plain
// endpoint resolution. Callers about to perform an attempt use
// ExclusionsForAttempt instead so a cooled-down pair can be probed.
//
// Parameters:
//   - rng: The partition to compute exclusions for
//   - op: The operation type of the request
//
// Returns:
//   - []string: Region names to exclude; nil when the partition is
//     healthy everywhere
func (t *Tracker) CircuitBrokenRegions(rng types.PartitionKeyRange, op types.OperationType) []string {
	excluded, _ := t.scanBrokenRegions(rng, op, false)

	return excluded
}

// ExclusionsForAttempt returns the regions to exclude for an attempt,
// claiming recovery probes along the way.
//
// When a tripped pair's cooldown has elapsed, exactly one caller wins the
// probe claim: that region is returned in probes instead of excluded, and
// the caller's request must be routed there so the probe outcome gets
// recorded. Concurrent callers keep excluding the region until the
// outcome arrives. A caller that cannot route to a claimed region must
// give the claim back with ReleaseProbe; a claim whose outcome never
// arrives expires after the probe claim timeout and may be stolen.
//
// Parameters:
//   - rng: The partition to compute exclusions for
//   - op: The operation type of the request
//
// Returns:
//   - excluded: Region names to exclude
//   - probes: Region names this caller claimed for probing
func (t *Tracker) ExclusionsForAttempt(rng types.PartitionKeyRange, op types.OperationType) (excluded, probes []string) {
	return t.scanBrokenRegions(rng, op, true)
}

// scanBrokenRegions walks the partition's pairs, splitting non-healthy
// regions into excluded and, when claiming, freshly claimed probes.
func (t *Tracker) scanBrokenRegions(rng types.PartitionKeyRange, op types.OperationType, claim bool) (excluded, probes []string) {
	t.mu.RLock()
	regions := t.entries[rng]
	infos := make(map[string]*healthInfo, len(regions))
	for region, info := range regions {
		infos[region] = info
	}
	t.mu.RUnlock()

	now := time.Now()

	for region, info := range infos {
		info.mu.Lock()
		if info.status == StatusHealthy {
			info.mu.Unlock()
			continue
		}

		cooled := now.Sub(info.unavailableSince) >= t.initialUnavailableDuration
		if claim && cooled && t.claimProbeLocked(info, now) {
			info.mu.Unlock()

			probes = append(probes, region)
			t.metrics.IncProbeAllowed(region)
			t.logger.Debug("allowing recovery probe",
				"region", region,
				"collection", rng.Collection,
				"rangeID", rng.RangeID,
				"operation", op.String(),
			)

			continue
		}
		info.mu.Unlock()

		excluded = append(excluded, region)
	}

	return excluded, probes
}

// claimProbeLocked takes the single-prober claim. A live claim blocks
// everyone else; one older than the probe claim timeout is treated as
// abandoned and stolen. Caller holds info.mu.
func (t *Tracker) claimProbeLocked(info *healthInfo, now time.Time) bool {
	if info.probing && now.Sub(info.probeStarted) < t.probeClaimTimeout {
		return false
	}

	info.probing = true
	info.probeStarted = now

	return true
}

// ReleaseProbe gives back an unconsumed probe claim so another request
// can take it.
//
// Called by the retry policy when the claiming request cannot actually be
// routed to the region, or when its attempt ends without a health-relevant
// outcome.
//
// Parameters:
//   - rng: The partition the claim was taken for
//   - region: The claimed region name
func (t *Tracker) ReleaseProbe(rng types.PartitionKeyRange, region string) {
	t.mu.RLock()
	info := t.entries[rng][region]
	t.mu.RUnlock()

	if info == nil {
		return
	}

	info.mu.Lock()
	info.probing = false
	info.mu.Unlock()
}

// Status returns the current health status of a (partition, region) pair.
//
// Pairs never touched by a request report StatusHealthy.
//
// Parameters:
//   - rng: The partition
//   - region: The region name
//
// Returns:
//   - Status: The pair's health status
func (t *Tracker) Status(rng types.PartitionKeyRange, region string) Status {
	t.mu.RLock()
	info := t.entries[rng][region]
	t.mu.RUnlock()

	if info == nil {
		return StatusHealthy
	}

	info.mu.Lock()
	defer info.mu.Unlock()

	return info.status
}

// ConsecutiveFailures returns the consecutive-failure counter of a pair
// for the given operation type.
//
// Parameters:
//   - rng: The partition
//   - region: The region name
//   - op: Read or write
//
// Returns:
//   - int: The current consecutive-failure count
func (t *Tracker) ConsecutiveFailures(rng types.PartitionKeyRange, region string, op types.OperationType) int {
	t.mu.RLock()
	info := t.entries[rng][region]
	t.mu.RUnlock()

	if info == nil {
		return 0
	}

	info.mu.Lock()
	defer info.mu.Unlock()

	return info.consecutive(op)
}
