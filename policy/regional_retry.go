// Package policy provides the regional retry policy that drives one
// logical request across candidate endpoints.
package policy

import (
	"context"

	"github.com/arloliu/meridian/health"
	"github.com/arloliu/meridian/internal/logging"
	"github.com/arloliu/meridian/internal/metrics"
	"github.com/arloliu/meridian/routing"
	"github.com/arloliu/meridian/types"
)

// RegionalRetry orchestrates one logical request across multiple regional
// attempts.
//
// On construction it binds to a request, merges the partition health
// tracker's circuit-broken regions into the request, and precomputes the
// ordered candidate endpoint list from the location cache. When the
// tracker grants a recovery-probe claim, the request is steered to the
// claimed region so the probe actually lands there. After each failed
// attempt the caller invokes ShouldRetry, which records the failure
// (endpoint unavailability mark plus partition health outcome) and either
// pins the request to the next candidate or reports exhaustion.
//
// A RegionalRetry instance belongs to a single logical request and is not
// safe for concurrent use.
type RegionalRetry struct {
	cache   *routing.LocationCache
	tracker *health.Tracker
	req     *types.Request
	ranges  []types.PartitionKeyRange

	candidates []string
	current    string
	attempt    int
	exhausted  bool

	// probeClaims maps a claimed probe region to the partitions the claim
	// was taken for. Claims are consumed by the first recorded outcome and
	// released explicitly on every path that records none.
	probeClaims map[string][]types.PartitionKeyRange

	logger  types.Logger
	metrics types.MetricsCollector
}

// RetryOption configures a RegionalRetry.
type RetryOption func(*RegionalRetry)

// WithPartitionKeyRanges sets the partitions a cross-partition request
// spans.
//
// Failures are attributed to every listed partition, so one failing
// cross-partition request can trip several (partition, region) pairs in a
// single update. Defaults to the request's own partition key range.
//
// Parameters:
//   - ranges: Every partition the request touches
//
// Returns:
//   - RetryOption: Configuration option
func WithPartitionKeyRanges(ranges ...types.PartitionKeyRange) RetryOption {
	return func(r *RegionalRetry) {
		r.ranges = ranges
	}
}

// WithRetryLogger sets the logger for the retry policy.
//
// Parameters:
//   - l: The logger
//
// Returns:
//   - RetryOption: Configuration option
func WithRetryLogger(l types.Logger) RetryOption {
	return func(r *RegionalRetry) {
		r.logger = l
	}
}

// WithRetryMetrics sets the metrics collector for the retry policy.
//
// Parameters:
//   - m: The metrics collector
//
// Returns:
//   - RetryOption: Configuration option
func WithRetryMetrics(m types.MetricsCollector) RetryOption {
	return func(r *RegionalRetry) {
		r.metrics = m
	}
}

// NewRegionalRetry creates a retry policy bound to one request.
//
// Parameters:
//   - cache: The location cache resolving candidates
//   - tracker: The partition health tracker; may be nil to disable
//     partition circuit breaking
//   - req: The request to orchestrate
//   - opts: Optional configuration options
//
// Returns:
//   - *RegionalRetry: A policy positioned on the request's first candidate
func NewRegionalRetry(cache *routing.LocationCache, tracker *health.Tracker, req *types.Request, opts ...RetryOption) *RegionalRetry {
	r := &RegionalRetry{
		cache:   cache,
		tracker: tracker,
		req:     req,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = logging.NewNopLogger()
	}
	if r.metrics == nil {
		r.metrics = metrics.NewNopMetrics()
	}
	if r.ranges == nil && req.PartitionKeyRange != nil {
		r.ranges = []types.PartitionKeyRange{*req.PartitionKeyRange}
	}

	r.applyCircuitBreakerExclusions()

	r.candidates = cache.CandidateEndpoints(req)
	r.steerToProbe()
	r.current = cache.ResolveEndpoint(req)

	return r
}

// applyCircuitBreakerExclusions merges the tracker's circuit-broken
// regions for every spanned partition into the request, claiming recovery
// probes for pairs whose cooldown has elapsed.
func (r *RegionalRetry) applyCircuitBreakerExclusions() {
	if r.tracker == nil || len(r.ranges) == 0 {
		return
	}

	seen := make(map[string]struct{})
	var excluded []string
	for _, rng := range r.ranges {
		brokenRegions, probes := r.tracker.ExclusionsForAttempt(rng, r.req.Operation)
		for _, region := range brokenRegions {
			if _, dup := seen[region]; dup {
				continue
			}
			seen[region] = struct{}{}
			excluded = append(excluded, region)
		}
		for _, region := range probes {
			if r.probeClaims == nil {
				r.probeClaims = make(map[string][]types.PartitionKeyRange)
			}
			r.probeClaims[region] = append(r.probeClaims[region], rng)
		}
	}

	// A region claimed for one partition may still be cooling down for
	// another partition the request spans; the claim cannot be honored then.
	for region, ranges := range r.probeClaims {
		if _, conflict := seen[region]; !conflict {
			continue
		}
		r.releaseClaims(region, ranges)
		delete(r.probeClaims, region)
	}

	r.req.SetCircuitBreakerExcludedLocations(excluded)
}

// steerToProbe pins the request to a region it claimed for recovery
// probing, so the probe reaches that region even while a region-level
// unavailability mark deprioritizes its endpoint. Claims the request
// cannot route to are released immediately for another request to take.
func (r *RegionalRetry) steerToProbe() {
	if len(r.probeClaims) == 0 {
		return
	}

	target := ""
	for region, ranges := range r.probeClaims {
		if target == "" {
			if idx := r.candidateIndexForRegion(region); idx >= 0 {
				target = region
				endpoint := r.candidates[idx]
				copy(r.candidates[1:idx+1], r.candidates[:idx])
				r.candidates[0] = endpoint
				r.req.SetRouteToEndpoint(endpoint)

				continue
			}
		}
		r.releaseClaims(region, ranges)
		delete(r.probeClaims, region)
	}
}

// candidateIndexForRegion finds the candidate endpoint owned by a region.
func (r *RegionalRetry) candidateIndexForRegion(region string) int {
	for i, endpoint := range r.candidates {
		if r.regionName(endpoint) == region {
			return i
		}
	}

	return -1
}

// releaseClaims returns a region's probe claims to the tracker.
func (r *RegionalRetry) releaseClaims(region string, ranges []types.PartitionKeyRange) {
	for _, rng := range ranges {
		r.tracker.ReleaseProbe(rng, region)
	}
}

// releaseUnusedClaims gives back every probe claim still held.
func (r *RegionalRetry) releaseUnusedClaims() {
	for region, ranges := range r.probeClaims {
		r.releaseClaims(region, ranges)
	}
	r.probeClaims = nil
}

// Abandon releases any unconsumed recovery-probe claim without recording
// an outcome.
//
// Callers that give up before an attempt completes call this so another
// request can probe instead of waiting out the claim timeout.
func (r *RegionalRetry) Abandon() {
	r.releaseUnusedClaims()
}

// CurrentEndpoint returns the endpoint the current attempt targets.
func (r *RegionalRetry) CurrentEndpoint() string {
	return r.current
}

// Attempts returns the number of attempts consumed so far, counting the
// initial attempt.
func (r *RegionalRetry) Attempts() int {
	// After exhaustion no further attempt is positioned, so the count stops
	// at the attempts actually consumed.
	if r.exhausted {
		return r.attempt
	}

	return r.attempt + 1
}

// Exhausted reports whether every candidate has been tried.
func (r *RegionalRetry) Exhausted() bool {
	return r.exhausted
}

// ShouldRetry decides whether a failed attempt should be retried against
// another region.
//
// Retriable failures are recorded first: the just-tried endpoint is marked
// unavailable at the location cache (scoped to the failed operation type)
// and the outcome is reported to the partition health tracker for every
// spanned partition. The request is then pinned to the next untried
// candidate.
//
// Non-retriable failures return false immediately without recording, so
// they propagate without consuming a regional attempt. A retriable failure
// is recorded even when the parent context has been cancelled, a finished
// attempt's outcome still counts for health purposes, but no new region
// is tried after cancellation.
//
// Parameters:
//   - ctx: The parent operation's context
//   - err: The attempt error
//
// Returns:
//   - bool: true if the request was pinned to the next candidate and
//     should be re-sent; false when the caller must give up or fall back
func (r *RegionalRetry) ShouldRetry(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	kind := types.Classify(err)
	if !kind.Retriable() {
		// A validation or authorization failure proves nothing about the
		// region's health, so an unconsumed probe claim goes back.
		r.releaseUnusedClaims()

		return false
	}

	r.recordFailure()

	if ctx.Err() != nil {
		// Caller gave up; no new region may be tried.
		return false
	}

	r.attempt++
	if r.attempt >= len(r.candidates) {
		r.exhausted = true
		r.logger.Warn("regional candidates exhausted",
			"requestID", r.req.ID.String(),
			"operation", r.req.Operation.String(),
			"attempts", r.attempt,
		)

		return false
	}

	next := r.candidates[r.attempt]
	r.metrics.IncRegionalFailover(r.regionName(r.current), r.regionName(next))
	r.logger.Warn("attempt failed, failing over to next region",
		"requestID", r.req.ID.String(),
		"failureKind", kind.String(),
		"fromEndpoint", r.current,
		"toEndpoint", next,
	)

	r.req.SetRouteToEndpoint(next)
	r.current = next

	return true
}

// RecordSuccess reports the current attempt's success to the partition
// health tracker.
//
// Called by the router (or the transport layer) after a successful
// attempt; recording is valid even if the caller has already gone away, a
// late probe result must not be wasted.
func (r *RegionalRetry) RecordSuccess() {
	if r.tracker == nil || len(r.ranges) == 0 {
		return
	}

	r.tracker.RecordSuccess(r.regionName(r.current), r.req.Operation, r.ranges...)
	r.probeClaims = nil
}

// recordFailure feeds the failed attempt into the cache and tracker.
//
// Bookkeeping is best-effort by construction: neither call can fail, so
// the original request error is never masked.
func (r *RegionalRetry) recordFailure() {
	if r.req.Operation.IsWrite() {
		r.cache.MarkEndpointUnavailableForWrite(r.current, true)
	} else {
		r.cache.MarkEndpointUnavailableForRead(r.current, true)
	}

	if r.tracker != nil && len(r.ranges) > 0 {
		r.tracker.RecordFailure(r.regionName(r.current), r.req.Operation, r.ranges...)
		// The recorded outcome consumed any probe claim on this region.
		r.probeClaims = nil
	}
}

// regionName maps an endpoint to its region name, falling back to the
// endpoint itself for endpoints outside the known topology.
func (r *RegionalRetry) regionName(endpoint string) string {
	if region, ok := r.cache.RegionForEndpoint(endpoint); ok {
		return region.Name
	}

	return endpoint
}
