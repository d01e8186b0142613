package meridian

import (
	"context"
	"time"

	"github.com/arloliu/meridian/health"
	"github.com/arloliu/meridian/policy"
	"github.com/arloliu/meridian/routing"
	"github.com/arloliu/meridian/topology"
	"github.com/arloliu/meridian/types"
)

// Router is the client-facing facade over the routing core.
//
// It composes the region directory, the location cache and the partition
// health tracker, and exposes the contract the rest of a database client
// consumes: endpoint resolution, outcome feedback, retry policies and the
// background health-check endpoint list.
//
// Router is safe for concurrent use from multiple goroutines; each logical
// request must use its own Request and retry policy instance.
type Router struct {
	config    *RouterConfig
	directory *topology.Directory
	cache     *routing.LocationCache
	tracker   *health.Tracker
}

// NewRouter creates a router over the given region directory.
//
// Parameters:
//   - directory: The region directory holding the last-known topology
//   - defaultEndpoint: The account's global endpoint
//   - opts: Optional configuration options
//
// Returns:
//   - *Router: A new router
//   - error: types.ErrNilDirectory or types.ErrNoDefaultEndpoint on
//     invalid arguments
func NewRouter(directory *topology.Directory, defaultEndpoint string, opts ...Option) (*Router, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	cache, err := routing.NewLocationCache(directory, defaultEndpoint,
		routing.WithPreferredLocations(config.PreferredLocations),
		routing.WithExcludedLocations(config.ExcludedLocations),
		routing.WithMultipleWriteLocations(config.UseMultipleWriteLocations),
		routing.WithUnavailableWindow(config.UnavailableWindow),
		routing.WithCacheLogger(config.Logger),
		routing.WithCacheMetrics(config.Metrics),
	)
	if err != nil {
		return nil, err
	}

	r := &Router{
		config:    config,
		directory: directory,
		cache:     cache,
	}

	if config.PartitionCircuitBreaker {
		trackerOpts := append([]health.TrackerOption{
			health.WithTrackerLogger(config.Logger),
			health.WithTrackerMetrics(config.Metrics),
		}, config.TrackerOptions...)
		r.tracker = health.NewTracker(trackerOpts...)
	}

	return r, nil
}

// Cache returns the underlying location cache.
func (r *Router) Cache() *routing.LocationCache {
	return r.cache
}

// Tracker returns the partition health tracker, or nil when partition
// circuit breaking is disabled.
func (r *Router) Tracker() *health.Tracker {
	return r.tracker
}

// ResolveEndpoint picks the endpoint a request should be sent to.
//
// Circuit-broken regions for the request's partition are merged into the
// request before resolution; the decision itself is delegated to the
// location cache.
//
// Parameters:
//   - req: The request to resolve
//
// Returns:
//   - string: The endpoint URL; always non-empty
func (r *Router) ResolveEndpoint(req *types.Request) string {
	if r.tracker != nil && req.PartitionKeyRange != nil && req.UsePreferredLocations {
		req.SetCircuitBreakerExcludedLocations(
			r.tracker.CircuitBrokenRegions(*req.PartitionKeyRange, req.Operation),
		)
	}

	return r.cache.ResolveEndpoint(req)
}

// NewRetryPolicy creates a regional retry policy bound to the request.
//
// Parameters:
//   - req: The request to orchestrate
//   - opts: Optional retry options (e.g. spanned partition key ranges)
//
// Returns:
//   - *policy.RegionalRetry: The retry policy
func (r *Router) NewRetryPolicy(req *types.Request, opts ...policy.RetryOption) *policy.RegionalRetry {
	retryOpts := append([]policy.RetryOption{
		policy.WithRetryLogger(r.config.Logger),
		policy.WithRetryMetrics(r.config.Metrics),
	}, opts...)

	return policy.NewRegionalRetry(r.cache, r.tracker, req, retryOpts...)
}

// RecordOutcome feeds an attempt result back into the routing core.
//
// Transports that drive their own retry loops call this after every
// attempt. Successes reset partition failure counters (and close a circuit
// when the attempt was its recovery probe); retriable failures mark the
// endpoint unavailable and advance partition health state. Non-retriable
// failures are not recorded: a validation or authorization error says
// nothing about regional health.
//
// Parameters:
//   - req: The request that was attempted
//   - endpoint: The endpoint the attempt targeted
//   - outcome: The attempt result
//   - ranges: Every partition the attempt spanned; defaults to the
//     request's own partition key range when empty
func (r *Router) RecordOutcome(req *types.Request, endpoint string, outcome types.Outcome, ranges ...types.PartitionKeyRange) {
	if len(ranges) == 0 && req.PartitionKeyRange != nil {
		ranges = []types.PartitionKeyRange{*req.PartitionKeyRange}
	}

	region := r.regionName(endpoint)

	if outcome.IsSuccess() {
		if r.tracker != nil && len(ranges) > 0 {
			r.tracker.RecordSuccess(region, req.Operation, ranges...)
		}

		return
	}

	if !outcome.Retriable() {
		return
	}

	if req.Operation.IsWrite() {
		r.cache.MarkEndpointUnavailableForWrite(endpoint, true)
	} else {
		r.cache.MarkEndpointUnavailableForRead(endpoint, true)
	}
	if r.tracker != nil && len(ranges) > 0 {
		r.tracker.RecordFailure(region, req.Operation, ranges...)
	}

	r.forwardRefreshIntent()
}

// EndpointsToHealthCheck returns the endpoints a background prober should
// re-check.
//
// Returns:
//   - []string: Deduplicated endpoint URLs
func (r *Router) EndpointsToHealthCheck() []string {
	return r.cache.EndpointsToHealthCheck()
}

// Do executes one logical request across regional candidates until it
// succeeds, exhausts every candidate, fails fatally or is cancelled.
//
// attempt receives the endpoint to contact and performs the actual
// transport call; it should return nil on success, a *types.TransportError
// (or context error) on failure. Non-retriable failures propagate
// immediately. After regional exhaustion, write requests make one final
// last-resort attempt with preference filtering disabled before the error
// is surfaced.
//
// Parameters:
//   - ctx: Context for cancellation; no new region is tried after
//     cancellation
//   - req: The request to execute
//   - attempt: The transport call
//   - opts: Optional retry options
//
// Returns:
//   - error: nil on success, the last attempt error otherwise
func (r *Router) Do(ctx context.Context, req *types.Request, attempt func(ctx context.Context, endpoint string) error, opts ...policy.RetryOption) error {
	retry := r.NewRetryPolicy(req, opts...)

	var err error
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			retry.Abandon()

			return ctxErr
		}

		endpoint := r.cache.ResolveEndpoint(req)
		err = r.runAttempt(ctx, endpoint, attempt)
		if err == nil {
			retry.RecordSuccess()

			return nil
		}

		if retry.ShouldRetry(ctx, err) {
			r.forwardRefreshIntent()
			continue
		}
		r.forwardRefreshIntent()

		break
	}

	if !types.Classify(err).Retriable() || ctx.Err() != nil {
		return err
	}

	if !req.Operation.IsWrite() {
		return err
	}

	// Last resort for writes: drop the route pin and preference
	// filtering, then deliberately re-target a possibly unhealthy region
	// one final time before surfacing the error.
	req.ClearRouteToEndpoint()
	req.UsePreferredLocations = false
	endpoint := r.cache.ResolveEndpoint(req)

	r.config.Metrics.IncLastResortFallback()
	r.config.Logger.Warn("regional candidates exhausted, attempting last-resort endpoint",
		"requestID", req.ID.String(),
		"endpoint", endpoint,
	)

	lastErr := r.runAttempt(ctx, endpoint, attempt)
	if lastErr == nil {
		r.RecordOutcome(req, endpoint, types.Success())

		return nil
	}

	return lastErr
}

// runAttempt executes one transport attempt with request metrics.
func (r *Router) runAttempt(ctx context.Context, endpoint string, attempt func(ctx context.Context, endpoint string) error) error {
	region := r.regionName(endpoint)

	start := time.Now()
	err := attempt(ctx, endpoint)
	elapsed := time.Since(start).Seconds()

	r.config.Metrics.IncRequestTotal(region)
	r.config.Metrics.ObserveRequestDuration(region, elapsed)
	if err != nil {
		r.config.Metrics.IncRequestError(region)
	}

	return err
}

// forwardRefreshIntent forwards pending refresh intent to the attached
// topology refresher.
func (r *Router) forwardRefreshIntent() {
	if r.config.Refresher == nil {
		return
	}

	if r.cache.ConsumeRefreshNeeded() {
		r.config.Refresher.ForceRefresh()
	}
}

// regionName maps an endpoint to its region name, falling back to the
// endpoint itself for endpoints outside the known topology.
func (r *Router) regionName(endpoint string) string {
	if region, ok := r.directory.RegionByEndpoint(endpoint); ok {
		return region.Name
	}

	return endpoint
}
