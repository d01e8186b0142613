package routing

import (
	"time"

	"github.com/arloliu/meridian/internal/logging"
	"github.com/arloliu/meridian/internal/metrics"
	"github.com/arloliu/meridian/topology"
	"github.com/arloliu/meridian/types"
)

// DefaultUnavailableWindow is how long an endpoint unavailability mark
// stays effective before readers treat it as expired.
const DefaultUnavailableWindow = 5 * time.Minute

// LocationCache combines the region directory with client preferences and
// per-endpoint unavailability marks to produce ordered candidate lists and
// to resolve a single endpoint per request.
//
// Preferred locations, client-level exclusions and the multi-write flag are
// fixed at construction; the unavailability map is the only mutable state
// and is safe for concurrent use from every in-flight request.
type LocationCache struct {
	directory       *topology.Directory
	defaultEndpoint string

	preferredLocations        []string
	excludedLocations         map[string]struct{}
	useMultipleWriteLocations bool
	unavailableWindow         time.Duration

	logger  types.Logger
	metrics types.MetricsCollector

	unavailability *unavailabilityMap
}

// Option configures a LocationCache.
type Option func(*LocationCache)

// WithPreferredLocations sets the client's ordered region preference list.
//
// When non-empty, candidate lists are ordered by this preference with any
// remaining topology regions appended after, so every known region stays
// reachable, just deprioritized.
//
// Parameters:
//   - locations: Region names in preference order
//
// Returns:
//   - Option: Configuration option
func WithPreferredLocations(locations []string) Option {
	return func(c *LocationCache) {
		c.preferredLocations = append([]string(nil), locations...)
	}
}

// WithExcludedLocations sets the client-level excluded region names.
//
// These apply to every request resolved with preferred locations enabled;
// the last-resort resolution path ignores them.
//
// Parameters:
//   - locations: Region names to exclude
//
// Returns:
//   - Option: Configuration option
func WithExcludedLocations(locations []string) Option {
	return func(c *LocationCache) {
		c.excludedLocations = make(map[string]struct{}, len(locations))
		for _, name := range locations {
			c.excludedLocations[name] = struct{}{}
		}
	}
}

// WithMultipleWriteLocations enables routing writes to every writable
// region the account exposes.
//
// When disabled (the default), writes only target the first writable region
// regardless of topology size. The effective behavior also requires the
// account topology to report multi-write capability.
//
// Parameters:
//   - enabled: true to route writes to all writable regions
//
// Returns:
//   - Option: Configuration option
func WithMultipleWriteLocations(enabled bool) Option {
	return func(c *LocationCache) {
		c.useMultipleWriteLocations = enabled
	}
}

// WithUnavailableWindow sets how long unavailability marks stay effective.
//
// Default: 5m
//
// Parameters:
//   - d: The unavailability window
//
// Returns:
//   - Option: Configuration option
func WithUnavailableWindow(d time.Duration) Option {
	return func(c *LocationCache) {
		c.unavailableWindow = d
	}
}

// WithCacheLogger sets the logger for the location cache.
//
// Parameters:
//   - l: The logger
//
// Returns:
//   - Option: Configuration option
func WithCacheLogger(l types.Logger) Option {
	return func(c *LocationCache) {
		c.logger = l
	}
}

// WithCacheMetrics sets the metrics collector for the location cache.
//
// Parameters:
//   - m: The metrics collector
//
// Returns:
//   - Option: Configuration option
func WithCacheMetrics(m types.MetricsCollector) Option {
	return func(c *LocationCache) {
		c.metrics = m
	}
}

// NewLocationCache creates a location cache over the given region directory.
//
// Parameters:
//   - directory: The region directory holding the last-known topology
//   - defaultEndpoint: The account's global endpoint, used as the absolute
//     last resort when no regional candidate survives filtering
//   - opts: Optional configuration options
//
// Returns:
//   - *LocationCache: A new location cache
//   - error: types.ErrNilDirectory or types.ErrNoDefaultEndpoint on
//     invalid arguments
func NewLocationCache(directory *topology.Directory, defaultEndpoint string, opts ...Option) (*LocationCache, error) {
	if directory == nil {
		return nil, types.ErrNilDirectory
	}
	if defaultEndpoint == "" {
		return nil, types.ErrNoDefaultEndpoint
	}

	c := &LocationCache{
		directory:         directory,
		defaultEndpoint:   defaultEndpoint,
		unavailableWindow: DefaultUnavailableWindow,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = logging.NewNopLogger()
	}
	if c.metrics == nil {
		c.metrics = metrics.NewNopMetrics()
	}

	c.unavailability = newUnavailabilityMap(c.unavailableWindow)

	return c, nil
}

// DefaultEndpoint returns the account's global endpoint.
func (c *LocationCache) DefaultEndpoint() string {
	return c.defaultEndpoint
}

// PreferredLocations returns the client's ordered region preference list.
func (c *LocationCache) PreferredLocations() []string {
	return c.preferredLocations
}

// MarkEndpointUnavailableForRead marks an endpoint unavailable for reads.
//
// The mark is unioned into any existing record for that endpoint and its
// timestamp restarted. refreshCache records the caller's intent to force a
// topology refresh out-of-band; the cache itself never fetches topology.
//
// Parameters:
//   - endpoint: The endpoint URL that failed
//   - refreshCache: true to signal refresh intent to the collaborator
func (c *LocationCache) MarkEndpointUnavailableForRead(endpoint string, refreshCache bool) {
	c.markEndpointUnavailable(endpoint, types.OperationRead, refreshCache)
}

// MarkEndpointUnavailableForWrite marks an endpoint unavailable for writes.
//
// Parameters:
//   - endpoint: The endpoint URL that failed
//   - refreshCache: true to signal refresh intent to the collaborator
func (c *LocationCache) MarkEndpointUnavailableForWrite(endpoint string, refreshCache bool) {
	c.markEndpointUnavailable(endpoint, types.OperationWrite, refreshCache)
}

// markEndpointUnavailable records the mark and bookkeeping side effects.
func (c *LocationCache) markEndpointUnavailable(endpoint string, op types.OperationType, refreshCache bool) {
	count := c.unavailability.mark(endpoint, op)

	if refreshCache {
		c.unavailability.signalRefreshNeeded()
	}

	c.metrics.IncEndpointMarkedUnavailable(op)
	c.metrics.SetUnavailableEndpointCount(count)
	c.logger.Warn("endpoint marked unavailable",
		"endpoint", endpoint,
		"operation", op.String(),
		"refreshIntended", refreshCache,
	)
}

// IsEndpointUnavailable reports whether the endpoint is currently marked
// unavailable for the given operation type.
//
// Expiry is lazy: a record older than the unavailability window is treated
// as absent, the endpoint has probably recovered.
//
// Parameters:
//   - endpoint: The endpoint URL to check
//   - op: The operation type the check is scoped to
//
// Returns:
//   - bool: true if a live mark covers the operation type
func (c *LocationCache) IsEndpointUnavailable(endpoint string, op types.OperationType) bool {
	return c.unavailability.isUnavailable(endpoint, op, time.Now())
}

// ConsumeRefreshNeeded returns and clears the pending refresh intent flag.
//
// External topology refreshers poll this after failures to decide whether
// an out-of-band account read is wanted.
//
// Returns:
//   - bool: true if a mark since the last call requested a refresh
func (c *LocationCache) ConsumeRefreshNeeded() bool {
	return c.unavailability.consumeRefreshNeeded()
}

// EndpointsToHealthCheck returns the endpoints a background prober should
// re-check: every endpoint currently marked unavailable (expired or not)
// plus the endpoints of the client's preferred regions.
//
// Returns:
//   - []string: Deduplicated endpoint URLs
func (c *LocationCache) EndpointsToHealthCheck() []string {
	endpoints := c.unavailability.endpoints()

	seen := make(map[string]struct{}, len(endpoints))
	for _, endpoint := range endpoints {
		seen[endpoint] = struct{}{}
	}

	snap := c.directory.Snapshot()
	for _, name := range c.preferredLocations {
		region, ok := snap.RegionByName(name)
		if !ok {
			continue
		}
		if _, dup := seen[region.Endpoint]; dup {
			continue
		}
		seen[region.Endpoint] = struct{}{}
		endpoints = append(endpoints, region.Endpoint)
	}

	return endpoints
}

// ReadRoutingContexts builds the ordered candidate list for reads.
//
// Ordering: preferred locations first (in preference order, intersected
// with the readable topology), then any remaining readable regions in
// topology order. With no preferred locations, topology order is used
// verbatim.
//
// Returns:
//   - []types.RoutingContext: One context per readable region
func (c *LocationCache) ReadRoutingContexts() []types.RoutingContext {
	return c.orderRegions(c.directory.ReadableRegions())
}

// WriteRoutingContexts builds the ordered candidate list for writes.
//
// When multi-write is disabled (by client option or account capability),
// only the first writable region is returned regardless of topology size.
//
// Returns:
//   - []types.RoutingContext: Ordered writable region contexts
func (c *LocationCache) WriteRoutingContexts() []types.RoutingContext {
	snap := c.directory.Snapshot()

	regions := snap.WritableRegions
	if !(c.useMultipleWriteLocations && snap.MultiWriteEnabled) && len(regions) > 1 {
		regions = regions[:1]
	}

	return c.orderRegions(regions)
}

// orderRegions applies the preference ordering rule to a topology list.
func (c *LocationCache) orderRegions(regions []types.Region) []types.RoutingContext {
	contexts := make([]types.RoutingContext, 0, len(regions))

	if len(c.preferredLocations) == 0 {
		for _, region := range regions {
			contexts = append(contexts, newRoutingContext(region))
		}

		return contexts
	}

	byName := make(map[string]types.Region, len(regions))
	for _, region := range regions {
		byName[region.Name] = region
	}

	used := make(map[string]struct{}, len(regions))
	for _, name := range c.preferredLocations {
		region, ok := byName[name]
		if !ok {
			continue
		}
		contexts = append(contexts, newRoutingContext(region))
		used[name] = struct{}{}
	}

	// Remaining topology regions stay reachable, just deprioritized.
	for _, region := range regions {
		if _, ok := used[region.Name]; ok {
			continue
		}
		contexts = append(contexts, newRoutingContext(region))
	}

	return contexts
}

// newRoutingContext builds a context, splitting out the alternate endpoint
// when the region exposes one.
func newRoutingContext(region types.Region) types.RoutingContext {
	ctx := types.RoutingContext{Primary: region}

	if region.AlternateEndpoint != "" {
		alternate := types.Region{
			Name:     region.Name,
			Endpoint: region.AlternateEndpoint,
		}
		ctx.Alternate = &alternate
	}

	return ctx
}

// ResolveEndpoint picks the endpoint a request should be sent to.
//
// Resolution is side-effect free on the request: the sticky route pin is
// honored when present but never written back, that is the retry policy's
// job.
//
// The decision:
//  1. Pick the write or read candidate list per the operation type.
//  2. With preferred locations disabled (the last-resort path), apply only
//     the per-request hard exclusions and return the first survivor;
//     circuit-breaker exclusions and unavailability marks are deliberately
//     ignored so a previously unhealthy region can be retried.
//  3. Otherwise remove hard-excluded regions (client-level plus
//     per-request), then prefer candidates that are neither marked
//     unavailable nor circuit-broken; a deprioritized candidate still
//     beats giving up.
//  4. With nothing left, writes fall back to the default endpoint and
//     reads to the primary write region.
//
// Parameters:
//   - req: The request to resolve
//
// Returns:
//   - string: The endpoint URL; always non-empty
func (c *LocationCache) ResolveEndpoint(req *types.Request) string {
	if endpoint := req.RouteToEndpoint(); endpoint != "" {
		return endpoint
	}

	contexts := c.routingContextsFor(req.Operation)

	requestExcluded := toSet(req.ExcludedLocations())

	if !req.UsePreferredLocations {
		for _, ctx := range contexts {
			if _, excluded := requestExcluded[ctx.Primary.Name]; excluded {
				continue
			}

			return ctx.PrimaryEndpoint()
		}

		return c.defaultEndpoint
	}

	hardExcluded := requestExcluded
	for name := range c.excludedLocations {
		hardExcluded[name] = struct{}{}
	}

	available, deprioritized := c.partitionCandidates(contexts, hardExcluded, toSet(req.CircuitBreakerExcludedLocations()), req.Operation)

	if len(available) > 0 {
		return available[0].PrimaryEndpoint()
	}
	if len(deprioritized) > 0 {
		return deprioritized[0].PrimaryEndpoint()
	}

	return c.fallbackEndpoint(req.Operation)
}

// CandidateEndpoints returns the full ordered endpoint list resolution
// would walk for this request: healthy candidates first, deprioritized
// (marked or circuit-broken) candidates after, hard-excluded regions
// removed.
//
// The retry policy precomputes this list so successive attempts and plain
// resolution stay consistent.
//
// Parameters:
//   - req: The request to compute candidates for
//
// Returns:
//   - []string: Ordered candidate endpoint URLs; may be empty
func (c *LocationCache) CandidateEndpoints(req *types.Request) []string {
	contexts := c.routingContextsFor(req.Operation)

	requestExcluded := toSet(req.ExcludedLocations())

	if !req.UsePreferredLocations {
		endpoints := make([]string, 0, len(contexts))
		for _, ctx := range contexts {
			if _, excluded := requestExcluded[ctx.Primary.Name]; excluded {
				continue
			}
			endpoints = append(endpoints, ctx.PrimaryEndpoint())
		}

		return endpoints
	}

	hardExcluded := requestExcluded
	for name := range c.excludedLocations {
		hardExcluded[name] = struct{}{}
	}

	available, deprioritized := c.partitionCandidates(contexts, hardExcluded, toSet(req.CircuitBreakerExcludedLocations()), req.Operation)

	endpoints := make([]string, 0, len(available)+len(deprioritized))
	for _, ctx := range available {
		endpoints = append(endpoints, ctx.PrimaryEndpoint())
	}
	for _, ctx := range deprioritized {
		endpoints = append(endpoints, ctx.PrimaryEndpoint())
	}

	return endpoints
}

// RegionForEndpoint maps an endpoint back to its region in the current
// topology.
//
// Parameters:
//   - endpoint: The endpoint URL
//
// Returns:
//   - types.Region: The owning region
//   - bool: true if the endpoint belongs to a known region
func (c *LocationCache) RegionForEndpoint(endpoint string) (types.Region, bool) {
	return c.directory.RegionByEndpoint(endpoint)
}

// routingContextsFor picks the candidate list for the operation type.
func (c *LocationCache) routingContextsFor(op types.OperationType) []types.RoutingContext {
	if op.IsWrite() {
		return c.WriteRoutingContexts()
	}

	return c.ReadRoutingContexts()
}

// partitionCandidates removes hard-excluded regions and splits the rest
// into available and deprioritized groups.
func (c *LocationCache) partitionCandidates(
	contexts []types.RoutingContext,
	hardExcluded map[string]struct{},
	softExcluded map[string]struct{},
	op types.OperationType,
) (available, deprioritized []types.RoutingContext) {
	now := time.Now()

	for _, ctx := range contexts {
		name := ctx.Primary.Name
		if _, excluded := hardExcluded[name]; excluded {
			continue
		}

		_, circuitBroken := softExcluded[name]
		if circuitBroken || c.unavailability.isUnavailable(ctx.PrimaryEndpoint(), op, now) {
			deprioritized = append(deprioritized, ctx)
			continue
		}

		available = append(available, ctx)
	}

	return available, deprioritized
}

// fallbackEndpoint is the resolution of last resort once hard exclusion
// empties the candidate list.
//
// Reads fall back to the primary write region on the assumption that reads
// follow writes; writes fall back to the global default endpoint.
func (c *LocationCache) fallbackEndpoint(op types.OperationType) string {
	if !op.IsWrite() {
		if regions := c.directory.WritableRegions(); len(regions) > 0 {
			return regions[0].Endpoint
		}
	}

	return c.defaultEndpoint
}

// toSet copies a name list into a set.
func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}

	return set
}
