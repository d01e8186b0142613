package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/meridian/health"
	"github.com/arloliu/meridian/routing"
	"github.com/arloliu/meridian/test/testutil"
	"github.com/arloliu/meridian/topology"
	"github.com/arloliu/meridian/types"
)

var ordersRange = types.PartitionKeyRange{Collection: "orders", RangeID: "0"}

// newTestCache builds a location cache over the canonical three-region
// topology.
func newTestCache(t *testing.T, opts ...routing.Option) *routing.LocationCache {
	t.Helper()

	directory := topology.NewDirectoryWithSnapshot(testutil.ThreeRegionSnapshot())
	cache, err := routing.NewLocationCache(directory, testutil.DefaultEndpoint, opts...)
	require.NoError(t, err)

	return cache
}

func TestNewRegionalRetry_InitialCandidate(t *testing.T) {
	cache := newTestCache(t)

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	retry := NewRegionalRetry(cache, nil, req)

	assert.Equal(t, testutil.EastUS.Endpoint, retry.CurrentEndpoint())
	assert.Equal(t, 1, retry.Attempts())
	assert.False(t, retry.Exhausted())
}

func TestShouldRetry_NilError(t *testing.T) {
	cache := newTestCache(t)

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	retry := NewRegionalRetry(cache, nil, req)

	assert.False(t, retry.ShouldRetry(t.Context(), nil))
}

func TestShouldRetry_NonRetriableNotRecorded(t *testing.T) {
	cache := newTestCache(t)
	tracker := health.NewTracker()

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	req.PartitionKeyRange = &ordersRange
	retry := NewRegionalRetry(cache, tracker, req)

	ok := retry.ShouldRetry(t.Context(), types.NewTransportError(401, errors.New("bad key")))
	assert.False(t, ok)

	// Fatal failures leave no routing state behind.
	assert.False(t, cache.IsEndpointUnavailable(testutil.EastUS.Endpoint, types.OperationRead))
	assert.Equal(t, 0, tracker.ConsecutiveFailures(ordersRange, "East US", types.OperationRead))
}

func TestShouldRetry_FailsOverAndPinsRequest(t *testing.T) {
	cache := newTestCache(t)
	tracker := health.NewTracker()

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	req.PartitionKeyRange = &ordersRange
	retry := NewRegionalRetry(cache, tracker, req)
	require.Equal(t, testutil.EastUS.Endpoint, retry.CurrentEndpoint())

	ok := retry.ShouldRetry(t.Context(), types.NewTransportError(503, nil))
	require.True(t, ok)

	assert.Equal(t, testutil.WestUS.Endpoint, retry.CurrentEndpoint())
	assert.Equal(t, 2, retry.Attempts())

	// The request is pinned, so plain resolution follows the failover.
	assert.Equal(t, testutil.WestUS.Endpoint, cache.ResolveEndpoint(req))

	// The failure was recorded against the first endpoint.
	assert.True(t, cache.IsEndpointUnavailable(testutil.EastUS.Endpoint, types.OperationRead))
	assert.Equal(t, 1, tracker.ConsecutiveFailures(ordersRange, "East US", types.OperationRead))
}

func TestShouldRetry_MarkScopedToOperation(t *testing.T) {
	cache := newTestCache(t)

	req := types.NewRequest(types.OperationWrite, types.ResourceDocument)
	retry := NewRegionalRetry(cache, nil, req)

	retry.ShouldRetry(t.Context(), types.NewTransportError(503, nil))

	assert.True(t, cache.IsEndpointUnavailable(testutil.EastUS.Endpoint, types.OperationWrite))
	assert.False(t, cache.IsEndpointUnavailable(testutil.EastUS.Endpoint, types.OperationRead))
}

func TestShouldRetry_ReadExhaustion(t *testing.T) {
	cache := newTestCache(t)

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	retry := NewRegionalRetry(cache, nil, req)

	err := types.NewTransportError(500, nil)

	// Three readable regions: two failovers succeed, the third attempt
	// exhausts the list.
	require.True(t, retry.ShouldRetry(t.Context(), err))
	require.True(t, retry.ShouldRetry(t.Context(), err))
	assert.False(t, retry.ShouldRetry(t.Context(), err))
	assert.True(t, retry.Exhausted())
	assert.Equal(t, 3, retry.Attempts())
}

func TestShouldRetry_WriteExhaustsImmediately(t *testing.T) {
	cache := newTestCache(t)

	// Single-write topology: one writable region, no second candidate.
	req := types.NewRequest(types.OperationWrite, types.ResourceDocument)
	retry := NewRegionalRetry(cache, nil, req)

	assert.False(t, retry.ShouldRetry(t.Context(), types.NewTransportError(503, nil)))
	assert.True(t, retry.Exhausted())
}

func TestShouldRetry_CancelledContextStillRecordsOutcome(t *testing.T) {
	cache := newTestCache(t)
	tracker := health.NewTracker()

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	req.PartitionKeyRange = &ordersRange
	retry := NewRegionalRetry(cache, tracker, req)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	// The attempt finished with a service error before the caller gave up:
	// its outcome counts, but no new region is tried.
	assert.False(t, retry.ShouldRetry(ctx, types.NewTransportError(503, nil)))

	assert.True(t, cache.IsEndpointUnavailable(testutil.EastUS.Endpoint, types.OperationRead))
	assert.Equal(t, 1, tracker.ConsecutiveFailures(ordersRange, "East US", types.OperationRead))
}

func TestShouldRetry_AbortedAttemptNotRecorded(t *testing.T) {
	cache := newTestCache(t)
	tracker := health.NewTracker()

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	req.PartitionKeyRange = &ordersRange
	retry := NewRegionalRetry(cache, tracker, req)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	// The attempt never completed; a bare cancellation error says nothing
	// about the region.
	assert.False(t, retry.ShouldRetry(ctx, context.Canceled))

	assert.False(t, cache.IsEndpointUnavailable(testutil.EastUS.Endpoint, types.OperationRead))
	assert.Equal(t, 0, tracker.ConsecutiveFailures(ordersRange, "East US", types.OperationRead))
}

func TestShouldRetry_TimeoutErrorFailsOver(t *testing.T) {
	cache := newTestCache(t)

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	retry := NewRegionalRetry(cache, nil, req)

	// A deadline error from the attempt itself is retriable as long as the
	// parent context is still live.
	assert.True(t, retry.ShouldRetry(t.Context(), context.DeadlineExceeded))
	assert.Equal(t, testutil.WestUS.Endpoint, retry.CurrentEndpoint())
}

func TestNewRegionalRetry_CircuitBrokenRegionDeprioritized(t *testing.T) {
	cache := newTestCache(t)
	tracker := health.NewTracker(health.WithInitialUnavailableDuration(time.Hour))

	// Trip (orders/0, East US).
	for range health.DefaultReadFailureThreshold {
		tracker.RecordFailure("East US", types.OperationRead, ordersRange)
	}

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	req.PartitionKeyRange = &ordersRange
	retry := NewRegionalRetry(cache, tracker, req)

	// East US drops to the back of the candidate list.
	assert.Equal(t, testutil.WestUS.Endpoint, retry.CurrentEndpoint())
	assert.Equal(t, []string{"East US"}, req.CircuitBreakerExcludedLocations())
}

func TestNewRegionalRetry_SteersProbeToClaimedRegion(t *testing.T) {
	cache := newTestCache(t)
	tracker := health.NewTracker(
		health.WithReadFailureThreshold(1),
		health.WithInitialUnavailableDuration(0),
	)

	// Trip (orders/0, East US) and leave its endpoint carrying a live
	// unavailability mark, the way a real failure does.
	cache.MarkEndpointUnavailableForRead(testutil.EastUS.Endpoint, false)
	tracker.RecordFailure("East US", types.OperationRead, ordersRange)
	require.Equal(t, health.StatusUnhealthyTentative, tracker.Status(ordersRange, "East US"))

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	req.PartitionKeyRange = &ordersRange
	retry := NewRegionalRetry(cache, tracker, req)

	// The claim winner is pinned to the probed region even though the
	// endpoint mark would normally deprioritize it.
	assert.Equal(t, testutil.EastUS.Endpoint, retry.CurrentEndpoint())
	assert.Equal(t, testutil.EastUS.Endpoint, cache.ResolveEndpoint(req))

	// Concurrent requests for the same partition keep avoiding the region
	// while the probe is in flight.
	other := types.NewRequest(types.OperationRead, types.ResourceDocument)
	other.PartitionKeyRange = &ordersRange
	otherRetry := NewRegionalRetry(cache, tracker, other)
	assert.Equal(t, testutil.WestUS.Endpoint, otherRetry.CurrentEndpoint())

	// The probe succeeds and closes the circuit.
	retry.RecordSuccess()
	assert.Equal(t, health.StatusHealthy, tracker.Status(ordersRange, "East US"))
	assert.Empty(t, tracker.CircuitBrokenRegions(ordersRange, types.OperationRead))
}

func TestNewRegionalRetry_ReleasesClaimWhenRegionExcluded(t *testing.T) {
	cache := newTestCache(t)
	tracker := health.NewTracker(
		health.WithReadFailureThreshold(1),
		health.WithInitialUnavailableDuration(0),
	)

	tracker.RecordFailure("East US", types.OperationRead, ordersRange)

	// The request hard-excludes the probed region, so the claim cannot be
	// honored and must go back for another request to take.
	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	req.PartitionKeyRange = &ordersRange
	require.NoError(t, req.SetExcludedLocations([]string{"East US"}))

	retry := NewRegionalRetry(cache, tracker, req)
	assert.Equal(t, testutil.WestUS.Endpoint, retry.CurrentEndpoint())

	_, probes := tracker.ExclusionsForAttempt(ordersRange, types.OperationRead)
	assert.Equal(t, []string{"East US"}, probes)
}

func TestShouldRetry_FailedProbeRestartsCooldown(t *testing.T) {
	cache := newTestCache(t)
	tracker := health.NewTracker(
		health.WithReadFailureThreshold(1),
		health.WithInitialUnavailableDuration(0),
	)

	tracker.RecordFailure("East US", types.OperationRead, ordersRange)

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	req.PartitionKeyRange = &ordersRange
	retry := NewRegionalRetry(cache, tracker, req)
	require.Equal(t, testutil.EastUS.Endpoint, retry.CurrentEndpoint())

	// The probe fails: the pair advances and the next candidate is tried.
	require.True(t, retry.ShouldRetry(t.Context(), types.NewTransportError(503, nil)))
	assert.Equal(t, testutil.WestUS.Endpoint, retry.CurrentEndpoint())
	assert.Equal(t, health.StatusUnhealthy, tracker.Status(ordersRange, "East US"))
}

func TestShouldRetry_NonRetriableReleasesProbeClaim(t *testing.T) {
	cache := newTestCache(t)
	tracker := health.NewTracker(
		health.WithReadFailureThreshold(1),
		health.WithInitialUnavailableDuration(0),
	)

	tracker.RecordFailure("East US", types.OperationRead, ordersRange)

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	req.PartitionKeyRange = &ordersRange
	retry := NewRegionalRetry(cache, tracker, req)
	require.Equal(t, testutil.EastUS.Endpoint, retry.CurrentEndpoint())

	// A fatal error proves nothing about the region; the claim goes back.
	assert.False(t, retry.ShouldRetry(t.Context(), types.NewTransportError(401, nil)))

	_, probes := tracker.ExclusionsForAttempt(ordersRange, types.OperationRead)
	assert.Equal(t, []string{"East US"}, probes)
}

func TestAbandon_ReleasesProbeClaim(t *testing.T) {
	cache := newTestCache(t)
	tracker := health.NewTracker(
		health.WithReadFailureThreshold(1),
		health.WithInitialUnavailableDuration(0),
	)

	tracker.RecordFailure("East US", types.OperationRead, ordersRange)

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	req.PartitionKeyRange = &ordersRange
	retry := NewRegionalRetry(cache, tracker, req)
	require.Equal(t, testutil.EastUS.Endpoint, retry.CurrentEndpoint())

	retry.Abandon()

	_, probes := tracker.ExclusionsForAttempt(ordersRange, types.OperationRead)
	assert.Equal(t, []string{"East US"}, probes)
}

func TestRecordSuccess_FeedsTracker(t *testing.T) {
	cache := newTestCache(t)
	tracker := health.NewTracker()

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	req.PartitionKeyRange = &ordersRange
	retry := NewRegionalRetry(cache, tracker, req)

	tracker.RecordFailure("East US", types.OperationRead, ordersRange)
	require.Equal(t, 1, tracker.ConsecutiveFailures(ordersRange, "East US", types.OperationRead))

	retry.RecordSuccess()
	assert.Equal(t, 0, tracker.ConsecutiveFailures(ordersRange, "East US", types.OperationRead))
}

func TestShouldRetry_FailoverMetrics(t *testing.T) {
	cache := newTestCache(t)
	collector := testutil.NewTestMetricsCollector()

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	retry := NewRegionalRetry(cache, nil, req, WithRetryMetrics(collector))

	require.True(t, retry.ShouldRetry(t.Context(), types.NewTransportError(503, nil)))
	assert.Equal(t, int64(1), collector.FailoverCount("East US", "West US"))
}

func TestWithPartitionKeyRanges_SpannedPartitions(t *testing.T) {
	cache := newTestCache(t)
	tracker := health.NewTracker()

	other := types.PartitionKeyRange{Collection: "orders", RangeID: "1"}

	req := types.NewRequest(types.OperationRead, types.ResourceDocument)
	retry := NewRegionalRetry(cache, tracker, req,
		WithPartitionKeyRanges(ordersRange, other),
	)

	require.True(t, retry.ShouldRetry(t.Context(), types.NewTransportError(503, nil)))

	// Both spanned partitions record the failure.
	assert.Equal(t, 1, tracker.ConsecutiveFailures(ordersRange, "East US", types.OperationRead))
	assert.Equal(t, 1, tracker.ConsecutiveFailures(other, "East US", types.OperationRead))
}
