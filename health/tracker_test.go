package health

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/meridian/test/testutil"
	"github.com/arloliu/meridian/types"
)

var (
	rangeA = types.PartitionKeyRange{Collection: "orders", RangeID: "0"}
	rangeB = types.PartitionKeyRange{Collection: "orders", RangeID: "1"}
)

const eastUS = "East US"

func TestNewTracker_Defaults(t *testing.T) {
	tracker := NewTracker()

	assert.Equal(t, DefaultReadFailureThreshold, tracker.readFailureThreshold)
	assert.Equal(t, DefaultWriteFailureThreshold, tracker.writeFailureThreshold)
	assert.Equal(t, DefaultFailureRateThreshold, tracker.failureRateThreshold)
	assert.Equal(t, DefaultMinimumRequestsForRateCheck, tracker.minimumRequestsForRateCheck)
	assert.Equal(t, DefaultInitialUnavailableDuration, tracker.initialUnavailableDuration)
	assert.Equal(t, DefaultFailureRateWindow, tracker.failureRateWindow)
	assert.Equal(t, DefaultProbeClaimTimeout, tracker.probeClaimTimeout)
}

func TestNewTracker_CustomOptions(t *testing.T) {
	tracker := NewTracker(
		WithReadFailureThreshold(20),
		WithWriteFailureThreshold(3),
		WithFailureRateThreshold(50),
		WithMinimumRequestsForRateCheck(10),
		WithInitialUnavailableDuration(30*time.Second),
		WithFailureRateWindow(2*time.Minute),
		WithProbeClaimTimeout(10*time.Second),
	)

	assert.Equal(t, 20, tracker.readFailureThreshold)
	assert.Equal(t, 3, tracker.writeFailureThreshold)
	assert.Equal(t, 50, tracker.failureRateThreshold)
	assert.Equal(t, 10, tracker.minimumRequestsForRateCheck)
	assert.Equal(t, 30*time.Second, tracker.initialUnavailableDuration)
	assert.Equal(t, 2*time.Minute, tracker.failureRateWindow)
	assert.Equal(t, 10*time.Second, tracker.probeClaimTimeout)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "healthy", StatusHealthy.String())
	assert.Equal(t, "unhealthy_tentative", StatusUnhealthyTentative.String())
	assert.Equal(t, "unhealthy", StatusUnhealthy.String())
}

func TestTracker_UntouchedPairIsHealthy(t *testing.T) {
	tracker := NewTracker()

	assert.Equal(t, StatusHealthy, tracker.Status(rangeA, eastUS))
	assert.Empty(t, tracker.CircuitBrokenRegions(rangeA, types.OperationRead))
}

func TestTracker_WriteThresholdEdge(t *testing.T) {
	tracker := NewTracker()

	// One below the write threshold: still healthy.
	for range DefaultWriteFailureThreshold - 1 {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}
	assert.Equal(t, StatusHealthy, tracker.Status(rangeA, eastUS))
	assert.Equal(t, DefaultWriteFailureThreshold-1, tracker.ConsecutiveFailures(rangeA, eastUS, types.OperationWrite))

	// The threshold-th failure trips the pair.
	tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	assert.Equal(t, StatusUnhealthyTentative, tracker.Status(rangeA, eastUS))
}

func TestTracker_ReadThresholdEdge(t *testing.T) {
	tracker := NewTracker()

	for range DefaultReadFailureThreshold - 1 {
		tracker.RecordFailure(eastUS, types.OperationRead, rangeA)
	}
	assert.Equal(t, StatusHealthy, tracker.Status(rangeA, eastUS))

	tracker.RecordFailure(eastUS, types.OperationRead, rangeA)
	assert.Equal(t, StatusUnhealthyTentative, tracker.Status(rangeA, eastUS))
}

func TestTracker_SuccessResetsConsecutiveCounters(t *testing.T) {
	tracker := NewTracker()

	for range DefaultWriteFailureThreshold - 1 {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}
	tracker.RecordSuccess(eastUS, types.OperationWrite, rangeA)
	assert.Equal(t, 0, tracker.ConsecutiveFailures(rangeA, eastUS, types.OperationWrite))

	// A fresh run below the threshold does not trip.
	for range DefaultWriteFailureThreshold - 1 {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}
	assert.Equal(t, StatusHealthy, tracker.Status(rangeA, eastUS))
}

func TestTracker_TripResetsCounters(t *testing.T) {
	tracker := NewTracker()

	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}
	require.Equal(t, StatusUnhealthyTentative, tracker.Status(rangeA, eastUS))

	// Counters restart after the trip: a fresh run is needed to advance.
	assert.Equal(t, 0, tracker.ConsecutiveFailures(rangeA, eastUS, types.OperationWrite))
}

func TestTracker_SecondRunAdvancesToUnhealthy(t *testing.T) {
	tracker := NewTracker()

	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}
	require.Equal(t, StatusUnhealthyTentative, tracker.Status(rangeA, eastUS))

	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}
	assert.Equal(t, StatusUnhealthy, tracker.Status(rangeA, eastUS))

	// Unhealthy is terminal for failures; more runs keep it unhealthy.
	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}
	assert.Equal(t, StatusUnhealthy, tracker.Status(rangeA, eastUS))
}

func TestTracker_CountersScopedPerOperation(t *testing.T) {
	tracker := NewTracker()

	for range DefaultWriteFailureThreshold - 1 {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}
	// Read failures do not push the write counter over its threshold.
	tracker.RecordFailure(eastUS, types.OperationRead, rangeA)
	assert.Equal(t, StatusHealthy, tracker.Status(rangeA, eastUS))

	assert.Equal(t, DefaultWriteFailureThreshold-1, tracker.ConsecutiveFailures(rangeA, eastUS, types.OperationWrite))
	assert.Equal(t, 1, tracker.ConsecutiveFailures(rangeA, eastUS, types.OperationRead))
}

func TestTracker_FailureRateTrigger(t *testing.T) {
	tracker := NewTracker(
		WithReadFailureThreshold(1000),
		WithFailureRateThreshold(50),
		WithMinimumRequestsForRateCheck(10),
	)

	// 4 successes and 6 failures: 60% failure rate over 10 samples.
	for range 4 {
		tracker.RecordSuccess(eastUS, types.OperationRead, rangeA)
	}
	for range 5 {
		tracker.RecordFailure(eastUS, types.OperationRead, rangeA)
	}
	assert.Equal(t, StatusHealthy, tracker.Status(rangeA, eastUS))

	tracker.RecordFailure(eastUS, types.OperationRead, rangeA)
	assert.Equal(t, StatusUnhealthyTentative, tracker.Status(rangeA, eastUS))
}

func TestTracker_FailureRateNeedsMinimumSamples(t *testing.T) {
	tracker := NewTracker(
		WithReadFailureThreshold(1000),
		WithFailureRateThreshold(50),
		WithMinimumRequestsForRateCheck(100),
	)

	// 100% failure rate, but below the sample-size gate.
	for range 20 {
		tracker.RecordFailure(eastUS, types.OperationRead, rangeA)
	}
	assert.Equal(t, StatusHealthy, tracker.Status(rangeA, eastUS))
}

func TestTracker_CircuitBrokenRegionsExcludesTrippedPair(t *testing.T) {
	tracker := NewTracker(WithInitialUnavailableDuration(time.Hour))

	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}

	broken := tracker.CircuitBrokenRegions(rangeA, types.OperationWrite)
	assert.Equal(t, []string{eastUS}, broken)

	// Exclusion is operation-independent.
	broken = tracker.CircuitBrokenRegions(rangeA, types.OperationRead)
	assert.Equal(t, []string{eastUS}, broken)

	// Other partitions are unaffected.
	assert.Empty(t, tracker.CircuitBrokenRegions(rangeB, types.OperationWrite))
}

func TestTracker_ProbeSingleFlight(t *testing.T) {
	tracker := NewTracker(WithInitialUnavailableDuration(0))

	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}

	// The cooldown already elapsed: exactly one concurrent caller wins the
	// probe claim; everyone else keeps excluding the region.
	const callers = 10

	var wg sync.WaitGroup
	claimed := make([]bool, callers)
	results := make([]int, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			excluded, probes := tracker.ExclusionsForAttempt(rangeA, types.OperationWrite)
			claimed[i] = len(probes) > 0
			results[i] = len(excluded)
		}()
	}
	wg.Wait()

	winners := 0
	for i := range callers {
		if claimed[i] {
			winners++
			assert.Zero(t, results[i])
		} else {
			assert.Equal(t, 1, results[i])
		}
	}
	assert.Equal(t, 1, winners)
}

func TestTracker_ProbeSuccessClosesCircuit(t *testing.T) {
	collector := testutil.NewTestMetricsCollector()
	tracker := NewTracker(
		WithInitialUnavailableDuration(0),
		WithTrackerMetrics(collector),
	)

	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}
	require.Equal(t, StatusUnhealthyTentative, tracker.Status(rangeA, eastUS))

	// Claim the probe, then report its success.
	excluded, probes := tracker.ExclusionsForAttempt(rangeA, types.OperationWrite)
	require.Empty(t, excluded)
	require.Equal(t, []string{eastUS}, probes)
	tracker.RecordSuccess(eastUS, types.OperationWrite, rangeA)

	assert.Equal(t, StatusHealthy, tracker.Status(rangeA, eastUS))
	assert.Empty(t, tracker.CircuitBrokenRegions(rangeA, types.OperationWrite))
	assert.Equal(t, int64(1), collector.ProbeCount(eastUS))
	assert.Equal(t, int(StatusHealthy), collector.CircuitState[eastUS])
}

func TestTracker_ProbeFailureAdvancesState(t *testing.T) {
	tracker := NewTracker(WithInitialUnavailableDuration(time.Hour))

	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}
	require.Equal(t, StatusUnhealthyTentative, tracker.Status(rangeA, eastUS))

	// Force the cooldown to elapse, then claim the probe.
	tracker.mu.RLock()
	info := tracker.entries[rangeA][eastUS]
	tracker.mu.RUnlock()
	info.mu.Lock()
	info.unavailableSince = time.Now().Add(-2 * time.Hour)
	info.mu.Unlock()

	excluded, probes := tracker.ExclusionsForAttempt(rangeA, types.OperationWrite)
	require.Empty(t, excluded)
	require.Equal(t, []string{eastUS}, probes)

	// One failed probe advances the state regardless of thresholds.
	tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	assert.Equal(t, StatusUnhealthy, tracker.Status(rangeA, eastUS))

	// The cooldown restarted: the region is excluded again.
	excluded, probes = tracker.ExclusionsForAttempt(rangeA, types.OperationWrite)
	assert.Equal(t, []string{eastUS}, excluded)
	assert.Empty(t, probes)
}

func TestTracker_NoProbeBeforeCooldown(t *testing.T) {
	tracker := NewTracker(WithInitialUnavailableDuration(time.Hour))

	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}

	// Repeated calls keep excluding the region and grant no probe.
	for range 5 {
		excluded, probes := tracker.ExclusionsForAttempt(rangeA, types.OperationWrite)
		assert.Equal(t, []string{eastUS}, excluded)
		assert.Empty(t, probes)
	}
}

func TestTracker_CircuitBrokenRegionsNeverClaims(t *testing.T) {
	tracker := NewTracker(WithInitialUnavailableDuration(0))

	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}

	// The read-only view keeps excluding the cooled-down pair and takes no
	// probe claim, no matter how often it is consulted.
	for range 5 {
		broken := tracker.CircuitBrokenRegions(rangeA, types.OperationWrite)
		assert.Equal(t, []string{eastUS}, broken)
	}

	// The claim is still available to an actual attempt.
	_, probes := tracker.ExclusionsForAttempt(rangeA, types.OperationWrite)
	assert.Equal(t, []string{eastUS}, probes)
}

func TestTracker_ReleaseProbeReopensClaim(t *testing.T) {
	tracker := NewTracker(WithInitialUnavailableDuration(0))

	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}

	_, probes := tracker.ExclusionsForAttempt(rangeA, types.OperationWrite)
	require.Equal(t, []string{eastUS}, probes)

	// The claim is held: a second caller is excluded.
	excluded, probes := tracker.ExclusionsForAttempt(rangeA, types.OperationWrite)
	require.Equal(t, []string{eastUS}, excluded)
	require.Empty(t, probes)

	// Giving the claim back lets the next caller probe instead.
	tracker.ReleaseProbe(rangeA, eastUS)
	_, probes = tracker.ExclusionsForAttempt(rangeA, types.OperationWrite)
	assert.Equal(t, []string{eastUS}, probes)
}

func TestTracker_StaleProbeClaimIsStolen(t *testing.T) {
	tracker := NewTracker(WithInitialUnavailableDuration(0))

	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}

	_, probes := tracker.ExclusionsForAttempt(rangeA, types.OperationWrite)
	require.Equal(t, []string{eastUS}, probes)

	// Age the claim past its timeout, as if the prober never reported.
	tracker.mu.RLock()
	info := tracker.entries[rangeA][eastUS]
	tracker.mu.RUnlock()
	info.mu.Lock()
	info.probeStarted = time.Now().Add(-2 * DefaultProbeClaimTimeout)
	info.mu.Unlock()

	// An abandoned claim must not wedge the pair; the next caller steals it.
	_, probes = tracker.ExclusionsForAttempt(rangeA, types.OperationWrite)
	assert.Equal(t, []string{eastUS}, probes)
}

func TestTracker_CrossPartitionAttribution(t *testing.T) {
	tracker := NewTracker(WithWriteFailureThreshold(1))

	// One failing cross-partition request trips both pairs at once.
	tracker.RecordFailure(eastUS, types.OperationWrite, rangeA, rangeB)

	assert.Equal(t, StatusUnhealthyTentative, tracker.Status(rangeA, eastUS))
	assert.Equal(t, StatusUnhealthyTentative, tracker.Status(rangeB, eastUS))
}

func TestTracker_TripMetrics(t *testing.T) {
	collector := testutil.NewTestMetricsCollector()
	tracker := NewTracker(WithTrackerMetrics(collector))

	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}
	assert.Equal(t, int64(1), collector.CircuitTrips[eastUS])
	assert.Equal(t, int(StatusUnhealthyTentative), collector.CircuitState[eastUS])

	// Advancing an already-tripped pair is not a new trip.
	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}
	assert.Equal(t, int64(1), collector.CircuitTrips[eastUS])
	assert.Equal(t, int(StatusUnhealthy), collector.CircuitState[eastUS])
}

func TestTracker_SuccessDoesNotCloseWithoutProbe(t *testing.T) {
	tracker := NewTracker(WithInitialUnavailableDuration(time.Hour))

	for range DefaultWriteFailureThreshold {
		tracker.RecordFailure(eastUS, types.OperationWrite, rangeA)
	}
	require.Equal(t, StatusUnhealthyTentative, tracker.Status(rangeA, eastUS))

	// A stray success without a claimed probe must not close the circuit.
	tracker.RecordSuccess(eastUS, types.OperationWrite, rangeA)
	assert.Equal(t, StatusUnhealthyTentative, tracker.Status(rangeA, eastUS))
}
