package routing

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/meridian/types"
)

// unavailabilityRecord tracks which operation types an endpoint is
// suspected unavailable for, and since when.
//
// Marks union into the record: marking an endpoint for reads and then for
// writes yields a record covering both. Every mark restarts the timestamp.
type unavailabilityRecord struct {
	read     bool
	write    bool
	markedAt time.Time
}

// covers reports whether the record includes the given operation type.
func (r *unavailabilityRecord) covers(op types.OperationType) bool {
	if op.IsWrite() {
		return r.write
	}

	return r.read
}

// expired reports whether the record's window has elapsed.
func (r *unavailabilityRecord) expired(now time.Time, window time.Duration) bool {
	return now.Sub(r.markedAt) >= window
}

// unavailabilityMap is the per-endpoint unavailability bookkeeping shared
// by all in-flight requests.
//
// Expiry is lazy: records are checked against the window on read and never
// proactively swept. An expired record answers "not unavailable" but its
// endpoint still shows up in the health-check list until re-marked or the
// map is rebuilt.
type unavailabilityMap struct {
	mu      sync.RWMutex
	records map[string]*unavailabilityRecord
	window  time.Duration

	refreshNeeded atomic.Bool
}

// newUnavailabilityMap creates an empty unavailability map.
func newUnavailabilityMap(window time.Duration) *unavailabilityMap {
	return &unavailabilityMap{
		records: make(map[string]*unavailabilityRecord),
		window:  window,
	}
}

// mark records an endpoint as unavailable for the operation type, unioning
// into any existing record, and returns the current record count.
func (m *unavailabilityMap) mark(endpoint string, op types.OperationType) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.records[endpoint]
	if rec == nil {
		rec = &unavailabilityRecord{}
		m.records[endpoint] = rec
	}

	if op.IsWrite() {
		rec.write = true
	} else {
		rec.read = true
	}
	rec.markedAt = time.Now()

	return len(m.records)
}

// isUnavailable reports whether a live record covers the operation type.
func (m *unavailabilityMap) isUnavailable(endpoint string, op types.OperationType, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[endpoint]
	if !ok {
		return false
	}
	if !rec.covers(op) {
		return false
	}

	return !rec.expired(now, m.window)
}

// endpoints returns every marked endpoint, expired or not.
func (m *unavailabilityMap) endpoints() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	endpoints := make([]string, 0, len(m.records))
	for endpoint := range m.records {
		endpoints = append(endpoints, endpoint)
	}

	return endpoints
}

// signalRefreshNeeded records a caller's intent to force a topology
// refresh.
func (m *unavailabilityMap) signalRefreshNeeded() {
	m.refreshNeeded.Store(true)
}

// consumeRefreshNeeded returns and clears the refresh intent flag.
func (m *unavailabilityMap) consumeRefreshNeeded() bool {
	return m.refreshNeeded.Swap(false)
}
