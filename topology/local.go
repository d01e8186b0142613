package topology

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/meridian/types"
)

// Local provides an in-memory topology source for testing and demos.
//
// Unlike the NATS watcher, this implementation allows programmatic control
// of the topology, making it ideal for unit tests: regions can be added,
// removed and reordered between fetches, and fetch errors can be injected.
type Local struct {
	mu       sync.RWMutex
	snap     Snapshot
	fetchErr error
}

var _ Fetcher = (*Local)(nil)

// NewLocal creates a new in-memory topology source.
//
// Parameters:
//   - snap: The initial topology
//
// Returns:
//   - *Local: A new local topology instance
func NewLocal(snap Snapshot) *Local {
	return &Local{snap: snap}
}

// Fetch returns the current programmatic topology.
//
// Parameters:
//   - ctx: Context for cancellation
//
// Returns:
//   - Snapshot: The current topology
//   - error: The injected fetch error, if any
func (l *Local) Fetch(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.fetchErr != nil {
		return Snapshot{}, l.fetchErr
	}

	snap := l.snap
	snap.FetchedAt = time.Now()

	return snap, nil
}

// SetSnapshot replaces the topology returned by subsequent fetches.
//
// Parameters:
//   - snap: The new topology
func (l *Local) SetSnapshot(snap Snapshot) {
	l.mu.Lock()
	l.snap = snap
	l.mu.Unlock()
}

// SetRegions replaces the writable and readable region lists.
//
// Parameters:
//   - writable: Ordered writable regions
//   - readable: Ordered readable regions
func (l *Local) SetRegions(writable, readable []types.Region) {
	l.mu.Lock()
	l.snap.WritableRegions = writable
	l.snap.ReadableRegions = readable
	l.mu.Unlock()
}

// SetMultiWriteEnabled sets the multi-write capability flag.
//
// Parameters:
//   - enabled: true if every writable region accepts writes
func (l *Local) SetMultiWriteEnabled(enabled bool) {
	l.mu.Lock()
	l.snap.MultiWriteEnabled = enabled
	l.mu.Unlock()
}

// SetFetchError injects an error returned by subsequent fetches.
//
// Pass nil to restore normal operation.
//
// Parameters:
//   - err: The error to return from Fetch
func (l *Local) SetFetchError(err error) {
	l.mu.Lock()
	l.fetchErr = err
	l.mu.Unlock()
}
