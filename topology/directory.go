package topology

import (
	"context"
	"sync"
	"time"

	"github.com/arloliu/meridian/types"
)

// Snapshot is the last-known account topology: the ordered writable and
// readable region lists plus the multi-write capability flag.
//
// Region ordering is significant. The lists are in the order returned by the
// account read, which the location cache uses verbatim when the client has
// no preferred locations configured.
//
// Snapshots are treated as immutable once published; consumers must not
// mutate the region slices.
type Snapshot struct {
	// WritableRegions lists the regions accepting writes, in account order.
	WritableRegions []types.Region

	// ReadableRegions lists the regions serving reads, in account order.
	ReadableRegions []types.Region

	// MultiWriteEnabled reports whether the account accepts writes in
	// every writable region, or only in the first one.
	MultiWriteEnabled bool

	// FetchedAt records when this topology was read from the account.
	FetchedAt time.Time
}

// RegionByName returns the region with the given name, searching readable
// regions first, then writable regions.
//
// Parameters:
//   - name: The canonical region name
//
// Returns:
//   - types.Region: The matching region
//   - bool: true if a region with that name exists in the snapshot
func (s Snapshot) RegionByName(name string) (types.Region, bool) {
	for _, region := range s.ReadableRegions {
		if region.Name == name {
			return region, true
		}
	}
	for _, region := range s.WritableRegions {
		if region.Name == name {
			return region, true
		}
	}

	return types.Region{}, false
}

// RegionByEndpoint returns the region serving the given endpoint, matching
// primary endpoints first, then alternates.
//
// Parameters:
//   - endpoint: The endpoint URL to look up
//
// Returns:
//   - types.Region: The matching region
//   - bool: true if any region in the snapshot serves that endpoint
func (s Snapshot) RegionByEndpoint(endpoint string) (types.Region, bool) {
	lists := [][]types.Region{s.ReadableRegions, s.WritableRegions}
	for _, regions := range lists {
		for _, region := range regions {
			if region.Endpoint == endpoint {
				return region, true
			}
		}
	}
	for _, regions := range lists {
		for _, region := range regions {
			if region.AlternateEndpoint != "" && region.AlternateEndpoint == endpoint {
				return region, true
			}
		}
	}

	return types.Region{}, false
}

// Fetcher performs the external account read that produces a topology
// snapshot.
//
// The routing core never calls Fetch on the request hot path; fetching is
// driven by the background Refresher or by the application directly.
//
// Implementations MUST be safe for concurrent use from multiple goroutines.
type Fetcher interface {
	// Fetch reads the current account topology.
	//
	// Parameters:
	//   - ctx: Context for cancellation/timeout
	//
	// Returns:
	//   - Snapshot: The current topology
	//   - error: nil on success, error if the account read fails
	Fetch(ctx context.Context) (Snapshot, error)
}

// Directory holds the last-known account topology for the routing core.
//
// It is the single source of truth the location cache builds candidate
// lists from. Updates replace the whole snapshot atomically; readers always
// observe a consistent topology.
//
// Directory is safe for concurrent use from multiple goroutines.
type Directory struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewDirectory creates an empty region directory.
//
// Returns:
//   - *Directory: A directory with no known regions
func NewDirectory() *Directory {
	return &Directory{}
}

// NewDirectoryWithSnapshot creates a directory seeded with a topology,
// typically loaded from a bootstrap file via LoadFile.
//
// Parameters:
//   - snap: The initial topology
//
// Returns:
//   - *Directory: A directory holding the given snapshot
func NewDirectoryWithSnapshot(snap Snapshot) *Directory {
	return &Directory{snap: snap}
}

// Update replaces the directory's topology.
//
// Parameters:
//   - snap: The new topology snapshot
func (d *Directory) Update(snap Snapshot) {
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}

	d.mu.Lock()
	d.snap = snap
	d.mu.Unlock()
}

// Snapshot returns the current topology.
//
// The returned snapshot shares its region slices with the directory; it
// must be treated as read-only.
//
// Returns:
//   - Snapshot: The last-known topology
func (d *Directory) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.snap
}

// WritableRegions returns the ordered writable region list.
func (d *Directory) WritableRegions() []types.Region {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.snap.WritableRegions
}

// ReadableRegions returns the ordered readable region list.
func (d *Directory) ReadableRegions() []types.Region {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.snap.ReadableRegions
}

// MultiWriteEnabled reports whether the account accepts writes in every
// writable region.
func (d *Directory) MultiWriteEnabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.snap.MultiWriteEnabled
}

// RegionByName returns the region with the given name from the current
// topology.
//
// Parameters:
//   - name: The canonical region name
//
// Returns:
//   - types.Region: The matching region
//   - bool: true if found
func (d *Directory) RegionByName(name string) (types.Region, bool) {
	return d.Snapshot().RegionByName(name)
}

// RegionByEndpoint returns the region serving the given endpoint from the
// current topology.
//
// Parameters:
//   - endpoint: The endpoint URL to look up
//
// Returns:
//   - types.Region: The matching region
//   - bool: true if found
func (d *Directory) RegionByEndpoint(endpoint string) (types.Region, bool) {
	return d.Snapshot().RegionByEndpoint(endpoint)
}
