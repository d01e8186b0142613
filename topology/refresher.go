package topology

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/arloliu/meridian/internal/logging"
	"github.com/arloliu/meridian/types"
)

// ErrRefresherRunning indicates Start was called on a running refresher.
var ErrRefresherRunning = errors.New("meridian/topology: refresher already running")

// Refresher periodically fetches the account topology and publishes it to a
// region directory.
//
// The refresher is the external collaborator the routing core assumes: when
// the location cache marks an endpoint unavailable with the refresh intent
// flag set, the router forwards that intent here via ForceRefresh, which
// triggers an immediate out-of-band fetch in addition to the regular
// interval.
type Refresher struct {
	fetcher   Fetcher
	directory *Directory
	interval  time.Duration
	timeout   time.Duration
	logger    types.Logger

	force   chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithRefreshInterval sets the periodic fetch interval.
//
// Default: 5 minutes
//
// Parameters:
//   - d: Interval between topology fetches
//
// Returns:
//   - RefresherOption: Configuration option
func WithRefreshInterval(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.interval = d
	}
}

// WithRefreshTimeout sets the per-fetch timeout.
//
// Default: 10 seconds
//
// Parameters:
//   - d: Timeout applied to each Fetch call
//
// Returns:
//   - RefresherOption: Configuration option
func WithRefreshTimeout(d time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.timeout = d
	}
}

// WithRefresherLogger sets the logger for refresh failures.
//
// Parameters:
//   - l: The logger
//
// Returns:
//   - RefresherOption: Configuration option
func WithRefresherLogger(l types.Logger) RefresherOption {
	return func(r *Refresher) {
		r.logger = l
	}
}

// NewRefresher creates a topology refresher.
//
// Parameters:
//   - fetcher: The account topology source
//   - directory: The directory to publish snapshots to
//   - opts: Optional configuration options
//
// Returns:
//   - *Refresher: A new refresher; call Start to begin fetching
func NewRefresher(fetcher Fetcher, directory *Directory, opts ...RefresherOption) *Refresher {
	r := &Refresher{
		fetcher:   fetcher,
		directory: directory,
		interval:  5 * time.Minute,
		timeout:   10 * time.Second,
		force:     make(chan struct{}, 1),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.logger == nil {
		r.logger = logging.NewNopLogger()
	}

	return r
}

// Start begins the background refresh loop.
//
// The first fetch happens immediately; subsequent fetches run at the
// configured interval or when ForceRefresh is called.
//
// Returns:
//   - error: ErrRefresherRunning if already started
func (r *Refresher) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrRefresherRunning
	}

	r.running = true
	r.done = make(chan struct{})
	r.wg.Add(1)

	go r.loop()

	return nil
}

// Stop gracefully stops the refresh loop and waits for it to exit.
//
// Safe to call multiple times.
func (r *Refresher) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.done)
	r.mu.Unlock()

	r.wg.Wait()
}

// IsRunning returns whether the refresher is currently running.
func (r *Refresher) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.running
}

// ForceRefresh requests an immediate out-of-band topology fetch.
//
// Non-blocking; if a forced refresh is already pending, the request is
// coalesced with it.
func (r *Refresher) ForceRefresh() {
	select {
	case r.force <- struct{}{}:
	default:
	}
}

// loop is the background refresh loop.
func (r *Refresher) loop() {
	defer r.wg.Done()

	r.refresh()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			r.refresh()
		case <-r.force:
			r.refresh()
		}
	}
}

// refresh performs one fetch and publishes the result.
//
// Fetch failures are logged and swallowed; the directory keeps serving the
// previous snapshot.
func (r *Refresher) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	snap, err := r.fetcher.Fetch(ctx)
	if err != nil {
		r.logger.Warn("topology refresh failed, keeping previous snapshot",
			"error", err.Error(),
		)

		return
	}

	r.directory.Update(snap)
}
