package topology

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/arloliu/meridian/types"
)

// Document is the account topology structure stored in NATS KV.
//
// This is the JSON structure that control-plane tooling PUTs to the KV
// store whenever the account's region configuration changes, so every
// client instance converges on the same topology without polling the
// account endpoint.
type Document struct {
	// WritableRegions lists the regions accepting writes, in account order.
	WritableRegions []types.Region `json:"writableRegions"`

	// ReadableRegions lists the regions serving reads, in account order.
	ReadableRegions []types.Region `json:"readableRegions"`

	// MultiWriteEnabled reports whether every writable region accepts
	// writes.
	MultiWriteEnabled bool `json:"multiWriteEnabled"`
}

// NATS monitors a NATS KV bucket for account topology documents.
//
// It watches a configurable key and publishes each valid document to the
// attached region directory, additionally emitting the snapshot on the
// Updates channel for observers.
//
// Watch() should be called once per instance. Subsequent calls return the
// same channel. The channel is closed when Close() is called or the context
// is cancelled.
type NATS struct {
	kv        jetstream.KeyValue
	directory *Directory
	config    WatcherConfig

	mu           sync.Mutex
	updates      chan Snapshot
	done         chan struct{}
	closed       bool
	watchStarted bool
	closeOnce    sync.Once
}

// NewNATS creates a new NATS KV topology watcher.
//
// The watcher begins monitoring the KV bucket when Watch() is called.
//
// Parameters:
//   - kv: A NATS JetStream KeyValue store
//   - directory: The region directory to publish snapshots to
//   - opts: Optional configuration options
//
// Returns:
//   - *NATS: A new watcher instance
//   - error: Error if kv or directory is nil
//
// Example:
//
//	nc, _ := nats.Connect("nats://localhost:4222")
//	js, _ := jetstream.New(nc)
//	kv, _ := js.KeyValue(ctx, "meridian-config")
//
//	watcher, _ := topology.NewNATS(kv, directory,
//	    topology.WithKey("topology.account"),
//	    topology.WithPollInterval(10*time.Second),
//	)
func NewNATS(kv jetstream.KeyValue, directory *Directory, opts ...WatcherOption) (*NATS, error) {
	if kv == nil {
		return nil, errors.New("meridian/topology: KeyValue store is nil")
	}
	if directory == nil {
		return nil, types.ErrNilDirectory
	}

	config := DefaultWatcherConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &NATS{
		kv:        kv,
		directory: directory,
		config:    config,
		updates:   make(chan Snapshot, 10),
		done:      make(chan struct{}),
	}, nil
}

// Watch returns a channel that receives topology snapshots.
//
// The watcher spawns a background goroutine that monitors the NATS KV key.
// Every valid document is published to the region directory and emitted on
// the channel.
//
// The channel is closed when Close() is called or the context is cancelled.
// Multiple calls to Watch return the same channel; only the first call's
// context controls the watch lifecycle.
//
// Parameters:
//   - ctx: Context for cancellation (only used on first call)
//
// Returns:
//   - <-chan Snapshot: Channel of topology snapshots
func (n *NATS) Watch(ctx context.Context) <-chan Snapshot {
	n.mu.Lock()
	if n.watchStarted {
		n.mu.Unlock()

		return n.updates
	}
	n.watchStarted = true
	n.mu.Unlock()

	go n.watchLoop(ctx)

	return n.updates
}

// Close stops the watcher and releases resources.
//
// This method is safe to call multiple times.
func (n *NATS) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}

	n.closed = true
	close(n.done)

	return nil
}

// Config returns the watcher configuration.
//
// This method is primarily useful for testing to verify configuration
// options.
//
// Returns:
//   - WatcherConfig: The current watcher configuration
func (n *NATS) Config() WatcherConfig {
	return n.config
}

// watchLoop is the main watch loop that monitors the NATS KV key.
func (n *NATS) watchLoop(ctx context.Context) {
	defer n.closeOnce.Do(func() { close(n.updates) })

	// Initial fetch
	n.fetchAndPublish(ctx)

	// Start watching
	watcher, err := n.kv.Watch(ctx, n.config.Key)
	if err != nil {
		// Fall back to polling if watch fails
		n.pollLoop(ctx)
		return
	}
	defer func() { _ = watcher.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case entry, ok := <-watcher.Updates():
			if !ok {
				// Watcher channel closed, fall back to polling
				n.pollLoop(ctx)
				return
			}
			if entry == nil {
				// Initial nil entry, skip
				continue
			}
			n.processEntry(entry)
		}
	}
}

// pollLoop is a fallback polling loop when watch fails.
func (n *NATS) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(n.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-n.done:
			return
		case <-ticker.C:
			n.fetchAndPublish(ctx)
		}
	}
}

// fetchAndPublish fetches the current KV value and publishes it if valid.
func (n *NATS) fetchAndPublish(ctx context.Context) {
	fetchCtx, cancel := context.WithTimeout(ctx, n.config.InitialFetchTimeout)
	defer cancel()

	entry, err := n.kv.Get(fetchCtx, n.config.Key)
	if err != nil {
		// Key doesn't exist yet - keep the current topology
		return
	}

	n.processEntry(entry)
}

// processEntry parses a KV entry and publishes the topology.
//
// Deletions and malformed documents are ignored: the last valid topology
// keeps serving until a new valid document arrives.
func (n *NATS) processEntry(entry jetstream.KeyValueEntry) {
	if entry.Operation() == jetstream.KeyValueDelete || entry.Operation() == jetstream.KeyValuePurge {
		return
	}

	var doc Document
	if err := json.Unmarshal(entry.Value(), &doc); err != nil {
		return
	}

	snap := Snapshot{
		WritableRegions:   doc.WritableRegions,
		ReadableRegions:   doc.ReadableRegions,
		MultiWriteEnabled: doc.MultiWriteEnabled,
		FetchedAt:         time.Now(),
	}

	n.directory.Update(snap)

	// Emit update (non-blocking)
	select {
	case n.updates <- snap:
	default:
		// Channel full, skip update (older updates are stale anyway)
	}
}
