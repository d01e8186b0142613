// Package meridian implements the endpoint-selection and failure-recovery
// core of a client for a globally-distributed database.
//
// For every outgoing request the client must pick which regional replica
// endpoint to contact, while regions and individual data partitions
// transiently fail, recover, or are explicitly excluded by the caller.
// Meridian provides that decision and the bookkeeping behind it:
//
//   - a region-level location cache that merges the account topology with
//     client preferences and timestamped per-endpoint unavailability marks
//     (package routing),
//   - a partition-level health tracker with circuit-breaker semantics and
//     single-prober recovery (package health),
//   - a regional retry policy that drives a request across candidate
//     endpoints until one succeeds or all are exhausted (package policy),
//   - topology plumbing: directory, background refresher, YAML bootstrap
//     and a NATS KV watcher (package topology).
//
// The wire protocol, serialization and storage engine are deliberately out
// of scope; transports plug in through the Router facade:
//
//	directory := topology.NewDirectoryWithSnapshot(snap)
//	router, err := meridian.NewRouter(directory, "https://account.example.com:443/",
//	    meridian.WithPreferredLocations("West US", "East US"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	req := meridian.NewRequest(meridian.OperationRead, meridian.ResourceDocument)
//	err = router.Do(ctx, req, func(ctx context.Context, endpoint string) error {
//	    return transport.Send(ctx, endpoint, payload)
//	})
//
// Transports that manage their own loops use ResolveEndpoint,
// NewRetryPolicy and RecordOutcome directly.
package meridian
