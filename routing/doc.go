// Package routing implements the location cache: the per-request decision
// of which regional endpoint a globally-distributed database request
// should be sent to.
//
// The LocationCache merges three inputs:
//
//   - the last-known account topology (ordered writable/readable region
//     lists from a topology.Directory),
//   - immutable client preferences (ordered preferred locations,
//     client-level excluded locations, the multi-write flag), and
//   - a concurrent, timestamped, operation-scoped per-endpoint
//     unavailability map fed back by the retry policy.
//
// It produces ordered RoutingContext candidate lists and a single
// ResolveEndpoint decision. Resolution never fails: it degrades through
// deprioritized (marked or circuit-broken) regions, then the primary write
// region for reads, and finally the account's default endpoint.
package routing
