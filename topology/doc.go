// Package topology maintains the last-known account topology for the
// meridian routing core.
//
// The central type is Directory, which holds an immutable Snapshot of the
// account's ordered writable and readable region lists. The routing core
// only ever reads from the directory; updating it is the job of external
// collaborators:
//
//   - Refresher polls a Fetcher (the account-read call) at an interval and
//     on demand when the location cache signals refresh intent.
//   - NATS watches a JetStream KV key for topology documents published by
//     control-plane tooling.
//   - LoadFile parses a static YAML bootstrap topology for startup and
//     tests.
//   - Local is a programmable in-memory Fetcher for unit tests and demos.
package topology
