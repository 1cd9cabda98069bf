// Package internal groups helpers that are private to authcore.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - flows: the code engine, token service and account-linking algorithms
//   - ids: monotonic ULID record identifiers
//   - metrics: lock-free counters and latency histograms
//   - random: opaque tokens, numeric codes and lookup hashes
//
// # What this package must NOT do
//
//   - Export types that appear in the public authcore API except through aliases.
//   - Be imported by any package outside the authcore module.
package internal
