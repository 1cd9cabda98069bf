// Package redisstore implements store.TokenStore and store.CodeStore on
// Redis.
//
// # Architecture boundaries
//
// Conditional transitions (refresh rotation, bulk revocation, failed-attempt
// counting, code consumption) run as Lua scripts so each one is a single
// atomic Redis step. Plain writes use MULTI pipelines.
//
// Records are Redis hashes. Times are stored as unix milliseconds and key
// lifetimes are relative TTLs, so the engine clock and the Redis clock need
// not agree.
//
// # What this package must NOT do
//
//   - Import authcore.
//   - Store plaintext tokens or codes.
//   - Span keys across cluster slots: run it against a single node, a
//     replicated primary or a Sentinel setup.
package redisstore
