// Package flows holds the authentication algorithms behind every Engine
// operation.
//
// Each flow (RunIssue, RunRefresh, RequestCode, VerifyCode, ResolveLink)
// takes a typed dependency struct built once by the root engine and returns a
// result or classified failure. The root package maps failures onto its
// public error sentinels, metrics and audit events.
//
// # Architecture boundaries
//
// Flows coordinate the token and code stores, the random/hash provider and
// the access-token signer. They do NOT own any of these resources; ownership
// stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Deliver codes; delivery happens after persistence, in the engine.
package flows
