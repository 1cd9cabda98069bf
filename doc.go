// Package authcore is a storage-agnostic authentication core: it issues,
// rotates and revokes session credentials, drives one-time code flows
// (email and phone verification, password reset, magic links) and resolves
// federated-identity account linking.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config]
// and value types (AuthUser, FederatedLoginResult, MetricsSnapshot, etc.).
// Persistence is reached only through the store interfaces, delivery only
// through the delivery package. The algorithms live under internal/flows.
//
// # What this package must NOT do
//
//   - Persist plaintext refresh tokens, codes or magic-link tokens.
//   - Cache users or tokens between calls.
//   - Import any sub-package that re-imports authcore (no import cycles).
package authcore
