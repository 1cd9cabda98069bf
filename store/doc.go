// Package store defines the persisted authcore model and the storage
// interfaces the engine consumes.
//
// # Architecture boundaries
//
// This package owns record shapes (refresh tokens, one-time codes, user
// records) and the UserStore, TokenStore and CodeStore contracts. Concrete
// backends live in subpackages: memstore (in-process), redisstore (Redis)
// and pgstore (PostgreSQL).
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Import authcore or any backend package.
//   - Hold plaintext secrets; every token and code is addressed by its hash.
package store
