// Package memstore implements the authcore store interfaces in process
// memory. Every method takes one mutex, which makes each call atomic and
// gives the same guarantees the Redis and PostgreSQL backends provide with
// scripts and transactions.
//
// It is intended for tests, examples and single-instance deployments.
package memstore
