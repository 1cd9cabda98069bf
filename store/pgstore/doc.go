// Package pgstore implements store.UserStore and store.TokenStore on
// PostgreSQL through database/sql and the pgx driver.
//
// # Architecture boundaries
//
// Schema changes ship as embedded goose migrations (see Migrate). Queries
// are built with squirrel using dollar placeholders and scanned with
// scany. Unique violations map to store.ErrDuplicate (users) or
// store.ErrConflict (tokens).
//
// Refresh rotation is a conditional UPDATE plus the successor INSERT in one
// transaction, so exactly one concurrent rotation of a token commits.
//
// # What this package must NOT do
//
//   - Import authcore.
//   - Store one-time codes; those are short-lived and belong in Redis or
//     memory.
package pgstore
