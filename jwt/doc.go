// Package jwt signs and verifies authcore access tokens.
//
// Access tokens are stateless: a claim set of subject, issuer, expiry,
// optional audience and optional scope, signed with Ed25519 (default) or
// HS256. They are never persisted and are verified by signature and expiry.
package jwt
