package store

import (
	"context"
	"time"
)

// UserStore is implemented by the host's persistence layer. Lookups return
// ErrNotFound when nothing matches; identifier collisions return
// ErrDuplicate.
type UserStore interface {
	Create(ctx context.Context, identifier Identifier, credential *Credential) (UserRecord, error)
	CreateWithEmail(ctx context.Context, email string, verified bool) (UserRecord, error)
	CreateWithPhone(ctx context.Context, phone string, verified bool) (UserRecord, error)
	FindByID(ctx context.Context, userID string) (UserRecord, error)
	FindByIdentifier(ctx context.Context, identifier Identifier) (UserRecord, error)
	MarkEmailVerified(ctx context.Context, userID string) error
	MarkPhoneVerified(ctx context.Context, userID string) error
	SetPassword(ctx context.Context, userID string, passwordHash string) error
	LinkIdentifier(ctx context.Context, userID string, identifier Identifier) error
}

// TokenStore persists refresh tokens.
//
// RotateRefreshToken must be atomic per presented token: it succeeds only
// while the presented token is unrevoked, unreplaced and unexpired at now,
// marks it replaced by successor.ID and stores successor in one step.
// Otherwise it returns ErrConflict (or ErrNotFound when the hash is unknown)
// and stores nothing.
type TokenStore interface {
	CreateRefreshToken(ctx context.Context, token RefreshToken) error
	FindRefreshToken(ctx context.Context, tokenHash string) (RefreshToken, error)
	RotateRefreshToken(ctx context.Context, presentedHash string, successor RefreshToken, now time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) (int, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	RevokeRefreshTokenFamily(ctx context.Context, familyID string) (int, error)
}

// CodeStore persists one-time codes of every kind behind one surface.
//
// CreateCode invalidates every earlier code for (code.Kind, code.Identifier)
// in the same atomic step that stores the new one.
//
// FindCode with an empty identifier looks the code up by hash alone.
//
// ConsumeCode invalidates a single code by id and returns ErrNotFound when it
// was already invalidated, so exactly one concurrent caller wins.
type CodeStore interface {
	CreateCode(ctx context.Context, code OneTimeCode) error
	FindCode(ctx context.Context, kind CodeKind, identifier, codeHash string) (OneTimeCode, error)
	IncrementFailedAttempts(ctx context.Context, kind CodeKind, identifier string) (int, error)
	ConsumeCode(ctx context.Context, kind CodeKind, codeID string) error
	InvalidateCodes(ctx context.Context, kind CodeKind, identifier string) error
}
