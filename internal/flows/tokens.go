package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// RefreshFailureKind classifies refresh failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureNotFound
	RefreshFailureReuse
	RefreshFailureStore
	RefreshFailureIssue
	RefreshFailureRejected
)

// TokenDeps captures token service dependencies.
type TokenDeps struct {
	Store               store.TokenStore
	Secrets             Secrets
	NewID               func() string
	Now                 func() time.Time
	RefreshTTL          time.Duration
	RevokeFamilyOnReuse bool
	IssueAccessToken    func(userID string) (string, error)
	Warn                func(context.Context, string, ...any)
	// BeforeRotate runs on a valid token before it is rotated. An error
	// aborts the refresh and leaves the token usable.
	BeforeRotate func(ctx context.Context, current store.RefreshToken) error
}

// IssueResult carries a freshly minted token pair.
type IssueResult struct {
	AccessToken  string
	RefreshToken string
	Record       store.RefreshToken
	Revoked      int
}

// RefreshResult carries either the rotated token pair or failure metadata.
type RefreshResult struct {
	Failure       RefreshFailureKind
	Err           error
	UserID        string
	FamilyID      string
	FamilyRevoked int
	AccessToken   string
	RefreshToken  string
	Record        store.RefreshToken
}

// RunIssue mints an access token and the root refresh token of a new family.
// When revokeExisting is set every live refresh token of userID is revoked
// first.
func RunIssue(ctx context.Context, userID string, revokeExisting bool, deps TokenDeps) (IssueResult, error) {
	var result IssueResult
	if revokeExisting {
		n, err := deps.Store.RevokeUserRefreshTokens(ctx, userID)
		if err != nil {
			return result, err
		}
		result.Revoked = n
	}

	opaque, err := deps.Secrets.GenerateOpaqueToken()
	if err != nil {
		return result, err
	}

	now := nowFrom(deps.Now)
	id := deps.NewID()
	record := store.RefreshToken{
		ID:        id,
		TokenHash: deps.Secrets.Hash(opaque),
		UserID:    userID,
		FamilyID:  id,
		ExpiresAt: now.Add(deps.RefreshTTL),
		CreatedAt: now,
	}
	if err := deps.Store.CreateRefreshToken(ctx, record); err != nil {
		return result, err
	}

	access, err := deps.IssueAccessToken(userID)
	if err != nil {
		return result, err
	}

	result.AccessToken = access
	result.RefreshToken = opaque
	result.Record = record
	return result, nil
}

// RunRefresh exchanges a refresh token for its successor.
//
// A token that is found but no longer valid, or that loses a concurrent
// rotation, is treated as reuse: the whole family is revoked (when enabled)
// before the failure is returned.
func RunRefresh(ctx context.Context, refreshToken string, deps TokenDeps) RefreshResult {
	presentedHash := deps.Secrets.Hash(refreshToken)

	current, err := deps.Store.FindRefreshToken(ctx, presentedHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err}
	}

	now := nowFrom(deps.Now)
	if !current.Valid(now) {
		return reuse(ctx, current, deps, errors.New("refresh token is no longer valid"))
	}
	if deps.BeforeRotate != nil {
		if err := deps.BeforeRotate(ctx, current); err != nil {
			return RefreshResult{Failure: RefreshFailureRejected, Err: err, UserID: current.UserID, FamilyID: current.FamilyID}
		}
	}

	opaque, err := deps.Secrets.GenerateOpaqueToken()
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: current.UserID, FamilyID: current.FamilyID}
	}

	successor := store.RefreshToken{
		ID:        deps.NewID(),
		TokenHash: deps.Secrets.Hash(opaque),
		UserID:    current.UserID,
		FamilyID:  current.FamilyID,
		ExpiresAt: now.Add(deps.RefreshTTL),
		CreatedAt: now,
	}

	if err := deps.Store.RotateRefreshToken(ctx, presentedHash, successor, now); err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			return reuse(ctx, current, deps, err)
		}
		return RefreshResult{Failure: RefreshFailureStore, Err: err, UserID: current.UserID, FamilyID: current.FamilyID}
	}

	access, err := deps.IssueAccessToken(current.UserID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, UserID: current.UserID, FamilyID: current.FamilyID}
	}

	return RefreshResult{
		Failure:      RefreshFailureNone,
		UserID:       current.UserID,
		FamilyID:     current.FamilyID,
		AccessToken:  access,
		RefreshToken: opaque,
		Record:       successor,
	}
}

func reuse(ctx context.Context, presented store.RefreshToken, deps TokenDeps, cause error) RefreshResult {
	result := RefreshResult{
		Failure:  RefreshFailureReuse,
		Err:      cause,
		UserID:   presented.UserID,
		FamilyID: presented.FamilyID,
	}
	if !deps.RevokeFamilyOnReuse {
		return result
	}

	n, err := deps.Store.RevokeRefreshTokenFamily(ctx, presented.FamilyID)
	if err != nil {
		warn(deps.Warn, ctx, "authcore: family revocation failed", "family_id", presented.FamilyID, "error", err)
		return result
	}
	result.FamilyRevoked = n
	return result
}

// RunRevoke revokes every live refresh token of userID. Zero tokens is not
// an error.
func RunRevoke(ctx context.Context, userID string, deps TokenDeps) (int, error) {
	return deps.Store.RevokeUserRefreshTokens(ctx, userID)
}
