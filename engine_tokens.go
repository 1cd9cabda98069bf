package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/store"
)

// Issue mints a fresh access token and the root refresh token of a new
// family for userID. With revokeExisting every live refresh token of the
// user is revoked first.
func (e *Engine) Issue(ctx context.Context, userID string, revokeExisting bool) (AuthUser, error) {
	if err := e.ready(); err != nil {
		return AuthUser{}, err
	}

	user, err := e.findUser(ctx, userID)
	if err != nil {
		return AuthUser{}, err
	}
	return e.issueFor(ctx, user, revokeExisting)
}

func (e *Engine) issueFor(ctx context.Context, user UserRecord, revokeExisting bool) (AuthUser, error) {
	issued, err := flows.RunIssue(ctx, user.UserID, revokeExisting, e.flows.Tokens)
	if err != nil {
		e.emitAudit(ctx, auditEventTokenIssued, false, user.UserID, "", err, nil)
		return AuthUser{}, storeError(err, nil)
	}

	e.metricInc(MetricTokenIssued)
	e.metricAdd(MetricTokensRevoked, issued.Revoked)
	e.emitAudit(ctx, auditEventTokenIssued, true, user.UserID, "", nil, func() map[string]string {
		return map[string]string{"family_id": issued.Record.FamilyID}
	})
	return e.authUser(user, issued.AccessToken, issued.RefreshToken), nil
}

// Refresh exchanges a refresh token for a new token pair. The presented
// token stops being valid. Presenting a token that was already rotated,
// revoked or has expired counts as reuse: the whole family is revoked (when
// Tokens.RevokeFamilyOnReuse is set) and ErrInvalidRefreshToken returned.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (AuthUser, error) {
	if err := e.ready(); err != nil {
		return AuthUser{}, err
	}
	if refreshToken == "" {
		e.metricInc(MetricRefreshFailure)
		return AuthUser{}, ErrRefreshTokenNotFound
	}

	var user UserRecord
	deps := e.flows.Tokens
	deps.BeforeRotate = func(ctx context.Context, current store.RefreshToken) error {
		found, err := e.findUser(ctx, current.UserID)
		if err != nil {
			return err
		}
		user = found
		return nil
	}

	start := time.Now()
	res := flows.RunRefresh(ctx, refreshToken, deps)
	if e.metrics != nil {
		e.metrics.Observe(MetricRefreshLatency, time.Since(start))
	}

	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureNotFound:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", ErrRefreshTokenNotFound, func() map[string]string {
			return map[string]string{"reason": "not_found"}
		})
		return AuthUser{}, ErrRefreshTokenNotFound
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshFailure)
		e.metricInc(MetricRefreshReuseDetected)
		e.metricAdd(MetricRefreshFamilyRevoked, res.FamilyRevoked)
		e.logger.WarnContext(ctx, "refresh token reuse detected",
			"user_id", res.UserID,
			"family_id", res.FamilyID,
			"revoked", res.FamilyRevoked,
		)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.UserID, "", ErrInvalidRefreshToken, func() map[string]string {
			return map[string]string{
				"family_id": res.FamilyID,
				"revoked":   itoa(res.FamilyRevoked),
			}
		})
		return AuthUser{}, ErrInvalidRefreshToken
	case flows.RefreshFailureRejected:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, "", res.Err, func() map[string]string {
			return map[string]string{"reason": "user_lookup"}
		})
		return AuthUser{}, res.Err
	default:
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.UserID, "", res.Err, func() map[string]string {
			return map[string]string{"reason": "rotate_failed"}
		})
		return AuthUser{}, storeError(res.Err, nil)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.UserID, "", nil, func() map[string]string {
		return map[string]string{"family_id": res.FamilyID}
	})
	return e.authUser(user, res.AccessToken, res.RefreshToken), nil
}

// Revoke revokes every live refresh token of userID. It succeeds when the
// user has none.
func (e *Engine) Revoke(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}

	n, err := flows.RunRevoke(ctx, userID, e.flows.Tokens)
	if err != nil {
		return storeError(err, nil)
	}
	e.metricAdd(MetricTokensRevoked, n)
	e.emitAudit(ctx, auditEventLogout, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": itoa(n)}
	})
	return nil
}

// Logout is Revoke.
func (e *Engine) Logout(ctx context.Context, userID string) error {
	return e.Revoke(ctx, userID)
}

// RevokeRefreshToken revokes the single refresh token presented, for
// signing out one device. Unknown tokens are ignored.
func (e *Engine) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	if err := e.ready(); err != nil {
		return err
	}
	err := e.tokens.RevokeRefreshToken(ctx, e.random.Hash(refreshToken))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeError(err, nil)
	}
	return nil
}

// Login verifies a password for identifier and issues tokens. Unknown
// identifiers and wrong passwords both yield ErrInvalidCredentials.
func (e *Engine) Login(ctx context.Context, identifier Identifier, password string) (AuthUser, error) {
	if err := e.ready(); err != nil {
		return AuthUser{}, err
	}

	user, err := e.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		mapped := storeError(err, ErrInvalidCredentials)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", identifier.String(), mapped, nil)
		return AuthUser{}, mapped
	}

	if !user.HasPassword() {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, identifier.String(), ErrPasswordNotSet, nil)
		return AuthUser{}, ErrPasswordNotSet
	}

	ok, err := e.hasher.Verify(password, user.PasswordHash)
	if err != nil || !ok {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, user.UserID, identifier.String(), ErrInvalidCredentials, nil)
		return AuthUser{}, ErrInvalidCredentials
	}
	e.upgradePasswordHash(ctx, user, password)

	auth, err := e.issueFor(ctx, user, e.config.Tokens.RevokeExistingOnLogin)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		return AuthUser{}, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.UserID, identifier.String(), nil, nil)
	return auth, nil
}

// ValidateAccess verifies an access token's signature, expiry, issuer and
// audience.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AccessClaims, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	claims, err := e.signer.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// upgradePasswordHash rewrites a stored hash produced by a legacy algorithm
// or weaker parameters. Failures are logged; the login still succeeds.
func (e *Engine) upgradePasswordHash(ctx context.Context, user UserRecord, password string) {
	r, ok := e.hasher.(interface {
		NeedsRehash(encodedHash string) (bool, error)
	})
	if !ok {
		return
	}
	if needs, err := r.NeedsRehash(user.PasswordHash); err != nil || !needs {
		return
	}
	hash, err := e.hasher.Hash(password)
	if err == nil {
		err = e.users.SetPassword(ctx, user.UserID, hash)
	}
	if err != nil {
		e.warn(ctx, "password rehash failed", "user_id", user.UserID, "error", err)
	}
}
