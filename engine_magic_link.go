package authcore

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/url"

	"github.com/MrEthical07/authcore/delivery"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/store"
)

// RequestEmailMagicLink emails a single-use sign-in link. With
// MagicLink.RequireSameBrowser the returned challenge carries a session
// token the host must keep in the requesting browser.
func (e *Engine) RequestEmailMagicLink(ctx context.Context, email string) (MagicLinkChallenge, error) {
	if err := e.ready(); err != nil {
		return MagicLinkChallenge{}, err
	}
	if !e.config.MagicLink.Enabled {
		return MagicLinkChallenge{}, ErrMagicLinkDisabled
	}
	if !e.delivery.CanEmail() {
		return MagicLinkChallenge{}, ErrEmailDeliveryNotConfigured
	}

	id := EmailIdentifier(email)
	if id.Value == "" {
		return MagicLinkChallenge{}, ErrEmailNotSet
	}

	var userID string
	user, err := e.users.FindByIdentifier(ctx, id)
	switch {
	case err == nil:
		userID = user.UserID
	case errors.Is(err, store.ErrNotFound):
		if !e.config.MagicLink.AutoCreateUser {
			e.emitAudit(ctx, auditEventMagicLinkRequest, false, "", id.Value, ErrMagicLinkEmailNotFound, nil)
			return MagicLinkChallenge{}, ErrMagicLinkEmailNotFound
		}
	default:
		return MagicLinkChallenge{}, storeError(err, nil)
	}

	challenge := MagicLinkChallenge{Email: id.Value}
	var sessionHash string
	if e.config.MagicLink.RequireSameBrowser {
		sessionToken, err := e.random.GenerateOpaqueToken()
		if err != nil {
			return MagicLinkChallenge{}, err
		}
		challenge.SessionToken = sessionToken
		sessionHash = e.random.Hash(sessionToken)
	}

	plaintext, code, err := e.requestCode(ctx, flows.CodeRequest{
		Kind:             store.CodeMagicLink,
		Identifier:       id.Value,
		UserID:           userID,
		Opaque:           true,
		SessionTokenHash: sessionHash,
		TTL:              e.config.MagicLink.TTL,
	})
	if err != nil {
		e.emitAudit(ctx, auditEventMagicLinkRequest, false, userID, id.Value, err, nil)
		return MagicLinkChallenge{}, err
	}

	link, err := magicLinkURL(e.config.MagicLink.BaseURL, plaintext)
	if err != nil {
		return MagicLinkChallenge{}, err
	}

	err = e.dispatch(ctx, delivery.Job{
		Purpose:   delivery.PurposeMagicLink,
		Medium:    delivery.MediumEmail,
		To:        id.Value,
		Link:      link,
		UserID:    userID,
		ExpiresAt: code.ExpiresAt,
	}, e.config.MagicLink.Async, e.config.MagicLink.MaxRetries)
	if err != nil {
		e.emitAudit(ctx, auditEventMagicLinkRequest, false, userID, id.Value, err, nil)
		return MagicLinkChallenge{}, err
	}

	e.metricInc(MetricMagicLinkSent)
	e.emitAudit(ctx, auditEventMagicLinkRequest, true, userID, id.Value, nil, nil)
	return challenge, nil
}

// VerifyEmailMagicLink signs the user in with a magic-link token.
// sessionToken is the value returned in MagicLinkChallenge and is ignored
// unless the link was bound to a browser. A link opened in another browser
// is rejected and charged one attempt; after MagicLink.MaxAttempts such
// failures it stops working.
func (e *Engine) VerifyEmailMagicLink(ctx context.Context, token, sessionToken string) (AuthUser, error) {
	if err := e.ready(); err != nil {
		return AuthUser{}, err
	}
	if !e.config.MagicLink.Enabled {
		return AuthUser{}, ErrMagicLinkDisabled
	}

	var user UserRecord
	code, err := e.verifyCode(ctx, flows.CodeVerification{
		Kind:        store.CodeMagicLink,
		Plaintext:   token,
		MaxAttempts: e.config.MagicLink.MaxAttempts,
		Bind: func(code store.OneTimeCode) error {
			if code.SessionTokenHash == "" {
				return nil
			}
			presented := e.random.Hash(sessionToken)
			if sessionToken == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(code.SessionTokenHash)) != 1 {
				e.metricInc(MetricMagicLinkBrowserMismatch)
				return ErrMagicLinkDifferentBrowser
			}
			return nil
		},
	}, func(ctx context.Context, code store.OneTimeCode) error {
		resolved, err := e.resolveMagicLinkUser(ctx, code)
		if err != nil {
			return err
		}
		if !resolved.EmailVerified {
			if err := e.users.MarkEmailVerified(ctx, resolved.UserID); err != nil {
				return storeError(err, ErrUserNotFound)
			}
			resolved.EmailVerified = true
			// The link proved the address; a pending verification code is moot.
			if err := e.flows.Codes.Store.InvalidateCodes(ctx, store.CodeEmailVerification, code.Identifier); err != nil {
				e.warn(ctx, "email verification code invalidation failed", "user_id", resolved.UserID, "error", err)
			}
		}
		user = resolved
		return nil
	})
	if err != nil {
		e.emitAudit(ctx, auditEventMagicLinkConfirm, false, code.UserID, code.Identifier, err, nil)
		return AuthUser{}, err
	}

	auth, err := e.issueFor(ctx, user, e.config.MagicLink.RevokeExisting)
	if err != nil {
		return AuthUser{}, err
	}

	e.metricInc(MetricMagicLinkVerified)
	e.emitAudit(ctx, auditEventMagicLinkConfirm, true, user.UserID, code.Identifier, nil, nil)
	return auth, nil
}

func (e *Engine) resolveMagicLinkUser(ctx context.Context, code store.OneTimeCode) (UserRecord, error) {
	if code.UserID != "" {
		user, err := e.users.FindByID(ctx, code.UserID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return UserRecord{}, storeError(err, nil)
		}
	}

	user, err := e.users.FindByIdentifier(ctx, EmailIdentifier(code.Identifier))
	switch {
	case err == nil:
		return user, nil
	case !errors.Is(err, store.ErrNotFound):
		return UserRecord{}, storeError(err, nil)
	}

	if !e.config.MagicLink.AutoCreateUser {
		return UserRecord{}, ErrMagicLinkEmailNotFound
	}
	created, err := e.users.CreateWithEmail(ctx, code.Identifier, true)
	if err != nil {
		return UserRecord{}, storeError(err, nil)
	}
	e.metricInc(MetricRegistration)
	return created, nil
}

func magicLinkURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
