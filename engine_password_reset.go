package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/delivery"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/store"
)

type resetChannel struct {
	kind   CodeKind
	medium delivery.Medium
	ttl    time.Duration
}

func (e *Engine) resetChannelFor(identifier Identifier) (resetChannel, error) {
	switch identifier.Kind {
	case IdentifierEmail:
		if !e.delivery.CanEmail() {
			return resetChannel{}, ErrEmailDeliveryNotConfigured
		}
		return resetChannel{kind: store.CodeEmailReset, medium: delivery.MediumEmail, ttl: e.config.PasswordReset.EmailTTL}, nil
	case IdentifierPhone:
		if !e.delivery.CanSMS() {
			return resetChannel{}, ErrPhoneDeliveryNotConfigured
		}
		return resetChannel{kind: store.CodePhoneReset, medium: delivery.MediumSMS, ttl: e.config.PasswordReset.PhoneTTL}, nil
	default:
		return resetChannel{}, ErrUnsupportedIdentifier
	}
}

// RequestPasswordReset sends a numeric reset code to an email address or
// phone number, replacing any outstanding reset code for it.
func (e *Engine) RequestPasswordReset(ctx context.Context, identifier Identifier) error {
	if err := e.ready(); err != nil {
		return err
	}

	ch, err := e.resetChannelFor(identifier)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", identifier.String(), err, nil)
		return err
	}

	user, err := e.users.FindByIdentifier(ctx, identifier)
	if err != nil {
		mapped := storeError(err, ErrUserNotFound)
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", identifier.String(), mapped, nil)
		return mapped
	}

	plaintext, code, err := e.requestCode(ctx, flows.CodeRequest{
		Kind:       ch.kind,
		Identifier: identifier.Value,
		UserID:     user.UserID,
		TTL:        ch.ttl,
	})
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, user.UserID, identifier.String(), err, nil)
		return err
	}

	err = e.dispatch(ctx, delivery.Job{
		Purpose:   delivery.PurposePasswordReset,
		Medium:    ch.medium,
		To:        identifier.Value,
		Code:      plaintext,
		UserID:    user.UserID,
		ExpiresAt: code.ExpiresAt,
	}, e.config.PasswordReset.Async, e.config.PasswordReset.MaxRetries)
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetRequest, false, user.UserID, identifier.String(), err, nil)
		return err
	}

	e.metricInc(MetricPasswordResetRequested)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.UserID, identifier.String(), nil, nil)
	return nil
}

// ConfirmPasswordReset sets a new password when code matches the
// outstanding reset code for identifier. With PasswordReset.RevokeSessions
// every refresh token of the user is revoked afterwards.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, identifier Identifier, code, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}

	ch, err := e.resetChannelFor(identifier)
	if err != nil {
		return err
	}

	var userID string
	_, err = e.verifyCode(ctx, flows.CodeVerification{
		Kind:        ch.kind,
		Identifier:  identifier.Value,
		Plaintext:   code,
		MaxAttempts: e.config.PasswordReset.MaxAttempts,
	}, func(ctx context.Context, c store.OneTimeCode) error {
		hash, err := e.hasher.Hash(newPassword)
		if err != nil {
			return err
		}
		if err := e.users.SetPassword(ctx, c.UserID, hash); err != nil {
			return storeError(err, ErrUserNotFound)
		}
		userID = c.UserID
		return nil
	})
	if err != nil {
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", identifier.String(), err, nil)
		return err
	}

	if e.config.PasswordReset.RevokeSessions {
		n, err := e.tokens.RevokeUserRefreshTokens(ctx, userID)
		if err != nil {
			e.logger.WarnContext(ctx, "session revocation after password reset failed", "user_id", userID, "error", err)
		}
		e.metricAdd(MetricTokensRevoked, n)
	}

	e.metricInc(MetricPasswordResetConfirmed)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, userID, identifier.String(), nil, nil)
	return nil
}

func (e *Engine) checkPasswordPolicy(password string) error {
	lo, hi := e.config.Password.lengthLimits()
	if len(password) < lo || len(password) > hi {
		return ErrPasswordPolicy
	}
	return nil
}
