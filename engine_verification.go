package authcore

import (
	"context"
	"time"

	"github.com/MrEthical07/authcore/delivery"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/store"
)

// verificationChannel captures what differs between email and phone
// verification.
type verificationChannel struct {
	kind          CodeKind
	medium        delivery.Medium
	ttl           time.Duration
	notConfigured error
	notSet        error
	already       error
	address       func(UserRecord) string
	verified      func(UserRecord) bool
	mark          func(context.Context, string) error
}

func (e *Engine) emailChannel() verificationChannel {
	return verificationChannel{
		kind:          store.CodeEmailVerification,
		medium:        delivery.MediumEmail,
		ttl:           e.config.Verification.EmailTTL,
		notConfigured: ErrEmailDeliveryNotConfigured,
		notSet:        ErrEmailNotSet,
		already:       ErrEmailAlreadyVerified,
		address:       func(u UserRecord) string { return u.Email },
		verified:      func(u UserRecord) bool { return u.EmailVerified },
		mark:          e.users.MarkEmailVerified,
	}
}

func (e *Engine) phoneChannel() verificationChannel {
	return verificationChannel{
		kind:          store.CodePhoneVerification,
		medium:        delivery.MediumSMS,
		ttl:           e.config.Verification.PhoneTTL,
		notConfigured: ErrPhoneDeliveryNotConfigured,
		notSet:        ErrPhoneNotSet,
		already:       ErrPhoneAlreadyVerified,
		address:       func(u UserRecord) string { return u.Phone },
		verified:      func(u UserRecord) bool { return u.PhoneVerified },
		mark:          e.users.MarkPhoneVerified,
	}
}

func (e *Engine) channelConfigured(ch verificationChannel) bool {
	if ch.medium == delivery.MediumSMS {
		return e.delivery.CanSMS()
	}
	return e.delivery.CanEmail()
}

// SendEmailCode sends a verification code to the user's email address,
// replacing any code sent earlier.
func (e *Engine) SendEmailCode(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.sendVerification(ctx, userID, e.emailChannel())
}

// SendPhoneCode sends a verification code to the user's phone number,
// replacing any code sent earlier.
func (e *Engine) SendPhoneCode(ctx context.Context, userID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.sendVerification(ctx, userID, e.phoneChannel())
}

// ResendEmailCode invalidates the outstanding email code and sends a new one.
func (e *Engine) ResendEmailCode(ctx context.Context, userID string) error {
	return e.SendEmailCode(ctx, userID)
}

// ResendPhoneCode invalidates the outstanding phone code and sends a new one.
func (e *Engine) ResendPhoneCode(ctx context.Context, userID string) error {
	return e.SendPhoneCode(ctx, userID)
}

// SendVerificationCode dispatches on kind. Usernames and federated
// identifiers need no verification and return nil.
func (e *Engine) SendVerificationCode(ctx context.Context, userID string, kind IdentifierKind) error {
	switch kind {
	case IdentifierEmail:
		return e.SendEmailCode(ctx, userID)
	case IdentifierPhone:
		return e.SendPhoneCode(ctx, userID)
	case IdentifierUsername, IdentifierFederated:
		return nil
	default:
		return ErrUnsupportedIdentifier
	}
}

func (e *Engine) sendVerification(ctx context.Context, userID string, ch verificationChannel) error {
	if !e.channelConfigured(ch) {
		e.emitAudit(ctx, auditEventVerificationRequest, false, userID, "", ch.notConfigured, nil)
		return ch.notConfigured
	}

	user, err := e.findUser(ctx, userID)
	if err != nil {
		return err
	}

	address := ch.address(user)
	if address == "" {
		e.emitAudit(ctx, auditEventVerificationRequest, false, userID, "", ch.notSet, nil)
		return ch.notSet
	}
	if ch.verified(user) {
		e.emitAudit(ctx, auditEventVerificationRequest, false, userID, address, ch.already, nil)
		return ch.already
	}

	plaintext, code, err := e.requestCode(ctx, flows.CodeRequest{
		Kind:       ch.kind,
		Identifier: address,
		UserID:     userID,
		TTL:        ch.ttl,
	})
	if err != nil {
		e.emitAudit(ctx, auditEventVerificationRequest, false, userID, address, err, nil)
		return err
	}

	err = e.dispatch(ctx, delivery.Job{
		Purpose:   delivery.PurposeVerification,
		Medium:    ch.medium,
		To:        address,
		Code:      plaintext,
		UserID:    userID,
		ExpiresAt: code.ExpiresAt,
	}, e.config.Verification.Async, e.config.Verification.MaxRetries)
	if err != nil {
		e.emitAudit(ctx, auditEventVerificationRequest, false, userID, address, err, nil)
		return err
	}

	e.metricInc(MetricVerificationSent)
	e.emitAudit(ctx, auditEventVerificationRequest, true, userID, address, nil, func() map[string]string {
		return map[string]string{"kind": ch.kind.String()}
	})
	return nil
}

// VerifyEmailCode checks code against the user's outstanding email code and
// marks the email verified on success.
func (e *Engine) VerifyEmailCode(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.confirmVerification(ctx, userID, code, e.emailChannel())
}

// VerifyPhoneCode checks code against the user's outstanding phone code and
// marks the phone verified on success.
func (e *Engine) VerifyPhoneCode(ctx context.Context, userID, code string) error {
	if err := e.ready(); err != nil {
		return err
	}
	return e.confirmVerification(ctx, userID, code, e.phoneChannel())
}

func (e *Engine) confirmVerification(ctx context.Context, userID, plaintext string, ch verificationChannel) error {
	user, err := e.findUser(ctx, userID)
	if err != nil {
		return err
	}
	address := ch.address(user)
	if address == "" {
		return ch.notSet
	}

	_, err = e.verifyCode(ctx, flows.CodeVerification{
		Kind:        ch.kind,
		Identifier:  address,
		Plaintext:   plaintext,
		MaxAttempts: e.config.Verification.MaxAttempts,
	}, func(ctx context.Context, _ store.OneTimeCode) error {
		return storeError(ch.mark(ctx, userID), ErrUserNotFound)
	})
	if err != nil {
		e.emitAudit(ctx, auditEventVerificationConfirm, false, userID, address, err, nil)
		return err
	}

	e.metricInc(MetricVerificationConfirmed)
	e.emitAudit(ctx, auditEventVerificationConfirm, true, userID, address, nil, func() map[string]string {
		return map[string]string{"kind": ch.kind.String()}
	})
	return nil
}
