package authcore

import (
	"context"

	"github.com/MrEthical07/authcore/store"
)

// Register creates a password user for identifier and signs them in. With
// Verification.SendOnRegister a verification code goes to email and phone
// identifiers; a failed send is logged and counted, never returned.
func (e *Engine) Register(ctx context.Context, identifier Identifier, password string) (AuthUser, error) {
	if err := e.ready(); err != nil {
		return AuthUser{}, err
	}
	switch identifier.Kind {
	case IdentifierEmail, IdentifierPhone, IdentifierUsername:
	default:
		return AuthUser{}, ErrUnsupportedIdentifier
	}
	if identifier.Value == "" {
		return AuthUser{}, ErrUnsupportedIdentifier
	}
	if err := e.checkPasswordPolicy(password); err != nil {
		return AuthUser{}, err
	}

	hash, err := e.hasher.Hash(password)
	if err != nil {
		return AuthUser{}, err
	}

	user, err := e.users.Create(ctx, identifier, store.PasswordCredential(hash))
	if err != nil {
		mapped := storeError(err, nil)
		e.emitAudit(ctx, auditEventRegistration, false, "", identifier.String(), mapped, nil)
		return AuthUser{}, mapped
	}
	e.metricInc(MetricRegistration)
	e.emitAudit(ctx, auditEventRegistration, true, user.UserID, identifier.String(), nil, nil)

	if e.config.Verification.SendOnRegister && identifier.Kind != IdentifierUsername {
		if sendErr := e.SendVerificationCode(ctx, user.UserID, identifier.Kind); sendErr != nil {
			e.metricInc(MetricDeliverySuppressed)
			e.logger.WarnContext(ctx, "verification send after registration failed",
				"user_id", user.UserID,
				"kind", identifier.Kind.String(),
				"error", sendErr,
			)
		}
	}

	return e.issueFor(ctx, user, false)
}
