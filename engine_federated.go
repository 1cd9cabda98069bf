package authcore

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/store"
)

// FederatedLogin signs in a user asserted by an identity provider. A
// returning identity gets tokens directly. Otherwise the account-linking
// strategy decides between linking to an existing user, creating a new one,
// or asking the caller to choose (FederatedSelectionRequired).
func (e *Engine) FederatedLogin(ctx context.Context, identity FederatedIdentity) (FederatedLoginResult, error) {
	if err := e.ready(); err != nil {
		return FederatedLoginResult{}, err
	}
	if identity.Identifier.Kind != IdentifierFederated || identity.Identifier.Value == "" {
		return FederatedLoginResult{}, ErrUnsupportedIdentifier
	}

	decision, err := flows.ResolveLink(ctx, userFinder{e.users}, identity.link(), e.config.AccountLinking.policy())
	if err != nil {
		return FederatedLoginResult{}, storeError(err, nil)
	}

	switch decision.Outcome {
	case flows.LinkReturning:
		return e.finishFederated(ctx, identity, decision.User, FederatedReturning)
	case flows.LinkAttach:
		if err := e.users.LinkIdentifier(ctx, decision.User.UserID, identity.Identifier); err != nil {
			return FederatedLoginResult{}, storeError(err, ErrUserNotFound)
		}
		return e.finishFederated(ctx, identity, decision.User, FederatedLinked)
	case flows.LinkSelect:
		views := make([]UserView, 0, len(decision.Candidates))
		for _, c := range decision.Candidates {
			views = append(views, NewUserView(c))
		}
		e.metricInc(MetricFederatedSelectionRequired)
		e.emitAudit(ctx, auditEventFederatedLogin, true, "", identity.Identifier.String(), nil, func() map[string]string {
			return map[string]string{
				"outcome":    FederatedSelectionRequired.String(),
				"candidates": itoa(len(views)),
			}
		})
		return FederatedLoginResult{Outcome: FederatedSelectionRequired, Candidates: views}, nil
	default:
		user, err := e.createFederatedUser(ctx, identity)
		if err != nil {
			return FederatedLoginResult{}, err
		}
		return e.finishFederated(ctx, identity, user, FederatedCreated)
	}
}

// CompleteFederatedLink links identity to the user the caller selected
// after FederatedSelectionRequired and signs them in. userID must still be
// one of the candidates.
func (e *Engine) CompleteFederatedLink(ctx context.Context, identity FederatedIdentity, userID string) (FederatedLoginResult, error) {
	if err := e.ready(); err != nil {
		return FederatedLoginResult{}, err
	}
	policy := e.config.AccountLinking.policy()
	if policy.Mode == flows.LinkDisabled {
		return FederatedLoginResult{}, ErrAccountLinkingDisabled
	}
	if identity.Identifier.Kind != IdentifierFederated || identity.Identifier.Value == "" {
		return FederatedLoginResult{}, ErrUnsupportedIdentifier
	}

	candidates, err := flows.FindLinkCandidates(ctx, userFinder{e.users}, identity.link(), policy)
	if err != nil {
		return FederatedLoginResult{}, storeError(err, nil)
	}

	var selected *UserRecord
	for i := range candidates {
		if candidates[i].UserID == userID {
			selected = &candidates[i]
			break
		}
	}
	if selected == nil {
		e.emitAudit(ctx, auditEventFederatedLinkSelected, false, userID, identity.Identifier.String(), ErrLinkCandidateMismatch, nil)
		return FederatedLoginResult{}, ErrLinkCandidateMismatch
	}

	if err := e.users.LinkIdentifier(ctx, selected.UserID, identity.Identifier); err != nil {
		return FederatedLoginResult{}, storeError(err, ErrUserNotFound)
	}
	e.emitAudit(ctx, auditEventFederatedLinkSelected, true, selected.UserID, identity.Identifier.String(), nil, nil)
	return e.finishFederated(ctx, identity, *selected, FederatedLinked)
}

// CompleteFederatedSignup creates a new user for identity, declining every
// link candidate, and signs them in.
func (e *Engine) CompleteFederatedSignup(ctx context.Context, identity FederatedIdentity) (FederatedLoginResult, error) {
	if err := e.ready(); err != nil {
		return FederatedLoginResult{}, err
	}
	if identity.Identifier.Kind != IdentifierFederated || identity.Identifier.Value == "" {
		return FederatedLoginResult{}, ErrUnsupportedIdentifier
	}

	user, err := e.createFederatedUser(ctx, identity)
	if err != nil {
		return FederatedLoginResult{}, err
	}
	e.emitAudit(ctx, auditEventFederatedSignupSelected, true, user.UserID, identity.Identifier.String(), nil, nil)
	return e.finishFederated(ctx, identity, user, FederatedCreated)
}

// createFederatedUser creates a user owning identity and attaches the first
// verified email and phone that no other user owns, already verified.
func (e *Engine) createFederatedUser(ctx context.Context, identity FederatedIdentity) (UserRecord, error) {
	user, err := e.users.Create(ctx, identity.Identifier, nil)
	if err != nil {
		return UserRecord{}, storeError(err, nil)
	}
	user.DisplayName = identity.DisplayName
	user.PictureURL = identity.PictureURL

	if len(identity.VerifiedEmails) > 0 {
		email := EmailIdentifier(identity.VerifiedEmails[0])
		if ok, err := e.attachVerified(ctx, user.UserID, email, e.users.MarkEmailVerified); err != nil {
			return UserRecord{}, err
		} else if ok {
			user.Email, user.EmailVerified = email.Value, true
		}
	}
	if len(identity.VerifiedPhoneNumbers) > 0 {
		phone := PhoneIdentifier(identity.VerifiedPhoneNumbers[0])
		if ok, err := e.attachVerified(ctx, user.UserID, phone, e.users.MarkPhoneVerified); err != nil {
			return UserRecord{}, err
		} else if ok {
			user.Phone, user.PhoneVerified = phone.Value, true
		}
	}

	e.metricInc(MetricRegistration)
	return user, nil
}

func (e *Engine) attachVerified(ctx context.Context, userID string, id Identifier, mark func(context.Context, string) error) (bool, error) {
	if id.Value == "" {
		return false, nil
	}
	err := e.users.LinkIdentifier(ctx, userID, id)
	if errors.Is(err, store.ErrDuplicate) {
		e.logger.DebugContext(ctx, "federated profile identifier already owned", "user_id", userID, "kind", id.Kind.String())
		return false, nil
	}
	if err != nil {
		return false, storeError(err, ErrUserNotFound)
	}
	if err := mark(ctx, userID); err != nil {
		return false, storeError(err, ErrUserNotFound)
	}
	return true, nil
}

func (e *Engine) finishFederated(ctx context.Context, identity FederatedIdentity, user UserRecord, outcome FederatedOutcome) (FederatedLoginResult, error) {
	auth, err := e.issueFor(ctx, user, false)
	if err != nil {
		e.emitAudit(ctx, auditEventFederatedLogin, false, user.UserID, identity.Identifier.String(), err, nil)
		return FederatedLoginResult{}, err
	}

	switch outcome {
	case FederatedReturning:
		e.metricInc(MetricFederatedReturning)
	case FederatedLinked:
		e.metricInc(MetricFederatedLinked)
	case FederatedCreated:
		e.metricInc(MetricFederatedCreated)
	}
	e.emitAudit(ctx, auditEventFederatedLogin, true, user.UserID, identity.Identifier.String(), nil, func() map[string]string {
		return map[string]string{"outcome": outcome.String()}
	})
	return FederatedLoginResult{Outcome: outcome, Auth: &auth}, nil
}
