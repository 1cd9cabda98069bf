package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authcore/store"
)

// LinkMode selects how a federated identity is matched to existing users.
type LinkMode uint8

const (
	LinkDisabled LinkMode = iota
	LinkAutomatic
	LinkManual
)

func (m LinkMode) String() string {
	switch m {
	case LinkAutomatic:
		return "automatic"
	case LinkManual:
		return "manual"
	default:
		return "disabled"
	}
}

// MultipleCandidatesPolicy decides automatic linking with more than one
// matching user.
type MultipleCandidatesPolicy uint8

const (
	FallbackManual MultipleCandidatesPolicy = iota
	FallbackNewUser
)

// LinkPolicy is the resolved account-linking strategy.
type LinkPolicy struct {
	Mode               LinkMode
	AllowedKinds       []store.IdentifierKind
	MultipleCandidates MultipleCandidatesPolicy
}

func (p LinkPolicy) allows(kind store.IdentifierKind) bool {
	for _, k := range p.AllowedKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// LinkOutcome is the decision for one federated login.
type LinkOutcome uint8

const (
	LinkReturning LinkOutcome = iota + 1
	LinkCreate
	LinkAttach
	LinkSelect
)

// LinkIdentity is the part of a federated identity linking looks at.
type LinkIdentity struct {
	Identifier     store.Identifier
	VerifiedEmails []string
	VerifiedPhones []string
}

// LinkDecision is the result of ResolveLink. User is set for LinkReturning
// and LinkAttach; Candidates for LinkSelect.
type LinkDecision struct {
	Outcome    LinkOutcome
	User       store.UserRecord
	Candidates []store.UserRecord
}

// UserFinder is the lookup the linking decision needs.
type UserFinder interface {
	FindByIdentifier(ctx context.Context, identifier store.Identifier) (store.UserRecord, error)
}

// ResolveLink decides what a federated login should do. It performs lookups
// only; the engine carries out the decision.
func ResolveLink(ctx context.Context, users UserFinder, identity LinkIdentity, policy LinkPolicy) (LinkDecision, error) {
	existing, err := users.FindByIdentifier(ctx, identity.Identifier)
	switch {
	case err == nil:
		return LinkDecision{Outcome: LinkReturning, User: existing}, nil
	case !errors.Is(err, store.ErrNotFound):
		return LinkDecision{}, err
	}

	if policy.Mode == LinkDisabled {
		return LinkDecision{Outcome: LinkCreate}, nil
	}

	candidates, err := FindLinkCandidates(ctx, users, identity, policy)
	if err != nil {
		return LinkDecision{}, err
	}

	if len(candidates) == 0 {
		return LinkDecision{Outcome: LinkCreate}, nil
	}

	if policy.Mode == LinkManual {
		return LinkDecision{Outcome: LinkSelect, Candidates: candidates}, nil
	}

	if len(candidates) == 1 {
		return LinkDecision{Outcome: LinkAttach, User: candidates[0]}, nil
	}

	if policy.MultipleCandidates == FallbackNewUser {
		return LinkDecision{Outcome: LinkCreate}, nil
	}
	return LinkDecision{Outcome: LinkSelect, Candidates: candidates}, nil
}

// FindLinkCandidates returns the distinct users owning one of the identity's
// verified emails or phone numbers, restricted to the kinds the policy
// allows, in discovery order.
func FindLinkCandidates(ctx context.Context, users UserFinder, identity LinkIdentity, policy LinkPolicy) ([]store.UserRecord, error) {
	var lookups []store.Identifier
	if policy.allows(store.IdentifierEmail) {
		for _, email := range identity.VerifiedEmails {
			lookups = append(lookups, store.EmailIdentifier(email))
		}
	}
	if policy.allows(store.IdentifierPhone) {
		for _, phone := range identity.VerifiedPhones {
			lookups = append(lookups, store.PhoneIdentifier(phone))
		}
	}

	seen := make(map[string]struct{}, len(lookups))
	candidates := make([]store.UserRecord, 0, len(lookups))
	for _, id := range lookups {
		if id.Value == "" {
			continue
		}
		user, err := users.FindByIdentifier(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if _, dup := seen[user.UserID]; dup {
			continue
		}
		seen[user.UserID] = struct{}{}
		candidates = append(candidates, user)
	}
	return candidates, nil
}
