package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/MrEthical07/authcore"
)

const defaultStateTTL = 10 * time.Minute

var ErrExchange = errors.New("oauth code exchange failed")

// Flow runs the authorization-code dance for one provider.
type Flow struct {
	provider *Provider
	states   StateStore
	stateTTL time.Duration
}

func NewFlow(provider *Provider, states StateStore) *Flow {
	return &Flow{provider: provider, states: states, stateTTL: defaultStateTTL}
}

// WithStateTTL overrides how long a started login stays valid.
func (f *Flow) WithStateTTL(ttl time.Duration) *Flow {
	if ttl > 0 {
		f.stateTTL = ttl
	}
	return f
}

// Begin returns the URL to redirect the browser to and the state value the
// caller should bind to the browser, typically in a short-lived cookie.
func (f *Flow) Begin(ctx context.Context) (redirectURL, state string, err error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate oauth state: %w", err)
	}
	state = base64.RawURLEncoding.EncodeToString(raw)
	verifier := oauth2.GenerateVerifier()

	if err := f.states.Save(ctx, state, verifier, f.stateTTL); err != nil {
		return "", "", err
	}
	return f.provider.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)), state, nil
}

// Complete validates state, exchanges code and returns the asserted identity.
func (f *Flow) Complete(ctx context.Context, state, code string) (authcore.FederatedIdentity, error) {
	if state == "" || code == "" {
		return authcore.FederatedIdentity{}, ErrStateNotFound
	}
	verifier, err := f.states.Take(ctx, state)
	if err != nil {
		return authcore.FederatedIdentity{}, err
	}

	token, err := f.provider.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return authcore.FederatedIdentity{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	info, err := f.provider.fetchUserInfo(ctx, token)
	if err != nil {
		return authcore.FederatedIdentity{}, err
	}
	return f.provider.identity(info), nil
}
