package authcore

import (
	"context"
	"errors"
	"testing"
)

func googleIdentity(subject string, emails, phones []string) FederatedIdentity {
	return FederatedIdentity{
		Identifier:           FederatedIdentifier("google", subject),
		VerifiedEmails:       emails,
		VerifiedPhoneNumbers: phones,
		DisplayName:          "Ada",
	}
}

func linking(strategy AccountLinkingMode, fallback MultipleCandidatesPolicy) func(*Config) {
	return func(c *Config) {
		c.AccountLinking.Strategy = strategy
		c.AccountLinking.AllowedKinds = []IdentifierKind{IdentifierEmail, IdentifierPhone}
		c.AccountLinking.MultipleCandidates = fallback
	}
}

func TestFederatedLoginDisabledCreatesUser(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	existing := env.register(t, EmailIdentifier("a@x.com"))

	identity := googleIdentity("g-1", []string{"a@x.com"}, nil)
	first, err := env.engine.FederatedLogin(ctx, identity)
	if err != nil {
		t.Fatalf("FederatedLogin: %v", err)
	}
	if first.Outcome != FederatedCreated || first.Auth == nil {
		t.Fatalf("expected created, got %+v", first)
	}
	if first.Auth.User.ID == existing.User.ID {
		t.Fatal("linking is disabled; a new user is expected")
	}
	if first.Auth.User.Email != "" {
		t.Fatalf("email owned by another user must not be attached, got %q", first.Auth.User.Email)
	}

	again, err := env.engine.FederatedLogin(ctx, identity)
	if err != nil {
		t.Fatalf("FederatedLogin: %v", err)
	}
	if again.Outcome != FederatedReturning || again.Auth.User.ID != first.Auth.User.ID {
		t.Fatalf("expected returning user, got %+v", again)
	}
}

func TestFederatedLoginCreatesWithVerifiedProfile(t *testing.T) {
	env := newTestEnv(t, nil)

	res, err := env.engine.FederatedLogin(context.Background(), googleIdentity("g-1", []string{"new@x.com"}, []string{"+15550001"}))
	if err != nil {
		t.Fatalf("FederatedLogin: %v", err)
	}
	user := res.Auth.User
	if user.Email != "new@x.com" || !user.EmailVerified || user.Phone != "+15550001" || !user.PhoneVerified {
		t.Fatalf("expected verified email and phone, got %+v", user)
	}
	if user.DisplayName != "Ada" {
		t.Fatalf("expected display name, got %q", user.DisplayName)
	}
}

func TestFederatedLoginAutomaticLinksSingleCandidate(t *testing.T) {
	env := newTestEnv(t, linking(LinkingAutomatic, FallbackManual))
	ctx := context.Background()
	existing := env.register(t, EmailIdentifier("a@x.com"))

	identity := googleIdentity("g-1", []string{"A@x.com"}, nil)
	res, err := env.engine.FederatedLogin(ctx, identity)
	if err != nil {
		t.Fatalf("FederatedLogin: %v", err)
	}
	if res.Outcome != FederatedLinked || res.Auth.User.ID != existing.User.ID {
		t.Fatalf("expected link to existing user, got %+v", res)
	}

	again, err := env.engine.FederatedLogin(ctx, identity)
	if err != nil {
		t.Fatalf("FederatedLogin: %v", err)
	}
	if again.Outcome != FederatedReturning || again.Auth.User.ID != existing.User.ID {
		t.Fatalf("expected returning, got %+v", again)
	}
}

func TestFederatedLoginAutomaticMultipleCandidates(t *testing.T) {
	identity := googleIdentity("g-1", []string{"a@x.com"}, []string{"+15550001"})

	t.Run("fallback manual", func(t *testing.T) {
		env := newTestEnv(t, linking(LinkingAutomatic, FallbackManual))
		a := env.register(t, EmailIdentifier("a@x.com"))
		b := env.register(t, PhoneIdentifier("+15550001"))

		res, err := env.engine.FederatedLogin(context.Background(), identity)
		if err != nil {
			t.Fatalf("FederatedLogin: %v", err)
		}
		if res.Outcome != FederatedSelectionRequired || res.Auth != nil {
			t.Fatalf("expected selection, got %+v", res)
		}
		if len(res.Candidates) != 2 || res.Candidates[0].ID != a.User.ID || res.Candidates[1].ID != b.User.ID {
			t.Fatalf("unexpected candidates %+v", res.Candidates)
		}
	})

	t.Run("fallback new user", func(t *testing.T) {
		env := newTestEnv(t, linking(LinkingAutomatic, FallbackNewUser))
		a := env.register(t, EmailIdentifier("a@x.com"))
		b := env.register(t, PhoneIdentifier("+15550001"))

		res, err := env.engine.FederatedLogin(context.Background(), identity)
		if err != nil {
			t.Fatalf("FederatedLogin: %v", err)
		}
		if res.Outcome != FederatedCreated {
			t.Fatalf("expected created, got %+v", res)
		}
		if id := res.Auth.User.ID; id == a.User.ID || id == b.User.ID {
			t.Fatal("expected a brand new user")
		}
	})
}

func TestFederatedLoginRespectsAllowedKinds(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.AccountLinking.Strategy = LinkingAutomatic
		c.AccountLinking.AllowedKinds = []IdentifierKind{IdentifierPhone}
	})
	existing := env.register(t, EmailIdentifier("a@x.com"))

	res, err := env.engine.FederatedLogin(context.Background(), googleIdentity("g-1", []string{"a@x.com"}, nil))
	if err != nil {
		t.Fatalf("FederatedLogin: %v", err)
	}
	if res.Outcome != FederatedCreated || res.Auth.User.ID == existing.User.ID {
		t.Fatalf("email matches must be ignored, got %+v", res)
	}
}

func TestFederatedManualSelection(t *testing.T) {
	env := newTestEnv(t, linking(LinkingManual, FallbackManual))
	ctx := context.Background()
	existing := env.register(t, EmailIdentifier("a@x.com"))
	stranger := env.register(t, EmailIdentifier("b@x.com"))

	identity := googleIdentity("g-1", []string{"a@x.com"}, nil)
	res, err := env.engine.FederatedLogin(ctx, identity)
	if err != nil {
		t.Fatalf("FederatedLogin: %v", err)
	}
	if res.Outcome != FederatedSelectionRequired || len(res.Candidates) != 1 {
		t.Fatalf("expected one candidate, got %+v", res)
	}

	if _, err := env.engine.CompleteFederatedLink(ctx, identity, stranger.User.ID); !errors.Is(err, ErrLinkCandidateMismatch) {
		t.Fatalf("expected ErrLinkCandidateMismatch, got %v", err)
	}

	linked, err := env.engine.CompleteFederatedLink(ctx, identity, existing.User.ID)
	if err != nil {
		t.Fatalf("CompleteFederatedLink: %v", err)
	}
	if linked.Outcome != FederatedLinked || linked.Auth.User.ID != existing.User.ID {
		t.Fatalf("unexpected link result %+v", linked)
	}

	again, err := env.engine.FederatedLogin(ctx, identity)
	if err != nil {
		t.Fatalf("FederatedLogin: %v", err)
	}
	if again.Outcome != FederatedReturning {
		t.Fatalf("expected returning, got %v", again.Outcome)
	}
}

func TestFederatedManualSignup(t *testing.T) {
	env := newTestEnv(t, linking(LinkingManual, FallbackManual))
	ctx := context.Background()
	existing := env.register(t, EmailIdentifier("a@x.com"))

	identity := googleIdentity("g-1", []string{"a@x.com"}, nil)
	res, err := env.engine.CompleteFederatedSignup(ctx, identity)
	if err != nil {
		t.Fatalf("CompleteFederatedSignup: %v", err)
	}
	if res.Outcome != FederatedCreated || res.Auth.User.ID == existing.User.ID {
		t.Fatalf("expected new user, got %+v", res)
	}
}

func TestFederatedLinkingDisabledRejectsCompletion(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.engine.CompleteFederatedLink(context.Background(), googleIdentity("g-1", nil, nil), "u1")
	if !errors.Is(err, ErrAccountLinkingDisabled) {
		t.Fatalf("expected ErrAccountLinkingDisabled, got %v", err)
	}
}

func TestFederatedLoginRejectsNonFederatedIdentifier(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.engine.FederatedLogin(context.Background(), FederatedIdentity{Identifier: EmailIdentifier("a@x.com")})
	if !errors.Is(err, ErrUnsupportedIdentifier) {
		t.Fatalf("expected ErrUnsupportedIdentifier, got %v", err)
	}
}
