package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authcore/store"
)

// CodeFailureKind classifies verification failures for root-level mapping.
type CodeFailureKind int

const (
	CodeFailureNone CodeFailureKind = iota
	CodeFailureInvalid
	CodeFailureExpired
	CodeFailureExhausted
	CodeFailureStore
	CodeFailureAction
	CodeFailureRejected
)

// CodeDeps captures one-time code engine dependencies.
type CodeDeps struct {
	Store      store.CodeStore
	Secrets    Secrets
	NewID      func() string
	Now        func() time.Time
	CodeLength int
}

// CodeRequest describes a code to mint. Opaque selects a URL-safe token
// instead of a numeric code.
type CodeRequest struct {
	Kind             store.CodeKind
	Identifier       string
	UserID           string
	Opaque           bool
	SessionTokenHash string
	TTL              time.Duration
}

// CodeVerification describes a presented code. An empty Identifier looks
// the code up by hash alone, so a miss charges no attempts.
//
// Bind, when set, checks the matched code before it is claimed. A rejection
// charges one failed attempt against that code and leaves it live until
// its attempts run out.
type CodeVerification struct {
	Kind        store.CodeKind
	Identifier  string
	Plaintext   string
	MaxAttempts int
	Bind        func(store.OneTimeCode) error
}

// CodeResult carries the consumed code or failure metadata.
type CodeResult struct {
	Failure CodeFailureKind
	Err     error
	Code    store.OneTimeCode
}

// RequestCode mints a code, persists its hash and returns the plaintext.
// Persisting replaces every earlier live code for (Kind, Identifier).
func RequestCode(ctx context.Context, req CodeRequest, deps CodeDeps) (string, store.OneTimeCode, error) {
	var (
		plaintext string
		err       error
	)
	if req.Opaque {
		plaintext, err = deps.Secrets.GenerateOpaqueToken()
	} else {
		plaintext, err = deps.Secrets.GenerateNumericCode(deps.CodeLength)
	}
	if err != nil {
		return "", store.OneTimeCode{}, err
	}

	now := nowFrom(deps.Now)
	code := store.OneTimeCode{
		ID:               deps.NewID(),
		Kind:             req.Kind,
		Identifier:       req.Identifier,
		CodeHash:         deps.Secrets.Hash(plaintext),
		UserID:           req.UserID,
		ExpiresAt:        now.Add(req.TTL),
		SessionTokenHash: req.SessionTokenHash,
		CreatedAt:        now,
	}
	if err := deps.Store.CreateCode(ctx, code); err != nil {
		return "", store.OneTimeCode{}, err
	}

	return plaintext, code, nil
}

// VerifyCode checks a presented code and, when it is acceptable, consumes it
// and runs onSuccess with the consumed record.
//
// The code is claimed before onSuccess runs, so a failing action does not
// leave the code replayable.
func VerifyCode(
	ctx context.Context,
	req CodeVerification,
	deps CodeDeps,
	onSuccess func(context.Context, store.OneTimeCode) error,
) CodeResult {
	hash := deps.Secrets.Hash(req.Plaintext)

	code, err := deps.Store.FindCode(ctx, req.Kind, req.Identifier, hash)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return CodeResult{Failure: CodeFailureStore, Err: err}
		}
		if req.Identifier != "" {
			if _, incErr := deps.Store.IncrementFailedAttempts(ctx, req.Kind, req.Identifier); incErr != nil && !errors.Is(incErr, store.ErrNotFound) {
				return CodeResult{Failure: CodeFailureStore, Err: incErr}
			}
		}
		return CodeResult{Failure: CodeFailureInvalid, Err: err}
	}

	now := nowFrom(deps.Now)
	if code.Expired(now) {
		return CodeResult{Failure: CodeFailureExpired, Code: code}
	}
	if code.Exhausted(req.MaxAttempts) {
		return CodeResult{Failure: CodeFailureExhausted, Code: code}
	}
	if req.Bind != nil {
		if bindErr := req.Bind(code); bindErr != nil {
			if _, err := deps.Store.IncrementFailedAttempts(ctx, req.Kind, code.Identifier); err != nil && !errors.Is(err, store.ErrNotFound) {
				return CodeResult{Failure: CodeFailureStore, Err: err, Code: code}
			}
			return CodeResult{Failure: CodeFailureRejected, Err: bindErr, Code: code}
		}
	}

	if err := deps.Store.ConsumeCode(ctx, req.Kind, code.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return CodeResult{Failure: CodeFailureInvalid, Err: err, Code: code}
		}
		return CodeResult{Failure: CodeFailureStore, Err: err, Code: code}
	}

	if onSuccess != nil {
		if err := onSuccess(ctx, code); err != nil {
			return CodeResult{Failure: CodeFailureAction, Err: err, Code: code}
		}
	}

	return CodeResult{Failure: CodeFailureNone, Code: code}
}
