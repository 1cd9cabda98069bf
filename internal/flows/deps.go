package flows

import (
	"context"
	"time"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow.
type Deps struct {
	Tokens TokenDeps
	Codes  CodeDeps
}

// Secrets is the subset of the random provider the flows need.
type Secrets interface {
	GenerateOpaqueToken() (string, error)
	GenerateNumericCode(length int) (string, error)
	Hash(token string) string
}

func nowFrom(fn func() time.Time) time.Time {
	if fn == nil {
		return time.Now()
	}
	return fn()
}

func warn(fn func(context.Context, string, ...any), ctx context.Context, msg string, args ...any) {
	if fn != nil {
		fn(ctx, msg, args...)
	}
}
