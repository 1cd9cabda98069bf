package middleware

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/MrEthical07/authcore"
)

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by Guard or Optional.
func ClaimsFromContext(ctx context.Context) (*authcore.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*authcore.AccessClaims)
	return claims, ok
}

// UserID returns the subject of the stored claims, or "".
func UserID(ctx context.Context) string {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return ""
	}
	return claims.Subject
}

// authenticate validates the request's bearer token and returns a request
// carrying its claims.
func authenticate(engine *authcore.Engine, r *http.Request) (*http.Request, bool) {
	if engine == nil {
		return r, false
	}
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return r, false
	}
	claims, err := engine.ValidateAccess(r.Context(), token)
	if err != nil {
		return r, false
	}
	return r.WithContext(context.WithValue(r.Context(), claimsContextKey{}, claims)), true
}

// Guard rejects requests without a valid access token with 401.
func Guard(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, ok := authenticate(engine, r)
			if !ok {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Optional attaches claims for a valid bearer token and passes every request
// through.
func Optional(engine *authcore.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, _ = authenticate(engine, r)
			next.ServeHTTP(w, r)
		})
	}
}

// RequireScope must run after Guard.
func RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			if !slices.Contains(claims.Scopes(), scope) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="authcore"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
