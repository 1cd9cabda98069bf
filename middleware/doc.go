// Package middleware adapts authcore.Engine to net/http.
//
// [Guard] rejects requests without a valid bearer access token and stores the
// verified claims in the request context. [Optional] stores claims when a
// valid token is present and never rejects. [RequireScope] narrows a guarded
// route to tokens carrying a scope. [ClientIP] records the caller address for
// audit events.
//
// All token decisions are delegated to Engine.ValidateAccess.
package middleware
