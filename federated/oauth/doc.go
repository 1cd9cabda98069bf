// Package oauth turns an OAuth 2.0 / OpenID Connect authorization-code login
// into an authcore.FederatedIdentity for Engine.FederatedLogin.
//
// Flow.Begin produces the provider redirect URL and stores the state with its
// PKCE verifier. Flow.Complete consumes that state once, exchanges the code
// and maps the provider's userinfo response. Only addresses and numbers the
// provider marks as verified are carried into the identity.
package oauth
