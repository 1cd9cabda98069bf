package authcore

import "errors"

var (
	// ErrUserNotFound is returned when no user matches an id or identifier.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials hides whether the identifier or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrDuplicateIdentifier is returned when an identifier already belongs to a user.
	ErrDuplicateIdentifier = errors.New("identifier already in use")
	// ErrPasswordNotSet is returned when a password login targets a user without one.
	ErrPasswordNotSet = errors.New("password not set")
	// ErrPasswordPolicy is returned when a new password fails length policy.
	ErrPasswordPolicy = errors.New("password does not satisfy policy")
	// ErrUnsupportedIdentifier is returned when a flow cannot act on an identifier kind.
	ErrUnsupportedIdentifier = errors.New("unsupported identifier kind")

	// ErrRefreshTokenNotFound is returned for refresh tokens the store never saw.
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	// ErrInvalidRefreshToken is returned for revoked, rotated or expired refresh tokens.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrTokenInvalid is returned when an access token fails signature or claim checks.
	ErrTokenInvalid = errors.New("invalid access token")

	// ErrInvalidCode is returned when a one-time code does not match a live code.
	ErrInvalidCode = errors.New("invalid code")
	// ErrCodeExpired is returned when a matching code is past its expiry.
	ErrCodeExpired = errors.New("code expired")
	// ErrMaxAttemptsExceeded is returned when a code's failed-attempt budget is spent.
	ErrMaxAttemptsExceeded = errors.New("maximum attempts exceeded")

	ErrEmailDeliveryNotConfigured = errors.New("email delivery not configured")
	ErrPhoneDeliveryNotConfigured = errors.New("phone delivery not configured")
	ErrEmailNotSet                = errors.New("email not set")
	ErrPhoneNotSet                = errors.New("phone not set")
	ErrEmailAlreadyVerified       = errors.New("email already verified")
	ErrPhoneAlreadyVerified       = errors.New("phone already verified")
	ErrDeliveryFailed             = errors.New("delivery failed")

	ErrMagicLinkDisabled         = errors.New("magic link login disabled")
	ErrMagicLinkEmailNotFound    = errors.New("no user with that email")
	ErrMagicLinkDifferentBrowser = errors.New("magic link opened in a different browser")

	ErrAccountLinkingDisabled = errors.New("account linking disabled")
	ErrLinkCandidateMismatch  = errors.New("selected user is not a link candidate")

	// ErrEngineNotReady is returned by methods called on a nil or unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrStoreUnavailable wraps infrastructure failures from any store.
	ErrStoreUnavailable = errors.New("store unavailable")
)
