package store

import "time"

// CodeKind separates the one-time code namespaces. Codes of different kinds
// for the same identifier never interfere.
type CodeKind uint8

const (
	CodeEmailVerification CodeKind = iota + 1
	CodePhoneVerification
	CodeEmailReset
	CodePhoneReset
	CodeMagicLink
)

func (k CodeKind) String() string {
	switch k {
	case CodeEmailVerification:
		return "email_verification"
	case CodePhoneVerification:
		return "phone_verification"
	case CodeEmailReset:
		return "email_reset"
	case CodePhoneReset:
		return "phone_reset"
	case CodeMagicLink:
		return "magic_link"
	default:
		return "unknown"
	}
}

// CodeKinds lists every kind in declaration order.
var CodeKinds = []CodeKind{
	CodeEmailVerification,
	CodePhoneVerification,
	CodeEmailReset,
	CodePhoneReset,
	CodeMagicLink,
}

// OneTimeCode is a short-lived, attempt-bounded secret tied to an
// identifier value (an email address or phone number).
type OneTimeCode struct {
	ID               string
	Kind             CodeKind
	Identifier       string
	CodeHash         string
	UserID           string
	ExpiresAt        time.Time
	FailedAttempts   int
	SessionTokenHash string
	CreatedAt        time.Time
}

// Expired reports whether the code is past its expiry at now. A code whose
// expiry equals now is already expired.
func (c OneTimeCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Exhausted reports whether the failed-attempt budget is spent.
func (c OneTimeCode) Exhausted(maxAttempts int) bool {
	return maxAttempts > 0 && c.FailedAttempts >= maxAttempts
}
