package store

import (
	"strings"
)

// IdentifierKind names the medium an Identifier belongs to.
type IdentifierKind uint8

const (
	IdentifierEmail IdentifierKind = iota + 1
	IdentifierPhone
	IdentifierUsername
	IdentifierFederated
)

// String returns the stable lowercase name used in storage keys and config.
func (k IdentifierKind) String() string {
	switch k {
	case IdentifierEmail:
		return "email"
	case IdentifierPhone:
		return "phone"
	case IdentifierUsername:
		return "username"
	case IdentifierFederated:
		return "federated"
	default:
		return "unknown"
	}
}

// ParseIdentifierKind is the inverse of IdentifierKind.String.
func ParseIdentifierKind(s string) (IdentifierKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email":
		return IdentifierEmail, true
	case "phone":
		return IdentifierPhone, true
	case "username":
		return IdentifierUsername, true
	case "federated":
		return IdentifierFederated, true
	default:
		return 0, false
	}
}

// Identifier is a typed handle naming a user. It is comparable, so two
// identifiers are equal exactly when kind, value and provider match.
//
// For federated identifiers Value holds the provider-scoped subject id.
type Identifier struct {
	Kind     IdentifierKind
	Value    string
	Provider string
}

func EmailIdentifier(email string) Identifier {
	return Identifier{Kind: IdentifierEmail, Value: NormalizeEmail(email)}
}

func PhoneIdentifier(phone string) Identifier {
	return Identifier{Kind: IdentifierPhone, Value: strings.TrimSpace(phone)}
}

func UsernameIdentifier(username string) Identifier {
	return Identifier{Kind: IdentifierUsername, Value: strings.TrimSpace(username)}
}

func FederatedIdentifier(provider, subject string) Identifier {
	return Identifier{
		Kind:     IdentifierFederated,
		Value:    strings.TrimSpace(subject),
		Provider: strings.ToLower(strings.TrimSpace(provider)),
	}
}

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsZero reports whether the identifier carries no value.
func (i Identifier) IsZero() bool {
	return i.Kind == 0 || i.Value == ""
}

// String renders the identifier as kind:value, or federated:provider:subject.
func (i Identifier) String() string {
	if i.Kind == IdentifierFederated {
		return i.Kind.String() + ":" + i.Provider + ":" + i.Value
	}
	return i.Kind.String() + ":" + i.Value
}

// CredentialKind names the kind of secret a Credential carries.
type CredentialKind uint8

const (
	CredentialPassword CredentialKind = iota + 1
)

// Credential is a secret proof of identity. Secret is always a hash.
type Credential struct {
	Kind   CredentialKind
	Secret string
}

// PasswordCredential wraps an already hashed password.
func PasswordCredential(hash string) *Credential {
	return &Credential{Kind: CredentialPassword, Secret: hash}
}

// UserRecord is the host-owned account as seen by authcore.
type UserRecord struct {
	UserID        string
	Email         string
	Phone         string
	Username      string
	PasswordHash  string
	Anonymous     bool
	EmailVerified bool
	PhoneVerified bool
	DisplayName   string
	PictureURL    string
	Federated     []Identifier
	CreatedAt     int64
}

// HasPassword reports whether a password credential is set.
func (u UserRecord) HasPassword() bool {
	return u.PasswordHash != ""
}

// Has reports whether the user is addressed by id.
func (u UserRecord) Has(id Identifier) bool {
	switch id.Kind {
	case IdentifierEmail:
		return u.Email != "" && NormalizeEmail(u.Email) == id.Value
	case IdentifierPhone:
		return u.Phone != "" && u.Phone == id.Value
	case IdentifierUsername:
		return u.Username != "" && u.Username == id.Value
	case IdentifierFederated:
		for _, f := range u.Federated {
			if f == id {
				return true
			}
		}
	}
	return false
}
