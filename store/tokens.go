package store

import "time"

// RefreshToken is the persisted half of an opaque refresh token. The
// plaintext never reaches the store; TokenHash is the lookup key.
//
// Rotation links tokens through ReplacedBy into a singly linked chain whose
// first element's ID is the FamilyID shared by every member.
type RefreshToken struct {
	ID         string
	TokenHash  string
	UserID     string
	FamilyID   string
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy string
	CreatedAt  time.Time
}

// Valid reports whether the token may still be exchanged at now.
func (t RefreshToken) Valid(now time.Time) bool {
	return !t.Revoked && t.ReplacedBy == "" && now.Before(t.ExpiresAt)
}

// Rotated reports whether a successor has already been issued.
func (t RefreshToken) Rotated() bool {
	return t.ReplacedBy != ""
}
