package authcore

import (
	"context"
	"io"
	"log/slog"

	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
)

// Persisted model, re-exported so hosts rarely import store directly.
type (
	Identifier     = store.Identifier
	IdentifierKind = store.IdentifierKind
	Credential     = store.Credential
	UserRecord     = store.UserRecord
	RefreshToken   = store.RefreshToken
	OneTimeCode    = store.OneTimeCode
	CodeKind       = store.CodeKind
	UserStore      = store.UserStore
	TokenStore     = store.TokenStore
	CodeStore      = store.CodeStore
)

const (
	IdentifierEmail     = store.IdentifierEmail
	IdentifierPhone     = store.IdentifierPhone
	IdentifierUsername  = store.IdentifierUsername
	IdentifierFederated = store.IdentifierFederated
)

// ParseIdentifierKind maps "email", "phone", "username" and "federated" to
// their kinds.
func ParseIdentifierKind(s string) (IdentifierKind, bool) { return store.ParseIdentifierKind(s) }

// EmailIdentifier returns a normalized email identifier.
func EmailIdentifier(email string) Identifier { return store.EmailIdentifier(email) }

// PhoneIdentifier returns a phone identifier.
func PhoneIdentifier(phone string) Identifier { return store.PhoneIdentifier(phone) }

// UsernameIdentifier returns a username identifier.
func UsernameIdentifier(username string) Identifier { return store.UsernameIdentifier(username) }

// FederatedIdentifier returns the identifier of a provider-scoped subject.
func FederatedIdentifier(provider, subject string) Identifier {
	return store.FederatedIdentifier(provider, subject)
}

// AccessClaims is the verified claim set of an access token.
type AccessClaims = jwt.AccessClaims

// RandomProvider supplies opaque tokens, numeric codes and their lookup
// hashes. Hash must be deterministic.
type RandomProvider interface {
	GenerateOpaqueToken() (string, error)
	GenerateNumericCode(length int) (string, error)
	Hash(token string) string
}

// PasswordHasher turns passwords into storable hashes and checks them.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
}

// UserView is the public projection of a user returned with tokens.
type UserView struct {
	ID            string `json:"id"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Username      string `json:"username,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	PhoneVerified bool   `json:"phone_verified"`
	Anonymous     bool   `json:"anonymous,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	PictureURL    string `json:"picture_url,omitempty"`
}

// NewUserView projects u, dropping the password hash.
func NewUserView(u UserRecord) UserView {
	return UserView{
		ID:            u.UserID,
		Email:         u.Email,
		Phone:         u.Phone,
		Username:      u.Username,
		EmailVerified: u.EmailVerified,
		PhoneVerified: u.PhoneVerified,
		Anonymous:     u.Anonymous,
		DisplayName:   u.DisplayName,
		PictureURL:    u.PictureURL,
	}
}

// AuthUser is the result of every successful sign-in.
type AuthUser struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         UserView `json:"user"`
}

// MagicLinkChallenge is returned by RequestEmailMagicLink. SessionToken is
// set only when same-browser binding is on; the host must keep it in the
// requesting browser's session and present it on verification.
type MagicLinkChallenge struct {
	Email        string
	SessionToken string
}

// FederatedIdentity is what an identity provider asserted about a user.
type FederatedIdentity struct {
	Identifier           Identifier
	VerifiedEmails       []string
	VerifiedPhoneNumbers []string
	DisplayName          string
	PictureURL           string
}

func (f FederatedIdentity) link() flows.LinkIdentity {
	return flows.LinkIdentity{
		Identifier:     f.Identifier,
		VerifiedEmails: f.VerifiedEmails,
		VerifiedPhones: f.VerifiedPhoneNumbers,
	}
}

// FederatedOutcome says what FederatedLogin did.
type FederatedOutcome uint8

const (
	FederatedReturning FederatedOutcome = iota + 1
	FederatedLinked
	FederatedCreated
	FederatedSelectionRequired
)

func (o FederatedOutcome) String() string {
	switch o {
	case FederatedReturning:
		return "returning"
	case FederatedLinked:
		return "linked"
	case FederatedCreated:
		return "created"
	case FederatedSelectionRequired:
		return "selection_required"
	default:
		return "unknown"
	}
}

// FederatedLoginResult carries tokens for every outcome except
// FederatedSelectionRequired, which carries the candidates to choose from.
type FederatedLoginResult struct {
	Outcome    FederatedOutcome
	Auth       *AuthUser
	Candidates []UserView
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON document per event.
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink logs events at info level.
type SlogSink = internalaudit.SlogSink

func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}

type userFinder struct {
	users UserStore
}

func (f userFinder) FindByIdentifier(ctx context.Context, id Identifier) (UserRecord, error) {
	return f.users.FindByIdentifier(ctx, id)
}
