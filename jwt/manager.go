package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SigningMethod selects the signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	ErrInvalidTTL         = errors.New("invalid TTL configuration")
	ErrMissingSubject     = errors.New("access token subject required")
	ErrUnsupportedSigning = errors.New("unsupported signing method")
	ErrNoSigningKey       = errors.New("no signing key configured")
	ErrUnknownKeyID       = errors.New("unknown key id")
	ErrIssuedInFuture     = errors.New("token issued too far in the future")
)

// Config describes how access tokens are minted and checked.
//
// For HS256 PrivateKey is the shared secret. For Ed25519 PrivateKey and
// PublicKey are raw keys or PEM. VerifyKeys adds keys accepted during
// rotation, selected by the token's kid header.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	MaxFutureIAT  time.Duration
	KeyID         string
	VerifyKeys    map[string][]byte
	Now           func() time.Time
}

// Manager creates and parses access tokens. It is immutable after
// NewManager and safe for concurrent use.
type Manager struct {
	config  Config
	method  jwt.SigningMethod
	signKey any
	// verify maps kid to key; "" holds the key used for tokens without kid.
	verify map[string]any
	parser *jwt.Parser
}

// AccessClaims is the access-token claim set.
type AccessClaims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Scopes splits the space-delimited scope claim.
func (c *AccessClaims) Scopes() []string {
	return strings.Fields(c.Scope)
}

// NewManager validates cfg, decodes its keys and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.AccessTTL <= 0:
		return nil, ErrInvalidTTL
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, errors.New("leeway must be within [0, 2m]")
	case cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour:
		return nil, errors.New("MaxFutureIAT must be within [0, 24h]")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	m := &Manager{config: cfg, verify: make(map[string]any)}
	var decodeVerify func([]byte) (any, error)

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a key of at least 32 bytes")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verify[cfg.KeyID] = cfg.PrivateKey
		decodeVerify = func(b []byte) (any, error) { return b, nil }
	case MethodEd25519:
		m.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			m.verify[cfg.KeyID] = pub
		}
		decodeVerify = func(b []byte) (any, error) { return parseEdPublicKey(b) }
	default:
		return nil, ErrUnsupportedSigning
	}

	for kid, raw := range cfg.VerifyKeys {
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("verify key map contains empty kid")
		}
		key, err := decodeVerify(raw)
		if err != nil {
			return nil, fmt.Errorf("verify key %q: %w", kid, err)
		}
		m.verify[kid] = key
	}
	if len(m.verify) == 0 {
		return nil, errors.New("ed25519 requires a public key or verify keys")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(cfg.Now),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(opts...)

	return m, nil
}

// TTL returns the configured access-token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.AccessTTL
}

// CreateAccess signs {sub, iss, iat, exp=now+TTL, aud?, scope?}.
func (m *Manager) CreateAccess(subject, scope string) (string, error) {
	if subject == "" {
		return "", ErrMissingSubject
	}
	if m.signKey == nil {
		return "", ErrNoSigningKey
	}

	now := m.config.Now()
	claims := AccessClaims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}
	return token.SignedString(m.signKey)
}

// ParseAccess verifies signature, algorithm, expiry and the configured
// issuer and audience.
func (m *Manager) ParseAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := m.parser.ParseWithClaims(tokenStr, claims, m.keyFor)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}
	if claims.IssuedAt != nil && claims.IssuedAt.After(m.config.Now().Add(m.config.MaxFutureIAT)) {
		return nil, ErrIssuedInFuture
	}
	return claims, nil
}

func (m *Manager) keyFor(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	// With a rotation set every token must name its key.
	if kid == "" && len(m.config.VerifyKeys) > 0 {
		return nil, ErrUnknownKeyID
	}
	key, ok := m.verify[kid]
	if !ok {
		return nil, ErrUnknownKeyID
	}
	return key, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
