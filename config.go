package authcore

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/password"
)

// Config holds every tunable of the engine. Build clones it, so later
// mutation by the caller has no effect.
type Config struct {
	JWT            JWTConfig
	Tokens         TokensConfig
	Codes          CodesConfig
	Verification   VerificationConfig
	MagicLink      MagicLinkConfig
	PasswordReset  PasswordResetConfig
	AccountLinking AccountLinkingConfig
	Password       PasswordConfig
	Audit          AuditConfig
	Metrics        MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access-token signing and refresh-token lifetime.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Scope         string
	KeyID         string
	Leeway        time.Duration
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokensConfig controls refresh-token family handling.
type TokensConfig struct {
	// RevokeExistingOnLogin revokes every live refresh token of the user on
	// password login.
	RevokeExistingOnLogin bool
	// RevokeFamilyOnReuse revokes every token descended from the same root
	// when a rotated, revoked or expired token is presented.
	RevokeFamilyOnReuse bool
}

/*
====================================
ONE-TIME CODE CONFIG
====================================
*/

type CodesConfig struct {
	CodeLength int
}

// VerificationConfig covers email and phone ownership checks.
type VerificationConfig struct {
	EmailTTL       time.Duration
	PhoneTTL       time.Duration
	MaxAttempts    int
	Async          bool
	SendOnRegister bool
	MaxRetries     int
}

// MagicLinkConfig covers passwordless email sign-in.
type MagicLinkConfig struct {
	Enabled            bool
	TTL                time.Duration
	MaxAttempts        int
	AutoCreateUser     bool
	RequireSameBrowser bool
	RevokeExisting     bool
	BaseURL            string
	Async              bool
	MaxRetries         int
}

// PasswordResetConfig covers code-based password restoration.
type PasswordResetConfig struct {
	EmailTTL       time.Duration
	PhoneTTL       time.Duration
	MaxAttempts    int
	Async          bool
	RevokeSessions bool
	MaxRetries     int
}

/*
====================================
ACCOUNT LINKING CONFIG
====================================
*/

// AccountLinkingMode selects how federated identities meet existing users.
type AccountLinkingMode = flows.LinkMode

const (
	LinkingDisabled  = flows.LinkDisabled
	LinkingAutomatic = flows.LinkAutomatic
	LinkingManual    = flows.LinkManual
)

// MultipleCandidatesPolicy decides automatic linking with more than one
// matching user.
type MultipleCandidatesPolicy = flows.MultipleCandidatesPolicy

const (
	FallbackManual  = flows.FallbackManual
	FallbackNewUser = flows.FallbackNewUser
)

type AccountLinkingConfig struct {
	Strategy           AccountLinkingMode
	AllowedKinds       []IdentifierKind
	MultipleCandidates MultipleCandidatesPolicy
}

func (c AccountLinkingConfig) policy() flows.LinkPolicy {
	return flows.LinkPolicy{
		Mode:               c.Strategy,
		AllowedKinds:       c.AllowedKinds,
		MultipleCandidates: c.MultipleCandidates,
	}
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hasher new passwords are written with. Hashes
// of the other algorithm still verify.
//
// MinBytes and MaxBytes bound new passwords on registration and reset.
// MaxBytes 0 selects the algorithm's input ceiling; it may only lower it.
type PasswordConfig struct {
	Algorithm   string // "argon2id" (default) or "bcrypt"
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	BcryptCost  int
	MinBytes    int
	MaxBytes    int
}

// lengthLimits returns the accepted new-password length range in bytes.
func (c PasswordConfig) lengthLimits() (lo, hi int) {
	hi = password.MaxBytesFor(c.Algorithm)
	if c.MaxBytes > 0 && c.MaxBytes < hi {
		hi = c.MaxBytes
	}
	return c.MinBytes, hi
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration with every flow at safe defaults.
// Signing keys are left empty and must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    30 * 24 * time.Hour,
			SigningMethod: "ed25519",
		},
		Tokens: TokensConfig{
			RevokeExistingOnLogin: false,
			RevokeFamilyOnReuse:   true,
		},
		Codes: CodesConfig{
			CodeLength: 6,
		},
		Verification: VerificationConfig{
			EmailTTL:       15 * time.Minute,
			PhoneTTL:       10 * time.Minute,
			MaxAttempts:    3,
			SendOnRegister: true,
			MaxRetries:     3,
		},
		MagicLink: MagicLinkConfig{
			Enabled:     false,
			TTL:         15 * time.Minute,
			MaxAttempts: 3,
			MaxRetries:  3,
		},
		PasswordReset: PasswordResetConfig{
			EmailTTL:       15 * time.Minute,
			PhoneTTL:       10 * time.Minute,
			MaxAttempts:    3,
			RevokeSessions: true,
			MaxRetries:     3,
		},
		AccountLinking: AccountLinkingConfig{
			Strategy:           LinkingDisabled,
			MultipleCandidates: FallbackManual,
		},
		Password: PasswordConfig{
			Algorithm:   "argon2id",
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
			BcryptCost:  12,
			MinBytes:    8,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.AccountLinking.AllowedKinds != nil {
		out.AccountLinking.AllowedKinds = append([]IdentifierKind(nil), cfg.AccountLinking.AllowedKinds...)
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error found.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be >= AccessTTL")
	}
	switch c.JWT.SigningMethod {
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Codes
	if c.Codes.CodeLength < 4 || c.Codes.CodeLength > 10 {
		return errors.New("Codes CodeLength must be between 4 and 10")
	}

	// Verification
	if c.Verification.EmailTTL <= 0 || c.Verification.PhoneTTL <= 0 {
		return errors.New("Verification TTLs must be > 0")
	}
	if c.Verification.MaxAttempts <= 0 {
		return errors.New("Verification MaxAttempts must be > 0")
	}
	if c.Verification.MaxRetries < 0 {
		return errors.New("Verification MaxRetries must be >= 0")
	}

	// Magic link
	if c.MagicLink.Enabled {
		if c.MagicLink.TTL <= 0 {
			return errors.New("MagicLink TTL must be > 0")
		}
		if c.MagicLink.MaxAttempts <= 0 {
			return errors.New("MagicLink MaxAttempts must be > 0")
		}
		u, err := url.Parse(c.MagicLink.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("MagicLink BaseURL must be an absolute URL")
		}
	}
	if c.MagicLink.MaxRetries < 0 {
		return errors.New("MagicLink MaxRetries must be >= 0")
	}

	// Password reset
	if c.PasswordReset.EmailTTL <= 0 || c.PasswordReset.PhoneTTL <= 0 {
		return errors.New("PasswordReset TTLs must be > 0")
	}
	if c.PasswordReset.MaxAttempts <= 0 {
		return errors.New("PasswordReset MaxAttempts must be > 0")
	}
	if c.PasswordReset.MaxRetries < 0 {
		return errors.New("PasswordReset MaxRetries must be >= 0")
	}

	// Account linking
	switch c.AccountLinking.Strategy {
	case LinkingDisabled:
	case LinkingAutomatic, LinkingManual:
		if len(c.AccountLinking.AllowedKinds) == 0 {
			return errors.New("AccountLinking AllowedKinds must not be empty")
		}
		for _, k := range c.AccountLinking.AllowedKinds {
			if k != IdentifierEmail && k != IdentifierPhone {
				return errors.New("AccountLinking AllowedKinds may only contain email and phone")
			}
		}
	default:
		return errors.New("AccountLinking Strategy is invalid")
	}
	if c.AccountLinking.MultipleCandidates != FallbackManual && c.AccountLinking.MultipleCandidates != FallbackNewUser {
		return errors.New("AccountLinking MultipleCandidates is invalid")
	}

	// Password
	switch c.Password.Algorithm {
	case "argon2id", "bcrypt":
	default:
		return errors.New("Password Algorithm must be 'argon2id' or 'bcrypt'")
	}
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.BcryptCost < 4 || c.Password.BcryptCost > 31 {
		return errors.New("Password BcryptCost must be between 4 and 31")
	}
	ceiling := password.MaxBytesFor(c.Password.Algorithm)
	if c.Password.MaxBytes < 0 || c.Password.MaxBytes > ceiling {
		return fmt.Errorf("Password MaxBytes must be between 0 and %d for %s", ceiling, c.Password.Algorithm)
	}
	if _, hi := c.Password.lengthLimits(); c.Password.MinBytes < 1 || c.Password.MinBytes > hi {
		return fmt.Errorf("Password MinBytes must be between 1 and %d", hi)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	return nil
}
