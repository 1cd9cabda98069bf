package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/delivery/queue"
	"github.com/MrEthical07/authcore/delivery/sms"
	"github.com/MrEthical07/authcore/delivery/smtpmail"
	"github.com/MrEthical07/authcore/federated/oauth"
)

const envPrefix = "AUTHCORE"

// Settings is everything a host needs: the engine config plus the
// infrastructure around it.
type Settings struct {
	Core authcore.Config

	HTTPAddr    string `validate:"required"`
	RedisURL    string `validate:"omitempty,url"`
	DatabaseURL string `validate:"omitempty,url"`
	LogLevel    string `validate:"oneof=debug info warn error"`
	LogFormat   string `validate:"oneof=json text"`

	SMTP   smtpmail.Config
	SMS    sms.WebhookConfig
	Google oauth.ProviderConfig
	Worker queue.WorkerConfig
}

// Options locate optional inputs. Empty fields are skipped.
type Options struct {
	File    string
	EnvFile string
}

type jwtFile struct {
	SigningMethod string        `mapstructure:"signing_method" validate:"oneof=ed25519 hs256"`
	PrivateKey    string        `mapstructure:"private_key" validate:"required"`
	PublicKey     string        `mapstructure:"public_key" validate:"required_if=SigningMethod ed25519"`
	Issuer        string        `mapstructure:"issuer"`
	Audience      string        `mapstructure:"audience"`
	Scope         string        `mapstructure:"scope"`
	KeyID         string        `mapstructure:"key_id"`
	AccessTTL     time.Duration `mapstructure:"access_ttl" validate:"gt=0"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl" validate:"gtefield=AccessTTL"`
	Leeway        time.Duration `mapstructure:"leeway" validate:"gte=0"`
}

type linkingFile struct {
	Strategy           string   `mapstructure:"strategy" validate:"oneof=disabled automatic manual"`
	MultipleCandidates string   `mapstructure:"multiple_candidates" validate:"oneof=manual new_user"`
	AllowedKinds       []string `mapstructure:"allowed_kinds" validate:"dive,oneof=email phone"`
}

// file mirrors the key layout read by viper.
type file struct {
	HTTP struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"http"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Redis struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"redis"`
	Database struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"database"`

	JWT    jwtFile `mapstructure:"jwt"`
	Tokens struct {
		RevokeExistingOnLogin bool `mapstructure:"revoke_existing_on_login"`
		RevokeFamilyOnReuse   bool `mapstructure:"revoke_family_on_reuse"`
	} `mapstructure:"tokens"`
	Codes struct {
		Length int `mapstructure:"length" validate:"min=4,max=10"`
	} `mapstructure:"codes"`
	Verification struct {
		EmailTTL       time.Duration `mapstructure:"email_ttl"`
		PhoneTTL       time.Duration `mapstructure:"phone_ttl"`
		MaxAttempts    int           `mapstructure:"max_attempts" validate:"min=1"`
		Async          bool          `mapstructure:"async"`
		SendOnRegister bool          `mapstructure:"send_on_register"`
		MaxRetries     int           `mapstructure:"max_retries" validate:"min=0"`
	} `mapstructure:"verification"`
	MagicLink struct {
		Enabled            bool          `mapstructure:"enabled"`
		TTL                time.Duration `mapstructure:"ttl"`
		MaxAttempts        int           `mapstructure:"max_attempts"`
		AutoCreateUser     bool          `mapstructure:"auto_create_user"`
		RequireSameBrowser bool          `mapstructure:"require_same_browser"`
		RevokeExisting     bool          `mapstructure:"revoke_existing"`
		BaseURL            string        `mapstructure:"base_url" validate:"omitempty,url"`
		Async              bool          `mapstructure:"async"`
		MaxRetries         int           `mapstructure:"max_retries"`
	} `mapstructure:"magic_link"`
	PasswordReset struct {
		EmailTTL       time.Duration `mapstructure:"email_ttl"`
		PhoneTTL       time.Duration `mapstructure:"phone_ttl"`
		MaxAttempts    int           `mapstructure:"max_attempts"`
		Async          bool          `mapstructure:"async"`
		RevokeSessions bool          `mapstructure:"revoke_sessions"`
		MaxRetries     int           `mapstructure:"max_retries"`
	} `mapstructure:"password_reset"`
	AccountLinking linkingFile `mapstructure:"account_linking"`
	Password       struct {
		Algorithm  string `mapstructure:"algorithm" validate:"oneof=argon2id bcrypt"`
		BcryptCost int    `mapstructure:"bcrypt_cost"`
		MinBytes   int    `mapstructure:"min_bytes" validate:"gte=1"`
		MaxBytes   int    `mapstructure:"max_bytes" validate:"gte=0"`
	} `mapstructure:"password"`
	Audit struct {
		Enabled    bool `mapstructure:"enabled"`
		BufferSize int  `mapstructure:"buffer_size"`
		DropIfFull bool `mapstructure:"drop_if_full"`
	} `mapstructure:"audit"`
	Metrics struct {
		Enabled                 bool `mapstructure:"enabled"`
		EnableLatencyHistograms bool `mapstructure:"enable_latency_histograms"`
	} `mapstructure:"metrics"`

	SMTP   smtpmail.Config      `mapstructure:"smtp"`
	SMS    sms.WebhookConfig    `mapstructure:"sms"`
	Google oauth.ProviderConfig `mapstructure:"google"`
	Worker queue.WorkerConfig   `mapstructure:"worker"`
}

func setDefaults(v *viper.Viper) {
	core := authcore.DefaultConfig()

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("redis.url", "")
	v.SetDefault("database.url", "")

	v.SetDefault("jwt.signing_method", core.JWT.SigningMethod)
	v.SetDefault("jwt.private_key", "")
	v.SetDefault("jwt.public_key", "")
	v.SetDefault("jwt.issuer", "authcore")
	v.SetDefault("jwt.audience", "")
	v.SetDefault("jwt.scope", "")
	v.SetDefault("jwt.key_id", "")
	v.SetDefault("jwt.access_ttl", core.JWT.AccessTTL)
	v.SetDefault("jwt.refresh_ttl", core.JWT.RefreshTTL)
	v.SetDefault("jwt.leeway", time.Duration(0))

	v.SetDefault("tokens.revoke_existing_on_login", core.Tokens.RevokeExistingOnLogin)
	v.SetDefault("tokens.revoke_family_on_reuse", core.Tokens.RevokeFamilyOnReuse)
	v.SetDefault("codes.length", core.Codes.CodeLength)

	v.SetDefault("verification.email_ttl", core.Verification.EmailTTL)
	v.SetDefault("verification.phone_ttl", core.Verification.PhoneTTL)
	v.SetDefault("verification.max_attempts", core.Verification.MaxAttempts)
	v.SetDefault("verification.async", core.Verification.Async)
	v.SetDefault("verification.send_on_register", core.Verification.SendOnRegister)
	v.SetDefault("verification.max_retries", core.Verification.MaxRetries)

	v.SetDefault("magic_link.enabled", core.MagicLink.Enabled)
	v.SetDefault("magic_link.ttl", core.MagicLink.TTL)
	v.SetDefault("magic_link.max_attempts", core.MagicLink.MaxAttempts)
	v.SetDefault("magic_link.auto_create_user", core.MagicLink.AutoCreateUser)
	v.SetDefault("magic_link.require_same_browser", core.MagicLink.RequireSameBrowser)
	v.SetDefault("magic_link.revoke_existing", core.MagicLink.RevokeExisting)
	v.SetDefault("magic_link.base_url", "")
	v.SetDefault("magic_link.async", core.MagicLink.Async)
	v.SetDefault("magic_link.max_retries", core.MagicLink.MaxRetries)

	v.SetDefault("password_reset.email_ttl", core.PasswordReset.EmailTTL)
	v.SetDefault("password_reset.phone_ttl", core.PasswordReset.PhoneTTL)
	v.SetDefault("password_reset.max_attempts", core.PasswordReset.MaxAttempts)
	v.SetDefault("password_reset.async", core.PasswordReset.Async)
	v.SetDefault("password_reset.revoke_sessions", core.PasswordReset.RevokeSessions)
	v.SetDefault("password_reset.max_retries", core.PasswordReset.MaxRetries)

	v.SetDefault("account_linking.strategy", "disabled")
	v.SetDefault("account_linking.multiple_candidates", "manual")
	v.SetDefault("account_linking.allowed_kinds", []string{})

	v.SetDefault("password.algorithm", core.Password.Algorithm)
	v.SetDefault("password.bcrypt_cost", core.Password.BcryptCost)
	v.SetDefault("password.min_bytes", core.Password.MinBytes)
	v.SetDefault("password.max_bytes", core.Password.MaxBytes)

	v.SetDefault("audit.enabled", core.Audit.Enabled)
	v.SetDefault("audit.buffer_size", core.Audit.BufferSize)
	v.SetDefault("audit.drop_if_full", core.Audit.DropIfFull)
	v.SetDefault("metrics.enabled", core.Metrics.Enabled)
	v.SetDefault("metrics.enable_latency_histograms", core.Metrics.EnableLatencyHistograms)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.app_name", "authcore")
	v.SetDefault("smtp.encryption", "starttls")
	v.SetDefault("smtp.timeout", 10*time.Second)

	v.SetDefault("sms.url", "")
	v.SetDefault("sms.token", "")
	v.SetDefault("sms.app_name", "authcore")
	v.SetDefault("sms.timeout", 10*time.Second)

	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("google.redirect_url", "")
	v.SetDefault("google.scopes", []string{})

	v.SetDefault("worker.rate_per_second", 10.0)
	v.SetDefault("worker.burst", 5)
	v.SetDefault("worker.poll_interval", time.Second)
}

func newViper(opts Options) (*viper.Viper, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}
	return v, nil
}

// Load reads settings and validates them. The returned Core config has also
// passed authcore.Config.Validate.
func Load(opts Options) (Settings, error) {
	v, err := newViper(opts)
	if err != nil {
		return Settings{}, err
	}

	var raw file
	if err := v.Unmarshal(&raw); err != nil {
		return Settings{}, fmt.Errorf("decode config: %w", err)
	}
	return raw.settings()
}

// DatabaseURL reads only database.url, for tools that never build an engine.
func DatabaseURL(opts Options) (string, error) {
	v, err := newViper(opts)
	if err != nil {
		return "", err
	}
	dsn := v.GetString("database.url")
	if dsn == "" {
		return "", errors.New("database.url is not set (AUTHCORE_DATABASE_URL)")
	}
	return dsn, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (f file) settings() (Settings, error) {
	if err := validate.Struct(f); err != nil {
		return Settings{}, fmt.Errorf("invalid config: %w", err)
	}

	s := Settings{
		HTTPAddr:    f.HTTP.Addr,
		RedisURL:    f.Redis.URL,
		DatabaseURL: f.Database.URL,
		LogLevel:    strings.ToLower(f.Log.Level),
		LogFormat:   strings.ToLower(f.Log.Format),
		SMTP:        f.SMTP,
		SMS:         f.SMS,
		Google:      f.Google,
		Worker:      f.Worker,
	}

	core, err := f.core()
	if err != nil {
		return Settings{}, err
	}
	s.Core = core

	if err := validate.Struct(s); err != nil {
		return Settings{}, fmt.Errorf("invalid config: %w", err)
	}
	if err := s.Core.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid config: %w", err)
	}
	return s, nil
}

func (f file) core() (authcore.Config, error) {
	cfg := authcore.DefaultConfig()

	priv, err := decodeKey(f.JWT.PrivateKey)
	if err != nil {
		return cfg, fmt.Errorf("jwt.private_key: %w", err)
	}
	pub, err := decodeKey(f.JWT.PublicKey)
	if err != nil {
		return cfg, fmt.Errorf("jwt.public_key: %w", err)
	}
	cfg.JWT = authcore.JWTConfig{
		AccessTTL:     f.JWT.AccessTTL,
		RefreshTTL:    f.JWT.RefreshTTL,
		SigningMethod: f.JWT.SigningMethod,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        f.JWT.Issuer,
		Audience:      f.JWT.Audience,
		Scope:         f.JWT.Scope,
		KeyID:         f.JWT.KeyID,
		Leeway:        f.JWT.Leeway,
	}

	cfg.Tokens.RevokeExistingOnLogin = f.Tokens.RevokeExistingOnLogin
	cfg.Tokens.RevokeFamilyOnReuse = f.Tokens.RevokeFamilyOnReuse
	cfg.Codes.CodeLength = f.Codes.Length

	cfg.Verification = authcore.VerificationConfig{
		EmailTTL:       f.Verification.EmailTTL,
		PhoneTTL:       f.Verification.PhoneTTL,
		MaxAttempts:    f.Verification.MaxAttempts,
		Async:          f.Verification.Async,
		SendOnRegister: f.Verification.SendOnRegister,
		MaxRetries:     f.Verification.MaxRetries,
	}
	cfg.MagicLink = authcore.MagicLinkConfig{
		Enabled:            f.MagicLink.Enabled,
		TTL:                f.MagicLink.TTL,
		MaxAttempts:        f.MagicLink.MaxAttempts,
		AutoCreateUser:     f.MagicLink.AutoCreateUser,
		RequireSameBrowser: f.MagicLink.RequireSameBrowser,
		RevokeExisting:     f.MagicLink.RevokeExisting,
		BaseURL:            f.MagicLink.BaseURL,
		Async:              f.MagicLink.Async,
		MaxRetries:         f.MagicLink.MaxRetries,
	}
	cfg.PasswordReset = authcore.PasswordResetConfig{
		EmailTTL:       f.PasswordReset.EmailTTL,
		PhoneTTL:       f.PasswordReset.PhoneTTL,
		MaxAttempts:    f.PasswordReset.MaxAttempts,
		Async:          f.PasswordReset.Async,
		RevokeSessions: f.PasswordReset.RevokeSessions,
		MaxRetries:     f.PasswordReset.MaxRetries,
	}

	linking, err := f.AccountLinking.config()
	if err != nil {
		return cfg, err
	}
	cfg.AccountLinking = linking

	cfg.Password.Algorithm = f.Password.Algorithm
	cfg.Password.BcryptCost = f.Password.BcryptCost
	cfg.Password.MinBytes = f.Password.MinBytes
	cfg.Password.MaxBytes = f.Password.MaxBytes
	cfg.Audit = authcore.AuditConfig{
		Enabled:    f.Audit.Enabled,
		BufferSize: f.Audit.BufferSize,
		DropIfFull: f.Audit.DropIfFull,
	}
	cfg.Metrics = authcore.MetricsConfig{
		Enabled:                 f.Metrics.Enabled,
		EnableLatencyHistograms: f.Metrics.EnableLatencyHistograms,
	}
	return cfg, nil
}

func (l linkingFile) config() (authcore.AccountLinkingConfig, error) {
	var out authcore.AccountLinkingConfig
	switch l.Strategy {
	case "automatic":
		out.Strategy = authcore.LinkingAutomatic
	case "manual":
		out.Strategy = authcore.LinkingManual
	default:
		out.Strategy = authcore.LinkingDisabled
	}
	if l.MultipleCandidates == "new_user" {
		out.MultipleCandidates = authcore.FallbackNewUser
	} else {
		out.MultipleCandidates = authcore.FallbackManual
	}
	for _, name := range l.AllowedKinds {
		kind, ok := authcore.ParseIdentifierKind(name)
		if !ok {
			return out, fmt.Errorf("account_linking.allowed_kinds: unknown kind %q", name)
		}
		out.AllowedKinds = append(out.AllowedKinds, kind)
	}
	return out, nil
}

// decodeKey accepts PEM text as-is and anything else as standard base64.
func decodeKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		return []byte(s), nil
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errors.New("key must be PEM or base64")
	}
	return b, nil
}

// MustLoad is Load for process entry points.
func MustLoad(opts Options) Settings {
	s, err := Load(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	return s
}
