package authcore

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/authcore/delivery"
	internalaudit "github.com/MrEthical07/authcore/internal/audit"
	"github.com/MrEthical07/authcore/internal/flows"
	"github.com/MrEthical07/authcore/internal/ids"
	internalmetrics "github.com/MrEthical07/authcore/internal/metrics"
	"github.com/MrEthical07/authcore/internal/random"
	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/password"
	"github.com/MrEthical07/authcore/store/redisstore"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. A Builder may be used for one Build only.
type Builder struct {
	config Config

	users  UserStore
	tokens TokenStore
	codes  CodeStore
	redis  redis.UniversalClient

	email delivery.EmailSender
	sms   delivery.SMSSender
	queue delivery.JobQueue

	logger     *slog.Logger
	auditSinks []AuditSink
	now        func() time.Time
	random     RandomProvider
	hasher     PasswordHasher

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithUserStore sets the host's user persistence. Required.
func (b *Builder) WithUserStore(users UserStore) *Builder {
	b.users = users
	return b
}

func (b *Builder) WithTokenStore(tokens TokenStore) *Builder {
	b.tokens = tokens
	return b
}

func (b *Builder) WithCodeStore(codes CodeStore) *Builder {
	b.codes = codes
	return b
}

// WithRedis backs refresh tokens and one-time codes with Redis unless
// WithTokenStore or WithCodeStore supplied explicit stores.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithEmailSender(sender delivery.EmailSender) *Builder {
	b.email = sender
	return b
}

func (b *Builder) WithSMSSender(sender delivery.SMSSender) *Builder {
	b.sms = sender
	return b
}

// WithQueue sets the job queue used by flows configured with Async.
func (b *Builder) WithQueue(queue delivery.JobQueue) *Builder {
	b.queue = queue
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink adds a sink. Audit events are dispatched only when
// Config.Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	if sink != nil {
		b.auditSinks = append(b.auditSinks, sink)
	}
	return b
}

func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithRandom(provider RandomProvider) *Builder {
	b.random = provider
	return b
}

// WithHasher replaces the hasher derived from Config.Password.
func (b *Builder) WithHasher(hasher PasswordHasher) *Builder {
	b.hasher = hasher
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.users == nil {
		return nil, errors.New("user store required")
	}
	tokens, codes := b.tokens, b.codes
	if b.redis != nil {
		if tokens == nil {
			tokens = redisstore.NewTokenStore(b.redis, "")
		}
		if codes == nil {
			codes = redisstore.NewCodeStore(b.redis, "")
		}
	}
	if tokens == nil {
		return nil, errors.New("token store required: use WithTokenStore or WithRedis")
	}
	if codes == nil {
		return nil, errors.New("code store required: use WithCodeStore or WithRedis")
	}

	if b.queue == nil && (cfg.Verification.Async || cfg.MagicLink.Async || cfg.PasswordReset.Async) {
		return nil, errors.New("async delivery requires WithQueue")
	}
	if cfg.MagicLink.Enabled && b.email == nil {
		return nil, errors.New("MagicLink requires an email sender")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	rnd := b.random
	if rnd == nil {
		rnd = random.Provider{}
	}

	hasher := b.hasher
	if hasher == nil {
		h, err := newHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
		hasher = h
	}

	signer, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cfg.JWT.PrivateKey,
		PublicKey:     cfg.JWT.PublicKey,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	metrics := internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Metrics.Enabled,
		EnableLatency: cfg.Metrics.EnableLatencyHistograms,
	})

	sinks := b.auditSinks
	if cfg.Audit.Enabled && len(sinks) == 0 {
		sinks = []AuditSink{internalaudit.NewSlogSink(logger)}
	}
	dispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop:     func() { metrics.Inc(MetricAuditDropped) },
	}, sinks...)

	e := &Engine{
		config:   cfg,
		users:    b.users,
		tokens:   tokens,
		signer:   signer,
		hasher:   hasher,
		random:   rnd,
		delivery: delivery.NewDispatcher(b.email, b.sms, b.queue, logger),
		logger:   logger,
		audit:    dispatcher,
		metrics:  metrics,
		now:      now,
	}

	newID := func() string { return ids.At(now()) }
	e.flows = flows.Deps{
		Tokens: flows.TokenDeps{
			Store:               tokens,
			Secrets:             rnd,
			NewID:               newID,
			Now:                 now,
			RefreshTTL:          cfg.JWT.RefreshTTL,
			RevokeFamilyOnReuse: cfg.Tokens.RevokeFamilyOnReuse,
			IssueAccessToken:    e.issueAccessToken,
			Warn:                e.warn,
		},
		Codes: flows.CodeDeps{
			Store:      codes,
			Secrets:    rnd,
			NewID:      newID,
			Now:        now,
			CodeLength: cfg.Codes.CodeLength,
		},
	}

	b.built = true
	return e, nil
}

func newHasher(cfg PasswordConfig) (PasswordHasher, error) {
	argon, err := password.NewArgon2(password.Config{
		Memory:      cfg.Memory,
		Time:        cfg.Time,
		Parallelism: cfg.Parallelism,
		SaltLength:  cfg.SaltLength,
		KeyLength:   cfg.KeyLength,
	})
	if err != nil {
		return nil, err
	}
	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	if cfg.Algorithm == "bcrypt" {
		return password.NewChain(bc, argon), nil
	}
	return password.NewChain(argon, bc), nil
}
