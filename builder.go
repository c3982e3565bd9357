package authgate

import (
	"errors"
	"log/slog"

	"github.com/MrEthical07/authgate/csrf"
	"github.com/MrEthical07/authgate/identity"
	"github.com/MrEthical07/authgate/internal/audit"
	"github.com/MrEthical07/authgate/internal/rate"
	"github.com/MrEthical07/authgate/internal/stores"
	"github.com/MrEthical07/authgate/jwt"
	"github.com/MrEthical07/authgate/notify"
	"github.com/MrEthical07/authgate/password"
	"github.com/MrEthical07/authgate/session"
	"github.com/redis/go-redis/v9"
)

// dummyPassword is hashed once at build time. Logins for unknown emails
// verify against it so they cost the same as a wrong password.
const dummyPassword = "authgate-dummy-password"

// Builder assembles an [Engine]. A Builder can build once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identities identity.Store
	notifier   notify.Notifier
	auditSink  AuditSink
	logger     *slog.Logger
	hasher     password.Hasher

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration. The secrets are copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the ephemeral store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithIdentityStore sets the durable identity store. Required.
func (b *Builder) WithIdentityStore(store identity.Store) *Builder {
	b.identities = store
	return b
}

// WithNotifier sets the email transport. Defaults to notify.LogNotifier.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithHasher overrides the hasher selected by Config.Password.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// Build validates the configuration and wires every store and flow.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.identities == nil {
		return nil, errors.New("identity store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	hasher := b.hasher
	if hasher == nil {
		h, err := newHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
		hasher = h
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}
	tokens := jwtTokens{manager: jm}

	// -------- EPHEMERAL STORES --------
	prefix := cfg.Session.RedisPrefix
	engine := &Engine{
		config:     cloneConfig(cfg),
		logger:     logger,
		identities: b.identities,
		hasher:     hasher,
		dummyHash:  dummyHash,
		tokens:     tokens,
		sessionStore: session.NewStore(b.redis, tokens, session.Options{
			Prefix:        prefix,
			TTL:           cfg.Session.TTL,
			RotateRefresh: cfg.Session.RotateRefreshTokens,
			RevokeOnReuse: cfg.Session.RevokeOnRefreshReuse,
		}),
		csrfStore:     csrf.NewStore(b.redis, prefix, cfg.CSRF.TTL),
		registrations: stores.NewRegistrationStore(b.redis, prefix),
		resets:        stores.NewPasswordResetStore(b.redis, prefix),
		templates: notify.Templates{
			BaseURL:   cfg.Verification.AppBaseURL,
			VerifyTTL: cfg.Verification.RegistrationTTL,
			ResetTTL:  cfg.Verification.ResetTTL,
		},
		metrics: NewMetrics(cfg.Metrics),
	}
	if cfg.IdentityCache.Enabled {
		engine.identityCache = stores.NewIdentityCache(b.redis, prefix, cfg.IdentityCache.TTL)
	}
	if cfg.RateLimit.Enabled {
		engine.limiter = rate.New(b.redis, prefix)
	}

	// -------- ASYNC DELIVERY --------
	notifier := b.notifier
	if notifier == nil {
		notifier = notify.LogNotifier{Logger: logger}
	}
	engine.mailer = notify.NewDispatcher(notify.DispatcherConfig{}, notifier, logger)
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Logger:     logger,
	}, b.auditSink)

	engine.initFlows()

	b.built = true

	return engine, nil
}

func newHasher(cfg PasswordConfig) (password.Hasher, error) {
	if cfg.Algorithm == PasswordBcrypt {
		return password.NewBcrypt(cfg.BcryptCost), nil
	}
	h, err := password.NewArgon2(password.Config{
		Memory:           cfg.Memory,
		Time:             cfg.Time,
		Parallelism:      cfg.Parallelism,
		SaltLength:       cfg.SaltLength,
		KeyLength:        cfg.KeyLength,
		MaxPasswordBytes: cfg.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}
