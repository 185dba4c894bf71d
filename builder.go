package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/cliniqa/authcore/internal/limiters"
	"github.com/cliniqa/authcore/jwt"
	"github.com/cliniqa/authcore/ledger"
	"github.com/cliniqa/authcore/notify"
	"github.com/cliniqa/authcore/password"
	"github.com/cliniqa/authcore/session"
)

// Builder assembles an [Engine] from its collaborators. A builder is
// single-use: Build succeeds at most once.
type Builder struct {
	config Config
	redis  *redis.Client

	userProvider UserProvider
	sessionAudit session.AuditStore
	emailSender  notify.EmailSender
	smsSender    notify.SMSSender
	auditSink    AuditSink

	built bool
}

func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithSessionAudit sets the durable store for the login audit trail.
// Defaults to [session.NewMemoryStore] when omitted.
func (b *Builder) WithSessionAudit(store session.AuditStore) *Builder {
	b.sessionAudit = store
	return b
}

func (b *Builder) WithEmailSender(s notify.EmailSender) *Builder {
	b.emailSender = s
	return b
}

func (b *Builder) WithSMSSender(s notify.SMSSender) *Builder {
	b.smsSender = s
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	audit := b.sessionAudit
	if audit == nil {
		audit = session.NewMemoryStore()
	}

	blacklistTTL := cfg.Session.BlacklistTTL
	if blacklistTTL == 0 {
		// markers must outlive every token bound to the session
		blacklistTTL = cfg.JWT.RefreshTTL
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: cfg.Password.MaxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		userProvider: b.userProvider,
		passwordHash: ph,
		jwtManager:   jm,
		ledger:       ledger.NewStore(b.redis),
		directory:    session.NewDirectory(audit, b.redis, cfg.Session.PointerTTL),
		otpStore:     newOTPStore(b.redis),
		blacklistTTL: blacklistTTL,
	}

	engine.otpLimiter = limiters.NewOTPLimiter(b.redis, limiters.OTPConfig{
		EnableIdentifierThrottle: cfg.OTP.EnableIdentifierThrottle,
		EnableIPThrottle:         cfg.OTP.EnableIPThrottle,
		Window:                   cfg.OTP.SendWindow,
		MaxSends:                 cfg.OTP.MaxSendsPerWindow,
	})
	engine.lockout = limiters.NewLockoutLimiter(b.redis, limiters.LockoutConfig{
		Enabled:   cfg.Lockout.Enabled,
		Threshold: cfg.Lockout.Threshold,
		Window:    cfg.Lockout.Window,
	})

	engine.emailSender = b.emailSender
	if engine.emailSender == nil {
		engine.emailSender = notify.NoopSender{}
	}
	engine.smsSender = b.smsSender
	if engine.smsSender == nil {
		engine.smsSender = notify.NoopSender{}
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
