package phishgate

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/tmorgan-sec/phishgate/cryptor"
	"github.com/tmorgan-sec/phishgate/internal/rate"
	"github.com/tmorgan-sec/phishgate/internal/stores"
	"github.com/tmorgan-sec/phishgate/password"
)

// Builder assembles an [Engine]. A Builder is single-use; Build fails on the
// second call.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	credentials CredentialStore
	notifier    Notifier
	auditSink   AuditSink

	built bool
}

// New returns a [Builder] seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, challenges, and
// throttles.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithCredentialStore sets the host application's user store.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.credentials = store
	return b
}

// WithNotifier sets the outbound mail implementation. Defaults to
// [NoOpNotifier].
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the audit event sink. Defaults to [NoOpSink].
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithTokenKey sets the session token cipher key.
func (b *Builder) WithTokenKey(key []byte) *Builder {
	b.config.Security.TokenKey = cloneBytes(key)
	return b
}

// WithMetricsEnabled toggles the in-process metrics registry.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the validation latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, wires all stores and dispatchers, and
// starts the background workers.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.credentials == nil {
		return nil, errors.New("credential store required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokenCryptor, err := cryptor.New(cfg.Security.TokenKey)
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	notifier := b.notifier
	if notifier == nil {
		notifier = NoOpNotifier{}
	}

	engine := &Engine{
		config:      cfg,
		cryptor:     tokenCryptor,
		credentials: b.credentials,
		notifier:    notifier,
		sessions:    stores.NewSessionStore(b.redis, cfg.Session.RedisPrefix),
		challenges:  stores.NewChallengeStore(b.redis, cfg.TwoFactor.RedisPrefix),
		hasher:      hasher,
	}

	engine.rateLimiter = rate.New(b.redis, rate.Config{
		EnableIPThrottle:       cfg.Security.EnableIPThrottle,
		MaxLoginAttempts:       cfg.Security.MaxLoginAttempts,
		LoginCooldownDuration:  cfg.Security.LoginCooldownDuration,
		MaxVerifyAttempts:      cfg.Security.MaxVerifyAttempts,
		VerifyCooldownDuration: cfg.Security.VerifyCooldownDuration,
	})
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink)
	engine.notify = newNotifyDispatcher(cfg.Notify, engine.notifyFailed)

	b.built = true

	return engine, nil
}
