package phishgate

import (
	"errors"
	"time"
)

// Config groups all Engine tuning. Zero values are filled by
// [defaultConfig]; [Config.Validate] runs during Build.
type Config struct {
	Session   SessionConfig
	TwoFactor TwoFactorConfig
	Password  PasswordConfig
	Account   AccountConfig
	Authz     AuthzConfig
	Notify    NotifyConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls session issuance and storage.
type SessionConfig struct {
	RedisPrefix string
	// Lifetime is the absolute session lifetime; there is no sliding
	// renewal and no refresh mechanism.
	Lifetime time.Duration
}

/*
====================================
TWO FACTOR CONFIG
====================================
*/

// TwoFactorConfig controls the challenge/response second factor.
type TwoFactorConfig struct {
	RedisPrefix  string
	CodeDigits   int
	ChallengeTTL time.Duration
	MaxAttempts  int
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id cost parameters.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// AccountConfig controls server-side account provisioning.
type AccountConfig struct {
	// GeneratedPasswordLength applies to initial and admin-reset passwords.
	GeneratedPasswordLength int
}

// AuthzConfig controls the authorization tiers.
type AuthzConfig struct {
	// OperatorTenantID is the tenant whose admins hold TierTenantAdmin.
	OperatorTenantID string
}

// NotifyConfig controls the async notification dispatcher.
type NotifyConfig struct {
	BufferSize  int
	SendTimeout time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics registry.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig holds the cipher key and throttle settings.
type SecurityConfig struct {
	ProductionMode bool
	// TokenKey is the session token cipher key: 32 raw bytes, or any
	// other non-empty value treated as a passphrase and digested.
	TokenKey               []byte
	EnableIPThrottle       bool
	MaxLoginAttempts       int
	LoginCooldownDuration  time.Duration
	MaxVerifyAttempts      int
	VerifyCooldownDuration time.Duration
}

// DefaultConfig returns the configuration a fresh [Builder] starts from.
// Callers adjust fields and pass the result to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			RedisPrefix: "pg:sess",
			Lifetime:    12 * time.Hour,
		},
		TwoFactor: TwoFactorConfig{
			RedisPrefix:  "pg:2fa",
			CodeDigits:   6,
			ChallengeTTL: 5 * time.Minute,
			MaxAttempts:  5,
		},
		Password: PasswordConfig{
			Memory:         64 * 1024,
			Time:           2,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Account: AccountConfig{
			GeneratedPasswordLength: 16,
		},
		Authz: AuthzConfig{
			OperatorTenantID: "1",
		},
		Notify: NotifyConfig{
			BufferSize:  256,
			SendTimeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Security: SecurityConfig{
			EnableIPThrottle:       true,
			MaxLoginAttempts:       10,
			LoginCooldownDuration:  15 * time.Minute,
			MaxVerifyAttempts:      20,
			VerifyCooldownDuration: 15 * time.Minute,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Security.TokenKey = cloneBytes(cfg.Security.TokenKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks invariants across the configuration. ProductionMode
// tightens key and throttle requirements.
func (c *Config) Validate() error {
	if c.Session.Lifetime <= 0 {
		return errors.New("session lifetime must be positive")
	}
	if c.TwoFactor.CodeDigits < 6 || c.TwoFactor.CodeDigits > 10 {
		return errors.New("two-factor code digits must be between 6 and 10")
	}
	if c.TwoFactor.ChallengeTTL <= 0 {
		return errors.New("two-factor challenge ttl must be positive")
	}
	if c.TwoFactor.ChallengeTTL > c.Session.Lifetime {
		return errors.New("two-factor challenge ttl must not exceed session lifetime")
	}
	if c.TwoFactor.MaxAttempts < 1 {
		return errors.New("two-factor max attempts must be >= 1")
	}
	if len(c.Security.TokenKey) == 0 {
		return errors.New("token key required")
	}
	if c.Account.GeneratedPasswordLength < 12 {
		return errors.New("generated password length must be >= 12")
	}
	if c.Authz.OperatorTenantID == "" {
		return errors.New("operator tenant id required")
	}
	if c.Security.MaxLoginAttempts < 1 {
		return errors.New("max login attempts must be >= 1")
	}
	if c.Security.LoginCooldownDuration <= 0 {
		return errors.New("login cooldown must be positive")
	}
	if c.Security.MaxVerifyAttempts < 1 {
		return errors.New("max verify attempts must be >= 1")
	}
	if c.Security.VerifyCooldownDuration <= 0 {
		return errors.New("verify cooldown must be positive")
	}

	if c.Security.ProductionMode {
		if len(c.Security.TokenKey) < 32 {
			return errors.New("production mode requires a token key of at least 32 bytes")
		}
		if !c.Security.EnableIPThrottle {
			return errors.New("production mode requires ip throttling")
		}
		if c.Session.Lifetime > 24*time.Hour {
			return errors.New("production mode caps session lifetime at 24h")
		}
		if c.TwoFactor.ChallengeTTL > 15*time.Minute {
			return errors.New("production mode caps challenge ttl at 15m")
		}
	}

	return nil
}
