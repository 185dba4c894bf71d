package authcore

import (
	"bytes"
	"errors"
	"time"
)

// Config carries every tunable of the engine. Instances are cloned at
// Build time and treated as immutable afterwards.
type Config struct {
	JWT      JWTConfig
	Password PasswordConfig
	OTP      OTPConfig
	Lockout  LockoutConfig
	Session  SessionConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures the token pair. The two secrets must differ;
// tokens signed with one class of secret never verify as the other.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig sets argon2id costs and the credential aging policy.
// ExpiryWindow is how long a newly set password stays valid.
type PasswordConfig struct {
	Memory           uint32 // in KB
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MaxPasswordBytes int
	UpgradeOnLogin   bool
	ExpiryWindow     time.Duration
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig governs one-time codes for login, password reset and
// contact verification.
type OTPConfig struct {
	Digits                   int
	TTL                      time.Duration
	EnableIdentifierThrottle bool
	EnableIPThrottle         bool
	SendWindow               time.Duration
	MaxSendsPerWindow        int
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls automatic account locking after repeated
// password failures. Duration is how long the lock holds; the account
// soft-unlocks once it passes.
type LockoutConfig struct {
	Enabled   bool
	Threshold int
	Duration  time.Duration
	Window    time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes the audit directory. BlacklistTTL zero derives the
// marker lifetime from JWT.RefreshTTL at build time.
type SessionConfig struct {
	PointerTTL   time.Duration
	BlacklistTTL time.Duration
	HistoryLimit int
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics block.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:  5 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
			ExpiryWindow:   90 * 24 * time.Hour,
		},
		OTP: OTPConfig{
			Digits:                   6,
			TTL:                      5 * time.Minute,
			EnableIdentifierThrottle: true,
			EnableIPThrottle:         true,
			SendWindow:               15 * time.Minute,
			MaxSendsPerWindow:        5,
		},
		Lockout: LockoutConfig{
			Enabled:   true,
			Threshold: 5,
			Duration:  15 * time.Minute,
			Window:    15 * time.Minute,
		},
		Session: SessionConfig{
			PointerTTL:   7 * 24 * time.Hour,
			BlacklistTTL: 0,
			HistoryLimit: 50,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the baseline configuration. Callers must still
// supply both JWT secrets before Build.
func DefaultConfig() Config {
	return defaultConfig()
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
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

func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}
	if len(c.JWT.AccessSecret) < 32 {
		return errors.New("JWT AccessSecret must be >= 32 bytes")
	}
	if len(c.JWT.RefreshSecret) < 32 {
		return errors.New("JWT RefreshSecret must be >= 32 bytes")
	}
	if bytes.Equal(c.JWT.AccessSecret, c.JWT.RefreshSecret) {
		return errors.New("JWT AccessSecret and RefreshSecret must differ")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("JWT Leeway must be between 0 and 2m")
	}

	// Password
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
	if c.Password.ExpiryWindow <= 0 {
		return errors.New("Password ExpiryWindow must be > 0")
	}

	// OTP
	if c.OTP.Digits != 6 {
		return errors.New("OTP Digits must be 6")
	}
	if c.OTP.TTL <= 0 || c.OTP.TTL > 15*time.Minute {
		return errors.New("OTP TTL must be between 0 and 15m")
	}
	if c.OTP.EnableIdentifierThrottle || c.OTP.EnableIPThrottle {
		if c.OTP.SendWindow <= 0 {
			return errors.New("OTP SendWindow must be > 0 when throttling is enabled")
		}
		if c.OTP.MaxSendsPerWindow <= 0 {
			return errors.New("OTP MaxSendsPerWindow must be > 0 when throttling is enabled")
		}
	}

	// Lockout
	if c.Lockout.Enabled {
		if c.Lockout.Threshold <= 0 {
			return errors.New("Lockout Threshold must be > 0")
		}
		if c.Lockout.Duration <= 0 {
			return errors.New("Lockout Duration must be > 0")
		}
		if c.Lockout.Window < 0 {
			return errors.New("Lockout Window must be >= 0")
		}
	}

	// Session
	if c.Session.PointerTTL <= 0 {
		return errors.New("Session PointerTTL must be > 0")
	}
	if c.Session.BlacklistTTL < 0 {
		return errors.New("Session BlacklistTTL must be >= 0")
	}
	if c.Session.HistoryLimit < 0 {
		return errors.New("Session HistoryLimit must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
