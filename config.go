package authtrail

import (
	"errors"
	"time"
)

// Config carries every engine tunable, grouped by concern. Start from
// DefaultConfig and override what you need; Build validates the
// result.
type Config struct {
	JWT           JWTConfig
	Password      PasswordConfig
	Lockout       LockoutConfig
	MFA           MFAConfig
	Verification  VerificationConfig
	PasswordReset PasswordResetConfig
	Audit         AuditConfig
	Device        DeviceConfig
	Challenge     ChallengeConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures token issuance. SigningMethod is "ed25519" or
// "hs256"; keys accept raw bytes or PEM.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls the failed-login counter.
type LockoutConfig struct {
	// Threshold is the consecutive-failure count at which the account
	// locks.
	Threshold int
	// Duration is how long the lock lasts.
	Duration time.Duration
}

/*
====================================
CHALLENGE FLOWS
====================================
*/

// MFAConfig controls the out-of-band login code.
type MFAConfig struct {
	CodeTTL    time.Duration
	CodeDigits int
}

// VerificationConfig controls the email-verification code.
type VerificationConfig struct {
	CodeTTL    time.Duration
	CodeDigits int
}

// PasswordResetConfig controls the password-reset code.
type PasswordResetConfig struct {
	CodeTTL    time.Duration
	CodeDigits int
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls trail buffering.
type AuditConfig struct {
	BufferSize int
	DropIfFull bool
}

/*
====================================
DEVICE CONFIG
====================================
*/

// DeviceConfig controls suspicion scoring and alerts.
type DeviceConfig struct {
	// RecentWindow is how many most-recent devices form the comparison
	// history.
	RecentWindow int
	// SuspicionThreshold is the score a login must exceed to be
	// flagged.
	SuspicionThreshold int
	// NotifyOnSuspicious sends a security alert when a flagged login
	// completes.
	NotifyOnSuspicious bool
}

// ChallengeConfig namespaces the Redis keys holding pending codes.
type ChallengeConfig struct {
	RedisPrefix string
}

// DefaultConfig returns the baseline configuration. JWT keys must
// still be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Lockout: LockoutConfig{
			Threshold: 5,
			Duration:  15 * time.Minute,
		},
		MFA: MFAConfig{
			CodeTTL:    5 * time.Minute,
			CodeDigits: 6,
		},
		Verification: VerificationConfig{
			CodeTTL:    24 * time.Hour,
			CodeDigits: 6,
		},
		PasswordReset: PasswordResetConfig{
			CodeTTL:    15 * time.Minute,
			CodeDigits: 6,
		},
		Audit: AuditConfig{
			BufferSize: 256,
			DropIfFull: true,
		},
		Device: DeviceConfig{
			RecentWindow:       5,
			SuspicionThreshold: 50,
			NotifyOnSuspicious: true,
		},
		Challenge: ChallengeConfig{
			RedisPrefix: "atc",
		},
	}
}

// Validate checks cross-field consistency. Key material is validated
// separately by the JWT manager.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("jwt TTLs must be positive")
	}
	if c.JWT.RefreshTTL < c.JWT.AccessTTL {
		return errors.New("jwt refresh TTL must not be shorter than access TTL")
	}
	if c.Lockout.Threshold <= 0 {
		return errors.New("lockout threshold must be positive")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("lockout duration must be positive")
	}
	if c.MFA.CodeTTL < time.Minute || c.MFA.CodeTTL > 10*time.Minute {
		return errors.New("mfa code TTL must be between 1 and 10 minutes")
	}
	if c.MFA.CodeDigits < 6 || c.MFA.CodeDigits > 10 {
		return errors.New("mfa code digits must be between 6 and 10")
	}
	if c.Verification.CodeTTL <= 0 {
		return errors.New("verification code TTL must be positive")
	}
	if c.PasswordReset.CodeTTL <= 0 {
		return errors.New("password reset code TTL must be positive")
	}
	if c.Device.RecentWindow <= 0 {
		return errors.New("device recent window must be positive")
	}
	if c.Device.SuspicionThreshold <= 0 {
		return errors.New("device suspicion threshold must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
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
