package authtrail

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kledara/authtrail/audit"
	"github.com/kledara/authtrail/challenge"
	"github.com/kledara/authtrail/credential"
	"github.com/kledara/authtrail/device"
	"github.com/kledara/authtrail/internal/mongodb"
	"github.com/kledara/authtrail/jwt"
	"github.com/kledara/authtrail/notify"
	"github.com/kledara/authtrail/password"
)

// Builder assembles an Engine. Construct with New, chain With*
// options, finish with Build. A Builder is single-use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	users    credential.Repository
	devices  device.Repository
	auditLog audit.Repository

	notifier notify.Sender
	logger   *slog.Logger

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing the challenge store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMongo wires all three repositories to a MongoDB database. Use
// the individual With*Repository options to mix storage backends.
func (b *Builder) WithMongo(db *mongo.Database) *Builder {
	store := mongodb.New(db)
	b.users = store.Users
	b.devices = store.Devices
	b.auditLog = store.Audit
	return b
}

// WithUserRepository sets the user record store.
func (b *Builder) WithUserRepository(repo credential.Repository) *Builder {
	b.users = repo
	return b
}

// WithDeviceRepository sets the device record store.
func (b *Builder) WithDeviceRepository(repo device.Repository) *Builder {
	b.devices = repo
	return b
}

// WithAuditRepository sets the audit event store.
func (b *Builder) WithAuditRepository(repo audit.Repository) *Builder {
	b.auditLog = repo
	return b
}

// WithNotifier sets the outbound notification sender.
func (b *Builder) WithNotifier(sender notify.Sender) *Builder {
	b.notifier = sender
	return b
}

// WithLogger sets the engine logger; defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// Build validates the configuration and dependencies and constructs
// the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user repository required")
	}
	if b.devices == nil {
		return nil, errors.New("device repository required")
	}
	if b.auditLog == nil {
		return nil, errors.New("audit repository required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Leeway:        cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	creds, err := credential.NewStore(credential.Config{
		LockThreshold: cfg.Lockout.Threshold,
		LockDuration:  cfg.Lockout.Duration,
	}, b.users, hasher, tokens)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config: cfg,
		creds:  creds,
		devices: device.NewTracker(device.Config{
			RecentWindow:       cfg.Device.RecentWindow,
			SuspicionThreshold: cfg.Device.SuspicionThreshold,
		}, b.devices, logger),
		trail: audit.NewTrail(audit.Config{
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditLog, logger),
		challenges: challenge.NewStore(b.redis, cfg.Challenge.RedisPrefix),
		notifier:   b.notifier,
		log:        logger,
		now:        time.Now,
	}

	b.built = true

	return engine, nil
}
