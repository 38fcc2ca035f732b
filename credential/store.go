package credential

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kledara/authtrail/jwt"
	"github.com/kledara/authtrail/password"
)

var (
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// Config tunes lockout accounting.
type Config struct {
	// LockThreshold is the failed-attempt count at which the account
	// locks.
	LockThreshold int
	// LockDuration is how long a lock lasts.
	LockDuration time.Duration
}

// Store coordinates user records, password hashing and token
// issuance.
type Store struct {
	cfg    Config
	repo   Repository
	hasher *password.Hasher
	tokens *jwt.Manager
	now    func() time.Time

	// dummyHash keeps the unknown-email path doing the same argon2
	// work as the wrong-password path.
	dummyHash string
}

// NewStore wires a Store. The hasher and token manager must already
// be validated.
func NewStore(cfg Config, repo Repository, hasher *password.Hasher, tokens *jwt.Manager) (*Store, error) {
	if cfg.LockThreshold <= 0 {
		cfg.LockThreshold = 5
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 15 * time.Minute
	}

	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare credential store: %w", err)
	}

	return &Store{
		cfg:       cfg,
		repo:      repo,
		hasher:    hasher,
		tokens:    tokens,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// SetClock overrides the store's clock. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates, hashes and inserts a new unverified user.
func (s *Store) Create(ctx context.Context, username, email, plaintext, role string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))

	if !usernameRe.MatchString(username) {
		return nil, fmt.Errorf("invalid username")
	}
	if !emailRe.MatchString(email) {
		return nil, fmt.Errorf("invalid email")
	}
	switch role {
	case RoleUser, RoleAdmin, RoleSuperadmin:
	case "":
		role = RoleUser
	default:
		return nil, fmt.Errorf("invalid role")
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &User{
		ID:                uuid.NewString(),
		Username:          username,
		Email:             email,
		PasswordHash:      hash,
		Role:              role,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Insert(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyCredentials looks up the user by email and checks the
// password. A missing user returns (nil, false, nil) after a dummy
// hash comparison, so the caller cannot distinguish unknown email from
// wrong password by timing or by error shape.
func (s *Store) VerifyCredentials(ctx context.Context, email, plaintext string) (*User, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.repo.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_, _ = s.hasher.Verify(plaintext, s.dummyHash)
			return nil, false, nil
		}
		return nil, false, err
	}

	matched, err := s.hasher.Verify(plaintext, user.PasswordHash)
	if err != nil {
		return nil, false, err
	}
	return user, matched, nil
}

// VerifyPassword checks plaintext against an already-loaded user.
func (s *Store) VerifyPassword(user *User, plaintext string) (bool, error) {
	return s.hasher.Verify(plaintext, user.PasswordHash)
}

// NeedsRehash reports whether the stored hash was produced with weaker
// parameters than the store currently uses.
func (s *Store) NeedsRehash(user *User) bool {
	needs, _ := s.hasher.NeedsUpgrade(user.PasswordHash)
	return needs
}

// UpgradeHash re-stores an already-verified password under the current
// parameters. The password itself is unchanged, so passwordChangedAt
// keeps its old value and outstanding tokens stay valid.
func (s *Store) UpgradeHash(ctx context.Context, user *User, plaintext string) error {
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return err
	}
	return s.repo.SetPassword(ctx, user.ID, hash, user.PasswordChangedAt)
}

// RecordFailedAttempt advances the lockout counter after a failed
// password. An expired lock restarts the count at one and clears the
// lock fields; otherwise the count increments and, at the threshold,
// the account locks for the configured window. Returns the lock state
// after the write.
func (s *Store) RecordFailedAttempt(ctx context.Context, user *User) (locked bool, until time.Time, err error) {
	now := s.now()

	if user.LockExpired(now) {
		if err := s.repo.SetCounters(ctx, user.ID, 1, false, nil); err != nil {
			return false, time.Time{}, err
		}
		return false, time.Time{}, nil
	}

	attempts := user.LoginAttempts + 1
	if attempts >= s.cfg.LockThreshold {
		lockUntil := now.Add(s.cfg.LockDuration)
		if err := s.repo.SetCounters(ctx, user.ID, attempts, true, &lockUntil); err != nil {
			return false, time.Time{}, err
		}
		return true, lockUntil, nil
	}

	if err := s.repo.SetCounters(ctx, user.ID, attempts, false, nil); err != nil {
		return false, time.Time{}, err
	}
	return false, time.Time{}, nil
}

// ResetAttempts zeroes the counter and clears any lock. Runs on
// successful password verification.
func (s *Store) ResetAttempts(ctx context.Context, userID string) error {
	return s.repo.SetCounters(ctx, userID, 0, false, nil)
}

// IssueAccessToken mints a short-lived access token for user.
func (s *Store) IssueAccessToken(user *User) (string, error) {
	return s.tokens.CreateAccess(user.ID, user.Role, s.now())
}

// IssueRefreshToken mints a refresh token, persists it as the user's
// single active session and stamps the login time. Any previously
// stored refresh token is overwritten and thereby invalidated.
func (s *Store) IssueRefreshToken(ctx context.Context, user *User) (string, error) {
	now := s.now()
	token, err := s.tokens.CreateRefresh(user.ID, now)
	if err != nil {
		return "", err
	}
	if err := s.repo.SetRefreshToken(ctx, user.ID, token, &now); err != nil {
		return "", err
	}
	return token, nil
}

// RotateOnRefresh validates a presented refresh token against both its
// signature and the stored copy, then mints a new access token. The
// refresh token itself is not rotated. Any mismatch — bad signature,
// expired, unknown user, or not the stored token — returns ErrNotFound
// for the caller to map to its invalid-refresh error.
func (s *Store) RotateOnRefresh(ctx context.Context, refreshToken string) (*User, string, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return nil, "", ErrNotFound
	}

	user, err := s.repo.ByID(ctx, claims.UID)
	if err != nil {
		return nil, "", err
	}

	if user.RefreshToken == "" || user.RefreshToken != refreshToken {
		return nil, "", ErrNotFound
	}

	access, err := s.IssueAccessToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, access, nil
}

// InvalidateSession clears the stored refresh token. Idempotent.
func (s *Store) InvalidateSession(ctx context.Context, userID string) error {
	return s.repo.SetRefreshToken(ctx, userID, "", nil)
}

// SetPassword rehashes and stores a new password, stamping
// passwordChangedAt so outstanding access tokens minted before the
// change stop validating.
func (s *Store) SetPassword(ctx context.Context, userID, plaintext string) error {
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return err
	}
	return s.repo.SetPassword(ctx, userID, hash, s.now())
}

// ParseAccess verifies an access token and checks its issue time
// against the user's last password change.
func (s *Store) ParseAccess(ctx context.Context, token string) (*User, *jwt.AccessClaims, error) {
	claims, err := s.tokens.ParseAccess(token)
	if err != nil {
		return nil, nil, ErrNotFound
	}

	user, err := s.repo.ByID(ctx, claims.UID)
	if err != nil {
		return nil, nil, err
	}

	if claims.IssuedAt != nil && claims.IssuedAt.Time.Before(user.PasswordChangedAt.Truncate(time.Second)) {
		return nil, nil, ErrNotFound
	}
	return user, claims, nil
}

// Repo exposes the underlying repository for admin operations that
// bypass credential logic.
func (s *Store) Repo() Repository {
	return s.repo
}
