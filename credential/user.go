// Package credential owns user records: password verification with
// lockout accounting, and access/refresh token issuance tied to the
// stored session state.
package credential

import (
	"context"
	"errors"
	"time"
)

// Role is the flat account role enum.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("username or email already in use")
)

// User is the stored account record.
type User struct {
	ID                string     `bson:"_id" json:"id"`
	Username          string     `bson:"username" json:"username"`
	Email             string     `bson:"email" json:"email"`
	PasswordHash      string     `bson:"passwordHash" json:"-"`
	Role              string     `bson:"role" json:"role"`
	IsVerified        bool       `bson:"isVerified" json:"isVerified"`
	MFAEnabled        bool       `bson:"mfaEnabled" json:"mfaEnabled"`
	LoginAttempts     int        `bson:"loginAttempts" json:"-"`
	IsLocked          bool       `bson:"isLocked" json:"isLocked"`
	LockUntil         *time.Time `bson:"lockUntil,omitempty" json:"-"`
	RefreshToken      string     `bson:"refreshToken,omitempty" json:"-"`
	PasswordChangedAt time.Time  `bson:"passwordChangedAt" json:"-"`
	LastLoginAt       *time.Time `bson:"lastLoginAt,omitempty" json:"lastLoginAt,omitempty"`
	CreatedAt         time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time  `bson:"updatedAt" json:"updatedAt"`
}

// LockedAt reports whether the account is locked at now. A lock with
// no LockUntil is an administrative lock and never expires on its own.
func (u *User) LockedAt(now time.Time) bool {
	return u.IsLocked && (u.LockUntil == nil || u.LockUntil.After(now))
}

// LockExpired reports whether the account carries a timed lock whose
// window has already passed.
func (u *User) LockExpired(now time.Time) bool {
	return u.IsLocked && u.LockUntil != nil && !u.LockUntil.After(now)
}

// Update is the set of admin-editable fields; nil pointers leave the
// field untouched.
type Update struct {
	Username   *string
	Email      *string
	Role       *string
	IsVerified *bool
}

// Repository persists user records. Implementations return
// ErrNotFound for missing ids/emails and ErrDuplicate when a unique
// constraint on username or email is violated.
type Repository interface {
	Insert(ctx context.Context, user *User) error
	ByID(ctx context.Context, id string) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)

	// SetCounters overwrites the lockout state in one write.
	SetCounters(ctx context.Context, id string, attempts int, locked bool, lockUntil *time.Time) error

	// SetRefreshToken stores the single active refresh token; empty
	// clears it. A non-nil lastLoginAt is stamped in the same write.
	SetRefreshToken(ctx context.Context, id, token string, lastLoginAt *time.Time) error

	SetPassword(ctx context.Context, id, hash string, changedAt time.Time) error
	SetVerified(ctx context.Context, id string) error
	SetMFAEnabled(ctx context.Context, id string, enabled bool) error

	Update(ctx context.Context, id string, update Update) (*User, error)
	Delete(ctx context.Context, id string) error

	// UpdateManyExcludingRole applies update to every listed user
	// except those holding excludedRole, returning how many matched.
	UpdateManyExcludingRole(ctx context.Context, ids []string, update Update, excludedRole string) (int64, error)
}
