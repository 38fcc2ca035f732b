package authtrail

import (
	"time"

	"github.com/kledara/authtrail/device"
)

// LoginResult is the outcome of Login or VerifyMFA. When MFARequired
// is set, no tokens are present and the caller must complete the MFA
// step; otherwise both tokens are populated.
type LoginResult struct {
	UserID       string            `json:"userId"`
	Username     string            `json:"username"`
	Role         string            `json:"role"`
	AccessToken  string            `json:"accessToken,omitempty"`
	RefreshToken string            `json:"refreshToken,omitempty"`
	MFARequired  bool              `json:"mfaRequired,omitempty"`
	Suspicion    *device.Suspicion `json:"suspicion,omitempty"`
}

// Identity is the authenticated principal extracted from a validated
// access token.
type Identity struct {
	UserID   string
	Username string
	Role     string
}

// Actor identifies who performs an administrative operation, for
// audit attribution.
type Actor struct {
	ID       string
	Username string
	Role     string
}

// UserUpdate is the admin-editable field set; nil pointers leave the
// field unchanged.
type UserUpdate struct {
	Username   *string
	Email      *string
	Role       *string
	IsVerified *bool
}

// AccountSummary is the engine's outward view of a user record.
type AccountSummary struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Role        string     `json:"role"`
	IsVerified  bool       `json:"isVerified"`
	MFAEnabled  bool       `json:"mfaEnabled"`
	IsLocked    bool       `json:"isLocked"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}
