// Package device tracks the devices a user signs in from and scores
// how unusual a login looks against that history.
package device

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("device not found")
)

// Record is one device a user has authenticated from, identified by
// its fingerprint within that user's history.
type Record struct {
	ID          string    `bson:"_id" json:"id"`
	UserID      string    `bson:"userId" json:"userId"`
	Fingerprint string    `bson:"fingerprint" json:"-"`
	Name        string    `bson:"name" json:"name"`
	Type        string    `bson:"type" json:"type"`
	Browser     string    `bson:"browser" json:"browser"`
	OS          string    `bson:"os" json:"os"`
	IPAddress   string    `bson:"ipAddress" json:"ipAddress"`
	UserAgent   string    `bson:"userAgent" json:"-"`
	IsActive    bool      `bson:"isActive" json:"isActive"`
	IsTrusted   bool      `bson:"isTrusted" json:"isTrusted"`
	LastUsedAt  time.Time `bson:"lastUsedAt" json:"lastUsedAt"`
	CreatedAt   time.Time `bson:"createdAt" json:"createdAt"`
}

// Suspicion is the outcome of scoring one login against the user's
// recent device history.
type Suspicion struct {
	IsNewDevice      bool `json:"isNewDevice"`
	IsUnusualIP      bool `json:"isUnusualIp"`
	IsUnusualBrowser bool `json:"isUnusualBrowser"`
	Score            int  `json:"score"`
	IsSuspicious     bool `json:"isSuspicious"`
}

// Repository persists device records.
type Repository interface {
	// Upsert inserts record or, when (userID, fingerprint) exists,
	// refreshes its IP, last-used time and active flag. It returns the
	// stored record.
	Upsert(ctx context.Context, record Record) (*Record, error)
	// Recent returns the user's most recently used devices, newest
	// first, capped at limit. Deactivated records are included so the
	// scoring history survives removal.
	Recent(ctx context.Context, userID string, limit int) ([]Record, error)
	ByID(ctx context.Context, userID, deviceID string) (*Record, error)
	ByUser(ctx context.Context, userID string) ([]Record, error)
	SetTrusted(ctx context.Context, userID, deviceID string, trusted bool) error
	Rename(ctx context.Context, userID, deviceID, name string) error
	Deactivate(ctx context.Context, userID, deviceID string) error
}

// Fingerprint derives the stable device identity for a (user, agent,
// ip) triple: lowercase hex sha256 of the exact concatenation.
func Fingerprint(userID, userAgent, ip string) string {
	sum := sha256.Sum256([]byte(userID + userAgent + ip))
	return hex.EncodeToString(sum[:])
}

// MaskIP hides the host half of a dotted-quad address, "a.b.*.*".
// Anything that is not four dot-separated parts (IPv6, empty) is
// returned unchanged.
func MaskIP(ip string) string {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return ip
	}
	return parts[0] + "." + parts[1] + ".*.*"
}
