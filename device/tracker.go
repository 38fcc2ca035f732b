package device

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	scoreNewDevice      = 40
	scoreUnusualIP      = 30
	scoreUnusualBrowser = 20
	scoreNoTrusted      = 10
)

// Config tunes suspicion scoring.
type Config struct {
	// RecentWindow is how many most-recent devices form the comparison
	// history.
	RecentWindow int
	// SuspicionThreshold is the score a login must exceed to be
	// flagged.
	SuspicionThreshold int
}

// Tracker records logins against a device history and scores new
// logins for suspicion. Scoring fails open: when history cannot be
// read, the login proceeds unflagged and the failure is logged.
type Tracker struct {
	cfg  Config
	repo Repository
	log  *slog.Logger
	now  func() time.Time
}

// NewTracker returns a Tracker over repo.
func NewTracker(cfg Config, repo Repository, log *slog.Logger) *Tracker {
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 5
	}
	if cfg.SuspicionThreshold <= 0 {
		cfg.SuspicionThreshold = 50
	}
	if log == nil {
		log = slog.Default()
	}

	return &Tracker{
		cfg:  cfg,
		repo: repo,
		log:  log,
		now:  time.Now,
	}
}

// RecordLogin upserts the device implied by (userID, userAgent, ip)
// and stamps it used now.
func (t *Tracker) RecordLogin(ctx context.Context, userID, userAgent, ip string) (*Record, error) {
	profile := ParseUserAgent(userAgent)
	now := t.now()

	record := Record{
		ID:          uuid.NewString(),
		UserID:      userID,
		Fingerprint: Fingerprint(userID, userAgent, ip),
		Name:        profile.Name,
		Type:        profile.Type,
		Browser:     profile.Browser,
		OS:          profile.OS,
		IPAddress:   ip,
		UserAgent:   userAgent,
		IsActive:    true,
		LastUsedAt:  now,
		CreatedAt:   now,
	}

	stored, err := t.repo.Upsert(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("record login device: %w", err)
	}
	return stored, nil
}

// ScoreSuspicion compares the login against the user's recent device
// history. It never returns an error: a history read failure logs and
// yields a zero score.
//
// Weights: new device 40, unusual IP 30, unusual browser 20, plus 10
// when the user has prior records and none is trusted. A score above
// the threshold flags the login. A first-ever login matches nothing,
// so all three signals fire and it scores 90.
func (t *Tracker) ScoreSuspicion(ctx context.Context, userID, userAgent, ip string) Suspicion {
	recent, err := t.repo.Recent(ctx, userID, t.cfg.RecentWindow)
	if err != nil {
		t.log.Warn("device history unavailable, skipping suspicion scoring",
			slog.String("user", userID),
			slog.Any("error", err),
		)
		return Suspicion{}
	}

	fingerprint := Fingerprint(userID, userAgent, ip)
	browser := ParseUserAgent(userAgent).Browser

	var (
		s          Suspicion
		anyTrusted bool
	)
	s.IsNewDevice = true
	s.IsUnusualIP = true
	s.IsUnusualBrowser = true

	for _, record := range recent {
		if record.Fingerprint == fingerprint {
			s.IsNewDevice = false
		}
		if record.IPAddress == ip {
			s.IsUnusualIP = false
		}
		if record.Browser == browser {
			s.IsUnusualBrowser = false
		}
		if record.IsTrusted {
			anyTrusted = true
		}
	}

	if s.IsNewDevice {
		s.Score += scoreNewDevice
	}
	if s.IsUnusualIP {
		s.Score += scoreUnusualIP
	}
	if s.IsUnusualBrowser {
		s.Score += scoreUnusualBrowser
	}
	if len(recent) > 0 && !anyTrusted {
		s.Score += scoreNoTrusted
	}

	s.IsSuspicious = s.Score > t.cfg.SuspicionThreshold
	return s
}

// Devices lists the user's devices with display-masked IPs.
func (t *Tracker) Devices(ctx context.Context, userID string) ([]Record, error) {
	records, err := t.repo.ByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].IPAddress = MaskIP(records[i].IPAddress)
	}
	return records, nil
}

// SetTrust marks a device trusted or untrusted. Owner-scoped: the
// device must belong to userID.
func (t *Tracker) SetTrust(ctx context.Context, userID, deviceID string, trusted bool) error {
	return t.repo.SetTrusted(ctx, userID, deviceID, trusted)
}

// Rename changes a device's display name.
func (t *Tracker) Rename(ctx context.Context, userID, deviceID, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("device name required")
	}
	return t.repo.Rename(ctx, userID, deviceID, name)
}

// Remove deactivates a device so it drops out of listings. The record
// itself stays in the scoring history. Removing an already-inactive
// device is a no-op.
func (t *Tracker) Remove(ctx context.Context, userID, deviceID string) error {
	return t.repo.Deactivate(ctx, userID, deviceID)
}
