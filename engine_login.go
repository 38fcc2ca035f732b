package authtrail

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kledara/authtrail/audit"
	"github.com/kledara/authtrail/challenge"
	"github.com/kledara/authtrail/credential"
	"github.com/kledara/authtrail/device"
	"github.com/kledara/authtrail/internal/codes"
	"github.com/kledara/authtrail/notify"
)

// anonymousActor attributes failed logins that never resolved to a
// user record.
const anonymousActor = "anonymous"

// Login authenticates an email/password pair.
//
// Outcomes, in the order they are decided: unknown email and wrong
// password both return ErrInvalidCredentials; a locked account answers
// LockoutError before the password verdict is consulted, so probing a
// locked account reveals nothing about the password; an unverified
// account returns ErrEmailUnverified; an MFA-enabled account gets a
// code through the notifier and a result with MFARequired set; anyone
// else receives tokens.
//
// Every failed attempt advances the lockout counter. The failure that
// reaches the threshold locks the account and itself answers
// LockoutError.
func (e *Engine) Login(ctx context.Context, email, plaintext string) (*LoginResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	user, matched, err := e.creds.VerifyCredentials(ctx, email, plaintext)
	if err != nil {
		return nil, fmt.Errorf("verify credentials: %w", err)
	}

	if user == nil {
		e.record(ctx, audit.Event{
			ActorID:       anonymousActor,
			ActorUsername: email,
			Action:        audit.ActionLoginFailed,
			Details:       map[string]any{"reason": "unknown_email"},
		})
		return nil, ErrInvalidCredentials
	}

	// The lock answers before the password verdict: a locked account
	// responds identically to correct and wrong passwords.
	if user.LockedAt(e.now()) {
		e.record(ctx, audit.Event{
			ActorID:       user.ID,
			ActorUsername: user.Username,
			Action:        audit.ActionLoginFailed,
			Details:       map[string]any{"reason": "account_locked"},
		})
		lockErr := &LockoutError{}
		if user.LockUntil != nil {
			lockErr.Until = *user.LockUntil
		}
		return nil, lockErr
	}

	if !matched {
		locked, until, err := e.creds.RecordFailedAttempt(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("record failed attempt: %w", err)
		}

		details := map[string]any{"reason": "password_mismatch"}
		if locked {
			details["locked"] = true
		}
		e.record(ctx, audit.Event{
			ActorID:       user.ID,
			ActorUsername: user.Username,
			Action:        audit.ActionLoginFailed,
			Details:       details,
		})

		if locked {
			return nil, &LockoutError{Until: until}
		}
		return nil, ErrInvalidCredentials
	}

	// The plaintext just verified, so a hash minted under older, weaker
	// parameters can be upgraded in place. Best effort: the login does
	// not fail on it.
	if e.creds.NeedsRehash(user) {
		if err := e.creds.UpgradeHash(ctx, user, plaintext); err != nil {
			e.log.Warn("password hash upgrade failed",
				slog.String("user", user.ID),
				slog.Any("error", err),
			)
		}
	}

	if !user.IsVerified {
		return nil, ErrEmailUnverified
	}

	if user.MFAEnabled {
		return e.startMFAChallenge(ctx, user)
	}

	return e.finishLogin(ctx, user)
}

func (e *Engine) startMFAChallenge(ctx context.Context, user *credential.User) (*LoginResult, error) {
	code, err := codes.Numeric(e.config.MFA.CodeDigits)
	if err != nil {
		return nil, fmt.Errorf("generate mfa code: %w", err)
	}

	record := &challenge.Record{
		UserID:    user.ID,
		Code:      code,
		ExpiresAt: e.now().Add(e.config.MFA.CodeTTL).Unix(),
	}
	if err := e.challenges.Save(ctx, challenge.KindMFALogin, record, e.config.MFA.CodeTTL); err != nil {
		return nil, fmt.Errorf("save mfa challenge: %w", err)
	}

	e.notify(ctx, user.Email, notify.KindMFACode, notify.Params{"code": code})

	return &LoginResult{
		UserID:      user.ID,
		Username:    user.Username,
		Role:        user.Role,
		MFARequired: true,
	}, nil
}

// finishLogin runs the full-authentication tail shared by Login and
// VerifyMFA: lockout counter reset, suspicion scoring against history
// as it was before this login, device registration, token issuance,
// audit. The counter clears only here, so a password match that still
// owes an MFA code does not erase the failure history.
func (e *Engine) finishLogin(ctx context.Context, user *credential.User) (*LoginResult, error) {
	if err := e.creds.ResetAttempts(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("reset attempts: %w", err)
	}

	ip := clientIPFromContext(ctx)
	userAgent := userAgentFromContext(ctx)

	suspicion := e.devices.ScoreSuspicion(ctx, user.ID, userAgent, ip)

	var deviceID, deviceName string
	if record, err := e.devices.RecordLogin(ctx, user.ID, userAgent, ip); err != nil {
		// device history is advisory; the login proceeds without it
		e.log.Warn("device not recorded",
			slog.String("user", user.ID),
			slog.Any("error", err),
		)
	} else {
		deviceID = record.ID
		deviceName = record.Name
	}

	access, err := e.creds.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := e.creds.IssueRefreshToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	details := map[string]any{
		"suspicious": suspicion.IsSuspicious,
		"newDevice":  suspicion.IsNewDevice,
		"score":      suspicion.Score,
	}
	if deviceID != "" {
		details["deviceId"] = deviceID
	}
	e.record(ctx, audit.Event{
		ActorID:       user.ID,
		ActorUsername: user.Username,
		Action:        audit.ActionLoginSuccess,
		Details:       details,
	})

	if suspicion.IsSuspicious && e.config.Device.NotifyOnSuspicious {
		e.notify(ctx, user.Email, notify.KindSuspiciousLogin, notify.Params{
			"ip":     device.MaskIP(ip),
			"device": deviceName,
			"time":   e.now().UTC().Format(time.RFC3339),
		})
	}

	s := suspicion
	return &LoginResult{
		UserID:       user.ID,
		Username:     user.Username,
		Role:         user.Role,
		AccessToken:  access,
		RefreshToken: refresh,
		Suspicion:    &s,
	}, nil
}
