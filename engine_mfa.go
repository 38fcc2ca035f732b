package authtrail

import (
	"context"
	"errors"
	"fmt"

	"github.com/kledara/authtrail/audit"
	"github.com/kledara/authtrail/challenge"
	"github.com/kledara/authtrail/credential"
)

// VerifyMFA completes a login that answered MFARequired. The code is
// single-use: consuming it deletes the pending challenge, so a replay
// of the same code fails with ErrMFAExpired. A wrong code leaves the
// challenge in place until its TTL runs out; expiry is the only
// throttle on guessing.
func (e *Engine) VerifyMFA(ctx context.Context, userID, code string) (*LoginResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	user, err := e.creds.Repo().ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	record, err := e.challenges.Get(ctx, challenge.KindMFALogin, userID)
	if err != nil {
		if errors.Is(err, challenge.ErrNotFound) || errors.Is(err, challenge.ErrExpired) {
			return nil, ErrMFAExpired
		}
		return nil, fmt.Errorf("load mfa challenge: %w", err)
	}

	if record.Code != code {
		return nil, ErrMFAMismatch
	}

	consumed, err := e.challenges.Consume(ctx, challenge.KindMFALogin, userID)
	if err != nil {
		return nil, fmt.Errorf("consume mfa challenge: %w", err)
	}
	if !consumed {
		// lost the race against a concurrent verification
		return nil, ErrMFAExpired
	}

	return e.finishLogin(ctx, user)
}

// SetMFAEnabled toggles MFA for the account. Setting the current
// state again is a no-op and is not audited.
func (e *Engine) SetMFAEnabled(ctx context.Context, userID string, enabled bool) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	user, err := e.creds.Repo().ByID(ctx, userID)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("load user: %w", err)
	}

	if user.MFAEnabled == enabled {
		return nil
	}

	if err := e.creds.Repo().SetMFAEnabled(ctx, userID, enabled); err != nil {
		return fmt.Errorf("set mfa: %w", err)
	}

	action := audit.ActionMFAEnable
	if !enabled {
		action = audit.ActionMFADisable
	}
	e.record(ctx, audit.Event{
		ActorID:       user.ID,
		ActorUsername: user.Username,
		Action:        action,
	})

	return nil
}
