package authtrail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kledara/authtrail/audit"
	"github.com/kledara/authtrail/challenge"
	"github.com/kledara/authtrail/credential"
	"github.com/kledara/authtrail/internal/codes"
	"github.com/kledara/authtrail/notify"
)

// RequestPasswordReset issues a reset code to the account's email.
// Unknown emails succeed silently. Unlike other flows, a notifier
// failure here is fatal: the issued code is rolled back and the caller
// sees ErrNotificationFailed, because a code that was never delivered
// would only lock the user into a dead-end wait.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	user, err := e.creds.Repo().ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load user: %w", err)
	}

	code, err := codes.Numeric(e.config.PasswordReset.CodeDigits)
	if err != nil {
		return fmt.Errorf("generate reset code: %w", err)
	}

	record := &challenge.Record{
		UserID:    user.ID,
		Code:      code,
		ExpiresAt: e.now().Add(e.config.PasswordReset.CodeTTL).Unix(),
	}
	if err := e.challenges.Save(ctx, challenge.KindPasswordReset, record, e.config.PasswordReset.CodeTTL); err != nil {
		return fmt.Errorf("save reset challenge: %w", err)
	}

	if err := e.notifier.Send(ctx, user.Email, notify.KindPasswordReset, notify.Params{"code": code}); err != nil {
		if _, delErr := e.challenges.Consume(ctx, challenge.KindPasswordReset, user.ID); delErr != nil {
			e.log.Error("reset challenge rollback failed",
				slog.String("user", user.ID),
				slog.Any("error", delErr),
			)
		}
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}

	return nil
}

// ResetPassword consumes a pending reset code and replaces the
// password. The stored refresh token is cleared and passwordChangedAt
// advances, so every outstanding session and access token dies with
// the old password. Unknown email, wrong code and expired code all
// answer ErrCodeInvalid.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	user, err := e.creds.Repo().ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return ErrCodeInvalid
		}
		return fmt.Errorf("load user: %w", err)
	}

	record, err := e.challenges.Get(ctx, challenge.KindPasswordReset, user.ID)
	if err != nil {
		if errors.Is(err, challenge.ErrNotFound) || errors.Is(err, challenge.ErrExpired) {
			return ErrCodeInvalid
		}
		return fmt.Errorf("load reset challenge: %w", err)
	}
	if record.Code != code {
		return ErrCodeInvalid
	}

	consumed, err := e.challenges.Consume(ctx, challenge.KindPasswordReset, user.ID)
	if err != nil {
		return fmt.Errorf("consume reset challenge: %w", err)
	}
	if !consumed {
		return ErrCodeInvalid
	}

	if err := e.creds.SetPassword(ctx, user.ID, newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := e.creds.InvalidateSession(ctx, user.ID); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}

	e.record(ctx, audit.Event{
		ActorID:       user.ID,
		ActorUsername: user.Username,
		Action:        audit.ActionPasswordReset,
	})

	return nil
}

// ChangePassword replaces the password after verifying the current
// one. Reusing the current password fails with ErrPasswordReuse. The
// stored refresh token is cleared; the caller must log in again.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
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

	matched, err := e.creds.VerifyPassword(user, currentPassword)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !matched {
		return ErrInvalidCredentials
	}

	if newPassword == currentPassword {
		return ErrPasswordReuse
	}

	if err := e.creds.SetPassword(ctx, user.ID, newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := e.creds.InvalidateSession(ctx, user.ID); err != nil {
		return fmt.Errorf("invalidate session: %w", err)
	}

	e.record(ctx, audit.Event{
		ActorID:       user.ID,
		ActorUsername: user.Username,
		Action:        audit.ActionPasswordChange,
	})

	return nil
}
