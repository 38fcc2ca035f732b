package authtrail

import (
	"context"
	"errors"
	"fmt"

	"github.com/kledara/authtrail/audit"
	"github.com/kledara/authtrail/challenge"
	"github.com/kledara/authtrail/credential"
	"github.com/kledara/authtrail/internal/codes"
	"github.com/kledara/authtrail/notify"
)

// Register creates an unverified account and sends a verification
// code. A failure to deliver the code does not undo the registration;
// the user can request a new code. Duplicate usernames and emails
// answer ErrDuplicateUser without revealing which field collided.
func (e *Engine) Register(ctx context.Context, username, email, plaintext string) (*AccountSummary, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	user, err := e.creds.Create(ctx, username, email, plaintext, credential.RoleUser)
	if err != nil {
		if errors.Is(err, credential.ErrDuplicate) {
			return nil, ErrDuplicateUser
		}
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := e.issueVerificationCode(ctx, user); err != nil {
		e.log.Warn("verification code not issued",
			"user", user.ID,
			"error", err,
		)
	}

	e.record(ctx, audit.Event{
		ActorID:        user.ID,
		ActorUsername:  user.Username,
		Action:         audit.ActionUserCreate,
		TargetID:       user.ID,
		TargetUsername: user.Username,
	})

	return toSummary(user), nil
}

// ResendVerification issues a fresh verification code, replacing any
// pending one. Unknown or already-verified emails succeed silently so
// the endpoint cannot be used to probe accounts.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
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
	if user.IsVerified {
		return nil
	}

	return e.issueVerificationCode(ctx, user)
}

// VerifyEmail consumes a pending verification code and marks the
// account verified. Unknown email, wrong code and expired code all
// answer ErrCodeInvalid.
func (e *Engine) VerifyEmail(ctx context.Context, email, code string) error {
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

	record, err := e.challenges.Get(ctx, challenge.KindVerifyEmail, user.ID)
	if err != nil {
		if errors.Is(err, challenge.ErrNotFound) || errors.Is(err, challenge.ErrExpired) {
			return ErrCodeInvalid
		}
		return fmt.Errorf("load verification challenge: %w", err)
	}
	if record.Code != code {
		return ErrCodeInvalid
	}

	consumed, err := e.challenges.Consume(ctx, challenge.KindVerifyEmail, user.ID)
	if err != nil {
		return fmt.Errorf("consume verification challenge: %w", err)
	}
	if !consumed {
		return ErrCodeInvalid
	}

	if err := e.creds.Repo().SetVerified(ctx, user.ID); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return nil
}

func (e *Engine) issueVerificationCode(ctx context.Context, user *credential.User) error {
	code, err := codes.Numeric(e.config.Verification.CodeDigits)
	if err != nil {
		return err
	}

	record := &challenge.Record{
		UserID:    user.ID,
		Code:      code,
		ExpiresAt: e.now().Add(e.config.Verification.CodeTTL).Unix(),
	}
	if err := e.challenges.Save(ctx, challenge.KindVerifyEmail, record, e.config.Verification.CodeTTL); err != nil {
		return err
	}

	e.notify(ctx, user.Email, notify.KindVerifyEmail, notify.Params{"code": code})
	return nil
}

func toSummary(user *credential.User) *AccountSummary {
	return &AccountSummary{
		ID:          user.ID,
		Username:    user.Username,
		Email:       user.Email,
		Role:        user.Role,
		IsVerified:  user.IsVerified,
		MFAEnabled:  user.MFAEnabled,
		IsLocked:    user.IsLocked,
		LastLoginAt: user.LastLoginAt,
		CreatedAt:   user.CreatedAt,
	}
}
