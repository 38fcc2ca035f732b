package authtrail

import (
	"context"
	"errors"
	"fmt"

	"github.com/kledara/authtrail/credential"
)

// RefreshResult carries the access token minted by Refresh. The
// refresh token is not rotated; the presented one stays valid until
// logout, password change, or expiry.
type RefreshResult struct {
	UserID      string `json:"userId"`
	AccessToken string `json:"accessToken"`
}

// Refresh exchanges a refresh token for a new access token. The token
// must verify and match the single stored copy byte for byte; any
// older token, even one that still verifies cryptographically, fails
// with ErrInvalidRefreshToken.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	user, access, err := e.creds.RotateOnRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}

	return &RefreshResult{
		UserID:      user.ID,
		AccessToken: access,
	}, nil
}

// Logout clears the stored refresh token, ending the session.
// Idempotent: logging out an already-logged-out or unknown user
// succeeds.
func (e *Engine) Logout(ctx context.Context, userID string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	if err := e.creds.InvalidateSession(ctx, userID); err != nil && !errors.Is(err, credential.ErrNotFound) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}
