package authtrail

import (
	"context"
	"errors"
	"fmt"

	"github.com/kledara/authtrail/credential"
)

// ValidateAccess verifies an access token and returns the principal
// it names. Beyond the signature and expiry checks, the token's issue
// time is compared against the account's last password change: a token
// minted before the change fails with ErrInvalidAccessToken. A locked
// account also fails validation.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*Identity, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	user, _, err := e.creds.ParseAccess(ctx, token)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, ErrInvalidAccessToken
		}
		return nil, fmt.Errorf("validate access: %w", err)
	}

	if user.LockedAt(e.now()) {
		return nil, ErrInvalidAccessToken
	}

	return &Identity{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
	}, nil
}
