package authtrail

import (
	"context"
	"errors"
	"fmt"

	"github.com/kledara/authtrail/audit"
	"github.com/kledara/authtrail/credential"
)

// GetUser returns the account summary for id.
func (e *Engine) GetUser(ctx context.Context, id string) (*AccountSummary, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	user, err := e.loadUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return toSummary(user), nil
}

// LockUser places an administrative lock on the target account. The
// lock has no expiry; only UnlockUser releases it. Superadmin accounts
// cannot be locked.
func (e *Engine) LockUser(ctx context.Context, actor Actor, targetID string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	target, err := e.loadUser(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Role == credential.RoleSuperadmin {
		return ErrSuperadminImmutable
	}

	if err := e.creds.Repo().SetCounters(ctx, target.ID, target.LoginAttempts, true, nil); err != nil {
		return fmt.Errorf("lock user: %w", err)
	}

	e.record(ctx, audit.Event{
		ActorID:        actor.ID,
		ActorUsername:  actor.Username,
		Action:         audit.ActionAccountLock,
		TargetID:       target.ID,
		TargetUsername: target.Username,
	})

	return nil
}

// UnlockUser releases any lock on the target account and zeroes the
// failed-attempt counter.
func (e *Engine) UnlockUser(ctx context.Context, actor Actor, targetID string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	target, err := e.loadUser(ctx, targetID)
	if err != nil {
		return err
	}

	if err := e.creds.Repo().SetCounters(ctx, target.ID, 0, false, nil); err != nil {
		return fmt.Errorf("unlock user: %w", err)
	}

	e.record(ctx, audit.Event{
		ActorID:        actor.ID,
		ActorUsername:  actor.Username,
		Action:         audit.ActionAccountUnlock,
		TargetID:       target.ID,
		TargetUsername: target.Username,
	})

	return nil
}

// UpdateUser applies an admin edit to the target account. Superadmin
// accounts are immutable, and no update may grant the superadmin role.
func (e *Engine) UpdateUser(ctx context.Context, actor Actor, targetID string, update UserUpdate) (*AccountSummary, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	if err := validateUpdate(update); err != nil {
		return nil, err
	}

	target, err := e.loadUser(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.Role == credential.RoleSuperadmin {
		return nil, ErrSuperadminImmutable
	}

	updated, err := e.creds.Repo().Update(ctx, target.ID, credential.Update{
		Username:   update.Username,
		Email:      update.Email,
		Role:       update.Role,
		IsVerified: update.IsVerified,
	})
	if err != nil {
		if errors.Is(err, credential.ErrDuplicate) {
			return nil, ErrDuplicateUser
		}
		if errors.Is(err, credential.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update user: %w", err)
	}

	e.record(ctx, audit.Event{
		ActorID:        actor.ID,
		ActorUsername:  actor.Username,
		Action:         audit.ActionUserUpdate,
		TargetID:       updated.ID,
		TargetUsername: updated.Username,
		Details:        updateDetails(update),
	})

	return toSummary(updated), nil
}

// DeleteUser removes the target account. Superadmin accounts cannot
// be deleted.
func (e *Engine) DeleteUser(ctx context.Context, actor Actor, targetID string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	target, err := e.loadUser(ctx, targetID)
	if err != nil {
		return err
	}
	if target.Role == credential.RoleSuperadmin {
		return ErrSuperadminImmutable
	}

	if err := e.creds.Repo().Delete(ctx, target.ID); err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}

	e.record(ctx, audit.Event{
		ActorID:        actor.ID,
		ActorUsername:  actor.Username,
		Action:         audit.ActionUserDelete,
		TargetID:       target.ID,
		TargetUsername: target.Username,
	})

	return nil
}

// BatchUpdateUsers applies one edit to many accounts in a single
// write. Superadmin accounts in the id list are skipped, not failed.
// Returns how many accounts changed.
func (e *Engine) BatchUpdateUsers(ctx context.Context, actor Actor, targetIDs []string, update UserUpdate) (int64, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}

	if len(targetIDs) == 0 {
		return 0, fmt.Errorf("%w: no target ids", ErrValidation)
	}
	if update.Username != nil || update.Email != nil {
		// unique fields cannot take one value across many accounts
		return 0, fmt.Errorf("%w: username and email cannot be batch-updated", ErrValidation)
	}
	if err := validateUpdate(update); err != nil {
		return 0, err
	}

	modified, err := e.creds.Repo().UpdateManyExcludingRole(ctx, targetIDs, credential.Update{
		Username:   update.Username,
		Email:      update.Email,
		Role:       update.Role,
		IsVerified: update.IsVerified,
	}, credential.RoleSuperadmin)
	if err != nil {
		return 0, fmt.Errorf("batch update: %w", err)
	}

	e.record(ctx, audit.Event{
		ActorID:       actor.ID,
		ActorUsername: actor.Username,
		Action:        audit.ActionUserBatchUpdate,
		Details: map[string]any{
			"targetCount":   len(targetIDs),
			"modifiedCount": modified,
		},
	})

	return modified, nil
}

func (e *Engine) loadUser(ctx context.Context, id string) (*credential.User, error) {
	user, err := e.creds.Repo().ByID(ctx, id)
	if err != nil {
		if errors.Is(err, credential.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func validateUpdate(update UserUpdate) error {
	if update.Role == nil {
		return nil
	}
	switch *update.Role {
	case credential.RoleUser, credential.RoleAdmin:
		return nil
	case credential.RoleSuperadmin:
		return fmt.Errorf("%w: superadmin role cannot be granted", ErrValidation)
	default:
		return fmt.Errorf("%w: unknown role %q", ErrValidation, *update.Role)
	}
}

func updateDetails(update UserUpdate) map[string]any {
	details := map[string]any{}
	if update.Username != nil {
		details["username"] = *update.Username
	}
	if update.Email != nil {
		details["email"] = *update.Email
	}
	if update.Role != nil {
		details["role"] = *update.Role
	}
	if update.IsVerified != nil {
		details["isVerified"] = *update.IsVerified
	}
	return details
}
