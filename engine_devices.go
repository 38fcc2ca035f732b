package authtrail

import (
	"context"
	"errors"
	"fmt"

	"github.com/kledara/authtrail/audit"
	"github.com/kledara/authtrail/device"
)

// Devices lists the user's active devices, newest first, with
// display-masked IP addresses.
func (e *Engine) Devices(ctx context.Context, userID string) ([]device.Record, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	records, err := e.devices.Devices(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return records, nil
}

// TrustDevice marks one of the user's devices trusted or untrusted.
// Trusted devices lower the suspicion score of future logins.
func (e *Engine) TrustDevice(ctx context.Context, userID, deviceID string, trusted bool) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	if err := e.devices.SetTrust(ctx, userID, deviceID, trusted); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("trust device: %w", err)
	}

	e.record(ctx, audit.Event{
		ActorID:       userID,
		ActorUsername: e.actorUsername(ctx, userID),
		Action:        audit.ActionDeviceTrust,
		TargetID:      deviceID,
		Details:       map[string]any{"trusted": trusted},
	})

	return nil
}

// RenameDevice changes a device's display name.
func (e *Engine) RenameDevice(ctx context.Context, userID, deviceID, name string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	if err := e.devices.Rename(ctx, userID, deviceID, name); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	e.record(ctx, audit.Event{
		ActorID:       userID,
		ActorUsername: e.actorUsername(ctx, userID),
		Action:        audit.ActionDeviceUpdate,
		TargetID:      deviceID,
		Details:       map[string]any{"name": name},
	})

	return nil
}

// RemoveDevice deactivates one of the user's devices. The device
// drops out of listings but its record stays in the suspicion-scoring
// history, so a later login from it is not mistaken for a new device.
func (e *Engine) RemoveDevice(ctx context.Context, userID, deviceID string) error {
	if err := e.checkOpen(); err != nil {
		return err
	}

	if err := e.devices.Remove(ctx, userID, deviceID); err != nil {
		if errors.Is(err, device.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("remove device: %w", err)
	}

	e.record(ctx, audit.Event{
		ActorID:       userID,
		ActorUsername: e.actorUsername(ctx, userID),
		Action:        audit.ActionDeviceRemove,
		TargetID:      deviceID,
	})

	return nil
}
