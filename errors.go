package authtrail

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong
	// password; callers cannot tell the two apart.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrAccountLocked means the account is inside its lock window.
	// Returned wrapped in a LockoutError carrying the remaining time.
	ErrAccountLocked = errors.New("account locked")

	// ErrEmailUnverified means the password matched but the account
	// has not completed email verification.
	ErrEmailUnverified = errors.New("email not verified")

	// ErrMFAExpired means no pending MFA challenge exists for the
	// user, either because it timed out or was already consumed.
	ErrMFAExpired = errors.New("mfa code expired or not requested")

	// ErrMFAMismatch means a pending challenge exists but the
	// submitted code is wrong.
	ErrMFAMismatch = errors.New("mfa code mismatch")

	// ErrInvalidRefreshToken covers every refresh failure: bad
	// signature, expired, unknown user, or not the stored token.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrInvalidAccessToken covers every access-token validation
	// failure, including tokens minted before the last password
	// change.
	ErrInvalidAccessToken = errors.New("invalid access token")

	// ErrCodeInvalid means a verification or reset code did not match
	// or has expired.
	ErrCodeInvalid = errors.New("code invalid or expired")

	// ErrNotFound means the referenced user or device does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUser means the username or email is already taken.
	ErrDuplicateUser = errors.New("username or email already in use")

	// ErrValidation means the input failed validation before any
	// state was touched.
	ErrValidation = errors.New("validation failed")

	// ErrPasswordReuse means the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must differ from current password")

	// ErrSuperadminImmutable guards superadmin accounts from admin
	// mutation and deletion.
	ErrSuperadminImmutable = errors.New("superadmin accounts cannot be modified")

	// ErrNoEvents is returned by audit export when nothing matched.
	ErrNoEvents = errors.New("no audit events matched")

	// ErrNotificationFailed means the operation was rolled back
	// because the notifier could not deliver.
	ErrNotificationFailed = errors.New("notification delivery failed")

	// ErrEngineClosed is returned by flows after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// LockoutError wraps ErrAccountLocked with the lock expiry, so callers
// can surface the remaining time. A zero Until means an administrative
// lock with no expiry. errors.Is(err, ErrAccountLocked) matches it.
type LockoutError struct {
	Until time.Time
}

func (e *LockoutError) Error() string {
	if e.Until.IsZero() {
		return "account locked"
	}
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockoutError) Unwrap() error {
	return ErrAccountLocked
}
