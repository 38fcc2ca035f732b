package audit

// Action is the closed set of auditable action identifiers. Events
// carrying anything else are rejected at append time.
type Action string

const (
	ActionUserCreate      Action = "USER_CREATE"
	ActionUserUpdate      Action = "USER_UPDATE"
	ActionUserDelete      Action = "USER_DELETE"
	ActionUserBatchUpdate Action = "USER_BATCH_UPDATE"
	ActionLoginSuccess    Action = "LOGIN_SUCCESS"
	ActionLoginFailed     Action = "LOGIN_FAILED"
	ActionPasswordChange  Action = "PASSWORD_CHANGE"
	ActionPasswordReset   Action = "PASSWORD_RESET"
	ActionMFAEnable       Action = "MFA_ENABLE"
	ActionMFADisable      Action = "MFA_DISABLE"
	ActionAccountLock     Action = "ACCOUNT_LOCK"
	ActionAccountUnlock   Action = "ACCOUNT_UNLOCK"
	ActionDeviceTrust     Action = "DEVICE_TRUST"
	ActionDeviceUpdate    Action = "DEVICE_UPDATE"
	ActionDeviceRemove    Action = "DEVICE_REMOVE"
)

var validActions = map[Action]struct{}{
	ActionUserCreate:      {},
	ActionUserUpdate:      {},
	ActionUserDelete:      {},
	ActionUserBatchUpdate: {},
	ActionLoginSuccess:    {},
	ActionLoginFailed:     {},
	ActionPasswordChange:  {},
	ActionPasswordReset:   {},
	ActionMFAEnable:       {},
	ActionMFADisable:      {},
	ActionAccountLock:     {},
	ActionAccountUnlock:   {},
	ActionDeviceTrust:     {},
	ActionDeviceUpdate:    {},
	ActionDeviceRemove:    {},
}

// Valid reports whether a is a member of the action set.
func (a Action) Valid() bool {
	_, ok := validActions[a]
	return ok
}
