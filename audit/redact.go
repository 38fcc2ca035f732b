package audit

// RedactedMarker replaces the values of sensitive detail keys.
const RedactedMarker = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"password":         {},
	"newPassword":      {},
	"currentPassword":  {},
	"token":            {},
	"refreshToken":     {},
	"verificationCode": {},
	"resetCode":        {},
	"mfaCode":          {},
	"secret":           {},
}

// Redact returns a copy of details with every sensitive key's value
// replaced by RedactedMarker. Matching is exact (case-sensitive) and
// recurses into nested maps and arrays; non-sensitive values are
// shared, not copied. A nil input returns nil.
func Redact(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}

	out := make(map[string]any, len(details))
	for key, value := range details {
		if _, sensitive := sensitiveKeys[key]; sensitive {
			out[key] = RedactedMarker
			continue
		}
		out[key] = redactValue(value)
	}
	return out
}

func redactValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return Redact(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = redactValue(item)
		}
		return out
	default:
		return value
	}
}
