// Package notify defines the outbound notification contract. The
// engine never composes or sends messages itself; it hands a kind and
// parameters to an injected Sender. Implementations typically wrap an
// email or SMS provider.
package notify

import (
	"context"
	"log/slog"
)

// Kind identifies the message template.
type Kind string

const (
	KindVerifyEmail     Kind = "verify_email"
	KindMFACode         Kind = "mfa_code"
	KindPasswordReset   Kind = "password_reset"
	KindSuspiciousLogin Kind = "suspicious_login"
)

// Params carries template values. Keys depend on the kind: codes use
// "code", suspicious-login alerts use "ip" (masked), "device" and
// "time".
type Params map[string]string

// Sender delivers one message. Implementations must be safe for
// concurrent use. A returned error means the message was not handed
// off; the engine decides per flow whether that is fatal.
type Sender interface {
	Send(ctx context.Context, recipient string, kind Kind, params Params) error
}

// LogSender writes notifications to a logger instead of delivering
// them. Useful in development and tests.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, recipient string, kind Kind, params Params) error {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}

	attrs := []any{
		slog.String("recipient", recipient),
		slog.String("kind", string(kind)),
	}
	for k, v := range params {
		if k == "code" {
			// codes are secrets even in development logs
			v = "******"
		}
		attrs = append(attrs, slog.String(k, v))
	}

	log.InfoContext(ctx, "notification", attrs...)
	return nil
}
