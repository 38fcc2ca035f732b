package authtrail

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kledara/authtrail/audit"
	"github.com/kledara/authtrail/challenge"
	"github.com/kledara/authtrail/credential"
	"github.com/kledara/authtrail/device"
	"github.com/kledara/authtrail/notify"
)

// Engine is the authentication and audit core. Construct it with the
// Builder; all methods are safe for concurrent use.
type Engine struct {
	config     Config
	creds      *credential.Store
	devices    *device.Tracker
	trail      *audit.Trail
	challenges *challenge.Store
	notifier   notify.Sender
	log        *slog.Logger
	now        func() time.Time

	closed atomic.Bool
}

// Audit exposes the trail's query surface (Query, UserHistory,
// ActivitySince, ActionDistribution, ExportCSV).
func (e *Engine) Audit() *audit.Trail {
	return e.trail
}

// Close drains the audit buffer and rejects further flows.
func (e *Engine) Close() {
	if e.closed.CompareAndSwap(false, true) {
		e.trail.Close()
	}
}

func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

// record appends an audit event and logs the rare validation failure.
// Flow code never fails because of auditing. The trail requires an ip
// address on every event; callers that never saw one get "unknown".
func (e *Engine) record(ctx context.Context, event audit.Event) {
	event.IPAddress = clientIPFromContext(ctx)
	if event.IPAddress == "" {
		event.IPAddress = "unknown"
	}
	event.UserAgent = userAgentFromContext(ctx)

	if err := e.trail.Append(ctx, event); err != nil {
		e.log.Error("audit event rejected",
			slog.String("action", string(event.Action)),
			slog.Any("error", err),
		)
	}
}

// actorUsername resolves a user id to its username for audit
// attribution. When the record is gone the id stands in.
func (e *Engine) actorUsername(ctx context.Context, userID string) string {
	user, err := e.creds.Repo().ByID(ctx, userID)
	if err != nil {
		return userID
	}
	return user.Username
}

// notify delivers a notification, logging instead of failing the flow
// when delivery errors.
func (e *Engine) notify(ctx context.Context, recipient string, kind notify.Kind, params notify.Params) {
	if err := e.notifier.Send(ctx, recipient, kind, params); err != nil {
		e.log.Warn("notification not delivered",
			slog.String("kind", string(kind)),
			slog.Any("error", err),
		)
	}
}
