// Package audit records security-relevant events. Appends are
// validated, redacted and then dispatched asynchronously; persistence
// failures are logged, never surfaced to the flow that triggered the
// event.
package audit

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoEvents is returned by ExportCSV when the filter matches
	// nothing.
	ErrNoEvents = errors.New("no audit events matched")

	// ErrInvalidEvent is returned by Append when a required field
	// (actor id, actor username, ip address) is missing or the action is
	// outside the closed set.
	ErrInvalidEvent = errors.New("invalid audit event")
)

// Event is one immutable audit record.
type Event struct {
	ID             string         `bson:"_id" json:"id"`
	ActorID        string         `bson:"actorUserId" json:"actorUserId"`
	ActorUsername  string         `bson:"actorUsername" json:"actorUsername"`
	Action         Action         `bson:"action" json:"action"`
	TargetID       string         `bson:"targetId,omitempty" json:"targetId,omitempty"`
	TargetUsername string         `bson:"targetUsername,omitempty" json:"targetUsername,omitempty"`
	Details        map[string]any `bson:"details,omitempty" json:"details,omitempty"`
	IPAddress      string         `bson:"ipAddress,omitempty" json:"ipAddress,omitempty"`
	UserAgent      string         `bson:"userAgent,omitempty" json:"userAgent,omitempty"`
	CreatedAt      time.Time      `bson:"createdAt" json:"createdAt"`
}

// Filter narrows queries. Zero-valued fields match everything.
type Filter struct {
	ActorID  string
	Action   Action
	TargetID string
	From     time.Time
	To       time.Time
}

// Page is one page of query results, newest first.
type Page struct {
	Events   []Event
	Total    int64
	Page     int
	PageSize int
}

// ActionCount is the per-action event count.
type ActionCount struct {
	Action Action `bson:"_id"`
	Count  int64  `bson:"count"`
}

// ActivitySummary aggregates events over a time window.
type ActivitySummary struct {
	Total        int64
	UniqueActors int64
	ByAction     []ActionCount
}

// Repository persists and queries audit events.
type Repository interface {
	Insert(ctx context.Context, event Event) error
	Find(ctx context.Context, filter Filter, page, pageSize int) (*Page, error)
	History(ctx context.Context, userID string, limit int) ([]Event, error)
	ActivitySince(ctx context.Context, since time.Time) (*ActivitySummary, error)
	ActionDistribution(ctx context.Context) ([]ActionCount, error)
}
