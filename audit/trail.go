package audit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	exportLimit     = 1000
)

// Config controls trail buffering behavior.
type Config struct {
	BufferSize int
	DropIfFull bool
}

// Trail validates, redacts and asynchronously persists audit events.
// One background worker drains the buffer into the repository; Close
// flushes everything already enqueued before returning.
type Trail struct {
	cfg       Config
	repo      Repository
	log       *slog.Logger
	now       func() time.Time
	ch        chan Event
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewTrail starts a Trail writing to repo.
func NewTrail(cfg Config, repo Repository, log *slog.Logger) *Trail {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if log == nil {
		log = slog.Default()
	}

	t := &Trail{
		cfg:  cfg,
		repo: repo,
		log:  log,
		now:  time.Now,
		ch:   make(chan Event, cfg.BufferSize),
		done: make(chan struct{}),
	}

	t.wg.Add(1)
	go t.run()

	return t
}

func (t *Trail) run() {
	defer t.wg.Done()

	for {
		select {
		case event := <-t.ch:
			t.persist(event)
		case <-t.done:
			for {
				select {
				case event := <-t.ch:
					t.persist(event)
				default:
					return
				}
			}
		}
	}
}

func (t *Trail) persist(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := t.repo.Insert(ctx, event); err != nil {
		t.log.Error("audit event not persisted",
			slog.String("action", string(event.Action)),
			slog.String("actor", event.ActorID),
			slog.Any("error", err),
		)
	}
}

// Append enqueues event for persistence. The event is validated and
// its details redacted before it leaves the caller's goroutine; the
// write itself happens in the background and its failure never reaches
// the caller. ID and CreatedAt are filled in when absent.
func (t *Trail) Append(ctx context.Context, event Event) error {
	if t == nil || t.closed.Load() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(event.ActorID) == "" || strings.TrimSpace(event.ActorUsername) == "" {
		return ErrInvalidEvent
	}
	if !event.Action.Valid() {
		return ErrInvalidEvent
	}
	if strings.TrimSpace(event.IPAddress) == "" {
		return ErrInvalidEvent
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = t.now()
	}
	event.Details = Redact(event.Details)

	if t.cfg.DropIfFull {
		select {
		case t.ch <- event:
		case <-t.done:
		default:
			t.dropped.Add(1)
		}
		return nil
	}

	select {
	case t.ch <- event:
	case <-ctx.Done():
	case <-t.done:
	}
	return nil
}

// Query returns a page of events matching filter, newest first. Page
// defaults to 1, page size to 20, capped at 100.
func (t *Trail) Query(ctx context.Context, filter Filter, page, pageSize int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	return t.repo.Find(ctx, filter, page, pageSize)
}

// UserHistory returns the most recent events where userID is actor or
// target.
func (t *Trail) UserHistory(ctx context.Context, userID string, limit int) ([]Event, error) {
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	return t.repo.History(ctx, userID, limit)
}

// ActivitySince returns the event total, unique actor count and
// per-action counts for events created at or after since.
func (t *Trail) ActivitySince(ctx context.Context, since time.Time) (*ActivitySummary, error) {
	return t.repo.ActivitySince(ctx, since)
}

// ActionDistribution returns the all-time per-action event counts,
// busiest actions first.
func (t *Trail) ActionDistribution(ctx context.Context) ([]ActionCount, error) {
	return t.repo.ActionDistribution(ctx)
}

// ExportCSV renders up to 1000 events matching filter as CSV, newest
// first. The header row is plain; data fields are double-quoted and
// every row ends with \n. An empty result returns ErrNoEvents.
func (t *Trail) ExportCSV(ctx context.Context, filter Filter) ([]byte, error) {
	page, err := t.repo.Find(ctx, filter, 1, exportLimit)
	if err != nil {
		return nil, err
	}
	if len(page.Events) == 0 {
		return nil, ErrNoEvents
	}

	var b strings.Builder
	b.WriteString("Timestamp,ActorUserId,ActorUsername,Action,TargetId,TargetUsername,IpAddress,UserAgent\n")

	for _, event := range page.Events {
		writeCSVRow(&b, []string{
			event.CreatedAt.UTC().Format(time.RFC3339),
			event.ActorID,
			event.ActorUsername,
			string(event.Action),
			event.TargetID,
			event.TargetUsername,
			event.IPAddress,
			event.UserAgent,
		})
		b.WriteByte('\n')
	}

	return []byte(b.String()), nil
}

func writeCSVRow(b *strings.Builder, fields []string) {
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(field, `"`, `""`))
		b.WriteByte('"')
	}
}

// Dropped reports how many events were discarded because the buffer
// was full.
func (t *Trail) Dropped() uint64 {
	if t == nil {
		return 0
	}
	return t.dropped.Load()
}

// Close drains the buffer and stops the worker. Safe to call more
// than once.
func (t *Trail) Close() {
	if t == nil {
		return
	}
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		close(t.done)
		t.wg.Wait()
	})
}
