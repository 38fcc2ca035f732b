package authtrail

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kledara/authtrail/audit"
	"github.com/kledara/authtrail/credential"
	"github.com/kledara/authtrail/device"
	"github.com/kledara/authtrail/notify"
)

// testConfig returns a config with cheap argon2 parameters and an
// HS256 key so tests run fast. The leeway absorbs the skew between
// the fake clock stamping tokens and the real clock validating them.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-secret-key-for-hs256-signing")
	cfg.JWT.Leeway = 2 * time.Minute
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

type testFixture struct {
	engine   *Engine
	users    *fakeUserRepo
	devices  *fakeDeviceRepo
	audits   *fakeAuditRepo
	notifier *fakeNotifier
	redis    *miniredis.Miniredis
	clock    *fakeClock
}

// newTestEngine builds an Engine over in-memory fakes and miniredis.
func newTestEngine(t *testing.T, cfg Config) *testFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &testFixture{
		users:    newFakeUserRepo(),
		devices:  newFakeDeviceRepo(),
		audits:   newFakeAuditRepo(),
		notifier: &fakeNotifier{},
		redis:    mr,
		clock:    &fakeClock{t: time.Now()},
	}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserRepository(f.users).
		WithDeviceRepository(f.devices).
		WithAuditRepository(f.audits).
		WithNotifier(f.notifier).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	engine.now = f.clock.Now
	engine.creds.SetClock(f.clock.Now)

	f.engine = engine
	return f
}

// registerVerified registers a user and marks them verified directly
// in the store, skipping the email round-trip.
func (f *testFixture) registerVerified(t *testing.T, username, email, password string) string {
	t.Helper()

	account, err := f.engine.Register(context.Background(), username, email, password)
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := f.users.SetVerified(context.Background(), account.ID); err != nil {
		t.Fatalf("SetVerified failed: %v", err)
	}
	return account.ID
}

// closeTrail flushes pending audit events so assertions see them.
func (f *testFixture) closeTrail() {
	f.engine.trail.Close()
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

/*
====================================
FAKE USER REPOSITORY
====================================
*/

type fakeUserRepo struct {
	mu   sync.Mutex
	byID map[string]*credential.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]*credential.User{}}
}

func (r *fakeUserRepo) clone(u *credential.User) *credential.User {
	out := *u
	return &out
}

func (r *fakeUserRepo) Insert(_ context.Context, user *credential.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.byID {
		if existing.Username == user.Username || existing.Email == user.Email {
			return credential.ErrDuplicate
		}
	}
	r.byID[user.ID] = r.clone(user)
	return nil
}

func (r *fakeUserRepo) ByID(_ context.Context, id string) (*credential.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, credential.ErrNotFound
	}
	return r.clone(user), nil
}

func (r *fakeUserRepo) ByEmail(_ context.Context, email string) (*credential.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.byID {
		if user.Email == email {
			return r.clone(user), nil
		}
	}
	return nil, credential.ErrNotFound
}

func (r *fakeUserRepo) SetCounters(_ context.Context, id string, attempts int, locked bool, lockUntil *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return credential.ErrNotFound
	}
	user.LoginAttempts = attempts
	user.IsLocked = locked
	user.LockUntil = lockUntil
	return nil
}

func (r *fakeUserRepo) SetRefreshToken(_ context.Context, id, token string, lastLoginAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return credential.ErrNotFound
	}
	user.RefreshToken = token
	if lastLoginAt != nil {
		user.LastLoginAt = lastLoginAt
	}
	return nil
}

func (r *fakeUserRepo) SetPassword(_ context.Context, id, hash string, changedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return credential.ErrNotFound
	}
	user.PasswordHash = hash
	user.PasswordChangedAt = changedAt
	return nil
}

func (r *fakeUserRepo) SetVerified(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return credential.ErrNotFound
	}
	user.IsVerified = true
	return nil
}

func (r *fakeUserRepo) SetMFAEnabled(_ context.Context, id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return credential.ErrNotFound
	}
	user.MFAEnabled = enabled
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, id string, update credential.Update) (*credential.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, credential.ErrNotFound
	}
	applyUpdate(user, update)
	return r.clone(user), nil
}

func (r *fakeUserRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return credential.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *fakeUserRepo) UpdateManyExcludingRole(_ context.Context, ids []string, update credential.Update, excludedRole string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var modified int64
	for _, id := range ids {
		user, ok := r.byID[id]
		if !ok || user.Role == excludedRole {
			continue
		}
		applyUpdate(user, update)
		modified++
	}
	return modified, nil
}

func applyUpdate(user *credential.User, update credential.Update) {
	if update.Username != nil {
		user.Username = *update.Username
	}
	if update.Email != nil {
		user.Email = *update.Email
	}
	if update.Role != nil {
		user.Role = *update.Role
	}
	if update.IsVerified != nil {
		user.IsVerified = *update.IsVerified
	}
}

// snapshot returns the stored record for assertions.
func (r *fakeUserRepo) snapshot(id string) (*credential.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return r.clone(user), true
}

/*
====================================
FAKE DEVICE REPOSITORY
====================================
*/

type fakeDeviceRepo struct {
	mu      sync.Mutex
	records []device.Record
	fail    bool
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{}
}

func (r *fakeDeviceRepo) Upsert(_ context.Context, record device.Record) (*device.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fail {
		return nil, context.DeadlineExceeded
	}

	for i := range r.records {
		if r.records[i].UserID == record.UserID && r.records[i].Fingerprint == record.Fingerprint {
			r.records[i].IPAddress = record.IPAddress
			r.records[i].LastUsedAt = record.LastUsedAt
			r.records[i].IsActive = true
			out := r.records[i]
			return &out, nil
		}
	}

	r.records = append(r.records, record)
	out := record
	return &out, nil
}

func (r *fakeDeviceRepo) Recent(_ context.Context, userID string, limit int) ([]device.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.fail {
		return nil, context.DeadlineExceeded
	}

	var out []device.Record
	for _, record := range r.records {
		if record.UserID == userID {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.After(out[j].LastUsedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeDeviceRepo) ByID(_ context.Context, userID, deviceID string) (*device.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range r.records {
		if record.ID == deviceID && record.UserID == userID {
			out := record
			return &out, nil
		}
	}
	return nil, device.ErrNotFound
}

func (r *fakeDeviceRepo) ByUser(_ context.Context, userID string) ([]device.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []device.Record
	for _, record := range r.records {
		if record.UserID == userID && record.IsActive {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.After(out[j].LastUsedAt) })
	return out, nil
}

func (r *fakeDeviceRepo) SetTrusted(_ context.Context, userID, deviceID string, trusted bool) error {
	return r.update(userID, deviceID, func(record *device.Record) {
		record.IsTrusted = trusted
	})
}

func (r *fakeDeviceRepo) Rename(_ context.Context, userID, deviceID, name string) error {
	return r.update(userID, deviceID, func(record *device.Record) {
		record.Name = name
	})
}

func (r *fakeDeviceRepo) Deactivate(_ context.Context, userID, deviceID string) error {
	return r.update(userID, deviceID, func(record *device.Record) {
		record.IsActive = false
		record.IsTrusted = false
	})
}

func (r *fakeDeviceRepo) update(userID, deviceID string, apply func(*device.Record)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.records {
		if r.records[i].ID == deviceID && r.records[i].UserID == userID {
			apply(&r.records[i])
			return nil
		}
	}
	return device.ErrNotFound
}

/*
====================================
FAKE AUDIT REPOSITORY
====================================
*/

type fakeAuditRepo struct {
	mu     sync.Mutex
	events []audit.Event
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (r *fakeAuditRepo) Insert(_ context.Context, event audit.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeAuditRepo) Find(_ context.Context, filter audit.Filter, page, pageSize int) (*audit.Page, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []audit.Event
	for _, event := range r.events {
		if filter.ActorID != "" && event.ActorID != filter.ActorID {
			continue
		}
		if filter.Action != "" && event.Action != filter.Action {
			continue
		}
		if filter.TargetID != "" && event.TargetID != filter.TargetID {
			continue
		}
		if !filter.From.IsZero() && event.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && event.CreatedAt.After(filter.To) {
			continue
		}
		matched = append(matched, event)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}

	return &audit.Page{
		Events:   matched[start:end],
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func (r *fakeAuditRepo) History(_ context.Context, userID string, limit int) ([]audit.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []audit.Event
	for _, event := range r.events {
		if event.ActorID == userID || event.TargetID == userID {
			out = append(out, event)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeAuditRepo) ActivitySince(_ context.Context, since time.Time) (*audit.ActivitySummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	actors := map[string]struct{}{}
	byAction := map[audit.Action]int64{}
	var total int64
	for _, event := range r.events {
		if event.CreatedAt.Before(since) {
			continue
		}
		total++
		actors[event.ActorID] = struct{}{}
		byAction[event.Action]++
	}

	summary := &audit.ActivitySummary{Total: total, UniqueActors: int64(len(actors))}
	for action, count := range byAction {
		summary.ByAction = append(summary.ByAction, audit.ActionCount{Action: action, Count: count})
	}
	sort.Slice(summary.ByAction, func(i, j int) bool { return summary.ByAction[i].Count > summary.ByAction[j].Count })
	return summary, nil
}

func (r *fakeAuditRepo) ActionDistribution(_ context.Context) ([]audit.ActionCount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := map[audit.Action]int64{}
	for _, event := range r.events {
		counts[event.Action]++
	}

	out := []audit.ActionCount{}
	for action, count := range counts {
		out = append(out, audit.ActionCount{Action: action, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out, nil
}

// byAction returns recorded events with the given action.
func (r *fakeAuditRepo) byAction(action audit.Action) []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []audit.Event
	for _, event := range r.events {
		if event.Action == action {
			out = append(out, event)
		}
	}
	return out
}

/*
====================================
FAKE NOTIFIER
====================================
*/

type sentNotification struct {
	Recipient string
	Kind      notify.Kind
	Params    notify.Params
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
	fail bool
}

func (n *fakeNotifier) Send(_ context.Context, recipient string, kind notify.Kind, params notify.Params) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.fail {
		return context.DeadlineExceeded
	}
	n.sent = append(n.sent, sentNotification{Recipient: recipient, Kind: kind, Params: params})
	return nil
}

func (n *fakeNotifier) lastOfKind(kind notify.Kind) (sentNotification, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].Kind == kind {
			return n.sent[i], true
		}
	}
	return sentNotification{}, false
}
