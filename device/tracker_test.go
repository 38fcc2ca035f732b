package device

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
)

const (
	uaFirefox = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/119.0"
	uaChrome  = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	uaIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

type memoryRepo struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (r *memoryRepo) Upsert(_ context.Context, record Record) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
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

func (r *memoryRepo) Recent(_ context.Context, userID string, limit int) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}

	var out []Record
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

func (r *memoryRepo) ByID(_ context.Context, userID, deviceID string) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.records {
		if record.ID == deviceID && record.UserID == userID {
			out := record
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memoryRepo) ByUser(_ context.Context, userID string) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Record
	for _, record := range r.records {
		if record.UserID == userID && record.IsActive {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUsedAt.After(out[j].LastUsedAt) })
	return out, nil
}

func (r *memoryRepo) SetTrusted(_ context.Context, userID, deviceID string, trusted bool) error {
	return r.update(userID, deviceID, func(record *Record) { record.IsTrusted = trusted })
}

func (r *memoryRepo) Rename(_ context.Context, userID, deviceID, name string) error {
	return r.update(userID, deviceID, func(record *Record) { record.Name = name })
}

func (r *memoryRepo) Deactivate(_ context.Context, userID, deviceID string) error {
	return r.update(userID, deviceID, func(record *Record) {
		record.IsActive = false
		record.IsTrusted = false
	})
}

func (r *memoryRepo) update(userID, deviceID string, apply func(*Record)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.records {
		if r.records[i].ID == deviceID && r.records[i].UserID == userID {
			apply(&r.records[i])
			return nil
		}
	}
	return ErrNotFound
}

func newTestTracker(repo Repository) *Tracker {
	return NewTracker(Config{RecentWindow: 5, SuspicionThreshold: 50}, repo, nil)
}

func TestFingerprint_IsStableAndSensitive(t *testing.T) {
	a := Fingerprint("u1", uaFirefox, "203.0.113.7")
	b := Fingerprint("u1", uaFirefox, "203.0.113.7")
	if a != b {
		t.Fatal("fingerprint not stable")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if Fingerprint("u2", uaFirefox, "203.0.113.7") == a {
		t.Fatal("fingerprint must depend on the user")
	}
	if Fingerprint("u1", uaFirefox, "203.0.113.8") == a {
		t.Fatal("fingerprint must depend on the ip")
	}
}

func TestScoreSuspicion_FirstLoginScoresAllSignals(t *testing.T) {
	tracker := newTestTracker(&memoryRepo{})

	// No history means nothing matches: 40+30+20, without the +10 that
	// needs at least one prior record.
	s := tracker.ScoreSuspicion(context.Background(), "u1", uaFirefox, "203.0.113.7")
	if !s.IsNewDevice || !s.IsUnusualIP || !s.IsUnusualBrowser {
		t.Fatalf("expected all signals set, got %+v", s)
	}
	if s.Score != 90 || !s.IsSuspicious {
		t.Fatalf("expected score 90 suspicious, got %+v", s)
	}
}

func TestScoreSuspicion_KnownDeviceScoresLow(t *testing.T) {
	repo := &memoryRepo{}
	tracker := newTestTracker(repo)

	ctx := context.Background()
	if _, err := tracker.RecordLogin(ctx, "u1", uaFirefox, "203.0.113.7"); err != nil {
		t.Fatalf("RecordLogin failed: %v", err)
	}

	// Same device, same IP, untrusted history: only the no-trusted
	// component applies.
	s := tracker.ScoreSuspicion(ctx, "u1", uaFirefox, "203.0.113.7")
	if s.IsNewDevice || s.IsUnusualIP || s.IsUnusualBrowser {
		t.Fatalf("expected familiar login, got %+v", s)
	}
	if s.Score != 10 || s.IsSuspicious {
		t.Fatalf("expected score 10, not suspicious; got %+v", s)
	}
}

func TestScoreSuspicion_AllSignalsSumTo100(t *testing.T) {
	repo := &memoryRepo{}
	tracker := newTestTracker(repo)

	ctx := context.Background()
	if _, err := tracker.RecordLogin(ctx, "u1", uaFirefox, "203.0.113.7"); err != nil {
		t.Fatalf("RecordLogin failed: %v", err)
	}

	s := tracker.ScoreSuspicion(ctx, "u1", uaChrome, "198.51.100.9")
	if !s.IsNewDevice || !s.IsUnusualIP || !s.IsUnusualBrowser {
		t.Fatalf("expected all signals set, got %+v", s)
	}
	if s.Score != 100 || !s.IsSuspicious {
		t.Fatalf("expected score 100 suspicious, got %+v", s)
	}
}

func TestScoreSuspicion_TrustedDeviceDropsTrustComponent(t *testing.T) {
	repo := &memoryRepo{}
	tracker := newTestTracker(repo)

	ctx := context.Background()
	record, err := tracker.RecordLogin(ctx, "u1", uaFirefox, "203.0.113.7")
	if err != nil {
		t.Fatalf("RecordLogin failed: %v", err)
	}
	if err := tracker.SetTrust(ctx, "u1", record.ID, true); err != nil {
		t.Fatalf("SetTrust failed: %v", err)
	}

	// New device + new IP + new browser but a trusted device exists:
	// 40+30+20 = 90, still suspicious, without the +10.
	s := tracker.ScoreSuspicion(ctx, "u1", uaChrome, "198.51.100.9")
	if s.Score != 90 {
		t.Fatalf("expected score 90, got %+v", s)
	}
}

func TestScoreSuspicion_FailsOpen(t *testing.T) {
	repo := &memoryRepo{err: errors.New("storage down")}
	tracker := newTestTracker(repo)

	s := tracker.ScoreSuspicion(context.Background(), "u1", uaFirefox, "203.0.113.7")
	if s.Score != 0 || s.IsSuspicious {
		t.Fatalf("expected fail-open zero score, got %+v", s)
	}
}

func TestRecordLogin_UpsertsByFingerprint(t *testing.T) {
	repo := &memoryRepo{}
	tracker := newTestTracker(repo)

	ctx := context.Background()
	first, err := tracker.RecordLogin(ctx, "u1", uaFirefox, "203.0.113.7")
	if err != nil {
		t.Fatalf("first RecordLogin failed: %v", err)
	}
	second, err := tracker.RecordLogin(ctx, "u1", uaFirefox, "203.0.113.7")
	if err != nil {
		t.Fatalf("second RecordLogin failed: %v", err)
	}

	if first.ID != second.ID {
		t.Fatal("same fingerprint must reuse the record")
	}

	records, err := tracker.Devices(ctx, "u1")
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 device, got %d", len(records))
	}
}

func TestDevices_MasksIPs(t *testing.T) {
	repo := &memoryRepo{}
	tracker := newTestTracker(repo)

	ctx := context.Background()
	if _, err := tracker.RecordLogin(ctx, "u1", uaIPhone, "203.0.113.7"); err != nil {
		t.Fatalf("RecordLogin failed: %v", err)
	}

	records, err := tracker.Devices(ctx, "u1")
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if records[0].IPAddress != "203.0.*.*" {
		t.Fatalf("expected masked IP, got %q", records[0].IPAddress)
	}
	if records[0].Type != "mobile" {
		t.Fatalf("expected mobile device type, got %q", records[0].Type)
	}
}

func TestRemove_HidesListingButKeepsScoringHistory(t *testing.T) {
	repo := &memoryRepo{}
	tracker := newTestTracker(repo)

	ctx := context.Background()
	record, err := tracker.RecordLogin(ctx, "u1", uaFirefox, "203.0.113.7")
	if err != nil {
		t.Fatalf("RecordLogin failed: %v", err)
	}
	if err := tracker.Remove(ctx, "u1", record.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	records, err := tracker.Devices(ctx, "u1")
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no active devices, got %d", len(records))
	}

	// The deactivated record still anchors the history, so a later
	// login from the same device does not look brand new.
	s := tracker.ScoreSuspicion(ctx, "u1", uaFirefox, "203.0.113.7")
	if s.IsNewDevice {
		t.Fatalf("expected known fingerprint after removal, got %+v", s)
	}
	if s.Score != 10 || s.IsSuspicious {
		t.Fatalf("expected score 10 not suspicious, got %+v", s)
	}
}

func TestMaskIP(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"203.0.113.7", "203.0.*.*"},
		{"10.1.2.3", "10.1.*.*"},
		{"::1", "::1"},
		{"", ""},
		{"garbage", "garbage"},
	}
	for _, tc := range cases {
		if got := MaskIP(tc.in); got != tc.want {
			t.Fatalf("MaskIP(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
