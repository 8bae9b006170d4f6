package application_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ericfisherdev/blocksync/internal/domain/model"
)

// --- Mock implementations ---

type statusChange struct {
	Key            string
	BlockStatus    model.BlockStatus
	PlatformStatus model.PlatformStatus
}

// mockHandleStore is an in-memory HandleStore that keeps insertion order and
// records every status write.
type mockHandleStore struct {
	mu        sync.Mutex
	records   map[string]*model.HandleRecord
	nextID    int64
	history   []statusChange
	queryErr  error
	updateErr func(handle string, status model.BlockStatus) error
}

func newMockHandleStore(records ...model.HandleRecord) *mockHandleStore {
	m := &mockHandleStore{records: make(map[string]*model.HandleRecord)}
	for _, r := range records {
		if r.PlatformStatus == "" {
			r.PlatformStatus = model.PlatformStatusUnknown
		}
		m.insert(r.Handle, r.Platform, r.BlockStatus, r.PlatformStatus)
	}
	return m
}

func (m *mockHandleStore) insert(handle string, platform model.Platform, bs model.BlockStatus, ps model.PlatformStatus) {
	m.nextID++
	key := model.HandleKey(platform, handle)
	m.records[key] = &model.HandleRecord{
		ID:             m.nextID,
		Key:            key,
		Handle:         handle,
		Platform:       platform,
		BlockStatus:    bs,
		PlatformStatus: ps,
		LastChanged:    time.Now(),
	}
}

func (m *mockHandleStore) Add(_ context.Context, handle string, platform model.Platform, bs model.BlockStatus, ps model.PlatformStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := model.HandleKey(platform, handle)
	if _, ok := m.records[key]; ok {
		return false, nil
	}
	m.history = append(m.history, statusChange{Key: key, BlockStatus: bs, PlatformStatus: ps})
	m.insert(handle, platform, bs, ps)
	return true, nil
}

func (m *mockHandleStore) UpdateStatus(_ context.Context, handle string, platform model.Platform, bs model.BlockStatus, ps model.PlatformStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		if err := m.updateErr(handle, bs); err != nil {
			return err
		}
	}
	key := model.HandleKey(platform, handle)
	m.history = append(m.history, statusChange{Key: key, BlockStatus: bs, PlatformStatus: ps})
	rec, ok := m.records[key]
	if !ok {
		m.insert(handle, platform, bs, ps)
		return nil
	}
	rec.BlockStatus = bs
	rec.PlatformStatus = ps
	rec.LastChanged = time.Now()
	return nil
}

// UpdatePlatformStatus does not touch block status and is not recorded in history.
func (m *mockHandleStore) UpdatePlatformStatus(_ context.Context, handle string, platform model.Platform, ps model.PlatformStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[model.HandleKey(platform, handle)]
	if !ok {
		return nil
	}
	rec.PlatformStatus = ps
	rec.LastChanged = time.Now()
	return nil
}

func (m *mockHandleStore) TransitionStatus(_ context.Context, handle string, platform model.Platform, from, to model.BlockStatus, ps model.PlatformStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		if err := m.updateErr(handle, to); err != nil {
			return false, err
		}
	}
	key := model.HandleKey(platform, handle)
	rec, ok := m.records[key]
	if !ok || rec.BlockStatus != from {
		return false, nil
	}
	if ps == "" {
		ps = rec.PlatformStatus
	}
	m.history = append(m.history, statusChange{Key: key, BlockStatus: to, PlatformStatus: ps})
	rec.BlockStatus = to
	rec.PlatformStatus = ps
	rec.LastChanged = time.Now()
	return true, nil
}

func (m *mockHandleStore) Get(_ context.Context, handle string, platform model.Platform) (*model.HandleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[model.HandleKey(platform, handle)]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *mockHandleStore) filter(keep func(model.HandleRecord) bool) []model.HandleRecord {
	out := []model.HandleRecord{}
	for _, rec := range m.records {
		if keep(*rec) {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *mockHandleStore) GetByStatus(_ context.Context, statuses ...model.BlockStatus) ([]model.HandleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.filter(func(r model.HandleRecord) bool {
		for _, s := range statuses {
			if r.BlockStatus == s {
				return true
			}
		}
		return false
	}), nil
}

func (m *mockHandleStore) GetByPlatform(_ context.Context, platform model.Platform) ([]model.HandleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(r model.HandleRecord) bool { return r.Platform == platform }), nil
}

func (m *mockHandleStore) GetByPlatformAndStatus(_ context.Context, platform model.Platform, status model.BlockStatus) ([]model.HandleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(r model.HandleRecord) bool {
		return r.Platform == platform && r.BlockStatus == status
	}), nil
}

func (m *mockHandleStore) CountByStatus(_ context.Context, platform model.Platform) (map[model.BlockStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.BlockStatus]int)
	for _, s := range model.AllBlockStatuses() {
		counts[s] = 0
	}
	for _, rec := range m.records {
		if rec.Platform == platform {
			counts[rec.BlockStatus]++
		}
	}
	return counts, nil
}

func (m *mockHandleStore) status(platform model.Platform, handle string) model.BlockStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[model.HandleKey(platform, handle)]
	if !ok {
		return ""
	}
	return rec.BlockStatus
}

func (m *mockHandleStore) historyFor(platform model.Platform, handle string) []model.BlockStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.BlockStatus
	key := model.HandleKey(platform, handle)
	for _, c := range m.history {
		if c.Key == key {
			out = append(out, c.BlockStatus)
		}
	}
	return out
}

// interleavingStore runs afterRead once, right after the first list query
// returns, to simulate another writer acting on the snapshot.
type interleavingStore struct {
	*mockHandleStore
	afterRead func()
}

func (s *interleavingStore) interleave() {
	if f := s.afterRead; f != nil {
		s.afterRead = nil
		f()
	}
}

func (s *interleavingStore) GetByPlatform(ctx context.Context, platform model.Platform) ([]model.HandleRecord, error) {
	recs, err := s.mockHandleStore.GetByPlatform(ctx, platform)
	s.interleave()
	return recs, err
}

func (s *interleavingStore) GetByPlatformAndStatus(ctx context.Context, platform model.Platform, status model.BlockStatus) ([]model.HandleRecord, error) {
	recs, err := s.mockHandleStore.GetByPlatformAndStatus(ctx, platform, status)
	s.interleave()
	return recs, err
}

// mockAdapter is a scripted PlatformAccountAdapter.
type mockAdapter struct {
	platform model.Platform
	block    func(ctx context.Context, handle string) bool
	unblock  func(ctx context.Context, handle string) bool
	blocked  []model.RemoteAccount
	listErr  error

	mu    sync.Mutex
	calls []string
}

func (m *mockAdapter) Platform() model.Platform { return m.platform }

func (m *mockAdapter) Block(ctx context.Context, handle string) bool {
	m.record("block:" + handle)
	if m.block == nil {
		return true
	}
	return m.block(ctx, handle)
}

func (m *mockAdapter) Unblock(ctx context.Context, handle string) bool {
	m.record("unblock:" + handle)
	if m.unblock == nil {
		return true
	}
	return m.unblock(ctx, handle)
}

func (m *mockAdapter) BlockedAccounts(_ context.Context) ([]model.RemoteAccount, error) {
	return m.blocked, m.listErr
}

func (m *mockAdapter) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockAdapter) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// sleepRecorder records requested sleeps without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
	// cancelAfter cancels the context once this many sleeps were recorded.
	cancelAfter int
	cancel      context.CancelFunc
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	n := len(s.sleeps)
	s.mu.Unlock()

	if s.cancel != nil && n >= s.cancelAfter {
		s.cancel()
	}
	return ctx.Err()
}

func (s *sleepRecorder) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.sleeps...)
}

// mockCredentialStore keeps upserted bundles per platform.
type mockCredentialStore struct {
	mu        sync.Mutex
	bundles   map[model.Platform]model.CredentialBundle
	upsertErr error
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{bundles: make(map[model.Platform]model.CredentialBundle)}
}

func (m *mockCredentialStore) Upsert(_ context.Context, bundle model.CredentialBundle, platform model.Platform) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.bundles[platform] = bundle
	return nil
}

func (m *mockCredentialStore) GetByPlatform(_ context.Context, platform model.Platform) ([]model.CredentialRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bundles[platform]
	if !ok {
		return []model.CredentialRecord{}, nil
	}
	var out []model.CredentialRecord
	for _, tt := range model.AllTokenTypes() {
		if v := b.Value(tt); v != "" {
			out = append(out, model.CredentialRecord{
				Key:       model.CredentialKey(platform, tt),
				Platform:  platform,
				TokenType: tt,
				Value:     v,
				Expires:   b.Expires,
			})
		}
	}
	return out, nil
}

func (m *mockCredentialStore) Get(ctx context.Context, platform model.Platform, tt model.TokenType) (*model.CredentialRecord, error) {
	recs, _ := m.GetByPlatform(ctx, platform)
	for _, r := range recs {
		if r.TokenType == tt {
			return &r, nil
		}
	}
	return nil, nil
}

var errStore = errors.New("store unavailable")
