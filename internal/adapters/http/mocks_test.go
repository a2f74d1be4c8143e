package http_test

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// ---- Principals ----

type mockPrincipalRepo struct {
	mu   sync.Mutex
	byID map[string]*domain.Principal
}

func newMockPrincipalRepo() *mockPrincipalRepo {
	return &mockPrincipalRepo{byID: map[string]*domain.Principal{}}
}

func (m *mockPrincipalRepo) Create(ctx context.Context, p *domain.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.byID {
		if existing.Email == p.Email {
			return domain.ErrConflict
		}
	}
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *mockPrincipalRepo) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPrincipalRepo) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.Email == email {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockPrincipalRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.PasswordHash = hash
	return nil
}

func (m *mockPrincipalRepo) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return nil
}

func (m *mockPrincipalRepo) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID), nil
}

// ---- Records ----

// mockRecordRepo is an in-memory repository applying the same read policy
// as the SQL predicates. listFn overrides List when set.
type mockRecordRepo struct {
	mu      sync.Mutex
	records map[string]*domain.Record
	listFn  func(ctx context.Context, scope domain.Scope, f domain.RecordFilter) ([]domain.Record, int, error)
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: map[string]*domain.Record{}}
}

func readable(scope domain.Scope, r *domain.Record) bool {
	return scope.Role == domain.RoleAdmin || r.OwnerID == scope.PrincipalID || r.Visibility == domain.VisibilityShared
}

func (m *mockRecordRepo) put(r domain.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = &r
}

func (m *mockRecordRepo) Create(ctx context.Context, r *domain.Record) error {
	m.put(*r)
	return nil
}

func (m *mockRecordRepo) UpsertBatch(ctx context.Context, records []domain.Record) error {
	for _, r := range records {
		m.put(r)
	}
	return nil
}

func (m *mockRecordRepo) GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[id]
	if !ok || !readable(scope, r) {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockRecordRepo) List(ctx context.Context, scope domain.Scope, f domain.RecordFilter) ([]domain.Record, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, scope, f)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Record
	for _, r := range m.records {
		switch {
		case !readable(scope, r):
		case f.OwnerOnly && r.OwnerID != scope.PrincipalID:
		case f.Category != "" && r.Category != f.Category:
		case f.Query != "" && !strings.Contains(strings.ToLower(r.Title), strings.ToLower(f.Query)):
		case f.Bounds != nil && !f.Bounds.Contains(r.Location):
		default:
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	total := len(out)
	if f.Offset >= total {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *mockRecordRepo) FindNearby(ctx context.Context, scope domain.Scope, lat, lon, radiusMeters float64, limit int) ([]domain.Record, error) {
	return nil, nil
}

func (m *mockRecordRepo) Update(ctx context.Context, scope domain.Scope, r *domain.Record, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.records[r.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if expectedVersion > 0 && cur.Version != expectedVersion {
		return domain.ErrConflict
	}
	cp := *r
	cp.Version = cur.Version + 1
	r.Version = cp.Version
	m.records[r.ID] = &cp
	return nil
}

func (m *mockRecordRepo) Delete(ctx context.Context, scope domain.Scope, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *mockRecordRepo) SetCover(ctx context.Context, scope domain.Scope, recordID string, mediaID *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[recordID]
	if !ok {
		return domain.ErrNotFound
	}
	r.CoverMediaID = mediaID
	return nil
}

func (m *mockRecordRepo) Stats(ctx context.Context, scope domain.Scope, since time.Time) (*domain.RecordStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &domain.RecordStats{}
	counts := map[string]int{}
	for _, r := range m.records {
		if !readable(scope, r) {
			continue
		}
		st.Total++
		if r.Visibility == domain.VisibilityShared {
			st.Shared++
		} else {
			st.Private++
		}
		counts[r.Category]++
	}
	for cat, n := range counts {
		st.ByCategory = append(st.ByCategory, domain.CategoryCount{Category: cat, Count: n})
	}
	return st, nil
}

// ---- Media ----

type mockMediaRepo struct {
	mu    sync.Mutex
	items map[string]*domain.Media
}

func newMockMediaRepo() *mockMediaRepo {
	return &mockMediaRepo{items: map[string]*domain.Media{}}
}

func (m *mockMediaRepo) Create(ctx context.Context, md *domain.Media) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *md
	m.items[md.ID] = &cp
	return nil
}

func (m *mockMediaRepo) GetByID(ctx context.Context, id string) (*domain.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	md, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *md
	return &cp, nil
}

func (m *mockMediaRepo) ListByRecord(ctx context.Context, recordID string) ([]domain.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Media
	for _, md := range m.items {
		if md.RecordID == recordID {
			out = append(out, *md)
		}
	}
	return out, nil
}

func (m *mockMediaRepo) UpdateStatus(ctx context.Context, id string, status domain.MediaStatus, errMsg string) error {
	return nil
}

func (m *mockMediaRepo) SetDerivatives(ctx context.Context, id string, derivatives map[string]string) error {
	return nil
}

func (m *mockMediaRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// mockStorage records every call so tests can assert nothing was stored.
type mockStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newMockStorage() *mockStorage {
	return &mockStorage{objects: map[string][]byte{}}
}

func (m *mockStorage) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++
	m.objects[key] = data
	return nil
}

func (m *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *mockStorage) putCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
