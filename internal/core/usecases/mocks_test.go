package usecases_test

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/samirrijal/geodash/internal/core/domain"
)

// --- Mock PrincipalRepository ---

type mockPrincipalRepo struct {
	mu         sync.Mutex
	byID       map[string]*domain.Principal
	touched    map[string]time.Time
	createErr  error
	getByEmail func(ctx context.Context, email string) (*domain.Principal, error)
}

func newMockPrincipalRepo() *mockPrincipalRepo {
	return &mockPrincipalRepo{byID: map[string]*domain.Principal{}, touched: map[string]time.Time{}}
}

func (m *mockPrincipalRepo) Create(ctx context.Context, p *domain.Principal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
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
	if m.getByEmail != nil {
		return m.getByEmail(ctx, email)
	}
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
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[id] = at
	return nil
}

func (m *mockPrincipalRepo) Count(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID), nil
}

// --- Mock SessionStore ---

type mockSessionStore struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
	ttls     map[string]time.Duration
	saves    int
}

func newMockSessionStore() *mockSessionStore {
	return &mockSessionStore{sessions: map[string]domain.Session{}, ttls: map[string]time.Duration{}}
}

func (m *mockSessionStore) Save(ctx context.Context, s *domain.Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
	m.ttls[s.ID] = ttl
	m.saves++
	return nil
}

func (m *mockSessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &s, nil
}

func (m *mockSessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *mockSessionStore) DeleteByPrincipal(ctx context.Context, principalID, keepID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if id != keepID && s.PrincipalID == principalID {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// --- Mock RecordRepository ---

type mockRecordRepo struct {
	getByIDFn    func(ctx context.Context, scope domain.Scope, id string) (*domain.Record, error)
	listFn       func(ctx context.Context, scope domain.Scope, f domain.RecordFilter) ([]domain.Record, int, error)
	findNearbyFn func(ctx context.Context, scope domain.Scope, lat, lon, radius float64, limit int) ([]domain.Record, error)
	updateFn     func(ctx context.Context, scope domain.Scope, r *domain.Record, expectedVersion int) error
	statsFn      func(ctx context.Context, scope domain.Scope, since time.Time) (*domain.RecordStats, error)

	created  []domain.Record
	upserted []domain.Record
	deleted  []string
	cover    map[string]*string
}

func (m *mockRecordRepo) Create(ctx context.Context, r *domain.Record) error {
	m.created = append(m.created, *r)
	return nil
}

func (m *mockRecordRepo) UpsertBatch(ctx context.Context, records []domain.Record) error {
	m.upserted = append(m.upserted, records...)
	return nil
}

func (m *mockRecordRepo) GetByID(ctx context.Context, scope domain.Scope, id string) (*domain.Record, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, scope, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockRecordRepo) List(ctx context.Context, scope domain.Scope, f domain.RecordFilter) ([]domain.Record, int, error) {
	if m.listFn != nil {
		return m.listFn(ctx, scope, f)
	}
	return nil, 0, nil
}

func (m *mockRecordRepo) FindNearby(ctx context.Context, scope domain.Scope, lat, lon, radius float64, limit int) ([]domain.Record, error) {
	if m.findNearbyFn != nil {
		return m.findNearbyFn(ctx, scope, lat, lon, radius, limit)
	}
	return nil, nil
}

func (m *mockRecordRepo) Update(ctx context.Context, scope domain.Scope, r *domain.Record, expectedVersion int) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, scope, r, expectedVersion)
	}
	r.Version++
	return nil
}

func (m *mockRecordRepo) Delete(ctx context.Context, scope domain.Scope, id string) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockRecordRepo) SetCover(ctx context.Context, scope domain.Scope, recordID string, mediaID *string) error {
	if m.cover == nil {
		m.cover = map[string]*string{}
	}
	m.cover[recordID] = mediaID
	return nil
}

func (m *mockRecordRepo) Stats(ctx context.Context, scope domain.Scope, since time.Time) (*domain.RecordStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, scope, since)
	}
	return &domain.RecordStats{}, nil
}

// --- Mock MediaRepository ---

type mockMediaRepo struct {
	mu       sync.Mutex
	items    map[string]domain.Media
	statuses []domain.MediaStatus
	listErr  error
}

func newMockMediaRepo() *mockMediaRepo {
	return &mockMediaRepo{items: map[string]domain.Media{}}
}

func (m *mockMediaRepo) Create(ctx context.Context, media *domain.Media) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[media.ID] = *media
	return nil
}

func (m *mockMediaRepo) GetByID(ctx context.Context, id string) (*domain.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	media, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &media, nil
}

func (m *mockMediaRepo) ListByRecord(ctx context.Context, recordID string) ([]domain.Media, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Media
	for _, media := range m.items {
		if media.RecordID == recordID {
			out = append(out, media)
		}
	}
	return out, nil
}

func (m *mockMediaRepo) UpdateStatus(ctx context.Context, id string, status domain.MediaStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	media, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	media.Status, media.Error = status, errMsg
	m.items[id] = media
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *mockMediaRepo) SetDerivatives(ctx context.Context, id string, derivatives map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	media, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	media.Derivatives = derivatives
	m.items[id] = media
	return nil
}

func (m *mockMediaRepo) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// --- Mock ObjectStorage ---

type mockStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	calls   int
	putErr  func(key string) error
}

func newMockStorage() *mockStorage {
	return &mockStorage{objects: map[string][]byte{}}
}

func (m *mockStorage) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.putErr != nil {
		if err := m.putErr(key); err != nil {
			return err
		}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *mockStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	data, ok := m.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	delete(m.objects, key)
	return nil
}

func (m *mockStorage) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	return out
}

// --- Mock StagingArea ---

type mockStaging struct {
	files   map[string][]byte
	removed []string
	staged  int
}

func newMockStaging() *mockStaging { return &mockStaging{files: map[string][]byte{}} }

func (m *mockStaging) Stage(name string, body io.Reader) (string, int64, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", 0, err
	}
	m.staged++
	p := "/staging/" + name
	m.files[p] = data
	return p, int64(len(data)), nil
}

func (m *mockStaging) Open(path string) (io.ReadCloser, error) {
	data, ok := m.files[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockStaging) Remove(path string) error {
	delete(m.files, path)
	m.removed = append(m.removed, path)
	return nil
}

// --- Mock MediaPipeline ---

type mockPipeline struct{ jobs []domain.MediaJob }

func (m *mockPipeline) Submit(ctx context.Context, job *domain.MediaJob) error {
	m.jobs = append(m.jobs, *job)
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct{ events []domain.RecordEvent }

func (m *mockPublisher) PublishRecordEvent(ctx context.Context, ev *domain.RecordEvent) error {
	m.events = append(m.events, *ev)
	return nil
}

func (m *mockPublisher) PublishMediaJob(ctx context.Context, job *domain.MediaJob) error { return nil }

// --- Mock CacheService ---

type mockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	sets int
}

func newMockCache() *mockCache { return &mockCache{data: map[string][]byte{}} }

func (m *mockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.sets++
	return nil
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// --- Mock ChangeNotifier ---

type mockNotifier struct{ calls int }

func (m *mockNotifier) RecordsChanged(ctx context.Context) { m.calls++ }
