package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/core/ports"
	"github.com/samirrijal/geodash/internal/pkg/geospatial"
	"github.com/samirrijal/geodash/internal/pkg/metrics"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
	maxNearbyRadius = 50000
	maxNearbyLimit  = 100
)

// importNamespace derives stable ids for imported rows so re-imports update
// instead of duplicating.
var importNamespace = uuid.MustParse("6f1c2a7e-3b0d-4d8e-9a51-0c8e2f7b4d10")

// ChangeNotifier is told about every successful record write.
type ChangeNotifier interface {
	RecordsChanged(ctx context.Context)
}

// MediaObjects finds and removes the stored files behind a record's media.
type MediaObjects interface {
	RecordObjectKeys(ctx context.Context, recordID string) ([]string, error)
	PurgeObjects(ctx context.Context, keys []string)
}

// RecordService handles record CRUD under the row-level policy.
type RecordService struct {
	records   ports.RecordRepository
	publisher ports.EventPublisher
	notifier  ChangeNotifier
	media     MediaObjects
	now       func() time.Time
}

// NewRecordService creates a new RecordService. publisher, notifier and media
// may be nil; without media, deleting a record leaves its objects in storage.
func NewRecordService(records ports.RecordRepository, publisher ports.EventPublisher, notifier ChangeNotifier, media MediaObjects) *RecordService {
	return &RecordService{records: records, publisher: publisher, notifier: notifier, media: media, now: time.Now}
}

// NormalizeFilter applies paging defaults and rejects unknown sort keys.
func NormalizeFilter(f domain.RecordFilter) (domain.RecordFilter, error) {
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	switch f.Sort {
	case "":
		f.Sort = domain.SortUpdated
	case domain.SortUpdated, domain.SortTitle, domain.SortCategory:
	default:
		return f, fmt.Errorf("unknown sort %q: %w", f.Sort, domain.ErrInvalidInput)
	}
	f.Category = strings.TrimSpace(f.Category)
	f.Query = strings.TrimSpace(f.Query)
	if b := f.Bounds; b != nil {
		if !(domain.GeoPoint{Lat: b.MinLat, Lon: b.MinLon}).Valid() || !(domain.GeoPoint{Lat: b.MaxLat, Lon: b.MaxLon}).Valid() ||
			b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
			return f, fmt.Errorf("invalid bounding box: %w", domain.ErrInvalidInput)
		}
	}
	return f, nil
}

// List returns one page of records visible to scope.
func (s *RecordService) List(ctx context.Context, scope domain.Scope, f domain.RecordFilter) (*domain.RecordPage, error) {
	f, err := NormalizeFilter(f)
	if err != nil {
		return nil, err
	}
	recs, total, err := s.records.List(ctx, scope, f)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	if recs == nil {
		recs = []domain.Record{}
	}
	return &domain.RecordPage{Records: recs, Total: total, Offset: f.Offset, Limit: f.Limit}, nil
}

// Get returns a record the scope may read.
func (s *RecordService) Get(ctx context.Context, scope domain.Scope, id string) (*domain.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("record %q: %w", id, domain.ErrNotFound)
	}
	r, err := s.records.GetByID(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if !canRead(scope, r) {
		return nil, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

// Create stores a new record owned by the caller.
func (s *RecordService) Create(ctx context.Context, scope domain.Scope, in domain.RecordInput) (*domain.Record, error) {
	if !canCreate(scope) {
		return nil, fmt.Errorf("role %s cannot create records: %w", scope.Role, domain.ErrForbidden)
	}
	in, err := cleanInput(in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	r := &domain.Record{
		ID:        uuid.NewString(),
		OwnerID:   scope.PrincipalID,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
	apply(r, in)

	if err := s.records.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	s.changed(ctx, domain.RecordCreated, r)
	return r, nil
}

// Update overwrites a record's editable fields. expectedVersion 0 means
// last-writer-wins; any other value must match the stored version.
func (s *RecordService) Update(ctx context.Context, scope domain.Scope, id string, in domain.RecordInput, expectedVersion int) (*domain.Record, error) {
	r, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if !canWrite(scope, r) {
		return nil, fmt.Errorf("record %s: %w", id, domain.ErrForbidden)
	}
	if expectedVersion < 0 {
		return nil, fmt.Errorf("version must be positive: %w", domain.ErrInvalidInput)
	}
	if expectedVersion > 0 && expectedVersion != r.Version {
		return nil, fmt.Errorf("record %s is at version %d, not %d: %w", id, r.Version, expectedVersion, domain.ErrConflict)
	}
	in, err = cleanInput(in)
	if err != nil {
		return nil, err
	}

	apply(r, in)
	r.UpdatedAt = s.now().UTC()
	if err := s.records.Update(ctx, scope, r, expectedVersion); err != nil {
		return nil, err
	}
	s.changed(ctx, domain.RecordUpdated, r)
	return r, nil
}

// Delete removes a record and, through the schema, its media rows. The media
// objects are listed before the rows go and removed from storage after.
func (s *RecordService) Delete(ctx context.Context, scope domain.Scope, id string) error {
	r, err := s.Get(ctx, scope, id)
	if err != nil {
		return err
	}
	if !canWrite(scope, r) {
		return fmt.Errorf("record %s: %w", id, domain.ErrForbidden)
	}
	var keys []string
	if s.media != nil {
		if keys, err = s.media.RecordObjectKeys(ctx, id); err != nil {
			return fmt.Errorf("list media of record %s: %w", id, err)
		}
	}
	if err := s.records.Delete(ctx, scope, id); err != nil {
		return err
	}
	if len(keys) > 0 {
		s.media.PurgeObjects(ctx, keys)
	}
	s.changed(ctx, domain.RecordDeleted, r)
	return nil
}

// Nearby returns visible records within radiusMeters, nearest first.
func (s *RecordService) Nearby(ctx context.Context, scope domain.Scope, lat, lon, radiusMeters float64, limit int) ([]domain.Record, error) {
	if !(domain.GeoPoint{Lat: lat, Lon: lon}).Valid() {
		return nil, fmt.Errorf("coordinates out of range: %w", domain.ErrInvalidInput)
	}
	if radiusMeters < 1 || radiusMeters > maxNearbyRadius {
		return nil, fmt.Errorf("radius must be 1-%d meters: %w", maxNearbyRadius, domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > maxNearbyLimit {
		limit = maxNearbyLimit
	}
	recs, err := s.records.FindNearby(ctx, scope, lat, lon, radiusMeters, limit)
	if err != nil {
		return nil, fmt.Errorf("nearby records: %w", err)
	}
	if recs == nil {
		return []domain.Record{}, nil
	}
	for i := range recs {
		if recs[i].Distance == nil {
			d := geospatial.Haversine(lat, lon, recs[i].Location.Lat, recs[i].Location.Lon)
			recs[i].Distance = &d
		}
	}
	sort.SliceStable(recs, func(i, j int) bool { return *recs[i].Distance < *recs[j].Distance })
	return recs, nil
}

// SetCover points the record's cover image at mediaID (nil clears it).
func (s *RecordService) SetCover(ctx context.Context, scope domain.Scope, recordID string, mediaID *string) error {
	r, err := s.Get(ctx, scope, recordID)
	if err != nil {
		return err
	}
	if !canWrite(scope, r) {
		return fmt.Errorf("record %s: %w", recordID, domain.ErrForbidden)
	}
	return s.records.SetCover(ctx, scope, recordID, mediaID)
}

// ImportRejection is an input Import skipped. Index points into the slice
// that was passed in.
type ImportRejection struct {
	Index int
	Err   error
}

// ImportResult reports what Import wrote and what it skipped.
type ImportResult struct {
	Imported int
	Rejected []ImportRejection
}

// Import upserts many records for one owner. Rows get ids derived from their
// content, so importing the same file twice is idempotent. Invalid rows are
// skipped and reported; the rest are still written.
func (s *RecordService) Import(ctx context.Context, scope domain.Scope, inputs []domain.RecordInput) (*ImportResult, error) {
	if !canCreate(scope) {
		return nil, fmt.Errorf("role %s cannot import records: %w", scope.Role, domain.ErrForbidden)
	}
	now := s.now().UTC()
	res := &ImportResult{}
	batch := make([]domain.Record, 0, len(inputs))
	for i, in := range inputs {
		in, err := cleanInput(in)
		if err != nil {
			res.Rejected = append(res.Rejected, ImportRejection{Index: i, Err: err})
			continue
		}
		key := fmt.Sprintf("%s|%s|%s|%.6f|%.6f", scope.PrincipalID, in.Title, in.Category, in.Lat, in.Lon)
		r := domain.Record{
			ID:        uuid.NewSHA1(importNamespace, []byte(key)).String(),
			OwnerID:   scope.PrincipalID,
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		}
		apply(&r, in)
		batch = append(batch, r)
	}
	if len(batch) == 0 {
		return res, nil
	}
	if err := s.records.UpsertBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("import records: %w", err)
	}
	res.Imported = len(batch)
	metrics.RecordsImported.Add(float64(len(batch)))
	if s.notifier != nil {
		s.notifier.RecordsChanged(ctx)
	}
	return res, nil
}

func (s *RecordService) changed(ctx context.Context, typ domain.RecordEventType, r *domain.Record) {
	metrics.RecordsWritten.WithLabelValues(strings.TrimPrefix(string(typ), "record.")).Inc()
	if s.notifier != nil {
		s.notifier.RecordsChanged(ctx)
	}
	if s.publisher == nil {
		return
	}
	ev := &domain.RecordEvent{
		Type:     typ,
		RecordID: r.ID,
		OwnerID:  r.OwnerID,
		Shared:   r.Visibility == domain.VisibilityShared,
		Version:  r.Version,
		At:       s.now().UTC(),
	}
	if err := s.publisher.PublishRecordEvent(ctx, ev); err != nil {
		slog.WarnContext(ctx, "publish record event failed", "record_id", r.ID, "type", typ, "error", err)
	}
}

func cleanInput(in domain.RecordInput) (domain.RecordInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	in.Description = strings.TrimSpace(in.Description)
	if in.Visibility == "" {
		in.Visibility = domain.VisibilityPrivate
	}
	seen := make(map[string]bool, len(in.Tags))
	tags := in.Tags[:0:0]
	for _, t := range in.Tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tags = append(tags, t)
	}
	in.Tags = tags
	if err := validate.Struct(in); err != nil {
		return in, fmt.Errorf("%s: %w", describeValidation(err), domain.ErrInvalidInput)
	}
	return in, nil
}

func apply(r *domain.Record, in domain.RecordInput) {
	r.Title = in.Title
	r.Description = in.Description
	r.Category = in.Category
	r.Location = domain.GeoPoint{Lat: in.Lat, Lon: in.Lon}
	r.Visibility = in.Visibility
	r.Tags = in.Tags
	r.Attributes = in.Attributes
}
