package usecases

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/core/ports"
	"github.com/samirrijal/geodash/internal/pkg/imaging"
	"github.com/samirrijal/geodash/internal/pkg/metrics"
	"github.com/samirrijal/geodash/internal/pkg/telemetry"
)

// OriginalVariant names the uploaded file when serving media.
const OriginalVariant = "original"

// MediaLimits bounds what an upload may be. MaxPixels caps width*height;
// zero means MaxWidth*MaxHeight.
type MediaLimits struct {
	MaxBytes  int64
	MaxWidth  int
	MaxHeight int
	MaxPixels int
}

func (l MediaLimits) image() imaging.Limits {
	return imaging.Limits{MaxWidth: l.MaxWidth, MaxHeight: l.MaxHeight, MaxPixels: l.MaxPixels}
}

// MediaService handles image uploads attached to records.
type MediaService struct {
	media    ports.MediaRepository
	records  ports.RecordRepository
	storage  ports.ObjectStorage
	staging  ports.StagingArea
	pipeline ports.MediaPipeline
	limits   MediaLimits
	now      func() time.Time
}

// NewMediaService creates a new MediaService. pipeline may be nil, in which
// case uploads stay in the stored state without derivatives.
func NewMediaService(
	media ports.MediaRepository,
	records ports.RecordRepository,
	storage ports.ObjectStorage,
	staging ports.StagingArea,
	pipeline ports.MediaPipeline,
	limits MediaLimits,
) *MediaService {
	return &MediaService{
		media:    media,
		records:  records,
		storage:  storage,
		staging:  staging,
		pipeline: pipeline,
		limits:   limits,
		now:      time.Now,
	}
}

// Limits returns the configured upload limits.
func (s *MediaService) Limits() MediaLimits { return s.limits }

// screen checks size, format and header dimensions. It reads no pixels.
func (s *MediaService) screen(data []byte) (imaging.Info, error) {
	if len(data) == 0 {
		return imaging.Info{}, fmt.Errorf("empty upload: %w", domain.ErrInvalidInput)
	}
	if s.limits.MaxBytes > 0 && int64(len(data)) > s.limits.MaxBytes {
		return imaging.Info{}, fmt.Errorf("upload is %d bytes, limit %d: %w", len(data), s.limits.MaxBytes, domain.ErrTooLarge)
	}
	return imaging.Header(data, s.limits.image())
}

// Upload validates an image, stages it locally, stores it in object storage
// and schedules derivative generation. Roles that can never write are refused
// first. The header is screened before any pixel is decoded, and the payload
// is fully validated before the record lookup.
func (s *MediaService) Upload(ctx context.Context, scope domain.Scope, recordID, filename string, data []byte) (*domain.Media, error) {
	if !canCreate(scope) {
		return nil, fmt.Errorf("role %s cannot upload media: %w", scope.Role, domain.ErrForbidden)
	}
	if _, err := s.screen(data); err != nil {
		metrics.MediaUploads.WithLabelValues("rejected").Inc()
		return nil, err
	}
	info, err := imaging.Validate(data, s.limits.image())
	if err != nil {
		metrics.MediaUploads.WithLabelValues("rejected").Inc()
		return nil, err
	}

	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanMediaUpload)
	defer span.End()

	rec, err := s.writableRecord(ctx, scope, recordID)
	if err != nil {
		return nil, err
	}

	stagedPath, size, err := s.staging.Stage(filename, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := s.staging.Remove(stagedPath); err != nil {
			slog.WarnContext(ctx, "remove staged upload failed", "path", stagedPath, "error", err)
		}
	}()

	m := &domain.Media{
		ID:          uuid.NewString(),
		RecordID:    rec.ID,
		OwnerID:     rec.OwnerID,
		Filename:    cleanFilename(filename),
		ContentType: info.ContentType,
		Width:       info.Width,
		Height:      info.Height,
		SizeBytes:   size,
		Status:      domain.MediaStored,
		CreatedAt:   s.now().UTC(),
	}
	m.ObjectKey = ObjectKey(m.RecordID, m.ID, OriginalVariant+extension(info.ContentType))

	f, err := s.staging.Open(stagedPath)
	if err != nil {
		return nil, err
	}
	err = s.storage.Put(ctx, m.ObjectKey, f, size, info.ContentType)
	f.Close()
	if err != nil {
		metrics.MediaUploads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("store original: %w", err)
	}

	if err := s.media.Create(ctx, m); err != nil {
		if derr := s.storage.Delete(ctx, m.ObjectKey); derr != nil {
			slog.WarnContext(ctx, "orphaned original after failed insert", "key", m.ObjectKey, "error", derr)
		}
		metrics.MediaUploads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("save media: %w", err)
	}
	metrics.MediaUploads.WithLabelValues("ok").Inc()

	if s.pipeline != nil {
		job := &domain.MediaJob{MediaID: m.ID, RecordID: m.RecordID, ObjectKey: m.ObjectKey}
		if err := s.pipeline.Submit(ctx, job); err != nil {
			slog.WarnContext(ctx, "derivative job not scheduled", "media_id", m.ID, "error", err)
		}
	}
	return m, nil
}

// Get returns media attached to a record the scope can read.
func (s *MediaService) Get(ctx context.Context, scope domain.Scope, id string) (*domain.Media, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("media %q: %w", id, domain.ErrNotFound)
	}
	m, err := s.media.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.GetByID(ctx, scope, m.RecordID)
	if err != nil {
		return nil, err
	}
	if !canRead(scope, rec) {
		return nil, fmt.Errorf("media %s: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

// List returns the media attached to a readable record.
func (s *MediaService) List(ctx context.Context, scope domain.Scope, recordID string) ([]domain.Media, error) {
	if _, err := uuid.Parse(recordID); err != nil {
		return nil, fmt.Errorf("record %q: %w", recordID, domain.ErrNotFound)
	}
	rec, err := s.records.GetByID(ctx, scope, recordID)
	if err != nil {
		return nil, err
	}
	if !canRead(scope, rec) {
		return nil, fmt.Errorf("record %s: %w", recordID, domain.ErrNotFound)
	}
	items, err := s.media.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	if items == nil {
		items = []domain.Media{}
	}
	return items, nil
}

// Open streams one variant ("original" or a derivative name).
func (s *MediaService) Open(ctx context.Context, scope domain.Scope, id, variant string) (io.ReadCloser, string, error) {
	m, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, "", err
	}
	key, contentType := m.ObjectKey, m.ContentType
	if variant != "" && variant != OriginalVariant {
		k, ok := m.Derivatives[variant]
		if !ok {
			return nil, "", fmt.Errorf("media %s has no %q rendition: %w", id, variant, domain.ErrNotFound)
		}
		key, contentType = k, imaging.JPEG
	}
	body, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("fetch %s: %w", key, err)
	}
	return body, contentType, nil
}

// Delete removes media metadata and its stored objects.
func (s *MediaService) Delete(ctx context.Context, scope domain.Scope, id string) error {
	m, err := s.Get(ctx, scope, id)
	if err != nil {
		return err
	}
	if _, err := s.writableRecord(ctx, scope, m.RecordID); err != nil {
		return err
	}
	if err := s.media.Delete(ctx, id); err != nil {
		return err
	}
	s.PurgeObjects(ctx, objectKeys(m))
	return nil
}

// RecordObjectKeys lists the original and derivative keys of every media item
// on a record. It does no policy check; callers have already done theirs.
func (s *MediaService) RecordObjectKeys(ctx context.Context, recordID string) ([]string, error) {
	items, err := s.media.ListByRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	var keys []string
	for i := range items {
		keys = append(keys, objectKeys(&items[i])...)
	}
	return keys, nil
}

// PurgeObjects deletes keys from object storage. Failures are logged; the
// rows are already gone, so there is nothing to roll back.
func (s *MediaService) PurgeObjects(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := s.storage.Delete(ctx, k); err != nil {
			slog.WarnContext(ctx, "delete media object failed", "key", k, "error", err)
		}
	}
}

func objectKeys(m *domain.Media) []string {
	keys := []string{m.ObjectKey}
	for _, k := range m.Derivatives {
		keys = append(keys, k)
	}
	return keys
}

// SetCover makes mediaID the record's cover image.
func (s *MediaService) SetCover(ctx context.Context, scope domain.Scope, recordID, mediaID string) error {
	m, err := s.Get(ctx, scope, mediaID)
	if err != nil {
		return err
	}
	if m.RecordID != recordID {
		return fmt.Errorf("media %s belongs to another record: %w", mediaID, domain.ErrInvalidInput)
	}
	if _, err := s.writableRecord(ctx, scope, recordID); err != nil {
		return err
	}
	return s.records.SetCover(ctx, scope, recordID, &mediaID)
}

func (s *MediaService) writableRecord(ctx context.Context, scope domain.Scope, recordID string) (*domain.Record, error) {
	if _, err := uuid.Parse(recordID); err != nil {
		return nil, fmt.Errorf("record %q: %w", recordID, domain.ErrNotFound)
	}
	rec, err := s.records.GetByID(ctx, scope, recordID)
	if err != nil {
		return nil, err
	}
	if !canRead(scope, rec) {
		return nil, fmt.Errorf("record %s: %w", recordID, domain.ErrNotFound)
	}
	if !canWrite(scope, rec) {
		return nil, fmt.Errorf("record %s: %w", recordID, domain.ErrForbidden)
	}
	return rec, nil
}

// MediaProcessor renders derivatives for stored originals. Its steps are
// exposed separately so a workflow engine can run them as activities.
type MediaProcessor struct {
	media   ports.MediaRepository
	storage ports.ObjectStorage
}

// NewMediaProcessor creates a new MediaProcessor.
func NewMediaProcessor(media ports.MediaRepository, storage ports.ObjectStorage) *MediaProcessor {
	return &MediaProcessor{media: media, storage: storage}
}

// MarkProcessing flags the media as being worked on.
func (p *MediaProcessor) MarkProcessing(ctx context.Context, mediaID string) error {
	return p.media.UpdateStatus(ctx, mediaID, domain.MediaProcessing, "")
}

// RenderDerivative builds one named rendition and stores it, returning its key.
func (p *MediaProcessor) RenderDerivative(ctx context.Context, job *domain.MediaJob, name string) (string, error) {
	d, ok := lookupDerivative(name)
	if !ok {
		return "", fmt.Errorf("unknown derivative %q: %w", name, domain.ErrInvalidInput)
	}
	start := time.Now()

	body, err := p.storage.Get(ctx, job.ObjectKey)
	if err != nil {
		return "", fmt.Errorf("fetch original: %w", err)
	}
	data, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return "", fmt.Errorf("read original: %w", err)
	}

	out, err := imaging.Render(data, d)
	if err != nil {
		return "", err
	}
	key := ObjectKey(job.RecordID, job.MediaID, d.Name+".jpg")
	if err := p.storage.Put(ctx, key, bytes.NewReader(out), int64(len(out)), imaging.JPEG); err != nil {
		return "", fmt.Errorf("store %s: %w", d.Name, err)
	}
	metrics.DerivativeDuration.WithLabelValues(d.Name).Observe(time.Since(start).Seconds())
	return key, nil
}

// Attach records the derivative keys and marks the media ready.
func (p *MediaProcessor) Attach(ctx context.Context, mediaID string, keys map[string]string) error {
	if err := p.media.SetDerivatives(ctx, mediaID, keys); err != nil {
		return fmt.Errorf("attach derivatives: %w", err)
	}
	return p.media.UpdateStatus(ctx, mediaID, domain.MediaReady, "")
}

// DeleteObjects removes stored objects; used to undo partial work.
func (p *MediaProcessor) DeleteObjects(ctx context.Context, keys []string) error {
	var errs []error
	for _, k := range keys {
		if err := p.storage.Delete(ctx, k); err != nil {
			errs = append(errs, fmt.Errorf("delete %s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// MarkFailed records a terminal failure.
func (p *MediaProcessor) MarkFailed(ctx context.Context, mediaID, reason string) error {
	return p.media.UpdateStatus(ctx, mediaID, domain.MediaFailed, truncate(reason, 500))
}

// Process runs every step in-process, undoing stored derivatives when a
// later step fails.
func (p *MediaProcessor) Process(ctx context.Context, job *domain.MediaJob) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanMediaDerivative)
	defer span.End()

	if err := p.MarkProcessing(ctx, job.MediaID); err != nil {
		return err
	}

	keys := make(map[string]string, len(domain.Derivatives))
	fail := func(cause error) error {
		stored := make([]string, 0, len(keys))
		for _, k := range keys {
			stored = append(stored, k)
		}
		if err := p.DeleteObjects(ctx, stored); err != nil {
			slog.WarnContext(ctx, "derivative cleanup failed", "media_id", job.MediaID, "error", err)
		}
		if err := p.MarkFailed(ctx, job.MediaID, cause.Error()); err != nil {
			slog.WarnContext(ctx, "mark media failed", "media_id", job.MediaID, "error", err)
		}
		return cause
	}

	for _, d := range domain.Derivatives {
		key, err := p.RenderDerivative(ctx, job, d.Name)
		if err != nil {
			return fail(err)
		}
		keys[d.Name] = key
	}
	if err := p.Attach(ctx, job.MediaID, keys); err != nil {
		return fail(err)
	}
	slog.InfoContext(ctx, "derivatives ready", "media_id", job.MediaID, "count", len(keys))
	return nil
}

// InlinePipeline runs derivative generation in a background goroutine of the
// current process.
type InlinePipeline struct {
	processor *MediaProcessor
	timeout   time.Duration
}

// NewInlinePipeline creates a new InlinePipeline.
func NewInlinePipeline(processor *MediaProcessor, timeout time.Duration) *InlinePipeline {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &InlinePipeline{processor: processor, timeout: timeout}
}

// Submit starts processing and returns immediately.
func (p *InlinePipeline) Submit(ctx context.Context, job *domain.MediaJob) error {
	// detached from the request so the work survives the response
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	go func() {
		defer cancel()
		if err := p.processor.Process(bg, job); err != nil {
			slog.ErrorContext(bg, "inline derivative processing failed", "media_id", job.MediaID, "error", err)
		}
	}()
	return nil
}

// ObjectKey lays out media objects as records/<record>/<media>/<name>.
func ObjectKey(recordID, mediaID, name string) string {
	return path.Join("records", recordID, mediaID, name)
}

func lookupDerivative(name string) (domain.Derivative, bool) {
	for _, d := range domain.Derivatives {
		if d.Name == name {
			return d, true
		}
	}
	return domain.Derivative{}, false
}

func extension(contentType string) string {
	switch contentType {
	case imaging.PNG:
		return ".png"
	case imaging.WebP:
		return ".webp"
	default:
		return ".jpg"
	}
}

func cleanFilename(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "upload"
	}
	if len(name) > 255 {
		name = name[len(name)-255:]
	}
	return name
}
