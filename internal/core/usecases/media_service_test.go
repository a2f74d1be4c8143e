package usecases_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/samirrijal/geodash/internal/core/domain"
	"github.com/samirrijal/geodash/internal/core/usecases"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// withDimensions rewrites a PNG's IHDR to claim w x h and fixes its CRC. The
// pixel data is left as it was.
func withDimensions(data []byte, w, h uint32) []byte {
	out := bytes.Clone(data)
	binary.BigEndian.PutUint32(out[16:], w)
	binary.BigEndian.PutUint32(out[20:], h)
	binary.BigEndian.PutUint32(out[29:], crc32.ChecksumIEEE(out[12:29]))
	return out
}

type mediaFixture struct {
	svc      *usecases.MediaService
	records  *mockRecordRepo
	media    *mockMediaRepo
	storage  *mockStorage
	staging  *mockStaging
	pipeline *mockPipeline
	lookups  int
}

func newMediaFixture(vis domain.Visibility) *mediaFixture {
	f := &mediaFixture{
		media:    newMockMediaRepo(),
		storage:  newMockStorage(),
		staging:  newMockStaging(),
		pipeline: &mockPipeline{},
	}
	rec := storedRecord(vis)
	f.records = &mockRecordRepo{
		getByIDFn: func(ctx context.Context, scope domain.Scope, id string) (*domain.Record, error) {
			f.lookups++
			if id != rec.ID {
				return nil, domain.ErrNotFound
			}
			cp := *rec
			return &cp, nil
		},
	}
	f.svc = usecases.NewMediaService(f.media, f.records, f.storage, f.staging, f.pipeline,
		usecases.MediaLimits{MaxBytes: 1 << 20, MaxWidth: 2000, MaxHeight: 2000, MaxPixels: 1_000_000})
	return f
}

func TestMediaService_RejectsBeforeAnyRemoteCall(t *testing.T) {
	payloads := map[string][]byte{
		"empty":     {},
		"text":      []byte("just some text pretending to be a photo"),
		"gif":       []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"),
		"truncated": pngBytes(t, 40, 40)[:30],
		"too wide":  pngBytes(t, 2500, 10),
		"bomb":      withDimensions(pngBytes(t, 10, 10), 1900, 1900),
		"corrupt":   pngBytes(t, 40, 40)[:40],
		"too big":   bytes.Repeat([]byte{0xFF}, (1<<20)+1),
	}
	for name, data := range payloads {
		t.Run(name, func(t *testing.T) {
			f := newMediaFixture(domain.VisibilityPrivate)
			_, err := f.svc.Upload(context.Background(), editorScope, recordID, "x.png", data)
			if err == nil {
				t.Fatal("expected rejection")
			}
			if !errors.Is(err, domain.ErrUnsupportedMedia) && !errors.Is(err, domain.ErrTooLarge) && !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("unexpected error kind: %v", err)
			}
			if f.storage.calls != 0 || f.staging.staged != 0 || f.lookups != 0 {
				t.Errorf("remote work happened: storage=%d staged=%d lookups=%d", f.storage.calls, f.staging.staged, f.lookups)
			}
		})
	}
}

func TestMediaService_Upload(t *testing.T) {
	f := newMediaFixture(domain.VisibilityPrivate)
	m, err := f.svc.Upload(context.Background(), editorScope, recordID, "../holiday.png", pngBytes(t, 300, 200))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	if m.ContentType != "image/png" || m.Width != 300 || m.Height != 200 || m.Status != domain.MediaStored {
		t.Errorf("media = %+v", m)
	}
	if m.Filename != "holiday.png" {
		t.Errorf("filename = %q", m.Filename)
	}
	if !strings.HasPrefix(m.ObjectKey, "records/"+recordID+"/"+m.ID+"/original") {
		t.Errorf("object key = %q", m.ObjectKey)
	}
	if _, ok := f.storage.objects[m.ObjectKey]; !ok {
		t.Error("original not stored")
	}
	if len(f.staging.files) != 0 || len(f.staging.removed) != 1 {
		t.Errorf("staged copy not removed: files=%d removed=%d", len(f.staging.files), len(f.staging.removed))
	}
	if len(f.pipeline.jobs) != 1 || f.pipeline.jobs[0].MediaID != m.ID {
		t.Errorf("jobs = %+v", f.pipeline.jobs)
	}
}

func TestMediaService_UploadPolicy(t *testing.T) {
	f := newMediaFixture(domain.VisibilityShared)
	img := pngBytes(t, 10, 10)

	if _, err := f.svc.Upload(context.Background(), viewerScope, recordID, "a.png", img); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("viewer upload: got %v", err)
	}
	if _, err := f.svc.Upload(context.Background(), otherEditor, recordID, "a.png", img); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("other editor upload: got %v", err)
	}
	if f.storage.calls != 0 {
		t.Error("forbidden uploads must not reach storage")
	}
}

func TestMediaService_ViewerRefusedBeforeDecode(t *testing.T) {
	f := newMediaFixture(domain.VisibilityShared)
	// Header is intact, body is cut short: only a full decode notices.
	corrupt := pngBytes(t, 40, 40)[:40]

	_, err := f.svc.Upload(context.Background(), viewerScope, recordID, "a.png", corrupt)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("viewer: got %v, want forbidden before decoding", err)
	}
	_, err = f.svc.Upload(context.Background(), editorScope, recordID, "a.png", corrupt)
	if !errors.Is(err, domain.ErrUnsupportedMedia) {
		t.Errorf("editor: got %v, want unsupported media", err)
	}
	if f.storage.calls != 0 || f.staging.staged != 0 || f.lookups != 0 {
		t.Errorf("storage=%d staged=%d lookups=%d", f.storage.calls, f.staging.staged, f.lookups)
	}
}

func TestMediaService_OpenDeleteAndCover(t *testing.T) {
	f := newMediaFixture(domain.VisibilityPrivate)
	ctx := context.Background()
	m, err := f.svc.Upload(ctx, editorScope, recordID, "a.png", pngBytes(t, 50, 50))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	body, ct, err := f.svc.Open(ctx, editorScope, m.ID, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if ct != "image/png" || len(data) == 0 {
		t.Errorf("open original: ct=%s len=%d", ct, len(data))
	}
	if _, _, err := f.svc.Open(ctx, editorScope, m.ID, "thumb"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("missing derivative: got %v", err)
	}
	if _, err := f.svc.Get(ctx, otherEditor, m.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("other editor reading private media: got %v", err)
	}

	if err := f.svc.SetCover(ctx, editorScope, recordID, m.ID); err != nil {
		t.Fatalf("SetCover: %v", err)
	}
	if got := f.records.cover[recordID]; got == nil || *got != m.ID {
		t.Errorf("cover = %v", got)
	}

	if err := f.svc.Delete(ctx, editorScope, m.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(f.storage.keys()) != 0 {
		t.Errorf("objects left after delete: %v", f.storage.keys())
	}
	if _, err := f.media.GetByID(ctx, m.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Error("media row not deleted")
	}
}

func TestMediaProcessor_Process(t *testing.T) {
	media := newMockMediaRepo()
	storage := newMockStorage()
	ctx := context.Background()

	original := pngBytes(t, 1200, 600)
	storage.objects["records/r/m/original.png"] = original
	media.items["m"] = domain.Media{ID: "m", RecordID: "r", ObjectKey: "records/r/m/original.png", Status: domain.MediaStored}

	p := usecases.NewMediaProcessor(media, storage)
	if err := p.Process(ctx, &domain.MediaJob{MediaID: "m", RecordID: "r", ObjectKey: "records/r/m/original.png"}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got := media.items["m"]
	if got.Status != domain.MediaReady {
		t.Errorf("status = %s", got.Status)
	}
	for _, name := range []string{"thumb", "display"} {
		key, ok := got.Derivatives[name]
		if !ok {
			t.Errorf("missing %s derivative", name)
			continue
		}
		if _, ok := storage.objects[key]; !ok {
			t.Errorf("%s not stored at %s", name, key)
		}
	}
}

func TestMediaProcessor_CompensatesOnFailure(t *testing.T) {
	media := newMockMediaRepo()
	storage := newMockStorage()
	storage.putErr = func(key string) error {
		if strings.HasSuffix(key, "display.jpg") {
			return errors.New("bucket full")
		}
		return nil
	}
	storage.objects["k"] = pngBytes(t, 400, 400)
	media.items["m"] = domain.Media{ID: "m", RecordID: "r", ObjectKey: "k"}

	p := usecases.NewMediaProcessor(media, storage)
	err := p.Process(context.Background(), &domain.MediaJob{MediaID: "m", RecordID: "r", ObjectKey: "k"})
	if err == nil {
		t.Fatal("expected failure")
	}

	if keys := storage.keys(); len(keys) != 1 || keys[0] != "k" {
		t.Errorf("thumb should have been removed, objects = %v", keys)
	}
	got := media.items["m"]
	if got.Status != domain.MediaFailed || !strings.Contains(got.Error, "bucket full") {
		t.Errorf("media = %+v", got)
	}
}

func TestRecordDelete_PurgesMediaObjects(t *testing.T) {
	f := newMediaFixture(domain.VisibilityPrivate)
	ctx := context.Background()
	var uploaded []*domain.Media
	for _, name := range []string{"a.png", "b.png"} {
		m, err := f.svc.Upload(ctx, editorScope, recordID, name, pngBytes(t, 30, 30))
		if err != nil {
			t.Fatalf("Upload %s: %v", name, err)
		}
		uploaded = append(uploaded, m)
	}
	thumb := usecases.ObjectKey(recordID, uploaded[0].ID, "thumb.jpg")
	f.storage.objects[thumb] = []byte("jpeg")
	withThumb := f.media.items[uploaded[0].ID]
	withThumb.Derivatives = map[string]string{"thumb": thumb}
	f.media.items[uploaded[0].ID] = withThumb
	// an object from another record must survive
	f.storage.objects["records/other/x/original.png"] = []byte("png")

	records := usecases.NewRecordService(f.records, nil, nil, f.svc)
	if err := records.Delete(ctx, editorScope, recordID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if keys := f.storage.keys(); len(keys) != 1 || keys[0] != "records/other/x/original.png" {
		t.Errorf("objects left = %v", keys)
	}
	if len(f.records.deleted) != 1 {
		t.Errorf("record deletes = %v", f.records.deleted)
	}
}

func TestRecordDelete_KeepsRecordWhenMediaUnlisted(t *testing.T) {
	f := newMediaFixture(domain.VisibilityPrivate)
	f.media.listErr = errors.New("db down")

	records := usecases.NewRecordService(f.records, nil, nil, f.svc)
	if err := records.Delete(context.Background(), editorScope, recordID); err == nil {
		t.Fatal("expected error")
	}
	if len(f.records.deleted) != 0 {
		t.Error("record deleted although its objects could not be listed")
	}
}

func TestMediaProcessor_MarkFailedKeepsReasonValidUTF8(t *testing.T) {
	repo := newMockMediaRepo()
	repo.items["m1"] = domain.Media{ID: "m1", Status: domain.MediaProcessing}
	p := usecases.NewMediaProcessor(repo, newMockStorage())

	reason := "x" + strings.Repeat("世", 200)
	if err := p.MarkFailed(context.Background(), "m1", reason); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	got := repo.items["m1"]
	if got.Status != domain.MediaFailed || len(got.Error) > 500 || !utf8.ValidString(got.Error) {
		t.Errorf("status=%s error is %d bytes, valid=%v", got.Status, len(got.Error), utf8.ValidString(got.Error))
	}
	if len(got.Error) != 499 {
		t.Errorf("error is %d bytes, want 499", len(got.Error))
	}
}
