package ingest_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gallerybot/gallery-api/internal/domain/gallery"
	"github.com/gallerybot/gallery-api/internal/domain/ingest"
	"github.com/gallerybot/gallery-api/internal/pkg/kvstore"
	"github.com/gallerybot/gallery-api/internal/pkg/objectstore"
)

func onePixelPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func buildZIP(t *testing.T, names []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	data := onePixelPNG(t)
	for _, name := range names {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := f.Write(data); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip writer: %v", err)
	}
	return buf.Bytes()
}

func newTestHarness(t *testing.T) (*ingest.Repository, *gallery.Service, objectstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	kv := kvstore.New(client)
	objects := objectstore.NewMemory()
	galleries := gallery.NewService(gallery.NewRepository(kv), objects)

	ctx := context.Background()
	if _, err := galleries.Create(ctx, "guild1", "user1", gallery.CreateRequest{Name: "Test Gallery", TTLWeeks: 4}); err != nil {
		t.Fatalf("create gallery: %v", err)
	}

	return ingest.NewRepository(kv), galleries, objects
}

func testConfig() ingest.Config {
	return ingest.Config{
		MaxZIPEntries:           1000,
		MaxZIPUncompressedBytes: 500 * 1024 * 1024,
		MaxProcessingDuration:   5 * time.Minute,
		ProgressUpdateInterval:  10,
		JobTTL:                  10 * time.Minute,
		JobTerminalTTL:          10 * time.Minute,
	}
}

func waitForTerminal(t *testing.T, repo *ingest.Repository, jobID string) *ingest.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := repo.Get(context.Background(), jobID)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if job.Status == ingest.StatusCompleted || job.Status == ingest.StatusFailed {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal state", jobID)
	return nil
}

func TestZIPPipelineUploadsAllEntries(t *testing.T) {
	repo, galleries, objects := newTestHarness(t)
	svc := ingest.NewService(repo, objects, galleries, nil, testConfig())

	archive := buildZIP(t, []string{"a.png", "b.png", "c.png"})
	result, err := svc.UploadToGallery(context.Background(), "guild1", "Test Gallery", "guild1/test-gallery/uploads/2026-08-01/", "photos.zip", archive)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	async, ok := result.(*ingest.AsyncResult)
	if !ok {
		t.Fatalf("expected async result, got %T", result)
	}

	job := waitForTerminal(t, repo, async.JobID)
	if job.Status != ingest.StatusCompleted {
		t.Fatalf("got status %s, want completed (error: %v)", job.Status, job.Error)
	}
	if len(job.Progress.UploadedFiles) != 3 {
		t.Fatalf("got %d uploaded files, want 3", len(job.Progress.UploadedFiles))
	}
	if job.Progress.ProcessedFiles != 3 {
		t.Fatalf("got %d processed files, want 3", job.Progress.ProcessedFiles)
	}
}

func TestZIPPipelineRejectsArchiveWithNoImages(t *testing.T) {
	repo, galleries, objects := newTestHarness(t)
	svc := ingest.NewService(repo, objects, galleries, nil, testConfig())

	archive := buildZIP(t, []string{"readme.txt", "notes.md"})
	result, err := svc.UploadToGallery(context.Background(), "guild1", "Test Gallery", "guild1/test-gallery/uploads/2026-08-01/", "docs.zip", archive)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	async := result.(*ingest.AsyncResult)

	job := waitForTerminal(t, repo, async.JobID)
	if job.Status != ingest.StatusFailed {
		t.Fatalf("got status %s, want failed", job.Status)
	}
	if job.Error == nil || *job.Error == "" {
		t.Fatalf("expected a failure reason to be recorded")
	}
}

func TestZIPPipelineRejectsTooManyEntries(t *testing.T) {
	repo, galleries, objects := newTestHarness(t)
	cfg := testConfig()
	cfg.MaxZIPEntries = 2
	svc := ingest.NewService(repo, objects, galleries, nil, cfg)

	archive := buildZIP(t, []string{"a.png", "b.png", "c.png"})
	result, err := svc.UploadToGallery(context.Background(), "guild1", "Test Gallery", "guild1/test-gallery/uploads/2026-08-01/", "photos.zip", archive)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	async := result.(*ingest.AsyncResult)

	job := waitForTerminal(t, repo, async.JobID)
	if job.Status != ingest.StatusFailed {
		t.Fatalf("got status %s, want failed", job.Status)
	}
}

func TestZIPPipelineRejectsOversizedUncompressed(t *testing.T) {
	repo, galleries, objects := newTestHarness(t)
	cfg := testConfig()
	cfg.MaxZIPUncompressedBytes = 10 // smaller than a single pixel PNG
	svc := ingest.NewService(repo, objects, galleries, nil, cfg)

	archive := buildZIP(t, []string{"a.png"})
	result, err := svc.UploadToGallery(context.Background(), "guild1", "Test Gallery", "guild1/test-gallery/uploads/2026-08-01/", "photos.zip", archive)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	async := result.(*ingest.AsyncResult)

	job := waitForTerminal(t, repo, async.JobID)
	if job.Status != ingest.StatusFailed {
		t.Fatalf("got status %s, want failed", job.Status)
	}
}

func TestSingleImageUploadIsSynchronous(t *testing.T) {
	repo, galleries, objects := newTestHarness(t)
	svc := ingest.NewService(repo, objects, galleries, nil, testConfig())

	result, err := svc.UploadToGallery(context.Background(), "guild1", "Test Gallery", "guild1/test-gallery/uploads/2026-08-01/", "photo.png", onePixelPNG(t))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	single, ok := result.(*ingest.SingleImageResult)
	if !ok {
		t.Fatalf("expected sync result, got %T", result)
	}
	if single.Type != "sync" || len(single.Uploaded) != 1 {
		t.Fatalf("unexpected result: %+v", single)
	}

	g, err := galleries.Get(context.Background(), "guild1", "Test Gallery")
	if err != nil {
		t.Fatalf("get gallery: %v", err)
	}
	if g.TotalItems != 1 {
		t.Fatalf("got total items %d, want 1", g.TotalItems)
	}
}

// alwaysFailingPutStream wraps a MemoryStore so every streamed upload fails,
// simulating an object store that transient-errors on every ZIP entry.
type alwaysFailingPutStream struct {
	objectstore.Store
}

func (s *alwaysFailingPutStream) PutStream(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	return errors.New("object store unavailable")
}

func TestZIPPipelineFailsWhenEveryEntryUploadFails(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	kv := kvstore.New(client)
	objects := &alwaysFailingPutStream{Store: objectstore.NewMemory()}
	galleries := gallery.NewService(gallery.NewRepository(kv), objectstore.NewMemory())
	ctx := context.Background()
	if _, err := galleries.Create(ctx, "guild1", "user1", gallery.CreateRequest{Name: "Test Gallery", TTLWeeks: 4}); err != nil {
		t.Fatalf("create gallery: %v", err)
	}

	repo := ingest.NewRepository(kv)
	svc := ingest.NewService(repo, objects, galleries, nil, testConfig())

	archive := buildZIP(t, []string{"a.png", "b.png"})
	result, err := svc.UploadToGallery(ctx, "guild1", "Test Gallery", "guild1/test-gallery/uploads/2026-08-01/", "photos.zip", archive)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	async := result.(*ingest.AsyncResult)

	job := waitForTerminal(t, repo, async.JobID)
	if job.Status != ingest.StatusFailed {
		t.Fatalf("got status %s, want failed", job.Status)
	}
	if job.Error == nil || *job.Error != "ZIP contained no supported image files" {
		t.Fatalf("got error %v, want the no-supported-image-files message", job.Error)
	}
}

func TestUnsupportedFileIsRejected(t *testing.T) {
	repo, galleries, objects := newTestHarness(t)
	svc := ingest.NewService(repo, objects, galleries, nil, testConfig())

	_, err := svc.UploadToGallery(context.Background(), "guild1", "Test Gallery", "guild1/test-gallery/uploads/2026-08-01/", "notes.txt", []byte("plain text content"))
	if err != ingest.ErrUnsupportedMimeType {
		t.Fatalf("got %v, want ErrUnsupportedMimeType", err)
	}
}
