package gradient_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gallerybot/gallery-api/internal/domain/gradient"
	"github.com/gallerybot/gallery-api/internal/pkg/kvstore"
	"github.com/gallerybot/gallery-api/internal/pkg/objectstore"
)

func onePixelPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 50, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestWorker(t *testing.T, cfg gradient.Config) (*gradient.Worker, *gradient.Repository, objectstore.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	kv := kvstore.New(client)
	repo := gradient.NewRepository(kv, 24*time.Hour, 30*24*time.Hour)
	objects := objectstore.NewMemory()
	worker := gradient.NewWorker(repo, objects, cfg)
	return worker, repo, objects
}

func defaultConfig() gradient.Config {
	return gradient.Config{
		Enabled:      true,
		Concurrency:  2,
		MaxRetries:   3,
		PollInterval: 10 * time.Millisecond,
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	ctx := context.Background()
	worker, repo, _ := newTestWorker(t, defaultConfig())

	jobID1, err := worker.Enqueue(ctx, "guild1", "Test Gallery", "guild1/test/uploads/a.png", "item1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	jobID2, err := worker.Enqueue(ctx, "guild1", "Test Gallery", "guild1/test/uploads/a.png", "item1")
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if jobID1 != jobID2 {
		t.Fatalf("got different job ids %q and %q for the same storage key", jobID1, jobID2)
	}

	qlen, err := repo.QueueLen(ctx)
	if err != nil {
		t.Fatalf("queue len: %v", err)
	}
	if qlen != 1 {
		t.Fatalf("got queue length %d, want 1 (no duplicate push)", qlen)
	}
}

func TestEnqueueDisabledWorkerReturnsEmpty(t *testing.T) {
	ctx := context.Background()
	cfg := defaultConfig()
	cfg.Enabled = false
	worker, _, _ := newTestWorker(t, cfg)

	jobID, err := worker.Enqueue(ctx, "guild1", "Test Gallery", "guild1/test/uploads/a.png", "item1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if jobID != "" {
		t.Fatalf("got job id %q, want empty for a disabled worker", jobID)
	}
}

func TestProcessOneCompletesAndDeletesJob(t *testing.T) {
	ctx := context.Background()
	worker, repo, objects := newTestWorker(t, defaultConfig())

	storageKey := "guild1/test/uploads/a.png"
	if err := objects.PutBuffer(ctx, storageKey, onePixelPNG(t), "image/png", nil); err != nil {
		t.Fatalf("seed object: %v", err)
	}

	jobID, err := worker.Enqueue(ctx, "guild1", "Test Gallery", storageKey, "item1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	worker.Start(ctx)
	t.Cleanup(worker.Stop)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := repo.GetRecord(ctx, storageKey)
		if err == nil && rec.Status == gradient.StatusCompleted {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	rec, err := repo.GetRecord(ctx, storageKey)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if rec.Status != gradient.StatusCompleted {
		t.Fatalf("got status %s, want completed", rec.Status)
	}
	if rec.Gradient == nil || rec.Gradient.CSSGradient == "" {
		t.Fatalf("expected a populated gradient, got %+v", rec.Gradient)
	}

	if _, err := repo.GetJob(ctx, jobID); err != kvstore.ErrNotFound {
		t.Fatalf("expected job to be deleted after completion, got %v", err)
	}
}

func TestProcessOneMarksFailedAtMaxRetries(t *testing.T) {
	ctx := context.Background()
	cfg := defaultConfig()
	cfg.MaxRetries = 1
	worker, repo, _ := newTestWorker(t, cfg)

	// No object seeded: GetObject will fail every attempt.
	storageKey := "guild1/test/uploads/missing.png"
	jobID, err := worker.Enqueue(ctx, "guild1", "Test Gallery", storageKey, "item1")
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	worker.Start(ctx)
	t.Cleanup(worker.Stop)

	deadline := time.Now().Add(3 * time.Second)
	var rec *gradient.Record
	for time.Now().Before(deadline) {
		rec, err = repo.GetRecord(ctx, storageKey)
		if err == nil && rec.Status == gradient.StatusFailed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if rec == nil || rec.Status != gradient.StatusFailed {
		t.Fatalf("expected terminal failed status, got %+v", rec)
	}
	if rec.LastError == nil || *rec.LastError == "" {
		t.Fatalf("expected a recorded failure reason")
	}

	if _, err := repo.GetJob(ctx, jobID); err != kvstore.ErrNotFound {
		t.Fatalf("expected exhausted job to be deleted, got %v", err)
	}
}
