package gradient_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gallerybot/gallery-api/internal/domain/gradient"
	"github.com/gallerybot/gallery-api/internal/pkg/kvstore"
)

func newTestRepository(t *testing.T) *gradient.Repository {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return gradient.NewRepository(kvstore.New(client), time.Hour, time.Hour)
}

func TestReclaimDelayedMovesDueJobsOnce(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	past := time.Now().Add(-time.Minute).UnixMilli()
	if err := repo.Delay(ctx, "job-1", past); err != nil {
		t.Fatalf("delay: %v", err)
	}

	n, err := repo.ReclaimDelayed(ctx, time.Now().UnixMilli())
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d reclaimed, want 1", n)
	}

	queueLen, err := repo.QueueLen(ctx)
	if err != nil {
		t.Fatalf("queue len: %v", err)
	}
	if queueLen != 1 {
		t.Fatalf("got queue length %d, want 1", queueLen)
	}
}

func TestReclaimDelayedGuardsAgainstDoubleAdd(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	past := time.Now().Add(-time.Minute).UnixMilli()
	if err := repo.Delay(ctx, "job-1", past); err != nil {
		t.Fatalf("delay: %v", err)
	}

	now := time.Now().UnixMilli()
	first, err := repo.ReclaimDelayed(ctx, now)
	if err != nil {
		t.Fatalf("first reclaim: %v", err)
	}
	if first != 1 {
		t.Fatalf("got %d reclaimed on first pass, want 1", first)
	}

	// Re-running reclaim against the same already-drained delayed set must
	// not push job-1 back onto the queue a second time.
	second, err := repo.ReclaimDelayed(ctx, now)
	if err != nil {
		t.Fatalf("second reclaim: %v", err)
	}
	if second != 0 {
		t.Fatalf("got %d reclaimed on second pass, want 0", second)
	}

	queueLen, err := repo.QueueLen(ctx)
	if err != nil {
		t.Fatalf("queue len: %v", err)
	}
	if queueLen != 1 {
		t.Fatalf("got queue length %d after double reclaim, want 1", queueLen)
	}
}
