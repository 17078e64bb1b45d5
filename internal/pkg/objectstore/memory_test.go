package objectstore_test

import (
	"context"
	"io"
	"testing"

	"github.com/gallerybot/gallery-api/internal/pkg/apperror"
	"github.com/gallerybot/gallery-api/internal/pkg/objectstore"
)

func TestMemoryStorePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()

	if err := store.PutBuffer(ctx, "g1/summer/uploads/a.jpg", []byte("hello"), "image/jpeg", nil); err != nil {
		t.Fatalf("put: %v", err)
	}

	res, err := store.GetObject(ctx, "g1/summer/uploads/a.jpg")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q, want %q", data, "hello")
	}
}

func TestMemoryStoreGetMissingIsNotFound(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()

	_, err := store.GetObject(ctx, "missing")
	if !apperror.Is(err, apperror.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestMemoryStoreListPrefixPaginates(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()

	for i := 0; i < 5; i++ {
		key := "g1/summer/uploads/" + string(rune('a'+i)) + ".jpg"
		if err := store.PutBuffer(ctx, key, []byte("x"), "image/jpeg", nil); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	lister := store.ListPrefix(ctx, "g1/summer/uploads/")
	var all []objectstore.Object
	for {
		page, done, err := lister.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		all = append(all, page...)
		if done {
			break
		}
	}
	if len(all) != 5 {
		t.Fatalf("got %d objects, want 5", len(all))
	}
}

func TestMemoryStoreCopyThenDeleteBatch(t *testing.T) {
	ctx := context.Background()
	store := objectstore.NewMemory()

	if err := store.PutBuffer(ctx, "old/a.jpg", []byte("x"), "image/jpeg", nil); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.CopyObject(ctx, "old/a.jpg", "new/a.jpg"); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if err := store.DeleteBatch(ctx, []string{"old/a.jpg"}); err != nil {
		t.Fatalf("delete batch: %v", err)
	}

	if _, err := store.GetObject(ctx, "old/a.jpg"); !apperror.Is(err, apperror.NotFound) {
		t.Fatalf("expected old key gone, got %v", err)
	}
	if _, err := store.GetObject(ctx, "new/a.jpg"); err != nil {
		t.Fatalf("expected new key present, got %v", err)
	}
}
