package chunkedupload_test

import (
	"os"
	"testing"
	"time"

	"github.com/gallerybot/gallery-api/internal/domain/chunkedupload"
	"github.com/gallerybot/gallery-api/internal/pkg/apperror"
)

func TestFinalizeAssemblesChunksInOrder(t *testing.T) {
	baseDir := t.TempDir()
	manager := chunkedupload.NewManager(baseDir, 24*time.Hour)

	uploadID, err := manager.Init("greeting.txt", "text/plain", 23, "My Gallery", "guild1")
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	// Chunks arrive out of order; finalize must still assemble them
	// sequentially by index, not by arrival order.
	chunks := map[int]string{
		2: " World!",
		0: "Hello, ",
		1: "Beautiful",
	}
	for _, idx := range []int{2, 0, 1} {
		if err := manager.SaveChunk(uploadID, idx, []byte(chunks[idx])); err != nil {
			t.Fatalf("save chunk %d: %v", idx, err)
		}
	}

	path, err := manager.Finalize(uploadID)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read assembled file: %v", err)
	}

	want := "Hello, Beautiful World!"
	if string(data) != want {
		t.Fatalf("got %q, want %q", data, want)
	}
}

func TestSaveChunkRejectsOversized(t *testing.T) {
	manager := chunkedupload.NewManager(t.TempDir(), 24*time.Hour)

	uploadID, err := manager.Init("big.bin", "application/octet-stream", 100, "Gallery", "guild1")
	if err != nil {
		t.Fatalf("init: %v", err)
	}

	oversized := make([]byte, chunkedupload.MaxChunkSize+1)
	err = manager.SaveChunk(uploadID, 0, oversized)
	if !apperror.Is(err, apperror.ResourceLimit) {
		t.Fatalf("expected ResourceLimit, got %v", err)
	}
}

func TestCleanupExpiredRemovesOldSessions(t *testing.T) {
	manager := chunkedupload.NewManager(t.TempDir(), -time.Second) // everything is already "expired"

	if _, err := manager.Init("a.txt", "text/plain", 10, "Gallery", "guild1"); err != nil {
		t.Fatalf("init: %v", err)
	}

	n := manager.CleanupExpired()
	if n != 1 {
		t.Fatalf("got %d reaped, want 1", n)
	}
}
