package gallery_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/gallerybot/gallery-api/internal/domain/gallery"
)

func TestItemGradientSerializesExplicitNullWhenFailed(t *testing.T) {
	item := gallery.Item{Key: "guild1/summer/uploads/a.jpg", Size: 10, Gradient: nil}

	raw, err := json.Marshal(item)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"gradient":null`) {
		t.Fatalf("got %s, want an explicit gradient:null field", raw)
	}
}
