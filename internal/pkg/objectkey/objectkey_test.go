package objectkey_test

import (
	"testing"

	"github.com/gallerybot/gallery-api/internal/pkg/objectkey"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"photo.jpg", "photo.jpg"},
		{`..\..\etc\passwd`, "/etc/passwd"},
		{"my photo!.jpg", "my-photo-.jpg"},
		{"a//b///c.jpg", "a/b/c.jpg"},
		{"___weird___.png", "___weird___.png"},
	}

	for _, c := range cases {
		if got := objectkey.SanitizeFilename(c.in); got != c.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestUploadKeyLayout(t *testing.T) {
	key := objectkey.UploadKey("guild1", "summer-25", "2025-07-01", 1719792000000, 3, "My Photo.JPG")
	want := "guild1/summer-25/uploads/2025-07-01/1719792000000-3-My-Photo.JPG"
	if key != want {
		t.Errorf("UploadKey = %q, want %q", key, want)
	}
}

func TestFolderMarker(t *testing.T) {
	if got := objectkey.FolderMarker("guild1", "summer-25"); got != "guild1/summer-25/" {
		t.Errorf("FolderMarker = %q", got)
	}
}
