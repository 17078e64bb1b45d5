// Package objectkey builds and sanitizes the object-store keys used for
// gallery folders and uploaded files, per the layout:
//
//	<guildId>/<gallerySlug>/                                         (folder marker)
//	<guildId>/<gallerySlug>/uploads/<yyyy-mm-dd>/<timestamp>-<n>-<sanitized-filename>
package objectkey

import (
	"fmt"
	"regexp"
	"strings"
)

var invalidRun = regexp.MustCompile(`[^A-Za-z0-9._/-]+`)
var doubleSlash = regexp.MustCompile(`/+`)

// SanitizeFilename applies the sanitization rules to a single filename (or
// any path component): backslashes become slashes, ".." sequences are
// collapsed away, runs of characters outside [A-Za-z0-9._/-] become a
// single hyphen, repeated slashes collapse to one, and the result is
// trimmed of leading/trailing hyphens.
func SanitizeFilename(name string) string {
	s := strings.ReplaceAll(name, `\`, "/")
	s = strings.ReplaceAll(s, "..", "")
	s = invalidRun.ReplaceAllString(s, "-")
	s = doubleSlash.ReplaceAllString(s, "/")
	s = strings.Trim(s, "-")
	return s
}

// FolderMarker returns the trailing-slash prefix that marks a gallery's
// root folder in the object store.
func FolderMarker(guildID, gallerySlug string) string {
	return fmt.Sprintf("%s/%s/", guildID, gallerySlug)
}

// UploadPrefix returns the date-bucketed prefix uploaded files are stored
// under, without the trailing filename.
func UploadPrefix(guildID, gallerySlug, yyyymmdd string) string {
	return fmt.Sprintf("%s/%s/uploads/%s/", guildID, gallerySlug, yyyymmdd)
}

// UploadKey builds the full object key for one uploaded file.
func UploadKey(guildID, gallerySlug, yyyymmdd string, timestampMs int64, sequence int, filename string) string {
	return fmt.Sprintf("%s%d-%d-%s", UploadPrefix(guildID, gallerySlug, yyyymmdd), timestampMs, sequence, SanitizeFilename(filename))
}
