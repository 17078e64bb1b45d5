package ingest

import "github.com/gallerybot/gallery-api/internal/pkg/apperror"

func errInvalidInput(msg string) error {
	return apperror.New(apperror.InvalidInput, msg)
}

func errNotFound(msg string) error {
	return apperror.New(apperror.NotFound, msg)
}

// ErrUnsupportedMimeType is returned by the decision tree when a file is
// neither a recognized image nor a ZIP archive.
var ErrUnsupportedMimeType = apperror.New(apperror.InvalidInput, "unsupported mime type")
