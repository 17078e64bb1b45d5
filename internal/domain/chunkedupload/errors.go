package chunkedupload

import "github.com/gallerybot/gallery-api/internal/pkg/apperror"

func errInvalidInput(msg string) error {
	return apperror.New(apperror.InvalidInput, msg)
}

func errNotFound(msg string) error {
	return apperror.New(apperror.NotFound, msg)
}

func errResourceLimit(msg string) error {
	return apperror.New(apperror.ResourceLimit, msg)
}
