package gallery

import "github.com/gallerybot/gallery-api/internal/pkg/apperror"

func errInvalidInput(msg string) error {
	return apperror.New(apperror.InvalidInput, msg)
}

func errNotFound(msg string) error {
	return apperror.New(apperror.NotFound, msg)
}

func errConflict(msg string) error {
	return apperror.New(apperror.Conflict, msg)
}
