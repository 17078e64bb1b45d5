package gradient

import "github.com/gallerybot/gallery-api/internal/pkg/apperror"

func errInvalidInput(msg string) error {
	return apperror.New(apperror.InvalidInput, msg)
}
