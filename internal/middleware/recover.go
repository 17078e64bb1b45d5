package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gallerybot/gallery-api/internal/pkg/response"
	"github.com/rs/zerolog/log"
)

// Recover is a middleware that recovers from panics
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stack := string(debug.Stack())

				// Log the panic with stack trace
				log.Error().
					Interface("error", err).
					Str("stack", stack).
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Msg("Panic recovered")

				// Hand the panic to the Logger middleware's writer, if wrapped by it
				if pw, ok := w.(interface{ SetPanicDetails(interface{}, string) }); ok {
					pw.SetPanicDetails(err, stack)
				}

				// Return 500 error to client
				response.InternalError(w)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
