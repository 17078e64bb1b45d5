package middleware

import (
	"context"
	"net/http"

	"github.com/gallerybot/gallery-api/internal/pkg/response"
)

type contextKey string

const (
	GuildIDKey contextKey = "guild_id"
	UserIDKey  contextKey = "user_id"
)

// GuildContext is a stand-in for the real session-authentication
// collaborator: it trusts that whatever sits in front of this service
// already validated the caller and forwards the resulting tenant/user
// identity as headers.
func GuildContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		guildID := r.Header.Get("X-Guild-ID")
		userID := r.Header.Get("X-User-ID")

		if guildID == "" {
			response.Unauthorized(w, "missing guild context")
			return
		}

		ctx := context.WithValue(r.Context(), GuildIDKey, guildID)
		ctx = context.WithValue(ctx, UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetGuildID extracts the tenant guild id from context.
func GetGuildID(ctx context.Context) string {
	if id, ok := ctx.Value(GuildIDKey).(string); ok {
		return id
	}
	return ""
}

// GetUserID extracts the acting user id from context.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}
