package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	resp "pricetracker/internal/lib/api/response"
	"pricetracker/internal/lib/jwt"
)

type contextKey string

const UserIDKey contextKey = "user_id"

// Optional attaches the caller's identity to the request context when
// a valid bearer token is presented. Requests without an Authorization
// header pass through as guests; a malformed or forged token is still
// rejected.
func Optional(parser *jwt.JWTParser) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := parser.ParseHeader(r.Header.Get("Authorization"))
			switch {
			case errors.Is(err, jwt.ErrNoToken):
				next.ServeHTTP(w, r)
				return

			case err != nil:
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("invalid token"))
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserID reads the identity set by Optional, if any.
func UserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDKey).(int64)
	return id, ok
}
