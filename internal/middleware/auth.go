package middleware

import (
	"context"
	"net/http"
	"strings"

	"marketplace/internal/apperrors"
	"marketplace/internal/auth"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	shopIDKey contextKey = "shop_id"
)

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// headerToken extracts the bearer token from the Authorization header.
func headerToken(r *http.Request) (string, *apperrors.Error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", apperrors.New(apperrors.CodeUnauthorized, "missing authorization header")
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", apperrors.New(apperrors.CodeUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(token), nil
}

// BearerToken returns the token from the Authorization header, falling back
// to the token query parameter used by websocket clients.
func BearerToken(r *http.Request) string {
	if token, err := headerToken(r); err == nil {
		return token
	}
	return r.URL.Query().Get("token")
}

// Auth admits requests carrying a valid vendor or admin JWT and stores the
// user id on the request context.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, appErr := headerToken(r)
			if appErr != nil {
				WriteError(w, appErr)
				return
			}
			claims, err := auth.ParseToken(secret, token)
			if err != nil {
				WriteError(w, apperrors.Wrap(apperrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.UserID)))
		})
	}
}

// WithUser stores the authenticated user id on ctx.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}
