package middleware

import (
	"crypto/subtle"
	"net/http"

	"marketplace/internal/apperrors"
)

const InternalTokenHeader = "X-Internal-Token"

// RequireInternalToken guards service-to-service endpoints. With no token
// configured every request is refused.
func RequireInternalToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				WriteError(w, apperrors.New(apperrors.CodeForbidden, "internal endpoints are disabled"))
				return
			}
			got := r.Header.Get(InternalTokenHeader)
			if got == "" {
				WriteError(w, apperrors.New(apperrors.CodeUnauthorized, "missing internal token"))
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				WriteError(w, apperrors.New(apperrors.CodeUnauthorized, "invalid internal token"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
