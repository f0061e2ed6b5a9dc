package middleware

import (
	"context"
	"net/http"

	"marketplace/internal/apperrors"
)

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// RequireAdmin admits super admins, and admins holding role when one is given.
func RequireAdmin(adminStore AdminStore, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				WriteError(w, apperrors.New(apperrors.CodeUnauthorized, "unauthorized"))
				return
			}
			if err := checkAdmin(r.Context(), adminStore, userID, role); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkAdmin(ctx context.Context, adminStore AdminStore, userID, role string) *apperrors.Error {
	isAdmin, isSuper, err := adminStore.IsAdmin(ctx, userID)
	switch {
	case err != nil:
		return apperrors.Wrap(apperrors.CodeInternal, err, "unable to verify admin")
	case !isAdmin:
		return apperrors.New(apperrors.CodeForbidden, "admin privileges required")
	case isSuper, role == "":
		return nil
	}
	granted, err := adminStore.HasRole(ctx, userID, role)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "unable to verify role")
	}
	if !granted {
		return apperrors.New(apperrors.CodeForbidden, "missing required role").WithDetail("role", role)
	}
	return nil
}
