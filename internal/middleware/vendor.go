package middleware

import (
	"context"
	"errors"
	"net/http"

	"marketplace/internal/apperrors"
	"marketplace/internal/logger"
	"marketplace/internal/models"
	"marketplace/internal/store"
)

type ShopResolver interface {
	GetByOwner(ctx context.Context, ownerUserID string) (models.Shop, error)
}

func ShopIDFromContext(ctx context.Context) (string, bool) {
	shopID, ok := ctx.Value(shopIDKey).(string)
	return shopID, ok && shopID != ""
}

// WithShop stores the vendor's shop id on ctx.
func WithShop(ctx context.Context, shopID string) context.Context {
	return context.WithValue(ctx, shopIDKey, shopID)
}

// RequireShop resolves the authenticated user's shop. Vendor routes act on
// that shop only; a shop id is never taken from the request.
func RequireShop(shops ShopResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				WriteError(w, apperrors.New(apperrors.CodeUnauthorized, "unauthorized"))
				return
			}
			shop, err := shops.GetByOwner(r.Context(), userID)
			if errors.Is(err, store.ErrNotFound) {
				WriteError(w, apperrors.New(apperrors.CodeForbidden, "no shop is linked to this account"))
				return
			}
			if err != nil {
				logg.Error(r.Context(), "resolve vendor shop failed", err)
				WriteError(w, apperrors.Wrap(apperrors.CodeInternal, err, "unable to resolve shop"))
				return
			}
			ctx := logg.WithShopID(WithShop(r.Context(), shop.ID), shop.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
