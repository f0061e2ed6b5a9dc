package services

import (
	"context"
	"strings"

	"marketplace/internal/apperrors"
	"marketplace/internal/db"
	"marketplace/internal/models"

	"github.com/jmoiron/sqlx"
)

// ShopService registers shops pushed by the storefront so that sales and
// payouts can reference them.
type ShopService struct {
	txRunner db.TxRunner
	shops    ShopStore
}

func NewShopService(txRunner db.TxRunner, shops ShopStore) *ShopService {
	return &ShopService{txRunner: txRunner, shops: shops}
}

type RegisterShopInput struct {
	ShopID      string
	OwnerUserID string
	Name        string
	Email       string
}

func (s *ShopService) Register(ctx context.Context, in RegisterShopInput) (models.Shop, error) {
	shopID := strings.TrimSpace(in.ShopID)
	owner := strings.TrimSpace(in.OwnerUserID)
	if shopID == "" || owner == "" {
		return models.Shop{}, apperrors.New(apperrors.CodeValidation, "shopId and ownerUserId are required")
	}
	var shop models.Shop
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.shops.Upsert(ctx, tx, models.Shop{
			ID:          shopID,
			OwnerUserID: owner,
			Name:        strings.TrimSpace(in.Name),
			Email:       strings.TrimSpace(in.Email),
		}); err != nil {
			return err
		}
		var err error
		shop, err = s.shops.GetByID(ctx, tx, shopID)
		return err
	})
	return shop, err
}
