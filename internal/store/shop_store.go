package store

import (
	"context"
	"time"

	"marketplace/internal/models"
)

const shopColumns = `id, owner_user_id, name, email, status, bank_account_sealed, bank_account_masked,
		       bank_ifsc, bank_name, bank_holder_name, deactivated_at, created_at, updated_at`

type ShopStore struct {
	db DB
}

func NewShopStore(db DB) *ShopStore {
	return &ShopStore{db: db}
}

// Upsert registers a shop or refreshes its profile fields.
func (s *ShopStore) Upsert(ctx context.Context, tx Execer, shop models.Shop) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO shops (id, owner_user_id, name, email, status)
		VALUES ($1, $2, $3, $4, 'ACTIVE')
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, email = EXCLUDED.email, updated_at = NOW()
	`, shop.ID, shop.OwnerUserID, shop.Name, shop.Email)
	return translate(err)
}

func (s *ShopStore) GetByID(ctx context.Context, tx Getter, shopID string) (models.Shop, error) {
	var shop models.Shop
	err := tx.GetContext(ctx, &shop, `
		SELECT `+shopColumns+`
		FROM shops
		WHERE id = $1
	`, shopID)
	if err != nil {
		return models.Shop{}, translate(err)
	}
	return shop, nil
}

func (s *ShopStore) GetByOwner(ctx context.Context, ownerUserID string) (models.Shop, error) {
	var shop models.Shop
	err := s.db.GetContext(ctx, &shop, `
		SELECT `+shopColumns+`
		FROM shops
		WHERE owner_user_id = $1
	`, ownerUserID)
	if err != nil {
		return models.Shop{}, translate(err)
	}
	return shop, nil
}

func (s *ShopStore) UpdateBankDetails(ctx context.Context, tx Execer, shopID string, details models.BankDetails) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE shops
		SET bank_account_sealed = $2,
		    bank_account_masked = $3,
		    bank_ifsc = $4,
		    bank_name = $5,
		    bank_holder_name = $6,
		    updated_at = NOW()
		WHERE id = $1
	`, shopID, details.Sealed, details.Masked, details.IFSC, details.BankName, details.HolderName)
	if err != nil {
		return err
	}
	ok, err := expectOneRow(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *ShopStore) Deactivate(ctx context.Context, tx Execer, shopID string, at time.Time) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE shops
		SET status = 'INACTIVE', deactivated_at = $2, updated_at = NOW()
		WHERE id = $1
	`, shopID, at)
	if err != nil {
		return err
	}
	ok, err := expectOneRow(res)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
