package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"marketplace/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShopStoreGetByOwner(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewShopStore(db)
	now := time.Now().UTC()
	sealed := "c2VhbGVk"

	mock.ExpectQuery(regexp.QuoteMeta("WHERE owner_user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "owner_user_id", "name", "email", "status", "bank_account_sealed", "bank_account_masked",
			"bank_ifsc", "bank_name", "bank_holder_name", "deactivated_at", "created_at", "updated_at",
		}).AddRow("shop-1", "user-1", "Acme", "acme@example.com", "ACTIVE", sealed, "XXXXXX1234", "HDFC0001234", "HDFC", "Acme Ltd", nil, now, now))
	shop, err := store.GetByOwner(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "shop-1", shop.ID)
	assert.True(t, shop.HasBankDetails())
}

func TestShopStoreDeactivateMissing(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewShopStore(db)
	at := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'INACTIVE'")).
		WithArgs("shop-404", at).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.Deactivate(context.Background(), db, "shop-404", at)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestShopStoreUpdateBankDetails(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewShopStore(db)

	mock.ExpectExec(regexp.QuoteMeta("SET bank_account_sealed = $2")).
		WithArgs("shop-1", "sealed", "XXXXXX1234", "HDFC0001234", "HDFC", "Acme Ltd").
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := store.UpdateBankDetails(context.Background(), db, "shop-1", models.BankDetails{
		Sealed:     "sealed",
		Masked:     "XXXXXX1234",
		IFSC:       "HDFC0001234",
		BankName:   "HDFC",
		HolderName: "Acme Ltd",
	})
	require.NoError(t, err)
}
