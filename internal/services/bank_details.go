package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"marketplace/internal/db"
	"marketplace/internal/models"
	"marketplace/internal/store"
	"marketplace/internal/validator"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// Sealer encrypts full bank account numbers at rest with NaCl secretbox.
// The stored form is base64(nonce || box).
type Sealer struct {
	key [32]byte
}

func NewSealer(key [32]byte) *Sealer {
	return &Sealer{key: key}
}

func (s *Sealer) Seal(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(box), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	if len(raw) < nonceSize+secretbox.Overhead {
		return "", errors.New("sealed value too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", errors.New("sealed value failed authentication")
	}
	return string(plain), nil
}

// BankDetailsService stores a vendor's payout destination.
type BankDetailsService struct {
	txRunner db.TxRunner
	shops    ShopStore
	audit    AuditStore
	sealer   *Sealer
}

func NewBankDetailsService(txRunner db.TxRunner, shops ShopStore, audit AuditStore, sealer *Sealer) *BankDetailsService {
	return &BankDetailsService{txRunner: txRunner, shops: shops, audit: audit, sealer: sealer}
}

type BankDetailsInput struct {
	ShopID        string
	Actor         string
	AccountNumber string
	IFSC          string
	BankName      string
	HolderName    string
}

// Update validates and seals the account number, keeping only the masked form
// readable. Payouts created afterwards copy the masked details.
func (s *BankDetailsService) Update(ctx context.Context, in BankDetailsInput) (models.BankDetails, error) {
	account := strings.ReplaceAll(strings.TrimSpace(in.AccountNumber), " ", "")
	ifsc := strings.ToUpper(strings.TrimSpace(in.IFSC))
	if err := validator.ValidateAccountNumber(account); err != nil {
		return models.BankDetails{}, withDetails(ErrInvalidBankDetails, map[string]any{"accountNumber": err.Error()}).withCause(err)
	}
	if err := validator.ValidateIFSC(ifsc); err != nil {
		return models.BankDetails{}, withDetails(ErrInvalidBankDetails, map[string]any{"ifsc": err.Error()}).withCause(err)
	}
	sealed, err := s.sealer.Seal(account)
	if err != nil {
		return models.BankDetails{}, err
	}
	details := models.BankDetails{
		Sealed:     sealed,
		Masked:     validator.MaskAccountNumber(account),
		IFSC:       ifsc,
		BankName:   strings.TrimSpace(in.BankName),
		HolderName: strings.TrimSpace(in.HolderName),
	}
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		shop, err := s.shops.GetByID(ctx, tx, in.ShopID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrShopNotFound
		}
		if err != nil {
			return err
		}
		if shop.Status != models.ShopStatusActive {
			return ErrShopInactive
		}
		if err := s.shops.UpdateBankDetails(ctx, tx, in.ShopID, details); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, newAuditEntry(ActionBankDetailsUpdated, in.Actor, entityShop, in.ShopID, in.ShopID, "", map[string]any{
			"bank_account_masked": details.Masked,
			"bank_ifsc":           details.IFSC,
			"bank_name":           details.BankName,
		}))
	})
	if err != nil {
		return models.BankDetails{}, err
	}
	details.Sealed = ""
	return details, nil
}
