package store

import (
	"context"

	"marketplace/internal/models"
)

// AuditStore is append-only: there is no update or delete.
type AuditStore struct {
	db DB
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Log(ctx context.Context, tx Execer, entry models.AuditEntry) error {
	metadata := entry.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, action, performed_by, target_entity, target_id, shop_id, metadata, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.Action, entry.PerformedBy, entry.TargetEntity, entry.TargetID, entry.ShopID, string(metadata), entry.Reason)
	return err
}

func (s *AuditStore) List(ctx context.Context, shopID string, limit, offset int) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	var err error
	if shopID == "" {
		err = s.db.SelectContext(ctx, &entries, `
			SELECT id, action, performed_by, target_entity, target_id, shop_id, metadata, reason, created_at
			FROM audit_logs
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2
		`, limit, offset)
	} else {
		err = s.db.SelectContext(ctx, &entries, `
			SELECT id, action, performed_by, target_entity, target_id, shop_id, metadata, reason, created_at
			FROM audit_logs
			WHERE shop_id = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3
		`, shopID, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	return entries, nil
}
