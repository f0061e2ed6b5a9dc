package store

import (
	"context"
	"errors"
)

// Admin roles checked by the router.
const (
	RolePayouts = "CanManagePayouts"
	RoleWallets = "CanManageWallets"
	RoleAudit   = "CanViewAudit"
)

type AdminStore struct {
	db DB
}

func NewAdminStore(db DB) *AdminStore {
	return &AdminStore{db: db}
}

// IsAdmin reports (isAdmin, isSuper).
func (s *AdminStore) IsAdmin(ctx context.Context, userID string) (bool, bool, error) {
	var isSuper bool
	err := translate(s.db.GetContext(ctx, &isSuper, `
		SELECT is_super
		FROM admins
		WHERE user_id = $1
	`, userID))
	if errors.Is(err, ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, isSuper, nil
}

func (s *AdminStore) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var granted bool
	err := s.db.GetContext(ctx, &granted, `
		SELECT EXISTS (
			SELECT 1 FROM admin_roles WHERE admin_user_id = $1 AND role = $2
		)
	`, userID, role)
	return granted, err
}

// CreateAdmin adds a regular admin. It reports false when userID already was
// an admin.
func (s *AdminStore) CreateAdmin(ctx context.Context, tx Execer, userID, createdBy string) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO admins (user_id, is_super, created_by)
		VALUES ($1, false, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, createdBy)
	if err != nil {
		return false, err
	}
	return expectOneRow(result)
}

// BootstrapSuper creates userID as super admin only while the admins table is
// empty, so concurrent starts cannot create two.
func (s *AdminStore) BootstrapSuper(ctx context.Context, tx Execer, userID string) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO admins (user_id, is_super, created_by)
		SELECT $1, true, NULL
		WHERE NOT EXISTS (SELECT 1 FROM admins)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return false, err
	}
	return expectOneRow(result)
}

func (s *AdminStore) GrantRole(ctx context.Context, tx Execer, adminUserID, role string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admin_roles (admin_user_id, role)
		VALUES ($1, $2)
		ON CONFLICT (admin_user_id, role) DO NOTHING
	`, adminUserID, role)
	return translate(err)
}
