package services

import (
	"context"
	"strings"

	"marketplace/internal/apperrors"
	"marketplace/internal/db"
	"marketplace/internal/store"

	"github.com/jmoiron/sqlx"
)

// Roles an admin can be granted. Super admins implicitly hold all of them.
var AdminRoles = []string{store.RolePayouts, store.RoleWallets, store.RoleAudit}

// AdminService manages who may operate the admin endpoints.
type AdminService struct {
	txRunner db.TxRunner
	admins   AdminStore
	audit    AuditStore
}

func NewAdminService(txRunner db.TxRunner, admins AdminStore, audit AuditStore) *AdminService {
	return &AdminService{txRunner: txRunner, admins: admins, audit: audit}
}

// Bootstrap makes userID a super admin when no admin exists yet. It reports
// whether an admin was created.
func (s *AdminService) Bootstrap(ctx context.Context, userID string) (bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false, nil
	}
	var created bool
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		created, err = s.admins.BootstrapSuper(ctx, tx, userID)
		if err != nil || !created {
			return err
		}
		return s.audit.Log(ctx, tx, newAuditEntry(ActionAdminPromoted, SystemActor, entityAdmin, userID, "", "bootstrap", map[string]any{"is_super": true}))
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func (s *AdminService) requireSuper(ctx context.Context, actor string) error {
	_, isSuper, err := s.admins.IsAdmin(ctx, actor)
	if err != nil {
		return err
	}
	if !isSuper {
		return ErrSuperAdminRequired
	}
	return nil
}

// Promote makes targetUserID a regular admin. Only super admins may promote;
// promoting an existing admin succeeds without another audit entry.
func (s *AdminService) Promote(ctx context.Context, actor, targetUserID string) error {
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return apperrors.New(apperrors.CodeValidation, "userId is required")
	}
	if err := s.requireSuper(ctx, actor); err != nil {
		return err
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		created, err := s.admins.CreateAdmin(ctx, tx, targetUserID, actor)
		if err != nil || !created {
			return err
		}
		return s.audit.Log(ctx, tx, newAuditEntry(ActionAdminPromoted, actor, entityAdmin, targetUserID, "", "", nil))
	})
}

// GrantRole gives an existing, non-super admin one of AdminRoles.
func (s *AdminService) GrantRole(ctx context.Context, actor, adminUserID, role string) error {
	if !knownRole(role) {
		return withDetails(ErrUnknownRole, map[string]any{"role": role, "allowed": AdminRoles})
	}
	if err := s.requireSuper(ctx, actor); err != nil {
		return err
	}
	isAdmin, isSuper, err := s.admins.IsAdmin(ctx, adminUserID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return withDetails(ErrNotAdmin, map[string]any{"user_id": adminUserID})
	}
	if isSuper {
		return nil
	}
	return s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.admins.GrantRole(ctx, tx, adminUserID, role); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, newAuditEntry(ActionAdminRoleGranted, actor, entityAdmin, adminUserID, "", "", map[string]any{"role": role}))
	})
}

func knownRole(role string) bool {
	for _, known := range AdminRoles {
		if role == known {
			return true
		}
	}
	return false
}
