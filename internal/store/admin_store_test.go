package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminStoreIsAdmin(t *testing.T) {
	cases := []struct {
		name      string
		getErr    error
		super     bool
		wantAdmin bool
		wantSuper bool
		wantErr   bool
	}{
		{name: "missing row", getErr: sql.ErrNoRows},
		{name: "regular admin", wantAdmin: true},
		{name: "super admin", super: true, wantAdmin: true, wantSuper: true},
		{name: "db failure", getErr: errors.New("conn reset"), wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := NewAdminStore(stubDB{
				getFn: func(_ context.Context, dest any, query string, args ...any) error {
					if !strings.Contains(query, "FROM admins") {
						t.Fatalf("unexpected query: %s", query)
					}
					if tc.getErr != nil {
						return tc.getErr
					}
					*dest.(*bool) = tc.super
					return nil
				},
			})
			isAdmin, isSuper, err := store.IsAdmin(context.Background(), "user-1")
			if (err != nil) != tc.wantErr {
				t.Fatalf("unexpected error: %v", err)
			}
			if isAdmin != tc.wantAdmin || isSuper != tc.wantSuper {
				t.Fatalf("expected admin=%v super=%v, got %v/%v", tc.wantAdmin, tc.wantSuper, isAdmin, isSuper)
			}
		})
	}
}

func TestAdminStoreHasRole(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (")).
		WithArgs("user-1", RolePayouts).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	granted, err := NewAdminStore(db).HasRole(context.Background(), "user-1", RolePayouts)
	require.NoError(t, err)
	assert.True(t, granted)
}

func TestAdminStoreCreateReportsExisting(t *testing.T) {
	db, mock := newMockDB(t)
	insert := regexp.QuoteMeta("INSERT INTO admins (user_id, is_super, created_by)")
	mock.ExpectExec(insert).WithArgs("user-1", "root").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WithArgs("user-1", "root").WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewAdminStore(db)
	created, err := store.CreateAdmin(context.Background(), db, "user-1", "root")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = store.CreateAdmin(context.Background(), db, "user-1", "root")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestAdminStoreBootstrapSuperOnlyWhenEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("WHERE NOT EXISTS (SELECT 1 FROM admins)")).
		WithArgs("root").
		WillReturnResult(sqlmock.NewResult(0, 0))

	created, err := NewAdminStore(db).BootstrapSuper(context.Background(), db, "root")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestAdminStoreGrantRole(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO admin_roles (admin_user_id, role)")).
		WithArgs("user-1", RoleWallets).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewAdminStore(db).GrantRole(context.Background(), db, "user-1", RoleWallets))
}
