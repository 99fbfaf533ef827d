package postgres

import (
	"context"
	"errors"

	authzDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/authz"
	userDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/user"
	"github.com/frahmantamala/coursehub/internal/reconcile"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) reconcile.Store {
	return &Store{db: db}
}

func (s *Store) WithTx(ctx context.Context, fn func(context.Context, reconcile.TxStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &txStore{db: tx})
	})
}

type txStore struct {
	db *gorm.DB
}

func (t *txStore) ListPermissions(ctx context.Context) ([]*authzDatamodel.Permission, error) {
	var perms []*authzDatamodel.Permission
	err := t.db.WithContext(ctx).Order("id ASC").Find(&perms).Error
	return perms, err
}

func (t *txStore) CreatePermission(ctx context.Context, perm *authzDatamodel.Permission) error {
	return t.db.WithContext(ctx).Create(perm).Error
}

func (t *txStore) UpdatePermissionDescription(ctx context.Context, id int64, description string) error {
	return t.db.WithContext(ctx).
		Model(&authzDatamodel.Permission{}).
		Where("id = ?", id).
		Update("description", description).Error
}

func (t *txStore) ListRoles(ctx context.Context) ([]*authzDatamodel.Role, error) {
	var roles []*authzDatamodel.Role
	err := t.db.WithContext(ctx).Order("id ASC").Find(&roles).Error
	return roles, err
}

func (t *txStore) CreateRole(ctx context.Context, role *authzDatamodel.Role) error {
	return t.db.WithContext(ctx).Create(role).Error
}

func (t *txStore) UpdateRoleDescription(ctx context.Context, id int64, description string) error {
	return t.db.WithContext(ctx).
		Model(&authzDatamodel.Role{}).
		Where("id = ?", id).
		Update("description", description).Error
}

func (t *txStore) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	var ids []int64
	err := t.db.WithContext(ctx).
		Model(&authzDatamodel.RolePermission{}).
		Where("role_id = ?", roleID).
		Order("permission_id ASC").
		Pluck("permission_id", &ids).Error
	return ids, err
}

func (t *txStore) AddRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	links := make([]authzDatamodel.RolePermission, 0, len(permissionIDs))
	for _, id := range permissionIDs {
		links = append(links, authzDatamodel.RolePermission{RoleID: roleID, PermissionID: id})
	}
	return t.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&links).Error
}

func (t *txStore) RemoveRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	return t.db.WithContext(ctx).
		Where("role_id = ? AND permission_id IN ?", roleID, permissionIDs).
		Delete(&authzDatamodel.RolePermission{}).Error
}

func (t *txStore) GetUserByEmail(ctx context.Context, email string) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := t.db.WithContext(ctx).Where("LOWER(email) = ?", email).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (t *txStore) CreateUser(ctx context.Context, u *userDatamodel.User) error {
	return t.db.WithContext(ctx).Create(u).Error
}

func (t *txStore) CountUsersWithRole(ctx context.Context, roleID int64) (int64, error) {
	var n int64
	err := t.db.WithContext(ctx).Model(&userDatamodel.User{}).Where("role_id = ?", roleID).Count(&n).Error
	return n, err
}
