package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/coursehub/internal/authz"
	authzDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/authz"
	userDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/user"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AuthzRepository struct {
	db *gorm.DB
}

func NewAuthzRepository(db *gorm.DB) authz.RepositoryAPI {
	return &AuthzRepository{db: db}
}

func (r *AuthzRepository) GetUser(ctx context.Context, userID int64) (*userDatamodel.User, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *AuthzRepository) GetRoleByID(ctx context.Context, roleID int64) (*authzDatamodel.Role, error) {
	var role authzDatamodel.Role
	err := r.db.WithContext(ctx).Where("id = ?", roleID).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (r *AuthzRepository) GetRoleByName(ctx context.Context, name string) (*authzDatamodel.Role, error) {
	var role authzDatamodel.Role
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (r *AuthzRepository) GetPermissionByName(ctx context.Context, name string) (*authzDatamodel.Permission, error) {
	var perm authzDatamodel.Permission
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&perm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &perm, nil
}

func (r *AuthzRepository) ListPermissions(ctx context.Context) ([]*authzDatamodel.Permission, error) {
	var perms []*authzDatamodel.Permission
	err := r.db.WithContext(ctx).Order("name ASC").Find(&perms).Error
	return perms, err
}

func (r *AuthzRepository) ListRoles(ctx context.Context) ([]*authzDatamodel.Role, error) {
	var roles []*authzDatamodel.Role
	err := r.db.WithContext(ctx).Order("id ASC").Find(&roles).Error
	return roles, err
}

func (r *AuthzRepository) RolePermissionNames(ctx context.Context, roleID int64) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Model(&authzDatamodel.Permission{}).
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id = ?", roleID).
		Order("permissions.name ASC").
		Pluck("permissions.name", &names).Error
	return names, err
}

func (r *AuthzRepository) ListOverrides(ctx context.Context, userID int64) ([]authzDatamodel.OverrideView, error) {
	var views []authzDatamodel.OverrideView
	err := r.db.WithContext(ctx).
		Model(&authzDatamodel.UserPermissionOverride{}).
		Select("permissions.name, user_permission_overrides.kind").
		Joins("JOIN permissions ON permissions.id = user_permission_overrides.permission_id").
		Where("user_permission_overrides.user_id = ?", userID).
		Order("permissions.name ASC").
		Scan(&views).Error
	return views, err
}

// UpsertOverride relies on the unique (user_id, permission_id) index: concurrent writers on the
// same pair serialize on the conflict and the last one wins.
func (r *AuthzRepository) UpsertOverride(ctx context.Context, userID, permissionID int64, kind string, grantedBy *int64) (bool, error) {
	changed := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing authzDatamodel.UserPermissionOverride
		err := tx.Where("user_id = ? AND permission_id = ?", userID, permissionID).First(&existing).Error
		switch {
		case err == nil:
			if existing.Kind == kind {
				return nil
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return err
		}

		row := authzDatamodel.UserPermissionOverride{
			UserID:       userID,
			PermissionID: permissionID,
			Kind:         kind,
			GrantedBy:    grantedBy,
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "permission_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"kind", "granted_by", "updated_at"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

func (r *AuthzRepository) DeleteOverride(ctx context.Context, userID, permissionID int64, kind string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND permission_id = ? AND kind = ?", userID, permissionID, kind).
		Delete(&authzDatamodel.UserPermissionOverride{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
