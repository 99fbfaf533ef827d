package authz

import "time"

// Override kinds stored in user_permission_overrides.kind.
const (
	OverrideKindGrant = "grant"
	OverrideKindBlock = "block"
)

type Permission struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

type Role struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;uniqueIndex;not null"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// RolePermission is a pure link row; the pair is its identity.
type RolePermission struct {
	RoleID       int64     `gorm:"column:role_id;primaryKey;autoIncrement:false"`
	PermissionID int64     `gorm:"column:permission_id;primaryKey;autoIncrement:false"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// UserPermissionOverride holds at most one row per (user, permission), so a pair is either
// absent, granted or blocked.
type UserPermissionOverride struct {
	ID           int64     `gorm:"primaryKey"`
	UserID       int64     `gorm:"column:user_id;not null;uniqueIndex:idx_user_permission_override"`
	PermissionID int64     `gorm:"column:permission_id;not null;uniqueIndex:idx_user_permission_override"`
	Kind         string    `gorm:"column:kind;not null"`
	GrantedBy    *int64    `gorm:"column:granted_by"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// OverrideView is the joined read shape used by the resolver.
type OverrideView struct {
	PermissionName string `gorm:"column:name"`
	Kind           string `gorm:"column:kind"`
}
