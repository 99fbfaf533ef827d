package user

import (
	"time"

	userDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/user"
)

type User struct {
	ID          int64     `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	RoleID      int64     `json:"role_id"`
	RoleName    string    `json:"role"`
	IsActive    bool      `json:"is_active"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AssignRoleDTO is the body of PUT /users/{id}/role.
type AssignRoleDTO struct {
	Role string `json:"role"`
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		RoleID:      u.RoleID,
		IsActive:    u.IsActive,
		Permissions: []string{},
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
