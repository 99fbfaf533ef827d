package authz

import (
	"github.com/frahmantamala/coursehub/internal"
	"github.com/frahmantamala/coursehub/internal/core/common/validation"
)

type PermissionResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type RoleResponse struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type ResolutionResponse struct {
	UserID      int64    `json:"user_id"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

type OverridesResponse struct {
	UserID int64    `json:"user_id"`
	Grants []string `json:"grants"`
	Blocks []string `json:"blocks"`
}

type OverrideMutationResponse struct {
	UserID     int64  `json:"user_id"`
	Permission string `json:"permission"`
	Action     string `json:"action"`
	Changed    bool   `json:"changed"`
}

// CanModifyRequest asks whether the caller may modify a resource owned by OwnerUserID. Either
// ResourceKind or both permission names must be set.
type CanModifyRequest struct {
	OwnerUserID           int64  `json:"owner_user_id"`
	ResourceKind          string `json:"resource_kind,omitempty"`
	OwnPermission         string `json:"own_permission,omitempty"`
	ModerateAllPermission string `json:"moderate_all_permission,omitempty"`
}

type DecisionResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

func (r CanModifyRequest) Validate() *internal.AppError {
	v := validation.NewValidator()
	v.Field("owner_user_id", r.OwnerUserID).Required().Positive(internal.ErrCodeInvalidUserID)
	if r.ResourceKind == "" {
		v.Field("own_permission", r.OwnPermission).Required().PermissionName()
		v.Field("moderate_all_permission", r.ModerateAllPermission).Required().PermissionName()
	}
	return v.Validate()
}

func NewDecisionResponse(d Decision) DecisionResponse {
	return DecisionResponse{
		Allowed: d.Allowed,
		Reason:  string(d.Reason),
		Message: d.Message(),
	}
}
