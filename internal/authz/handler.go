package authz

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/coursehub/internal"
	"github.com/frahmantamala/coursehub/internal/core/common/validation"
	"github.com/frahmantamala/coursehub/internal/transport"
	"github.com/go-chi/chi"
)

type OverrideServiceAPI interface {
	Grant(ctx context.Context, actorID, userID int64, permission string) (bool, error)
	Block(ctx context.Context, actorID, userID int64, permission string) (bool, error)
	Revoke(ctx context.Context, actorID, userID int64, permission string) (bool, error)
	Unblock(ctx context.Context, actorID, userID int64, permission string) (bool, error)
	OverridesFor(ctx context.Context, userID int64) (Overrides, error)
}

type GuardAPI interface {
	CanModify(ctx context.Context, userID, ownerUserID int64, ownPermission, moderateAllPermission string) (Decision, error)
	CanModifyResource(ctx context.Context, userID int64, kind ResourceKind, ownerUserID int64) (Decision, error)
}

type ResolverAPI interface {
	Resolve(ctx context.Context, userID int64) (*Resolution, error)
}

type Handler struct {
	*transport.BaseHandler
	repo      RepositoryAPI
	registry  *Registry
	resolver  ResolverAPI
	overrides OverrideServiceAPI
	guard     GuardAPI
}

func NewHandler(repo RepositoryAPI, registry *Registry, resolver ResolverAPI, overrides OverrideServiceAPI, guard GuardAPI, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		repo:        repo,
		registry:    registry,
		resolver:    resolver,
		overrides:   overrides,
		guard:       guard,
	}
}

// ListPermissions handles GET /permissions
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.repo.ListPermissions(r.Context())
	if err != nil {
		h.WriteAppError(w, r, ToAppError(err))
		return
	}
	out := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, PermissionResponse{ID: p.ID, Name: p.Name, Description: p.Description})
	}
	h.WriteJSON(w, http.StatusOK, out)
}

// ListRoles handles GET /roles
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles := h.registry.All()
	out := make([]RoleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, RoleResponse{
			Name:        role.Name,
			Description: role.Description,
			Permissions: NewPermissionSet(role.Permissions...).Names(),
		})
	}
	h.WriteJSON(w, http.StatusOK, out)
}

// GetUserPermissions handles GET /users/{id}/permissions
func (h *Handler) GetUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID, appErr := h.PathInt64(r, "id")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	res, err := h.resolver.Resolve(r.Context(), userID)
	if err != nil {
		h.WriteAppError(w, r, ToAppError(err))
		return
	}
	h.WriteJSON(w, http.StatusOK, ResolutionResponse{
		UserID:      res.UserID,
		Role:        res.RoleName,
		Permissions: res.Permissions.Names(),
	})
}

// GetUserOverrides handles GET /users/{id}/overrides
func (h *Handler) GetUserOverrides(w http.ResponseWriter, r *http.Request) {
	userID, appErr := h.PathInt64(r, "id")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	ov, err := h.overrides.OverridesFor(r.Context(), userID)
	if err != nil {
		h.WriteAppError(w, r, ToAppError(err))
		return
	}
	h.WriteJSON(w, http.StatusOK, OverridesResponse{
		UserID: userID,
		Grants: ov.Grants.Names(),
		Blocks: ov.Blocks.Names(),
	})
}

// Grant handles PUT /users/{id}/grants/{permission}
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, ActionGrant, h.overrides.Grant)
}

// Revoke handles DELETE /users/{id}/grants/{permission}
func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, ActionRevoke, h.overrides.Revoke)
}

// Block handles PUT /users/{id}/blocks/{permission}
func (h *Handler) Block(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, ActionBlock, h.overrides.Block)
}

// Unblock handles DELETE /users/{id}/blocks/{permission}
func (h *Handler) Unblock(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, ActionUnblock, h.overrides.Unblock)
}

type mutation func(ctx context.Context, actorID, userID int64, permission string) (bool, error)

func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, action string, fn mutation) {
	actorID, _ := internal.UserIDFromContext(r.Context())

	userID, appErr := h.PathInt64(r, "id")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	permission := chi.URLParam(r, "permission")
	if appErr := validation.ValidatePermissionName("permission", permission); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	changed, err := fn(r.Context(), actorID, userID, permission)
	if err != nil {
		h.WriteAppError(w, r, ToAppError(err))
		return
	}

	h.WriteJSON(w, http.StatusOK, OverrideMutationResponse{
		UserID:     userID,
		Permission: permission,
		Action:     action,
		Changed:    changed,
	})
}

// CanModify handles POST /authz/can-modify for the authenticated caller.
func (h *Handler) CanModify(w http.ResponseWriter, r *http.Request) {
	actorID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.NewUnauthorizedError("unauthorized", internal.ErrCodeInvalidToken))
		return
	}

	var req CanModifyRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	if appErr := req.Validate(); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	var (
		d   Decision
		err error
	)
	if req.ResourceKind != "" {
		d, err = h.guard.CanModifyResource(r.Context(), actorID, ResourceKind(req.ResourceKind), req.OwnerUserID)
	} else {
		d, err = h.guard.CanModify(r.Context(), actorID, req.OwnerUserID, req.OwnPermission, req.ModerateAllPermission)
	}
	if err != nil {
		h.WriteAppError(w, r, ToAppError(err))
		return
	}

	h.WriteJSON(w, http.StatusOK, NewDecisionResponse(d))
}
