package user

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/coursehub/internal"
	"github.com/frahmantamala/coursehub/internal/authz"
	"github.com/frahmantamala/coursehub/internal/core/common/validation"
	"github.com/frahmantamala/coursehub/internal/transport"
)

type ServiceAPI interface {
	GetByID(ctx context.Context, userID int64) (*User, error)
	AssignRole(ctx context.Context, actorID, userID int64, roleName string) (*User, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(svc ServiceAPI, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := internal.UserIDFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.NewUnauthorizedError("unauthorized", internal.ErrCodeInvalidToken))
		return
	}

	u, err := h.Service.GetByID(r.Context(), userID)
	if err != nil {
		h.WriteAppError(w, r, authz.ToAppError(err))
		return
	}

	h.WriteJSON(w, http.StatusOK, u)
}

// AssignRole handles PUT /users/{id}/role
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	actorID, _ := internal.UserIDFromContext(r.Context())

	userID, appErr := h.PathInt64(r, "id")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	var dto AssignRoleDTO
	if appErr := h.DecodeJSON(r, &dto); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	v := validation.NewValidator()
	v.Field("role", dto.Role).Required().MaxLength(50)
	if appErr := v.Validate(); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	u, err := h.Service.AssignRole(r.Context(), actorID, userID, dto.Role)
	if err != nil {
		h.WriteAppError(w, r, authz.ToAppError(err))
		return
	}

	h.WriteJSON(w, http.StatusOK, u)
}
