package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeOverrideChanged = "authz.override.changed"
	EventTypeRoleAssigned    = "authz.role.assigned"
	EventTypeReconciled      = "authz.reconciled"
)

type OverrideChangedEvent struct {
	BaseEvent
	ActorID    int64  `json:"actor_id"`
	UserID     int64  `json:"user_id"`
	Permission string `json:"permission"`
	Action     string `json:"action"`
}

func NewOverrideChangedEvent(actorID, userID int64, permission, action string) *OverrideChangedEvent {
	return &OverrideChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeOverrideChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"actor_id":   actorID,
				"user_id":    userID,
				"permission": permission,
				"action":     action,
			},
		},
		ActorID:    actorID,
		UserID:     userID,
		Permission: permission,
		Action:     action,
	}
}

type RoleAssignedEvent struct {
	BaseEvent
	ActorID  int64  `json:"actor_id"`
	UserID   int64  `json:"user_id"`
	FromRole string `json:"from_role"`
	ToRole   string `json:"to_role"`
}

func NewRoleAssignedEvent(actorID, userID int64, fromRole, toRole string) *RoleAssignedEvent {
	return &RoleAssignedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeRoleAssigned,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"actor_id":  actorID,
				"user_id":   userID,
				"from_role": fromRole,
				"to_role":   toRole,
			},
		},
		ActorID:  actorID,
		UserID:   userID,
		FromRole: fromRole,
		ToRole:   toRole,
	}
}

type ReconciledEvent struct {
	BaseEvent
	CatalogVersion     int `json:"catalog_version"`
	PermissionsCreated int `json:"permissions_created"`
	RolesCreated       int `json:"roles_created"`
	LinksAdded         int `json:"links_added"`
	LinksRemoved       int `json:"links_removed"`
}

func NewReconciledEvent(catalogVersion, permissionsCreated, rolesCreated, linksAdded, linksRemoved int) *ReconciledEvent {
	return &ReconciledEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeReconciled,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"catalog_version":     catalogVersion,
				"permissions_created": permissionsCreated,
				"roles_created":       rolesCreated,
				"links_added":         linksAdded,
				"links_removed":       linksRemoved,
			},
		},
		CatalogVersion:     catalogVersion,
		PermissionsCreated: permissionsCreated,
		RolesCreated:       rolesCreated,
		LinksAdded:         linksAdded,
		LinksRemoved:       linksRemoved,
	}
}
