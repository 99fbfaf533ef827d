package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/frahmantamala/coursehub/internal/authz"
	authzDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/authz"
	userDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/user"
	"github.com/frahmantamala/coursehub/internal/core/events"
)

// RepositoryAPI returns (nil, nil) for missing rows.
type RepositoryAPI interface {
	GetByID(ctx context.Context, userID int64) (*userDatamodel.User, error)
	GetRoleByID(ctx context.Context, roleID int64) (*authzDatamodel.Role, error)
	GetRoleByName(ctx context.Context, name string) (*authzDatamodel.Role, error)
	UpdateRole(ctx context.Context, userID, roleID int64) error
}

// PermissionResolver is the slice of *authz.Resolver the service needs.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID int64) (*authz.Resolution, error)
	Invalidate(ctx context.Context, userID int64) error
}

type Service struct {
	repo      RepositoryAPI
	resolver  PermissionResolver
	registry  *authz.Registry
	publisher events.Publisher
	logger    *slog.Logger
}

func NewService(repo RepositoryAPI, resolver PermissionResolver, registry *authz.Registry, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		resolver:  resolver,
		registry:  registry,
		publisher: publisher,
		logger:    logger,
	}
}

// GetByID returns the user with their effective permissions.
func (s *Service) GetByID(ctx context.Context, userID int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: id %d", authz.ErrUserNotFound, userID)
	}

	res, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve permissions: %w", err)
	}

	out := FromDataModel(u)
	out.RoleName = res.RoleName
	out.Permissions = res.Permissions.Names()
	return out, nil
}

// AssignRole moves a user to another declared role. Overrides are kept as they are; blocks on
// permissions the new role lacks simply have no effect. Only a superadmin may move a user into
// or out of the superadmin role.
func (s *Service) AssignRole(ctx context.Context, actorID, userID int64, roleName string) (*User, error) {
	if _, err := s.registry.Lookup(roleName); err != nil {
		return nil, err
	}

	role, err := s.repo.GetRoleByName(ctx, roleName)
	if err != nil {
		return nil, fmt.Errorf("failed to load role: %w", err)
	}
	if role == nil {
		return nil, fmt.Errorf("%w: %q is not persisted", authz.ErrUnknownRole, roleName)
	}

	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: id %d", authz.ErrUserNotFound, userID)
	}

	fromRole := ""
	prev, err := s.repo.GetRoleByID(ctx, u.RoleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current role: %w", err)
	}
	if prev != nil {
		fromRole = prev.Name
	}

	if err := s.checkSuperadminChange(ctx, actorID, fromRole, roleName); err != nil {
		return nil, err
	}

	if u.RoleID == role.ID {
		return s.GetByID(ctx, userID)
	}

	if err := s.repo.UpdateRole(ctx, userID, role.ID); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	if err := s.resolver.Invalidate(ctx, userID); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "role assigned",
		"actor_id", actorID,
		"user_id", userID,
		"from_role", fromRole,
		"to_role", roleName,
	)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.NewRoleAssignedEvent(actorID, userID, fromRole, roleName)); err != nil {
			s.logger.WarnContext(ctx, "failed to publish role event", "error", err)
		}
	}

	return s.GetByID(ctx, userID)
}

func (s *Service) checkSuperadminChange(ctx context.Context, actorID int64, fromRole, toRole string) error {
	if !authz.IsSuperadmin(fromRole) && !authz.IsSuperadmin(toRole) {
		return nil
	}

	actor, err := s.resolver.Resolve(ctx, actorID)
	if err != nil {
		return fmt.Errorf("failed to resolve actor: %w", err)
	}
	if actor.IsSuperadmin() {
		return nil
	}

	s.logger.WarnContext(ctx, "superadmin role change denied",
		"actor_id", actorID,
		"actor_role", actor.RoleName,
		"from_role", fromRole,
		"to_role", toRole,
	)
	return fmt.Errorf("%w: only a superadmin may assign or revoke %q", authz.ErrPermissionDenied, authz.RoleSuperadmin)
}
