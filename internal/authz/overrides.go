package authz

import (
	"context"
	"fmt"
	"log/slog"

	authzDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/authz"
	"github.com/frahmantamala/coursehub/internal/core/events"
	"github.com/frahmantamala/coursehub/internal/observability"
)

const (
	ActionGrant   = "grant"
	ActionBlock   = "block"
	ActionRevoke  = "revoke"
	ActionUnblock = "unblock"
)

// RepositoryAPI is the full store surface of the package.
type RepositoryAPI interface {
	ReaderAPI
	GetPermissionByName(ctx context.Context, name string) (*authzDatamodel.Permission, error)
	ListPermissions(ctx context.Context) ([]*authzDatamodel.Permission, error)
	ListRoles(ctx context.Context) ([]*authzDatamodel.Role, error)
	// UpsertOverride leaves exactly one row of the given kind for the pair and reports whether
	// the stored state changed.
	UpsertOverride(ctx context.Context, userID, permissionID int64, kind string, grantedBy *int64) (bool, error)
	// DeleteOverride removes the pair's row only when it has the given kind.
	DeleteOverride(ctx context.Context, userID, permissionID int64, kind string) (bool, error)
}

// OverrideService is the only writer of per-user grants and blocks.
type OverrideService struct {
	repo      RepositoryAPI
	resolver  *Resolver
	publisher events.Publisher
	metrics   *observability.Metrics
	logger    *slog.Logger
}

func NewOverrideService(repo RepositoryAPI, resolver *Resolver, publisher events.Publisher, metrics *observability.Metrics, logger *slog.Logger) *OverrideService {
	return &OverrideService{
		repo:      repo,
		resolver:  resolver,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// Grant gives userID the permission regardless of role, replacing a block on the same pair.
// Granting twice is a no-op.
func (s *OverrideService) Grant(ctx context.Context, actorID, userID int64, permission string) (bool, error) {
	return s.apply(ctx, ActionGrant, actorID, userID, permission, func(permissionID int64) (bool, error) {
		return s.repo.UpsertOverride(ctx, userID, permissionID, authzDatamodel.OverrideKindGrant, grantedBy(actorID))
	})
}

// Block denies userID the permission regardless of role, replacing a grant on the same pair.
func (s *OverrideService) Block(ctx context.Context, actorID, userID int64, permission string) (bool, error) {
	return s.apply(ctx, ActionBlock, actorID, userID, permission, func(permissionID int64) (bool, error) {
		return s.repo.UpsertOverride(ctx, userID, permissionID, authzDatamodel.OverrideKindBlock, grantedBy(actorID))
	})
}

// Revoke removes a grant. A block on the pair, or no row at all, is left as is.
func (s *OverrideService) Revoke(ctx context.Context, actorID, userID int64, permission string) (bool, error) {
	return s.apply(ctx, ActionRevoke, actorID, userID, permission, func(permissionID int64) (bool, error) {
		return s.repo.DeleteOverride(ctx, userID, permissionID, authzDatamodel.OverrideKindGrant)
	})
}

// Unblock removes a block. A grant on the pair, or no row at all, is left as is.
func (s *OverrideService) Unblock(ctx context.Context, actorID, userID int64, permission string) (bool, error) {
	return s.apply(ctx, ActionUnblock, actorID, userID, permission, func(permissionID int64) (bool, error) {
		return s.repo.DeleteOverride(ctx, userID, permissionID, authzDatamodel.OverrideKindBlock)
	})
}

func (s *OverrideService) OverridesFor(ctx context.Context, userID int64) (Overrides, error) {
	return s.resolver.OverridesFor(ctx, userID)
}

func (s *OverrideService) apply(ctx context.Context, action string, actorID, userID int64, permission string, write func(permissionID int64) (bool, error)) (bool, error) {
	if err := s.resolver.Catalog().Require(permission); err != nil {
		return false, err
	}

	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("load user %d: %w", userID, err)
	}
	if u == nil {
		return false, fmt.Errorf("%w: id %d", ErrUserNotFound, userID)
	}

	perm, err := s.repo.GetPermissionByName(ctx, permission)
	if err != nil {
		return false, fmt.Errorf("load permission %q: %w", permission, err)
	}
	if perm == nil {
		// In the catalog but not yet reconciled into the store.
		return false, fmt.Errorf("%w: %q is not persisted", ErrUnknownPermission, permission)
	}

	changed, err := write(perm.ID)
	if err != nil {
		return false, fmt.Errorf("%s %q for user %d: %w", action, permission, userID, err)
	}
	s.metrics.ObserveOverride(action, changed)

	if !changed {
		return false, nil
	}

	if err := s.resolver.Invalidate(ctx, userID); err != nil {
		s.logger.ErrorContext(ctx, "override stored but cache invalidation failed",
			"action", action,
			"user_id", userID,
			"permission", permission,
			"error", err,
		)
		return true, err
	}

	s.logger.InfoContext(ctx, "permission override changed",
		"action", action,
		"actor_id", actorID,
		"user_id", userID,
		"permission", permission,
	)

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.NewOverrideChangedEvent(actorID, userID, permission, action)); err != nil {
			s.logger.WarnContext(ctx, "failed to publish override event", "error", err)
		}
	}

	return true, nil
}

func grantedBy(actorID int64) *int64 {
	if actorID <= 0 {
		return nil
	}
	return &actorID
}
