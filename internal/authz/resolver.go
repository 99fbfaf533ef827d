package authz

import (
	"context"
	"fmt"
	"log/slog"

	authzDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/authz"
	userDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/user"
	"github.com/frahmantamala/coursehub/internal/observability"
	"golang.org/x/sync/singleflight"
)

// ReaderAPI is the read side of the store the resolver depends on.
// Lookups return (nil, nil) when the row does not exist.
type ReaderAPI interface {
	GetUser(ctx context.Context, userID int64) (*userDatamodel.User, error)
	GetRoleByID(ctx context.Context, roleID int64) (*authzDatamodel.Role, error)
	GetRoleByName(ctx context.Context, name string) (*authzDatamodel.Role, error)
	RolePermissionNames(ctx context.Context, roleID int64) ([]string, error)
	ListOverrides(ctx context.Context, userID int64) ([]authzDatamodel.OverrideView, error)
}

// CacheEntry is what a PermissionCache stores per user.
type CacheEntry struct {
	RoleName    string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// PermissionCache stores resolutions under a stamp. Invalidate must change the stamp a later
// Stamp call returns, so entries written under an older stamp are never read again.
type PermissionCache interface {
	Stamp(ctx context.Context, userID int64) (string, error)
	Get(ctx context.Context, userID int64, stamp string) (*CacheEntry, bool, error)
	Set(ctx context.Context, userID int64, stamp string, entry CacheEntry) error
	Invalidate(ctx context.Context, userID int64) error
	InvalidateAll(ctx context.Context) error
}

// Effective combines a role baseline with per-user overrides. The superadmin role always gets the
// whole catalog; blocks do not apply to it.
func Effective(roleName string, rolePermissions PermissionSet, overrides Overrides, catalog *Catalog) PermissionSet {
	if IsSuperadmin(roleName) {
		return catalog.Set()
	}
	return rolePermissions.Union(overrides.Grants).Difference(overrides.Blocks)
}

type Resolver struct {
	repo    ReaderAPI
	catalog *Catalog
	cache   PermissionCache
	metrics *observability.Metrics
	logger  *slog.Logger
	flight  singleflight.Group
}

type ResolverOption func(*Resolver)

func WithCache(c PermissionCache) ResolverOption {
	return func(r *Resolver) { r.cache = c }
}

func WithMetrics(m *observability.Metrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

func NewResolver(repo ReaderAPI, catalog *Catalog, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		repo:    repo,
		catalog: catalog,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve returns the effective permission set of a user.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (*Resolution, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: id %d", ErrUserNotFound, userID)
	}
	if r.cache == nil {
		return r.load(ctx, userID)
	}

	stamp, err := r.cache.Stamp(ctx, userID)
	if err != nil {
		r.logger.WarnContext(ctx, "permission cache unavailable, reading store", "user_id", userID, "error", err)
		r.metrics.ObserveResolve(observability.CacheError)
		return r.load(ctx, userID)
	}

	entry, ok, err := r.cache.Get(ctx, userID, stamp)
	switch {
	case err != nil:
		r.logger.WarnContext(ctx, "permission cache read failed", "user_id", userID, "error", err)
		r.metrics.ObserveResolve(observability.CacheError)
	case ok:
		r.metrics.ObserveResolve(observability.CacheHit)
		return &Resolution{UserID: userID, RoleName: entry.RoleName, Permissions: NewPermissionSet(entry.Permissions...)}, nil
	default:
		r.metrics.ObserveResolve(observability.CacheMiss)
	}

	key := fmt.Sprintf("%d/%s", userID, stamp)
	// The load is shared with every caller waiting on key, so it must outlive this caller's cancellation.
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := r.flight.Do(key, func() (interface{}, error) {
		res, err := r.load(loadCtx, userID)
		if err != nil {
			return nil, err
		}
		entry := CacheEntry{RoleName: res.RoleName, Permissions: res.Permissions.Names()}
		if err := r.cache.Set(loadCtx, userID, stamp, entry); err != nil {
			r.logger.WarnContext(loadCtx, "permission cache write failed", "user_id", userID, "error", err)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	shared := v.(*Resolution)
	return &Resolution{
		UserID:      shared.UserID,
		RoleName:    shared.RoleName,
		Permissions: shared.Permissions.Union(nil),
	}, nil
}

func (r *Resolver) load(ctx context.Context, userID int64) (*Resolution, error) {
	u, err := r.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	if u == nil {
		return nil, fmt.Errorf("%w: id %d", ErrUserNotFound, userID)
	}

	role, err := r.repo.GetRoleByID(ctx, u.RoleID)
	if err != nil {
		return nil, fmt.Errorf("load role %d: %w", u.RoleID, err)
	}
	if role == nil {
		return nil, fmt.Errorf("%w: role id %d of user %d", ErrUnknownRole, u.RoleID, userID)
	}

	if IsSuperadmin(role.Name) {
		return &Resolution{UserID: userID, RoleName: role.Name, Permissions: r.catalog.Set()}, nil
	}

	names, err := r.repo.RolePermissionNames(ctx, role.ID)
	if err != nil {
		return nil, fmt.Errorf("load permissions of role %q: %w", role.Name, err)
	}

	overrides, err := loadOverrides(ctx, r.repo, userID)
	if err != nil {
		return nil, err
	}

	return &Resolution{
		UserID:      userID,
		RoleName:    role.Name,
		Permissions: Effective(role.Name, NewPermissionSet(names...), overrides, r.catalog),
	}, nil
}

// OverridesFor returns the grants and blocks recorded for a user.
func (r *Resolver) OverridesFor(ctx context.Context, userID int64) (Overrides, error) {
	u, err := r.repo.GetUser(ctx, userID)
	if err != nil {
		return Overrides{}, fmt.Errorf("load user %d: %w", userID, err)
	}
	if u == nil {
		return Overrides{}, fmt.Errorf("%w: id %d", ErrUserNotFound, userID)
	}
	return loadOverrides(ctx, r.repo, userID)
}

func loadOverrides(ctx context.Context, repo ReaderAPI, userID int64) (Overrides, error) {
	rows, err := repo.ListOverrides(ctx, userID)
	if err != nil {
		return Overrides{}, fmt.Errorf("load overrides of user %d: %w", userID, err)
	}
	ov := Overrides{Grants: PermissionSet{}, Blocks: PermissionSet{}}
	for _, row := range rows {
		switch row.Kind {
		case authzDatamodel.OverrideKindGrant:
			ov.Grants[row.PermissionName] = struct{}{}
		case authzDatamodel.OverrideKindBlock:
			ov.Blocks[row.PermissionName] = struct{}{}
		}
	}
	return ov, nil
}

// HasPermission reports whether name is in the user's effective set.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, name string) (bool, error) {
	if err := r.catalog.Require(name); err != nil {
		return false, err
	}
	res, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return res.Has(name), nil
}

// HasAnyPermission is a logical OR over HasPermission.
func (r *Resolver) HasAnyPermission(ctx context.Context, userID int64, names []string) (bool, error) {
	if err := r.catalog.Require(names...); err != nil {
		return false, err
	}
	res, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return res.Permissions.HasAny(names...), nil
}

// Invalidate drops the cached resolution of one user. Writers call it after their change commits.
func (r *Resolver) Invalidate(ctx context.Context, userID int64) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("invalidate cached permissions of user %d: %w", userID, err)
	}
	return nil
}

// InvalidateAll drops every cached resolution, used after role links change.
func (r *Resolver) InvalidateAll(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	if err := r.cache.InvalidateAll(ctx); err != nil {
		return fmt.Errorf("invalidate permission cache: %w", err)
	}
	return nil
}
