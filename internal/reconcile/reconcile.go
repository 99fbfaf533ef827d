package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/frahmantamala/coursehub/internal/authz"
	authzDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/authz"
	userDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/user"
	"github.com/frahmantamala/coursehub/internal/core/events"
	"github.com/frahmantamala/coursehub/internal/observability"
	"github.com/google/uuid"
)

const (
	StepPermissions     = "permissions"
	StepRoles           = "roles"
	StepRolePermissions = "role_permissions"
	StepBootstrap       = "bootstrap"
)

// ErrNoSuperadmin fails the bootstrap step when the configured account exists under another role
// and nobody else holds superadmin.
var ErrNoSuperadmin = errors.New("no user holds the superadmin role")

// TxStore is the store surface used inside the reconciliation transaction.
type TxStore interface {
	ListPermissions(ctx context.Context) ([]*authzDatamodel.Permission, error)
	CreatePermission(ctx context.Context, perm *authzDatamodel.Permission) error
	UpdatePermissionDescription(ctx context.Context, id int64, description string) error

	ListRoles(ctx context.Context) ([]*authzDatamodel.Role, error)
	CreateRole(ctx context.Context, role *authzDatamodel.Role) error
	UpdateRoleDescription(ctx context.Context, id int64, description string) error

	RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error)
	AddRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
	RemoveRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	GetUserByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	CreateUser(ctx context.Context, u *userDatamodel.User) error
	CountUsersWithRole(ctx context.Context, roleID int64) (int64, error)
}

// Store runs fn in one transaction; an error from fn rolls everything back.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
}

// PasswordHasher turns the bootstrap credential into stored hash material.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Cache is the part of the resolver reconciliation needs after commit.
type Cache interface {
	InvalidateAll(ctx context.Context) error
}

// Bootstrap identifies the superadmin account ensured on every run.
type Bootstrap struct {
	Email    string
	Name     string
	Password string
}

// StepError names the reconciliation step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("reconcile %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func stepErr(step string, err error) error {
	if err == nil {
		return nil
	}
	var se *StepError
	if errors.As(err, &se) {
		return err
	}
	return &StepError{Step: step, Err: err}
}

type Result struct {
	CatalogVersion     int
	PermissionsCreated int
	PermissionsUpdated int
	RolesCreated       int
	RolesUpdated       int
	LinksAdded         int
	LinksRemoved       int
	BootstrapCreated   bool
	BootstrapEmail     string
	// GeneratedPassword is set only when the bootstrap account was created without a
	// configured password. It is not stored anywhere else.
	GeneratedPassword string
	Duration          time.Duration
}

// Changed reports whether the run wrote anything.
func (r *Result) Changed() bool {
	return r.PermissionsCreated+r.PermissionsUpdated+r.RolesCreated+r.RolesUpdated+r.LinksAdded+r.LinksRemoved > 0 ||
		r.BootstrapCreated
}

// Service syncs the in-code catalog and role registry into the store. Two runs must never overlap;
// the deployment runs it from a single process before serving.
type Service struct {
	store     Store
	catalog   *authz.Catalog
	registry  *authz.Registry
	hasher    PasswordHasher
	bootstrap Bootstrap
	cache     Cache
	publisher events.Publisher
	metrics   *observability.Metrics
	logger    *slog.Logger
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(store Store, catalog *authz.Catalog, registry *authz.Registry, hasher PasswordHasher, bootstrap Bootstrap, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:     store,
		catalog:   catalog,
		registry:  registry,
		hasher:    hasher,
		bootstrap: bootstrap,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run applies the declarations. Any failure rolls back the whole run and is returned as a *StepError.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{CatalogVersion: authz.CatalogVersion, BootstrapEmail: s.bootstrap.Email}

	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		permIDs, err := s.syncPermissions(ctx, tx, result)
		if err != nil {
			return stepErr(StepPermissions, err)
		}
		roleIDs, err := s.syncRoles(ctx, tx, result)
		if err != nil {
			return stepErr(StepRoles, err)
		}
		if err := s.syncLinks(ctx, tx, permIDs, roleIDs, result); err != nil {
			return stepErr(StepRolePermissions, err)
		}
		if err := s.ensureBootstrap(ctx, tx, roleIDs[authz.RoleSuperadmin], result); err != nil {
			return stepErr(StepBootstrap, err)
		}
		return nil
	})
	result.Duration = time.Since(start)
	s.metrics.ObserveReconcile(err, result.Duration, result.LinksAdded, result.LinksRemoved)

	if err != nil {
		s.logger.ErrorContext(ctx, "reconciliation failed", "error", err)
		return nil, stepErr("transaction", err)
	}

	if s.cache != nil {
		if err := s.cache.InvalidateAll(ctx); err != nil {
			return result, stepErr("cache", err)
		}
	}

	s.logger.InfoContext(ctx, "reconciliation finished",
		"catalog_version", result.CatalogVersion,
		"permissions_created", result.PermissionsCreated,
		"permissions_updated", result.PermissionsUpdated,
		"roles_created", result.RolesCreated,
		"roles_updated", result.RolesUpdated,
		"links_added", result.LinksAdded,
		"links_removed", result.LinksRemoved,
		"bootstrap_created", result.BootstrapCreated,
		"duration", result.Duration,
	)

	if s.publisher != nil && result.Changed() {
		evt := events.NewReconciledEvent(result.CatalogVersion, result.PermissionsCreated, result.RolesCreated, result.LinksAdded, result.LinksRemoved)
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.WarnContext(ctx, "failed to publish reconciliation event", "error", err)
		}
	}

	return result, nil
}

// syncPermissions creates missing permissions and corrects descriptions. Permissions no longer
// declared are kept.
func (s *Service) syncPermissions(ctx context.Context, tx TxStore, result *Result) (map[string]int64, error) {
	existing, err := tx.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*authzDatamodel.Permission, len(existing))
	for _, p := range existing {
		byName[p.Name] = p
	}

	ids := make(map[string]int64, len(existing))
	for _, def := range s.catalog.All() {
		current, ok := byName[def.Name]
		if !ok {
			perm := &authzDatamodel.Permission{Name: def.Name, Description: def.Description}
			if err := tx.CreatePermission(ctx, perm); err != nil {
				return nil, fmt.Errorf("create permission %q: %w", def.Name, err)
			}
			ids[def.Name] = perm.ID
			result.PermissionsCreated++
			continue
		}
		if current.Description != def.Description {
			if err := tx.UpdatePermissionDescription(ctx, current.ID, def.Description); err != nil {
				return nil, fmt.Errorf("update permission %q: %w", def.Name, err)
			}
			result.PermissionsUpdated++
		}
		ids[def.Name] = current.ID
	}
	return ids, nil
}

func (s *Service) syncRoles(ctx context.Context, tx TxStore, result *Result) (map[string]int64, error) {
	existing, err := tx.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*authzDatamodel.Role, len(existing))
	for _, r := range existing {
		byName[r.Name] = r
	}

	ids := make(map[string]int64, len(existing))
	for _, def := range s.registry.All() {
		current, ok := byName[def.Name]
		if !ok {
			role := &authzDatamodel.Role{Name: def.Name, Description: def.Description}
			if err := tx.CreateRole(ctx, role); err != nil {
				return nil, fmt.Errorf("create role %q: %w", def.Name, err)
			}
			ids[def.Name] = role.ID
			result.RolesCreated++
			continue
		}
		if current.Description != def.Description {
			if err := tx.UpdateRoleDescription(ctx, current.ID, def.Description); err != nil {
				return nil, fmt.Errorf("update role %q: %w", def.Name, err)
			}
			result.RolesUpdated++
		}
		ids[def.Name] = current.ID
	}
	return ids, nil
}

// syncLinks makes each declared role's links equal to its declaration. Missing links are inserted
// before extra ones are removed so a role never passes through an empty set.
func (s *Service) syncLinks(ctx context.Context, tx TxStore, permIDs, roleIDs map[string]int64, result *Result) error {
	for _, def := range s.registry.All() {
		roleID := roleIDs[def.Name]

		desired := make(map[int64]struct{}, len(def.Permissions))
		for _, name := range def.Permissions {
			id, ok := permIDs[name]
			if !ok {
				return fmt.Errorf("role %q: %w: %q", def.Name, authz.ErrUnknownPermission, name)
			}
			desired[id] = struct{}{}
		}

		currentIDs, err := tx.RolePermissionIDs(ctx, roleID)
		if err != nil {
			return fmt.Errorf("load links of role %q: %w", def.Name, err)
		}
		current := make(map[int64]struct{}, len(currentIDs))
		for _, id := range currentIDs {
			current[id] = struct{}{}
		}

		missing := diff(desired, current)
		extra := diff(current, desired)

		if len(missing) > 0 {
			if err := tx.AddRolePermissions(ctx, roleID, missing); err != nil {
				return fmt.Errorf("link role %q: %w", def.Name, err)
			}
		}
		if len(extra) > 0 {
			if err := tx.RemoveRolePermissions(ctx, roleID, extra); err != nil {
				return fmt.Errorf("unlink role %q: %w", def.Name, err)
			}
		}
		result.LinksAdded += len(missing)
		result.LinksRemoved += len(extra)
	}
	return nil
}

func (s *Service) ensureBootstrap(ctx context.Context, tx TxStore, superadminRoleID int64, result *Result) error {
	if superadminRoleID == 0 {
		return fmt.Errorf("%w: %q", authz.ErrUnknownRole, authz.RoleSuperadmin)
	}
	email := strings.TrimSpace(strings.ToLower(s.bootstrap.Email))
	if email == "" {
		return errors.New("bootstrap email is not configured")
	}

	existing, err := tx.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("look up bootstrap account: %w", err)
	}
	if existing != nil {
		if existing.RoleID == superadminRoleID {
			return nil
		}
		holders, err := tx.CountUsersWithRole(ctx, superadminRoleID)
		if err != nil {
			return fmt.Errorf("count superadmins: %w", err)
		}
		if holders == 0 {
			return fmt.Errorf("%w: bootstrap account %s exists without the superadmin role", ErrNoSuperadmin, email)
		}
		s.logger.WarnContext(ctx, "bootstrap account exists without the superadmin role, leaving it unchanged",
			"email", email,
			"role_id", existing.RoleID,
			"superadmins", holders,
		)
		return nil
	}

	password := s.bootstrap.Password
	generated := password == ""
	if generated {
		password = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash bootstrap credential: %w", err)
	}

	name := s.bootstrap.Name
	if name == "" {
		name = "Superadmin"
	}
	u := &userDatamodel.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		RoleID:       superadminRoleID,
		IsActive:     true,
	}
	if err := tx.CreateUser(ctx, u); err != nil {
		return fmt.Errorf("create bootstrap account: %w", err)
	}

	result.BootstrapCreated = true
	if generated {
		result.GeneratedPassword = password
	}
	return nil
}

// diff returns the members of a missing from b, sorted for deterministic writes.
func diff(a, b map[int64]struct{}) []int64 {
	var out []int64
	for id := range a {
		if _, ok := b[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
