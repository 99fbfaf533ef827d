package authz

import "fmt"

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleModerator  = "moderator"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

// IsSuperadmin is the single place the superadmin bypass is decided. Comparison is exact.
func IsSuperadmin(roleName string) bool {
	return roleName == RoleSuperadmin
}

// RoleDefinition declares a role and its baseline permissions.
type RoleDefinition struct {
	Name        string
	Description string
	Permissions []string
}

func learnerPermissions() []string {
	return []string{
		PermViewCourses,
		PermEnrollCourses,
		PermPurchaseCourses,
		PermTakeQuizzes,
		PermViewOwnDashboard,
		PermManageOwnComments,
		PermManageOwnRatings,
		PermManageOwnResource,
	}
}

func authoringPermissions() []string {
	return []string{
		PermCreateCourses,
		PermManageOwnCourses,
		PermManageOwnQuizzes,
		PermUploadResources,
		PermViewCourseAnalytics,
	}
}

func moderationPermissions() []string {
	return []string{
		PermModerateAllComments,
		PermModerateAllRatings,
		PermModerateAllResources,
	}
}

func managementPermissions() []string {
	return []string{
		PermManageUsers,
		PermManageRoles,
		PermManageUserPermissions,
		PermManageAllCourses,
		PermViewSystemReports,
		PermManageSystemSettings,
	}
}

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// AllRoles is the in-code role declaration reconciled into the store at startup.
func AllRoles() []RoleDefinition {
	student := learnerPermissions()
	instructor := concat(student, authoringPermissions())
	moderator := concat(student, moderationPermissions())
	admin := concat(moderator, managementPermissions())

	superadmin := make([]string, 0, len(AllPermissions()))
	for _, p := range AllPermissions() {
		superadmin = append(superadmin, p.Name)
	}

	return []RoleDefinition{
		{RoleStudent, "Learner enrolled in courses", student},
		{RoleInstructor, "Learner who also authors courses", instructor},
		{RoleModerator, "Learner who moderates community content", moderator},
		{RoleAdmin, "Moderator who also manages users, roles and the system", admin},
		{RoleSuperadmin, "Irrevocable full access", superadmin},
	}
}

// Registry is the validated role declaration.
type Registry struct {
	roles []RoleDefinition
	index map[string]int
}

// NewRegistry checks every role against the catalog.
func NewRegistry(catalog *Catalog, defs []RoleDefinition) (*Registry, error) {
	r := &Registry{
		roles: make([]RoleDefinition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: empty role name", ErrInvariantViolation)
		}
		if _, dup := r.index[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate role name %q", ErrInvariantViolation, d.Name)
		}
		if err := catalog.Require(d.Permissions...); err != nil {
			return nil, fmt.Errorf("role %q: %w", d.Name, err)
		}
		r.index[d.Name] = len(r.roles)
		r.roles = append(r.roles, d)
	}
	if _, ok := r.index[RoleSuperadmin]; !ok {
		return nil, fmt.Errorf("%w: %q is not declared", ErrUnknownRole, RoleSuperadmin)
	}
	return r, nil
}

// DefaultRegistry validates AllRoles against the given catalog.
func DefaultRegistry(catalog *Catalog) *Registry {
	r, err := NewRegistry(catalog, AllRoles())
	if err != nil {
		panic(err)
	}
	return r
}

// All returns the role definitions in declaration order.
func (r *Registry) All() []RoleDefinition {
	out := make([]RoleDefinition, len(r.roles))
	copy(out, r.roles)
	return out
}

// Lookup finds a declared role by exact name.
func (r *Registry) Lookup(name string) (RoleDefinition, error) {
	i, ok := r.index[name]
	if !ok {
		return RoleDefinition{}, fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
	return r.roles[i], nil
}

// Permissions returns the declared baseline of a role as a set.
func (r *Registry) Permissions(name string) (PermissionSet, error) {
	def, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return NewPermissionSet(def.Permissions...), nil
}
