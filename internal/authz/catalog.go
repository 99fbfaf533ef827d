package authz

import (
	"fmt"

	"github.com/frahmantamala/coursehub/internal/core/common/validation"
)

// CatalogVersion is bumped whenever the declared permission or role graph changes.
const CatalogVersion = 3

// Learner permissions.
const (
	PermViewCourses       = "view:courses"
	PermEnrollCourses     = "enroll:courses"
	PermPurchaseCourses   = "purchase:courses"
	PermTakeQuizzes       = "take:quizzes"
	PermViewOwnDashboard  = "view:own_dashboard"
	PermManageOwnComments = "manage:own_comments"
	PermManageOwnRatings  = "manage:own_ratings"
	PermManageOwnResource = "manage:own_resources"
)

// Authoring permissions.
const (
	PermCreateCourses       = "create:courses"
	PermManageOwnCourses    = "manage:own_courses"
	PermManageOwnQuizzes    = "manage:own_quizzes"
	PermUploadResources     = "upload:resources"
	PermViewCourseAnalytics = "view:course_analytics"
)

// Moderation permissions.
const (
	PermModerateAllComments  = "moderate:all_comments"
	PermModerateAllRatings   = "moderate:all_ratings"
	PermModerateAllResources = "moderate:all_resources"
)

// Management permissions.
const (
	PermManageUsers           = "manage:users"
	PermManageRoles           = "manage:roles"
	PermManageUserPermissions = "manage:user_permissions"
	PermManageAllCourses      = "manage:all_courses"
	PermViewSystemReports     = "view:system_reports"
	PermManageSystemSettings  = "manage:system_settings"
	PermSystemFullAccess      = "system:full_access"
)

// PermissionDefinition is one declared catalog entry.
type PermissionDefinition struct {
	Name        string
	Description string
}

// ValidPermissionName reports whether name is a lowercase verb:object pair such as
// "manage:own_comments". It checks shape only, not catalog membership.
func ValidPermissionName(name string) bool {
	return validation.IsPermissionName(name)
}

// AllPermissions is the versioned, ordered catalog declaration.
func AllPermissions() []PermissionDefinition {
	return []PermissionDefinition{
		{PermViewCourses, "Browse the course catalog"},
		{PermEnrollCourses, "Enroll in free courses"},
		{PermPurchaseCourses, "Purchase paid courses"},
		{PermTakeQuizzes, "Attempt course quizzes"},
		{PermViewOwnDashboard, "View the personal learning dashboard"},
		{PermManageOwnComments, "Edit and delete own comments"},
		{PermManageOwnRatings, "Create and delete own ratings"},
		{PermManageOwnResource, "Edit and delete own uploaded resources"},

		{PermCreateCourses, "Create new courses"},
		{PermManageOwnCourses, "Edit and publish own courses"},
		{PermManageOwnQuizzes, "Author quizzes on own courses"},
		{PermUploadResources, "Upload resources to courses"},
		{PermViewCourseAnalytics, "View analytics for own courses"},

		{PermModerateAllComments, "Edit or delete any comment"},
		{PermModerateAllRatings, "Delete any rating"},
		{PermModerateAllResources, "Edit or delete any uploaded resource"},

		{PermManageUsers, "Create, deactivate and edit users"},
		{PermManageRoles, "Assign roles to users"},
		{PermManageUserPermissions, "Grant and block individual permissions"},
		{PermManageAllCourses, "Edit or unpublish any course"},
		{PermViewSystemReports, "View platform wide reports"},
		{PermManageSystemSettings, "Change platform settings"},
		{PermSystemFullAccess, "Irrevocable full access"},
	}
}

// Catalog is the validated, immutable set of permissions the system understands.
type Catalog struct {
	defs  []PermissionDefinition
	index map[string]int
}

// NewCatalog validates defs. Duplicate or malformed names are an invariant violation.
func NewCatalog(defs []PermissionDefinition) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]PermissionDefinition, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for _, d := range defs {
		if !ValidPermissionName(d.Name) {
			return nil, fmt.Errorf("%w: malformed permission name %q", ErrInvariantViolation, d.Name)
		}
		if _, dup := c.index[d.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate permission name %q", ErrInvariantViolation, d.Name)
		}
		c.index[d.Name] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// DefaultCatalog builds the catalog from AllPermissions.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(AllPermissions())
	if err != nil {
		panic(err)
	}
	return c
}

// All returns the definitions in declaration order.
func (c *Catalog) All() []PermissionDefinition {
	out := make([]PermissionDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Contains reports whether name is declared, matching exactly.
func (c *Catalog) Contains(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Names returns the permission names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.defs))
	for i, d := range c.defs {
		names[i] = d.Name
	}
	return names
}

// Set returns the whole catalog as a PermissionSet.
func (c *Catalog) Set() PermissionSet {
	return NewPermissionSet(c.Names()...)
}

// Require returns ErrUnknownPermission for every name outside the catalog.
func (c *Catalog) Require(names ...string) error {
	for _, n := range names {
		if !c.Contains(n) {
			return fmt.Errorf("%w: %q", ErrUnknownPermission, n)
		}
	}
	return nil
}
