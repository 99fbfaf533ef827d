package authz_test

import (
	"github.com/frahmantamala/coursehub/internal/authz"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Permission Catalog", func() {
	It("should build the default catalog without duplicates", func() {
		catalog := authz.DefaultCatalog()
		names := catalog.Names()

		Expect(names).To(HaveLen(len(authz.AllPermissions())))
		Expect(catalog.Set()).To(HaveLen(len(names)))
		Expect(catalog.Contains(authz.PermManageOwnResource)).To(BeTrue())
		Expect(catalog.Contains(authz.PermModerateAllComments)).To(BeTrue())
	})

	It("should keep declaration order", func() {
		catalog := authz.DefaultCatalog()
		Expect(catalog.Names()[0]).To(Equal(authz.AllPermissions()[0].Name))
	})

	It("should reject duplicate names as an invariant violation", func() {
		_, err := authz.NewCatalog([]authz.PermissionDefinition{
			{Name: "view:courses", Description: "a"},
			{Name: "view:courses", Description: "b"},
		})
		Expect(err).To(MatchError(authz.ErrInvariantViolation))
	})

	DescribeTable("permission name format",
		func(name string, valid bool) {
			Expect(authz.ValidPermissionName(name)).To(Equal(valid))
		},
		Entry("namespaced", "moderate:all_ratings", true),
		Entry("no namespace", "moderate", false),
		Entry("upper case", "Moderate:all", false),
		Entry("empty scope", "view:", false),
		Entry("spaces", "view: courses", false),
	)

	It("should reject malformed names", func() {
		_, err := authz.NewCatalog([]authz.PermissionDefinition{{Name: "Bad Name"}})
		Expect(err).To(MatchError(authz.ErrInvariantViolation))
	})

	It("should report unknown names on Require", func() {
		catalog := authz.DefaultCatalog()
		Expect(catalog.Require(authz.PermViewCourses, authz.PermTakeQuizzes)).To(Succeed())
		Expect(catalog.Require(authz.PermViewCourses, "fly:planes")).To(MatchError(authz.ErrUnknownPermission))
	})

	It("should return a copy from All", func() {
		catalog := authz.DefaultCatalog()
		all := catalog.All()
		all[0].Name = "changed:name"
		Expect(catalog.Names()[0]).NotTo(Equal("changed:name"))
	})
})

var _ = Describe("Role Registry", func() {
	var (
		catalog  *authz.Catalog
		registry *authz.Registry
	)

	BeforeEach(func() {
		catalog = authz.DefaultCatalog()
		registry = authz.DefaultRegistry(catalog)
	})

	It("should declare the five roles", func() {
		var names []string
		for _, r := range registry.All() {
			names = append(names, r.Name)
		}
		Expect(names).To(Equal([]string{
			authz.RoleStudent, authz.RoleInstructor, authz.RoleModerator, authz.RoleAdmin, authz.RoleSuperadmin,
		}))
	})

	It("should build strictly increasing permission sets", func() {
		student, _ := registry.Permissions(authz.RoleStudent)
		instructor, _ := registry.Permissions(authz.RoleInstructor)
		moderator, _ := registry.Permissions(authz.RoleModerator)
		admin, _ := registry.Permissions(authz.RoleAdmin)
		superadmin, _ := registry.Permissions(authz.RoleSuperadmin)

		Expect(student.Difference(instructor)).To(BeEmpty())
		Expect(instructor.Difference(student)).NotTo(BeEmpty())
		Expect(student.Difference(moderator)).To(BeEmpty())
		Expect(moderator.Difference(admin)).To(BeEmpty())
		Expect(admin.Difference(superadmin)).To(BeEmpty())
		Expect(superadmin.Equal(catalog.Set())).To(BeTrue())

		Expect(student.Has(authz.PermManageOwnComments)).To(BeTrue())
		Expect(moderator.Has(authz.PermModerateAllComments)).To(BeTrue())
		Expect(admin.Has(authz.PermManageUserPermissions)).To(BeTrue())
		Expect(admin.Has(authz.PermSystemFullAccess)).To(BeFalse())
	})

	It("should look roles up by exact name", func() {
		_, err := registry.Lookup(authz.RoleSuperadmin)
		Expect(err).NotTo(HaveOccurred())

		_, err = registry.Lookup("SuperAdmin")
		Expect(err).To(MatchError(authz.ErrUnknownRole))
		Expect(authz.IsSuperadmin("SuperAdmin")).To(BeFalse())
		Expect(authz.IsSuperadmin(authz.RoleSuperadmin)).To(BeTrue())
	})

	It("should reject roles referencing permissions outside the catalog", func() {
		_, err := authz.NewRegistry(catalog, []authz.RoleDefinition{
			{Name: authz.RoleSuperadmin},
			{Name: "ghost", Permissions: []string{"fly:planes"}},
		})
		Expect(err).To(MatchError(authz.ErrUnknownPermission))
	})

	It("should reject duplicate role names", func() {
		_, err := authz.NewRegistry(catalog, []authz.RoleDefinition{
			{Name: authz.RoleSuperadmin},
			{Name: authz.RoleSuperadmin},
		})
		Expect(err).To(MatchError(authz.ErrInvariantViolation))
	})

	It("should require a superadmin role", func() {
		_, err := authz.NewRegistry(catalog, []authz.RoleDefinition{{Name: authz.RoleStudent}})
		Expect(err).To(MatchError(authz.ErrUnknownRole))
	})
})

var _ = Describe("PermissionSet", func() {
	It("should combine sets without mutating the operands", func() {
		a := authz.NewPermissionSet("a:x", "a:y")
		b := authz.NewPermissionSet("a:y", "a:z")

		Expect(a.Union(b).Names()).To(Equal([]string{"a:x", "a:y", "a:z"}))
		Expect(a.Difference(b).Names()).To(Equal([]string{"a:x"}))
		Expect(a.Names()).To(Equal([]string{"a:x", "a:y"}))
		Expect(a.HasAny("a:q", "a:y")).To(BeTrue())
		Expect(a.HasAny()).To(BeFalse())
		Expect(a.Equal(authz.NewPermissionSet("a:y", "a:x"))).To(BeTrue())
	})
})
