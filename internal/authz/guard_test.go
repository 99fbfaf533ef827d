package authz_test

import (
	"context"

	"github.com/frahmantamala/coursehub/internal/authz"
	"github.com/frahmantamala/coursehub/internal/observability"
	"github.com/frahmantamala/coursehub/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("CanModify", func() {
	const (
		own = authz.PermManageOwnComments
		mod = authz.PermModerateAllComments
	)

	actor := func(role string, perms ...string) authz.Actor {
		return authz.Actor{UserID: 1, RoleName: role, Permissions: authz.NewPermissionSet(perms...)}
	}

	DescribeTable("ownership table",
		func(a authz.Actor, owner int64, allowed bool, reason authz.DenialReason) {
			d := authz.CanModify(a, owner, own, mod)
			Expect(d.Allowed).To(Equal(allowed))
			Expect(d.Reason).To(Equal(reason))
		},
		Entry("owner with own permission", actor(authz.RoleStudent, own), int64(1), true, authz.DenialReason("")),
		Entry("non-owner without moderate-all", actor(authz.RoleStudent, own), int64(2), false, authz.ReasonNotOwner),
		Entry("non-owner with moderate-all", actor(authz.RoleModerator, mod), int64(2), true, authz.DenialReason("")),
		Entry("owner without own permission", actor(authz.RoleStudent), int64(1), false, authz.ReasonMissingOwnPermission),
		Entry("owner with moderate-all only", actor(authz.RoleModerator, mod), int64(1), true, authz.DenialReason("")),
		Entry("superadmin without any permission", actor(authz.RoleSuperadmin), int64(2), true, authz.DenialReason("")),
		Entry("non-owner without any permission", actor(authz.RoleStudent), int64(2), false, authz.ReasonNotOwner),
	)

	It("should carry user facing messages for denials", func() {
		Expect(authz.ReasonNotOwner.Message()).To(Equal("only the owner may modify this resource"))
		Expect(authz.ReasonMissingOwnPermission.Message()).To(Equal("lacks permission to manage own resources of this type"))
		Expect(authz.Decision{Allowed: true}.Message()).To(BeEmpty())
	})
})

var _ = Describe("Ownership rules", func() {
	It("should map every resource kind to its permission pair", func() {
		rule, err := authz.RuleFor(authz.ResourceComment)
		Expect(err).NotTo(HaveOccurred())
		Expect(rule).To(Equal(authz.OwnershipRule{Own: authz.PermManageOwnComments, ModerateAll: authz.PermModerateAllComments}))

		rule, err = authz.RuleFor(authz.ResourceRating)
		Expect(err).NotTo(HaveOccurred())
		Expect(rule.ModerateAll).To(Equal(authz.PermModerateAllRatings))

		rule, err = authz.RuleFor(authz.ResourceResource)
		Expect(err).NotTo(HaveOccurred())
		Expect(rule.Own).To(Equal(authz.PermManageOwnResource))
	})

	It("should reject unknown kinds", func() {
		_, err := authz.RuleFor("video")
		Expect(err).To(MatchError(authz.ErrUnknownResourceKind))
	})
})

var _ = Describe("Guard", func() {
	var (
		ctx       context.Context
		catalog   *authz.Catalog
		repo      *MockRepository
		resolver  *authz.Resolver
		guard     *authz.Guard
		overrides *authz.OverrideService
	)

	BeforeEach(func() {
		ctx = context.Background()
		catalog = authz.DefaultCatalog()
		repo = NewMockRepository(catalog, authz.DefaultRegistry(catalog))
		resolver = authz.NewResolver(repo, catalog, logger.Discard())
		metrics := observability.NewMetrics()
		guard = authz.NewGuard(resolver, metrics, logger.Discard())
		overrides = authz.NewOverrideService(repo, resolver, nil, metrics, logger.Discard())
	})

	It("should deny the owner once their own permission is blocked", func() {
		const u1 = int64(1)
		repo.AddUser(u1, authz.RoleStudent)
		c1Owner := u1

		d, err := guard.CanModify(ctx, u1, c1Owner, authz.PermManageOwnComments, authz.PermModerateAllComments)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Allowed).To(BeTrue())

		changed, err := overrides.Block(ctx, 0, u1, authz.PermManageOwnComments)
		Expect(err).NotTo(HaveOccurred())
		Expect(changed).To(BeTrue())

		d, err = guard.CanModify(ctx, u1, c1Owner, authz.PermManageOwnComments, authz.PermModerateAllComments)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Allowed).To(BeFalse())
		Expect(d.Reason).To(Equal(authz.ReasonMissingOwnPermission))
	})

	It("should let a moderator modify someone else's rating", func() {
		repo.AddUser(1, authz.RoleModerator)

		d, err := guard.CanModifyResource(ctx, 1, authz.ResourceRating, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Allowed).To(BeTrue())
	})

	It("should deny a student on someone else's resource", func() {
		repo.AddUser(1, authz.RoleStudent)

		d, err := guard.CanModifyResource(ctx, 1, authz.ResourceResource, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Reason).To(Equal(authz.ReasonNotOwner))
	})

	It("should let superadmin through even with blocks recorded", func() {
		repo.AddUser(1, authz.RoleSuperadmin)
		_, _ = repo.UpsertOverride(ctx, 1, permID(repo, authz.PermModerateAllComments), "block", nil)

		d, err := guard.CanModifyResource(ctx, 1, authz.ResourceComment, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Allowed).To(BeTrue())
	})

	It("should reject permission names outside the catalog", func() {
		repo.AddUser(1, authz.RoleSuperadmin)

		_, err := guard.CanModify(ctx, 1, 1, "fly:planes", authz.PermModerateAllComments)
		Expect(err).To(MatchError(authz.ErrUnknownPermission))
	})

	It("should return an error for unknown users instead of a denial", func() {
		_, err := guard.CanModifyResource(ctx, 42, authz.ResourceComment, 42)
		Expect(err).To(MatchError(authz.ErrUserNotFound))
	})
})
