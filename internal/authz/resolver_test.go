package authz_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/frahmantamala/coursehub/internal/authz"
	"github.com/frahmantamala/coursehub/internal/authz/cache"
	userDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/user"
	"github.com/frahmantamala/coursehub/internal/observability"
	"github.com/frahmantamala/coursehub/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// brokenCache fails every call, to check the resolver falls back to the store.
type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) Stamp(context.Context, int64) (string, error) { return "", errCacheDown }
func (brokenCache) Get(context.Context, int64, string) (*authz.CacheEntry, bool, error) {
	return nil, false, errCacheDown
}
func (brokenCache) Set(context.Context, int64, string, authz.CacheEntry) error { return errCacheDown }
func (brokenCache) Invalidate(context.Context, int64) error                    { return errCacheDown }
func (brokenCache) InvalidateAll(context.Context) error                        { return errCacheDown }

// gatedRepository holds GetUser until released and then honours the caller's context.
type gatedRepository struct {
	*MockRepository
	entered     chan struct{}
	release     chan struct{}
	enteredOnce sync.Once
}

func (g *gatedRepository) GetUser(ctx context.Context, userID int64) (*userDatamodel.User, error) {
	g.enteredOnce.Do(func() { close(g.entered) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.MockRepository.GetUser(ctx, userID)
}

var _ = Describe("Effective", func() {
	var catalog *authz.Catalog

	BeforeEach(func() {
		catalog = authz.DefaultCatalog()
	})

	It("should return role permissions plus grants minus blocks", func() {
		role := authz.NewPermissionSet(authz.PermViewCourses, authz.PermManageOwnComments)
		overrides := authz.Overrides{
			Grants: authz.NewPermissionSet(authz.PermCreateCourses),
			Blocks: authz.NewPermissionSet(authz.PermManageOwnComments),
		}

		got := authz.Effective(authz.RoleStudent, role, overrides, catalog)
		Expect(got.Names()).To(ConsistOf(authz.PermViewCourses, authz.PermCreateCourses))
	})

	It("should let a block win over a grant of the same permission", func() {
		overrides := authz.Overrides{
			Grants: authz.NewPermissionSet(authz.PermCreateCourses),
			Blocks: authz.NewPermissionSet(authz.PermCreateCourses),
		}
		got := authz.Effective(authz.RoleStudent, authz.PermissionSet{}, overrides, catalog)
		Expect(got.Has(authz.PermCreateCourses)).To(BeFalse())
	})

	It("should give superadmin the whole catalog regardless of blocks", func() {
		overrides := authz.Overrides{Blocks: catalog.Set()}
		got := authz.Effective(authz.RoleSuperadmin, authz.PermissionSet{}, overrides, catalog)
		Expect(got.Equal(catalog.Set())).To(BeTrue())
	})
})

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		catalog  *authz.Catalog
		registry *authz.Registry
		repo     *MockRepository
		resolver *authz.Resolver
	)

	BeforeEach(func() {
		ctx = context.Background()
		catalog = authz.DefaultCatalog()
		registry = authz.DefaultRegistry(catalog)
		repo = NewMockRepository(catalog, registry)
		resolver = authz.NewResolver(repo, catalog, logger.Discard())
	})

	Describe("without a cache", func() {
		It("should resolve the role baseline", func() {
			repo.AddUser(1, authz.RoleStudent)

			res, err := resolver.Resolve(ctx, 1)
			Expect(err).NotTo(HaveOccurred())

			student, _ := registry.Permissions(authz.RoleStudent)
			Expect(res.RoleName).To(Equal(authz.RoleStudent))
			Expect(res.Permissions.Equal(student)).To(BeTrue())
		})

		It("should apply grants and blocks", func() {
			repo.AddUser(1, authz.RoleStudent)
			_, _ = repo.UpsertOverride(ctx, 1, permID(repo, authz.PermCreateCourses), "grant", nil)
			_, _ = repo.UpsertOverride(ctx, 1, permID(repo, authz.PermTakeQuizzes), "block", nil)

			res, err := resolver.Resolve(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Has(authz.PermCreateCourses)).To(BeTrue())
			Expect(res.Has(authz.PermTakeQuizzes)).To(BeFalse())
			Expect(res.Has(authz.PermViewCourses)).To(BeTrue())
		})

		It("should ignore blocks for superadmin", func() {
			repo.AddUser(1, authz.RoleSuperadmin)
			_, _ = repo.UpsertOverride(ctx, 1, permID(repo, authz.PermSystemFullAccess), "block", nil)

			res, err := resolver.Resolve(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsSuperadmin()).To(BeTrue())
			Expect(res.Permissions.Equal(catalog.Set())).To(BeTrue())
		})

		It("should keep overrides across role changes", func() {
			repo.AddUser(1, authz.RoleStudent)
			_, _ = repo.UpsertOverride(ctx, 1, permID(repo, authz.PermModerateAllComments), "block", nil)
			repo.SetRole(1, authz.RoleModerator)

			res, err := resolver.Resolve(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Has(authz.PermModerateAllComments)).To(BeFalse())
			Expect(res.Has(authz.PermModerateAllRatings)).To(BeTrue())
		})

		It("should fail for unknown users", func() {
			_, err := resolver.Resolve(ctx, 99)
			Expect(err).To(MatchError(authz.ErrUserNotFound))

			_, err = resolver.Resolve(ctx, 0)
			Expect(err).To(MatchError(authz.ErrUserNotFound))
		})

		It("should surface store failures", func() {
			repo.AddUser(1, authz.RoleStudent)
			repo.SetShouldFail(errors.New("connection refused"))

			_, err := resolver.Resolve(ctx, 1)
			Expect(err).To(MatchError(ContainSubstring("connection refused")))
		})

		It("should answer HasPermission and HasAnyPermission", func() {
			repo.AddUser(1, authz.RoleStudent)

			ok, err := resolver.HasPermission(ctx, 1, authz.PermViewCourses)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())

			ok, err = resolver.HasPermission(ctx, 1, authz.PermManageRoles)
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeFalse())

			ok, err = resolver.HasAnyPermission(ctx, 1, []string{authz.PermManageRoles, authz.PermTakeQuizzes})
			Expect(err).NotTo(HaveOccurred())
			Expect(ok).To(BeTrue())
		})

		It("should never default to allow for unknown permission names", func() {
			repo.AddUser(1, authz.RoleSuperadmin)

			ok, err := resolver.HasPermission(ctx, 1, "fly:planes")
			Expect(err).To(MatchError(authz.ErrUnknownPermission))
			Expect(ok).To(BeFalse())
		})

		It("should list overrides of a user", func() {
			repo.AddUser(1, authz.RoleStudent)
			_, _ = repo.UpsertOverride(ctx, 1, permID(repo, authz.PermCreateCourses), "grant", nil)

			ov, err := resolver.OverridesFor(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(ov.Grants.Names()).To(Equal([]string{authz.PermCreateCourses}))
			Expect(ov.Blocks).To(BeEmpty())

			_, err = resolver.OverridesFor(ctx, 2)
			Expect(err).To(MatchError(authz.ErrUserNotFound))
		})
	})

	Describe("with a memory cache", func() {
		var metrics *observability.Metrics

		BeforeEach(func() {
			metrics = observability.NewMetrics()
			resolver = authz.NewResolver(repo, catalog, logger.Discard(),
				authz.WithCache(cache.NewMemoryCache(100, time.Minute)),
				authz.WithMetrics(metrics),
			)
			repo.AddUser(1, authz.RoleStudent)
		})

		It("should serve repeated resolutions from the cache", func() {
			_, err := resolver.Resolve(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			calls := repo.GetUserCalls()

			res, err := resolver.Resolve(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.RoleName).To(Equal(authz.RoleStudent))
			Expect(repo.GetUserCalls()).To(Equal(calls))

			Expect(counterValue(metrics, "coursehub_authz_resolve_cache_total", "outcome", observability.CacheMiss)).To(Equal(1.0))
			Expect(counterValue(metrics, "coursehub_authz_resolve_cache_total", "outcome", observability.CacheHit)).To(Equal(1.0))
		})

		It("should not hand out the cached set for mutation", func() {
			first, _ := resolver.Resolve(ctx, 1)
			delete(first.Permissions, authz.PermViewCourses)

			second, err := resolver.Resolve(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Has(authz.PermViewCourses)).To(BeTrue())
		})

		It("should see store changes after Invalidate", func() {
			_, _ = resolver.Resolve(ctx, 1)
			_, _ = repo.UpsertOverride(ctx, 1, permID(repo, authz.PermViewCourses), "block", nil)

			stale, _ := resolver.Resolve(ctx, 1)
			Expect(stale.Has(authz.PermViewCourses)).To(BeTrue())

			Expect(resolver.Invalidate(ctx, 1)).To(Succeed())
			fresh, err := resolver.Resolve(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(fresh.Has(authz.PermViewCourses)).To(BeFalse())
		})

		It("should see role changes after InvalidateAll", func() {
			_, _ = resolver.Resolve(ctx, 1)
			repo.SetRole(1, authz.RoleAdmin)

			Expect(resolver.InvalidateAll(ctx)).To(Succeed())
			res, err := resolver.Resolve(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.RoleName).To(Equal(authz.RoleAdmin))
		})

		It("should not fail a shared load when the first caller goes away", func() {
			gated := &gatedRepository{MockRepository: repo, entered: make(chan struct{}), release: make(chan struct{})}
			resolver = authz.NewResolver(gated, catalog, logger.Discard(),
				authz.WithCache(cache.NewMemoryCache(100, time.Minute)),
			)

			firstCtx, cancel := context.WithCancel(ctx)
			firstErr := make(chan error, 1)
			go func() {
				_, err := resolver.Resolve(firstCtx, 1)
				firstErr <- err
			}()
			Eventually(gated.entered).Should(BeClosed())

			type outcome struct {
				res *authz.Resolution
				err error
			}
			second := make(chan outcome, 1)
			go func() {
				res, err := resolver.Resolve(ctx, 1)
				second <- outcome{res, err}
			}()
			time.Sleep(20 * time.Millisecond)

			cancel()
			close(gated.release)

			var got outcome
			Eventually(second).Should(Receive(&got))
			Expect(got.err).NotTo(HaveOccurred())
			Expect(got.res.RoleName).To(Equal(authz.RoleStudent))
			Eventually(firstErr).Should(Receive(BeNil()))
		})

		It("should resolve concurrently", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					res, err := resolver.Resolve(ctx, 1)
					Expect(err).NotTo(HaveOccurred())
					Expect(res.Has(authz.PermViewCourses)).To(BeTrue())
				}()
			}
			wg.Wait()
		})
	})

	Describe("with a failing cache", func() {
		It("should fall back to the store", func() {
			resolver = authz.NewResolver(repo, catalog, logger.Discard(), authz.WithCache(brokenCache{}))
			repo.AddUser(1, authz.RoleInstructor)

			res, err := resolver.Resolve(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Has(authz.PermCreateCourses)).To(BeTrue())
		})

		It("should report invalidation failures", func() {
			resolver = authz.NewResolver(repo, catalog, logger.Discard(), authz.WithCache(brokenCache{}))
			Expect(resolver.Invalidate(ctx, 1)).To(MatchError(errCacheDown))
			Expect(resolver.InvalidateAll(ctx)).To(MatchError(errCacheDown))
		})
	})
})

func permID(repo *MockRepository, name string) int64 {
	p, err := repo.GetPermissionByName(context.Background(), name)
	Expect(err).NotTo(HaveOccurred())
	Expect(p).NotTo(BeNil())
	return p.ID
}

func counterValue(m *observability.Metrics, family, label, value string) float64 {
	families, err := m.Registry().Gather()
	Expect(err).NotTo(HaveOccurred())
	for _, f := range families {
		if f.GetName() != family {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
