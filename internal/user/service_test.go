package user_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/frahmantamala/coursehub/internal"
	"github.com/frahmantamala/coursehub/internal/authz"
	authzDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/authz"
	userDatamodel "github.com/frahmantamala/coursehub/internal/core/datamodel/user"
	"github.com/frahmantamala/coursehub/internal/core/events"
	"github.com/frahmantamala/coursehub/internal/user"
	"github.com/frahmantamala/coursehub/pkg/logger"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type mockRepo struct {
	users       map[int64]*userDatamodel.User
	roles       map[int64]*authzDatamodel.Role
	updateErr   error
	updateCalls int
}

func newMockRepo(registry *authz.Registry) *mockRepo {
	m := &mockRepo{
		users: map[int64]*userDatamodel.User{},
		roles: map[int64]*authzDatamodel.Role{},
	}
	for i, def := range registry.All() {
		id := int64(i + 1)
		m.roles[id] = &authzDatamodel.Role{ID: id, Name: def.Name}
	}
	return m
}

func (m *mockRepo) roleID(name string) int64 {
	for id, r := range m.roles {
		if r.Name == name {
			return id
		}
	}
	return 0
}

func (m *mockRepo) GetByID(_ context.Context, userID int64) (*userDatamodel.User, error) {
	return m.users[userID], nil
}

func (m *mockRepo) GetRoleByID(_ context.Context, roleID int64) (*authzDatamodel.Role, error) {
	return m.roles[roleID], nil
}

func (m *mockRepo) GetRoleByName(_ context.Context, name string) (*authzDatamodel.Role, error) {
	if id := m.roleID(name); id != 0 {
		return m.roles[id], nil
	}
	return nil, nil
}

func (m *mockRepo) UpdateRole(_ context.Context, userID, roleID int64) error {
	m.updateCalls++
	if m.updateErr != nil {
		return m.updateErr
	}
	m.users[userID].RoleID = roleID
	return nil
}

// fakeResolver answers from the repo's current role, so a stale answer after AssignRole would show.
type fakeResolver struct {
	repo        *mockRepo
	registry    *authz.Registry
	invalidated []int64
}

func (f *fakeResolver) Resolve(_ context.Context, userID int64) (*authz.Resolution, error) {
	u := f.repo.users[userID]
	if u == nil {
		return nil, authz.ErrUserNotFound
	}
	role := f.repo.roles[u.RoleID]
	perms, err := f.registry.Permissions(role.Name)
	if err != nil {
		return nil, err
	}
	return &authz.Resolution{UserID: userID, RoleName: role.Name, Permissions: perms}, nil
}

func (f *fakeResolver) Invalidate(_ context.Context, userID int64) error {
	f.invalidated = append(f.invalidated, userID)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

var _ = Describe("User Service", func() {
	var (
		ctx       context.Context
		registry  *authz.Registry
		repo      *mockRepo
		resolver  *fakeResolver
		publisher *recordingPublisher
		service   *user.Service
	)

	BeforeEach(func() {
		ctx = context.Background()
		registry = authz.DefaultRegistry(authz.DefaultCatalog())
		repo = newMockRepo(registry)
		resolver = &fakeResolver{repo: repo, registry: registry}
		publisher = &recordingPublisher{}
		service = user.NewService(repo, resolver, registry, publisher, logger.Discard())

		repo.users[1] = &userDatamodel.User{ID: 1, Email: "u1@example.com", Name: "U1", RoleID: repo.roleID(authz.RoleStudent), IsActive: true}
		repo.users[9] = &userDatamodel.User{ID: 9, Email: "admin@example.com", Name: "Admin", RoleID: repo.roleID(authz.RoleAdmin), IsActive: true}
	})

	Describe("GetByID", func() {
		It("should return the user with effective permissions", func() {
			u, err := service.GetByID(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.RoleName).To(Equal(authz.RoleStudent))
			Expect(u.Permissions).To(ContainElement(authz.PermViewCourses))
			Expect(u.Permissions).NotTo(ContainElement(authz.PermCreateCourses))
		})

		It("should report a missing user", func() {
			_, err := service.GetByID(ctx, 404)
			Expect(errors.Is(err, authz.ErrUserNotFound)).To(BeTrue())
		})
	})

	Describe("AssignRole", func() {
		It("should move the user, invalidate the cache and publish", func() {
			u, err := service.AssignRole(ctx, 9, 1, authz.RoleInstructor)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.RoleName).To(Equal(authz.RoleInstructor))
			Expect(u.Permissions).To(ContainElement(authz.PermCreateCourses))

			Expect(resolver.invalidated).To(ConsistOf(int64(1)))
			Expect(publisher.events).To(HaveLen(1))

			evt, ok := publisher.events[0].(*events.RoleAssignedEvent)
			Expect(ok).To(BeTrue())
			Expect(evt.FromRole).To(Equal(authz.RoleStudent))
			Expect(evt.ToRole).To(Equal(authz.RoleInstructor))
			Expect(evt.ActorID).To(Equal(int64(9)))
		})

		It("should be a no-op for the current role", func() {
			_, err := service.AssignRole(ctx, 9, 1, authz.RoleStudent)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.updateCalls).To(BeZero())
			Expect(resolver.invalidated).To(BeEmpty())
			Expect(publisher.events).To(BeEmpty())
		})

		It("should reject an undeclared role", func() {
			_, err := service.AssignRole(ctx, 9, 1, "teaching_assistant")
			Expect(errors.Is(err, authz.ErrUnknownRole)).To(BeTrue())
			Expect(repo.updateCalls).To(BeZero())
		})

		It("should reject a declared role that is not yet stored", func() {
			delete(repo.roles, repo.roleID(authz.RoleModerator))

			_, err := service.AssignRole(ctx, 9, 1, authz.RoleModerator)
			Expect(errors.Is(err, authz.ErrUnknownRole)).To(BeTrue())
		})

		It("should report a missing user", func() {
			_, err := service.AssignRole(ctx, 9, 404, authz.RoleAdmin)
			Expect(errors.Is(err, authz.ErrUserNotFound)).To(BeTrue())
		})

		Context("when the superadmin role is involved", func() {
			BeforeEach(func() {
				repo.users[2] = &userDatamodel.User{ID: 2, Email: "root@example.com", Name: "Root", RoleID: repo.roleID(authz.RoleSuperadmin), IsActive: true}
			})

			It("should not let an admin demote a superadmin", func() {
				_, err := service.AssignRole(ctx, 9, 2, authz.RoleStudent)
				Expect(errors.Is(err, authz.ErrPermissionDenied)).To(BeTrue())
				Expect(repo.users[2].RoleID).To(Equal(repo.roleID(authz.RoleSuperadmin)))
				Expect(repo.updateCalls).To(BeZero())
				Expect(resolver.invalidated).To(BeEmpty())
				Expect(publisher.events).To(BeEmpty())
			})

			It("should not let an admin grant superadmin to themselves or others", func() {
				_, err := service.AssignRole(ctx, 9, 9, authz.RoleSuperadmin)
				Expect(errors.Is(err, authz.ErrPermissionDenied)).To(BeTrue())

				_, err = service.AssignRole(ctx, 9, 1, authz.RoleSuperadmin)
				Expect(errors.Is(err, authz.ErrPermissionDenied)).To(BeTrue())

				Expect(repo.updateCalls).To(BeZero())
				Expect(repo.users[9].RoleID).To(Equal(repo.roleID(authz.RoleAdmin)))
			})

			It("should map the denial to 403", func() {
				_, err := service.AssignRole(ctx, 9, 2, authz.RoleAdmin)
				Expect(authz.ToAppError(err).StatusCode).To(Equal(http.StatusForbidden))
			})

			It("should let a superadmin promote and demote", func() {
				u, err := service.AssignRole(ctx, 2, 9, authz.RoleSuperadmin)
				Expect(err).NotTo(HaveOccurred())
				Expect(u.RoleName).To(Equal(authz.RoleSuperadmin))

				u, err = service.AssignRole(ctx, 2, 9, authz.RoleAdmin)
				Expect(err).NotTo(HaveOccurred())
				Expect(u.RoleName).To(Equal(authz.RoleAdmin))
				Expect(repo.updateCalls).To(Equal(2))
			})
		})

		It("should not invalidate when the update fails", func() {
			repo.updateErr = errors.New("connection reset")

			_, err := service.AssignRole(ctx, 9, 1, authz.RoleAdmin)
			Expect(err).To(MatchError(ContainSubstring("connection reset")))
			Expect(resolver.invalidated).To(BeEmpty())
			Expect(publisher.events).To(BeEmpty())
		})
	})
})

var _ = Describe("User Handler", func() {
	var (
		router *chi.Mux
		repo   *mockRepo
	)

	BeforeEach(func() {
		registry := authz.DefaultRegistry(authz.DefaultCatalog())
		repo = newMockRepo(registry)
		repo.users[1] = &userDatamodel.User{ID: 1, Email: "u1@example.com", Name: "U1", RoleID: repo.roleID(authz.RoleStudent), IsActive: true}

		svc := user.NewService(repo, &fakeResolver{repo: repo, registry: registry}, registry, nil, logger.Discard())
		h := user.NewHandler(svc, logger.Discard())

		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(internal.ContextWithUserID(r.Context(), 1)))
			})
		})
		router.Get("/users/me", h.GetCurrentUser)
		router.Put("/users/{id}/role", h.AssignRole)
	})

	serve := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	It("should return the caller", func() {
		w := serve(http.MethodGet, "/users/me", "")
		Expect(w.Code).To(Equal(http.StatusOK))

		var u user.User
		Expect(json.NewDecoder(w.Body).Decode(&u)).To(Succeed())
		Expect(u.Email).To(Equal("u1@example.com"))
		Expect(u.RoleName).To(Equal(authz.RoleStudent))
	})

	It("should assign a role", func() {
		w := serve(http.MethodPut, "/users/1/role", `{"role":"moderator"}`)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(repo.users[1].RoleID).To(Equal(repo.roleID(authz.RoleModerator)))
	})

	It("should refuse a non-superadmin caller granting superadmin", func() {
		w := serve(http.MethodPut, "/users/1/role", `{"role":"superadmin"}`)
		Expect(w.Code).To(Equal(http.StatusForbidden))
		Expect(repo.users[1].RoleID).To(Equal(repo.roleID(authz.RoleStudent)))
	})

	It("should map an unknown role to 400 and a missing user to 404", func() {
		Expect(serve(http.MethodPut, "/users/1/role", `{"role":"owner"}`).Code).To(Equal(http.StatusBadRequest))
		Expect(serve(http.MethodPut, "/users/77/role", `{"role":"admin"}`).Code).To(Equal(http.StatusNotFound))
		Expect(serve(http.MethodPut, "/users/abc/role", `{"role":"admin"}`).Code).To(Equal(http.StatusBadRequest))
		Expect(serve(http.MethodPut, "/users/1/role", `{}`).Code).To(Equal(http.StatusBadRequest))
	})
})
