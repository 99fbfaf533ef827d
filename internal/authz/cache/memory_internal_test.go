package cache

import (
	"context"
	"time"

	"github.com/frahmantamala/coursehub/internal/authz"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MemoryCache generations", func() {
	var (
		ctx context.Context
		c   *MemoryCache
	)

	BeforeEach(func() {
		ctx = context.Background()
		c = NewMemoryCache(10, time.Minute)
	})

	It("should track at most maxEntries users", func() {
		for id := int64(1); id <= 1000; id++ {
			Expect(c.Invalidate(ctx, id)).To(Succeed())
			Expect(len(c.generations)).To(BeNumerically("<=", 10))
		}
	})

	It("should never hand out a stamp twice for the same user", func() {
		seen := map[string]bool{}
		for round := int64(0); round < 50; round++ {
			stamp, err := c.Stamp(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).NotTo(HaveKey(stamp))
			seen[stamp] = true

			Expect(c.Invalidate(ctx, 1)).To(Succeed())
			for other := int64(0); other < 7; other++ {
				Expect(c.Invalidate(ctx, 100+round*7+other)).To(Succeed())
			}
		}
	})

	It("should drop entries cached before a rollover", func() {
		stamp, _ := c.Stamp(ctx, 1)
		Expect(c.Set(ctx, 1, stamp, authz.CacheEntry{RoleName: authz.RoleAdmin})).To(Succeed())

		for id := int64(2); id <= 12; id++ {
			Expect(c.Invalidate(ctx, id)).To(Succeed())
		}

		current, _ := c.Stamp(ctx, 1)
		Expect(current).NotTo(Equal(stamp))
		_, ok, err := c.Get(ctx, 1, stamp)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeFalse())
	})
})
