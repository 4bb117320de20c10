package access_test

import (
	"context"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/frahmantamala/iam-service/internal/access"
	"github.com/go-redis/redis/v8"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("PermissionCache", func() {
	var (
		ctx   context.Context
		perms = []access.EffectivePermission{
			{ID: 1, Name: "read_users", Action: "read", ModuleID: 1, ModuleName: "Users"},
		}
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("MemoryCache", func() {
		It("should return what was stored until purged", func() {
			cache := access.NewMemoryCache(8, time.Minute)
			cache.Set(ctx, 1, 0, perms)

			got, gen, ok := cache.Get(ctx, 1)
			Expect(ok).To(BeTrue())
			Expect(gen).To(BeZero())
			Expect(got).To(Equal(perms))

			cache.Invalidate(ctx)
			_, gen, ok = cache.Get(ctx, 1)
			Expect(ok).To(BeFalse())
			Expect(gen).To(Equal(int64(1)))
		})

		It("should drop a set computed before an invalidation", func() {
			cache := access.NewMemoryCache(8, time.Minute)
			_, gen, ok := cache.Get(ctx, 1)
			Expect(ok).To(BeFalse())

			cache.Invalidate(ctx)
			cache.Set(ctx, 1, gen, perms)

			_, _, ok = cache.Get(ctx, 1)
			Expect(ok).To(BeFalse())
			Expect(cache.Len()).To(BeZero())
		})

		It("should not share the stored slice with callers", func() {
			cache := access.NewMemoryCache(8, time.Minute)
			cache.Set(ctx, 1, 0, perms)

			got, _, _ := cache.Get(ctx, 1)
			got[0].Name = "mutated"

			again, _, _ := cache.Get(ctx, 1)
			Expect(again[0].Name).To(Equal("read_users"))
		})

		It("should expire entries after the ttl", func() {
			cache := access.NewMemoryCache(8, 20*time.Millisecond)
			cache.Set(ctx, 1, 0, perms)

			Eventually(func() bool {
				_, _, ok := cache.Get(ctx, 1)
				return ok
			}).WithTimeout(time.Second).WithPolling(10 * time.Millisecond).Should(BeFalse())
		})
	})

	Describe("RedisCache", func() {
		var (
			server *miniredis.Miniredis
			client *redis.Client
			cache  *access.RedisCache
		)

		BeforeEach(func() {
			var err error
			server, err = miniredis.Run()
			Expect(err).NotTo(HaveOccurred())

			client, err = access.NewRedisClient(ctx, "redis://"+server.Addr())
			Expect(err).NotTo(HaveOccurred())
			cache = access.NewRedisCache(client, "test", time.Minute, testLogger())
		})

		AfterEach(func() {
			client.Close()
			server.Close()
		})

		It("should round-trip permission sets", func() {
			cache.Set(ctx, 7, 0, perms)

			got, _, ok := cache.Get(ctx, 7)
			Expect(ok).To(BeTrue())
			Expect(got).To(Equal(perms))
			Expect(server.TTL("test:perm:0:user:7")).To(Equal(time.Minute))
		})

		It("should hide every entry after invalidation", func() {
			cache.Set(ctx, 7, 0, perms)
			cache.Set(ctx, 8, 0, perms)

			cache.Invalidate(ctx)

			_, _, ok := cache.Get(ctx, 7)
			Expect(ok).To(BeFalse())
			_, _, ok = cache.Get(ctx, 8)
			Expect(ok).To(BeFalse())

			gen, err := server.Get("test:perm:gen")
			Expect(err).NotTo(HaveOccurred())
			Expect(gen).To(Equal("1"))
		})

		It("should see invalidations made by another instance", func() {
			other := access.NewRedisCache(client, "test", time.Minute, testLogger())
			cache.Set(ctx, 7, 0, perms)

			other.Invalidate(ctx)

			_, _, ok := cache.Get(ctx, 7)
			Expect(ok).To(BeFalse())
		})

		It("should never serve a set computed before an invalidation", func() {
			_, gen, ok := cache.Get(ctx, 7)
			Expect(ok).To(BeFalse())
			Expect(gen).To(BeZero())

			cache.Invalidate(ctx)
			cache.Set(ctx, 7, gen, perms)

			_, current, ok := cache.Get(ctx, 7)
			Expect(ok).To(BeFalse())
			Expect(current).To(Equal(int64(1)))
		})

		It("should treat corrupt entries as a miss", func() {
			Expect(server.Set("test:perm:0:user:9", "{not json")).To(Succeed())
			_, _, ok := cache.Get(ctx, 9)
			Expect(ok).To(BeFalse())
		})

		It("should degrade to a miss when redis is unreachable", func() {
			server.Close()
			cache.Set(ctx, 7, 0, perms)
			_, gen, ok := cache.Get(ctx, 7)
			Expect(ok).To(BeFalse())
			Expect(gen).To(Equal(access.NoGeneration))
		})
	})

	It("should fail to build a client for an invalid url", func() {
		_, err := access.NewRedisClient(ctx, "://nope")
		Expect(err).To(HaveOccurred())
	})
})
