package memorystore_test

import (
	"context"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"github.com/phoenixvc/cognitive-mesh-sub003/pkg/memorystore"
	"github.com/phoenixvc/cognitive-mesh-sub003/pkg/vectorsearch"
)

var _ = Describe("CacheStore", func() {
	var (
		ctx   context.Context
		mr    *miniredis.Miniredis
		store *memorystore.CacheStore
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		mr, err = miniredis.Run()
		Expect(err).ToNot(HaveOccurred())

		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		provider := vectorsearch.NewCacheProvider(client, "mesh-idx", 3, nil)
		store = memorystore.NewCacheStore(provider, nil)
		Expect(store.Initialize(ctx)).To(Succeed())
	})

	AfterEach(func() {
		mr.Close()
	})

	It("round-trips a value by composite key", func() {
		Expect(store.Save(ctx, "alpha", "note", "hello world")).To(Succeed())
		value, err := store.Get(ctx, "alpha", "note")
		Expect(err).ToNot(HaveOccurred())
		Expect(value).To(Equal("hello world"))
	})

	It("delegates similarity ranking to the provider's fallback scan", func() {
		Expect(store.Save(ctx, "q", "doc1_embedding", "[1,0,0]")).To(Succeed())
		Expect(store.Save(ctx, "q", "doc2_embedding", "[0,1,0]")).To(Succeed())

		results, err := store.QuerySimilar(ctx, "[1,0,0]", 0.5)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(ConsistOf("[1,0,0]"))
	})
})
