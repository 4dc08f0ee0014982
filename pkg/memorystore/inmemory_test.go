package memorystore_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/phoenixvc/cognitive-mesh-sub003/pkg/memorystore"
	"github.com/phoenixvc/cognitive-mesh-sub003/pkg/testutil"
)

var _ = Describe("InMemoryStore", func() {
	var (
		ctx   context.Context
		store *memorystore.InMemoryStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = memorystore.NewInMemoryStore(nil)
		Expect(store.Initialize(ctx)).To(Succeed())
	})

	It("round-trips a value and reflects an overwrite", func() {
		Expect(store.Save(ctx, "alpha", "note", "hello world")).To(Succeed())
		value, err := store.Get(ctx, "alpha", "note")
		Expect(err).ToNot(HaveOccurred())
		Expect(value).To(Equal("hello world"))

		Expect(store.Save(ctx, "alpha", "note", "hi")).To(Succeed())
		value, err = store.Get(ctx, "alpha", "note")
		Expect(err).ToNot(HaveOccurred())
		Expect(value).To(Equal("hi"))
	})

	It("returns an empty string for an absent key", func() {
		value, err := store.Get(ctx, "nobody", "nothing")
		Expect(err).ToNot(HaveOccurred())
		Expect(value).To(Equal(""))
	})

	It("ranks similar embeddings above threshold, most similar first, and excludes the rest", func() {
		Expect(store.Save(ctx, "q", "doc1_embedding", "[1,0,0]")).To(Succeed())
		Expect(store.Save(ctx, "q", "doc2_embedding", "[0.9,0.1,0]")).To(Succeed())
		Expect(store.Save(ctx, "q", "doc3_embedding", "[0,1,0]")).To(Succeed())

		results, err := store.QuerySimilar(ctx, "[1,0,0]", 0.5)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0]).To(Equal("[1,0,0]"))
		Expect(results[1]).To(Equal("[0.9,0.1,0]"))
	})

	It("excludes every candidate when none clear the threshold", func() {
		Expect(store.Save(ctx, "q", "doc1_embedding", "[1,0,0]")).To(Succeed())
		Expect(store.Save(ctx, "q", "doc2_embedding", "[0.9,0.1,0]")).To(Succeed())
		Expect(store.Save(ctx, "q", "doc3_embedding", "[0,1,0]")).To(Succeed())

		results, err := store.QuerySimilar(ctx, "[0,0,1]", 0.5)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("logs a warning and keeps the raw value when an embedding key fails to parse", func() {
		Expect(store.Save(ctx, "w", "user_embedding", "not-json")).To(Succeed())

		value, err := store.Get(ctx, "w", "user_embedding")
		Expect(err).ToNot(HaveOccurred())
		Expect(value).To(Equal("not-json"))

		results, err := store.QuerySimilar(ctx, "[1,0,0]", 0.0)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).ToNot(ContainElement("not-json"))
	})

	It("resolves concurrent upserts on the same key to exactly one surviving value", func() {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_ = store.Save(ctx, "c", "k", string(rune('a'+i%26)))
			}(i)
		}
		wg.Wait()

		value, err := store.Get(ctx, "c", "k")
		Expect(err).ToNot(HaveOccurred())
		Expect(value).ToNot(BeEmpty())
		Expect(store.Count()).To(Equal(1))
	})

	It("treats repeated Initialize calls as a no-op", func() {
		Expect(store.Initialize(ctx)).To(Succeed())
		Expect(store.Initialize(ctx)).To(Succeed())
	})

	It("returns an empty sequence for malformed query JSON instead of an error", func() {
		results, err := store.QuerySimilar(ctx, "not-json", 0.0)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(BeEmpty())
	})

	It("ranks higher-dimensional embeddings built from a deterministic factory the same way twice", func() {
		data := testutil.NewTestDataFactory()
		query := data.EmbeddingJSON(1, 16)

		Expect(store.Save(ctx, "f", "near_embedding", data.EmbeddingJSON(1, 16))).To(Succeed())
		Expect(store.Save(ctx, "f", "far_embedding", data.EmbeddingJSON(4, 16))).To(Succeed())

		first, err := store.QuerySimilar(ctx, query, 0.99)
		Expect(err).ToNot(HaveOccurred())
		second, err := store.QuerySimilar(ctx, query, 0.99)
		Expect(err).ToNot(HaveOccurred())
		Expect(first).To(Equal(second))
		Expect(first).To(ContainElement(data.EmbeddingJSON(1, 16)))
	})

	It("clears all state for test determinism", func() {
		Expect(store.Save(ctx, "s", "k", "v")).To(Succeed())
		store.Clear()
		value, err := store.Get(ctx, "s", "k")
		Expect(err).ToNot(HaveOccurred())
		Expect(value).To(Equal(""))
		Expect(store.Count()).To(Equal(0))
	})
})
