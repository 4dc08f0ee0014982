package memorystore_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/phoenixvc/cognitive-mesh-sub003/pkg/memorystore"
)

var _ = Describe("EmbeddedFileStore", func() {
	var (
		ctx    context.Context
		store  *memorystore.EmbeddedFileStore
		dbPath string
	)

	BeforeEach(func() {
		ctx = context.Background()

		f, err := os.CreateTemp("", "mesh-*.db")
		Expect(err).ToNot(HaveOccurred())
		dbPath = f.Name()
		Expect(f.Close()).To(Succeed())

		store = memorystore.NewEmbeddedFileStore(dbPath, nil)
		Expect(store.Initialize(ctx)).To(Succeed())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
		_ = os.Remove(dbPath)
	})

	It("round-trips a value through SQLite", func() {
		Expect(store.Save(ctx, "alpha", "note", "hello world")).To(Succeed())
		value, err := store.Get(ctx, "alpha", "note")
		Expect(err).ToNot(HaveOccurred())
		Expect(value).To(Equal("hello world"))
	})

	It("upserts on repeated saves to the same key", func() {
		Expect(store.Save(ctx, "alpha", "note", "first")).To(Succeed())
		Expect(store.Save(ctx, "alpha", "note", "second")).To(Succeed())
		value, err := store.Get(ctx, "alpha", "note")
		Expect(err).ToNot(HaveOccurred())
		Expect(value).To(Equal("second"))
	})

	It("ranks similar embeddings above threshold, most similar first", func() {
		Expect(store.Save(ctx, "q", "doc1_embedding", "[1,0,0]")).To(Succeed())
		Expect(store.Save(ctx, "q", "doc2_embedding", "[0.9,0.1,0]")).To(Succeed())
		Expect(store.Save(ctx, "q", "doc3_embedding", "[0,1,0]")).To(Succeed())

		results, err := store.QuerySimilar(ctx, "[1,0,0]", 0.5)
		Expect(err).ToNot(HaveOccurred())
		Expect(results).To(HaveLen(2))
		Expect(results[0]).To(Equal("[1,0,0]"))
	})

	It("reinitializing is a no-op", func() {
		Expect(store.Initialize(ctx)).To(Succeed())
	})

	It("keeps a non-JSON embedding value readable without failing the write", func() {
		Expect(store.Save(ctx, "w", "user_embedding", "not-json")).To(Succeed())
		value, err := store.Get(ctx, "w", "user_embedding")
		Expect(err).ToNot(HaveOccurred())
		Expect(value).To(Equal("not-json"))
	})

	It("reports connection stats once initialized", func() {
		stats := store.ConnectionStats()
		Expect(stats.Backend).To(Equal("embeddedFile"))
		Expect(stats.MigrationsUpTo).To(BeNumerically(">", 0))
	})
})
