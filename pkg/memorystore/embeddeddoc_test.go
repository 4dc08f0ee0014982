package memorystore_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/phoenixvc/cognitive-mesh-sub003/pkg/memorystore"
)

var _ = Describe("EmbeddedDocumentStore", func() {
	var (
		ctx     context.Context
		store   *memorystore.EmbeddedDocumentStore
		dirPath string
	)

	BeforeEach(func() {
		ctx = context.Background()

		dir, err := os.MkdirTemp("", "mesh-docs-*")
		Expect(err).ToNot(HaveOccurred())
		dirPath = dir

		store = memorystore.NewEmbeddedDocumentStore(dirPath, nil)
		Expect(store.Initialize(ctx)).To(Succeed())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
		_ = os.RemoveAll(dirPath)
	})

	It("round-trips a value through BadgerDB", func() {
		Expect(store.Save(ctx, "alpha", "note", "hello world")).To(Succeed())
		value, err := store.Get(ctx, "alpha", "note")
		Expect(err).ToNot(HaveOccurred())
		Expect(value).To(Equal("hello world"))
	})

	It("returns empty string for an absent key", func() {
		value, err := store.Get(ctx, "nobody", "nothing")
		Expect(err).ToNot(HaveOccurred())
		Expect(value).To(Equal(""))
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
})
