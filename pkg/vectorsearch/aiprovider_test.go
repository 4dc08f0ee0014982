package vectorsearch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/phoenixvc/cognitive-mesh-sub003/pkg/vectorsearch"
)

var _ = Describe("AINativeProvider", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		ids      []string
		docs     []string
		provider *vectorsearch.AINativeProvider
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()

		mux := http.NewServeMux()
		mux.HandleFunc("/api/v1/collections/mesh/upsert", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				IDs       []string `json:"ids"`
				Documents []string `json:"documents"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			ids = append(ids, req.IDs...)
			docs = append(docs, req.Documents...)
			w.WriteHeader(http.StatusOK)
		})
		mux.HandleFunc("/api/v1/collections/mesh/get", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				IDs []string `json:"ids"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			var matched []string
			for _, id := range req.IDs {
				for i, stored := range ids {
					if stored == id {
						matched = append(matched, docs[i])
					}
				}
			}
			_ = json.NewEncoder(w).Encode(map[string][]string{"documents": matched})
		})
		server = httptest.NewServer(mux)

		provider, err = vectorsearch.NewAINativeProvider(server.URL, "mesh", "", "", nil)
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("round-trips a document through the REST upsert/get endpoints", func() {
		Expect(provider.SaveDocument(ctx, vectorsearch.Document{
			CompositeKey: "mesh:s:k",
			Value:        "hello",
		})).To(Succeed())

		value, err := provider.GetDocumentValue(ctx, "mesh:s:k")
		Expect(err).ToNot(HaveOccurred())
		Expect(value).To(Equal("hello"))
	})

	It("rejects an invalid jq expression at construction time", func() {
		_, err := vectorsearch.NewAINativeProvider(server.URL, "mesh", "", "(((", nil)
		Expect(err).To(HaveOccurred())
	})
})
