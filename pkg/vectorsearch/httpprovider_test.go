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

var _ = Describe("HTTPProvider", func() {
	var (
		ctx      context.Context
		server   *httptest.Server
		store    map[string]string
		provider *vectorsearch.HTTPProvider
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = make(map[string]string)

		mux := http.NewServeMux()
		mux.HandleFunc("/v2/vectordb/collections/create", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		mux.HandleFunc("/v2/vectordb/entities/upsert", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Data []struct {
					ID    string `json:"id"`
					Value string `json:"value"`
				} `json:"data"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			for _, item := range req.Data {
				store[item.ID] = item.Value
			}
			w.WriteHeader(http.StatusOK)
		})
		mux.HandleFunc("/v2/vectordb/entities/get", func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				ID []string `json:"id"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			resp := struct {
				Data []struct {
					Value string `json:"value"`
				} `json:"data"`
			}{}
			for _, id := range req.ID {
				if v, ok := store[id]; ok {
					resp.Data = append(resp.Data, struct {
						Value string `json:"value"`
					}{Value: v})
				}
			}
			_ = json.NewEncoder(w).Encode(resp)
		})
		server = httptest.NewServer(mux)

		provider = vectorsearch.NewHTTPProviderWithToken(server.URL, "mesh", 3, "", nil)
		Expect(provider.Initialize(ctx)).To(Succeed())
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

	It("returns empty string for an absent document", func() {
		value, err := provider.GetDocumentValue(ctx, "mesh:missing:key")
		Expect(err).ToNot(HaveOccurred())
		Expect(value).To(Equal(""))
	})

	It("authenticates via OAuth2 client-credentials when a token URL is configured", func() {
		var sawAuthHeader string
		mux := http.NewServeMux()
		mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "cc-token",
				"token_type":   "bearer",
				"expires_in":   3600,
			})
		})
		mux.HandleFunc("/v2/vectordb/collections/create", func(w http.ResponseWriter, r *http.Request) {
			sawAuthHeader = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
		})
		ccServer := httptest.NewServer(mux)
		defer ccServer.Close()

		ccProvider := vectorsearch.NewHTTPProvider(ccServer.URL, "mesh", 3, "client-id", "client-secret", ccServer.URL+"/oauth/token", nil)
		Expect(ccProvider.Initialize(ctx)).To(Succeed())
		Expect(sawAuthHeader).To(Equal("Bearer cc-token"))
	})
})
