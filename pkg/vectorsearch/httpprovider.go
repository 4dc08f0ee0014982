package vectorsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/phoenixvc/cognitive-mesh-sub003/internal/logging"
)

// HTTPProvider delegates vector search to a dedicated vector database
// reached over a JSON REST API (Milvus-style). Authentication is an OAuth2
// client-credentials bearer token refreshed by the oauth2 transport
// (NewHTTPProvider with a token URL), a static bearer token
// (NewHTTPProviderWithToken), or none (NewHTTPProvider without a token URL).
type HTTPProvider struct {
	endpoint   string
	collection string
	dimension  int
	httpClient *http.Client
	logger     logging.Logger
}

// NewHTTPProvider constructs a provider against endpoint (e.g.
// "https://vectordb.internal:19530") using oauth2 client-credentials auth
// when tokenURL is non-empty; otherwise requests are sent unauthenticated.
// dimension is required up front because the REST API this provider targets
// needs it to create the collection on Initialize.
func NewHTTPProvider(endpoint, collection string, dimension int, clientID, clientSecret, tokenURL string, logger logging.Logger) *HTTPProvider {
	if logger == nil {
		logger = logging.NewNoop()
	}
	var httpClient *http.Client
	if tokenURL != "" {
		cfg := clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
		}
		httpClient = cfg.Client(context.Background())
	} else {
		httpClient = &http.Client{}
	}
	return &HTTPProvider{endpoint: endpoint, collection: collection, dimension: dimension, httpClient: httpClient, logger: logger}
}

// NewHTTPProviderWithToken constructs a provider using a pre-obtained
// static token rather than client-credentials discovery, useful for tests
// and for deployments where the bearer token is already distributed out of
// band.
func NewHTTPProviderWithToken(endpoint, collection string, dimension int, token string, logger logging.Logger) *HTTPProvider {
	if logger == nil {
		logger = logging.NewNoop()
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return &HTTPProvider{endpoint: endpoint, collection: collection, dimension: dimension, httpClient: oauth2.NewClient(context.Background(), src), logger: logger}
}

type httpCreateCollectionRequest struct {
	CollectionName string `json:"collectionName"`
	Dimension      int    `json:"dimension"`
	MetricType     string `json:"metricType"`
}

// Initialize creates the collection with a cosine metric and the
// constructor-supplied dimension if it does not already exist. A non-2xx
// response other than "already exists" is logged but does not fail the
// provider, matching this store's general degrade-predictably posture.
func (p *HTTPProvider) Initialize(ctx context.Context) error {
	body, err := json.Marshal(httpCreateCollectionRequest{
		CollectionName: p.collection,
		Dimension:      p.dimension,
		MetricType:     "COSINE",
	})
	if err != nil {
		return err
	}
	resp, err := p.post(ctx, "/v2/vectordb/collections/create", body)
	if err != nil {
		p.logger.Warn("vector db collection create failed, assuming it already exists", logging.Fields{"error": err.Error()})
		return nil
	}
	defer resp.Body.Close()
	return nil
}

type httpUpsertRequest struct {
	CollectionName string           `json:"collectionName"`
	Data           []httpUpsertItem `json:"data"`
}

type httpUpsertItem struct {
	ID     string    `json:"id"`
	Vector []float32 `json:"vector,omitempty"`
	Value  string    `json:"value"`
}

// SaveDocument upserts a document via the provider's REST insert/upsert
// endpoint.
func (p *HTTPProvider) SaveDocument(ctx context.Context, doc Document) error {
	body, err := json.Marshal(httpUpsertRequest{
		CollectionName: p.collection,
		Data: []httpUpsertItem{{
			ID:     doc.CompositeKey,
			Vector: doc.Vector,
			Value:  doc.Value,
		}},
	})
	if err != nil {
		return err
	}
	resp, err := p.post(ctx, "/v2/vectordb/entities/upsert", body)
	if err != nil {
		return fmt.Errorf("http vector db upsert: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

type httpGetRequest struct {
	CollectionName string   `json:"collectionName"`
	ID             []string `json:"id"`
	OutputFields   []string `json:"outputFields"`
}

type httpGetResponse struct {
	Data []struct {
		Value string `json:"value"`
	} `json:"data"`
}

// GetDocumentValue fetches a document by its composite-key ID.
func (p *HTTPProvider) GetDocumentValue(ctx context.Context, compositeKey string) (string, error) {
	body, err := json.Marshal(httpGetRequest{
		CollectionName: p.collection,
		ID:             []string{compositeKey},
		OutputFields:   []string{"value"},
	})
	if err != nil {
		return "", err
	}
	resp, err := p.post(ctx, "/v2/vectordb/entities/get", body)
	if err != nil {
		return "", fmt.Errorf("http vector db get: %w", err)
	}
	defer resp.Body.Close()

	var parsed httpGetResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("http vector db get: decode response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return "", nil
	}
	return parsed.Data[0].Value, nil
}

type httpSearchRequest struct {
	CollectionName string      `json:"collectionName"`
	Data           [][]float32 `json:"data"`
	Limit          int         `json:"limit"`
	OutputFields   []string    `json:"outputFields"`
}

type httpSearchResponse struct {
	Data []struct {
		Value    string  `json:"value"`
		Distance float64 `json:"distance"`
	} `json:"data"`
}

// QuerySimilar searches the collection for the closest vectors to query,
// filtering client-side by threshold since this API reports distance, not a
// normalized similarity score, and returns up to 10 values.
func (p *HTTPProvider) QuerySimilar(ctx context.Context, query []float32, threshold float64) ([]string, error) {
	body, err := json.Marshal(httpSearchRequest{
		CollectionName: p.collection,
		Data:           [][]float32{query},
		Limit:          MaxResults,
		OutputFields:   []string{"value"},
	})
	if err != nil {
		return nil, err
	}
	resp, err := p.post(ctx, "/v2/vectordb/entities/search", body)
	if err != nil {
		return nil, fmt.Errorf("http vector db search: %w", err)
	}
	defer resp.Body.Close()

	var parsed httpSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("http vector db search: decode response: %w", err)
	}

	var out []string
	for _, item := range parsed.Data {
		similarity := 1.0 - item.Distance
		if similarity >= threshold {
			out = append(out, item.Value)
		}
	}
	if len(out) > MaxResults {
		out = out[:MaxResults]
	}
	return out, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(msg))
	}
	return resp, nil
}
