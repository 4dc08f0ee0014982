package vectorsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/itchyny/gojq"

	"github.com/phoenixvc/cognitive-mesh-sub003/internal/logging"
)

// AINativeProvider delegates vector search to an AI-native HTTP vector
// store (Chroma-style): collections are created with an "hnsw:space":
// "cosine" metadata hint, and result fields are pulled out of the
// heterogeneous JSON payload with a jq expression rather than a fixed
// struct tag, since different AI-native backends nest the value field
// differently.
type AINativeProvider struct {
	endpoint   string
	collection string
	apiKey     string
	valueJQ    *gojq.Query
	httpClient *http.Client
	logger     logging.Logger
}

// defaultValueJQExpr extracts ".documents[0]", the list of document texts
// for the first query embedding in the shape Chroma's query endpoint
// returns.
const defaultValueJQExpr = ".documents[0]"

// NewAINativeProvider constructs a provider against endpoint using apiKey
// as a bearer token. valueJQExpr selects the value field out of a query
// response; an empty string uses defaultValueJQExpr.
func NewAINativeProvider(endpoint, collection, apiKey, valueJQExpr string, logger logging.Logger) (*AINativeProvider, error) {
	if logger == nil {
		logger = logging.NewNoop()
	}
	if valueJQExpr == "" {
		valueJQExpr = defaultValueJQExpr
	}
	query, err := gojq.Parse(valueJQExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid value jq expression %q: %w", valueJQExpr, err)
	}
	return &AINativeProvider{
		endpoint:   endpoint,
		collection: collection,
		apiKey:     apiKey,
		valueJQ:    query,
		httpClient: &http.Client{},
		logger:     logger,
	}, nil
}

type aiCreateCollectionRequest struct {
	Name     string            `json:"name"`
	Metadata map[string]string `json:"metadata"`
}

// Initialize creates the collection with "hnsw:space": "cosine" metadata.
// Any failed create request, "already exists" included, is logged as a
// warning and does not fail Initialize.
func (p *AINativeProvider) Initialize(ctx context.Context) error {
	body, err := json.Marshal(aiCreateCollectionRequest{
		Name:     p.collection,
		Metadata: map[string]string{"hnsw:space": "cosine"},
	})
	if err != nil {
		return err
	}
	resp, err := p.post(ctx, "/api/v1/collections", body)
	if err != nil {
		p.logger.Warn("ai-native collection create failed, assuming it already exists", logging.Fields{"error": err.Error()})
		return nil
	}
	defer resp.Body.Close()
	return nil
}

type aiAddRequest struct {
	IDs       []string    `json:"ids"`
	Documents []string    `json:"documents"`
	Embeddings [][]float32 `json:"embeddings,omitempty"`
}

// SaveDocument upserts a document into the collection via the upsert endpoint.
func (p *AINativeProvider) SaveDocument(ctx context.Context, doc Document) error {
	req := aiAddRequest{
		IDs:       []string{doc.CompositeKey},
		Documents: []string{doc.Value},
	}
	if len(doc.Vector) > 0 {
		req.Embeddings = [][]float32{doc.Vector}
	}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := p.post(ctx, fmt.Sprintf("/api/v1/collections/%s/upsert", p.collection), body)
	if err != nil {
		return fmt.Errorf("ai-native upsert: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

type aiGetRequest struct {
	IDs []string `json:"ids"`
}

type aiGetResponse struct {
	Documents []string `json:"documents"`
}

// GetDocumentValue fetches a document by ID.
func (p *AINativeProvider) GetDocumentValue(ctx context.Context, compositeKey string) (string, error) {
	body, err := json.Marshal(aiGetRequest{IDs: []string{compositeKey}})
	if err != nil {
		return "", err
	}
	resp, err := p.post(ctx, fmt.Sprintf("/api/v1/collections/%s/get", p.collection), body)
	if err != nil {
		return "", fmt.Errorf("ai-native get: %w", err)
	}
	defer resp.Body.Close()

	var parsed aiGetResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("ai-native get: decode response: %w", err)
	}
	if len(parsed.Documents) == 0 {
		return "", nil
	}
	return parsed.Documents[0], nil
}

type aiQueryRequest struct {
	QueryEmbeddings [][]float32 `json:"query_embeddings"`
	NResults        int         `json:"n_results"`
}

// QuerySimilar queries the collection for nearest neighbors and extracts
// the value from each hit's document payload via the configured jq
// expression, filtering by threshold converted from the reported distance.
func (p *AINativeProvider) QuerySimilar(ctx context.Context, query []float32, threshold float64) ([]string, error) {
	body, err := json.Marshal(aiQueryRequest{
		QueryEmbeddings: [][]float32{query},
		NResults:        MaxResults,
	})
	if err != nil {
		return nil, err
	}
	resp, err := p.post(ctx, fmt.Sprintf("/api/v1/collections/%s/query", p.collection), body)
	if err != nil {
		return nil, fmt.Errorf("ai-native query: %w", err)
	}
	defer resp.Body.Close()

	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("ai-native query: decode response: %w", err)
	}

	distances, _ := raw["distances"].([]interface{})
	var rowDistances []interface{}
	if len(distances) > 0 {
		rowDistances, _ = distances[0].([]interface{})
	}

	iter := p.valueJQ.Run(raw)
	var out []string
	idx := 0
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			p.logger.Warn("jq extraction failed on ai-native query response", logging.Fields{"error": err.Error()})
			break
		}
		values, ok := v.([]interface{})
		if !ok {
			break
		}
		for i, item := range values {
			value, ok := item.(string)
			if !ok {
				continue
			}
			similarity := 1.0
			if i < len(rowDistances) {
				if d, ok := rowDistances[i].(float64); ok {
					similarity = 1.0 - d
				}
			}
			if similarity >= threshold {
				out = append(out, value)
			}
			idx++
		}
	}
	if len(out) > MaxResults {
		out = out[:MaxResults]
	}
	return out, nil
}

func (p *AINativeProvider) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}
