package memorystore

import (
	"context"
	"encoding/json"

	"github.com/phoenixvc/cognitive-mesh-sub003/internal/logging"
	"github.com/phoenixvc/cognitive-mesh-sub003/pkg/vectorsearch"
)

// CacheStore is a MemoryStore that holds no storage logic of its own: it
// formats composite keys and detects embedding payloads, then delegates
// every read, write, and similarity query to a vectorsearch.Provider. This
// is what lets any vectorsearch.Provider implementation stand in as either the
// cache half of a HybridStore or a standalone MemoryStore.
type CacheStore struct {
	provider  vectorsearch.Provider
	logger    logging.Logger
	parser    EmbeddingParser
	keys      KeyFormatter
	initGuard initGuard
}

// NewCacheStore constructs a CacheStore around provider.
func NewCacheStore(provider vectorsearch.Provider, logger logging.Logger) *CacheStore {
	if logger == nil {
		logger = logging.NewNoop()
	}
	return &CacheStore{
		provider: provider,
		logger:   logger,
		parser:   NewEmbeddingParser(logger),
	}
}

// Initialize delegates to the provider's own index/collection setup.
func (s *CacheStore) Initialize(ctx context.Context) error {
	return s.initGuard.do(func() error {
		if err := s.provider.Initialize(ctx); err != nil {
			return &InitializationError{Backend: "cache", Err: err}
		}
		s.logger.Info("cache store initialized", nil)
		return nil
	})
}

// Save formats the composite key, parses an embedding when key looks like
// one, and hands both to the provider in a single document.
func (s *CacheStore) Save(ctx context.Context, sessionID, key, value string) error {
	composite := s.keys.Format(sessionID, key)
	doc := vectorsearch.Document{CompositeKey: composite, Value: value}

	if isEmbeddingKey(key) {
		if vec, ok := s.parser.TryParse(value); ok {
			doc.Vector = vec
		}
	}

	if err := s.provider.SaveDocument(ctx, doc); err != nil {
		return &BackendIOError{Backend: "cache", Operation: "save", Err: err}
	}
	return nil
}

// Get returns the provider's stored value for the composite key, or "" if
// absent.
func (s *CacheStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	composite := s.keys.Format(sessionID, key)
	value, err := s.provider.GetDocumentValue(ctx, composite)
	if err != nil {
		return "", &BackendIOError{Backend: "cache", Operation: "get", Err: err}
	}
	return value, nil
}

// QuerySimilar decodes the query vector and delegates ranking entirely to
// the provider.
func (s *CacheStore) QuerySimilar(ctx context.Context, embeddingJSON string, threshold float64) ([]string, error) {
	var query []float32
	if err := json.Unmarshal([]byte(embeddingJSON), &query); err != nil || len(query) == 0 {
		return nil, nil
	}
	results, err := s.provider.QuerySimilar(ctx, query, threshold)
	if err != nil {
		return nil, &BackendIOError{Backend: "cache", Operation: "query_similar", Err: err}
	}
	return results, nil
}
