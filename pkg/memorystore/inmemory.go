package memorystore

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/phoenixvc/cognitive-mesh-sub003/internal/logging"
)

// InMemoryStore is the reference MemoryStore implementation: two maps keyed
// by composite key, one for values and one for embeddings. It has no
// durability and is primarily used as the cache half of a HybridStore and
// as the store under test for universal MemoryStore properties.
type InMemoryStore struct {
	logger logging.Logger
	parser EmbeddingParser
	keys   KeyFormatter

	mu         sync.RWMutex
	values     map[string]string
	embeddings map[string][][]float32 // composite key -> append-only history
	seq        int
	initGuard  initGuard
}

// NewInMemoryStore constructs an empty InMemoryStore. A nil logger is
// replaced with a no-op sink.
func NewInMemoryStore(logger logging.Logger) *InMemoryStore {
	if logger == nil {
		logger = logging.NewNoop()
	}
	return &InMemoryStore{
		logger:     logger,
		parser:     NewEmbeddingParser(logger),
		values:     make(map[string]string),
		embeddings: make(map[string][][]float32),
	}
}

// Initialize is a no-op beyond the first call: there is no schema to
// create.
func (s *InMemoryStore) Initialize(ctx context.Context) error {
	return s.initGuard.do(func() error {
		s.logger.Info("in-memory store initialized", nil)
		return nil
	})
}

// Save unconditionally upserts the value and, if key looks like an
// embedding, parses and appends it to that key's embedding history.
func (s *InMemoryStore) Save(ctx context.Context, sessionID, key, value string) error {
	s.logger.Debug("save", logging.Fields{"sessionId": sessionID, "key": key})
	composite := s.keys.Format(sessionID, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[composite] = value

	if isEmbeddingKey(key) {
		if vec, ok := s.parser.TryParse(value); ok {
			s.embeddings[composite] = append(s.embeddings[composite], vec)
		}
	}
	return nil
}

// Get returns the stored value for (sessionID, key), or "" if absent.
func (s *InMemoryStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	s.logger.Debug("get", logging.Fields{"sessionId": sessionID, "key": key})
	composite := s.keys.Format(sessionID, key)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[composite], nil
}

// QuerySimilar scans every stored embedding, scores it against the query
// vector by cosine similarity, and returns up to 10 associated values above
// threshold, most similar first.
func (s *InMemoryStore) QuerySimilar(ctx context.Context, embeddingJSON string, threshold float64) ([]string, error) {
	var query []float32
	if err := json.Unmarshal([]byte(embeddingJSON), &query); err != nil || len(query) == 0 {
		return nil, nil
	}
	s.logger.Debug("query_similar", logging.Fields{"threshold": threshold})

	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []scored
	seq := 0
	for composite, history := range s.embeddings {
		value, ok := s.values[composite]
		if !ok {
			continue
		}
		best := 0.0
		for _, vec := range history {
			if sim := CosineSimilarity(query, vec); sim > best {
				best = sim
			}
		}
		candidates = append(candidates, scored{value: value, similarity: best, seq: seq})
		seq++
	}
	return rankTopN(candidates, threshold), nil
}

// Clear removes all stored values and embeddings. Exposed for test
// determinism and for hybrid fallback-read scenarios that force the cache
// child empty.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	s.embeddings = make(map[string][][]float32)
}

// Count returns the number of distinct (sessionID, key) pairs stored.
func (s *InMemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
