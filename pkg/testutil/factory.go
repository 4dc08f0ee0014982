// Package testutil centralizes test data construction for the memory store
// and vector search test suites.
package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

const (
	DefaultSessionID    = "session-1"
	DefaultContextKey   = "profile"
	DefaultEmbeddingKey = "profile_embedding"
)

// TestDataFactory centralizes construction of sessions, context values, and
// embeddings shared across the memory store and vector search test suites.
type TestDataFactory struct{}

// NewTestDataFactory constructs a TestDataFactory.
func NewTestDataFactory() *TestDataFactory {
	return &TestDataFactory{}
}

// NewSessionID returns a fresh random session identifier.
func (f *TestDataFactory) NewSessionID() string {
	return uuid.New().String()
}

// ContextValue returns a small JSON blob suitable for a non-embedding
// context entry.
func (f *TestDataFactory) ContextValue(label string) string {
	return fmt.Sprintf(`{"label":%q}`, label)
}

// Embedding returns a dimension-length vector whose values are derived
// deterministically from seed, so two calls with the same seed produce
// identical vectors. The values follow a pattern with period 7: seeds equal
// modulo 7 give identical vectors, and other seeds give shifted copies of
// the pattern. All components are positive, so any two of these vectors
// have a clearly positive cosine similarity.
func (f *TestDataFactory) Embedding(seed int, dimension int) []float32 {
	vec := make([]float32, dimension)
	for i := range vec {
		vec[i] = float32((seed+i)%7) + 0.1
	}
	return vec
}

// EmbeddingJSON marshals Embedding's output into the wire format the store
// expects in a context value.
func (f *TestDataFactory) EmbeddingJSON(seed int, dimension int) string {
	raw, err := json.Marshal(f.Embedding(seed, dimension))
	if err != nil {
		panic(err)
	}
	return string(raw)
}
