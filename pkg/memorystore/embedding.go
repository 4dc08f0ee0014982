package memorystore

import (
	"encoding/json"
	"math"
	"sort"
	"strings"

	"github.com/phoenixvc/cognitive-mesh-sub003/internal/logging"
)

// isEmbeddingKey treats a key as carrying an embedding if it contains
// "embedding", case insensitive. Parse failures against a matching key are
// warnings, never fatal.
func isEmbeddingKey(key string) bool {
	return strings.Contains(strings.ToLower(key), "embedding")
}

// EmbeddingParser decodes the embedding wire format (a JSON array of
// IEEE-754 floats) out of a ContextEntry's value string.
type EmbeddingParser struct {
	Logger logging.Logger
}

// NewEmbeddingParser builds a parser that logs decode failures to logger.
// A nil logger is replaced with a no-op sink.
func NewEmbeddingParser(logger logging.Logger) EmbeddingParser {
	if logger == nil {
		logger = logging.NewNoop()
	}
	return EmbeddingParser{Logger: logger}
}

// TryParse attempts to decode value as a JSON array of floats. It returns
// (vector, true) on success. A vector that decodes to zero length is
// treated as absent. On any failure it logs a warning and returns
// (nil, false) — never an error.
func (p EmbeddingParser) TryParse(value string) ([]float32, bool) {
	var raw []float32
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		p.Logger.Warn("failed to parse embedding value as JSON float array", logging.Fields{
			"error": err.Error(),
		})
		return nil, false
	}
	if len(raw) == 0 {
		return nil, false
	}
	return raw, true
}

// CosineSimilarity computes dot(a,b) / (||a|| * ||b||). Unequal-length
// vectors and zero-norm vectors both yield 0, never an error.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// scored pairs a stored value with its similarity to a query vector, used
// by every backend that ranks results in application code.
type scored struct {
	value      string
	similarity float64
	seq        int // position in the order the backend gathered candidates; not read by rankTopN
}

// rankTopN filters candidates by threshold, sorts by similarity descending,
// and caps the result at MaxResults. The sort is stable, so candidates with
// equal similarity keep the order they were passed in. That order is the
// backend's scan order (map iteration for InMemoryStore, created_at for
// EmbeddedFileStore, key order for EmbeddedDocumentStore, cursor order for
// DocumentServiceStore), which is not insertion order in general. It is the
// shared tail of every in-code QuerySimilar implementation in this package
// (InMemoryStore, EmbeddedFileStore, EmbeddedDocumentStore,
// DocumentServiceStore); pkg/vectorsearch keeps its own copy.
func rankTopN(candidates []scored, threshold float64) []string {
	var filtered []scored
	for _, c := range candidates {
		if c.similarity >= threshold {
			filtered = append(filtered, c)
		}
	}
	// SliceStable preserves the incoming order among equal similarities.
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].similarity > filtered[j].similarity
	})
	if len(filtered) > MaxResults {
		filtered = filtered[:MaxResults]
	}
	out := make([]string, len(filtered))
	for i, c := range filtered {
		out[i] = c.value
	}
	return out
}
