// Package vectorsearch defines the contract a delegated vector-search
// backend must satisfy so a cache-fronted MemoryStore can push similarity
// queries down into whatever index engine actually owns the vectors. It has
// no dependency on pkg/memorystore; pkg/memorystore imports this package
// instead, both for its own providers (e.g. RelationalProvider) and to type
// the Provider it hands to CacheStore.
package vectorsearch

import "context"

// Document is a single (composite key, value, vector) record handed to a
// Provider for storage. Fields carries additional metadata for a provider
// to index or filter on; none of the providers in this module reads it.
type Document struct {
	CompositeKey string
	Value        string
	Vector       []float32
	Fields       map[string]string
}

// Provider is implemented by every delegated vector-search backend: a
// cache-native engine speaking RediSearch-style commands, a dedicated
// vector database reached over gRPC, an HTTP vector database, or an
// AI-native HTTP service.
type Provider interface {
	// Initialize prepares the provider's index (collection, schema) for use.
	// Implementations must be safe to call once per process lifetime; the
	// caller does not guarantee serialization on its own.
	Initialize(ctx context.Context) error

	// SaveDocument upserts a document's value and, when vector is non-empty,
	// its embedding.
	SaveDocument(ctx context.Context, doc Document) error

	// GetDocumentValue returns the previously saved value for compositeKey,
	// or "" if absent.
	GetDocumentValue(ctx context.Context, compositeKey string) (string, error)

	// QuerySimilar returns up to 10 values whose stored vector is at least
	// threshold similar to query, most similar first.
	QuerySimilar(ctx context.Context, query []float32, threshold float64) ([]string, error)
}

// MaxResults mirrors pkg/memorystore's result cap so every provider
// implementation enforces the same bound without importing that package.
const MaxResults = 10
