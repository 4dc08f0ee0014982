package memorystore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/phoenixvc/cognitive-mesh-sub003/internal/logging"
	"github.com/phoenixvc/cognitive-mesh-sub003/pkg/vectorsearch"
)

// relationalSchemaLockID is an arbitrary, fixed advisory lock key. Holding
// it for the duration of schema creation lets many RelationalVectorStore
// instances race to initialize the same database without double-running
// DDL or tripping over each other's CREATE INDEX.
const relationalSchemaLockID = 0x6d65736858 // "meshX" in hex-ish, just a constant

// RelationalVectorStore is the durable, SQL-native MemoryStore backed by
// PostgreSQL with the pgvector extension. Its Provider-shaped behavior for a
// CacheStore or HybridStore is exposed separately through RelationalProvider,
// since Go won't let a single type carry both MemoryStore's
// QuerySimilar(ctx, string, float64) and vectorsearch.Provider's
// QuerySimilar(ctx, []float32, float64) under the same method name.
type RelationalVectorStore struct {
	pool      *pgxpool.Pool
	dsn       string
	dimension int
	logger    logging.Logger
	parser    EmbeddingParser
	keys      KeyFormatter
	initGuard initGuard
}

// NewRelationalVectorStore constructs a store that will connect to dsn on
// first Initialize. dimension fixes the pgvector column width and is
// enforced on every embedding write.
func NewRelationalVectorStore(dsn string, dimension int, logger logging.Logger) *RelationalVectorStore {
	if logger == nil {
		logger = logging.NewNoop()
	}
	return &RelationalVectorStore{
		dsn:       dsn,
		dimension: dimension,
		logger:    logger,
		parser:    NewEmbeddingParser(logger),
	}
}

// Initialize opens the connection pool and creates the schema under a
// session-level advisory lock so concurrent processes don't race on DDL.
// HNSW index creation failure (e.g. pgvector extension too old) is logged
// and treated as non-fatal: cosine search still works via a full-table
// ORDER BY, just without the index's speedup.
func (s *RelationalVectorStore) Initialize(ctx context.Context) error {
	return s.initGuard.do(func() error {
		pool, err := pgxpool.New(ctx, s.dsn)
		if err != nil {
			return &InitializationError{Backend: "relational", Err: err}
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return &InitializationError{Backend: "relational", Err: err}
		}

		conn, err := pool.Acquire(ctx)
		if err != nil {
			pool.Close()
			return &InitializationError{Backend: "relational", Err: err}
		}
		defer conn.Release()

		if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", relationalSchemaLockID); err != nil {
			pool.Close()
			return &InitializationError{Backend: "relational", Err: fmt.Errorf("acquire schema lock: %w", err)}
		}
		defer conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", relationalSchemaLockID)

		if err := s.createSchema(ctx, conn.Conn()); err != nil {
			pool.Close()
			return &InitializationError{Backend: "relational", Err: err}
		}

		s.pool = pool
		s.logger.Info("relational vector store initialized", logging.Fields{"dimension": s.dimension})
		return nil
	})
}

func (s *RelationalVectorStore) createSchema(ctx context.Context, conn *pgx.Conn) error {
	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS mesh_context_entries (
			composite_key TEXT PRIMARY KEY,
			session_id    TEXT NOT NULL,
			key           TEXT NOT NULL,
			value         TEXT NOT NULL,
			embedding     VECTOR(%d),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_mesh_context_session ON mesh_context_entries(session_id);
	`, s.dimension)
	if _, err := conn.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	_, err := conn.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_mesh_context_embedding_hnsw
		ON mesh_context_entries USING hnsw (embedding vector_cosine_ops)
	`)
	if err != nil {
		s.logger.Warn("HNSW index creation failed, queries will fall back to a full scan", logging.Fields{"error": err.Error()})
	}
	return nil
}

// Save upserts the context entry. When key looks like an embedding and it
// parses, the embedding column is set too; a dimension mismatch rejects
// only the embedding column, the value column is written regardless.
func (s *RelationalVectorStore) Save(ctx context.Context, sessionID, key, value string) error {
	composite := s.keys.Format(sessionID, key)

	var vec *pgvector.Vector
	if isEmbeddingKey(key) {
		if parsed, ok := s.parser.TryParse(value); ok {
			vec = s.vectorOrNil(composite, parsed)
		}
	}
	return s.upsertRow(ctx, composite, sessionID, key, value, vec)
}

// vectorOrNil returns a pgvector.Vector for parsed, or nil (with a warning
// logged against label) when parsed doesn't match the store's configured
// dimension. The value column is still written by the caller regardless.
func (s *RelationalVectorStore) vectorOrNil(label string, parsed []float32) *pgvector.Vector {
	if len(parsed) != s.dimension {
		s.logger.Warn("embedding dimension mismatch, storing value without embedding", logging.Fields{
			"key": label, "expected": s.dimension, "got": len(parsed),
		})
		return nil
	}
	v := pgvector.NewVector(parsed)
	return &v
}

func (s *RelationalVectorStore) upsertRow(ctx context.Context, compositeKey, sessionID, key, value string, vec *pgvector.Vector) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO mesh_context_entries (composite_key, session_id, key, value, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (composite_key) DO UPDATE SET
			value = excluded.value,
			embedding = COALESCE(excluded.embedding, mesh_context_entries.embedding),
			updated_at = excluded.updated_at
	`, compositeKey, sessionID, key, value, vec)
	if err != nil {
		return &BackendIOError{Backend: "relational", Operation: "save", Err: err}
	}
	return nil
}

// Get returns the stored value, or "" if the composite key is absent.
func (s *RelationalVectorStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	return s.valueByCompositeKey(ctx, s.keys.Format(sessionID, key))
}

func (s *RelationalVectorStore) valueByCompositeKey(ctx context.Context, compositeKey string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, "SELECT value FROM mesh_context_entries WHERE composite_key = $1", compositeKey).Scan(&value)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", &BackendIOError{Backend: "relational", Operation: "get", Err: err}
	}
	return value, nil
}

// QuerySimilar uses pgvector's native cosine-distance operator to rank rows
// server-side and returns up to 10 values above threshold, most similar
// first.
func (s *RelationalVectorStore) QuerySimilar(ctx context.Context, embeddingJSON string, threshold float64) ([]string, error) {
	var query []float32
	if err := json.Unmarshal([]byte(embeddingJSON), &query); err != nil {
		return nil, nil
	}
	return s.querySimilarVec(ctx, query, threshold)
}

func (s *RelationalVectorStore) querySimilarVec(ctx context.Context, query []float32, threshold float64) ([]string, error) {
	if len(query) == 0 || len(query) != s.dimension {
		return nil, nil
	}

	vec := pgvector.NewVector(query)
	// 1 - cosine_distance == cosine_similarity; filtering on distance lets
	// the HNSW index (when present) drive the ORDER BY directly.
	rows, err := s.pool.Query(ctx, `
		SELECT value, 1 - (embedding <=> $1) AS similarity
		FROM mesh_context_entries
		WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3
	`, vec, threshold, MaxResults)
	if err != nil {
		return nil, &BackendIOError{Backend: "relational", Operation: "query_similar", Err: err}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var value string
		var similarity float64
		if err := rows.Scan(&value, &similarity); err != nil {
			return nil, &BackendIOError{Backend: "relational", Operation: "query_similar", Err: err}
		}
		out = append(out, value)
	}
	if err := rows.Err(); err != nil {
		return nil, &BackendIOError{Backend: "relational", Operation: "query_similar", Err: err}
	}
	return out, nil
}

// Close releases the connection pool.
func (s *RelationalVectorStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// RelationalProvider adapts a RelationalVectorStore to vectorsearch.Provider
// so pgvector can also sit behind a CacheStore or HybridStore as the
// delegated vector-search backend, not just serve as a standalone
// persistent MemoryStore. It owns its own connection rather than sharing
// one with any relational MemoryStore the same process happens to run.
type RelationalProvider struct {
	store *RelationalVectorStore
}

// NewRelationalProvider constructs a Provider-shaped wrapper around a fresh
// RelationalVectorStore connecting to dsn.
func NewRelationalProvider(dsn string, dimension int, logger logging.Logger) *RelationalProvider {
	return &RelationalProvider{store: NewRelationalVectorStore(dsn, dimension, logger)}
}

// Initialize opens the pool and creates the schema, same as
// RelationalVectorStore.Initialize.
func (p *RelationalProvider) Initialize(ctx context.Context) error {
	return p.store.Initialize(ctx)
}

// SaveDocument upserts doc, splitting its composite key back into the
// session_id/key columns the schema keeps for filtering and diagnostics.
func (p *RelationalProvider) SaveDocument(ctx context.Context, doc vectorsearch.Document) error {
	sessionID, key, ok := splitCompositeKey(doc.CompositeKey)
	if !ok {
		return &BackendIOError{Backend: "relational", Operation: "save_document", Err: fmt.Errorf("malformed composite key %q", doc.CompositeKey)}
	}
	var vec *pgvector.Vector
	if len(doc.Vector) > 0 {
		vec = p.store.vectorOrNil(doc.CompositeKey, doc.Vector)
	}
	return p.store.upsertRow(ctx, doc.CompositeKey, sessionID, key, doc.Value, vec)
}

// GetDocumentValue returns the stored value for compositeKey, or "" if absent.
func (p *RelationalProvider) GetDocumentValue(ctx context.Context, compositeKey string) (string, error) {
	return p.store.valueByCompositeKey(ctx, compositeKey)
}

// QuerySimilar ranks stored vectors against query using the same native
// pgvector cosine-distance query RelationalVectorStore.QuerySimilar runs.
func (p *RelationalProvider) QuerySimilar(ctx context.Context, query []float32, threshold float64) ([]string, error) {
	return p.store.querySimilarVec(ctx, query, threshold)
}

// ConnectionStats reports the pgx pool's current sizing. Before Initialize
// has run, only Backend is set.
func (s *RelationalVectorStore) ConnectionStats() ConnectionStats {
	if s.pool == nil {
		return ConnectionStats{Backend: "relational"}
	}
	stat := s.pool.Stat()
	return ConnectionStats{
		Backend:    "relational",
		OpenConns:  int(stat.TotalConns()),
		InUseConns: int(stat.AcquiredConns()),
		IdleConns:  int(stat.IdleConns()),
	}
}
