package memorystore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/phoenixvc/cognitive-mesh-sub003/internal/logging"
)

//go:embed migrations/*.sql
var embeddedFileMigrations embed.FS

// EmbeddedFileStore is the single-process, file-backed MemoryStore: SQLite
// in WAL mode, schema managed by goose, embeddings scanned in application
// code since the driver carries no native vector type.
type EmbeddedFileStore struct {
	path      string
	logger    logging.Logger
	parser    EmbeddingParser
	keys      KeyFormatter
	initGuard initGuard

	db *sqlx.DB
}

// NewEmbeddedFileStore constructs a store backed by the SQLite file at path.
// The file is created on first Initialize if it does not exist.
func NewEmbeddedFileStore(path string, logger logging.Logger) *EmbeddedFileStore {
	if logger == nil {
		logger = logging.NewNoop()
	}
	return &EmbeddedFileStore{
		path:   path,
		logger: logger,
		parser: NewEmbeddingParser(logger),
	}
}

// Initialize opens the database, sets WAL mode, and runs goose migrations.
func (s *EmbeddedFileStore) Initialize(ctx context.Context) error {
	return s.initGuard.do(func() error {
		db, err := sqlx.Open("sqlite3", s.path)
		if err != nil {
			return &InitializationError{Backend: "embeddedFile", Err: err}
		}
		// A single writer connection avoids SQLITE_BUSY under WAL, at the
		// cost of serializing writes through one connection.
		db.SetMaxOpenConns(1)

		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return &InitializationError{Backend: "embeddedFile", Err: fmt.Errorf("set WAL mode: %w", err)}
		}
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
			db.Close()
			return &InitializationError{Backend: "embeddedFile", Err: fmt.Errorf("enable foreign keys: %w", err)}
		}

		goose.SetBaseFS(embeddedFileMigrations)
		if err := goose.SetDialect("sqlite3"); err != nil {
			db.Close()
			return &InitializationError{Backend: "embeddedFile", Err: err}
		}
		if err := goose.Up(db.DB, "migrations"); err != nil {
			db.Close()
			return &InitializationError{Backend: "embeddedFile", Err: fmt.Errorf("run migrations: %w", err)}
		}

		s.db = db
		s.logger.Info("embedded file store initialized", logging.Fields{"path": s.path})
		return nil
	})
}

// Save upserts the context entry and, when key looks like an embedding,
// upserts its parsed vector too. Both writes share a transaction, so a
// failed embedding write rolls back the context row as well. A value that
// does not parse as an embedding is still saved, without an embedding row.
func (s *EmbeddedFileStore) Save(ctx context.Context, sessionID, key, value string) error {
	composite := s.keys.Format(sessionID, key)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &BackendIOError{Backend: "embeddedFile", Operation: "save", Err: err}
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO context_entries (composite_key, session_id, key, value, updated_at)
		VALUES (?, ?, ?, ?, strftime('%s','now') * 1000)
		ON CONFLICT(composite_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, composite, sessionID, key, value)
	if err != nil {
		return &BackendIOError{Backend: "embeddedFile", Operation: "save", Err: err}
	}

	if isEmbeddingKey(key) {
		if vec, ok := s.parser.TryParse(value); ok {
			vecJSON, err := json.Marshal(vec)
			if err != nil {
				return &BackendIOError{Backend: "embeddedFile", Operation: "save", Err: err}
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO embeddings (composite_key, vector, created_at)
				VALUES (?, ?, strftime('%s','now') * 1000)
				ON CONFLICT(composite_key) DO UPDATE SET vector = excluded.vector, created_at = excluded.created_at
			`, composite, string(vecJSON))
			if err != nil {
				return &BackendIOError{Backend: "embeddedFile", Operation: "save", Err: err}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return &BackendIOError{Backend: "embeddedFile", Operation: "save", Err: err}
	}
	return nil
}

// Get returns the stored value, or "" if the composite key is absent.
func (s *EmbeddedFileStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	composite := s.keys.Format(sessionID, key)

	var value string
	err := s.db.GetContext(ctx, &value, "SELECT value FROM context_entries WHERE composite_key = ?", composite)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &BackendIOError{Backend: "embeddedFile", Operation: "get", Err: err}
	}
	return value, nil
}

// QuerySimilar scans the embeddings table, scores each vector against the
// query by cosine similarity in application code, and returns up to 10
// associated context values above threshold, most similar first.
func (s *EmbeddedFileStore) QuerySimilar(ctx context.Context, embeddingJSON string, threshold float64) ([]string, error) {
	var query []float32
	if err := json.Unmarshal([]byte(embeddingJSON), &query); err != nil || len(query) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT e.composite_key, e.vector, c.value
		FROM embeddings e
		JOIN context_entries c ON c.composite_key = e.composite_key
		ORDER BY e.created_at ASC
	`)
	if err != nil {
		return nil, &BackendIOError{Backend: "embeddedFile", Operation: "query_similar", Err: err}
	}
	defer rows.Close()

	var candidates []scored
	seq := 0
	for rows.Next() {
		var compositeKey, vectorJSON, value string
		if err := rows.Scan(&compositeKey, &vectorJSON, &value); err != nil {
			return nil, &BackendIOError{Backend: "embeddedFile", Operation: "query_similar", Err: err}
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vectorJSON), &vec); err != nil {
			s.logger.Warn("failed to parse stored embedding", logging.Fields{"key": compositeKey, "error": err.Error()})
			continue
		}
		candidates = append(candidates, scored{value: value, similarity: CosineSimilarity(query, vec), seq: seq})
		seq++
	}
	if err := rows.Err(); err != nil {
		return nil, &BackendIOError{Backend: "embeddedFile", Operation: "query_similar", Err: err}
	}

	return rankTopN(candidates, threshold), nil
}

// Close releases the underlying database handle.
func (s *EmbeddedFileStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ConnectionStats reports the pool sizing and the applied migration version.
// Before Initialize has run, only Backend is set.
func (s *EmbeddedFileStore) ConnectionStats() ConnectionStats {
	if s.db == nil {
		return ConnectionStats{Backend: "embeddedFile"}
	}
	dbStats := s.db.Stats()
	version, err := goose.GetDBVersion(s.db.DB)
	if err != nil {
		s.logger.Warn("failed to read migration version", logging.Fields{"error": err.Error()})
	}
	return ConnectionStats{
		Backend:        "embeddedFile",
		OpenConns:      dbStats.OpenConnections,
		InUseConns:     dbStats.InUse,
		IdleConns:      dbStats.Idle,
		MigrationsUpTo: version,
	}
}
