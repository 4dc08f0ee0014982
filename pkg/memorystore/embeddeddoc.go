package memorystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/phoenixvc/cognitive-mesh-sub003/internal/logging"
)

// badgerLogger adapts the mesh Logger to badger's Logger interface,
// suppressing badger's chatty debug/info output the same way the pack's
// badger-backed stores do.
type badgerLogger struct {
	logger logging.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error("badger", nil, logging.Fields{"message": fmt.Sprintf(f, v...)})
}
func (l badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn("badger", logging.Fields{"message": fmt.Sprintf(f, v...)})
}
func (badgerLogger) Infof(string, ...interface{})  {}
func (badgerLogger) Debugf(string, ...interface{}) {}

// EmbeddedDocumentStore is the single-process, schemaless MemoryStore:
// BadgerDB as an embedded key-value engine standing in for an embedded
// document database, with two logical collections distinguished by key
// prefix.
type EmbeddedDocumentStore struct {
	dirPath   string
	logger    logging.Logger
	parser    EmbeddingParser
	keys      KeyFormatter
	initGuard initGuard

	db *badger.DB
}

const (
	docPrefixContext   = "ctx:"
	docPrefixEmbedding = "emb:"
)

// embeddedEmbeddingRecord is the document shape stored under the embedding
// collection prefix.
type embeddedEmbeddingRecord struct {
	Vector []float32 `json:"vector"`
}

// NewEmbeddedDocumentStore constructs a store backed by a BadgerDB
// directory at dirPath.
func NewEmbeddedDocumentStore(dirPath string, logger logging.Logger) *EmbeddedDocumentStore {
	if logger == nil {
		logger = logging.NewNoop()
	}
	return &EmbeddedDocumentStore{
		dirPath: dirPath,
		logger:  logger,
		parser:  NewEmbeddingParser(logger),
	}
}

// Initialize opens the BadgerDB directory, creating it on first use.
func (s *EmbeddedDocumentStore) Initialize(ctx context.Context) error {
	return s.initGuard.do(func() error {
		opts := badger.DefaultOptions(s.dirPath).WithLogger(badgerLogger{logger: s.logger})
		db, err := badger.Open(opts)
		if err != nil {
			return &InitializationError{Backend: "embeddedDoc", Err: err}
		}
		s.db = db
		s.logger.Info("embedded document store initialized", logging.Fields{"dir": s.dirPath})
		return nil
	})
}

// Save upserts the context document and, when key looks like an embedding,
// upserts a companion embedding document under the same composite key.
func (s *EmbeddedDocumentStore) Save(ctx context.Context, sessionID, key, value string) error {
	composite := s.keys.Format(sessionID, key)

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(docPrefixContext+composite), []byte(value)); err != nil {
			return err
		}
		if isEmbeddingKey(key) {
			if vec, ok := s.parser.TryParse(value); ok {
				raw, err := json.Marshal(embeddedEmbeddingRecord{Vector: vec})
				if err != nil {
					return err
				}
				if err := txn.Set([]byte(docPrefixEmbedding+composite), raw); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return &BackendIOError{Backend: "embeddedDoc", Operation: "save", Err: err}
	}
	return nil
}

// Get returns the stored context document's value, or "" if absent.
func (s *EmbeddedDocumentStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	composite := s.keys.Format(sessionID, key)

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(docPrefixContext + composite))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", &BackendIOError{Backend: "embeddedDoc", Operation: "get", Err: err}
	}
	return string(value), nil
}

// QuerySimilar scans the embedding collection, scores each document against
// the query vector by cosine similarity, and returns up to 10 associated
// context values above threshold, most similar first.
func (s *EmbeddedDocumentStore) QuerySimilar(ctx context.Context, embeddingJSON string, threshold float64) ([]string, error) {
	var query []float32
	if err := json.Unmarshal([]byte(embeddingJSON), &query); err != nil || len(query) == 0 {
		return nil, nil
	}

	var candidates []scored
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(docPrefixEmbedding)
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		seq := 0
		for it.Seek(iterOpts.Prefix); it.ValidForPrefix(iterOpts.Prefix); it.Next() {
			item := it.Item()
			composite := string(item.KeyCopy(nil)[len(docPrefixEmbedding):])

			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			var record embeddedEmbeddingRecord
			if err := json.Unmarshal(raw, &record); err != nil {
				s.logger.Warn("failed to parse stored embedding document", logging.Fields{"key": composite, "error": err.Error()})
				continue
			}

			contextItem, err := txn.Get([]byte(docPrefixContext + composite))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			value, err := contextItem.ValueCopy(nil)
			if err != nil {
				return err
			}

			candidates = append(candidates, scored{
				value:      string(value),
				similarity: CosineSimilarity(query, record.Vector),
				seq:        seq,
			})
			seq++
		}
		return nil
	})
	if err != nil {
		return nil, &BackendIOError{Backend: "embeddedDoc", Operation: "query_similar", Err: err}
	}

	return rankTopN(candidates, threshold), nil
}

// Close releases the underlying BadgerDB handle.
func (s *EmbeddedDocumentStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
