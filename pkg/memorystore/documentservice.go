package memorystore

import (
	"context"
	"encoding/json"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/phoenixvc/cognitive-mesh-sub003/internal/logging"
)

// documentServiceRecord is the document shape stored in the cloud document
// service's context collection: a point-read-friendly "_id" equal to the
// composite key, plus an optional embedding array.
type documentServiceRecord struct {
	ID        string    `bson:"_id"`
	SessionID string    `bson:"sessionId"`
	Key       string    `bson:"key"`
	Value     string    `bson:"value"`
	Embedding []float32 `bson:"embedding,omitempty"`
}

// DocumentServiceStore is the cloud-managed NoSQL MemoryStore backed by a
// MongoDB-API document database. Point reads use "_id" directly; similarity
// search scans the collection and scores in application code, since the
// driver has no native vector index.
type DocumentServiceStore struct {
	uri        string
	database   string
	collection string
	logger     logging.Logger
	parser     EmbeddingParser
	keys       KeyFormatter
	initGuard  initGuard

	client *mongo.Client
	coll   *mongo.Collection
}

// NewDocumentServiceStore constructs a store that connects to uri on first
// Initialize, using database/collection as the context store location.
func NewDocumentServiceStore(uri, database, collection string, logger logging.Logger) *DocumentServiceStore {
	if logger == nil {
		logger = logging.NewNoop()
	}
	return &DocumentServiceStore{
		uri:        uri,
		database:   database,
		collection: collection,
		logger:     logger,
		parser:     NewEmbeddingParser(logger),
	}
}

// Initialize connects to the cluster and verifies reachability with a ping.
func (s *DocumentServiceStore) Initialize(ctx context.Context) error {
	return s.initGuard.do(func() error {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.uri))
		if err != nil {
			return &InitializationError{Backend: "documentService", Err: err}
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(ctx)
			return &InitializationError{Backend: "documentService", Err: err}
		}
		s.client = client
		s.coll = client.Database(s.database).Collection(s.collection)
		s.logger.Info("document service store initialized", logging.Fields{"database": s.database, "collection": s.collection})
		return nil
	})
}

// Save upserts the record by "_id" = composite key.
func (s *DocumentServiceStore) Save(ctx context.Context, sessionID, key, value string) error {
	composite := s.keys.Format(sessionID, key)

	record := documentServiceRecord{ID: composite, SessionID: sessionID, Key: key, Value: value}
	if isEmbeddingKey(key) {
		if vec, ok := s.parser.TryParse(value); ok {
			record.Embedding = vec
		}
	}

	_, err := s.coll.ReplaceOne(ctx, bson.M{"_id": composite}, record, options.Replace().SetUpsert(true))
	if err != nil {
		return &BackendIOError{Backend: "documentService", Operation: "save", Err: err}
	}
	return nil
}

// Get returns the stored value, or "" if the composite key is absent.
func (s *DocumentServiceStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	composite := s.keys.Format(sessionID, key)

	var record documentServiceRecord
	err := s.coll.FindOne(ctx, bson.M{"_id": composite}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return "", nil
	}
	if err != nil {
		return "", &BackendIOError{Backend: "documentService", Operation: "get", Err: err}
	}
	return record.Value, nil
}

// QuerySimilar scans every document carrying an embedding, scores it
// against the query vector by cosine similarity in application code, and
// returns up to 10 associated values above threshold, most similar first.
func (s *DocumentServiceStore) QuerySimilar(ctx context.Context, embeddingJSON string, threshold float64) ([]string, error) {
	var query []float32
	if err := json.Unmarshal([]byte(embeddingJSON), &query); err != nil || len(query) == 0 {
		return nil, nil
	}

	cursor, err := s.coll.Find(ctx, bson.M{"embedding": bson.M{"$exists": true, "$ne": bson.A{}}})
	if err != nil {
		return nil, &BackendIOError{Backend: "documentService", Operation: "query_similar", Err: err}
	}
	defer cursor.Close(ctx)

	var candidates []scored
	seq := 0
	for cursor.Next(ctx) {
		var record documentServiceRecord
		if err := cursor.Decode(&record); err != nil {
			return nil, &BackendIOError{Backend: "documentService", Operation: "query_similar", Err: err}
		}
		candidates = append(candidates, scored{
			value:      record.Value,
			similarity: CosineSimilarity(query, record.Embedding),
			seq:        seq,
		})
		seq++
	}
	if err := cursor.Err(); err != nil {
		return nil, &BackendIOError{Backend: "documentService", Operation: "query_similar", Err: err}
	}

	return rankTopN(candidates, threshold), nil
}

// Close disconnects the underlying client.
func (s *DocumentServiceStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
