package vectorsearch

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/phoenixvc/cognitive-mesh-sub003/internal/logging"
)

// QdrantProvider delegates vector search to a dedicated vector database
// reached over gRPC. Point IDs are deterministic UUIDv5s derived from the
// composite key so repeated saves upsert rather than duplicate.
type QdrantProvider struct {
	points     qdrant.PointsClient
	collection qdrant.CollectionsClient
	collName   string
	dimension  int
	logger     logging.Logger
}

// NewQdrantProvider constructs a provider against already-dialed gRPC
// clients for the points and collections services.
func NewQdrantProvider(points qdrant.PointsClient, collections qdrant.CollectionsClient, collectionName string, dimension int, logger logging.Logger) *QdrantProvider {
	if logger == nil {
		logger = logging.NewNoop()
	}
	return &QdrantProvider{points: points, collection: collections, collName: collectionName, dimension: dimension, logger: logger}
}

// Initialize creates the collection with a cosine-distance HNSW index if it
// does not already exist.
func (p *QdrantProvider) Initialize(ctx context.Context) error {
	_, err := p.collection.Create(ctx, &qdrant.CreateCollection{
		CollectionName: p.collName,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(p.dimension),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		p.logger.Warn("qdrant collection create failed, assuming it already exists", logging.Fields{"error": err.Error()})
	}
	return nil
}

func qdrantPointID(compositeKey string) *qdrant.PointId {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("mesh-memory:"+compositeKey)).String()
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
}

// SaveDocument upserts a point keyed by a deterministic UUID derived from
// compositeKey, storing the value in payload and, when present, the vector.
func (p *QdrantProvider) SaveDocument(ctx context.Context, doc Document) error {
	if len(doc.Vector) == 0 {
		return nil
	}
	point := &qdrant.PointStruct{
		Id: qdrantPointID(doc.CompositeKey),
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{
				Vector: &qdrant.Vector{Data: doc.Vector},
			},
		},
		Payload: map[string]*qdrant.Value{
			"composite_key": {Kind: &qdrant.Value_StringValue{StringValue: doc.CompositeKey}},
			"value":         {Kind: &qdrant.Value_StringValue{StringValue: doc.Value}},
		},
	}
	_, err := p.points.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: p.collName,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// GetDocumentValue retrieves a point by its deterministic ID and returns
// its "value" payload field, or "" if the point is absent.
func (p *QdrantProvider) GetDocumentValue(ctx context.Context, compositeKey string) (string, error) {
	resp, err := p.points.Get(ctx, &qdrant.GetPoints{
		CollectionName: p.collName,
		Ids:            []*qdrant.PointId{qdrantPointID(compositeKey)},
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return "", fmt.Errorf("qdrant get: %w", err)
	}
	if len(resp.GetResult()) == 0 {
		return "", nil
	}
	val, ok := resp.GetResult()[0].GetPayload()["value"]
	if !ok {
		return "", nil
	}
	return val.GetStringValue(), nil
}

// QuerySimilar runs a KNN search against the collection's configured
// cosine distance and returns up to 10 matching values above threshold,
// already ordered most-similar-first by Qdrant.
func (p *QdrantProvider) QuerySimilar(ctx context.Context, query []float32, threshold float64) ([]string, error) {
	limit := uint64(MaxResults)
	scoreThreshold := float32(threshold)
	resp, err := p.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: p.collName,
		Vector:         query,
		Limit:          limit,
		ScoreThreshold: &scoreThreshold,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	var out []string
	for _, hit := range resp.GetResult() {
		if val, ok := hit.GetPayload()["value"]; ok {
			out = append(out, val.GetStringValue())
		}
	}
	return out, nil
}
