package vectorsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/phoenixvc/cognitive-mesh-sub003/internal/logging"
)

// CacheProvider delegates vector search to a Redis instance with the
// RediSearch module loaded, using FT.CREATE/FT.SEARCH KNN queries. Redis
// deployments without the module (including the in-memory miniredis test
// double) don't implement FT.*; QuerySimilar detects that failure mode and
// falls back to an in-process sequential cosine-similarity scan over the
// hash keys it wrote itself, so the provider degrades predictably instead
// of failing outright.
type CacheProvider struct {
	client    redis.UniversalClient
	indexName string
	dimension int
	logger    logging.Logger

	mu        sync.Mutex
	ftChecked bool
	ftOK      bool
}

// NewCacheProvider constructs a provider against an already-configured
// Redis client. dimension must match the length of every vector saved.
func NewCacheProvider(client redis.UniversalClient, indexName string, dimension int, logger logging.Logger) *CacheProvider {
	if logger == nil {
		logger = logging.NewNoop()
	}
	return &CacheProvider{client: client, indexName: indexName, dimension: dimension, logger: logger}
}

// Initialize attempts to create the RediSearch index. Failure to create it
// (module absent) is logged and does not fail the provider: QuerySimilar
// falls back to a scan in that case.
func (p *CacheProvider) Initialize(ctx context.Context) error {
	err := p.client.Do(ctx, "FT.CREATE", p.indexName,
		"ON", "HASH", "PREFIX", "1", cacheKeyPrefix,
		"SCHEMA",
		"value", "TEXT",
		"vector", "VECTOR", "HNSW", "6", "TYPE", "FLOAT32", "DIM", fmt.Sprintf("%d", p.dimension), "DISTANCE_METRIC", "COSINE",
	).Err()
	p.mu.Lock()
	p.ftChecked = true
	p.ftOK = err == nil || strings.Contains(err.Error(), "Index already exists")
	p.mu.Unlock()
	if err != nil && !p.ftOK {
		p.logger.Warn("RediSearch FT.CREATE unavailable, falling back to scan-based similarity", logging.Fields{"error": err.Error()})
	}
	return nil
}

const cacheKeyPrefix = "meshvec:"

// SaveDocument writes value and vector (if present) into a Redis hash.
func (p *CacheProvider) SaveDocument(ctx context.Context, doc Document) error {
	fields := map[string]interface{}{"value": doc.Value}
	if len(doc.Vector) > 0 {
		raw, err := json.Marshal(doc.Vector)
		if err != nil {
			return err
		}
		fields["vector_json"] = string(raw)
		fields["vector"] = encodeFloat32Blob(doc.Vector)
	}
	return p.client.HSet(ctx, cacheKeyPrefix+doc.CompositeKey, fields).Err()
}

// GetDocumentValue returns the "value" field of the hash at compositeKey.
func (p *CacheProvider) GetDocumentValue(ctx context.Context, compositeKey string) (string, error) {
	value, err := p.client.HGet(ctx, cacheKeyPrefix+compositeKey, "value").Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// QuerySimilar tries FT.SEARCH KNN first when Initialize created (or found)
// the RediSearch index; otherwise, or when FT.SEARCH returns an error, it
// falls back to a sequential scan, scoring every stored vector with cosine
// similarity.
func (p *CacheProvider) QuerySimilar(ctx context.Context, query []float32, threshold float64) ([]string, error) {
	p.mu.Lock()
	ftOK := p.ftChecked && p.ftOK
	p.mu.Unlock()

	if ftOK {
		results, err := p.queryFTSearch(ctx, query, threshold)
		if err == nil {
			return results, nil
		}
		p.logger.Warn("FT.SEARCH failed, falling back to scan-based similarity", logging.Fields{"error": err.Error()})
	}
	return p.queryScan(ctx, query, threshold)
}

func (p *CacheProvider) queryFTSearch(ctx context.Context, query []float32, threshold float64) ([]string, error) {
	blob := encodeFloat32Blob(query)
	res, err := p.client.Do(ctx, "FT.SEARCH", p.indexName,
		fmt.Sprintf("*=>[KNN %d @vector $BLOB AS score]", MaxResults),
		"PARAMS", "2", "BLOB", blob,
		"SORTBY", "score",
		"RETURN", "2", "value", "score",
		"DIALECT", "2",
	).Result()
	if err != nil {
		return nil, err
	}
	return parseFTSearchValues(res, threshold), nil
}

func (p *CacheProvider) queryScan(ctx context.Context, query []float32, threshold float64) ([]string, error) {
	var candidates []scoredDoc
	seq := 0
	iter := p.client.Scan(ctx, 0, cacheKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		fields, err := p.client.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		vectorJSON, ok := fields["vector_json"]
		if !ok {
			continue
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vectorJSON), &vec); err != nil {
			continue
		}
		candidates = append(candidates, scoredDoc{
			value:      fields["value"],
			similarity: cosineSimilarity(query, vec),
			seq:        seq,
		})
		seq++
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return rankTopN(candidates, threshold), nil
}

// encodeFloat32Blob matches RediSearch's expected little-endian FLOAT32
// vector wire format.
func encodeFloat32Blob(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

// parseFTSearchValues extracts the "value" field from each document in an
// FT.SEARCH reply whose "score" field (the KNN distance, aliased in the
// query) clears threshold, keeping the fallback scan and the native path
// consistent: a low-similarity KNN hit doesn't leak through just because
// Redis ranked it among the nearest MaxResults vectors. The reply shape is
// [count, key1, fields1, key2, fields2, ...].
func parseFTSearchValues(res interface{}, threshold float64) []string {
	arr, ok := res.([]interface{})
	if !ok || len(arr) < 1 {
		return nil
	}
	var out []string
	for i := 2; i < len(arr); i += 2 {
		fieldsArr, ok := arr[i].([]interface{})
		if !ok {
			continue
		}
		var value string
		var distance float64
		haveDistance := false
		for j := 0; j+1 < len(fieldsArr); j += 2 {
			name, _ := fieldsArr[j].(string)
			switch name {
			case "value":
				value, _ = fieldsArr[j+1].(string)
			case "score":
				if raw, ok := fieldsArr[j+1].(string); ok {
					if f, err := strconv.ParseFloat(raw, 64); err == nil {
						distance, haveDistance = f, true
					}
				}
			}
		}
		if !haveDistance || 1-distance < threshold {
			continue
		}
		out = append(out, value)
	}
	if len(out) > MaxResults {
		out = out[:MaxResults]
	}
	return out
}
