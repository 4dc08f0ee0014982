package vectorsearch

import (
	"math"
	"sort"
)

// cosineSimilarity mirrors pkg/memorystore's CosineSimilarity. It is
// duplicated rather than imported to keep this package free of any
// dependency on pkg/memorystore.
func cosineSimilarity(a, b []float32) float64 {
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

type scoredDoc struct {
	value      string
	similarity float64
	seq        int
}

// rankTopN filters by threshold, sorts descending by similarity, and caps at
// MaxResults. The sort is stable, so ties keep the order candidates were
// passed in; for the cache provider's scan that is Redis SCAN order, not
// insertion order. The seq field is not read here.
func rankTopN(candidates []scoredDoc, threshold float64) []string {
	var filtered []scoredDoc
	for _, c := range candidates {
		if c.similarity >= threshold {
			filtered = append(filtered, c)
		}
	}
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
