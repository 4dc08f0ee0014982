package memorystore

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/phoenixvc/cognitive-mesh-sub003/internal/logging"
)

// HybridStore composes exactly one persistent MemoryStore and one cache
// MemoryStore. It exists because no single backend is simultaneously
// cheapest-for-point-reads, strongest-at-vector-search, and most durable:
// dual-writing accepts eventual duplication in exchange for letting reads
// pick the fastest layer and QuerySimilar pick the most capable one.
type HybridStore struct {
	persistent MemoryStore
	cache      MemoryStore
	// preferCacheForRetrieval selects which child Get tries first. It does
	// not affect QuerySimilar, which always tries cache first because cache
	// backends own the vector index in hybrid topologies.
	preferCacheForRetrieval bool
	logger                  logging.Logger
}

// NewHybridStore composes persistent and cache into a single MemoryStore.
func NewHybridStore(persistent, cache MemoryStore, preferCacheForRetrieval bool, logger logging.Logger) *HybridStore {
	if logger == nil {
		logger = logging.NewNoop()
	}
	return &HybridStore{
		persistent:              persistent,
		cache:                   cache,
		preferCacheForRetrieval: preferCacheForRetrieval,
		logger:                  logger,
	}
}

// Initialize initializes both children in parallel. If either fails, the
// hybrid fails and propagates that error; there is no partial-success
// state exposed to the caller.
func (h *HybridStore) Initialize(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.persistent.Initialize(gctx) })
	g.Go(func() error { return h.cache.Initialize(gctx) })
	if err := g.Wait(); err != nil {
		h.logger.Error("hybrid initialize failed", err, nil)
		return &InitializationError{Backend: "hybrid", Err: err}
	}
	h.logger.Info("hybrid store initialized", nil)
	return nil
}

// Save writes to both children concurrently and awaits both. If either
// write fails, the hybrid fails. There is deliberately no compensation for
// a partial failure: the caller is expected to retry the whole call.
func (h *HybridStore) Save(ctx context.Context, sessionID, key, value string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.persistent.Save(gctx, sessionID, key, value) })
	g.Go(func() error { return h.cache.Save(gctx, sessionID, key, value) })
	if err := g.Wait(); err != nil {
		h.logger.Error("hybrid save failed", err, logging.Fields{"sessionId": sessionID, "key": key})
		return err
	}
	return nil
}

// Get tries the preferred child first; if it returns an empty string (not
// an error), it falls back to the other child. A backend error from either
// layer is propagated as-is — fallback applies only to "empty result", not
// to errors.
func (h *HybridStore) Get(ctx context.Context, sessionID, key string) (string, error) {
	first, second := h.persistent, h.cache
	if h.preferCacheForRetrieval {
		first, second = h.cache, h.persistent
	}

	value, err := first.Get(ctx, sessionID, key)
	if err != nil {
		return "", err
	}
	if value != "" {
		return value, nil
	}
	return second.Get(ctx, sessionID, key)
}

// QuerySimilar always tries the cache child first, since cache backends own
// the vector index in hybrid topologies. An empty result set falls back to
// the persistent child; an error from either layer propagates.
func (h *HybridStore) QuerySimilar(ctx context.Context, embeddingJSON string, threshold float64) ([]string, error) {
	results, err := h.cache.QuerySimilar(ctx, embeddingJSON, threshold)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		return results, nil
	}
	return h.persistent.QuerySimilar(ctx, embeddingJSON, threshold)
}
