package memorystore

import (
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/phoenixvc/cognitive-mesh-sub003/internal/config"
	"github.com/phoenixvc/cognitive-mesh-sub003/internal/logging"
	"github.com/phoenixvc/cognitive-mesh-sub003/pkg/vectorsearch"
)

// StoreFactory resolves a validated config.Config into a single MemoryStore,
// the only object callers outside this package ever construct by hand. It
// performs no I/O itself: the Redis, gRPC and HTTP clients it builds connect
// lazily, and database pools are opened by Initialize, which is still the
// caller's responsibility.
type StoreFactory struct {
	logger logging.Logger
}

// NewStoreFactory constructs a factory that logs through logger.
func NewStoreFactory(logger logging.Logger) *StoreFactory {
	if logger == nil {
		logger = logging.NewNoop()
	}
	return &StoreFactory{logger: logger}
}

// CreateStore validates cfg and builds the MemoryStore it describes.
// Validation failures are returned as a ConfigurationError wrapping the
// error from config.Config.Validate, so callers can distinguish "bad
// config" from "backend unreachable".
func (f *StoreFactory) CreateStore(cfg config.Config) (MemoryStore, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, &ConfigurationError{Backend: string(cfg.StoreType), Reason: "invalid configuration", Err: err}
	}

	switch cfg.StoreType {
	case config.StoreInMemory:
		return NewInMemoryStore(f.logger), nil

	case config.StoreEmbeddedFile:
		return NewEmbeddedFileStore(cfg.FilePath, f.logger), nil

	case config.StoreEmbeddedDoc:
		return NewEmbeddedDocumentStore(cfg.DocumentDirPath, f.logger), nil

	case config.StoreRelational:
		dsn := relationalDSN(cfg.Database)
		return NewRelationalVectorStore(dsn, cfg.VectorDimension, f.logger), nil

	case config.StoreDocumentService:
		return NewDocumentServiceStore(cfg.DocumentServiceURI, cfg.DocumentServiceDatabase, cfg.DocumentServiceCollection, f.logger), nil

	case config.StoreCache:
		provider, err := f.createProvider(cfg)
		if err != nil {
			return nil, err
		}
		return NewCacheStore(provider, f.logger), nil

	case config.StoreHybrid:
		persistent, err := f.createPersistentChild(cfg)
		if err != nil {
			return nil, err
		}
		provider, err := f.createProvider(cfg)
		if err != nil {
			return nil, err
		}
		cache := NewCacheStore(provider, f.logger)
		return NewHybridStore(persistent, cache, cfg.PreferCacheForRetrieval, f.logger), nil

	default:
		return nil, &ConfigurationError{Backend: string(cfg.StoreType), Reason: "unrecognized store type"}
	}
}

// createPersistentChild resolves the persistent half of a HybridStore from
// cfg's connection fields, preferring a relational backend, then a document
// service, and falling back to the embedded file store as the lightweight
// default when neither is configured.
func (f *StoreFactory) createPersistentChild(cfg config.Config) (MemoryStore, error) {
	if cfg.Database.Enabled {
		return NewRelationalVectorStore(relationalDSN(cfg.Database), cfg.VectorDimension, f.logger), nil
	}
	if cfg.DocumentServiceURI != "" {
		return NewDocumentServiceStore(cfg.DocumentServiceURI, cfg.DocumentServiceDatabase, cfg.DocumentServiceCollection, f.logger), nil
	}
	return NewEmbeddedFileStore(cfg.FilePath, f.logger), nil
}

func (f *StoreFactory) createProvider(cfg config.Config) (vectorsearch.Provider, error) {
	switch cfg.VectorSearchProvider {
	case config.ProviderVectorDB:
		addr := cfg.VectorDBHost
		if cfg.VectorDBPort != 0 {
			addr = fmt.Sprintf("%s:%d", cfg.VectorDBHost, cfg.VectorDBPort)
		}
		conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, &ConfigurationError{Backend: "cache", Reason: "failed to dial vector database", Err: err}
		}
		return vectorsearch.NewQdrantProvider(
			qdrant.NewPointsClient(conn),
			qdrant.NewCollectionsClient(conn),
			cfg.VectorDBCollection,
			cfg.VectorDimension,
			f.logger,
		), nil

	case config.ProviderHTTPVectorDB:
		if cfg.HTTPVectorDBTokenURL != "" {
			return vectorsearch.NewHTTPProvider(
				cfg.HTTPVectorDBEndpoint, cfg.HTTPVectorDBCollection, cfg.VectorDimension,
				cfg.HTTPVectorDBClientID, cfg.HTTPVectorDBClientSecret, cfg.HTTPVectorDBTokenURL,
				f.logger,
			), nil
		}
		return vectorsearch.NewHTTPProviderWithToken(cfg.HTTPVectorDBEndpoint, cfg.HTTPVectorDBCollection, cfg.VectorDimension, cfg.HTTPVectorDBAPIKey, f.logger), nil

	case config.ProviderRelational:
		return NewRelationalProvider(relationalDSN(cfg.Database), cfg.VectorDimension, f.logger), nil

	case config.ProviderAINative:
		return vectorsearch.NewAINativeProvider(cfg.AINativeEndpoint, cfg.AINativeCollection, cfg.AINativeAPIKey, "", f.logger)

	case config.ProviderCache, "":
		client := redis.NewClient(&redis.Options{Addr: cfg.CacheAddr})
		return vectorsearch.NewCacheProvider(client, "mesh-idx", cfg.VectorDimension, f.logger), nil

	default:
		return nil, &ConfigurationError{Backend: "cache", Reason: "unrecognized vector search provider"}
	}
}

func relationalDSN(db config.DatabaseConfig) string {
	return "postgres://" + db.Username + ":" + db.Password + "@" + db.Host + ":" + portOrDefault(db.Port) + "/" + db.Database + "?sslmode=" + sslModeOrDefault(db.SSLMode)
}

func portOrDefault(port string) string {
	if port == "" {
		return "5432"
	}
	return port
}

func sslModeOrDefault(mode string) string {
	if mode == "" {
		return "disable"
	}
	return mode
}
