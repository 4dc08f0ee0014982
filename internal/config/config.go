// Package config defines the resolution surface for the Mesh Memory Store.
// Loading these values from a file, environment, or flags is out of scope
// for the core; this package only describes the shape and validates it.
package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// StoreType selects which concrete MemoryStore a StoreFactory builds.
type StoreType string

const (
	StoreHybrid          StoreType = "hybrid"
	StoreEmbeddedFile    StoreType = "embeddedFile"
	StoreEmbeddedDoc     StoreType = "embeddedDoc"
	StoreRelational      StoreType = "relational"
	StoreDocumentService StoreType = "documentService"
	StoreCache           StoreType = "cache"
	StoreInMemory        StoreType = "inMemory"
)

// ProviderType selects the VectorSearchProvider implementation used by
// CacheStore (and any caller that wants pure vector search).
type ProviderType string

const (
	ProviderCache        ProviderType = "cache"
	ProviderVectorDB     ProviderType = "vectorDb"
	ProviderRelational   ProviderType = "relational"
	ProviderHTTPVectorDB ProviderType = "httpVectorDb"
	ProviderAINative     ProviderType = "aiNative"
)

// DatabaseConfig carries relational connection parameters.
type DatabaseConfig struct {
	Enabled                bool
	Host                   string `validate:"required_if=Enabled true"`
	Port                   string
	Database               string `validate:"required_if=Enabled true"`
	Username               string
	Password               string
	SSLMode                string
	MaxOpenConns           int
	MaxIdleConns           int
	ConnMaxLifetimeMinutes int
}

// Config is the single resolution surface consumed by StoreFactory. Every
// field is optional; StoreFactory fills in documented defaults via
// WithDefaults before validating.
type Config struct {
	StoreType               StoreType    `validate:"required,oneof=hybrid embeddedFile embeddedDoc relational documentService cache inMemory"`
	VectorSearchProvider    ProviderType `validate:"omitempty,oneof=cache vectorDb relational httpVectorDb aiNative"`
	PreferCacheForRetrieval bool
	VectorDimension         int `validate:"omitempty,gt=0"`

	// EmbeddedFileStore
	FilePath string

	// EmbeddedDocumentStore (Badger)
	DocumentDirPath string

	// RelationalVectorStore
	Database DatabaseConfig

	// DocumentServiceStore (Mongo-API compatible cloud document service)
	DocumentServiceURI        string
	DocumentServiceDatabase   string
	DocumentServiceCollection string

	// CacheStore / cache-native provider (Redis)
	CacheHost string
	CachePort string
	CacheAddr string

	// Dedicated vector-DB provider (Qdrant-style gRPC)
	VectorDBHost       string
	VectorDBPort       int
	VectorDBAPIKey     string
	VectorDBCollection string

	// HTTP vector-DB provider (Milvus-style REST). Authentication is either
	// a static bearer token (HTTPVectorDBAPIKey) or OAuth2 client-credentials
	// (the three ClientID/Secret/TokenURL fields); TokenURL being set selects
	// client-credentials regardless of whether HTTPVectorDBAPIKey is also set.
	HTTPVectorDBEndpoint     string
	HTTPVectorDBCollection   string
	HTTPVectorDBAPIKey       string
	HTTPVectorDBClientID     string
	HTTPVectorDBClientSecret string
	HTTPVectorDBTokenURL     string

	// AI-native HTTP provider (Chroma-style REST)
	AINativeEndpoint   string
	AINativeCollection string
	AINativeAPIKey     string
}

const (
	DefaultVectorDimension = 384
	DefaultFilePath        = "mesh-memory.db"
	DefaultDocumentDirPath = "mesh-memory-docs"
	DefaultCacheAddr       = "localhost:6379"
)

// WithDefaults returns a copy of cfg with documented defaults applied for
// every field the caller left at its zero value.
func (cfg Config) WithDefaults() Config {
	if cfg.StoreType == "" {
		cfg.StoreType = StoreHybrid
	}
	if cfg.VectorSearchProvider == "" {
		cfg.VectorSearchProvider = ProviderCache
	}
	if cfg.VectorDimension == 0 {
		cfg.VectorDimension = DefaultVectorDimension
	}
	if cfg.FilePath == "" {
		cfg.FilePath = DefaultFilePath
	}
	if cfg.DocumentDirPath == "" {
		cfg.DocumentDirPath = DefaultDocumentDirPath
	}
	if cfg.CacheAddr == "" {
		if cfg.CacheHost != "" && cfg.CachePort != "" {
			cfg.CacheAddr = cfg.CacheHost + ":" + cfg.CachePort
		} else {
			cfg.CacheAddr = DefaultCacheAddr
		}
	}
	return cfg
}

// Validate runs struct-tag validation and the handful of cross-field checks
// tags can't express (e.g. relational store requires database connection
// fields).
func (cfg Config) Validate() error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch cfg.StoreType {
	case StoreRelational:
		if cfg.Database.Host == "" || cfg.Database.Database == "" {
			return fmt.Errorf("config: relational store requires Database.Host and Database.Database")
		}
	case StoreDocumentService:
		if cfg.DocumentServiceURI == "" {
			return fmt.Errorf("config: documentService store requires DocumentServiceURI")
		}
	}
	if cfg.VectorSearchProvider == ProviderRelational && (cfg.Database.Host == "" || cfg.Database.Database == "") {
		return fmt.Errorf("config: relational vector search provider requires Database.Host and Database.Database")
	}
	return nil
}
