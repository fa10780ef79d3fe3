package core

import "time"

// Environment variables read by configuration loading (see Config in config.go).
const (
	EnvRedisURL       = "VRAG_REDIS_URL"       // Redis connection URL for progress stream + registry cache
	EnvQdrantURL      = "VRAG_QDRANT_URL"      // Qdrant gRPC/HTTP endpoint for vector backend
	EnvArangoURL      = "VRAG_ARANGO_URL"      // ArangoDB endpoint for graph backend
	EnvPostgresDSN    = "VRAG_POSTGRES_DSN"    // Postgres DSN for relational backend
	EnvAIProvider     = "VRAG_AI_PROVIDER"     // bedrock | mock | auto
	EnvAIAPIKey       = "VRAG_AI_API_KEY"      // API key for the configured AI provider
	EnvDevMode        = "DEV_MODE"             // Development mode flag (console logging, verbose traces)
)

// Redis key prefixes used by the progress stream and agent registry cache.
const (
	// DefaultProgressStreamPrefix namespaces progress event pub/sub channels.
	// Format: <prefix><query-id>
	DefaultProgressStreamPrefix = "vrag:progress:"

	// DefaultRegistryCachePrefix namespaces cached agent capability summaries.
	DefaultRegistryCachePrefix = "vrag:registry:"

	// DefaultRegistryCacheTTL bounds how long a capability summary is cached
	// before the Agent Registry re-derives it from the in-process catalogue.
	DefaultRegistryCacheTTL = 24 * time.Hour
)
