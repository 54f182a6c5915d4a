// Package config provides configuration management for Recallhub.
package config

import (
	"fmt"
	"time"
)

// Config is the global configuration for Recallhub.
type Config struct {
	// App is the application configuration.
	App AppConfig `mapstructure:"app" validate:"required"`

	// Server is the HTTP server configuration.
	Server ServerConfig `mapstructure:"server" validate:"required"`

	// Log is the logging configuration.
	Log LogConfig `mapstructure:"log" validate:"required"`

	// Storage is the durable conversation store configuration.
	Storage StorageConfig `mapstructure:"storage"`

	// Cache is the candidate cache configuration.
	Cache CacheConfig `mapstructure:"cache"`

	// Memory is the retrieval engine configuration.
	Memory MemoryConfig `mapstructure:"memory"`

	// Embedding is the embedding gateway configuration.
	Embedding EmbeddingConfig `mapstructure:"embedding"`

	// Metrics is the observability configuration.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Tracing is the distributed tracing configuration.
	Tracing TracingConfig `mapstructure:"tracing"`
}

// AppConfig holds application metadata and settings.
type AppConfig struct {
	// Name is the application name.
	Name string `mapstructure:"name" validate:"required"`

	// Version is the application version.
	Version string `mapstructure:"version"`

	// Environment is the runtime environment (development, staging, production).
	Environment string `mapstructure:"environment" validate:"oneof=development staging production"`

	// Debug enables debug mode with verbose logging.
	Debug bool `mapstructure:"debug"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	// Host is the bind address.
	Host string `mapstructure:"host"`

	// Port is the HTTP API port.
	Port int `mapstructure:"port" validate:"required,min=1,max=65535"`

	// HTTP is the HTTP server configuration.
	HTTP HTTPConfig `mapstructure:"http"`

	// CORS is the CORS configuration.
	CORS CORSConfig `mapstructure:"cors"`
}

// HTTPConfig holds HTTP-specific settings.
type HTTPConfig struct {
	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next request.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxHeaderBytes limits the size of request headers.
	MaxHeaderBytes int `mapstructure:"max_header_bytes"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	// Enabled enables CORS support.
	Enabled bool `mapstructure:"enabled"`

	// AllowedOrigins is the list of allowed origins.
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	// AllowedMethods is the list of allowed HTTP methods.
	AllowedMethods []string `mapstructure:"allowed_methods"`

	// AllowedHeaders is the list of allowed headers.
	AllowedHeaders []string `mapstructure:"allowed_headers"`

	// ExposedHeaders is the list of headers exposed to the client.
	ExposedHeaders []string `mapstructure:"exposed_headers"`

	// AllowCredentials indicates whether credentials are allowed.
	AllowCredentials bool `mapstructure:"allow_credentials"`

	// MaxAge is the maximum age of CORS preflight cache in seconds.
	MaxAge int `mapstructure:"max_age"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`

	// Format is the output format (json, text).
	Format string `mapstructure:"format" validate:"oneof=json text"`

	// Output is the output destination (stdout, stderr, or file path).
	Output string `mapstructure:"output"`
}

// StorageConfig holds durable conversation store settings.
type StorageConfig struct {
	// Type is the storage backend (memory, badger).
	Type string `mapstructure:"type" validate:"oneof=memory badger"`

	// Badger is the BadgerDB configuration.
	Badger BadgerConfig `mapstructure:"badger"`
}

// BadgerConfig holds BadgerDB-specific settings.
type BadgerConfig struct {
	// Path is the database directory path.
	Path string `mapstructure:"path"`

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ValueLogFileSize is the maximum size of value log files in bytes.
	ValueLogFileSize int64 `mapstructure:"value_log_file_size"`
}

// CacheConfig holds candidate cache settings.
type CacheConfig struct {
	// Type is the cache backend (ristretto, redis).
	Type string `mapstructure:"type" validate:"oneof=ristretto redis"`

	// TTL is the accepted staleness window for cached candidate sets.
	TTL time.Duration `mapstructure:"ttl"`

	// MaxEntries bounds the number of cached user candidate sets
	// (ristretto only).
	MaxEntries int64 `mapstructure:"max_entries" validate:"min=0"`

	// Redis is the Redis configuration (redis only).
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	// Address is the Redis server address.
	Address string `mapstructure:"address"`

	// Password is the Redis password.
	Password string `mapstructure:"password"`

	// DB is the Redis database number.
	DB int `mapstructure:"db"`
}

// MemoryConfig holds retrieval engine settings.
type MemoryConfig struct {
	// RingCapacity bounds each per-(user, chat) short-term buffer.
	RingCapacity int `mapstructure:"ring_capacity" validate:"min=1"`

	// ChatCandidates is how many sibling conversations are loaded for the
	// chat tier before ranking.
	ChatCandidates int `mapstructure:"chat_candidates" validate:"min=1"`

	// CrossChatCandidates is how many conversations are loaded for the
	// cross-chat tier before ranking.
	CrossChatCandidates int `mapstructure:"cross_chat_candidates" validate:"min=1"`

	// ChatKeep is how many ranked chat-tier records are kept.
	ChatKeep int `mapstructure:"chat_keep" validate:"min=1"`

	// CrossChatKeep is how many ranked cross-chat records are kept.
	CrossChatKeep int `mapstructure:"cross_chat_keep" validate:"min=1"`

	// ConversationWindow bounds messages returned for the current
	// conversation.
	ConversationWindow int `mapstructure:"conversation_window" validate:"min=1"`

	// TierTimeout bounds each tier query.
	TierTimeout time.Duration `mapstructure:"tier_timeout"`

	// OverallTimeout bounds one full retrieval.
	OverallTimeout time.Duration `mapstructure:"overall_timeout"`

	// Formatter holds the context block budgets.
	Formatter FormatterConfig `mapstructure:"formatter"`
}

// FormatterConfig holds context block rendering budgets.
type FormatterConfig struct {
	// ConversationMessages is the number of trailing messages rendered for
	// the current conversation.
	ConversationMessages int `mapstructure:"conversation_messages" validate:"min=1"`

	// ChatRecords is the number of chat-tier snippets rendered.
	ChatRecords int `mapstructure:"chat_records" validate:"min=1"`

	// ChatSnippetLen bounds each chat-tier snippet in characters.
	ChatSnippetLen int `mapstructure:"chat_snippet_len" validate:"min=1"`

	// CrossChatRecords is the number of cross-chat snippets rendered.
	CrossChatRecords int `mapstructure:"cross_chat_records" validate:"min=1"`

	// CrossChatSnippetLen bounds each cross-chat snippet in characters.
	CrossChatSnippetLen int `mapstructure:"cross_chat_snippet_len" validate:"min=1"`
}

// EmbeddingConfig holds embedding gateway settings.
type EmbeddingConfig struct {
	// Enabled enables semantic retrieval. When disabled the service degrades
	// to recency ranking.
	Enabled bool `mapstructure:"enabled"`

	// Provider is the embedder implementation (remote, mock).
	Provider string `mapstructure:"provider" validate:"oneof=remote mock"`

	// Endpoint is the embedding service URL (remote only).
	Endpoint string `mapstructure:"endpoint"`

	// APIKey authenticates against the embedding service.
	APIKey string `mapstructure:"api_key"`

	// Model is the embedding model identifier.
	Model string `mapstructure:"model"`

	// Dimensions is the expected vector dimensionality.
	Dimensions int `mapstructure:"dimensions" validate:"min=1"`

	// Timeout bounds one embedding call.
	Timeout time.Duration `mapstructure:"timeout"`

	// RequestsPerSecond rate-limits outgoing embedding calls. Zero disables
	// limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"min=0"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`

	// Path is the metrics endpoint path.
	Path string `mapstructure:"path"`

	// Port is the metrics server port.
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// TracingConfig holds distributed tracing settings.
type TracingConfig struct {
	// Enabled enables distributed tracing.
	Enabled bool `mapstructure:"enabled"`

	// Exporter is the span exporter (otlp).
	Exporter string `mapstructure:"exporter"`

	// Endpoint is the collector endpoint.
	Endpoint string `mapstructure:"endpoint"`

	// Headers are additional headers sent to the collector.
	Headers map[string]string `mapstructure:"headers"`

	// Timeout bounds one export batch.
	Timeout time.Duration `mapstructure:"timeout"`

	// Sampler selects the sampling strategy (ratio, always_on, always_off).
	Sampler string `mapstructure:"sampler"`

	// SampleRate is the fraction of traces to sample (0.0-1.0).
	SampleRate float64 `mapstructure:"sample_rate" validate:"min=0,max=1"`
}

// Validate performs validation on the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// String returns a string representation of the configuration (without sensitive data).
func (c *Config) String() string {
	return fmt.Sprintf("Config{App: %s, Server: :%d, Env: %s}",
		c.App.Name, c.Server.Port, c.App.Environment)
}
