package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "recallhub",
			Version:     "dev",
			Environment: "development",
			Debug:       false,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			HTTP: HTTPConfig{
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 15 * time.Second,
				MaxHeaderBytes:  1 << 20, // 1MB
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Storage: StorageConfig{
			Type: "badger",
			Badger: BadgerConfig{
				Path:             "./data/conversations",
				SyncWrites:       true,
				ValueLogFileSize: 1073741824, // 1GB
			},
		},
		Cache: CacheConfig{
			Type:       "ristretto",
			TTL:        30 * time.Second,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Address:  "localhost:6379",
				Password: "",
				DB:       0,
			},
		},
		Memory: MemoryConfig{
			RingCapacity:        6,
			ChatCandidates:      10,
			CrossChatCandidates: 15,
			ChatKeep:            3,
			CrossChatKeep:       3,
			ConversationWindow:  20,
			TierTimeout:         2 * time.Second,
			OverallTimeout:      3 * time.Second,
			Formatter: FormatterConfig{
				ConversationMessages: 5,
				ChatRecords:          3,
				ChatSnippetLen:       120,
				CrossChatRecords:     2,
				CrossChatSnippetLen:  100,
			},
		},
		Embedding: EmbeddingConfig{
			Enabled:           false,
			Provider:          "remote",
			Endpoint:          "http://localhost:8090/embed",
			Model:             "text-embedding-small",
			Dimensions:        384,
			Timeout:           time.Second,
			RequestsPerSecond: 50,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9091,
		},
		Tracing: TracingConfig{
			Enabled:    false,
			Exporter:   "otlp",
			Endpoint:   "localhost:4317",
			Timeout:    10 * time.Second,
			Sampler:    "ratio",
			SampleRate: 0.1,
		},
	}
}
