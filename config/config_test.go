package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Test App defaults
	if cfg.App.Name != "recallhub" {
		t.Errorf("expected app name 'recallhub', got %s", cfg.App.Name)
	}
	if cfg.App.Environment != "development" {
		t.Errorf("expected environment 'development', got %s", cfg.App.Environment)
	}

	// Test Server defaults
	if cfg.Server.Port != 8080 {
		t.Errorf("expected server port 8080, got %d", cfg.Server.Port)
	}

	// Test Log defaults
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected log format 'json', got %s", cfg.Log.Format)
	}

	// Test Storage defaults
	if cfg.Storage.Type != "badger" {
		t.Errorf("expected storage type 'badger', got %s", cfg.Storage.Type)
	}
	if !cfg.Storage.Badger.SyncWrites {
		t.Error("expected storage.badger.sync_writes to be true")
	}

	// Test Cache defaults
	if cfg.Cache.Type != "ristretto" {
		t.Errorf("expected cache type 'ristretto', got %s", cfg.Cache.Type)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("expected cache TTL 30s, got %v", cfg.Cache.TTL)
	}

	// Test Memory defaults
	if cfg.Memory.RingCapacity != 6 {
		t.Errorf("expected ring capacity 6, got %d", cfg.Memory.RingCapacity)
	}
	if cfg.Memory.ChatCandidates != 10 || cfg.Memory.CrossChatCandidates != 15 {
		t.Errorf("expected candidate limits 10/15, got %d/%d",
			cfg.Memory.ChatCandidates, cfg.Memory.CrossChatCandidates)
	}
	if cfg.Memory.TierTimeout != 2*time.Second || cfg.Memory.OverallTimeout != 3*time.Second {
		t.Errorf("expected tier/overall timeouts 2s/3s, got %v/%v",
			cfg.Memory.TierTimeout, cfg.Memory.OverallTimeout)
	}
	if cfg.Memory.Formatter.ChatSnippetLen != 120 || cfg.Memory.Formatter.CrossChatSnippetLen != 100 {
		t.Errorf("expected snippet budgets 120/100, got %d/%d",
			cfg.Memory.Formatter.ChatSnippetLen, cfg.Memory.Formatter.CrossChatSnippetLen)
	}

	// Test Embedding defaults
	if cfg.Embedding.Enabled {
		t.Error("expected embedding.enabled to be false")
	}
	if cfg.Embedding.Dimensions != 384 {
		t.Errorf("expected embedding dimensions 384, got %d", cfg.Embedding.Dimensions)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid config",
			cfg:     DefaultConfig(),
			wantErr: false,
		},
		{
			name: "missing app name",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.App.Name = ""
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "invalid port",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.Server.Port = 99999
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "invalid log level",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.Log.Level = "trace"
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "invalid environment",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.App.Environment = "invalid"
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "invalid storage type",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.Storage.Type = "postgres"
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "invalid cache type",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.Cache.Type = "memcached"
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "zero ring capacity",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.Memory.RingCapacity = 0
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "invalid embedding provider",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.Embedding.Provider = "local"
				return cfg
			}(),
			wantErr: true,
		},
		{
			name: "sample rate above 1",
			cfg: func() *Config {
				cfg := DefaultConfig()
				cfg.Tracing.SampleRate = 1.5
				return cfg
			}(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		App: AppConfig{
			Name:        "test",
			Environment: "development",
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}

	s := cfg.String()
	if s == "" {
		t.Error("expected non-empty string representation")
	}
}

func TestLoader_Get(t *testing.T) {
	loader := NewLoader()
	_, _ = loader.Load("", nil) // Load defaults

	val := loader.Get("app.name")
	if val == nil {
		t.Error("expected non-nil value for app.name")
	}

	str := loader.GetString("app.name")
	if str != "recallhub" {
		t.Errorf("expected 'recallhub', got '%s'", str)
	}

	port := loader.GetInt("server.port")
	if port != 8080 {
		t.Errorf("expected 8080, got %d", port)
	}

	enabled := loader.GetBool("metrics.enabled")
	if !enabled {
		t.Error("expected metrics.enabled to be true")
	}
}

func TestLoader_Set(t *testing.T) {
	loader := NewLoader()
	_, _ = loader.Load("", nil)

	err := loader.Set("app.name", "custom-app")
	if err != nil {
		t.Errorf("unexpected error setting value: %v", err)
	}

	if loader.GetString("app.name") != "custom-app" {
		t.Errorf("expected 'custom-app', got '%s'", loader.GetString("app.name"))
	}
}

func TestLoad(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Error("expected non-nil config")
	}
}

func TestLoadOrDie_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic for invalid config file")
		}
	}()

	LoadOrDie("/nonexistent/path/config.yaml", nil)
}

func TestLoader_LoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
app:
  name: yaml-test
  environment: production
server:
  port: 9999
log:
  level: debug
  format: text
storage:
  type: memory
cache:
  type: redis
  ttl: 45s
  redis:
    address: redis.internal:6379
memory:
  ring_capacity: 8
  chat_candidates: 20
embedding:
  enabled: true
  provider: mock
  dimensions: 128
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	cfg, err := loader.Load(configPath, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Name != "yaml-test" {
		t.Errorf("expected 'yaml-test', got '%s'", cfg.App.Name)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected 9999, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected 'debug', got '%s'", cfg.Log.Level)
	}
	if cfg.Storage.Type != "memory" {
		t.Errorf("expected storage type 'memory', got '%s'", cfg.Storage.Type)
	}
	if cfg.Cache.Type != "redis" || cfg.Cache.TTL != 45*time.Second {
		t.Errorf("expected redis cache with 45s TTL, got %s/%v", cfg.Cache.Type, cfg.Cache.TTL)
	}
	if cfg.Cache.Redis.Address != "redis.internal:6379" {
		t.Errorf("expected redis address overridden, got '%s'", cfg.Cache.Redis.Address)
	}
	if cfg.Memory.RingCapacity != 8 || cfg.Memory.ChatCandidates != 20 {
		t.Errorf("expected memory overrides 8/20, got %d/%d",
			cfg.Memory.RingCapacity, cfg.Memory.ChatCandidates)
	}
	// Untouched nested values keep their defaults.
	if cfg.Memory.CrossChatCandidates != 15 {
		t.Errorf("expected cross_chat_candidates default 15, got %d", cfg.Memory.CrossChatCandidates)
	}
	if !cfg.Embedding.Enabled || cfg.Embedding.Provider != "mock" {
		t.Errorf("expected mock embedding enabled, got %+v", cfg.Embedding)
	}
}

func TestLoader_LoadJSONFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	jsonContent := `{
		"app": {
			"name": "json-test",
			"environment": "staging"
		},
		"server": {
			"port": 8888
		},
		"log": {
			"level": "warn",
			"format": "json"
		}
	}`
	if err := os.WriteFile(configPath, []byte(jsonContent), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	cfg, err := loader.Load(configPath, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.App.Name != "json-test" {
		t.Errorf("expected 'json-test', got '%s'", cfg.App.Name)
	}
	if cfg.Server.Port != 8888 {
		t.Errorf("expected 8888, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected 'warn', got '%s'", cfg.Log.Level)
	}
}

func TestLoader_LoadInvalidFile(t *testing.T) {
	loader := NewLoader()

	_, err := loader.Load("/nonexistent/config.yaml", nil)
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoader_LoadUnsupportedFormat(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	if err := os.WriteFile(configPath, []byte("app = 'test'"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	loader := NewLoader()
	_, err := loader.Load(configPath, nil)
	if err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("RECALLHUB_SERVER_PORT", "7070")
	t.Setenv("RECALLHUB_LOG_LEVEL", "error")
	t.Setenv("RECALLHUB_CACHE_TTL", "10s")

	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("expected env override port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("expected env override level 'error', got '%s'", cfg.Log.Level)
	}
	if cfg.Cache.TTL != 10*time.Second {
		t.Errorf("expected env override TTL 10s, got %v", cfg.Cache.TTL)
	}
}

func TestLoader_CLIOverrides(t *testing.T) {
	overrides := map[string]interface{}{
		"server.port": 6060,
		"app.debug":   true,
	}

	cfg, err := Load("", overrides)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6060 {
		t.Errorf("expected override port 6060, got %d", cfg.Server.Port)
	}
	if !cfg.App.Debug {
		t.Error("expected debug override applied")
	}
}
