package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// minimal valid telegram config shared by tests that only care about one field.
const minimalYAML = `
remote:
  driver: telegram
  telegram:
    bot_token: "123:abc"
    chat_id: "-100200300"
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfigFile(t, minimalYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Chunking.Size != DefaultChunkSize {
		t.Errorf("Chunking.Size = %d, want %d", cfg.Chunking.Size, DefaultChunkSize)
	}
	if !cfg.Chunking.Enabled {
		t.Error("chunking should default on")
	}
	if cfg.Tracking.Driver != "memory" {
		t.Errorf("Tracking.Driver = %q", cfg.Tracking.Driver)
	}
	if cfg.Remote.Telegram.Timeout != 120*time.Second {
		t.Errorf("Telegram.Timeout = %v", cfg.Remote.Telegram.Timeout)
	}
	if cfg.Cache.Enabled {
		t.Error("cache should default off")
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Cache.TTL = %v", cfg.Cache.TTL)
	}
	if cfg.RateLimit.Limit != 100 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("rate limit defaults = %d/%v", cfg.RateLimit.Limit, cfg.RateLimit.Window)
	}
	if len(cfg.Logging.RedactHeaders) != 3 {
		t.Errorf("RedactHeaders = %v", cfg.Logging.RedactHeaders)
	}
	if cfg.Tracing.Enabled {
		t.Error("tracing should default off")
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
listen_addr: ":9090"
log_level: debug
remote:
  driver: telegram
  telegram:
    bot_token: "tok"
    chat_id: "42"
    timeout: 30s
tracking:
  enabled: true
  driver: json
  json_path: /var/lib/gateway/files.json
chunking:
  enabled: true
  size: 1048576
encryption:
  enabled: true
  key: "base64:QkJCQkJCQkJCQkJCQkJCQkJCQkJCQkJCQkJCQkJCQkI="
cache:
  enabled: true
  max_bytes: 1024
  max_items: 8
  ttl: 30s
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	if cfg.Remote.Telegram.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v", cfg.Remote.Telegram.Timeout)
	}
	if cfg.Tracking.Driver != "json" || cfg.Tracking.JSONPath != "/var/lib/gateway/files.json" {
		t.Errorf("tracking = %+v", cfg.Tracking)
	}
	if cfg.Chunking.Size != 1048576 {
		t.Errorf("Chunking.Size = %d", cfg.Chunking.Size)
	}
	if !cfg.Encryption.Enabled || !strings.HasPrefix(cfg.Encryption.Key, "base64:") {
		t.Errorf("encryption = %+v", cfg.Encryption)
	}
	if !cfg.Cache.Enabled || cfg.Cache.MaxItems != 8 {
		t.Errorf("cache = %+v", cfg.Cache)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("LISTEN_ADDR", ":7070")
	t.Setenv("CHUNKING_SIZE", "2048")
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("CACHE_ENABLED", "true")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("RATE_LIMIT_ENABLED", "1")
	t.Setenv("RATE_LIMIT_LIMIT", "7")

	cfg, err := LoadConfig(writeConfigFile(t, minimalYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
	if cfg.Chunking.Size != 2048 {
		t.Errorf("Chunking.Size = %d", cfg.Chunking.Size)
	}
	if cfg.Remote.Telegram.BotToken != "env-token" {
		t.Errorf("BotToken = %q", cfg.Remote.Telegram.BotToken)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL != 90*time.Second {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.Limit != 7 {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("TELEGRAM_CHAT_ID", "42")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	if _, err := LoadConfig(writeConfigFile(t, "listen_addr: [not a string")); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := LoadConfig(writeConfigFile(t, minimalYAML))
		if err != nil {
			t.Fatalf("LoadConfig: %v", err)
		}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }, "listen_addr"},
		{"missing bot token", func(c *Config) { c.Remote.Telegram.BotToken = "" }, "bot_token"},
		{"missing chat id", func(c *Config) { c.Remote.Telegram.ChatID = "" }, "chat_id"},
		{"unknown remote driver", func(c *Config) { c.Remote.Driver = "ftp" }, "remote.driver"},
		{"s3 without bucket", func(c *Config) { c.Remote.Driver = "s3" }, "bucket"},
		{"json tracker without path", func(c *Config) {
			c.Tracking.Driver = "json"
			c.Tracking.JSONPath = ""
		}, "json_path"},
		{"postgres tracker without dsn", func(c *Config) { c.Tracking.Driver = "postgres" }, "postgres_dsn"},
		{"unknown tracker driver", func(c *Config) { c.Tracking.Driver = "redis" }, "tracking.driver"},
		{"zero chunk size", func(c *Config) { c.Chunking.Size = 0 }, "chunking.size"},
		{"encryption without key material", func(c *Config) { c.Encryption.Enabled = true }, "encryption"},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"bad logging format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"cache zero ttl", func(c *Config) {
			c.Cache.Enabled = true
			c.Cache.TTL = 0
		}, "cache.ttl"},
		{"rate limit zero window", func(c *Config) {
			c.RateLimit.Enabled = true
			c.RateLimit.Window = 0
		}, "rate_limit.window"},
		{"tls without cert", func(c *Config) { c.TLS.Enabled = true }, "tls"},
		{"tracing bad exporter", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "zipkin"
		}, "tracing.exporter"},
		{"jaeger without endpoint", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, "jaeger_endpoint"},
		{"sampling ratio out of range", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.SamplingRatio = 1.5
		}, "sampling_ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}
