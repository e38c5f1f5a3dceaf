package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultChunkSize is the segment size and chunking threshold used when
// chunking.size is not configured. The chat API rejects bot document uploads
// past 20 MiB, so the default stays just under that.
const DefaultChunkSize = 19 * 1024 * 1024

// Config holds the complete application configuration.
type Config struct {
	ListenAddr string           `yaml:"listen_addr" env:"LISTEN_ADDR"`
	LogLevel   string           `yaml:"log_level" env:"LOG_LEVEL"`
	Remote     RemoteConfig     `yaml:"remote"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Logging    LoggingConfig    `yaml:"logging"`
	Cache      CacheConfig      `yaml:"cache"`
	Audit      AuditConfig      `yaml:"audit"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Server     ServerConfig     `yaml:"server"`
	TLS        TLSConfig        `yaml:"tls"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

// TLSConfig enables HTTPS on the listener.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" env:"TLS_ENABLED"`
	CertFile string `yaml:"cert_file" env:"TLS_CERT_FILE"`
	KeyFile  string `yaml:"key_file" env:"TLS_KEY_FILE"`
}

// RemoteConfig selects and configures the remote store segments are
// uploaded to.
type RemoteConfig struct {
	Driver   string         `yaml:"driver" env:"REMOTE_DRIVER"` // telegram, s3
	Telegram TelegramConfig `yaml:"telegram"`
	S3       S3Config       `yaml:"s3"`
}

// TelegramConfig holds Bot API credentials and endpoints.
type TelegramConfig struct {
	BotToken string        `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	ChatID   string        `yaml:"chat_id" env:"TELEGRAM_CHAT_ID"`
	APIBase  string        `yaml:"api_base" env:"TELEGRAM_API_BASE"`
	Timeout  time.Duration `yaml:"timeout" env:"TELEGRAM_TIMEOUT"`
}

// S3Config holds S3 backend configuration for the alternative remote.
type S3Config struct {
	Endpoint     string `yaml:"endpoint" env:"S3_ENDPOINT"`
	Region       string `yaml:"region" env:"S3_REGION"`
	AccessKey    string `yaml:"access_key" env:"S3_ACCESS_KEY"`
	SecretKey    string `yaml:"secret_key" env:"S3_SECRET_KEY"`
	Bucket       string `yaml:"bucket" env:"S3_BUCKET"`
	UsePathStyle bool   `yaml:"use_path_style" env:"S3_USE_PATH_STYLE"`
}

// TrackingConfig selects the metadata tracker backend.
type TrackingConfig struct {
	Enabled     bool   `yaml:"enabled" env:"TRACKING_ENABLED"`
	Driver      string `yaml:"driver" env:"TRACKING_DRIVER"` // memory, json, postgres, none
	JSONPath    string `yaml:"json_path" env:"TRACKING_JSON_PATH"`
	PostgresDSN string `yaml:"postgres_dsn" env:"TRACKING_POSTGRES_DSN"`
}

// ChunkingConfig controls splitting of oversized payloads.
type ChunkingConfig struct {
	Enabled bool  `yaml:"enabled" env:"CHUNKING_ENABLED"`
	Size    int64 `yaml:"size" env:"CHUNKING_SIZE"` // bytes
}

// EncryptionConfig holds segment encryption settings. Key accepts the
// "base64:" prefix convention and must resolve to exactly 32 bytes; when
// empty the key is derived from AppSecret.
type EncryptionConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENCRYPTION_ENABLED"`
	Key       string `yaml:"key" env:"ENCRYPTION_KEY"`
	AppSecret string `yaml:"app_secret" env:"APP_SECRET"`
}

// LoggingConfig controls the operation log side channel.
type LoggingConfig struct {
	Enabled       bool     `yaml:"enabled" env:"LOGGING_ENABLED"`
	Format        string   `yaml:"format" env:"LOGGING_FORMAT"` // json, text, clf
	RedactHeaders []string `yaml:"redact_headers"`
}

// CacheConfig controls the in-memory read cache for file contents.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" env:"CACHE_ENABLED"`
	MaxBytes int64         `yaml:"max_bytes" env:"CACHE_MAX_BYTES"`
	MaxItems int           `yaml:"max_items" env:"CACHE_MAX_ITEMS"`
	TTL      time.Duration `yaml:"ttl" env:"CACHE_TTL"`
}

// AuditConfig controls the in-memory audit trail of file operations.
type AuditConfig struct {
	Enabled   bool `yaml:"enabled" env:"AUDIT_ENABLED"`
	MaxEvents int  `yaml:"max_events" env:"AUDIT_MAX_EVENTS"`
}

// RateLimitConfig controls per-client request limiting.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	Limit   int           `yaml:"limit" env:"RATE_LIMIT_LIMIT"`
	Window  time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"SERVER_READ_HEADER_TIMEOUT"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes" env:"SERVER_MAX_HEADER_BYTES"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" env:"SERVER_MAX_BODY_BYTES"` // 0 disables the limit
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled" env:"TRACING_ENABLED"`
	ServiceName    string  `yaml:"service_name" env:"TRACING_SERVICE_NAME"`
	ServiceVersion string  `yaml:"service_version" env:"TRACING_SERVICE_VERSION"`
	Exporter       string  `yaml:"exporter" env:"TRACING_EXPORTER"` // stdout, jaeger, otlp
	JaegerEndpoint string  `yaml:"jaeger_endpoint" env:"TRACING_JAEGER_ENDPOINT"`
	OtlpEndpoint   string  `yaml:"otlp_endpoint" env:"TRACING_OTLP_ENDPOINT"`
	SamplingRatio  float64 `yaml:"sampling_ratio" env:"TRACING_SAMPLING_RATIO"`
}

// LoadConfig loads configuration from a file and environment variables.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Remote: RemoteConfig{
			Driver: "telegram",
			Telegram: TelegramConfig{
				APIBase: "https://api.telegram.org",
				Timeout: 120 * time.Second,
			},
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Tracking: TrackingConfig{
			Enabled:  true,
			Driver:   "memory",
			JSONPath: "files.json",
		},
		Chunking: ChunkingConfig{
			Enabled: true,
			Size:    DefaultChunkSize,
		},
		Logging: LoggingConfig{
			Enabled:       true,
			Format:        "json",
			RedactHeaders: []string{"authorization", "x-api-key", "cookie"},
		},
		Cache: CacheConfig{
			Enabled:  false,
			MaxBytes: 256 * 1024 * 1024,
			MaxItems: 1024,
			TTL:      5 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:   false,
			MaxEvents: 1000,
		},
		RateLimit: RateLimitConfig{
			Enabled: false,
			Limit:   100,
			Window:  time.Minute,
		},
		Server: ServerConfig{
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			MaxHeaderBytes:    1 << 20, // 1MB
			MaxBodyBytes:      0,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			ServiceName:    "chat-storage-gateway",
			ServiceVersion: "dev",
			Exporter:       "stdout",
			SamplingRatio:  1.0,
		},
	}

	// Load from file if provided
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Override with environment variables
	loadFromEnv(config)

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromEnv loads configuration values from environment variables.
func loadFromEnv(config *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		config.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("REMOTE_DRIVER"); v != "" {
		config.Remote.Driver = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		config.Remote.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		config.Remote.Telegram.ChatID = v
	}
	if v := os.Getenv("TELEGRAM_API_BASE"); v != "" {
		config.Remote.Telegram.APIBase = v
	}
	if v := os.Getenv("TELEGRAM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Remote.Telegram.Timeout = d
		}
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		config.Remote.S3.Endpoint = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		config.Remote.S3.Region = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		config.Remote.S3.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		config.Remote.S3.SecretKey = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		config.Remote.S3.Bucket = v
	}
	if v := os.Getenv("S3_USE_PATH_STYLE"); v != "" {
		config.Remote.S3.UsePathStyle = v == "true" || v == "1"
	}
	if v := os.Getenv("TRACKING_ENABLED"); v != "" {
		config.Tracking.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TRACKING_DRIVER"); v != "" {
		config.Tracking.Driver = v
	}
	if v := os.Getenv("TRACKING_JSON_PATH"); v != "" {
		config.Tracking.JSONPath = v
	}
	if v := os.Getenv("TRACKING_POSTGRES_DSN"); v != "" {
		config.Tracking.PostgresDSN = v
	}
	if v := os.Getenv("CHUNKING_ENABLED"); v != "" {
		config.Chunking.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CHUNKING_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil && size > 0 {
			config.Chunking.Size = size
		}
	}
	if v := os.Getenv("ENCRYPTION_ENABLED"); v != "" {
		config.Encryption.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		config.Encryption.Key = v
	}
	if v := os.Getenv("APP_SECRET"); v != "" {
		config.Encryption.AppSecret = v
	}
	if v := os.Getenv("LOGGING_ENABLED"); v != "" {
		config.Logging.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("LOGGING_FORMAT"); v != "" {
		config.Logging.Format = v
	}
	if v := os.Getenv("CACHE_ENABLED"); v != "" {
		config.Cache.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CACHE_MAX_BYTES"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil && size > 0 {
			config.Cache.MaxBytes = size
		}
	}
	if v := os.Getenv("CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Cache.MaxItems = n
		}
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Cache.TTL = d
		}
	}
	if v := os.Getenv("AUDIT_ENABLED"); v != "" {
		config.Audit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("AUDIT_MAX_EVENTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Audit.MaxEvents = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		config.RateLimit.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("RATE_LIMIT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.RateLimit.Limit = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.RateLimit.Window = d
		}
	}
	if v := os.Getenv("TLS_ENABLED"); v != "" {
		config.TLS.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TLS_CERT_FILE"); v != "" {
		config.TLS.CertFile = v
	}
	if v := os.Getenv("TLS_KEY_FILE"); v != "" {
		config.TLS.KeyFile = v
	}
	// Server timeouts from environment
	if v := os.Getenv("SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.WriteTimeout = d
		}
	}
	if v := os.Getenv("SERVER_IDLE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.IdleTimeout = d
		}
	}
	if v := os.Getenv("SERVER_READ_HEADER_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Server.ReadHeaderTimeout = d
		}
	}
	if v := os.Getenv("SERVER_MAX_HEADER_BYTES"); v != "" {
		var maxBytes int
		if _, err := fmt.Sscanf(v, "%d", &maxBytes); err == nil && maxBytes > 0 {
			config.Server.MaxHeaderBytes = maxBytes
		}
	}
	if v := os.Getenv("SERVER_MAX_BODY_BYTES"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil && size >= 0 {
			config.Server.MaxBodyBytes = size
		}
	}
	// Tracing configuration
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		config.Tracing.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TRACING_SERVICE_NAME"); v != "" {
		config.Tracing.ServiceName = v
	}
	if v := os.Getenv("TRACING_SERVICE_VERSION"); v != "" {
		config.Tracing.ServiceVersion = v
	}
	if v := os.Getenv("TRACING_EXPORTER"); v != "" {
		config.Tracing.Exporter = v
	}
	if v := os.Getenv("TRACING_JAEGER_ENDPOINT"); v != "" {
		config.Tracing.JaegerEndpoint = v
	}
	if v := os.Getenv("TRACING_OTLP_ENDPOINT"); v != "" {
		config.Tracing.OtlpEndpoint = v
	}
	if v := os.Getenv("TRACING_SAMPLING_RATIO"); v != "" {
		if ratio, err := strconv.ParseFloat(v, 64); err == nil && ratio >= 0.0 && ratio <= 1.0 {
			config.Tracing.SamplingRatio = ratio
		}
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}

	switch c.Remote.Driver {
	case "telegram":
		if c.Remote.Telegram.BotToken == "" {
			return fmt.Errorf("remote.telegram.bot_token is required")
		}
		if c.Remote.Telegram.ChatID == "" {
			return fmt.Errorf("remote.telegram.chat_id is required")
		}
	case "s3":
		if c.Remote.S3.Bucket == "" {
			return fmt.Errorf("remote.s3.bucket is required")
		}
		if c.Remote.S3.AccessKey == "" {
			return fmt.Errorf("remote.s3.access_key is required")
		}
		if c.Remote.S3.SecretKey == "" {
			return fmt.Errorf("remote.s3.secret_key is required")
		}
	default:
		return fmt.Errorf("invalid remote.driver: %s (must be telegram or s3)", c.Remote.Driver)
	}

	if c.Tracking.Enabled {
		switch c.Tracking.Driver {
		case "memory", "none":
		case "json":
			if c.Tracking.JSONPath == "" {
				return fmt.Errorf("tracking.json_path is required when tracking.driver is json")
			}
		case "postgres":
			if c.Tracking.PostgresDSN == "" {
				return fmt.Errorf("tracking.postgres_dsn is required when tracking.driver is postgres")
			}
		default:
			return fmt.Errorf("invalid tracking.driver: %s (must be memory, json, postgres, or none)", c.Tracking.Driver)
		}
	}

	if c.Chunking.Enabled && c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive")
	}

	if c.Encryption.Enabled && c.Encryption.Key == "" && c.Encryption.AppSecret == "" {
		return fmt.Errorf("either encryption.key or encryption.app_secret is required when encryption is enabled")
	}

	if c.LogLevel != "" {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[c.LogLevel] {
			return fmt.Errorf("invalid log_level: %s (must be debug, info, warn, or error)", c.LogLevel)
		}
	}

	if f := strings.TrimSpace(c.Logging.Format); f != "" && f != "json" && f != "text" && f != "clf" {
		return fmt.Errorf("invalid logging.format: %s (must be json, text, or clf)", c.Logging.Format)
	}

	if c.Cache.Enabled {
		if c.Cache.MaxBytes <= 0 {
			return fmt.Errorf("cache.max_bytes must be positive")
		}
		if c.Cache.MaxItems <= 0 {
			return fmt.Errorf("cache.max_items must be positive")
		}
		if c.Cache.TTL <= 0 {
			return fmt.Errorf("cache.ttl must be positive")
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Limit <= 0 {
			return fmt.Errorf("rate_limit.limit must be positive")
		}
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate_limit.window must be positive")
		}
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when tls is enabled")
		}
	}

	// Validate tracing configuration
	if c.Tracing.Enabled {
		if c.Tracing.ServiceName == "" {
			return fmt.Errorf("tracing.service_name is required when tracing is enabled")
		}
		validExporters := map[string]bool{
			"stdout": true,
			"jaeger": true,
			"otlp":   true,
		}
		if !validExporters[c.Tracing.Exporter] {
			return fmt.Errorf("invalid tracing.exporter: %s (must be stdout, jaeger, or otlp)", c.Tracing.Exporter)
		}
		if c.Tracing.SamplingRatio < 0.0 || c.Tracing.SamplingRatio > 1.0 {
			return fmt.Errorf("tracing.sampling_ratio must be between 0.0 and 1.0")
		}
		if c.Tracing.Exporter == "jaeger" && c.Tracing.JaegerEndpoint == "" {
			return fmt.Errorf("tracing.jaeger_endpoint is required when exporter is jaeger")
		}
		if c.Tracing.Exporter == "otlp" && c.Tracing.OtlpEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is otlp")
		}
	}

	return nil
}
