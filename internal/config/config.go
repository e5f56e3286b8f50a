package config

import (
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anime-shed/blur-inspector-go/internal/analyzer"
	"github.com/anime-shed/blur-inspector-go/internal/storage"
)

type Config struct {
	Host               string        `yaml:"host"`
	Port               string        `yaml:"port"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	ScanTimeout        time.Duration `yaml:"scan_timeout"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`

	// Scoring
	BlurThreshold float64 `yaml:"blur_threshold"`
	Border        string  `yaml:"border"`
	ChannelOrder  string  `yaml:"channel_order"`
	ScorerBackend string  `yaml:"scorer_backend"`

	// Batching
	ChunkSize         int           `yaml:"chunk_size"`
	PurgeChunkSize    int           `yaml:"purge_chunk_size"`
	DeleteChunkSize   int           `yaml:"delete_chunk_size"`
	DeleteParallelism int           `yaml:"delete_parallelism"`
	Workers           int           `yaml:"workers"`
	ImageTimeout      time.Duration `yaml:"image_timeout"`

	// Image source
	SourceType        string        `yaml:"source_type"`
	SourceRoot        string        `yaml:"source_root"`
	UseExif           bool          `yaml:"use_exif"`
	AzureAccountName  string        `yaml:"azure_account_name"`
	AzureAccountKey   string        `yaml:"azure_account_key"`
	AzureContainer    string        `yaml:"azure_container"`
	AzurePrefix       string        `yaml:"azure_prefix"`
	ImageURLs         []string      `yaml:"image_urls"`
	ImageFetchTimeout time.Duration `yaml:"image_fetch_timeout"`

	// Scan history; empty keeps runs in memory
	DatabasePath string `yaml:"database_path"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Host:               "0.0.0.0",
		Port:               "8080",
		RequestTimeout:     30 * time.Second,
		ScanTimeout:        15 * time.Minute,
		MaxRequestBodySize: 1024 * 1024, // 1MB
		BlurThreshold:      analyzer.DefaultBlurThreshold,
		Border:             string(analyzer.BorderReplicate),
		ChannelOrder:       string(analyzer.ChannelOrderBGR),
		ScorerBackend:      string(analyzer.BackendNative),
		ChunkSize:          30,
		PurgeChunkSize:     100,
		DeleteChunkSize:    100,
		DeleteParallelism:  8,
		Workers:            0,
		ImageTimeout:       30 * time.Second,
		SourceType:         string(storage.SourceLocal),
		SourceRoot:         ".",
		ImageFetchTimeout:  15 * time.Second,
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// LoadFromEnv builds the configuration from defaults, the YAML file named by
// CONFIG_FILE (if any) and then environment variables, in that order.
func LoadFromEnv() (*Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.Host = getEnvOrDefault("HOST", cfg.Host)
	cfg.Port = getEnvOrDefault("PORT", cfg.Port)
	cfg.RequestTimeout = parseDurationOrDefault("REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.ScanTimeout = parseDurationOrDefault("SCAN_TIMEOUT", cfg.ScanTimeout)
	cfg.MaxRequestBodySize = parseIntOrDefault("MAX_REQUEST_BODY_SIZE", cfg.MaxRequestBodySize)

	cfg.BlurThreshold = parseFloatOrDefault("BLUR_THRESHOLD", cfg.BlurThreshold)
	cfg.Border = getEnvOrDefault("BORDER_MODE", cfg.Border)
	cfg.ChannelOrder = getEnvOrDefault("CHANNEL_ORDER", cfg.ChannelOrder)
	cfg.ScorerBackend = getEnvOrDefault("SCORER_BACKEND", cfg.ScorerBackend)

	cfg.ChunkSize = int(parseIntOrDefault("CHUNK_SIZE", int64(cfg.ChunkSize)))
	cfg.PurgeChunkSize = int(parseIntOrDefault("PURGE_CHUNK_SIZE", int64(cfg.PurgeChunkSize)))
	cfg.DeleteChunkSize = int(parseIntOrDefault("DELETE_CHUNK_SIZE", int64(cfg.DeleteChunkSize)))
	cfg.DeleteParallelism = int(parseIntOrDefault("DELETE_PARALLELISM", int64(cfg.DeleteParallelism)))
	cfg.Workers = int(parseIntOrDefault("WORKERS", int64(cfg.Workers)))
	cfg.ImageTimeout = parseDurationOrDefault("IMAGE_TIMEOUT", cfg.ImageTimeout)

	cfg.SourceType = getEnvOrDefault("SOURCE_TYPE", cfg.SourceType)
	cfg.SourceRoot = getEnvOrDefault("SOURCE_ROOT", cfg.SourceRoot)
	cfg.UseExif = parseBoolOrDefault("USE_EXIF", cfg.UseExif)
	cfg.AzureAccountName = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", cfg.AzureAccountName)
	cfg.AzureAccountKey = getEnvOrDefault("AZURE_STORAGE_KEY", cfg.AzureAccountKey)
	cfg.AzureContainer = getEnvOrDefault("AZURE_CONTAINER", cfg.AzureContainer)
	cfg.AzurePrefix = getEnvOrDefault("AZURE_PREFIX", cfg.AzurePrefix)
	if urls := os.Getenv("IMAGE_URLS"); urls != "" {
		cfg.ImageURLs = strings.Split(urls, ",")
	}
	cfg.ImageFetchTimeout = parseDurationOrDefault("IMAGE_FETCH_TIMEOUT", cfg.ImageFetchTimeout)

	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvOrDefault("LOG_FORMAT", cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays the values set in a YAML file
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate rejects settings the scan engine cannot run with
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.ScanTimeout <= 0 || c.ImageTimeout <= 0 || c.ImageFetchTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, scan=%s, image=%s, fetch=%s)",
			c.RequestTimeout, c.ScanTimeout, c.ImageTimeout, c.ImageFetchTimeout)
	}
	if math.IsNaN(c.BlurThreshold) || math.IsInf(c.BlurThreshold, 0) || c.BlurThreshold < 0 {
		return fmt.Errorf("BLUR_THRESHOLD must be a non-negative number (got %v)", c.BlurThreshold)
	}
	if c.ChunkSize <= 0 || c.PurgeChunkSize <= 0 || c.DeleteChunkSize <= 0 {
		return fmt.Errorf("chunk sizes must be > 0 (got scan=%d, purge=%d, delete=%d)",
			c.ChunkSize, c.PurgeChunkSize, c.DeleteChunkSize)
	}
	if c.Workers < 0 || c.DeleteParallelism < 0 {
		return fmt.Errorf("WORKERS and DELETE_PARALLELISM cannot be negative")
	}
	if _, err := analyzer.ParseBorderMode(c.Border); err != nil {
		return err
	}
	if _, err := analyzer.ParseChannelOrder(c.ChannelOrder); err != nil {
		return err
	}

	switch storage.SourceType(c.SourceType) {
	case storage.SourceLocal:
		if strings.TrimSpace(c.SourceRoot) == "" {
			return fmt.Errorf("SOURCE_ROOT is required for a local source")
		}
	case storage.SourceAzure:
		if c.AzureAccountName == "" || c.AzureAccountKey == "" || c.AzureContainer == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT, AZURE_STORAGE_KEY and AZURE_CONTAINER are required for an azure source")
		}
	case storage.SourceHTTP:
		if len(c.ImageURLs) == 0 {
			return fmt.Errorf("IMAGE_URLS is required for an http source")
		}
	default:
		return fmt.Errorf("unsupported SOURCE_TYPE: %q", c.SourceType)
	}
	return nil
}

// ScoringOptions converts the scoring settings. Call Validate first.
func (c *Config) ScoringOptions() analyzer.ScoringOptions {
	border, _ := analyzer.ParseBorderMode(c.Border)
	order, _ := analyzer.ParseChannelOrder(c.ChannelOrder)
	return analyzer.DefaultOptions().
		WithThreshold(c.BlurThreshold).
		WithBorder(border).
		WithChannelOrder(order).
		WithMaxWorkers(c.Workers)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func parseFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return defaultValue
}
