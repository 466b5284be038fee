package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"go-upstream-guard/internal/cache_rules"
)

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig                 `yaml:"server"`
	BigCache   BigCacheConfig               `yaml:"bigcache"`
	KeyDB      KeyDBConfig                  `yaml:"keydb"`
	MultiCache MultiCacheConfig             `yaml:"multi_cache"`
	CacheRules cache_rules.CacheRulesConfig `yaml:"cache_rules"`
	// CacheRulesPath overrides the inline cache_rules section when set
	CacheRulesPath string          `yaml:"cache_rules_path"`
	Store          StoreConfig     `yaml:"store"`
	Blob           BlobConfig      `yaml:"blob"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Quota          QuotaConfig     `yaml:"quota"`
	Fetcher        FetcherConfig   `yaml:"fetcher"`
	Lease          LeaseConfig     `yaml:"lease"`
	Photo          PhotoConfig     `yaml:"photo"`
	Places         PlacesConfig    `yaml:"places"`
	Gemini         GeminiConfig    `yaml:"gemini"`
	Auth           AuthConfig      `yaml:"auth"`
	Analytics      AnalyticsConfig `yaml:"analytics"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// BigCacheConfig configures the in-process L1 level
type BigCacheConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Size            int           `yaml:"size" validate:"gte=0"` // MB
	MaxEntrySize    int           `yaml:"max_entry_size" validate:"gte=0"`
	MetricsInterval time.Duration `yaml:"metrics_interval"`
}

// KeyDBConfig configures the KeyDB/Redis connection. URL is normally resolved
// from the environment by the command, see GetKeyDBURL.
type KeyDBConfig struct {
	URL          string        `yaml:"url"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size" validate:"gte=0"`
}

type MultiCacheConfig struct {
	L2Enabled         bool `yaml:"l2_enabled"`
	EnablePropagation bool `yaml:"enable_propagation"`
}

// StoreConfig selects the durable document store
type StoreConfig struct {
	Backend string    `yaml:"backend" validate:"oneof=memory keydb sql"`
	SQL     SQLConfig `yaml:"sql"`
}

type SQLConfig struct {
	Driver string `yaml:"driver" validate:"omitempty,oneof=postgres mysql sqlite3"`
	DSN    string `yaml:"dsn"`
}

// BlobConfig selects the durable blob store. fs keeps objects below Dir,
// bucket opens URL (file:// or mem://), keydb stores them next to the documents.
type BlobConfig struct {
	Backend       string `yaml:"backend" validate:"oneof=fs bucket keydb"`
	Dir           string `yaml:"dir"`
	URL           string `yaml:"url" validate:"required_if=Backend bucket"`
	PublicBaseURL string `yaml:"public_base_url" validate:"required,url"`
}

type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Limit   int           `yaml:"limit" validate:"gte=0"`
	Window  time.Duration `yaml:"window"`
	// TrustProxyHeaders takes the client IP from X-Forwarded-For / X-Real-IP
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

type QuotaConfig struct {
	FreeLimit   int           `yaml:"free_limit" validate:"gte=0"`
	ResetPeriod time.Duration `yaml:"reset_period"`
}

type FetcherConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// LeaseConfig configures cross-instance coalescing of photo downloads
type LeaseConfig struct {
	Enabled      bool          `yaml:"enabled"`
	TTL          time.Duration `yaml:"ttl"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

type PhotoConfig struct {
	PlaceholderURL string `yaml:"placeholder_url" validate:"required"`
	MaxWidthPx     int    `yaml:"max_width_px" validate:"gte=1,lte=4800"`
}

type PlacesConfig struct {
	BaseURL   string        `yaml:"base_url" validate:"required,url"`
	APIKey    string        `yaml:"api_key"`
	FieldMask string        `yaml:"field_mask"`
	Timeout   time.Duration `yaml:"timeout"`
}

type GeminiConfig struct {
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type AnalyticsConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size" validate:"gte=0"`
}

var validate = validator.New()

// LoadConfig loads configuration from file path
func LoadConfig(configPath string, logger *zap.Logger) (*Config, error) {
	logger.Info("Loading configuration", zap.String("path", configPath))

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = file.Close() }()

	// defaults go in first so that keys present in the file, explicit zeros
	// included, override them
	var config Config
	config.applyDefaults()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to decode YAML config: %w", err)
	}

	config.applyEnv()

	if err := validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with every default applied, used when no file is given
func Default() *Config {
	config := &Config{
		BigCache:   BigCacheConfig{Enabled: true},
		MultiCache: MultiCacheConfig{L2Enabled: true, EnablePropagation: true},
		RateLimit:  RateLimitConfig{Enabled: true},
		Analytics:  AnalyticsConfig{Enabled: true},
	}
	config.applyDefaults()
	config.applyEnv()
	return config
}

// applyDefaults sets default values for missing configuration
func (c *Config) applyDefaults() {
	setDefault(&c.Server.Addr, ":8080")
	setDefaultDuration(&c.Server.ReadTimeout, 10*time.Second)
	setDefaultDuration(&c.Server.WriteTimeout, 30*time.Second)
	setDefaultDuration(&c.Server.ShutdownTimeout, 30*time.Second)

	setDefaultInt(&c.BigCache.Size, 100)
	setDefaultInt(&c.BigCache.MaxEntrySize, 1024*1024)
	setDefaultDuration(&c.BigCache.MetricsInterval, 30*time.Second)

	setDefault(&c.KeyDB.Prefix, "upstream-guard:")
	setDefaultDuration(&c.KeyDB.DialTimeout, 5*time.Second)
	setDefaultDuration(&c.KeyDB.ReadTimeout, 3*time.Second)
	setDefaultDuration(&c.KeyDB.WriteTimeout, 3*time.Second)
	setDefaultInt(&c.KeyDB.PoolSize, 10)

	setDefault(&c.Store.Backend, "memory")
	setDefault(&c.Blob.Backend, "fs")
	setDefault(&c.Blob.Dir, "./data/blobs")
	setDefault(&c.Blob.PublicBaseURL, "http://localhost:8080/blobs")

	setDefaultInt(&c.RateLimit.Limit, 60)
	setDefaultDuration(&c.RateLimit.Window, time.Minute)

	setDefaultInt(&c.Quota.FreeLimit, 5)
	setDefaultDuration(&c.Quota.ResetPeriod, 30*24*time.Hour)

	setDefaultDuration(&c.Fetcher.Timeout, 15*time.Second)

	setDefaultDuration(&c.Lease.TTL, 30*time.Second)
	setDefaultDuration(&c.Lease.PollInterval, 500*time.Millisecond)

	setDefault(&c.Photo.PlaceholderURL, "http://localhost:8080/static/placeholder.svg")
	setDefaultInt(&c.Photo.MaxWidthPx, 800)

	setDefault(&c.Places.BaseURL, "https://places.googleapis.com")
	setDefault(&c.Places.FieldMask, "id,displayName,formattedAddress,rating,userRatingCount,types,location,photos")
	setDefaultDuration(&c.Places.Timeout, 10*time.Second)

	setDefault(&c.Gemini.Model, "gemini-2.0-flash")
	setDefaultDuration(&c.Gemini.Timeout, 20*time.Second)

	setDefaultDuration(&c.Auth.TokenTTL, 24*time.Hour)

	setDefaultInt(&c.Analytics.BufferSize, 256)
}

// applyEnv lets secrets come from the environment instead of the file
func (c *Config) applyEnv() {
	overrideFromEnv(&c.Places.APIKey, "PLACES_API_KEY")
	overrideFromEnv(&c.Gemini.APIKey, "GEMINI_API_KEY")
	overrideFromEnv(&c.Auth.JWTSecret, "JWT_SECRET")
	overrideFromEnv(&c.Store.SQL.DSN, "STORE_SQL_DSN")
}

func overrideFromEnv(target *string, name string) {
	if value := os.Getenv(name); value != "" {
		*target = value
	}
}

func setDefault(target *string, value string) {
	if *target == "" {
		*target = value
	}
}

func setDefaultInt(target *int, value int) {
	if *target == 0 {
		*target = value
	}
}

func setDefaultDuration(target *time.Duration, value time.Duration) {
	if *target == 0 {
		*target = value
	}
}
