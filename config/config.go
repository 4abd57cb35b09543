// ABOUTME: Configuration for the compliance API client and CLI
// ABOUTME: Loads from .env and environment variables, with an optional YAML file overlay

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// API
	APIBaseURL     string        // base URL of the compliance API (required)
	RequestTimeout time.Duration // per-request timeout (default 30s)
	CacheTTL       time.Duration // query cache staleness window (default 5m)

	// Search
	SearchDebounce  time.Duration // quiet period before a search term settles (default 300ms)
	SearchMinLength int           // shortest term that triggers a search (default 2)

	// Auth. A static access token is enough for short-lived runs; the token
	// endpoint fields enable refresh on 401.
	AccessToken  string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string

	// Transport
	CACert            string // PEM bundle appended to the system pool
	SkipSSLValidation bool   // explicit opt-in for insecure connections
	ProxyURL          string // SOCKS5 proxy, e.g. socks5://host:port

	// Metrics
	MetricsPort int // /metrics listener port; 0 disables it
}

// RefreshConfigured returns true if the token endpoint credentials are set.
func (c *Config) RefreshConfigured() bool {
	return c.TokenURL != "" && c.RefreshToken != ""
}

// MetricsEnabled returns true if a /metrics listener should be started.
func (c *Config) MetricsEnabled() bool {
	return c.MetricsPort > 0
}

func Load() (*Config, error) {
	cfg, err := loadEnv()
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads from the environment first, then overlays non-empty values
// from a YAML file. File values win: a --config path is an explicit choice.
// Validation runs after the overlay, so the file can supply what the
// environment is missing.
func LoadFile(path string) (*Config, error) {
	cfg, err := loadEnv()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	if err := fc.apply(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnv() (*Config, error) {
	// .env is an optional local convenience; deployed environments set
	// variables directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		APIBaseURL:     ensureScheme(os.Getenv("API_BASE_URL")),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		CacheTTL:       getEnvDuration("CACHE_TTL", 5*time.Minute),

		SearchDebounce:  getEnvDuration("SEARCH_DEBOUNCE", 300*time.Millisecond),
		SearchMinLength: getEnvInt("SEARCH_MIN_LENGTH", 2),

		AccessToken:  os.Getenv("ACCESS_TOKEN"),
		TokenURL:     ensureScheme(os.Getenv("TOKEN_URL")),
		ClientID:     getEnv("OAUTH_CLIENT_ID", "compliance-dashboard"),
		ClientSecret: os.Getenv("OAUTH_CLIENT_SECRET"),
		RefreshToken: os.Getenv("REFRESH_TOKEN"),

		CACert:            os.Getenv("CA_CERT"),
		SkipSSLValidation: getEnvBool("SKIP_SSL_VALIDATION", false),
		ProxyURL:          os.Getenv("PROXY_URL"),

		MetricsPort: getEnvInt("METRICS_PORT", 0),
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("API_BASE_URL is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.SearchMinLength < 1 || c.SearchMinLength > 64 {
		return fmt.Errorf("SEARCH_MIN_LENGTH must be between 1 and 64, got %d", c.SearchMinLength)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("METRICS_PORT must be between 0 and 65535, got %d", c.MetricsPort)
	}
	return nil
}

// fileConfig mirrors Config for the YAML overlay. Durations are strings
// ("30s", "5m") so the file stays human-editable.
type fileConfig struct {
	APIBaseURL        string `yaml:"api_base_url"`
	RequestTimeout    string `yaml:"request_timeout"`
	CacheTTL          string `yaml:"cache_ttl"`
	SearchDebounce    string `yaml:"search_debounce"`
	SearchMinLength   *int   `yaml:"search_min_length"`
	AccessToken       string `yaml:"access_token"`
	TokenURL          string `yaml:"token_url"`
	ClientID          string `yaml:"client_id"`
	ClientSecret      string `yaml:"client_secret"`
	RefreshToken      string `yaml:"refresh_token"`
	CACert            string `yaml:"ca_cert"`
	SkipSSLValidation *bool  `yaml:"skip_ssl_validation"`
	ProxyURL          string `yaml:"proxy_url"`
	MetricsPort       *int   `yaml:"metrics_port"`
}

func (fc *fileConfig) apply(cfg *Config) error {
	if fc.APIBaseURL != "" {
		cfg.APIBaseURL = ensureScheme(fc.APIBaseURL)
	}
	for _, d := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"request_timeout", fc.RequestTimeout, &cfg.RequestTimeout},
		{"cache_ttl", fc.CacheTTL, &cfg.CacheTTL},
		{"search_debounce", fc.SearchDebounce, &cfg.SearchDebounce},
	} {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("failed to parse %s %q: %w", d.name, d.value, err)
		}
		*d.dst = parsed
	}
	if fc.SearchMinLength != nil {
		cfg.SearchMinLength = *fc.SearchMinLength
	}
	if fc.AccessToken != "" {
		cfg.AccessToken = fc.AccessToken
	}
	if fc.TokenURL != "" {
		cfg.TokenURL = ensureScheme(fc.TokenURL)
	}
	if fc.ClientID != "" {
		cfg.ClientID = fc.ClientID
	}
	if fc.ClientSecret != "" {
		cfg.ClientSecret = fc.ClientSecret
	}
	if fc.RefreshToken != "" {
		cfg.RefreshToken = fc.RefreshToken
	}
	if fc.CACert != "" {
		cfg.CACert = fc.CACert
	}
	if fc.SkipSSLValidation != nil {
		cfg.SkipSSLValidation = *fc.SkipSSLValidation
	}
	if fc.ProxyURL != "" {
		cfg.ProxyURL = fc.ProxyURL
	}
	if fc.MetricsPort != nil {
		cfg.MetricsPort = *fc.MetricsPort
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("30s", "5m") and, for
// compatibility with plain-integer settings, bare numbers as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

// ensureScheme adds https:// prefix if the URL has no scheme
func ensureScheme(url string) string {
	if url == "" {
		return url
	}
	if !strings.Contains(url, "://") {
		return "https://" + url
	}
	return url
}
