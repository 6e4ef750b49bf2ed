package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultModel is the fine-tuned comment classifier.
	DefaultModel = "ft:gpt-4o-mini-2024-07-18:personal:unremark:Aq45wBQq"

	DefaultEndpoint      = "https://api.openai.com/v1/chat/completions"
	DefaultProxyEndpoint = "http://localhost:5000"
	DefaultGeminiModel   = "gemini-2.5-flash"

	// CacheFileName is the file inside the per-user cache directory.
	CacheFileName = "unremark_cache.json"
)

// Provider names accepted by classifier.provider.
const (
	ProviderAuto   = "auto"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderProxy  = "proxy"
)

// Config holds all unremark configuration.
type Config struct {
	Classifier ClassifierConfig `yaml:"classifier"`
	Cache      CacheConfig      `yaml:"cache"`
	Scan       ScanConfig       `yaml:"scan"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ClassifierConfig configures the external comment judge.
type ClassifierConfig struct {
	Provider      string `yaml:"provider"` // auto, openai, gemini, proxy
	Model         string `yaml:"model"`
	Endpoint      string `yaml:"endpoint"`
	ProxyEndpoint string `yaml:"proxy_endpoint"`
	GeminiModel   string `yaml:"gemini_model"`
	Timeout       string `yaml:"timeout"`
	MaxAttempts   int    `yaml:"max_attempts"`
	BaseDelay     string `yaml:"base_delay"`

	// MaxConcurrent caps in-flight requests per batch; 0 = unbounded.
	MaxConcurrent int `yaml:"max_concurrent"`

	// Credentials are only ever read from the environment.
	APIKey       string `yaml:"-"`
	GeminiAPIKey string `yaml:"-"`
}

// CacheConfig configures the persistent result cache.
type CacheConfig struct {
	Path       string `yaml:"path"`
	MaxEntries int    `yaml:"max_entries"`
	Disabled   bool   `yaml:"disabled"`
}

// ScanConfig configures directory walking.
type ScanConfig struct {
	Ignore []string `yaml:"ignore"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"` // debug, info, warn, error
	JSON       bool            `yaml:"json"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Classifier: ClassifierConfig{
			Provider:      ProviderAuto,
			Model:         DefaultModel,
			Endpoint:      DefaultEndpoint,
			ProxyEndpoint: DefaultProxyEndpoint,
			GeminiModel:   DefaultGeminiModel,
			Timeout:       "30s",
			MaxAttempts:   3,
			BaseDelay:     "1s",
		},
		Cache: CacheConfig{
			Path:       DefaultCachePath(),
			MaxEntries: 10000,
		},
		Scan: ScanConfig{
			Ignore: []string{"venv", "node_modules", ".git", "__pycache__"},
		},
		Logging: LoggingConfig{
			Level: "warn",
		},
	}
}

// DefaultCachePath returns <user cache dir>/unremark/unremark_cache.json,
// falling back to the working directory when no cache dir is known.
func DefaultCachePath() string {
	dir, err := os.UserCacheDir()
	if err != nil || dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "unremark", CacheFileName)
}

// DefaultConfigPath returns the config file consulted when none is given.
func DefaultConfigPath() string {
	if p := os.Getenv("UNREMARK_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ""
	}
	return filepath.Join(dir, "unremark", "config.yaml")
}

// Load loads configuration from a YAML file. A missing file (or an empty
// path) yields the defaults; environment overrides are applied either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Classifier.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Classifier.GeminiAPIKey = v
	} else if v := os.Getenv("GOOGLE_API_KEY"); v != "" {
		c.Classifier.GeminiAPIKey = v
	}
	if v := os.Getenv("PROXY_ENDPOINT"); v != "" {
		c.Classifier.ProxyEndpoint = v
	}
	if v := os.Getenv("UNREMARK_MODEL"); v != "" {
		c.Classifier.Model = v
	}
	if v := os.Getenv("UNREMARK_PROVIDER"); v != "" {
		c.Classifier.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("UNREMARK_CACHE"); v != "" {
		c.Cache.Path = v
	}
}

// Validate rejects settings that would make the classifier unusable.
func (c *Config) Validate() error {
	switch c.Classifier.Provider {
	case "", ProviderAuto, ProviderOpenAI, ProviderGemini, ProviderProxy:
	default:
		return fmt.Errorf("unknown classifier provider %q", c.Classifier.Provider)
	}
	if c.Classifier.MaxAttempts < 1 {
		return fmt.Errorf("classifier.max_attempts must be at least 1, got %d", c.Classifier.MaxAttempts)
	}
	if _, err := time.ParseDuration(c.Classifier.Timeout); err != nil {
		return fmt.Errorf("invalid classifier.timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Classifier.BaseDelay); err != nil {
		return fmt.Errorf("invalid classifier.base_delay: %w", err)
	}
	return nil
}

// GetTimeout returns the per-request timeout.
func (c ClassifierConfig) GetTimeout() time.Duration {
	return parseDurationOr(c.Timeout, 30*time.Second)
}

// GetBaseDelay returns the first backoff delay.
func (c ClassifierConfig) GetBaseDelay() time.Duration {
	return parseDurationOr(c.BaseDelay, time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
