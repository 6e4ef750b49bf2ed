package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "PROXY_ENDPOINT",
		"UNREMARK_MODEL", "UNREMARK_PROVIDER", "UNREMARK_CACHE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ProviderAuto, cfg.Classifier.Provider)
	assert.Equal(t, DefaultModel, cfg.Classifier.Model)
	assert.Equal(t, 3, cfg.Classifier.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Classifier.GetTimeout())
	assert.Equal(t, time.Second, cfg.Classifier.GetBaseDelay())
	assert.Equal(t, CacheFileName, filepath.Base(cfg.Cache.Path))
	assert.Contains(t, cfg.Scan.Ignore, "node_modules")
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
classifier:
  provider: proxy
  proxy_endpoint: http://127.0.0.1:9000
  timeout: 5s
  max_concurrent: 8
cache:
  max_entries: 50
scan:
  ignore: [vendor]
logging:
  level: debug
  categories:
    extract: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ProviderProxy, cfg.Classifier.Provider)
	assert.Equal(t, "http://127.0.0.1:9000", cfg.Classifier.ProxyEndpoint)
	assert.Equal(t, 5*time.Second, cfg.Classifier.GetTimeout())
	assert.Equal(t, 8, cfg.Classifier.MaxConcurrent)
	assert.Equal(t, 50, cfg.Cache.MaxEntries)
	assert.Equal(t, []string{"vendor"}, cfg.Scan.Ignore)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Categories["extract"])
	// untouched keys keep their defaults
	assert.Equal(t, DefaultModel, cfg.Classifier.Model)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("credentials come from the environment", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("OPENAI_API_KEY", "sk-test")
		t.Setenv("GOOGLE_API_KEY", "g-test")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "sk-test", cfg.Classifier.APIKey)
		assert.Equal(t, "g-test", cfg.Classifier.GeminiAPIKey)
	})

	t.Run("GEMINI_API_KEY wins over GOOGLE_API_KEY", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GEMINI_API_KEY", "gemini")
		t.Setenv("GOOGLE_API_KEY", "google")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "gemini", cfg.Classifier.GeminiAPIKey)
	})

	t.Run("proxy endpoint and provider", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PROXY_ENDPOINT", "http://proxy:5000")
		t.Setenv("UNREMARK_PROVIDER", "PROXY")

		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, "http://proxy:5000", cfg.Classifier.ProxyEndpoint)
		assert.Equal(t, ProviderProxy, cfg.Classifier.Provider)
	})
}

func TestValidate(t *testing.T) {
	clearEnv(t)

	cfg := DefaultConfig()
	cfg.Classifier.Provider = "carrier-pigeon"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Classifier.MaxAttempts = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Classifier.Timeout = "soon"
	assert.Error(t, cfg.Validate())

	assert.NoError(t, DefaultConfig().Validate())
}

func TestSaveRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Classifier.APIKey = "never-written"
	cfg.Cache.MaxEntries = 7
	require.NoError(t, cfg.Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "never-written")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Cache.MaxEntries)
}
