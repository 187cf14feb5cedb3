// Package config provides configuration management for the paper aggregator.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear any existing env vars that might interfere
	clearEnvVars(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Logging defaults
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.False(t, cfg.Logging.AddSource)
	assert.Equal(t, time.RFC3339, cfg.Logging.TimeFormat)

	// Metrics defaults
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "paper_aggregator", cfg.Metrics.Namespace)

	// Journal metrics defaults
	assert.Empty(t, cfg.Journals.TablePath)

	// Source defaults
	assert.True(t, cfg.Sources.ArXiv.Enabled)
	assert.Equal(t, "https://export.arxiv.org/api/query", cfg.Sources.ArXiv.BaseURL)
	assert.True(t, cfg.Sources.PubMed.Enabled)
	assert.Equal(t, "https://eutils.ncbi.nlm.nih.gov/entrez/eutils", cfg.Sources.PubMed.BaseURL)
	assert.True(t, cfg.Sources.SemanticScholar.Enabled)
	assert.Equal(t, "https://api.semanticscholar.org/graph/v1", cfg.Sources.SemanticScholar.BaseURL)
	assert.True(t, cfg.Sources.OpenAlex.Enabled)
	assert.Equal(t, "https://api.openalex.org", cfg.Sources.OpenAlex.BaseURL)

	// Transport defaults are identical for every source.
	for name, src := range map[string]SourceConfig{
		"arxiv":            cfg.Sources.ArXiv,
		"pubmed":           cfg.Sources.PubMed,
		"semantic_scholar": cfg.Sources.SemanticScholar,
		"openalex":         cfg.Sources.OpenAlex,
	} {
		assert.Equal(t, 30*time.Second, src.Timeout, name)
		assert.Equal(t, 3*time.Second, src.RequestInterval, name)
		assert.Equal(t, 3, src.MaxRetries, name)
		assert.Equal(t, 5*time.Second, src.RetryDelay, name)
		assert.Equal(t, 30*time.Second, src.RateLimitDelay, name)
		assert.Equal(t, 10, src.MaxPapers, name)
	}
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	clearEnvVars(t)

	// Set environment variables with PAPERAGG prefix
	t.Setenv("PAPERAGG_LOGGING_LEVEL", "debug")
	t.Setenv("PAPERAGG_LOGGING_FORMAT", "console")
	t.Setenv("PAPERAGG_METRICS_NAMESPACE", "custom_ns")
	t.Setenv("PAPERAGG_JOURNALS_TABLE_PATH", "/data/journals.json")
	t.Setenv("PAPERAGG_SOURCES_ARXIV_ENABLED", "false")
	t.Setenv("PAPERAGG_SOURCES_SEMANTIC_SCHOLAR_REQUEST_INTERVAL", "500ms")
	t.Setenv("PAPERAGG_SOURCES_OPENALEX_EMAIL", "crawler@example.org")
	t.Setenv("PAPERAGG_SOURCES_PUBMED_MAX_PAPERS", "25")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "custom_ns", cfg.Metrics.Namespace)
	assert.Equal(t, "/data/journals.json", cfg.Journals.TablePath)
	assert.False(t, cfg.Sources.ArXiv.Enabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Sources.SemanticScholar.RequestInterval)
	assert.Equal(t, "crawler@example.org", cfg.Sources.OpenAlex.Email)
	assert.Equal(t, 25, cfg.Sources.PubMed.MaxPapers)
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnvVars(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
logging:
  level: debug
  format: console
sources:
  arxiv:
    enabled: false
    request_interval: 10s
  semantic_scholar:
    max_papers: 50
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.False(t, cfg.Sources.ArXiv.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Sources.ArXiv.RequestInterval)
	assert.Equal(t, 50, cfg.Sources.SemanticScholar.MaxPapers)

	// Keys the file does not mention keep their defaults.
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.True(t, cfg.Sources.PubMed.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Sources.PubMed.RequestInterval)
}

func TestLoad_EnvironmentBeatsFile(t *testing.T) {
	clearEnvVars(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "logging:\n  level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	t.Setenv("PAPERAGG_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnvVars(t)

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	clearEnvVars(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging: [unclosed"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_APIKeysFromEnvOnly(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("PAPERAGG_SOURCES_PUBMED_API_KEY", "ncbi-key-test")
	t.Setenv("PAPERAGG_SOURCES_SEMANTIC_SCHOLAR_API_KEY", "ss-key-test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "ncbi-key-test", cfg.Sources.PubMed.APIKey)
	assert.Equal(t, "ss-key-test", cfg.Sources.SemanticScholar.APIKey)
}

func TestLoad_APIKeysIgnoreConfigFile(t *testing.T) {
	clearEnvVars(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "sources:\n  pubmed:\n    api_key: from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	// api_key in a config file has no effect; the field reads only from
	// the environment.
	assert.Empty(t, cfg.Sources.PubMed.APIKey)
}

func TestLoad_APIKeysEmptyByDefault(t *testing.T) {
	clearEnvVars(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.Sources.PubMed.APIKey)
	assert.Empty(t, cfg.Sources.SemanticScholar.APIKey)
}

func TestLoad_ValidationFailure(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("PAPERAGG_LOGGING_LEVEL", "verbose")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestValidate_LogLevel(t *testing.T) {
	validLevels := []string{"trace", "debug", "info", "warn", "error", "fatal", "panic"}
	for _, level := range validLevels {
		t.Run("valid_"+level, func(t *testing.T) {
			cfg := validConfig()
			cfg.Logging.Level = level
			assert.NoError(t, cfg.Validate())
		})
	}

	t.Run("invalid log level", func(t *testing.T) {
		cfg := validConfig()
		cfg.Logging.Level = "verbose"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "'Level' failed on the 'oneof' tag")
	})
}

func TestValidate_Constraints(t *testing.T) {
	tests := []struct {
		name        string
		modifyFunc  func(*Config)
		expectedErr string
	}{
		{
			name: "invalid log format",
			modifyFunc: func(c *Config) {
				c.Logging.Format = "xml"
			},
			expectedErr: "'Format' failed on the 'oneof' tag",
		},
		{
			name: "invalid log output",
			modifyFunc: func(c *Config) {
				c.Logging.Output = "syslog"
			},
			expectedErr: "'Output' failed on the 'oneof' tag",
		},
		{
			name: "empty metrics namespace",
			modifyFunc: func(c *Config) {
				c.Metrics.Namespace = ""
			},
			expectedErr: "'Namespace' failed on the 'required' tag",
		},
		{
			name: "negative source timeout",
			modifyFunc: func(c *Config) {
				c.Sources.ArXiv.Timeout = -time.Second
			},
			expectedErr: "'Timeout' failed on the 'min' tag",
		},
		{
			name: "negative retry count",
			modifyFunc: func(c *Config) {
				c.Sources.PubMed.MaxRetries = -1
			},
			expectedErr: "'MaxRetries' failed on the 'min' tag",
		},
		{
			name: "max papers above the cap",
			modifyFunc: func(c *Config) {
				c.Sources.SemanticScholar.MaxPapers = 150
			},
			expectedErr: "'MaxPapers' failed on the 'max' tag",
		},
		{
			name: "malformed polite pool email",
			modifyFunc: func(c *Config) {
				c.Sources.OpenAlex.Email = "not-an-email"
			},
			expectedErr: "'Email' failed on the 'email' tag",
		},
		{
			name: "malformed base url",
			modifyFunc: func(c *Config) {
				c.Sources.OpenAlex.BaseURL = "not a url"
			},
			expectedErr: "'BaseURL' failed on the 'url' tag",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modifyFunc(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.expectedErr)
		})
	}
}

// clearEnvVars removes all PAPERAGG_ prefixed environment variables.
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		if key, _, ok := strings.Cut(env, "="); ok && strings.HasPrefix(key, "PAPERAGG_") {
			os.Unsetenv(key)
		}
	}
}

// validConfig returns a valid configuration for testing.
func validConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "paper_aggregator",
		},
		Sources: SourcesConfig{
			ArXiv: SourceConfig{
				Enabled: true,
				BaseURL: "https://export.arxiv.org/api/query",
			},
			PubMed: SourceConfig{
				Enabled: true,
				BaseURL: "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
			},
			SemanticScholar: SourceConfig{
				Enabled: true,
				BaseURL: "https://api.semanticscholar.org/graph/v1",
			},
			OpenAlex: SourceConfig{
				Enabled: true,
				BaseURL: "https://api.openalex.org",
			},
		},
	}
}
