// Package config provides configuration management for the paper aggregator.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// envPrefix is the prefix for environment variable overrides, e.g.
// PAPERAGG_SOURCES_PUBMED_BASE_URL overrides sources.pubmed.base_url.
const envPrefix = "PAPERAGG"

// Config holds all configuration for the paper aggregator.
type Config struct {
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Journals contains journal metrics table settings.
	Journals JournalsConfig `mapstructure:"journals"`
	// Sources contains paper source API configurations.
	Sources SourcesConfig `mapstructure:"sources"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level" validate:"required,oneof=trace debug info warn error fatal panic"`
	// Format is the log format (json, console, pretty).
	Format string `mapstructure:"format" validate:"required,oneof=json console pretty"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output" validate:"required,oneof=stdout stderr"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection.
	Enabled bool `mapstructure:"enabled"`
	// Namespace is the prefix for all metric names.
	Namespace string `mapstructure:"namespace" validate:"required"`
}

// JournalsConfig holds journal metrics table settings.
type JournalsConfig struct {
	// TablePath is the path to the journal metrics JSON table. When empty,
	// venue lookups return "N/A" metrics and papers are otherwise unaffected.
	TablePath string `mapstructure:"table_path"`
}

// SourcesConfig holds configuration for all paper source APIs.
type SourcesConfig struct {
	// ArXiv contains arXiv API settings.
	ArXiv SourceConfig `mapstructure:"arxiv"`
	// PubMed contains PubMed E-utilities API settings.
	PubMed SourceConfig `mapstructure:"pubmed"`
	// SemanticScholar contains Semantic Scholar Graph API settings.
	SemanticScholar SourceConfig `mapstructure:"semantic_scholar"`
	// OpenAlex contains OpenAlex API settings.
	OpenAlex SourceConfig `mapstructure:"openalex"`
}

// SourceConfig holds configuration for a single paper source API. Fields map
// one-to-one onto the source client Config structs.
type SourceConfig struct {
	// Enabled controls whether this source is constructed and registered.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is the API key, loaded exclusively from the environment
	// (e.g. PAPERAGG_SOURCES_SEMANTIC_SCHOLAR_API_KEY). Only PubMed and
	// Semantic Scholar accept one.
	APIKey string `mapstructure:"-"`
	// Email is the contact address OpenAlex's polite pool expects.
	// Other sources ignore it.
	Email string `mapstructure:"email" validate:"omitempty,email"`
	// BaseURL is the API base URL.
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	// Timeout is the per-request timeout.
	Timeout time.Duration `mapstructure:"timeout" validate:"min=0"`
	// RequestInterval is the minimum spacing between requests.
	RequestInterval time.Duration `mapstructure:"request_interval" validate:"min=0"`
	// MaxRetries bounds total attempts per request.
	MaxRetries int `mapstructure:"max_retries" validate:"min=0"`
	// RetryDelay is the backoff after 5xx or transport failures.
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"min=0"`
	// RateLimitDelay is the backoff after 429 responses.
	RateLimitDelay time.Duration `mapstructure:"rate_limit_delay" validate:"min=0"`
	// UserAgent overrides the default User-Agent header.
	UserAgent string `mapstructure:"user_agent"`
	// MaxPapers is the default per-search result count for this source.
	// The hard cap is 100.
	MaxPapers int `mapstructure:"max_papers" validate:"min=0,max=100"`
}

// Load loads configuration from defaults, an optional YAML file, and
// PAPERAGG_* environment variables, in increasing order of precedence.
//
// A non-empty path names the config file to read and must parse. An empty
// path searches for config.yaml in the working directory; its absence is not
// an error, since defaults and environment overrides describe a complete
// setup on their own.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var configNotFound viper.ConfigFileNotFoundError
			if !errors.As(err, &configNotFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Load secrets exclusively from environment variables.
	// These fields use mapstructure:"-" to prevent loading from config files.
	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// Only PubMed and Semantic Scholar accept API keys; arXiv and OpenAlex are
// keyless.
func loadSecrets(cfg *Config) {
	cfg.Sources.PubMed.APIKey = os.Getenv("PAPERAGG_SOURCES_PUBMED_API_KEY")
	cfg.Sources.SemanticScholar.APIKey = os.Getenv("PAPERAGG_SOURCES_SEMANTIC_SCHOLAR_API_KEY")
}

// validate is shared across Validate calls; it caches struct metadata
// internally and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration against the constraints declared in
// the struct tags.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", "paper_aggregator")

	// Journal metrics defaults
	v.SetDefault("journals.table_path", "")

	// Source defaults - arXiv
	v.SetDefault("sources.arxiv.enabled", true)
	v.SetDefault("sources.arxiv.base_url", "https://export.arxiv.org/api/query")
	v.SetDefault("sources.arxiv.timeout", "30s")
	v.SetDefault("sources.arxiv.request_interval", "3s") // arXiv asks for one request every 3 seconds
	v.SetDefault("sources.arxiv.max_retries", 3)
	v.SetDefault("sources.arxiv.retry_delay", "5s")
	v.SetDefault("sources.arxiv.rate_limit_delay", "30s")
	v.SetDefault("sources.arxiv.max_papers", 10)

	// Source defaults - PubMed
	// API keys are loaded exclusively from environment variables (see loadSecrets).
	v.SetDefault("sources.pubmed.enabled", true)
	v.SetDefault("sources.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("sources.pubmed.timeout", "30s")
	v.SetDefault("sources.pubmed.request_interval", "3s")
	v.SetDefault("sources.pubmed.max_retries", 3)
	v.SetDefault("sources.pubmed.retry_delay", "5s")
	v.SetDefault("sources.pubmed.rate_limit_delay", "30s")
	v.SetDefault("sources.pubmed.max_papers", 10)

	// Source defaults - Semantic Scholar
	v.SetDefault("sources.semantic_scholar.enabled", true)
	v.SetDefault("sources.semantic_scholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("sources.semantic_scholar.timeout", "30s")
	v.SetDefault("sources.semantic_scholar.request_interval", "3s")
	v.SetDefault("sources.semantic_scholar.max_retries", 3)
	v.SetDefault("sources.semantic_scholar.retry_delay", "5s")
	v.SetDefault("sources.semantic_scholar.rate_limit_delay", "30s")
	v.SetDefault("sources.semantic_scholar.max_papers", 10)

	// Source defaults - OpenAlex
	v.SetDefault("sources.openalex.enabled", true)
	v.SetDefault("sources.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("sources.openalex.email", "")
	v.SetDefault("sources.openalex.timeout", "30s")
	v.SetDefault("sources.openalex.request_interval", "3s")
	v.SetDefault("sources.openalex.max_retries", 3)
	v.SetDefault("sources.openalex.retry_delay", "5s")
	v.SetDefault("sources.openalex.rate_limit_delay", "30s")
	v.SetDefault("sources.openalex.max_papers", 10)
}
