// Package config loads service configuration from a YAML file plus
// environment variable overrides, using a two-tier approach: a viper
// singleton provides the normal env+file+default merge, while a direct
// YAML read covers the handful of settings a process needs before viper is
// initialized (notably the database DSN itself).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full set of environment-driven settings the service reads
// at startup.
type Config struct {
	DatabaseDSN string `mapstructure:"database-dsn" yaml:"database-dsn"`

	LLMBaseURL    string        `mapstructure:"llm-base-url" yaml:"llm-base-url"`
	LLMAPIKey     string        `mapstructure:"llm-api-key" yaml:"llm-api-key"`
	LLMModelChain []string      `mapstructure:"llm-model-chain" yaml:"llm-model-chain"`
	LLMTimeout    time.Duration `mapstructure:"llm-timeout" yaml:"llm-timeout"`

	WorkerRequestDelay time.Duration `mapstructure:"worker-request-delay" yaml:"worker-request-delay"`

	WikiAPIBaseURL      string `mapstructure:"wiki-api-base-url" yaml:"wiki-api-base-url"`
	WordPressAPIBaseURL string `mapstructure:"wordpress-api-base-url" yaml:"wordpress-api-base-url"`
	PlanetFeedURL       string `mapstructure:"planet-feed-url" yaml:"planet-feed-url"`

	DumpPath string `mapstructure:"dump-path" yaml:"dump-path"`

	WikiRetentionDays      int `mapstructure:"wiki-retention-days" yaml:"wiki-retention-days"`
	WordPressRetentionDays int `mapstructure:"wordpress-retention-days" yaml:"wordpress-retention-days"`
	PlanetRetentionDays    int `mapstructure:"planet-retention-days" yaml:"planet-retention-days"`

	ClaimTTL         time.Duration `mapstructure:"claim-ttl" yaml:"claim-ttl"`
	MaxAttempts      int           `mapstructure:"max-attempts" yaml:"max-attempts"`
	BackoffBaseDelay time.Duration `mapstructure:"backoff-base-delay" yaml:"backoff-base-delay"`
	BackoffMaxDelay  time.Duration `mapstructure:"backoff-max-delay" yaml:"backoff-max-delay"`

	ChunkSize int `mapstructure:"chunk-size" yaml:"chunk-size"`

	MaxIterations         int  `mapstructure:"max-iterations" yaml:"max-iterations"`
	GraphCitationsEnabled bool `mapstructure:"graph-citations-enabled" yaml:"graph-citations-enabled"`

	OTLPEndpoint string `mapstructure:"otlp-endpoint" yaml:"otlp-endpoint"`
	ServiceName  string `mapstructure:"service-name" yaml:"service-name"`
}

// Default returns a Config populated with sensible defaults (chunk_size=500,
// max_iterations=3, claim TTL, etc.), ready to be overlaid by file and
// environment values.
func Default() Config {
	return Config{
		LLMModelChain:          []string{"claude-3-5-sonnet-latest", "claude-3-5-haiku-latest"},
		LLMTimeout:             120 * time.Second,
		ClaimTTL:               10 * time.Minute,
		MaxAttempts:            5,
		BackoffBaseDelay:       2 * time.Second,
		BackoffMaxDelay:        30 * time.Minute,
		ChunkSize:              500,
		MaxIterations:          3,
		GraphCitationsEnabled:  false,
		PlanetRetentionDays:    90,
		ServiceName:            "wikiqa",
	}
}

// Load merges defaults, an optional YAML file at path, and WIKIQA_*-prefixed
// environment variables (highest precedence) using viper. A missing file is
// not an error: a fully env-driven deployment needn't ship one.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("WIKIQA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("llm-model-chain", cfg.LLMModelChain)
	v.SetDefault("llm-timeout", cfg.LLMTimeout)
	v.SetDefault("claim-ttl", cfg.ClaimTTL)
	v.SetDefault("max-attempts", cfg.MaxAttempts)
	v.SetDefault("backoff-base-delay", cfg.BackoffBaseDelay)
	v.SetDefault("backoff-max-delay", cfg.BackoffMaxDelay)
	v.SetDefault("chunk-size", cfg.ChunkSize)
	v.SetDefault("max-iterations", cfg.MaxIterations)
	v.SetDefault("graph-citations-enabled", cfg.GraphCitationsEnabled)
	v.SetDefault("planet-retention-days", cfg.PlanetRetentionDays)
	v.SetDefault("service-name", cfg.ServiceName)
}

// Validate performs the configuration-error check that must be fatal at
// startup: a missing LLM key or database DSN is a configuration error, not
// a transient one.
func (c Config) Validate() error {
	if c.DatabaseDSN == "" {
		return fmt.Errorf("database-dsn is required")
	}
	if c.LLMAPIKey == "" {
		return fmt.Errorf("llm-api-key is required (set WIKIQA_LLM_API_KEY)")
	}
	if len(c.LLMModelChain) == 0 {
		return fmt.Errorf("llm-model-chain must name at least one model")
	}
	return nil
}

// BootstrapDSN reads only the database DSN directly from path's YAML,
// bypassing viper entirely, and returns "" (not an error) when the file is
// absent or unparsable. The CLI entry points do not call it: they open the
// database from the DatabaseDSN that Load returns.
func BootstrapDSN(path string) string {
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return ""
	}
	var partial struct {
		DatabaseDSN string `yaml:"database-dsn"`
	}
	if yaml.Unmarshal(data, &partial) != nil {
		return ""
	}
	return partial.DatabaseDSN
}
