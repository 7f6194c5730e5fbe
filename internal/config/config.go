package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Jina      JinaConfig      `yaml:"jina" mapstructure:"jina"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the catalog/run database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// AnthropicConfig holds Anthropic API settings for the oracle and vision classifier.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	VisionModel       string  `yaml:"vision_model" mapstructure:"vision_model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	RetryAttempts     int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs    int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	BreakerThreshold  int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs  int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// JinaConfig holds Jina search/reader settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// DiscoveryConfig configures reference source discovery.
type DiscoveryConfig struct {
	TrustFile           string   `yaml:"trust_file" mapstructure:"trust_file"`
	ManufacturerDomains []string `yaml:"manufacturer_domains" mapstructure:"manufacturer_domains"`
	ResultsPerQuery     int      `yaml:"results_per_query" mapstructure:"results_per_query"`
	MinContentChars     int      `yaml:"min_content_chars" mapstructure:"min_content_chars"`
	FetchTimeoutSecs    int      `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
}

// BatchConfig configures multi-item runs.
type BatchConfig struct {
	InterItemDelayMs    int `yaml:"inter_item_delay_ms" mapstructure:"inter_item_delay_ms"`
	PendingLimit        int `yaml:"pending_limit" mapstructure:"pending_limit"`
	MinDescriptionChars int `yaml:"min_description_chars" mapstructure:"min_description_chars"`
}

// InterItemDelay returns the fixed pause between items in a batch.
func (b BatchConfig) InterItemDelay() time.Duration {
	return time.Duration(b.InterItemDelayMs) * time.Millisecond
}

// ServerConfig configures the HTTP trigger server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultPipelineConfig()
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "catalog.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.requests_per_second", 2.0)
	v.SetDefault("anthropic.retry_attempts", 3)
	v.SetDefault("anthropic.retry_backoff_ms", 1000)
	v.SetDefault("anthropic.breaker_threshold", 5)
	v.SetDefault("anthropic.breaker_reset_secs", 60)
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("discovery.trust_file", "")
	v.SetDefault("discovery.manufacturer_domains", []string{})
	v.SetDefault("discovery.results_per_query", 5)
	v.SetDefault("discovery.min_content_chars", 500)
	v.SetDefault("discovery.fetch_timeout_secs", 20)
	v.SetDefault("pipeline.gate1_pass_threshold", def.Gate1PassThreshold)
	v.SetDefault("pipeline.gate1_caution_threshold", def.Gate1CautionThreshold)
	v.SetDefault("pipeline.gate2_pass_threshold", def.Gate2PassThreshold)
	v.SetDefault("pipeline.max_sources_per_item", def.MaxSourcesPerItem)
	v.SetDefault("pipeline.min_sources_for_high_confidence", def.MinSourcesForHighConfidence)
	v.SetDefault("pipeline.max_write_retries", def.MaxWriteRetries)
	v.SetDefault("pipeline.retry_delay_ms", def.RetryDelayMs)
	v.SetDefault("pipeline.enable_visual_comparison", def.EnableVisualComparison)
	v.SetDefault("pipeline.enable_semantic_verification", def.EnableSemanticVerification)
	v.SetDefault("batch.inter_item_delay_ms", 2000)
	v.SetDefault("batch.pending_limit", 50)
	v.SetDefault("batch.min_description_chars", 50)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings required by a command are present.
// Supported modes: "enrich" (anthropic + jina keys) and "serve" (port).
func (c *Config) Validate(mode string) error {
	var missing []string

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		missing = append(missing, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		missing = append(missing, "store.database_url is required")
	}

	switch mode {
	case "enrich":
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if c.Jina.Key == "" {
			missing = append(missing, "jina.key is required")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			missing = append(missing, "server.port must be between 1 and 65535")
		}
	}

	if err := c.Pipeline.Validate(); err != nil {
		missing = append(missing, err.Error())
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
