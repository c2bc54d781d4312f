package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/leadscore/internal/cost"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Providers  ProvidersConfig  `yaml:"providers" mapstructure:"providers"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Queue      QueueConfig      `yaml:"queue" mapstructure:"queue"`
	Scoring    ScoringConfig    `yaml:"scoring" mapstructure:"scoring"`
	Pricing    cost.Rates       `yaml:"pricing" mapstructure:"pricing"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
	// APIToken enables bearer auth when set.
	APIToken           string   `yaml:"api_token" mapstructure:"api_token"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	DefaultTenant      string   `yaml:"default_tenant" mapstructure:"default_tenant"`
	ShutdownTimeoutSec int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ProvidersConfig selects and guards the enrichment providers.
type ProvidersConfig struct {
	Mode           string  `yaml:"mode" mapstructure:"mode"`
	Primary        string  `yaml:"primary" mapstructure:"primary"`
	Secondary      string  `yaml:"secondary" mapstructure:"secondary"`
	TimeoutSecs    int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`

	RetryMaxAttempts      int `yaml:"retry_max_attempts" mapstructure:"retry_max_attempts"`
	RetryInitialBackoffMs int `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
	RetryMaxBackoffMs     int `yaml:"retry_max_backoff_ms" mapstructure:"retry_max_backoff_ms"`

	CircuitFailureThreshold int `yaml:"circuit_failure_threshold" mapstructure:"circuit_failure_threshold"`
	CircuitResetTimeoutSecs int `yaml:"circuit_reset_timeout_secs" mapstructure:"circuit_reset_timeout_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// GeminiConfig holds Gemini API settings.
type GeminiConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// QueueConfig configures the job queue and worker pool.
type QueueConfig struct {
	Workers        int `yaml:"workers" mapstructure:"workers"`
	JobTimeoutSecs int `yaml:"job_timeout_secs" mapstructure:"job_timeout_secs"`
	HistorySize    int `yaml:"history_size" mapstructure:"history_size"`
}

// ScoringConfig configures scoring defaults and the per-tenant config cache.
type ScoringConfig struct {
	// File is an optional YAML file of tenant-independent defaults.
	File         string `yaml:"file" mapstructure:"file"`
	CacheSize    int    `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTLSecs int    `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// MonitoringConfig configures the background health checker.
type MonitoringConfig struct {
	Enabled              bool    `yaml:"enabled" mapstructure:"enabled"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.default_tenant", "default")
	v.SetDefault("server.shutdown_timeout_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("providers.mode", "dual")
	v.SetDefault("providers.primary", "anthropic")
	v.SetDefault("providers.secondary", "perplexity")
	v.SetDefault("providers.timeout_secs", 12)
	v.SetDefault("providers.rate_limit_rps", 5)
	v.SetDefault("providers.rate_limit_burst", 5)
	v.SetDefault("providers.retry_max_attempts", 2)
	v.SetDefault("providers.retry_initial_backoff_ms", 500)
	v.SetDefault("providers.retry_max_backoff_ms", 4000)
	v.SetDefault("providers.circuit_failure_threshold", 5)
	v.SetDefault("providers.circuit_reset_timeout_secs", 30)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.job_timeout_secs", 60)
	v.SetDefault("queue.history_size", 10000)
	v.SetDefault("scoring.cache_size", 256)
	v.SetDefault("scoring.cache_ttl_secs", 60)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.check_interval_secs", 300)

	// Read config file (optional)
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

// Rates returns the configured pricing layered over the built-in rates.
func (c *Config) Rates() cost.Rates {
	rates := cost.DefaultRates()
	for name, r := range c.Pricing.Anthropic {
		rates.Anthropic[name] = r
	}
	for name, r := range c.Pricing.Gemini {
		rates.Gemini[name] = r
	}
	if c.Pricing.Perplexity.PerQuery > 0 {
		rates.Perplexity.PerQuery = c.Pricing.Perplexity.PerQuery
	}
	if c.Pricing.Perplexity.PerMTok > 0 {
		rates.Perplexity.PerMTok = c.Pricing.Perplexity.PerMTok
	}
	return rates
}

// ProviderKey returns the API key configured for a provider name.
func (c *Config) ProviderKey(name string) (string, bool) {
	switch name {
	case "anthropic":
		return c.Anthropic.Key, true
	case "perplexity":
		return c.Perplexity.Key, true
	case "gemini":
		return c.Gemini.Key, true
	default:
		return "", false
	}
}

// Validate checks that the configuration is usable for the given command.
func (c *Config) Validate(mode string) error {
	var missing []string
	var invalid []string

	checkStore := func() {
		switch c.Store.Driver {
		case "postgres", "sqlite":
		default:
			invalid = append(invalid, "store.driver must be postgres or sqlite")
		}
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url")
		}
	}

	checkProviders := func() {
		names := []string{c.Providers.Primary}
		switch c.Providers.Mode {
		case "single":
		case "dual":
			names = append(names, c.Providers.Secondary)
			if c.Providers.Secondary == c.Providers.Primary {
				invalid = append(invalid, "providers.secondary must differ from providers.primary")
			}
		default:
			invalid = append(invalid, "providers.mode must be single or dual")
		}
		for _, name := range names {
			key, ok := c.ProviderKey(name)
			if !ok {
				invalid = append(invalid, "unknown provider "+`"`+name+`"`)
				continue
			}
			if key == "" {
				missing = append(missing, name+".key")
			}
		}
		if c.Providers.TimeoutSecs <= 0 {
			invalid = append(invalid, "providers.timeout_secs must be positive")
		}
		if c.Queue.Workers < 1 || c.Queue.Workers > 256 {
			invalid = append(invalid, "queue.workers must be between 1 and 256")
		}
		if c.Queue.JobTimeoutSecs <= 0 {
			invalid = append(invalid, "queue.job_timeout_secs must be positive")
		}
	}

	switch mode {
	case "migrate":
		checkStore()
	case "enrich":
		checkStore()
		checkProviders()
	case "serve":
		checkStore()
		checkProviders()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			invalid = append(invalid, "server.port must be between 1 and 65535")
		}
		if t := c.Monitoring.FailureRateThreshold; t < 0 || t > 1 {
			invalid = append(invalid, "monitoring.failure_rate_threshold must be between 0 and 1")
		}
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required fields for %s: %s", mode, strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return eris.Errorf("config: invalid values for %s: %s", mode, strings.Join(invalid, "; "))
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
