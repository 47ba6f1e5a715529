package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Cache    CacheConfig    `mapstructure:"cache"`
	History  HistoryConfig  `mapstructure:"history"`
	Graph    GraphConfig    `mapstructure:"graph"`
	Vector   VectorConfig   `mapstructure:"vector"`
	Temporal TemporalConfig `mapstructure:"temporal"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Log      LogConfig      `mapstructure:"log"`
	Audit    AuditConfig    `mapstructure:"audit"`
}

// LLMConfig selects the opinion oracle backend. Provider "none" (or empty)
// disables the oracle.
type LLMConfig struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Temperature       float64       `mapstructure:"temperature"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

type EngineConfig struct {
	OracleTimeout time.Duration `mapstructure:"oracle_timeout"`
	// AcceptAbove is the confidence an opportunity must exceed to be applied.
	AcceptAbove int `mapstructure:"accept_above"`
}

type CacheConfig struct {
	Capacity      int           `mapstructure:"capacity"`
	MaxAge        time.Duration `mapstructure:"max_age"`
	AccuracyFloor float64       `mapstructure:"accuracy_floor"`
	// Path is the badger directory. Empty keeps the cache in memory only.
	Path string `mapstructure:"path"`
}

// HistoryConfig selects where block execution history is read from.
type HistoryConfig struct {
	Driver     string `mapstructure:"driver"` // influx, sqlite or none
	URL        string `mapstructure:"url"`
	Token      string `mapstructure:"token"`
	Org        string `mapstructure:"org"`
	Bucket     string `mapstructure:"bucket"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type GraphConfig struct {
	URI      string `mapstructure:"uri"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type VectorConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
}

type TemporalConfig struct {
	Host      string `mapstructure:"host"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuditConfig controls the JSON-lines audit trail of optimizer changes.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Output  string `mapstructure:"output"` // file path, "stdout" or "stderr"
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.LLM.Provider != "" && c.LLM.Provider != "none" && c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("LLM provider '%s' is configured but api_key is empty", c.LLM.Provider))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("LLM temperature %.2f is outside recommended range [0.0, 2.0]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("LLM max_tokens %d is negative", c.LLM.MaxTokens))
	}

	if c.Engine.AcceptAbove < 0 || c.Engine.AcceptAbove > 100 {
		warnings = append(warnings, fmt.Sprintf("engine accept_above %d is outside [0, 100]", c.Engine.AcceptAbove))
	}
	if c.Cache.Capacity < 0 {
		warnings = append(warnings, fmt.Sprintf("cache capacity %d is negative", c.Cache.Capacity))
	}
	if c.Cache.AccuracyFloor < 0 || c.Cache.AccuracyFloor > 1 {
		warnings = append(warnings, fmt.Sprintf("cache accuracy_floor %.2f is outside [0, 1]", c.Cache.AccuracyFloor))
	}

	switch c.History.Driver {
	case "", "none":
	case "influx":
		if c.History.URL == "" || c.History.Bucket == "" {
			warnings = append(warnings, "history driver 'influx' needs url and bucket")
		}
	case "sqlite":
		if c.History.SQLitePath == "" {
			warnings = append(warnings, "history driver 'sqlite' needs sqlite_path")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("unknown history driver '%s'", c.History.Driver))
	}

	return warnings
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.requests_per_minute", 0)

	v.SetDefault("engine.oracle_timeout", "10s")
	v.SetDefault("engine.accept_above", 60)

	v.SetDefault("cache.capacity", 1000)
	v.SetDefault("cache.max_age", "24h")
	v.SetDefault("cache.accuracy_floor", 0.7)
	v.SetDefault("cache.path", "")

	v.SetDefault("history.driver", "none")
	v.SetDefault("history.url", "")
	v.SetDefault("history.token", "")
	v.SetDefault("history.org", "")
	v.SetDefault("history.bucket", "")
	v.SetDefault("history.sqlite_path", "")

	v.SetDefault("graph.uri", "")
	v.SetDefault("graph.username", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "neo4j")

	v.SetDefault("vector.host", "")
	v.SetDefault("vector.port", 6334)
	v.SetDefault("vector.collection", "flowlens_flows")

	v.SetDefault("temporal.host", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "flowlens-optimize")

	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")

	v.SetDefault("metrics.listen", ":9464")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.output", "stderr")
}

// Load reads configuration from path and the environment. Environment
// variables use the FLOWLENS_ prefix with dots replaced by underscores
// (FLOWLENS_CACHE_CAPACITY). An empty path uses defaults and environment
// only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FLOWLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}
