package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Google    GoogleConfig    `yaml:"google" mapstructure:"google"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Hunter    HunterConfig    `yaml:"hunter" mapstructure:"hunter"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`             // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"` // postgres DSN
	Path        string `yaml:"path" mapstructure:"path"`                 // sqlite file
}

// GoogleConfig holds the Places / Geocoding API key (one key serves both).
type GoogleConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key"`
}

// AnthropicConfig holds Anthropic API settings for the relevance classifier.
// An empty key disables classification; candidates are stored unclassified.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	BatchSize int    `yaml:"batch_size" mapstructure:"batch_size"`
}

// HunterConfig holds Hunter.io settings for contact discovery.
type HunterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// IngestConfig configures the ingestion pipeline throttles.
type IngestConfig struct {
	// QueriesFile optionally overrides the embedded search-phrase list.
	QueriesFile string `yaml:"queries_file" mapstructure:"queries_file"`
	// DetailDelayMs is the pause between place-details lookups.
	DetailDelayMs int `yaml:"detail_delay_ms" mapstructure:"detail_delay_ms"`
	// PageDelayMs is the pause between result pages of a search phrase.
	PageDelayMs int `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	// ClassifyDelayMs is the pause between classification chunks.
	ClassifyDelayMs int `yaml:"classify_delay_ms" mapstructure:"classify_delay_ms"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port       int    `yaml:"port" mapstructure:"port"`
	UploadsDir string `yaml:"uploads_dir" mapstructure:"uploads_dir"`
	// PipelineTimeoutMins bounds a synchronous ingestion request. Runs take
	// many minutes; the server extends its timeout rather than supporting
	// mid-run cancellation.
	PipelineTimeoutMins int `yaml:"pipeline_timeout_mins" mapstructure:"pipeline_timeout_mins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PLANTCRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "data.db")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.batch_size", 20)
	v.SetDefault("hunter.base_url", "https://api.hunter.io/v2")
	v.SetDefault("ingest.detail_delay_ms", 150)
	v.SetDefault("ingest.page_delay_ms", 500)
	v.SetDefault("ingest.classify_delay_ms", 300)
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.uploads_dir", "uploads")
	v.SetDefault("server.pipeline_timeout_mins", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
