package config

import (
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Sources  SourcesConfig  `yaml:"sources" mapstructure:"sources"`
	Storage  StorageConfig  `yaml:"storage" mapstructure:"storage"`
	Ledger   LedgerConfig   `yaml:"ledger" mapstructure:"ledger"`
	Fetch    FetchConfig    `yaml:"fetch" mapstructure:"fetch"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// SourceConfig configures one ingestion endpoint.
type SourceConfig struct {
	URL     string `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// SourcesConfig configures the municipal open-data endpoints.
type SourcesConfig struct {
	RealtimePositions SourceConfig `yaml:"realtime_positions" mapstructure:"realtime_positions"`
	OperationalRoutes SourceConfig `yaml:"operational_routes" mapstructure:"operational_routes"`
}

// StorageConfig configures the layer roots: a directory of parquet files for
// Bronze and one DuckDB database holding the Silver and Gold tables.
type StorageConfig struct {
	BronzePath    string `yaml:"bronze_path" mapstructure:"bronze_path" validate:"required"`
	Database      string `yaml:"database" mapstructure:"database" validate:"required"`
	RetentionDays int    `yaml:"retention_days" mapstructure:"retention_days" validate:"gte=0"`
}

// LedgerConfig configures the run ledger backend.
type LedgerConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver" validate:"oneof=sqlite postgres"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url" validate:"required"`
}

// FetchConfig configures HTTP fetching behavior.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs" validate:"gt=0"`
	Referer     string `yaml:"referer" mapstructure:"referer"`
}

// PipelineConfig configures orchestration behavior.
type PipelineConfig struct {
	SummaryDir string `yaml:"summary_dir" mapstructure:"summary_dir"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from the given file (or ./config.yaml when path
// is empty) and the MOBILITY_ environment, applies defaults and validates.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix("MOBILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("sources.realtime_positions.url", "https://temporeal.pbh.gov.br/?param=D")
	v.SetDefault("sources.realtime_positions.enabled", true)
	v.SetDefault("sources.operational_routes.url", "https://dados.pbh.gov.br/dataset/mco")
	v.SetDefault("sources.operational_routes.enabled", false)
	v.SetDefault("storage.bronze_path", "data/bronze")
	v.SetDefault("storage.database", "data/mobility.duckdb")
	v.SetDefault("storage.retention_days", 30)
	v.SetDefault("ledger.driver", "sqlite")
	v.SetDefault("ledger.database_url", "data/ledger.db")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.referer", "https://temporeal.pbh.gov.br/")
	v.SetDefault("pipeline.summary_dir", "data/runs")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional when no explicit path was given)
	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if path != "" || !notFound {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: validate")
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
