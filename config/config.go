// Package config loads runtime configuration from an optional YAML
// file plus REGSYNC_-prefixed environment variables.
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Source   SourceConfig   `mapstructure:"source"`
	Import   ImportConfig   `mapstructure:"import"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	BigQuery BigQueryConfig `mapstructure:"bigquery"`
}

type DatabaseConfig struct {
	// Driver is sqlite or postgres.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type SourceConfig struct {
	// ProviderURL and OwnershipURL are the dataset API endpoints. The
	// ownership URL may be empty for runs without ownership data.
	ProviderURL  string `mapstructure:"provider_url"`
	OwnershipURL string `mapstructure:"ownership_url"`

	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type ImportConfig struct {
	PageSize    int `mapstructure:"page_size"`
	Parallelism int `mapstructure:"parallelism"`
}

type ScheduleConfig struct {
	QueueName string `mapstructure:"queue_name"`

	// ConsistencyDelay is how long after a period ends before its
	// extract is expected to be published.
	ConsistencyDelay time.Duration `mapstructure:"consistency_delay"`
}

type BigQueryConfig struct {
	ProjectID string `mapstructure:"project_id"`
	DatasetID string `mapstructure:"dataset_id"`
}

// Load reads configuration from configFile when given, otherwise from
// ./regsync.yaml if present, with environment variables overriding both.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("REGSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("regsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, errors.Wrap(err, "failed to read config file")
		}
		// No file is fine; defaults and env carry the config.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.Driver == "" {
		return errors.New("database.driver is required")
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}
	if c.Import.PageSize <= 0 {
		return errors.New("import.page_size must be greater than 0")
	}
	if c.Import.Parallelism <= 0 {
		return errors.New("import.parallelism must be greater than 0")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "regsync.db")
	v.SetDefault("source.request_timeout", time.Minute)
	v.SetDefault("import.page_size", 500)
	v.SetDefault("import.parallelism", 1)
	v.SetDefault("schedule.queue_name", "regsync_import")
	v.SetDefault("schedule.consistency_delay", 7*24*time.Hour)
}
