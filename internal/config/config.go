// Package config loads the typed configuration for the reference HTTP
// binary (cmd/server) via viper, with environment overrides and defaults
// so it runs with zero configuration present.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig controls the reference HTTP facade.
type ServerConfig struct {
	HTTPPort int    `mapstructure:"http_port"`
	LogLevel string `mapstructure:"log_level"`
}

// JobConfig controls the job manager's worker pool and GC.
type JobConfig struct {
	MaxWorkers    int `mapstructure:"max_workers"`
	CleanupMaxAge int `mapstructure:"cleanup_max_age_hours"`
}

// StorageConfig selects and configures the storage adapter backend.
type StorageConfig struct {
	Backend         string `mapstructure:"backend"` // "memory" or "clickhouse"
	ClickHouseAddr  string `mapstructure:"clickhouse_addr"`
	ClickHouseDB    string `mapstructure:"clickhouse_database"`
	ClickHouseUser  string `mapstructure:"clickhouse_user"`
	ClickHousePass  string `mapstructure:"clickhouse_password"`
}

// Config is the full typed configuration tree.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Job     JobConfig     `mapstructure:"job"`
	Storage StorageConfig `mapstructure:"storage"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			HTTPPort: 8080,
			LogLevel: "info",
		},
		Job: JobConfig{
			MaxWorkers:    4,
			CleanupMaxAge: 24,
		},
		Storage: StorageConfig{
			Backend:      "memory",
			ClickHouseDB: "fingraph",
		},
	}
}

// Load reads config.{yaml,json,toml} from the current directory, ./config
// and /etc/fingraph, applying FINGRAPH_-prefixed environment overrides on
// top of defaults. A missing config file is not an error — defaults
// apply.
func Load() (*Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/fingraph")

	v.SetEnvPrefix("FINGRAPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if v.IsSet("server.http_port") {
		cfg.Server.HTTPPort = v.GetInt("server.http_port")
	}
	if v.IsSet("server.log_level") {
		cfg.Server.LogLevel = v.GetString("server.log_level")
	}
	if v.IsSet("job.max_workers") {
		cfg.Job.MaxWorkers = v.GetInt("job.max_workers")
	}
	if v.IsSet("job.cleanup_max_age_hours") {
		cfg.Job.CleanupMaxAge = v.GetInt("job.cleanup_max_age_hours")
	}
	if v.IsSet("storage.backend") {
		cfg.Storage.Backend = v.GetString("storage.backend")
	}
	if v.IsSet("storage.clickhouse_addr") {
		cfg.Storage.ClickHouseAddr = v.GetString("storage.clickhouse_addr")
	}
	if v.IsSet("storage.clickhouse_database") {
		cfg.Storage.ClickHouseDB = v.GetString("storage.clickhouse_database")
	}
	if v.IsSet("storage.clickhouse_user") {
		cfg.Storage.ClickHouseUser = v.GetString("storage.clickhouse_user")
	}
	if v.IsSet("storage.clickhouse_password") {
		cfg.Storage.ClickHousePass = v.GetString("storage.clickhouse_password")
	}

	return &cfg, nil
}
