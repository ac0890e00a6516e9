// Package config loads draftd settings from defaults, an optional YAML file,
// and DRAFTD_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/draftboard/draftboard/internal/quota"
)

// Config is the resolved runtime configuration.
type Config struct {
	// DataDir holds the database, thumbnails, and logs.
	DataDir string `mapstructure:"data_dir"`
	// ListenAddr is the HTTP/WebSocket bind address.
	ListenAddr string `mapstructure:"listen_addr"`
	// DBFile is the database filename inside DataDir.
	DBFile string `mapstructure:"db_file"`
	// LogFile is an optional rotated debug log path; empty means stderr only.
	LogFile string `mapstructure:"log_file"`
	// LogMaxSizeMB and LogMaxBackups tune log rotation.
	LogMaxSizeMB  int `mapstructure:"log_max_size_mb"`
	LogMaxBackups int `mapstructure:"log_max_backups"`
	// DevMode enables error details in API responses.
	DevMode bool `mapstructure:"dev_mode"`
	// ShutdownGrace bounds graceful shutdown.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`

	Quota QuotaConfig `mapstructure:"quota"`

	Breaker BreakerConfig `mapstructure:"breaker"`
}

// QuotaConfig overrides storage quota limits. Zero values take the package
// defaults.
type QuotaConfig struct {
	MaxNodes           int `mapstructure:"max_nodes"`
	MaxEdges           int `mapstructure:"max_edges"`
	MaxGroups          int `mapstructure:"max_groups"`
	MaxMessages        int `mapstructure:"max_messages"`
	MaxRelationships   int `mapstructure:"max_relationships"`
	MaxSpecSizeBytes   int `mapstructure:"max_spec_size_bytes"`
	MaxDiagramsPerUser int `mapstructure:"max_diagrams_per_user"`
}

// BreakerConfig tunes the storage circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

// Limits converts the quota overrides into a quota.Limits, filling defaults.
func (q QuotaConfig) Limits() quota.Limits {
	l := quota.DefaultLimits()
	if q.MaxNodes > 0 {
		l.MaxNodes = q.MaxNodes
	}
	if q.MaxEdges > 0 {
		l.MaxEdges = q.MaxEdges
	}
	if q.MaxGroups > 0 {
		l.MaxGroups = q.MaxGroups
	}
	if q.MaxMessages > 0 {
		l.MaxMessages = q.MaxMessages
	}
	if q.MaxRelationships > 0 {
		l.MaxRelationships = q.MaxRelationships
	}
	if q.MaxSpecSizeBytes > 0 {
		l.MaxSpecSizeBytes = q.MaxSpecSizeBytes
	}
	if q.MaxDiagramsPerUser > 0 {
		l.MaxDiagramsPerUser = q.MaxDiagramsPerUser
	}
	return l
}

// DBPath returns the full database file path.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, c.DBFile)
}

// Load resolves configuration. configFile may be empty, in which case
// {DataDir}/config.yaml is read when present. Environment variables use the
// DRAFTD_ prefix with underscores, e.g. DRAFTD_LISTEN_ADDR,
// DRAFTD_QUOTA_MAX_NODES.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DRAFTD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("listen_addr", ":8400")
	v.SetDefault("db_file", "draftboard.db")
	v.SetDefault("log_file", "")
	v.SetDefault("log_max_size_mb", 10)
	v.SetDefault("log_max_backups", 3)
	v.SetDefault("dev_mode", false)
	v.SetDefault("shutdown_grace", 10*time.Second)
	v.SetDefault("quota.max_nodes", 0)
	v.SetDefault("quota.max_edges", 0)
	v.SetDefault("quota.max_groups", 0)
	v.SetDefault("quota.max_messages", 0)
	v.SetDefault("quota.max_relationships", 0)
	v.SetDefault("quota.max_spec_size_bytes", 0)
	v.SetDefault("quota.max_diagrams_per_user", 0)
	v.SetDefault("breaker.failure_threshold", 0)
	v.SetDefault("breaker.open_timeout", time.Duration(0))

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("data_dir"))
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func defaultDataDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".draftboard")
	}
	return ".draftboard"
}
