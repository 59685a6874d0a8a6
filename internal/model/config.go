package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DatabaseConfig locates the SQLite database file.
type DatabaseConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// RedisConfig controls publishing of reorder events.
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
	Channel string `mapstructure:"channel" yaml:"channel"`
}

// RankingConfig tunes the reorder coordinator.
type RankingConfig struct {
	// MaxLength is the rank length above which a move rebalances the
	// destination column instead of storing the long rank.
	MaxLength int `mapstructure:"max_length" yaml:"max_length"`

	// RebalanceConcurrency bounds how many columns of one project are
	// rebalanced at once.
	RebalanceConcurrency int `mapstructure:"rebalance_concurrency" yaml:"rebalance_concurrency"`

	// SweepInterval is how often the server scans columns for collisions
	// and long ranks. Zero disables the sweeper.
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// SweepLength is the rank length at which the sweeper rewrites a
	// column ahead of moves hitting MaxLength.
	SweepLength int `mapstructure:"sweep_length" yaml:"sweep_length"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Ranking  RankingConfig  `mapstructure:"ranking" yaml:"ranking"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

// Default values shared by viper defaults and DefaultAppConfig.
const (
	DefaultServerAddr           = ":8080"
	DefaultRedisAddr            = "localhost:6379"
	DefaultRedisChannel         = "taskboard:reorder"
	DefaultRankMaxLength        = 32
	DefaultRebalanceConcurrency = 4
	DefaultSweepInterval        = 10 * time.Minute
	DefaultSweepLength          = 16
)

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/taskboard/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "taskboard", "config.yaml")
}

// DefaultDatabasePath returns ~/.local/share/taskboard/taskboard.db.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "taskboard.db"
	}
	return filepath.Join(home, ".local", "share", "taskboard", "taskboard.db")
}

// DefaultAppConfig returns a sensible default configuration.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Database: DatabaseConfig{Path: DefaultDatabasePath()},
		Server:   ServerConfig{Addr: DefaultServerAddr},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    DefaultRedisAddr,
			Channel: DefaultRedisChannel,
		},
		Ranking: RankingConfig{
			MaxLength:            DefaultRankMaxLength,
			RebalanceConcurrency: DefaultRebalanceConcurrency,
			SweepInterval:        DefaultSweepInterval,
			SweepLength:          DefaultSweepLength,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Values can be overridden with TASKBOARD_* environment variables
// (e.g. TASKBOARD_SERVER_ADDR). A missing file yields the defaults.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TASKBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultAppConfig()
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("redis.enabled", def.Redis.Enabled)
	v.SetDefault("redis.addr", def.Redis.Addr)
	v.SetDefault("redis.channel", def.Redis.Channel)
	v.SetDefault("ranking.max_length", def.Ranking.MaxLength)
	v.SetDefault("ranking.rebalance_concurrency", def.Ranking.RebalanceConcurrency)
	v.SetDefault("ranking.sweep_interval", def.Ranking.SweepInterval)
	v.SetDefault("ranking.sweep_length", def.Ranking.SweepLength)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := DefaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Ranking.MaxLength <= 0 {
		cfg.Ranking.MaxLength = DefaultRankMaxLength
	}
	if cfg.Ranking.RebalanceConcurrency <= 0 {
		cfg.Ranking.RebalanceConcurrency = DefaultRebalanceConcurrency
	}
	if cfg.Ranking.SweepLength <= 0 || cfg.Ranking.SweepLength > cfg.Ranking.MaxLength {
		cfg.Ranking.SweepLength = cfg.Ranking.MaxLength
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("database", cfg.Database)
	v.Set("server", cfg.Server)
	v.Set("redis", cfg.Redis)
	v.Set("ranking", cfg.Ranking)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
