package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Warm     WarmConfig     `mapstructure:"warm"`
}

// ServerConfig defines the client-facing websocket endpoint.
type ServerConfig struct {
	Addr       string `mapstructure:"addr"`        // listen address, e.g. ":8085"
	SendBuffer int    `mapstructure:"send_buffer"` // per-client outbound queue size
}

// RedisConfig defines the hot snapshot tier. When Addr is empty the hot
// tier is disabled and a no-op tier is selected at startup.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// Snapshots expire at the next trading-session cutoff rather than
	// after a fixed duration.
	CutoffTime string `mapstructure:"cutoff_time"` // "HH:MM", e.g. "03:30"
	CutoffZone string `mapstructure:"cutoff_zone"` // IANA zone, e.g. "Asia/Kolkata"
}

// ArchiveConfig defines the append-only file archive used as the last
// persistence resort.
type ArchiveConfig struct {
	BaseDir   string `mapstructure:"base_dir"`
	QueueSize int    `mapstructure:"queue_size"` // pending-write cap before records are dropped
}

// WarmConfig bounds write amplification on the relational tier.
type WarmConfig struct {
	MinInterval time.Duration `mapstructure:"min_interval"` // min gap between upserts per instrument
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	// Support environment variables with dot notation (e.g., REDIS_ADDR)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", ":8085")
	v.SetDefault("server.send_buffer", 256)
	v.SetDefault("redis.cutoff_time", "03:30")
	v.SetDefault("redis.cutoff_zone", "Asia/Kolkata")
	v.SetDefault("archive.base_dir", "./archive/marketdata")
	v.SetDefault("archive.queue_size", 10000)
	v.SetDefault("warm.min_interval", 30*time.Second)

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	return &cfg
}
