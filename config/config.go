package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Timers     TimerConfig      `yaml:"timers"`
	Auth       AuthConfig       `yaml:"auth"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the connection settings for the timer store and
// the delayed task queue, both of which live in Redis.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// TimerConfig holds the durations used by the occupancy timers.
type TimerConfig struct {
	QueueTurnSeconds         int           `yaml:"queue_turn_seconds"`
	GymSessionSeconds        int           `yaml:"gym_session_seconds"`
	TagOffWarningSeconds     int           `yaml:"tag_off_warning_seconds"`
	GymSessionWarningSeconds int           `yaml:"gym_session_warning_seconds"`
	QueueTurn                time.Duration `yaml:"-"`
	GymSession               time.Duration `yaml:"-"`
	TagOffWarning            time.Duration `yaml:"-"`
	GymSessionWarning        time.Duration `yaml:"-"`
}

// AuthConfig holds the secret used to verify client tokens.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 2 * int(cfg.Server.RateLimitPerSec)
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}

	if cfg.Timers.QueueTurnSeconds <= 0 {
		cfg.Timers.QueueTurnSeconds = 30
	}
	if cfg.Timers.GymSessionSeconds <= 0 {
		cfg.Timers.GymSessionSeconds = 3600
	}
	if cfg.Timers.TagOffWarningSeconds <= 0 {
		cfg.Timers.TagOffWarningSeconds = 15
	}
	if cfg.Timers.GymSessionWarningSeconds <= 0 {
		cfg.Timers.GymSessionWarningSeconds = 60
	}
	cfg.Timers.QueueTurn = time.Duration(cfg.Timers.QueueTurnSeconds) * time.Second
	cfg.Timers.GymSession = time.Duration(cfg.Timers.GymSessionSeconds) * time.Second
	cfg.Timers.TagOffWarning = time.Duration(cfg.Timers.TagOffWarningSeconds) * time.Second
	cfg.Timers.GymSessionWarning = time.Duration(cfg.Timers.GymSessionWarningSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
