package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ignite/cadence-settings/internal/leadscore"
	"github.com/ignite/cadence-settings/internal/taskplan"
)

// Config holds all configuration for the settings service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Scheduler  taskplan.Config  `yaml:"scheduler"`
	LeadScore  leadscore.Config `yaml:"lead_score"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds the cache connection settings. An empty URL disables
// cache invalidation.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// DispatcherConfig sizes the side-effect dispatcher.
type DispatcherConfig struct {
	Workers int `yaml:"workers"`
}

// Load reads a YAML config file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadFromEnv loads .env, reads the config file if present, then applies
// environment overrides. A missing file is not an error: everything can come
// from the environment.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if base := os.Getenv("SCHEDULER_BASE_URL"); base != "" {
		cfg.Scheduler.BaseURL = base
	}
	if key := os.Getenv("SCHEDULER_API_KEY"); key != "" {
		cfg.Scheduler.APIKey = key
	}
	if base := os.Getenv("LEAD_SCORE_BASE_URL"); base != "" {
		cfg.LeadScore.BaseURL = base
	}
	if key := os.Getenv("LEAD_SCORE_API_KEY"); key != "" {
		cfg.LeadScore.APIKey = key
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		cfg.Server.Host = host
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 3
	}
	if cfg.Dispatcher.Workers == 0 {
		cfg.Dispatcher.Workers = 4
	}
}
