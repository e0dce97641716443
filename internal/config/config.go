package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type ServerConfig struct {
	Port   int    `yaml:"port" validate:"min=1,max=65535"`
	APIKey string `yaml:"api_key"` // bearer key for the back-office routes
}

type LogConfig struct {
	Level    string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format   string `yaml:"format" validate:"omitempty,oneof=json console"`
	Sampling bool   `yaml:"sampling"`
}

type RedisConfig struct {
	URL        string        `yaml:"url" validate:"required"`
	Password   string        `yaml:"password"`
	DB         int           `yaml:"db"`
	SessionTTL time.Duration `yaml:"session_ttl"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"` // empty disables order persistence
}

type ViaCEPConfig struct {
	BaseURL string        `yaml:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `yaml:"timeout"`
}

type TelegramConfig struct {
	Token   string `yaml:"token"` // empty disables the Telegram front-end
	Workers int    `yaml:"workers"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Redis     RedisConfig     `yaml:"redis"`
	Database  DatabaseConfig  `yaml:"database"`
	ViaCEP    ViaCEPConfig    `yaml:"viacep"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads, defaults and validates the YAML config file.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Redis.SessionTTL <= 0 {
		cfg.Redis.SessionTTL = 30 * time.Minute
	}
	if cfg.ViaCEP.BaseURL == "" {
		cfg.ViaCEP.BaseURL = "https://viacep.com.br"
	}
	if cfg.ViaCEP.Timeout <= 0 {
		cfg.ViaCEP.Timeout = 5 * time.Second
	}
	if cfg.Telegram.Workers <= 0 {
		cfg.Telegram.Workers = 4
	}
	if cfg.RateLimit.PerMinute <= 0 {
		cfg.RateLimit.PerMinute = 30
	}
}
