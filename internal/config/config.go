package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath    = "config.toml"
	DefaultHTTPAddr      = ":8080"
	DefaultBackendURL    = "http://127.0.0.1:8000"
	DefaultChatTimeout   = "120s"
	DefaultSessionTTL    = "30m"
	DefaultSweepInterval = "5m"
)

type Config struct {
	Log     LogConfig     `toml:"log"`
	Server  ServerConfig  `toml:"server"`
	Backend BackendConfig `toml:"backend"`
	Session SessionConfig `toml:"session"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"required"`
}

type BackendConfig struct {
	BaseURL string `toml:"base_url" validate:"required,url"`
	// ChatTimeout bounds one full chat stream. A stalled backend stream
	// would otherwise keep the session's send gate closed forever.
	ChatTimeout string `toml:"chat_timeout" validate:"omitempty"`
}

type SessionConfig struct {
	TTL           string `toml:"ttl" validate:"omitempty"`
	SweepInterval string `toml:"sweep_interval" validate:"omitempty"`
}

func (c BackendConfig) ChatTimeoutDuration() time.Duration {
	return parseDuration(c.ChatTimeout, DefaultChatTimeout)
}

func (c SessionConfig) TTLDuration() time.Duration {
	return parseDuration(c.TTL, DefaultSessionTTL)
}

func (c SessionConfig) SweepIntervalDuration() time.Duration {
	return parseDuration(c.SweepInterval, DefaultSweepInterval)
}

func parseDuration(value, fallback string) time.Duration {
	if value == "" {
		value = fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Backend: BackendConfig{
			BaseURL:     DefaultBackendURL,
			ChatTimeout: DefaultChatTimeout,
		},
		Session: SessionConfig{
			TTL:           DefaultSessionTTL,
			SweepInterval: DefaultSweepInterval,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
