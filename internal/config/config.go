package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	DeliveryPush = "push"
	DeliveryPoll = "poll"

	UnknownCommandIgnore = "ignore"
	UnknownCommandHint   = "hint"
)

type Config struct {
	Port                  int    `env:"PORT" envDefault:"3000"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
	GatewayURL            string `env:"GATEWAY_URL" envDefault:"http://localhost:8081"`
	GatewayTimeoutSeconds int    `env:"GATEWAY_TIMEOUT_SECONDS" envDefault:"30"`
	RedisURL              string `env:"REDIS_URL"`
	DatabaseURL           string `env:"DATABASE_URL"`
	EventDelivery         string `env:"EVENT_DELIVERY" envDefault:"push"`
	PollIntervalMs        int    `env:"POLL_INTERVAL_MS" envDefault:"2000"`
	PendingAuthTTLSeconds int    `env:"PENDING_AUTH_TTL_SECONDS" envDefault:"3600"`
	ReaperIntervalSeconds int    `env:"REAPER_INTERVAL_SECONDS" envDefault:"3600"`
	ReaperProbeLive       bool   `env:"REAPER_PROBE_LIVE" envDefault:"true"`
	SecondFactorEnabled   bool   `env:"SECOND_FACTOR_ENABLED" envDefault:"true"`
	UnknownCommandMode    string `env:"UNKNOWN_COMMAND_MODE" envDefault:"ignore"`
	AdminAPIKeyHash       string `env:"ADMIN_API_KEY_HASH"`
	AuditRetentionDays    int    `env:"AUDIT_RETENTION_DAYS" envDefault:"30"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

func (c *Config) PendingAuthTTL() time.Duration {
	return time.Duration(c.PendingAuthTTLSeconds) * time.Second
}

func (c *Config) ReaperInterval() time.Duration {
	return time.Duration(c.ReaperIntervalSeconds) * time.Second
}

func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}

// PushDelivery reports whether updates arrive over redis pubsub. Push without
// redis degrades to polling.
func (c *Config) PushDelivery() bool {
	return c.EventDelivery == DeliveryPush && c.RedisURL != ""
}

func (c *Config) Validate() error {
	if c.EventDelivery != DeliveryPush && c.EventDelivery != DeliveryPoll {
		return fmt.Errorf("EVENT_DELIVERY must be %q or %q", DeliveryPush, DeliveryPoll)
	}
	if c.UnknownCommandMode != UnknownCommandIgnore && c.UnknownCommandMode != UnknownCommandHint {
		return fmt.Errorf("UNKNOWN_COMMAND_MODE must be %q or %q", UnknownCommandIgnore, UnknownCommandHint)
	}
	if c.PendingAuthTTLSeconds <= 0 {
		return fmt.Errorf("PENDING_AUTH_TTL_SECONDS must be positive")
	}
	if c.ReaperIntervalSeconds <= 0 {
		return fmt.Errorf("REAPER_INTERVAL_SECONDS must be positive")
	}
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}
	if c.GatewayURL == "" {
		return fmt.Errorf("GATEWAY_URL is required")
	}

	if c.AdminAPIKeyHash != "" {
		if !strings.HasPrefix(c.AdminAPIKeyHash, "$2a$") &&
			!strings.HasPrefix(c.AdminAPIKeyHash, "$2b$") &&
			!strings.HasPrefix(c.AdminAPIKeyHash, "$2y$") {
			return fmt.Errorf("ADMIN_API_KEY_HASH must be a bcrypt hash (generate with: go run ./cmd/hash-admin-key)")
		}
	}

	if c.EventDelivery == DeliveryPush && c.RedisURL == "" {
		log.Warn().Msg("EVENT_DELIVERY=push without REDIS_URL: falling back to polling")
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
