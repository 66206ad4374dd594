package config

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server   ServerConfig
	Discord  DiscordConfig
	Dispatch DispatchConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string        `env:"FLOE_SERVER_ADDR" envDefault:":8080"`
	ReadTimeout    time.Duration `env:"FLOE_SERVER_READ_TIMEOUT" envDefault:"10s"`
	WriteTimeout   time.Duration `env:"FLOE_SERVER_WRITE_TIMEOUT" envDefault:"30s"`
	RateLimitRPS   float64       `env:"FLOE_SERVER_RATE_LIMIT_RPS" envDefault:"25"`
	RateLimitBurst int           `env:"FLOE_SERVER_RATE_LIMIT_BURST" envDefault:"50"`
}

// DiscordConfig holds platform credentials and endpoints.
type DiscordConfig struct {
	// PublicKey is the hex-encoded Ed25519 key the platform signs webhook
	// requests with.
	PublicKey     string       `env:"FLOE_DISCORD_PUBLIC_KEY,notEmpty"`
	ApplicationID snowflake.ID `env:"FLOE_DISCORD_APPLICATION_ID,notEmpty"`
	// BotToken is only required for command synchronization.
	BotToken     string `env:"FLOE_DISCORD_BOT_TOKEN"`
	APIBase      string `env:"FLOE_DISCORD_API_BASE" envDefault:"https://discord.com/api/v10"`
	SyncCommands bool   `env:"FLOE_DISCORD_SYNC_COMMANDS" envDefault:"false"`
}

// DispatchConfig holds deferral timing. AutoDeferTimeout must leave room
// under AckDeadline, which tracks the platform's synchronous response window.
type DispatchConfig struct {
	AutoDeferEnabled   bool          `env:"FLOE_AUTO_DEFER_ENABLED" envDefault:"true"`
	AutoDeferTimeout   time.Duration `env:"FLOE_AUTO_DEFER_TIMEOUT" envDefault:"2s"`
	AutoDeferEphemeral bool          `env:"FLOE_AUTO_DEFER_EPHEMERAL" envDefault:"false"`
	AckDeadline        time.Duration `env:"FLOE_ACK_DEADLINE" envDefault:"3s"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `env:"FLOE_LOG_LEVEL" envDefault:"info"`
	Format string `env:"FLOE_LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	key, err := hex.DecodeString(c.Discord.PublicKey)
	if err != nil {
		return errors.New("FLOE_DISCORD_PUBLIC_KEY must be hex-encoded")
	}
	if len(key) != ed25519.PublicKeySize {
		return fmt.Errorf("FLOE_DISCORD_PUBLIC_KEY must decode to %d bytes, got %d", ed25519.PublicKeySize, len(key))
	}

	if c.Discord.SyncCommands && c.Discord.BotToken == "" {
		return errors.New("FLOE_DISCORD_BOT_TOKEN is required when FLOE_DISCORD_SYNC_COMMANDS is enabled")
	}
	if !strings.HasPrefix(c.Discord.APIBase, "http") {
		return fmt.Errorf("FLOE_DISCORD_API_BASE must be an absolute URL, got %q", c.Discord.APIBase)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("FLOE_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("FLOE_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.RateLimitRPS <= 0 {
		return fmt.Errorf("FLOE_SERVER_RATE_LIMIT_RPS must be positive, got %g", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("FLOE_SERVER_RATE_LIMIT_BURST must be >= 1, got %d", c.Server.RateLimitBurst)
	}

	if c.Dispatch.AckDeadline <= 0 {
		return fmt.Errorf("FLOE_ACK_DEADLINE must be positive, got %s", c.Dispatch.AckDeadline)
	}
	if c.Dispatch.AutoDeferEnabled {
		if c.Dispatch.AutoDeferTimeout <= 0 {
			return fmt.Errorf("FLOE_AUTO_DEFER_TIMEOUT must be positive, got %s", c.Dispatch.AutoDeferTimeout)
		}
		if c.Dispatch.AutoDeferTimeout >= c.Dispatch.AckDeadline {
			return fmt.Errorf("FLOE_AUTO_DEFER_TIMEOUT (%s) must be below FLOE_ACK_DEADLINE (%s)",
				c.Dispatch.AutoDeferTimeout, c.Dispatch.AckDeadline)
		}
	}

	if c.Dispatch.AckDeadline > 3*time.Second {
		log.Warn().
			Dur("ack_deadline", c.Dispatch.AckDeadline).
			Msg("ack deadline exceeds the platform's 3s response window; late acks will be dropped upstream")
	}

	return nil
}
