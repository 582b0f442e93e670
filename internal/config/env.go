package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

// envOverrides lists the settings that may be supplied through the
// environment. Unset variables leave the file value alone.
type envOverrides struct {
	ServerURL    *string `env:"SWC_SERVER_URL"`
	PlayerID     *string `env:"SWC_PLAYER_ID"`
	PlayerSecret *string `env:"SWC_PLAYER_SECRET"`
	RetryCount   *int    `env:"SWC_RETRY_COUNT"`
	APIPort      *int    `env:"SWC_API_PORT"`
	LogLevel     *string `env:"SWC_LOG_LEVEL"`
}

// ApplyEnv overlays SWC_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var raw envOverrides
	if err := env.Parse(&raw); err != nil {
		return fmt.Errorf("failed to parse environment overrides: %w", err)
	}

	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	applied := 0
	if raw.ServerURL != nil {
		cfg.Server.URL = *raw.ServerURL
		applied++
	}
	if raw.PlayerID != nil {
		cfg.Server.PlayerID = *raw.PlayerID
		applied++
	}
	if raw.PlayerSecret != nil {
		cfg.Server.PlayerSecret = *raw.PlayerSecret
		applied++
	}
	if raw.RetryCount != nil {
		cfg.Server.RetryCount = *raw.RetryCount
		applied++
	}
	if raw.APIPort != nil {
		cfg.ApplicationData.API.Port = *raw.APIPort
		applied++
	}
	if raw.LogLevel != nil {
		cfg.ApplicationData.Logging.Level = *raw.LogLevel
		applied++
	}

	if applied > 0 {
		log.Debug().Int("count", applied).Msg("applied environment overrides")
	}
	return nil
}
