// Package config handles configuration loading, validation, and persistence
// for swctools.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/swctools/swctools/internal/session"
	"github.com/swctools/swctools/internal/util"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5080
	DefaultServerURL  = "https://swc.example.net"
)

// Config is the root configuration structure for swctools.
type Config struct {
	mu   sync.RWMutex
	path string

	Server          ServerConfig    `json:"server"`
	ApplicationData ApplicationData `json:"application_data"`
}

// ServerConfig describes the game server and the player session.
type ServerConfig struct {
	URL string `json:"url"`

	// Identity. Leave both empty to have a player generated on first login.
	PlayerID     string `json:"player_id"`
	PlayerSecret string `json:"player_secret"`

	RetryCount        int   `json:"retry_count"`
	SettleDelayMS     int   `json:"settle_delay_ms"`
	SkipTimestamp     bool  `json:"skip_timestamp"`
	DriftOffset       int64 `json:"drift_offset"`
	RequestTimeoutSec int   `json:"request_timeout_sec"`
}

// ApplicationData contains settings for the services built around the session.
type ApplicationData struct {
	API       APIConfig       `json:"api"`
	MQTT      MQTTConfig      `json:"mqtt"`
	Collector CollectorConfig `json:"collector"`
	Health    HealthConfig    `json:"health"`
	Database  DatabaseConfig  `json:"database"`
	Logging   LoggingConfig   `json:"logging"`
}

// APIConfig holds REST API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	// AuthToken, when set, is required as a bearer token on private routes.
	AuthToken string `json:"auth_token"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	CAFile      string `json:"ca_file"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// CollectorConfig holds snapshot collector settings.
type CollectorConfig struct {
	Enabled       bool     `json:"enabled"`
	IntervalSec   int      `json:"interval_sec"`
	WatchedSquads []string `json:"watched_squads"`
	RetentionDays int      `json:"retention_days"`
}

// HealthConfig holds liveness check settings.
type HealthConfig struct {
	CheckIntervalSec     int `json:"check_interval_sec"`
	HeartbeatIntervalSec int `json:"heartbeat_interval_sec"`
}

// DatabaseConfig holds the sqlite location.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL:               DefaultServerURL,
			RetryCount:        session.DefaultRetryCount,
			SettleDelayMS:     int(session.DefaultSettleDelay / time.Millisecond),
			RequestTimeoutSec: 30,
		},
		ApplicationData: ApplicationData{
			API: APIConfig{
				Enabled:      true,
				Port:         DefaultAPIPort,
				RateLimitRPS: 20,
			},
			MQTT: MQTTConfig{
				Enabled:     false,
				BrokerURL:   "localhost",
				Port:        1883,
				TopicPrefix: "swctools",
			},
			Collector: CollectorConfig{
				Enabled:       false,
				IntervalSec:   900,
				RetentionDays: 30,
			},
			Health: HealthConfig{
				CheckIntervalSec:     300,
				HeartbeatIntervalSec: 60,
			},
			Database: DatabaseConfig{
				Path: filepath.Join("data", "swctools.db"),
			},
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxBackups: 5,
				Console:    true,
			},
		},
	}
}

// Load reads configuration from a JSON file, creating it with defaults when
// missing. Environment overrides are applied last and never saved.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		log.Info().Str("path", configPath).Msg("config file not found, creating default")
		cfg := DefaultConfig()
		cfg.path = configPath
		if saveErr := cfg.Save(); saveErr != nil {
			return nil, fmt.Errorf("failed to save default config: %w", saveErr)
		}
		if err := ApplyEnv(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Persist any fields added since the file was written.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may hold the player secret
	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServer returns a copy of the server configuration.
func (c *Config) GetServer() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// SetServer updates the server configuration.
func (c *Config) SetServer(s ServerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server = s
}

// GetApplicationData returns a copy of the application data configuration.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ApplicationData
}

// SetIdentity records a player identity, typically one generated by the
// server on first login.
func (c *Config) SetIdentity(playerID, secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server.PlayerID = playerID
	c.Server.PlayerSecret = secret
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// IsFirstRun returns true if the configuration needs initial setup.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server.URL == "" || c.Server.URL == DefaultServerURL
}

// SessionConfig converts the server section into session tunables.
func (c *Config) SessionConfig() session.Config {
	s := c.GetServer()
	return session.Config{
		PlayerID:      s.PlayerID,
		PlayerSecret:  s.PlayerSecret,
		RetryCount:    s.RetryCount,
		SettleDelay:   time.Duration(s.SettleDelayMS) * time.Millisecond,
		SkipTimestamp: s.SkipTimestamp,
		DriftOffset:   s.DriftOffset,
	}
}

// RequestTimeout returns the transport timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.GetServer().RequestTimeoutSec) * time.Second
}

// LogConfig converts the logging section for util.InitLogger.
func (c *Config) LogConfig() util.LogConfig {
	l := c.GetApplicationData().Logging
	return util.LogConfig{
		Level:      l.Level,
		Directory:  l.Directory,
		MaxBackups: l.MaxBackups,
		Console:    l.Console,
	}
}
