package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	server := cfg.GetServer()
	app := cfg.GetApplicationData()
	validateServer(&server, result)
	validateApplicationData(&app, result)

	return result
}

func validateServer(s *ServerConfig, result *ValidationResult) {
	if strings.TrimSpace(s.URL) == "" {
		result.AddError("server.url", "server URL is required")
	} else if u, err := url.Parse(s.URL); err != nil || (u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https") {
		result.AddError("server.url", fmt.Sprintf("invalid server URL: %s", s.URL))
	}

	// identity is all or nothing
	hasID := strings.TrimSpace(s.PlayerID) != ""
	hasSecret := strings.TrimSpace(s.PlayerSecret) != ""
	if hasID != hasSecret {
		result.AddError("server.player_id", "player_id and player_secret must be set together")
	}

	if s.RetryCount < 0 {
		result.AddError("server.retry_count", "retry count must not be negative")
	} else if s.RetryCount > 10 {
		result.AddWarning("server.retry_count",
			fmt.Sprintf("high retry count (%d) re-authenticates many times per call", s.RetryCount))
	}

	if s.SettleDelayMS < 0 {
		result.AddError("server.settle_delay_ms", "settle delay must not be negative")
	}
	if s.RequestTimeoutSec < 0 {
		result.AddError("server.request_timeout_sec", "request timeout must not be negative")
	}
	if s.SkipTimestamp {
		result.AddWarning("server.skip_timestamp", "timestamps are suppressed; time-sensitive commands may be rejected")
	}
}

func validateApplicationData(data *ApplicationData, result *ValidationResult) {
	if data.API.Enabled {
		validatePort(data.API.Port, "application_data.api.port", result)
		if data.API.RateLimitRPS < 1 {
			result.AddWarning("application_data.api.rate_limit_rps",
				"rate limit is disabled (0 RPS), this may expose the API to abuse")
		}
	}

	if data.MQTT.Enabled {
		if strings.TrimSpace(data.MQTT.BrokerURL) == "" {
			result.AddError("application_data.mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if data.MQTT.Port < 1 || data.MQTT.Port > 65535 {
			result.AddError("application_data.mqtt.port", "invalid MQTT port")
		}
		if data.MQTT.UseTLS && (data.MQTT.CertFile == "") != (data.MQTT.KeyFile == "") {
			result.AddError("application_data.mqtt.cert_file", "cert_file and key_file must be set together")
		}
	}

	if data.Collector.Enabled {
		if data.Collector.IntervalSec < 60 {
			result.AddWarning("application_data.collector.interval_sec",
				"collector interval less than 60s may cause excessive logins")
		}
		if data.Collector.IntervalSec < 1 {
			result.AddError("application_data.collector.interval_sec", "collector interval must be positive")
		}
	}

	if data.Health.CheckIntervalSec < 1 {
		result.AddError("application_data.health.check_interval_sec", "health check interval must be positive")
	}
	if data.Health.HeartbeatIntervalSec < 10 {
		result.AddWarning("application_data.health.heartbeat_interval_sec",
			"heartbeat interval less than 10s may cause excessive traffic")
	}

	if strings.TrimSpace(data.Database.Path) == "" {
		result.AddError("application_data.database.path", "database path is required")
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
