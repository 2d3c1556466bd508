/*
Package configs is responsible for loading and parsing the relay's configuration settings.

It reads operating system environment variables covering the running environment, the
listener ports, CORS allowed origins, session limits and connection throttling.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// AppConfig contains all configuration parameters required for the relay to run.
// All configuration values are loaded from environment variables.
type AppConfig struct {
	// General Server Settings
	Environment string
	LogLevel    string
	Port        int
	TCPPort     int

	// Security Settings
	AllowedOrigins []string
	ConnectRate    float64
	ConnectBurst   int

	// Session Settings
	SelfEcho      bool
	MaxNameLength int
	MaxChatBytes  int
	MaxFrameBytes int
	MessageRate   float64
	MessageBurst  int
	SendQueueSize int
}

// IsDevelopment reports whether the relay runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// LoadConfig reads and parses the relay configuration from environment variables.
// It provides default values for each configuration item and performs type conversions and validation.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	// --- General Server Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	cfg.LogLevel = os.Getenv("LOG_LEVEL")

	if cfg.Port, err = intEnv("PORT", 8080); err != nil {
		return nil, err
	}
	if err := ValidatePort("PORT", cfg.Port); err != nil {
		return nil, err
	}

	// TCP_PORT=0 turns the framed TCP listener off.
	if cfg.TCPPort, err = intEnv("TCP_PORT", 3042); err != nil {
		return nil, err
	}
	if cfg.TCPPort != 0 {
		if err := ValidatePort("TCP_PORT", cfg.TCPPort); err != nil {
			return nil, err
		}
		if cfg.TCPPort == cfg.Port {
			return nil, fmt.Errorf("TCP_PORT and PORT must differ, both are %d", cfg.Port)
		}
	}

	// --- Security Settings ---
	cfg.AllowedOrigins = []string{}
	if originsStr := os.Getenv("ALLOWED_ORIGINS"); originsStr != "" {
		for _, origin := range strings.Split(originsStr, ",") {
			if trimmed := strings.TrimSpace(origin); trimmed != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
			}
		}
	}

	if cfg.ConnectRate, err = floatEnv("CONNECT_RATE", 1); err != nil {
		return nil, err
	}
	if cfg.ConnectBurst, err = intEnv("CONNECT_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.ConnectRate <= 0 || cfg.ConnectBurst < 1 {
		return nil, fmt.Errorf("CONNECT_RATE must be positive and CONNECT_BURST at least 1, got %g and %d", cfg.ConnectRate, cfg.ConnectBurst)
	}

	// --- Session Settings ---
	if cfg.SelfEcho, err = boolEnv("SELF_ECHO", false); err != nil {
		return nil, err
	}

	if cfg.MaxNameLength, err = intEnv("MAX_NAME_LENGTH", 32); err != nil {
		return nil, err
	}
	if cfg.MaxNameLength < 1 {
		return nil, fmt.Errorf("MAX_NAME_LENGTH must be at least 1, got %d", cfg.MaxNameLength)
	}

	// MAX_CHAT_BYTES=0 disables the chat length check.
	if cfg.MaxChatBytes, err = intEnv("MAX_CHAT_BYTES", 5000); err != nil {
		return nil, err
	}
	if cfg.MaxChatBytes < 0 {
		return nil, fmt.Errorf("MAX_CHAT_BYTES must not be negative, got %d", cfg.MaxChatBytes)
	}

	if cfg.MaxFrameBytes, err = intEnv("MAX_FRAME_BYTES", 64*1024); err != nil {
		return nil, err
	}
	if cfg.MaxFrameBytes < 512 {
		return nil, fmt.Errorf("MAX_FRAME_BYTES must be at least 512, got %d", cfg.MaxFrameBytes)
	}
	if cfg.MaxChatBytes > cfg.MaxFrameBytes {
		return nil, fmt.Errorf("MAX_CHAT_BYTES (%d) cannot exceed MAX_FRAME_BYTES (%d)", cfg.MaxChatBytes, cfg.MaxFrameBytes)
	}

	// MESSAGE_RATE=0 disables per-connection throttling.
	if cfg.MessageRate, err = floatEnv("MESSAGE_RATE", 5); err != nil {
		return nil, err
	}
	if cfg.MessageBurst, err = intEnv("MESSAGE_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.MessageRate < 0 || (cfg.MessageRate > 0 && cfg.MessageBurst < 1) {
		return nil, fmt.Errorf("MESSAGE_RATE must not be negative and MESSAGE_BURST must be at least 1, got %g and %d", cfg.MessageRate, cfg.MessageBurst)
	}

	if cfg.SendQueueSize, err = intEnv("SEND_QUEUE_SIZE", 256); err != nil {
		return nil, err
	}
	if cfg.SendQueueSize < 1 {
		return nil, fmt.Errorf("SEND_QUEUE_SIZE must be at least 1, got %d", cfg.SendQueueSize)
	}

	return cfg, nil
}

// ValidatePort checks that port lies outside the privileged range.
func ValidatePort(name string, port int) error {
	if port < 1024 || port > 65535 {
		return fmt.Errorf("%s %d is outside the recommended range (%d-%d) to avoid privileged ports", name, port, 1024, 65535)
	}
	return nil
}

func intEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func floatEnv(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func boolEnv(key string, def bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}
