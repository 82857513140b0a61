package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Environment
	GoEnv string `env:"GO_ENV" default:"development"`

	// Relay listener
	TCPHost string `env:"TCP_HOST" default:"0.0.0.0"`
	TCPPort int    `env:"TCP_PORT" default:"50001"`

	// Admin HTTP mirror of the operator console
	AdminEnabled bool `env:"ADMIN_ENABLED" default:"false"`
	AdminPort    int  `env:"ADMIN_PORT" default:"8084"`

	// Operator console on stdin; disable for headless runs
	ConsoleEnabled bool `env:"CONSOLE_ENABLED" default:"true"`

	// Session timing
	PollInterval   time.Duration `env:"POLL_INTERVAL" default:"100ms"`
	AcceptInterval time.Duration `env:"ACCEPT_INTERVAL" default:"100ms"`
	SendTimeout    time.Duration `env:"SEND_TIMEOUT" default:"250ms"`
	IdleTimeout    time.Duration `env:"IDLE_TIMEOUT" default:"0"` // 0 keeps silent peers forever

	// Logging
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"json"`
}

// LoadConfig loads configuration from a .env file (if any) and the environment
func LoadConfig() (*Config, error) {
	// a missing .env is fine, system env vars still apply
	_ = godotenv.Load(".env")

	config := &Config{}

	if err := loadEnvString(&config.GoEnv, "GO_ENV", "development"); err != nil {
		return nil, err
	}

	if err := loadEnvString(&config.TCPHost, "TCP_HOST", "0.0.0.0"); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.TCPPort, "TCP_PORT", 50001); err != nil {
		return nil, err
	}

	if err := loadEnvBool(&config.AdminEnabled, "ADMIN_ENABLED", false); err != nil {
		return nil, err
	}
	if err := loadEnvInt(&config.AdminPort, "ADMIN_PORT", 8084); err != nil {
		return nil, err
	}

	if err := loadEnvBool(&config.ConsoleEnabled, "CONSOLE_ENABLED", true); err != nil {
		return nil, err
	}

	if err := loadEnvDuration(&config.PollInterval, "POLL_INTERVAL", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.AcceptInterval, "ACCEPT_INTERVAL", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.SendTimeout, "SEND_TIMEOUT", 250*time.Millisecond); err != nil {
		return nil, err
	}
	if err := loadEnvDuration(&config.IdleTimeout, "IDLE_TIMEOUT", 0); err != nil {
		return nil, err
	}

	if err := loadEnvString(&config.LogLevel, "LOG_LEVEL", "info"); err != nil {
		return nil, err
	}
	if err := loadEnvString(&config.LogFormat, "LOG_FORMAT", "json"); err != nil {
		return nil, err
	}
	return config, nil
}

// Helper functions for type conversion and validation
func loadEnvString(target *string, key, defaultValue string) error {
	if value := os.Getenv(key); value != "" {
		*target = value
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvInt(target *int, key string, defaultValue int) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvBool(target *bool, key string, defaultValue bool) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

func loadEnvDuration(target *time.Duration, key string, defaultValue time.Duration) error {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %v", key, err)
		}
		*target = parsed
	} else {
		*target = defaultValue
	}
	return nil
}

// Validate performs validation on the loaded configuration
func (c *Config) Validate() error {
	var errors []string

	if c.TCPPort < 0 || c.TCPPort > 65535 {
		errors = append(errors, "TCP_PORT must be between 0 and 65535")
	}
	if c.AdminEnabled && (c.AdminPort < 1 || c.AdminPort > 65535) {
		errors = append(errors, "ADMIN_PORT must be between 1 and 65535")
	}
	if c.PollInterval <= 0 {
		errors = append(errors, "POLL_INTERVAL must be positive")
	}
	if c.AcceptInterval <= 0 {
		errors = append(errors, "ACCEPT_INTERVAL must be positive")
	}
	// broadcasts hold the registry lock while sending, so every send needs a deadline
	if c.SendTimeout <= 0 {
		errors = append(errors, "SEND_TIMEOUT must be positive")
	}
	if c.IdleTimeout < 0 {
		errors = append(errors, "IDLE_TIMEOUT must not be negative")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %s", strings.Join(validLogLevels, ", ")))
	}

	validLogFormats := []string{"text", "json"}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: %s", strings.Join(validLogFormats, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

// TCPAddr is the host:port the relay listens on
func (c *Config) TCPAddr() string {
	return net.JoinHostPort(c.TCPHost, strconv.Itoa(c.TCPPort))
}

func (c *Config) AdminAddr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(c.AdminPort))
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GoEnv == "development"
}

// Helper function to check if slice contains a string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
