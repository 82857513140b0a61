package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"TCP_HOST", "TCP_PORT", "ADMIN_ENABLED", "CONSOLE_ENABLED", "POLL_INTERVAL", "SEND_TIMEOUT", "IDLE_TIMEOUT", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 50001, cfg.TCPPort)
	assert.Equal(t, "0.0.0.0:50001", cfg.TCPAddr())
	assert.False(t, cfg.AdminEnabled)
	assert.True(t, cfg.ConsoleEnabled)
	assert.Equal(t, 100*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.SendTimeout)
	assert.Equal(t, time.Duration(0), cfg.IdleTimeout)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("TCP_HOST", "127.0.0.1")
	t.Setenv("TCP_PORT", "6000")
	t.Setenv("ADMIN_ENABLED", "true")
	t.Setenv("CONSOLE_ENABLED", "false")
	t.Setenv("IDLE_TIMEOUT", "2m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "127.0.0.1:6000", cfg.TCPAddr())
	assert.True(t, cfg.AdminEnabled)
	assert.False(t, cfg.ConsoleEnabled)
	assert.Equal(t, 2*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfig_BadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"TCP_PORT", "fifty"},
		{"ADMIN_ENABLED", "maybe"},
		{"SEND_TIMEOUT", "soon"},
		{"CONSOLE_ENABLED", "sometimes"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		TCPPort:        50001,
		AdminPort:      8084,
		PollInterval:   time.Millisecond,
		AcceptInterval: time.Millisecond,
		SendTimeout:    time.Millisecond,
		LogLevel:       "info",
		LogFormat:      "text",
	}
	assert.NoError(t, valid.Validate())

	badPort := valid
	badPort.TCPPort = 70000
	assert.ErrorContains(t, badPort.Validate(), "TCP_PORT")

	badLevel := valid
	badLevel.LogLevel = "loud"
	assert.ErrorContains(t, badLevel.Validate(), "LOG_LEVEL")

	badPoll := valid
	badPoll.PollInterval = 0
	assert.ErrorContains(t, badPoll.Validate(), "POLL_INTERVAL")

	badAdmin := valid
	badAdmin.AdminEnabled = true
	badAdmin.AdminPort = 0
	assert.ErrorContains(t, badAdmin.Validate(), "ADMIN_PORT")

	noSendTimeout := valid
	noSendTimeout.SendTimeout = 0
	assert.ErrorContains(t, noSendTimeout.Validate(), "SEND_TIMEOUT")

	badIdle := valid
	badIdle.IdleTimeout = -time.Second
	assert.ErrorContains(t, badIdle.Validate(), "IDLE_TIMEOUT")
}

func TestAddrs_IPv6Host(t *testing.T) {
	cfg := Config{TCPHost: "::1", TCPPort: 6000, AdminPort: 8084}
	assert.Equal(t, "[::1]:6000", cfg.TCPAddr())
	assert.Equal(t, "127.0.0.1:8084", cfg.AdminAddr())
}
