package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "", cfg.Address)
	assert.Equal(t, "000000", cfg.Password)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 10*time.Second, cfg.ScanTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, OutputText, cfg.OutputFormat)
	assert.NoError(t, cfg.Validate())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flipcube.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file values override defaults, missing keys keep them", func(t *testing.T) {
		path := writeConfig(t, `
address: "AA:BB:CC:DD:EE:FF"
password: "123456"
connect_timeout: 5s
output: json
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.Address)
		assert.Equal(t, "123456", cfg.Password)
		assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
		assert.Equal(t, 10*time.Second, cfg.ScanTimeout, "unset scan_timeout MUST keep its default")
		assert.Equal(t, "info", cfg.LogLevel, "unset log_level MUST keep its default")
		assert.Equal(t, OutputJSON, cfg.OutputFormat)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "address: [unterminated"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to parse config")
	})

	t.Run("invalid output format", func(t *testing.T) {
		_, err := Load(writeConfig(t, "output: table"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown output format")
	})

	t.Run("invalid log level", func(t *testing.T) {
		_, err := Load(writeConfig(t, "log_level: loud"))
		require.Error(t, err)
	})
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", expected: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", expected: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", expected: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", expected: logrus.ErrorLevel},
		{name: "falls back to info on unknown level", logLevel: "loud", expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
