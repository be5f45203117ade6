package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	OutputText = "text"
	OutputJSON = "json"
)

// Config holds application configuration
type Config struct {
	Address        string        `yaml:"address" json:"address"`
	Password       string        `yaml:"password" json:"-" default:"000000"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" default:"30s"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" json:"scan_timeout" default:"10s"`
	LogLevel       string        `yaml:"log_level" json:"log_level" default:"info"`
	OutputFormat   string        `yaml:"output" json:"output" default:"text"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML config file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values that cannot be expressed by defaults
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.OutputFormat {
	case OutputText, OutputJSON:
	default:
		return fmt.Errorf("unknown output format %q (must be %s or %s)", c.OutputFormat, OutputText, OutputJSON)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive, got %s", c.ConnectTimeout)
	}
	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan_timeout must be positive, got %s", c.ScanTimeout)
	}
	return nil
}

// Level returns the parsed log level, falling back to info
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
