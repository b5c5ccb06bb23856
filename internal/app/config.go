package app

import (
	"io"

	"duewatch/internal/config"
)

// Config holds the command-line level settings used to bootstrap.
type Config struct {
	// Debug forces debug logging regardless of the configured level.
	Debug bool

	// ConfigPath is the config file; empty selects the default location.
	ConfigPath string

	// LogOutput receives log output; nil means stderr.
	LogOutput io.Writer

	// Settings is filled by NewApplication.
	Settings *config.Config
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}
