package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"duewatch/pkg/logging"
)

const (
	userConfigDir  = ".config/duewatch"
	configFileName = "config.yaml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "DUEWATCH_"
)

// osUserHomeDir is swapped in tests.
var osUserHomeDir = os.UserHomeDir

// DefaultConfigDir returns ~/.config/duewatch.
func DefaultConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir), nil
}

// DefaultConfigPath returns ~/.config/duewatch/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// LoadConfig builds the configuration from defaults, the YAML file at path
// and the environment, then validates it. An empty path selects the default
// location, which may be absent; an explicit path must exist.
func LoadConfig(path string) (Config, error) {
	config := GetDefaultConfig()

	explicit := path != ""
	if !explicit {
		p, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = p
	}

	// #nosec G304 -- the config path is chosen by the operator
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	case errors.Is(err, os.ErrNotExist) && !explicit:
		logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", path)
	default:
		return Config{}, fmt.Errorf("error reading config %s: %w", path, err)
	}

	if err := ApplyEnv(&config); err != nil {
		return Config{}, err
	}
	if err := config.resolve(); err != nil {
		return Config{}, err
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// ApplyEnv overlays DUEWATCH_* environment variables onto config. Unset
// variables leave the existing values in place.
func ApplyEnv(config *Config) error {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// resolve fills values derived from other settings.
func (c *Config) resolve() error {
	if c.OAuth.RedirectURL == "" && c.Server.PublicURL != "" {
		c.OAuth.RedirectURL = strings.TrimRight(c.Server.PublicURL, "/") + c.OAuth.CallbackPath
	}
	if c.OAuth.RedirectURL == "" {
		c.OAuth.RedirectURL = fmt.Sprintf("http://%s:%d%s", displayHost(c.Server.Host), c.Server.Port, c.OAuth.CallbackPath)
	}

	if c.Store.Path == "" && c.Store.Type != StoreTypePostgres {
		dir, err := DefaultConfigDir()
		if err != nil {
			return err
		}
		if c.Store.Type == StoreTypeSQLite {
			c.Store.Path = filepath.Join(dir, "credentials.db")
		} else {
			c.Store.Path = filepath.Join(dir, "credentials")
		}
	}
	if c.Scheduler.RegistryPath == "" {
		dir, err := DefaultConfigDir()
		if err != nil {
			return err
		}
		c.Scheduler.RegistryPath = filepath.Join(dir, "registry.yaml")
	}
	return nil
}

func displayHost(host string) string {
	if host == "" || host == "0.0.0.0" || host == "::" {
		return "localhost"
	}
	return host
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
