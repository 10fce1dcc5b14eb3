// Package app assembles the secret bot from the core packages.
package app

import (
	"fmt"

	coreconfig "github.com/m3rciful/secretbot/core/config"
	coredatabase "github.com/m3rciful/secretbot/core/database"
)

// Config is the full application configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`
	Database          coredatabase.Config `yaml:"database"`
}

// CoreConfig returns the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// LoadConfig reads and validates everything the server needs.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := coredatabase.Normalize(&cfg.Database); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDatabaseConfig reads only the database section; LINE credentials are not required.
func LoadDatabaseConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := coredatabase.Normalize(&cfg.Database); err != nil {
		return nil, err
	}
	if cfg.Database.Driver == coredatabase.DriverMemory {
		return nil, fmt.Errorf("database.driver %q has no schema to migrate", coredatabase.DriverMemory)
	}
	return &cfg, nil
}
