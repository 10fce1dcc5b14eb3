package database

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// DriverPostgres selects the PostgreSQL backed user store.
	DriverPostgres = "postgres"
	// DriverMemory selects the process-local user store, for development only.
	DriverMemory = "memory"
)

// Config holds database connection settings.
// URL takes precedence over the discrete fields when both are set.
type Config struct {
	Driver         string `yaml:"driver" envconfig:"DB_DRIVER"`
	URL            string `yaml:"url" envconfig:"DATABASE_URL"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	// MigrateOnStart applies migrations during bootstrap instead of waiting for GET /.
	MigrateOnStart bool `yaml:"migrate_on_start" envconfig:"DB_MIGRATE_ON_START"`
}

// Normalize validates the settings and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil database config")
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverPostgres
	}
	switch driver {
	case DriverMemory:
		cfg.Driver = driver
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("invalid database.driver %q; allowed: postgres, memory", cfg.Driver)
	}
	cfg.Driver = driver

	cfg.URL = strings.TrimSpace(cfg.URL)
	if strings.HasPrefix(cfg.URL, "postgres://") {
		cfg.URL = "postgresql://" + strings.TrimPrefix(cfg.URL, "postgres://")
	}
	if cfg.URL == "" && strings.TrimSpace(cfg.Host) == "" {
		return fmt.Errorf("database url (DATABASE_URL) or database.host is required")
	}
	if cfg.Port == "" {
		cfg.Port = "5432"
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 5
	}
	return nil
}

// DSN returns a URL form connection string usable by both lib/pq and golang-migrate.
func (c Config) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgresql",
		User:     url.UserPassword(c.User, c.Password),
		Host:     c.Host + ":" + c.Port,
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

// Target describes the database for logs without credentials.
func (c Config) Target() (host, port, name string) {
	if c.URL == "" {
		return c.Host, c.Port, c.Name
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return "", "", ""
	}
	return u.Hostname(), u.Port(), strings.TrimPrefix(u.Path, "/")
}
