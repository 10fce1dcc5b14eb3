package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// LineConfig holds LINE Messaging API channel credentials.
type LineConfig struct {
	ChannelToken  string `yaml:"channel_token" envconfig:"LINE_ACC_TOKEN"`
	ChannelSecret string `yaml:"channel_secret" envconfig:"LINE_SECRET"`
	// APIEndpoint overrides the messaging API base URL; empty -> SDK default.
	APIEndpoint string `yaml:"api_endpoint" envconfig:"LINE_API_ENDPOINT"`
}

// ServerConfig specifies the HTTP listener serving the webhook.
type ServerConfig struct {
	Listen string `yaml:"listen" envconfig:"LISTEN"`
	Port   int    `yaml:"port" envconfig:"PORT"`
	// ReadTimeoutSeconds bounds reading a single request; 0 -> default
	ReadTimeoutSeconds int `yaml:"read_timeout_seconds" envconfig:"SERVER_READ_TIMEOUT_SECONDS"`
	// ShutdownTimeoutSeconds bounds the graceful drain on stop; 0 -> default
	ShutdownTimeoutSeconds int `yaml:"shutdown_timeout_seconds" envconfig:"SERVER_SHUTDOWN_TIMEOUT_SECONDS"`
}

// ReplyConfig tunes the payloads appended to conversation replies.
type ReplyConfig struct {
	// StickerPackageID and StickerID select the sticker sent after every text reply.
	StickerPackageID string `yaml:"sticker_package_id" envconfig:"REPLY_STICKER_PACKAGE_ID"`
	StickerID        string `yaml:"sticker_id" envconfig:"REPLY_STICKER_ID"`
	// DisableSticker turns the trailing sticker off.
	DisableSticker bool `yaml:"disable_sticker" envconfig:"REPLY_DISABLE_STICKER"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// DefaultListen is used when server.listen is empty.
	DefaultListen = "0.0.0.0"
	// DefaultPort matches the port the bot historically listened on.
	DefaultPort = 80
	// DefaultStickerPackageID is the sticker package sent after text replies.
	DefaultStickerPackageID = "3"
	// DefaultStickerID is the sticker sent after text replies.
	DefaultStickerID = "233"

	defaultReadTimeoutSeconds     = 10
	defaultShutdownTimeoutSeconds = 10
)

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Line    LineConfig    `yaml:"line"`
	Server  ServerConfig  `yaml:"server"`
	Reply   ReplyConfig   `yaml:"reply"`
	Logging LoggingConfig `yaml:"logging"`
}

// Load reads configuration from an optional YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Decode fills target from path (YAML, may be absent) and then from the environment.
// A .env file in the working directory is loaded first when present; variables
// already set in the process environment win over it.
func Decode(path string, target any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, target); err != nil {
				return fmt.Errorf("failed to parse YAML config: %w", err)
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := envconfig.Process("", target); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	cfg.Line.ChannelToken = strings.TrimSpace(cfg.Line.ChannelToken)
	cfg.Line.ChannelSecret = strings.TrimSpace(cfg.Line.ChannelSecret)
	if cfg.Line.ChannelToken == "" {
		return fmt.Errorf("line channel access token is required (LINE_ACC_TOKEN)")
	}
	if cfg.Line.ChannelSecret == "" {
		return fmt.Errorf("line channel secret is required (LINE_SECRET)")
	}

	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = DefaultListen
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be within 1..65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeoutSeconds < 0 {
		return fmt.Errorf("server.read_timeout_seconds must be >= 0")
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = defaultReadTimeoutSeconds
	}
	if cfg.Server.ShutdownTimeoutSeconds < 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds must be >= 0")
	}
	if cfg.Server.ShutdownTimeoutSeconds == 0 {
		cfg.Server.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}

	if !cfg.Reply.DisableSticker {
		if strings.TrimSpace(cfg.Reply.StickerPackageID) == "" {
			cfg.Reply.StickerPackageID = DefaultStickerPackageID
		}
		if strings.TrimSpace(cfg.Reply.StickerID) == "" {
			cfg.Reply.StickerID = DefaultStickerID
		}
	}
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Listen, c.Port)
}
