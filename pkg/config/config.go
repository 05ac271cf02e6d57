package config

import (
	"sync"
	"time"
)

const (
	DefaultReconnectInterval = 30 * time.Second
	DefaultCallTimeout       = 30 * time.Second
	DefaultServerPath        = "/"
	DefaultClientURL         = "ws://127.0.0.1:3001"
)

// Config is the persisted process configuration. The top-level mode/server/
// client fields are the legacy single-account shape; current configs define
// Accounts instead.
type Config struct {
	mu sync.RWMutex

	Accounts map[string]AccountConfig `json:"accounts,omitempty"`

	// Legacy single-account shape, migrated in memory to a "default"
	// account by ResolveAccounts. Persisting the migrated shape requires
	// an explicit `onebridge migrate-config`.
	LegacyMode   string             `json:"mode,omitempty"`
	LegacyServer LegacyServerConfig `json:"server,omitempty"`
	LegacyClient LegacyClientConfig `json:"client,omitempty"`

	Gateway GatewayConfig `json:"gateway"`
	Log     LogConfig     `json:"log"`
}

// AccountConfig is one bot identity as written in configuration.
type AccountConfig struct {
	BotID   string `json:"bot_id"`
	Mode    string `json:"mode"` // "client" or "server"
	Enabled bool   `json:"enabled"`

	Client ClientConfig `json:"client,omitempty"`
	Server ServerConfig `json:"server,omitempty"`

	// Tunables in seconds; zero means default.
	ReconnectIntervalSec int `json:"reconnect_interval,omitempty"`
	CallTimeoutSec       int `json:"call_timeout,omitempty"`
}

type ClientConfig struct {
	URL   string `json:"url"`
	Token string `json:"token,omitempty"`
}

type ServerConfig struct {
	Path  string `json:"path"`
	Token string `json:"token,omitempty"`
}

type LegacyServerConfig struct {
	Path  string `json:"path,omitempty"`
	Token string `json:"token,omitempty"`
}

type LegacyClientConfig struct {
	URL   string `json:"url,omitempty"`
	Token string `json:"token,omitempty"`
}

// GatewayConfig configures the inbound websocket listener used by
// server-mode accounts.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type LogConfig struct {
	Level string `json:"level"`
}

func DefaultConfig() *Config {
	return &Config{
		Accounts: map[string]AccountConfig{},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 3011,
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadConfig loads configuration from the store (migrating from the legacy
// JSON file when the store is empty) and applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg, err := loadConfigFromStore(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// hasLegacyShape reports whether the config still carries the single-account
// layout instead of an accounts map.
func (c *Config) hasLegacyShape() bool {
	return len(c.Accounts) == 0 && c.LegacyMode != ""
}
