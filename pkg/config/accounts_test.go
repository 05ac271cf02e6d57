package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAccountsStructured(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Accounts = map[string]AccountConfig{
		"main": {
			BotID:   "10001",
			Mode:    ModeClient,
			Enabled: true,
			Client:  ClientConfig{URL: "ws://bot:3001", Token: "secret"},
		},
		"backup": {
			BotID:                "10002",
			Mode:                 ModeServer,
			Enabled:              false,
			Server:               ServerConfig{Path: "/onebot", Token: "t"},
			ReconnectIntervalSec: 5,
			CallTimeoutSec:       10,
		},
	}

	accounts := cfg.ResolveAccounts()
	require.Len(t, accounts, 2)

	main := accounts["main"]
	assert.Equal(t, "main", main.Name)
	assert.Equal(t, "10001", main.BotID)
	assert.True(t, main.Enabled)
	assert.Equal(t, "ws://bot:3001", main.ClientURL)
	assert.Equal(t, DefaultReconnectInterval, main.ReconnectInterval)
	assert.Equal(t, DefaultCallTimeout, main.CallTimeout)

	backup := accounts["backup"]
	assert.False(t, backup.Enabled)
	assert.Equal(t, "/onebot", backup.ServerPath)
	assert.Equal(t, 5*time.Second, backup.ReconnectInterval)
	assert.Equal(t, 10*time.Second, backup.CallTimeout)
}

func TestResolveAccountsSkipsMissingBotID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Accounts = map[string]AccountConfig{
		"good": {BotID: "1", Mode: ModeClient, Enabled: true},
		"bad":  {Mode: ModeClient, Enabled: true},
	}

	accounts := cfg.ResolveAccounts()
	require.Len(t, accounts, 1)
	_, ok := accounts["good"]
	assert.True(t, ok)
}

func TestResolveAccountsSkipsUnknownMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Accounts = map[string]AccountConfig{
		"odd": {BotID: "1", Mode: "broadcast", Enabled: true},
	}

	accounts := cfg.ResolveAccounts()
	assert.Empty(t, accounts)
}

func TestResolveAccountsLegacyShape(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LegacyMode = ModeClient
	cfg.LegacyClient = LegacyClientConfig{URL: "ws://legacy:3001", Token: "tok"}

	accounts := cfg.ResolveAccounts()
	require.Len(t, accounts, 1)

	account, ok := accounts["default"]
	require.True(t, ok)
	assert.True(t, account.Enabled)
	assert.Equal(t, ModeClient, account.Mode)
	assert.Equal(t, "ws://legacy:3001", account.ClientURL)
	assert.Equal(t, "tok", account.ClientToken)

	// The in-memory migration never touches the persisted shape.
	assert.Empty(t, cfg.Accounts)
	assert.Equal(t, ModeClient, cfg.LegacyMode)
}

func TestResolveAccountsPlaceholderWhenEmpty(t *testing.T) {
	cfg := DefaultConfig()

	accounts := cfg.ResolveAccounts()
	require.Len(t, accounts, 1)

	placeholder, ok := accounts["default"]
	require.True(t, ok)
	assert.False(t, placeholder.Enabled)
}

func TestMigrateLegacyAccounts(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LegacyMode = ModeServer
	cfg.LegacyServer = LegacyServerConfig{Path: "/ws", Token: "s3cret"}

	require.True(t, cfg.MigrateLegacyAccounts())
	require.Contains(t, cfg.Accounts, "default")
	migrated := cfg.Accounts["default"]
	assert.Equal(t, ModeServer, migrated.Mode)
	assert.Equal(t, "/ws", migrated.Server.Path)
	assert.Equal(t, "s3cret", migrated.Server.Token)
	assert.Empty(t, cfg.LegacyMode)

	// Second run has nothing left to migrate.
	assert.False(t, cfg.MigrateLegacyAccounts())
}

func TestLoadConfigFromFileLegacyShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	legacy := `{
		"mode": "server",
		"server": {"path": "/onebot/v11", "token": "abc"},
		"client": {"url": "ws://127.0.0.1:3001", "token": ""}
	}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.hasLegacyShape())

	accounts := cfg.ResolveAccounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, "/onebot/v11", accounts["default"].ServerPath)
	assert.Equal(t, "abc", accounts["default"].ServerToken)
}

func TestLoadConfigFromFileAccountsShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	current := `{
		"accounts": {
			"main": {"bot_id": "42", "mode": "client", "enabled": true,
				"client": {"url": "ws://h:1", "token": "x"}}
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(current), 0644))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.False(t, cfg.hasLegacyShape())

	accounts := cfg.ResolveAccounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, "42", accounts["main"].BotID)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ONEBRIDGE_GATEWAY_PORT", "4011")
	t.Setenv("ONEBRIDGE_CLIENT_URL", "ws://override:3001")

	cfg := DefaultConfig()
	cfg.Accounts = map[string]AccountConfig{
		"default": {BotID: "1", Mode: ModeClient, Enabled: true},
	}

	changed := applyEnvOverrides(cfg)
	assert.True(t, changed)
	assert.Equal(t, 4011, cfg.Gateway.Port)
	assert.Equal(t, "ws://override:3001", cfg.Accounts["default"].Client.URL)
}
