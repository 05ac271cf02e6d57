package config

import (
	"sort"
	"time"

	"github.com/erisforge/onebridge/pkg/logger"
)

// Account is one normalized bot identity. The registry is built once at
// startup and treated as immutable; changing accounts requires a restart.
type Account struct {
	Name    string
	BotID   string
	Mode    string
	Enabled bool

	ClientURL   string
	ClientToken string
	ServerPath  string
	ServerToken string

	ReconnectInterval time.Duration
	CallTimeout       time.Duration
}

const (
	ModeClient = "client"
	ModeServer = "server"
)

// ResolveAccounts normalizes the configured accounts into the registry.
// Accounts missing a bot identity or carrying an unknown mode are skipped
// with a warning. A legacy single-account config yields a synthetic
// "default" account held only in memory. With no configuration at all, one
// disabled placeholder is synthesized so the process can start and report
// that setup is incomplete.
func (c *Config) ResolveAccounts() map[string]Account {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.Accounts) > 0 {
		return c.resolveStructured()
	}

	if c.hasLegacyShape() {
		account, ok := c.legacyAccount()
		if !ok {
			return map[string]Account{}
		}
		logger.InfoCF("config", "Migrated legacy single-account config in memory", map[string]interface{}{
			"account": account.Name,
			"mode":    account.Mode,
		})
		return map[string]Account{account.Name: account}
	}

	logger.WarnC("config", "No account configuration found; created a disabled placeholder. Configure accounts and restart.")
	placeholder := normalizeAccount("default", AccountConfig{Mode: ModeServer, Enabled: false})
	return map[string]Account{placeholder.Name: placeholder}
}

func (c *Config) resolveStructured() map[string]Account {
	accounts := make(map[string]Account, len(c.Accounts))
	for name, ac := range c.Accounts {
		if ac.BotID == "" {
			logger.WarnCF("config", "Skipping account without bot_id", map[string]interface{}{
				"account": name,
			})
			continue
		}
		if ac.Mode != ModeClient && ac.Mode != ModeServer {
			logger.WarnCF("config", "Skipping account with unknown mode", map[string]interface{}{
				"account": name,
				"mode":    ac.Mode,
			})
			continue
		}
		accounts[name] = normalizeAccount(name, ac)
	}
	return accounts
}

func (c *Config) legacyAccount() (Account, bool) {
	mode := c.LegacyMode
	if mode != ModeClient && mode != ModeServer {
		logger.WarnCF("config", "Legacy config has an unknown mode", map[string]interface{}{
			"mode": mode,
		})
		return Account{}, false
	}
	account := normalizeAccount("default", AccountConfig{
		Mode:    mode,
		Enabled: true,
		Client:  ClientConfig{URL: c.LegacyClient.URL, Token: c.LegacyClient.Token},
		Server:  ServerConfig{Path: c.LegacyServer.Path, Token: c.LegacyServer.Token},
	})
	logger.WarnC("config", "Legacy account has no bot_id; outgoing events will carry the implementation's self_id only")
	return account, true
}

func normalizeAccount(name string, ac AccountConfig) Account {
	account := Account{
		Name:              name,
		BotID:             ac.BotID,
		Mode:              ac.Mode,
		Enabled:           ac.Enabled,
		ClientURL:         ac.Client.URL,
		ClientToken:       ac.Client.Token,
		ServerPath:        ac.Server.Path,
		ServerToken:       ac.Server.Token,
		ReconnectInterval: DefaultReconnectInterval,
		CallTimeout:       DefaultCallTimeout,
	}
	if account.ClientURL == "" {
		account.ClientURL = DefaultClientURL
	}
	if account.ServerPath == "" {
		account.ServerPath = DefaultServerPath
	}
	if ac.ReconnectIntervalSec > 0 {
		account.ReconnectInterval = time.Duration(ac.ReconnectIntervalSec) * time.Second
	}
	if ac.CallTimeoutSec > 0 {
		account.CallTimeout = time.Duration(ac.CallTimeoutSec) * time.Second
	}
	return account
}

// MigrateLegacyAccounts rewrites the legacy shape into the accounts map so a
// caller can persist it. Returns false when there is nothing to migrate.
func (c *Config) MigrateLegacyAccounts() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.Accounts) > 0 || c.LegacyMode == "" {
		return false
	}
	mode := c.LegacyMode
	if mode != ModeClient && mode != ModeServer {
		return false
	}
	c.Accounts = map[string]AccountConfig{
		"default": {
			Mode:    mode,
			Enabled: true,
			Client:  ClientConfig{URL: c.LegacyClient.URL, Token: c.LegacyClient.Token},
			Server:  ServerConfig{Path: c.LegacyServer.Path, Token: c.LegacyServer.Token},
		},
	}
	c.LegacyMode = ""
	c.LegacyServer = LegacyServerConfig{}
	c.LegacyClient = LegacyClientConfig{}
	return true
}

// SortedAccountNames returns registry keys in stable order for logging.
func SortedAccountNames(accounts map[string]Account) []string {
	names := make([]string, 0, len(accounts))
	for name := range accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
