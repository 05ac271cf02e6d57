package config

import (
	"os"
	"strconv"
	"strings"
)

// applyEnvOverrides applies selected runtime environment variables into
// config. It returns true when any value changed.
func applyEnvOverrides(cfg *Config) bool {
	if cfg == nil {
		return false
	}

	changed := false

	setString := func(dst *string, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		if *dst != value {
			*dst = value
			changed = true
		}
	}
	setInt := func(dst *int, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		if *dst != parsed {
			*dst = parsed
			changed = true
		}
	}

	env := func(keys ...string) string {
		for _, key := range keys {
			if value := strings.TrimSpace(os.Getenv(key)); value != "" {
				return value
			}
		}
		return ""
	}

	setString(&cfg.Gateway.Host, env("ONEBRIDGE_GATEWAY_HOST"))
	setInt(&cfg.Gateway.Port, env("ONEBRIDGE_GATEWAY_PORT"))
	setString(&cfg.Log.Level, env("ONEBRIDGE_LOG_LEVEL"))

	// Per-account overrides for the common single-account case.
	if account, ok := cfg.Accounts["default"]; ok {
		setString(&account.Client.URL, env("ONEBRIDGE_CLIENT_URL"))
		setString(&account.Client.Token, env("ONEBRIDGE_CLIENT_TOKEN"))
		setString(&account.Server.Token, env("ONEBRIDGE_SERVER_TOKEN"))
		cfg.Accounts["default"] = account
	} else if cfg.hasLegacyShape() {
		setString(&cfg.LegacyClient.URL, env("ONEBRIDGE_CLIENT_URL"))
		setString(&cfg.LegacyClient.Token, env("ONEBRIDGE_CLIENT_TOKEN"))
		setString(&cfg.LegacyServer.Token, env("ONEBRIDGE_SERVER_TOKEN"))
	}

	return changed
}
