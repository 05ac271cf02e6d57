package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/erisforge/onebridge/pkg/config"
)

// migrateConfigCommand rewrites a legacy single-account config into the
// accounts layout and persists it. The running bridge only ever migrates in
// memory; writing the migrated shape back is this explicit opt-in.
func migrateConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-config",
		Short: "Persist the legacy single-account config as a named account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if !cfg.MigrateLegacyAccounts() {
				fmt.Println("Nothing to migrate: config already uses the accounts layout.")
				return nil
			}

			if err := config.SaveConfig(configPath, cfg); err != nil {
				return fmt.Errorf("failed to save migrated config: %w", err)
			}

			fmt.Println("Migrated legacy config to account \"default\".")
			return nil
		},
	}
}
