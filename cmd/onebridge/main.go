package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "onebridge",
		Short:        "Bridge between OneBot v11 implementations and a structured event protocol",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config store path (default ~/.onebridge/onebridge.db)")

	root.AddCommand(runCommand())
	root.AddCommand(migrateConfigCommand())
	root.AddCommand(versionCommand())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the onebridge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("onebridge", version)
		},
	}
}
