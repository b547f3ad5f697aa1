package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// .env is optional; real environment variables still win over it
	_ = godotenv.Load()

	var configPath string
	rootCmd := &cobra.Command{
		Use:          "cronjob",
		Short:        "Rental obligation job runner",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.dev.yaml", "Path to configuration file")

	rootCmd.AddCommand(
		serveCmd(&configPath),
		runCmd(&configPath),
		migrateCmd(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
