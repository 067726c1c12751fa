// Package cmd implements the claudechat CLI commands.
package cmd

import (
	"fmt"

	"claudechat/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [API]")
	apiKey := config.GetAPIKey(cfg)
	if apiKey != "" {
		fmt.Printf("    Key:        %s\n", maskAPIKey(apiKey))
	} else {
		fmt.Println("    Key:        not configured")
	}
	if cfg.API.BaseURL != "" {
		fmt.Printf("    Base URL:   %s\n", cfg.API.BaseURL)
	}
	fmt.Printf("    Max tokens: %d\n", cfg.API.MaxTokens)
	fmt.Println()

	fmt.Println("  [Models]")
	fmt.Printf("    Default: %s\n", cfg.Models.Default)
	for alias, full := range cfg.Models.Aliases {
		fmt.Printf("    %-8s -> %s\n", alias, full)
	}
	fmt.Println()

	fmt.Println("  [Cache]")
	fmt.Printf("    Re-annotate established: %v\n", cfg.Cache.ReannotateEstablished)
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Data directory:      %s\n", config.DataDir(cfg))
	fmt.Printf("    Saved conversations: %d max\n", cfg.General.MaxSavedConversations)
	fmt.Println()

	fmt.Println("  [Appearance]")
	fmt.Printf("    Theme: %s\n", cfg.Appearance.Theme)
	fmt.Println()

	fmt.Println("  Run `claudechat setup` to reconfigure.")
	return nil
}

func maskAPIKey(key string) string {
	if len(key) > 16 {
		return key[:8] + "..." + key[len(key)-4:]
	}
	if len(key) > 4 {
		return key[:4] + "..."
	}
	return "****"
}
