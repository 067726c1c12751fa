// Package config loads and saves claudechat configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all claudechat configuration.
type Config struct {
	API        APIConfig        `toml:"api"`
	Models     ModelsConfig     `toml:"models"`
	Cache      CacheConfig      `toml:"cache"`
	General    GeneralConfig    `toml:"general"`
	Appearance AppearanceConfig `toml:"appearance"`
}

// APIConfig holds Anthropic API settings.
type APIConfig struct {
	Key       string `toml:"key,omitempty"`
	BaseURL   string `toml:"base_url,omitempty"`
	MaxTokens int    `toml:"max_tokens"`
}

// ModelsConfig maps short aliases to full model identifiers.
type ModelsConfig struct {
	Default string            `toml:"default"`
	Aliases map[string]string `toml:"aliases"`
}

// CacheConfig holds prompt-cache behavior settings.
type CacheConfig struct {
	// ReannotateEstablished keeps sending the cache_control marker even
	// after the API has confirmed a cache creation. False stops marking
	// once creation tokens were observed.
	ReannotateEstablished bool `toml:"reannotate_established"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	DataDir               string `toml:"data_dir,omitempty"`
	MaxSavedConversations int    `toml:"max_saved_conversations"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			MaxTokens: 4096,
		},
		Models: ModelsConfig{
			Default: "sonnet",
			Aliases: map[string]string{
				"sonnet": "claude-sonnet-4-20250514",
				"opus":   "claude-opus-4-20250514",
			},
		},
		Cache: CacheConfig{
			ReannotateEstablished: true,
		},
		General: GeneralConfig{
			MaxSavedConversations: 50,
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "claudechat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "claudechat")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// GetAPIKey returns the API key from env var or config, in that order.
func GetAPIKey(cfg Config) string {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key
	}
	return cfg.API.Key
}

// DataDir returns the directory holding conversations and the attachment
// registry.
func DataDir(cfg Config) string {
	if cfg.General.DataDir != "" {
		return cfg.General.DataDir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "claudechat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "claudechat")
}

// ResolveModel resolves a model alias (or raw model ID) against the alias
// table. Unknown names are assumed to be full model identifiers.
func ResolveModel(cfg Config, name string) string {
	if name == "" {
		name = cfg.Models.Default
	}
	if full, ok := cfg.Models.Aliases[name]; ok {
		return full
	}
	return name
}

// AliasFor returns the short alias of a full model ID, or the ID itself
// when no alias matches.
func AliasFor(cfg Config, modelID string) string {
	for alias, full := range cfg.Models.Aliases {
		if full == modelID {
			return alias
		}
	}
	return modelID
}
