// config.go - Configuration for the pool daemon.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the poold configuration. A JSON file provides the base; POOLD_*
// environment variables (optionally via a .env file) override it.
type Config struct {
	// Network
	ListenAddr string `json:"listen_addr"`

	// Ledger
	ChainID      uint64 `json:"chain_id"`
	SnapshotPath string `json:"snapshot_path"`

	// Logging
	LogLevel string `json:"log_level"`

	// Rate limiting, per client IP
	RateLimitTokens int `json:"rate_limit_tokens"`
	RateLimitRefill int `json:"rate_limit_refill_per_sec"`

	// HTTP timeouts
	ReadTimeoutSeconds  int `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int `json:"write_timeout_seconds"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:          ":8545",
		ChainID:             1,
		SnapshotPath:        "pool.json",
		LogLevel:            "info",
		RateLimitTokens:     100,
		RateLimitRefill:     50,
		ReadTimeoutSeconds:  10,
		WriteTimeoutSeconds: 10,
	}
}

// LoadConfig loads configuration from file, creating the default file when
// none exists, then applies environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	config := DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		defer file.Close()
		if err := json.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("decode config file: %w", err)
		}
	} else if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("save default config: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()
	applyEnv(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("POOLD_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("POOLD_CHAIN_ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.ChainID = id
		}
	}
	if v := os.Getenv("POOLD_SNAPSHOT_PATH"); v != "" {
		c.SnapshotPath = v
	}
	if v := os.Getenv("POOLD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// SaveConfig writes the configuration as indented JSON.
func SaveConfig(config *Config, configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer file.Close()
	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	if c.RateLimitTokens <= 0 {
		return fmt.Errorf("rate_limit_tokens must be positive")
	}
	if c.RateLimitRefill <= 0 {
		return fmt.Errorf("rate_limit_refill_per_sec must be positive")
	}
	if c.ReadTimeoutSeconds <= 0 || c.WriteTimeoutSeconds <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}
	return nil
}
