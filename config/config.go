package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the per-terminal settings for a field terminal process.
type Config struct {
	DataDir                string `toml:"DataDir"`
	ProofQueuePath         string `toml:"ProofQueuePath"`
	KeystorePath           string `toml:"KeystorePath"`
	TerminalID             string `toml:"TerminalID"`
	TerminalRole           string `toml:"TerminalRole"`
	MarketID               string `toml:"MarketID"`
	FreshnessWindowSeconds int    `toml:"FreshnessWindowSeconds"`
	NonceLedgerCapacity    int    `toml:"NonceLedgerCapacity"`
	// GateThresholdAmount is the collection amount at or above which the
	// local identity gate is consulted. Zero gates every collection.
	GateThresholdAmount int64 `toml:"GateThresholdAmount"`
}

const (
	defaultDataDir         = "./fieldtrust-data"
	defaultFreshnessWindow = 600
)

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.ProofQueuePath) == "" {
		c.ProofQueuePath = filepath.Join(c.DataDir, "proofs.db")
	}
	if strings.TrimSpace(c.KeystorePath) == "" {
		c.KeystorePath = filepath.Join(c.DataDir, "keystore", "terminal.json")
	}
	if c.FreshnessWindowSeconds <= 0 {
		c.FreshnessWindowSeconds = defaultFreshnessWindow
	}
}

// Validate rejects configurations the terminal cannot safely start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.TerminalID) == "" {
		return fmt.Errorf("config: TerminalID is required")
	}
	switch strings.TrimSpace(c.TerminalRole) {
	case "agent", "stall":
	default:
		return fmt.Errorf("config: TerminalRole must be %q or %q, got %q", "agent", "stall", c.TerminalRole)
	}
	return nil
}

// FreshnessWindow returns the configured payment-request freshness window.
func (c *Config) FreshnessWindow() time.Duration {
	return time.Duration(c.FreshnessWindowSeconds) * time.Second
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		TerminalID:             "TERMINAL-0",
		TerminalRole:           "agent",
		MarketID:               "MARKET-0",
		FreshnessWindowSeconds: defaultFreshnessWindow,
	}
	cfg.applyDefaults()

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
