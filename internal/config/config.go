// Package config loads the indexer daemon's YAML configuration,
// adapted from the teacher's internal/node/config.go: the same
// load-or-create-default, ~-expansion, and header-commented-save
// shape, with the libp2p network/identity sections replaced by the
// indexer's node-RPC, storage, and feature-flag sections of spec.md §6.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// NetworkType selects Dogecoin mainnet or testnet.
type NetworkType string

const (
	NetworkMainnet NetworkType = "mainnet"
	NetworkTestnet NetworkType = "testnet"
)

// Config holds all configuration for the indexer daemon.
type Config struct {
	NetworkType NetworkType `yaml:"network_type"`

	Node     NodeConfig     `yaml:"node"`
	Storage  StorageConfig  `yaml:"storage"`
	Indexing IndexingConfig `yaml:"indexing"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// NodeConfig describes how to reach the upstream Dogecoin Core node:
// its JSON-RPC interface, and optionally its on-disk data directory
// for disk-first block reading.
type NodeConfig struct {
	// RPCURL is the node's JSON-RPC endpoint, e.g. "http://127.0.0.1:22555".
	RPCURL string `yaml:"rpc_url"`

	// RPCUser/RPCPass are explicit JSON-RPC credentials.
	RPCUser string `yaml:"rpc_user"`
	RPCPass string `yaml:"rpc_pass"`

	// DataDir is the node's own data directory, used to read
	// blocks/index/ and block*.dat directly. Empty disables disk-first
	// reading; the indexer then always falls back to RPC.
	DataDir string `yaml:"data_dir"`

	// RPCConcurrency bounds parallel getrawtransactioninfo lookups
	// issued by the prefetcher.
	RPCConcurrency int `yaml:"rpc_concurrency"`
}

// StorageConfig controls where the indexer keeps its own persisted
// index store and savepoints.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// IndexingConfig controls the commit/savepoint cadence and which
// meta-protocols this run indexes, per spec.md §6.
type IndexingConfig struct {
	CommitInterval         uint32 `yaml:"commit_interval"`
	SavepointInterval      uint32 `yaml:"savepoint_interval"`
	MaxSavepoints          int    `yaml:"max_savepoints"`
	FirstInscriptionHeight uint32 `yaml:"first_inscription_height"`
	HeightLimit            uint32 `yaml:"height_limit,omitempty"`

	IndexCoins        bool `yaml:"index_coins"`
	IndexAddresses    bool `yaml:"index_addresses"`
	IndexInscriptions bool `yaml:"index_inscriptions"`
	IndexDRC20        bool `yaml:"index_drc20"`
	IndexDNS          bool `yaml:"index_dns"`
}

// LoggingConfig holds logging settings, mirroring pkg/logging.Config.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// IsTestnet reports whether the configured network is testnet.
func (c *Config) IsTestnet() bool {
	return c.NetworkType == NetworkTestnet
}

// DefaultConfig returns a Config populated with spec.md §6's documented
// defaults.
func DefaultConfig() *Config {
	return &Config{
		NetworkType: NetworkMainnet,
		Node: NodeConfig{
			RPCURL:         "http://127.0.0.1:22555",
			RPCConcurrency: 12,
		},
		Storage: StorageConfig{
			DataDir: "~/.dogeindexer",
		},
		Indexing: IndexingConfig{
			CommitInterval:         5000,
			SavepointInterval:      10,
			MaxSavepoints:          2,
			FirstInscriptionHeight: 4_600_000,
			IndexCoins:             true,
			IndexAddresses:         true,
			IndexInscriptions:      true,
			IndexDRC20:             true,
			IndexDNS:               true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// ConfigFileName is the default config file name within a data directory.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from "<dataDir>/config.yaml", writing
// a default file there first if none exists yet.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	path := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("config: write default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML, creating its parent
// directory if necessary.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("config: create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal config: %w", err)
	}

	header := []byte("# Dogecoin indexer configuration.\n# This file is generated automatically on first run.\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write config file: %w", err)
	}
	return nil
}

// ConfigPath returns the full path to the config file within dataDir.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

// expandPath expands a leading "~" to the current user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
