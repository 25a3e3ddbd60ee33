// Package config provides a reusable loader for lvenc-node configuration
// files and environment variables: YAML defaults merged with a
// network-specific overlay and then environment variables, unmarshalled
// via viper.
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"

	"github.com/lvenc/lvenc-node/pkg/utils"
)

// Config is the unified configuration for a running node. Field names match
// the YAML keys under config/*.yaml.
type Config struct {
	Network struct {
		ChainID        string   `mapstructure:"chain_id" json:"chain_id"`
		Name           string   `mapstructure:"name" json:"name"` // "mainnet" | "testnet"
		GenesisFile    string   `mapstructure:"genesis_file" json:"genesis_file"`
		P2PPort        int      `mapstructure:"p2p_port" json:"p2p_port"`
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		MinPeers       int      `mapstructure:"min_peers" json:"min_peers"`
	} `mapstructure:"network" json:"network"`

	Consensus struct {
		SlotDurationMS  int   `mapstructure:"slot_duration_ms" json:"slot_duration_ms"`
		EpochDuration   int   `mapstructure:"epoch_duration" json:"epoch_duration"`
		MinStake        int64 `mapstructure:"min_stake" json:"min_stake"`
		MinDelegation   int64 `mapstructure:"min_delegation" json:"min_delegation"`
		GenesisTimeUnix int64 `mapstructure:"genesis_time_unix" json:"genesis_time_unix"`
	} `mapstructure:"consensus" json:"consensus"`

	Storage struct {
		DataDir          string `mapstructure:"data_dir" json:"data_dir"`
		SnapshotInterval int    `mapstructure:"snapshot_interval_sec" json:"snapshot_interval_sec"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load.
var AppConfig Config

// Load reads config/default.yaml, merges an optional config/<env>.yaml
// overlay, and applies environment variable overrides. The resulting
// configuration is stored in AppConfig and returned.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("merge %s config: %w", env, err)
			}
		}
	}

	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the LVENC_ENV environment variable,
// defaulting to the mainnet profile.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("LVENC_ENV", "mainnet"))
}
