// Package cli implements the lvencd command surface: start, identity,
// reward and pool administration.
package cli

import (
	"fmt"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lvenc/lvenc-node/internal/crypto"
	"github.com/lvenc/lvenc-node/pkg/utils"
)

// RegisterRoutes attaches every subcommand to the root command.
func RegisterRoutes(root *cobra.Command) {
	_ = godotenv.Load()
	root.AddCommand(newStartCmd(), newIdentityCmd(), newRewardCmd(), newPoolCmd())
}

// commonFlags are the network/data-dir selectors shared by every
// subcommand.
type commonFlags struct {
	network string
	dataDir string
}

func (f *commonFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.network, "network", utils.EnvOrDefault("LVENC_ENV", "mainnet"), "network profile (mainnet|testnet)")
	cmd.PersistentFlags().StringVar(&f.dataDir, "data-dir", utils.EnvOrDefault("LVENC_DATA_DIR", "./data"), "base data directory")
}

func (f *commonFlags) netID() (crypto.Network, error) {
	switch f.network {
	case "mainnet":
		return crypto.Mainnet, nil
	case "testnet":
		return crypto.Testnet, nil
	default:
		return 0, fmt.Errorf("unknown network %q (want mainnet or testnet)", f.network)
	}
}

// networkDir is the per-network slice of the data directory, holding the
// identity file and persisted state.
func (f *commonFlags) networkDir() string {
	return filepath.Join(f.dataDir, f.network)
}
