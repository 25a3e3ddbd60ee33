package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lvenc/lvenc-node/internal/config"
	"github.com/lvenc/lvenc-node/internal/crypto"
	"github.com/lvenc/lvenc-node/internal/node"
	"github.com/lvenc/lvenc-node/internal/types"
)

// nodeVersion is the human-readable build tag exchanged in the P2P
// handshake.
const nodeVersion = "lvenc-node/1.0.0"

func newStartCmd() *cobra.Command {
	f := &commonFlags{}
	var (
		apiPort   int
		p2pPort   int
		seeds     []string
		bootstrap bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the node: sync, validate, and produce blocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			netID, err := f.netID()
			if err != nil {
				return err
			}
			cfg, err := config.Load(f.network)
			if err != nil {
				return err
			}

			logger := log.New()
			if lvl, err := log.ParseLevel(cfg.Logging.Level); err == nil {
				logger.SetLevel(lvl)
			}
			if cfg.Logging.File != "" {
				out, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer out.Close()
				logger.SetOutput(out)
			}

			listenAddr := cfg.Network.ListenAddr
			if p2pPort != 0 {
				listenAddr = fmt.Sprintf("0.0.0.0:%d", p2pPort)
			}
			peers := cfg.Network.BootstrapPeers
			if len(seeds) > 0 {
				peers = seeds
			}
			if bootstrap {
				// A bootstrap node seeds the network itself and dials nobody.
				peers = nil
			}

			identity, err := crypto.LoadOrCreate(f.networkDir(), logger)
			if err != nil {
				return fmt.Errorf("node identity: %w", err)
			}

			n, err := node.New(node.Config{
				ChainID:        cfg.Network.ChainID,
				Network:        netID,
				DataDir:        f.networkDir(),
				GenesisFile:    cfg.Network.GenesisFile,
				NodeVersion:    nodeVersion,
				ListenAddr:     listenAddr,
				BootstrapPeers: peers,
				MaxPeers:       cfg.Network.MaxPeers,
				MinPeers:       cfg.Network.MinPeers,
				GenesisTimeMS:  cfg.Consensus.GenesisTimeUnix * 1000,
				SlotDurationMS: int64(cfg.Consensus.SlotDurationMS),
				EpochDuration:  uint64(cfg.Consensus.EpochDuration),
				MinStake:       types.NewAmount(uint64(cfg.Consensus.MinStake)),
				MinDelegation:  types.NewAmount(uint64(cfg.Consensus.MinDelegation)),
				Identity:       identity,
				Logger:         logger,
			})
			if err != nil {
				return err
			}
			if err := n.Start(); err != nil {
				return err
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			<-sigCh
			logger.Info("shutting down")
			return n.Shutdown()
		},
	}

	f.register(cmd)
	cmd.Flags().IntVar(&apiPort, "port", 0, "HTTP API port (bound by the separate API front-end, recorded here for its supervisor)")
	cmd.Flags().IntVar(&p2pPort, "p2p", 0, "P2P listen port (overrides config)")
	cmd.Flags().StringArrayVar(&seeds, "seed", nil, "seed peer URL (repeatable, overrides config bootstrap peers)")
	cmd.Flags().BoolVar(&bootstrap, "bootstrap", false, "run as a bootstrap node: listen only, dial no seeds")
	return cmd
}
