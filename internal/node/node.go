// Package node assembles the core subsystems — ledger, staking, slashing,
// VRF clock, block producer, AMM pool and P2P network — into one running
// Node value. Nothing in lvenc-node is a package-level singleton: the
// Node owns the single instance of each manager and hands references to
// the components that need them.
package node

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/lvenc/lvenc-node/internal/amm"
	"github.com/lvenc/lvenc-node/internal/crypto"
	"github.com/lvenc/lvenc-node/internal/ledger"
	"github.com/lvenc/lvenc-node/internal/p2p"
	"github.com/lvenc/lvenc-node/internal/producer"
	"github.com/lvenc/lvenc-node/internal/slashing"
	"github.com/lvenc/lvenc-node/internal/staking"
	"github.com/lvenc/lvenc-node/internal/types"
	"github.com/lvenc/lvenc-node/internal/vrf"
)

// Config bundles everything needed to assemble a Node. Zero SlotDurationMS,
// EpochDuration and SnapshotInterval fall back to defaults; MinStake and
// MinDelegation are used as given.
type Config struct {
	ChainID     string
	Network     crypto.Network
	DataDir     string
	GenesisFile string
	NodeVersion string

	ListenAddr     string
	BootstrapPeers []string
	MaxPeers       int
	MinPeers       int

	GenesisTimeMS  int64
	SlotDurationMS int64
	EpochDuration  uint64
	MinStake       types.Amount
	MinDelegation  types.Amount

	SnapshotInterval time.Duration

	// Identity is the node's signing keypair. A nil Identity runs the node
	// read-only: it syncs, validates and relays but never produces.
	Identity *crypto.NodeIdentity

	Logger *log.Logger
}

// Node is the fully wired lvenc-node core.
type Node struct {
	cfg      Config
	logger   *log.Logger
	identity *crypto.NodeIdentity

	Ledger   *ledger.Ledger
	Staking  *staking.Manager
	Slashing *slashing.Manager
	Pool     *amm.Pool
	Producer *producer.Producer
	P2P      *p2p.Node
	Clock    vrf.Clock

	stakingPath string
	poolPath    string

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New wires every component and loads persisted chain state from DataDir.
// The staking, slashing and pool state machines are rebuilt by replaying
// the persisted chain through the block-apply hook, so they are always
// consistent with the chain itself; their periodic JSON snapshots are
// durability/inspection artifacts, not the load source.
func New(cfg Config) (*Node, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if cfg.SlotDurationMS == 0 {
		cfg.SlotDurationMS = vrf.DefaultSlotDurationMS
	}
	if cfg.EpochDuration == 0 {
		cfg.EpochDuration = 100
	}
	if cfg.SnapshotInterval == 0 {
		cfg.SnapshotInterval = time.Minute
	}

	st := staking.New(staking.Config{
		MinStake:      cfg.MinStake,
		MinDelegation: cfg.MinDelegation,
		EpochDuration: cfg.EpochDuration,
		Logger:        cfg.Logger,
	})
	pool := amm.New(cfg.Logger)
	sl := slashing.New(slashing.Config{Logger: cfg.Logger, Slasher: st})
	core := &coreState{staking: st, slashing: sl, pool: pool, logger: cfg.Logger}

	var spec *GenesisSpec
	if cfg.GenesisFile != "" {
		loaded, err := LoadGenesis(cfg.GenesisFile)
		if err != nil {
			return nil, err
		}
		spec = loaded
	} else {
		spec = DefaultGenesis(cfg.Network, cfg.ChainID, cfg.GenesisTimeMS)
	}
	genesis, err := spec.Block()
	if err != nil {
		return nil, err
	}

	var rewardAddr string
	if cfg.Identity != nil {
		rewardAddr = cfg.Identity.RewardAddress()
	}
	led, err := ledger.New(ledger.Config{
		ChainID:        cfg.ChainID,
		Network:        cfg.Network,
		DataDir:        cfg.DataDir,
		GenesisBlock:   genesis,
		Leader:         core,
		Hook:           core,
		RewardSchedule: ledger.DefaultRewardSchedule(),
		RewardAddress:  rewardAddr,
		Logger:         cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	clock := vrf.NewClock(cfg.GenesisTimeMS, cfg.SlotDurationMS)

	n := &Node{
		cfg:      cfg,
		logger:   cfg.Logger,
		identity: cfg.Identity,
		Ledger:   led,
		Staking:  st,
		Slashing: sl,
		Pool:     pool,
		Clock:    clock,
		stopCh:   make(chan struct{}),
	}
	if cfg.DataDir != "" {
		n.stakingPath = filepath.Join(cfg.DataDir, "staking.json")
		n.poolPath = filepath.Join(cfg.DataDir, "pool.json")
	}

	n.P2P = p2p.New(p2p.Config{
		ListenAddr:     cfg.ListenAddr,
		ChainID:        cfg.ChainID,
		NodeVersion:    cfg.NodeVersion,
		BootstrapPeers: cfg.BootstrapPeers,
		MaxPeers:       cfg.MaxPeers,
		MinPeers:       cfg.MinPeers,
		Logger:         cfg.Logger,
	}, led)

	if cfg.Identity != nil {
		n.Producer = producer.New(producer.Config{
			ChainID:  cfg.ChainID,
			Ledger:   led,
			Staking:  st,
			Slashing: sl,
			Clock:    clock,
			Identity: cfg.Identity,
			Network:  cfg.Network,
			Logger:   cfg.Logger,
		})
	}
	return n, nil
}

// Start binds the P2P listener, starts the producer (when an identity is
// configured) and the periodic persistence loop.
func (n *Node) Start() error {
	if err := n.P2P.Start(); err != nil {
		return err
	}
	if n.Producer != nil {
		n.Producer.Start()
	}
	n.wg.Add(1)
	go n.persistLoop()

	fields := log.Fields{"chainId": n.cfg.ChainID, "network": n.cfg.Network.String(), "height": n.Ledger.Height()}
	if n.identity != nil {
		fields["validator"] = n.identity.Address(n.cfg.Network)
	}
	n.logger.WithFields(fields).Info("node: started")
	return nil
}

// Shutdown stops the node in a fixed order: producer first, then peer
// sockets, then a final state flush.
func (n *Node) Shutdown() error {
	var err error
	n.stopOnce.Do(func() {
		if n.Producer != nil {
			n.Producer.Stop()
		}
		close(n.stopCh)
		n.wg.Wait()
		if stopErr := n.P2P.Stop(); stopErr != nil {
			err = stopErr
		}
		n.flushState()
		if closeErr := n.Ledger.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		n.logger.Info("node: stopped")
	})
	return err
}

func (n *Node) persistLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.SnapshotInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := n.Ledger.Snapshot(); err != nil {
				n.logger.WithError(err).Warn("node: periodic chain snapshot failed")
			}
			n.flushState()
		case <-n.stopCh:
			return
		}
	}
}

// flushState writes the staking and pool snapshots.
func (n *Node) flushState() {
	if n.stakingPath != "" {
		if err := writeJSON(n.stakingPath, n.Staking.Snapshot()); err != nil {
			n.logger.WithError(err).Warn("node: persist staking state failed")
		}
	}
	if n.poolPath != "" {
		if err := writeJSON(n.poolPath, n.Pool.Snapshot()); err != nil {
			n.logger.WithError(err).Warn("node: persist pool state failed")
		}
	}
}

func writeJSON(path string, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}
