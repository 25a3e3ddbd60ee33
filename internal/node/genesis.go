package node

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/lvenc/lvenc-node/internal/crypto"
	"github.com/lvenc/lvenc-node/internal/ledger"
	"github.com/lvenc/lvenc-node/internal/types"
)

// GenesisSpec is the on-disk genesis description (config/genesis.*.json).
// Every node of a network must load a byte-identical spec: the genesis
// block hash derived from it is checked during the P2P handshake.
type GenesisSpec struct {
	ChainID     string            `json:"chainId"`
	TimestampMS int64             `json:"timestampMs"`
	Alloc       map[string]string `json:"alloc"` // address -> decimal amount
}

// LoadGenesis reads a genesis spec from path.
func LoadGenesis(path string) (*GenesisSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("genesis: read %s: %w", path, err)
	}
	var spec GenesisSpec
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("genesis: decode %s: %w", path, err)
	}
	if spec.ChainID == "" || len(spec.Alloc) == 0 {
		return nil, fmt.Errorf("genesis: %s must set chainId and at least one alloc entry", path)
	}
	return &spec, nil
}

// DefaultGenesis builds the built-in single-faucet genesis used when no
// genesis file is configured: the whole initial supply at the network's
// conventional faucet address.
func DefaultGenesis(net crypto.Network, chainID string, timestampMS int64) *GenesisSpec {
	faucet := net.Prefix() + strings.Repeat("0", 38) + "01"
	return &GenesisSpec{
		ChainID:     chainID,
		TimestampMS: timestampMS,
		Alloc:       map[string]string{faucet: "1000000"},
	}
}

// Block materializes the genesis block: one system credit transaction per
// allocation, in address order so every node derives the same hash.
func (g *GenesisSpec) Block() (*ledger.Block, error) {
	addrs := make([]string, 0, len(g.Alloc))
	for addr := range g.Alloc {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	ts := types.Timestamp(g.TimestampMS)
	txs := make([]*ledger.Transaction, 0, len(addrs))
	for i, addr := range addrs {
		amount, err := types.ParseAmount(g.Alloc[addr])
		if err != nil {
			return nil, fmt.Errorf("genesis: alloc %s: %w", addr, err)
		}
		tx := &ledger.Transaction{
			TxType:    ledger.TxReward,
			To:        addr,
			Amount:    amount,
			Nonce:     types.Nonce(i + 1),
			ChainID:   g.ChainID,
			Timestamp: ts,
			Memo:      "genesis",
		}
		tx.Finalize()
		txs = append(txs, tx)
	}

	b := &ledger.Block{
		Index:        0,
		Timestamp:    ts,
		Transactions: txs,
		PreviousHash: strings.Repeat("0", 64),
	}
	if err := b.Finalize(); err != nil {
		return nil, err
	}
	return b, nil
}
