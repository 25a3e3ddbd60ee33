package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/lvenc/lvenc-node/internal/crypto"
	"github.com/lvenc/lvenc-node/internal/types"
)

// Block is the canonical block envelope.
type Block struct {
	Index          uint64          `json:"index"`
	Timestamp      types.Timestamp `json:"timestamp"`
	Transactions   []*Transaction  `json:"transactions"`
	PreviousHash   string          `json:"previousHash"`
	Hash           string          `json:"hash"`
	Validator      string          `json:"validator"`
	SlotNumber     types.Slot      `json:"slotNumber"`
	BlockSignature []byte          `json:"blockSignature,omitempty"`
}

// header is the subset of a block's fields that feed its hash. Transactions
// are included by their already-final ids, not re-serialized, so a block's
// hash does not depend on transaction field ordering.
type header struct {
	Index        uint64          `json:"index"`
	Timestamp    types.Timestamp `json:"timestamp"`
	TxIDs        []string        `json:"txIds"`
	PreviousHash string          `json:"previousHash"`
	Validator    string          `json:"validator"`
	SlotNumber   types.Slot      `json:"slotNumber"`
}

// ComputeHash returns sha256 of the block's canonical header encoding.
func (b *Block) ComputeHash() (string, error) {
	ids := make([]string, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = tx.ID
	}
	h := header{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		TxIDs:        ids,
		PreviousHash: b.PreviousHash,
		Validator:    b.Validator,
		SlotNumber:   b.SlotNumber,
	}
	raw, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("block: encode header: %w", err)
	}
	return crypto.Sum256Hex(raw), nil
}

// Finalize recomputes and stores the block hash.
func (b *Block) Finalize() error {
	h, err := b.ComputeHash()
	if err != nil {
		return err
	}
	b.Hash = h
	return nil
}

// IsGenesis reports whether this is the chain's first block.
func (b *Block) IsGenesis() bool { return b.Index == 0 }
