// Package vrf implements the slot clock and deterministic
// weighted leader selection.
package vrf

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/lvenc/lvenc-node/internal/types"
)

// Weight is an address's total selection weight (own stake + delegated
// stake). Deliberately independent of the staking package's own Weight type
// so vrf has no import on staking; callers convert at the call site
// (staking.Weight and vrf.Weight share the same field shape).
type Weight struct {
	Address string
	Weight  uint64
}

// DefaultSlotDurationMS is the slot length when unset.
const DefaultSlotDurationMS = 30_000

// Clock converts wall-clock time into slot numbers relative to a fixed
// genesis instant.
type Clock struct {
	GenesisTimeUnixMS int64
	SlotDurationMS    int64
}

// NewClock defaults SlotDurationMS to DefaultSlotDurationMS when zero.
func NewClock(genesisTimeUnixMS, slotDurationMS int64) Clock {
	if slotDurationMS == 0 {
		slotDurationMS = DefaultSlotDurationMS
	}
	return Clock{GenesisTimeUnixMS: genesisTimeUnixMS, SlotDurationMS: slotDurationMS}
}

// SlotAt returns floor((nowUnixMS - genesisTime) / slotDuration). Before
// genesis this is clamped to slot 0.
func (c Clock) SlotAt(nowUnixMS int64) types.Slot {
	delta := nowUnixMS - c.GenesisTimeUnixMS
	if delta < 0 {
		return 0
	}
	return types.Slot(delta / c.SlotDurationMS)
}

// TimeUntilSlot returns the number of milliseconds until the start of slot s.
func (c Clock) TimeUntilSlot(s types.Slot, nowUnixMS int64) int64 {
	start := c.GenesisTimeUnixMS + int64(s)*c.SlotDurationMS
	return start - nowUnixMS
}

// Seed computes sha256(previousHash || slotNumber).
func Seed(previousHash string, slot types.Slot) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(slot))
	h := sha256.New()
	h.Write([]byte(previousHash))
	h.Write(buf)
	return h.Sum(nil)
}

// Select picks the slot leader from a weighted, address-sorted validator
// set. weights must already be sorted lexicographically by address (as
// staking.Manager.ActiveValidatorWeights returns them). The draw takes the
// first 8 bytes of the seed hash as a big-endian uint64 r and computes
// r*total/2^64 with a 128-bit-wide product (math/big), so two independent
// implementations agree byte for byte.
func Select(previousHash string, slot types.Slot, weights []Weight) (string, bool) {
	if len(weights) == 0 {
		return "", false
	}

	var total uint64
	for _, w := range weights {
		total += w.Weight
	}
	if total == 0 {
		return "", false
	}

	digest := sha256.Sum256(Seed(previousHash, slot))
	rNum := new(big.Int).SetUint64(binary.BigEndian.Uint64(digest[:8]))
	totalBig := new(big.Int).SetUint64(total)
	mod := new(big.Int).Lsh(big.NewInt(1), 64)

	r := new(big.Int).Mul(rNum, totalBig)
	r.Div(r, mod)
	target := r.Uint64()

	var cumulative uint64
	for _, w := range weights {
		cumulative += w.Weight
		if target < cumulative {
			return w.Address, true
		}
	}
	return weights[len(weights)-1].Address, true
}
