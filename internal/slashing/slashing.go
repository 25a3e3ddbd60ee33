// Package slashing tracks per-validator signing info, double-sign
// detection, and sliding-window downtime slashing.
package slashing

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/lvenc/lvenc-node/internal/nodeerr"
	"github.com/lvenc/lvenc-node/internal/types"
)

// Default window/threshold parameters.
const (
	DefaultSignedBlocksWindow  = 10_000
	DefaultMinSignedPerWindow  = 0.5
	DefaultDoubleSignSlashPct  = 50
	DefaultDowntimeSlashPct    = 1
	pruneMultiplier            = 2
)

// Slasher is the seam the producer and the ledger use to apply stake
// penalties without slashing importing staking directly.
type Slasher interface {
	ApplySlash(addr string, fraction float64) (types.Amount, error)
}

// Evidence records a single slashable event for external inspection/audit.
type Evidence struct {
	Validator string
	Slot      types.Slot
	Reason    string // "double-sign" or "downtime"
	Slashed   types.Amount
}

// signingInfo is the liveness bit-array for one validator.
type signingInfo struct {
	window        []bool // true == missed
	indexOffset   uint64
	missedCounter uint64
}

// Manager tracks expected producers, observed signatures, and liveness
// windows across all validators behind one mutex.
type Manager struct {
	mu sync.Mutex

	window            int
	minSignedPerWindow float64
	doubleSignPct     float64
	downtimePct       float64

	logger *log.Logger
	slasher Slasher

	expected map[types.Slot]string            // slot -> expected validator
	signed   map[types.Slot]map[string][]byte // slot -> validator -> blockSignature
	info     map[string]*signingInfo
	evidence []Evidence

	oldestTrackedSlot types.Slot
}

// Config bundles Manager tunables.
type Config struct {
	SignedBlocksWindow  int
	MinSignedPerWindow  float64
	DoubleSignSlashPct  float64
	DowntimeSlashPct    float64
	Logger              *log.Logger
	Slasher             Slasher
}

// New constructs a Manager, defaulting any zero-valued tunable.
func New(cfg Config) *Manager {
	if cfg.SignedBlocksWindow == 0 {
		cfg.SignedBlocksWindow = DefaultSignedBlocksWindow
	}
	if cfg.MinSignedPerWindow == 0 {
		cfg.MinSignedPerWindow = DefaultMinSignedPerWindow
	}
	if cfg.DoubleSignSlashPct == 0 {
		cfg.DoubleSignSlashPct = DefaultDoubleSignSlashPct
	}
	if cfg.DowntimeSlashPct == 0 {
		cfg.DowntimeSlashPct = DefaultDowntimeSlashPct
	}
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	return &Manager{
		window:             cfg.SignedBlocksWindow,
		minSignedPerWindow: cfg.MinSignedPerWindow,
		doubleSignPct:      cfg.DoubleSignSlashPct,
		downtimePct:        cfg.DowntimeSlashPct,
		logger:             cfg.Logger,
		slasher:            cfg.Slasher,
		expected:           make(map[types.Slot]string),
		signed:             make(map[types.Slot]map[string][]byte),
		info:               make(map[string]*signingInfo),
	}
}

// BlockDigest computes the liveness signature recorded per (slot,
// validator): sha256(blockHash ‖ validator ‖ slot). Two divergent blocks
// from the same validator for the same slot produce different digests,
// which is what RecordBlockSigned's double-sign check keys on.
func BlockDigest(blockHash, validator string, slot types.Slot) []byte {
	h := sha256.New()
	h.Write([]byte(blockHash))
	h.Write([]byte(validator))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(slot))
	h.Write(buf[:])
	return h.Sum(nil)
}

// Reset clears all tracking state ahead of a full chain replay.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expected = make(map[types.Slot]string)
	m.signed = make(map[types.Slot]map[string][]byte)
	m.info = make(map[string]*signingInfo)
	m.evidence = nil
	m.oldestTrackedSlot = 0
}

// RecordExpectedValidator registers the leader chosen for slot s.
func (m *Manager) RecordExpectedValidator(s types.Slot, validator string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expected[s] = validator
}

// RecordBlockSigned registers an observed, validated block signature for
// (slot, validator). If a different signature was already recorded for the
// same pair, this is a double sign: the validator is slashed and the
// second block must be rejected by the caller.
func (m *Manager) RecordBlockSigned(s types.Slot, validator string, sig []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bySlot, ok := m.signed[s]
	if !ok {
		bySlot = make(map[string][]byte)
		m.signed[s] = bySlot
	}
	if prior, ok := bySlot[validator]; ok {
		if !bytesEqual(prior, sig) {
			slashed, err := m.slashLocked(validator, m.doubleSignPct, "double-sign", s)
			if err != nil {
				return fmt.Errorf("recordBlockSigned %s slot %d: %w", validator, s, err)
			}
			m.evidence = append(m.evidence, Evidence{Validator: validator, Slot: s, Reason: "double-sign", Slashed: slashed})
			return fmt.Errorf("validator %s slot %d: %w", validator, s, nodeerr.ErrDoubleSign)
		}
		return nil
	}
	bySlot[validator] = sig
	m.markSignedLocked(validator, false)
	return nil
}

// AdvanceToSlot marks every slot strictly less than currentSlot that was
// never recorded as produced as missed for its expected validator, then
// prunes tracking data older than SignedBlocksWindow*2.
func (m *Manager) AdvanceToSlot(currentSlot types.Slot) []Evidence {
	m.mu.Lock()
	defer m.mu.Unlock()

	var newEvidence []Evidence
	for s := m.oldestTrackedSlot; s < currentSlot; s++ {
		validator, expected := m.expected[s]
		if !expected {
			continue
		}
		if _, ok := m.signed[s][validator]; ok {
			continue
		}
		if ev, ok := m.markMissedLocked(validator, s); ok {
			newEvidence = append(newEvidence, ev)
		}
	}

	pruneBefore := types.Slot(0)
	if int(currentSlot) > m.window*pruneMultiplier {
		pruneBefore = currentSlot - types.Slot(m.window*pruneMultiplier)
	}
	for s := range m.expected {
		if s < pruneBefore {
			delete(m.expected, s)
			delete(m.signed, s)
		}
	}
	m.oldestTrackedSlot = currentSlot
	return newEvidence
}

func (m *Manager) markSignedLocked(validator string, missed bool) {
	info := m.infoLocked(validator)
	idx := info.indexOffset % uint64(m.window)
	wasMissed := info.window[idx]
	info.window[idx] = missed
	if wasMissed && !missed {
		info.missedCounter--
	} else if !wasMissed && missed {
		info.missedCounter++
	}
	info.indexOffset++
}

func (m *Manager) markMissedLocked(validator string, slot types.Slot) (Evidence, bool) {
	info := m.infoLocked(validator)
	m.markSignedLocked(validator, true)

	if info.indexOffset < uint64(m.window) {
		return Evidence{}, false
	}
	threshold := uint64(float64(m.window) * (1 - m.minSignedPerWindow))
	if info.missedCounter <= threshold {
		return Evidence{}, false
	}

	slashed, err := m.slashLocked(validator, m.downtimePct, "downtime", slot)
	if err != nil {
		m.logger.WithFields(log.Fields{"validator": validator, "error": err}).Warn("slashing: downtime slash failed")
		return Evidence{}, false
	}
	// The window restarts from scratch after a downtime slash.
	info.window = make([]bool, m.window)
	info.missedCounter = 0
	info.indexOffset = 0
	ev := Evidence{Validator: validator, Slot: slot, Reason: "downtime", Slashed: slashed}
	m.evidence = append(m.evidence, ev)
	return ev, true
}

func (m *Manager) infoLocked(validator string) *signingInfo {
	info, ok := m.info[validator]
	if !ok {
		info = &signingInfo{window: make([]bool, m.window)}
		m.info[validator] = info
	}
	return info
}

func (m *Manager) slashLocked(validator string, pct float64, reason string, slot types.Slot) (types.Amount, error) {
	if m.slasher == nil {
		return 0, nil
	}
	slashed, err := m.slasher.ApplySlash(validator, pct/100)
	if err != nil {
		return 0, err
	}
	m.logger.WithFields(log.Fields{"validator": validator, "slot": slot, "reason": reason, "slashed": slashed.String()}).
		Warn("slashing: validator slashed")
	return slashed, nil
}

// Evidence returns a copy of every slashing event recorded so far.
func (m *Manager) Evidence() []Evidence {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Evidence, len(m.evidence))
	copy(out, m.evidence)
	return out
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
