package slashing

import (
	"errors"
	"testing"

	"github.com/lvenc/lvenc-node/internal/nodeerr"
	"github.com/lvenc/lvenc-node/internal/types"
)

type fakeSlasher struct {
	slashed map[string]float64
}

func (f *fakeSlasher) ApplySlash(addr string, fraction float64) (types.Amount, error) {
	if f.slashed == nil {
		f.slashed = make(map[string]float64)
	}
	f.slashed[addr] = fraction
	return types.NewAmount(10), nil
}

func TestRecordBlockSignedAcceptsFirstSignature(t *testing.T) {
	m := New(Config{Slasher: &fakeSlasher{}})
	if err := m.RecordBlockSigned(1, "V", []byte("sig1")); err != nil {
		t.Fatalf("first signature should be accepted: %v", err)
	}
}

func TestRecordBlockSignedDetectsDoubleSign(t *testing.T) {
	fs := &fakeSlasher{}
	m := New(Config{Slasher: fs, DoubleSignSlashPct: 50})
	if err := m.RecordBlockSigned(1, "V", []byte("sig1")); err != nil {
		t.Fatalf("first: %v", err)
	}
	err := m.RecordBlockSigned(1, "V", []byte("sig2"))
	if err == nil || !errors.Is(err, nodeerr.ErrDoubleSign) {
		t.Fatalf("expected ErrDoubleSign, got %v", err)
	}
	if fs.slashed["V"] != 0.5 {
		t.Fatalf("expected 50%% slash fraction, got %v", fs.slashed["V"])
	}
}

func TestAdvanceToSlotMarksMissedSlots(t *testing.T) {
	m := New(Config{SignedBlocksWindow: 10, Slasher: &fakeSlasher{}})
	m.RecordExpectedValidator(0, "V")
	m.RecordExpectedValidator(1, "V")
	if err := m.RecordBlockSigned(0, "V", []byte("sig0")); err != nil {
		t.Fatalf("record: %v", err)
	}
	// slot 1 never signed: should be marked missed once we advance past it.
	m.AdvanceToSlot(2)

	info := m.info["V"]
	if info == nil {
		t.Fatal("expected signing info for V")
	}
	if info.missedCounter != 1 {
		t.Fatalf("expected 1 missed slot recorded, got %d", info.missedCounter)
	}
}

func TestDowntimeSlashAfterWindowFull(t *testing.T) {
	fs := &fakeSlasher{}
	window := 10
	m := New(Config{SignedBlocksWindow: window, MinSignedPerWindow: 0.8, DowntimeSlashPct: 1, Slasher: fs})

	for s := types.Slot(0); s < types.Slot(window+1); s++ {
		m.RecordExpectedValidator(s, "V")
	}
	// Never sign anything; advancing past the full window should trigger a
	// downtime slash once missedCounter exceeds window*(1-0.8).
	m.AdvanceToSlot(types.Slot(window + 1))

	if _, slashed := fs.slashed["V"]; !slashed {
		t.Fatal("expected downtime slash after a fully missed window")
	}
}
