package p2p

import (
	"encoding/json"
	"testing"

	"github.com/lvenc/lvenc-node/internal/crypto"
	"github.com/lvenc/lvenc-node/internal/ledger"
)

func newTestNode(t *testing.T, cfg Config) *Node {
	t.Helper()
	genesis := &ledger.Block{Index: 0, Validator: "genesis"}
	if err := genesis.Finalize(); err != nil {
		t.Fatalf("finalize genesis: %v", err)
	}
	led, err := ledger.New(ledger.Config{
		ChainID:        "test-chain",
		Network:        crypto.Testnet,
		GenesisBlock:   genesis,
		RewardSchedule: ledger.DefaultRewardSchedule(),
	})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	cfg.ChainID = "test-chain"
	return New(cfg, led)
}

func TestSubnet24GroupsByPrefix(t *testing.T) {
	if subnet24("10.0.0.5") != subnet24("10.0.0.200") {
		t.Fatal("expected same /24 subnet")
	}
	if subnet24("10.0.0.5") == subnet24("10.0.1.5") {
		t.Fatal("expected different /24 subnet")
	}
}

func TestAdmitRejectsWhenMaxPeersPerIPExceeded(t *testing.T) {
	n := newTestNode(t, Config{MaxPeersPerIP: 1, MaxPeersPerSubnet: 10, MaxPeers: 10})
	n.peers["existing"] = &Peer{ID: "existing", IP: "10.0.0.5", Verified: true}

	if _, ok := n.admitLocked("10.0.0.5"); ok {
		t.Fatal("expected admission to be rejected at MaxPeersPerIP")
	}
	if _, ok := n.admitLocked("10.0.0.6"); !ok {
		t.Fatal("expected a different IP to be admitted")
	}
}

func TestAdmitRejectsWhenBanned(t *testing.T) {
	n := newTestNode(t, Config{MaxPeersPerIP: 10, MaxPeersPerSubnet: 10, MaxPeers: 10})
	n.banIP("10.0.0.9")
	if _, ok := n.admitLocked("10.0.0.9"); ok {
		t.Fatal("expected banned IP to be rejected")
	}
}

func TestAdmitRejectsAtMaxPeers(t *testing.T) {
	n := newTestNode(t, Config{MaxPeersPerIP: 10, MaxPeersPerSubnet: 10, MaxPeers: 1})
	n.peers["existing"] = &Peer{ID: "existing", IP: "10.0.0.5", Verified: true}
	if _, ok := n.admitLocked("10.0.0.77"); ok {
		t.Fatal("expected admission to be rejected at MaxPeers")
	}
}

func TestHandleQueryBlocksFromChunksAndReportsHasMore(t *testing.T) {
	n := newTestNode(t, Config{})
	for i := 0; i < 5; i++ {
		signFn := func(hash string) []byte { return []byte("sig") }
		if _, err := n.led.CreatePoSBlock("validator", 0, signFn, nil); err != nil {
			t.Fatalf("createPoSBlock: %v", err)
		}
	}

	peer := &Peer{ID: "p1", send: make(chan []byte, 8)}
	q, _ := json.Marshal(QueryBlocksFromPayload{FromHeight: 0, Limit: 3})
	n.handleQueryBlocksFrom(peer, q)

	select {
	case raw := <-peer.send:
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope: %v", err)
		}
		if env.Type != MsgResponseBlocks {
			t.Fatalf("type = %s, want %s", env.Type, MsgResponseBlocks)
		}
		var resp ResponseBlocksPayload
		if err := json.Unmarshal(env.Data, &resp); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if len(resp.Blocks) != 3 {
			t.Fatalf("blocks = %d, want 3", len(resp.Blocks))
		}
		if !resp.HasMore {
			t.Fatal("expected HasMore=true, chain has 6 blocks (incl. genesis) and limit was 3")
		}
	default:
		t.Fatal("expected a RESPONSE_BLOCKS message to be queued")
	}
}

func TestEncodeEnvelopeRoundTrip(t *testing.T) {
	raw, err := encodeEnvelope(MsgQueryLatest, struct{}{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != MsgQueryLatest {
		t.Fatalf("type = %s, want %s", env.Type, MsgQueryLatest)
	}
}
