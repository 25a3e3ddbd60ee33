package config

import (
	"os"
	"path/filepath"
	"testing"

	yaml "gopkg.in/yaml.v3"
)

func writeYAML(t *testing.T, path string, doc map[string]any) {
	t.Helper()
	raw, err := yaml.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal %s: %v", path, err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadMergesNetworkOverlay(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "config")
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	writeYAML(t, filepath.Join(cfgDir, "default.yaml"), map[string]any{
		"network": map[string]any{
			"chain_id": "lvenc-mainnet-1",
			"p2p_port": 6001,
		},
		"consensus": map[string]any{
			"slot_duration_ms": 30000,
			"min_stake":        1000,
		},
	})
	writeYAML(t, filepath.Join(cfgDir, "testnet.yaml"), map[string]any{
		"network": map[string]any{
			"chain_id": "lvenc-testnet-1",
		},
		"consensus": map[string]any{
			"min_stake": 100,
		},
	})

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(cwd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	cfg, err := Load("testnet")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Network.ChainID != "lvenc-testnet-1" {
		t.Fatalf("chain_id = %q, want overlay value", cfg.Network.ChainID)
	}
	if cfg.Network.P2PPort != 6001 {
		t.Fatalf("p2p_port = %d, want default value 6001", cfg.Network.P2PPort)
	}
	if cfg.Consensus.SlotDurationMS != 30000 {
		t.Fatalf("slot_duration_ms = %d, want 30000", cfg.Consensus.SlotDurationMS)
	}
	if cfg.Consensus.MinStake != 100 {
		t.Fatalf("min_stake = %d, want overlay value 100", cfg.Consensus.MinStake)
	}
}
