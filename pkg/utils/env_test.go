package utils

import "testing"

func TestEnvOrDefault(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		set      bool
		fallback string
		want     string
	}{
		{name: "set", value: "testnet", set: true, fallback: "mainnet", want: "testnet"},
		{name: "unset", set: false, fallback: "mainnet", want: "mainnet"},
		{name: "empty treated as unset", value: "", set: true, fallback: "mainnet", want: "mainnet"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "LVENC_TEST_ENV_OR_DEFAULT"
			if tt.set {
				t.Setenv(key, tt.value)
			}
			if got := EnvOrDefault(key, tt.fallback); got != tt.want {
				t.Fatalf("EnvOrDefault(%q, %q) = %q, want %q", key, tt.fallback, got, tt.want)
			}
		})
	}
}
