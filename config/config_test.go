package config

import (
	"os"
	"path/filepath"
	"testing"

	"zkusd/crypto"
)

func TestLoadAppliesDefaults(t *testing.T) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := "OracleAddress = \"" + key.PubKey().Address().String() + "\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress == "" || cfg.DataDir == "" || cfg.RateLimitPerMin <= 0 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if !cfg.Oracle().Equal(key.PubKey().Address()) {
		t.Fatal("oracle address mismatch")
	}
}

func TestLoadRejectsMissingOracle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("ListenAddress = \"127.0.0.1:1\"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected missing oracle error")
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file written: %v", err)
	}
	if cfg.OracleAddress == "" {
		t.Fatal("expected generated oracle address")
	}
}
