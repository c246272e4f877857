package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"zkusd/crypto"
)

// Config captures the zkusdd daemon settings.
type Config struct {
	ListenAddress   string   `toml:"ListenAddress"`
	MetricsAddress  string   `toml:"MetricsAddress"`
	DataDir         string   `toml:"DataDir"`
	LogFile         string   `toml:"LogFile"`
	Env             string   `toml:"Env"`
	OracleAddress   string   `toml:"OracleAddress"`
	RPCTokens       []string `toml:"RPCTokens"`
	RateLimitPerMin int      `toml:"RateLimitPerMin"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	for _, undecoded := range meta.Undecoded() {
		fmt.Fprintf(os.Stderr, "warning: unknown config key %q in %s\n", undecoded.String(), path)
	}

	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = "127.0.0.1:9464"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./zkusd-data"
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "local"
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 120
	}
	if cfg.RPCTokens == nil {
		cfg.RPCTokens = []string{}
	}
}

func validate(cfg *Config) error {
	oracle := strings.TrimSpace(cfg.OracleAddress)
	if oracle == "" {
		return fmt.Errorf("config: OracleAddress is required")
	}
	if _, err := crypto.DecodeAddress(oracle); err != nil {
		return fmt.Errorf("config: invalid OracleAddress: %w", err)
	}
	return nil
}

// Oracle returns the decoded oracle signer address. Load has already
// validated it.
func (c *Config) Oracle() crypto.Address {
	addr, err := crypto.DecodeAddress(c.OracleAddress)
	if err != nil {
		panic(err)
	}
	return addr
}

func createDefault(path string) (*Config, error) {
	// A default config still needs an oracle signer; generate a throwaway key
	// so a local node boots, and print it so the operator can run the
	// attester against it.
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	cfg := &Config{OracleAddress: key.PubKey().Address().String()}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	fmt.Fprintf(os.Stderr, "wrote default config to %s (local oracle key: %x)\n", path, key.Bytes())
	return cfg, nil
}
