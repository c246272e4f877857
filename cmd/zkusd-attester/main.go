// Command zkusd-attester signs oracle price attestations for the vault
// engine. It loads the attester key from an encrypted keystore file or a raw
// hex key, signs the given price and block height, and prints the attestation
// as JSON ready to pass to the vault_mint, vault_redeem and vault_liquidate
// RPC methods.
package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"zkusd/cmd/internal/passphrase"
	"zkusd/crypto"
	"zkusd/native/vault"
)

const passphraseEnv = "ZKUSD_KEYSTORE_PASS"

type attestationOutput struct {
	Price       uint64 `json:"price"`
	BlockHeight uint64 `json:"blockHeight"`
	Signature   string `json:"signature"`
	Signer      string `json:"signer"`
}

func main() {
	keystorePath := flag.String("keystore", "", "Path to an encrypted keystore file")
	keyHex := flag.String("key", "", "Raw hex private key (takes precedence over -keystore)")
	generate := flag.Bool("generate", false, "Generate a new key, save it to -keystore and exit")
	price := flag.Uint64("price", 0, "Collateral price scaled by 1e9")
	height := flag.Uint64("height", 0, "Block height the attestation is valid at")
	flag.Parse()

	passSource := passphrase.NewSource(passphraseEnv)

	if *generate {
		if err := generateKey(*keystorePath, passSource); err != nil {
			fatal(err)
		}
		return
	}

	key, err := loadKey(*keyHex, *keystorePath, passSource)
	if err != nil {
		fatal(err)
	}

	att, err := vault.SignAttestation(key, *price, *height)
	if err != nil {
		fatal(fmt.Errorf("sign attestation: %w", err))
	}

	out := attestationOutput{
		Price:       att.Price,
		BlockHeight: att.BlockHeight,
		Signature:   hex.EncodeToString(att.Signature),
		Signer:      key.PubKey().Address().String(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatal(err)
	}
}

func generateKey(path string, passSource *passphrase.Source) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("-generate requires -keystore")
	}
	pass, err := passSource.Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	if err := crypto.SaveToKeystore(path, key, pass); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote keystore %s (signer %s)\n", path, key.PubKey().Address().String())
	return nil
}

func loadKey(keyHex, keystorePath string, passSource *passphrase.Source) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(keyHex) != "" {
		key, err := crypto.PrivateKeyFromHex(strings.TrimSpace(keyHex))
		if err != nil {
			return nil, fmt.Errorf("parse -key: %w", err)
		}
		return key, nil
	}
	if strings.TrimSpace(keystorePath) == "" {
		return nil, fmt.Errorf("one of -key or -keystore is required")
	}
	pass, err := passSource.Get()
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(keystorePath, pass)
	if err != nil {
		return nil, fmt.Errorf("load keystore: %w", err)
	}
	return key, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "zkusd-attester:", err)
	os.Exit(1)
}
