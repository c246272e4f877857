package crypto

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	addr := key.PubKey().Address()
	require.Equal(t, ZKUSDPrefix, addr.Prefix())
	require.Len(t, addr.Bytes(), 20)

	encoded := addr.String()
	require.True(t, strings.HasPrefix(encoded, string(ZKUSDPrefix)+"1"))

	decoded, err := DecodeAddress(encoded)
	require.NoError(t, err)
	require.True(t, addr.Equal(decoded))
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	_, err := DecodeAddress("not-a-bech32-address")
	require.Error(t, err)

	_, err = DecodeAddress("")
	require.Error(t, err)
}

func TestDeriveVaultAddress(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)
	owner := key.PubKey().Address()

	vaultAddr := DeriveVaultAddress(owner)
	require.Equal(t, VaultPrefix, vaultAddr.Prefix())
	require.Len(t, vaultAddr.Bytes(), 20)
	require.False(t, vaultAddr.Equal(owner))

	// Derivation is deterministic per owner.
	require.True(t, vaultAddr.Equal(DeriveVaultAddress(owner)))

	other, err := GeneratePrivateKey()
	require.NoError(t, err)
	require.False(t, vaultAddr.Equal(DeriveVaultAddress(other.PubKey().Address())))
}

func TestPrivateKeyHexRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	restored, err := PrivateKeyFromBytes(key.Bytes())
	require.NoError(t, err)
	require.True(t, key.PubKey().Address().Equal(restored.PubKey().Address()))
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "attester.json")
	require.NoError(t, SaveToKeystore(path, key, "correct horse"))

	loaded, err := LoadFromKeystore(path, "correct horse")
	require.NoError(t, err)
	require.True(t, key.PubKey().Address().Equal(loaded.PubKey().Address()))

	_, err = LoadFromKeystore(path, "wrong passphrase")
	require.Error(t, err)
}
