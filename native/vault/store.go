package vault

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"zkusd/crypto"
	"zkusd/storage"
)

const vaultKeyPrefix = "vault/"

// Store persists vaults in a key-value database keyed by owner address. It
// implements the engine's state interface.
type Store struct {
	db storage.Database
}

// NewStore wraps the provided database in a vault store.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func vaultKey(owner crypto.Address) []byte {
	return []byte(vaultKeyPrefix + owner.String())
}

// GetVault loads the vault for the owner, returning nil when none exists.
func (s *Store) GetVault(owner crypto.Address) (*Vault, error) {
	raw, err := s.db.Get(vaultKey(owner))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var stored storedVault
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("vault store: decode vault: %w", err)
	}
	return stored.toVault()
}

// PutVault writes the vault record for its owner.
func (s *Store) PutVault(v *Vault) error {
	if v == nil {
		return errNilVault
	}
	stored := newStoredVault(v)
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("vault store: encode vault: %w", err)
	}
	return s.db.Put(vaultKey(v.Owner), raw)
}

// HasVault reports whether a vault exists for the owner.
func (s *Store) HasVault(owner crypto.Address) (bool, error) {
	return s.db.Has(vaultKey(owner))
}

func newStoredVault(v *Vault) storedVault {
	return storedVault{
		Owner:               v.Owner.String(),
		Address:             v.Address.String(),
		CollateralAmount:    v.CollateralAmount,
		DebtAmount:          v.DebtAmount,
		OwnershipCommitment: hex.EncodeToString(v.OwnershipCommitment[:]),
		OracleKey:           v.OracleKey.String(),
		InteractionFlag:     v.InteractionFlag,
	}
}

func (s storedVault) toVault() (*Vault, error) {
	owner, err := crypto.DecodeAddress(s.Owner)
	if err != nil {
		return nil, fmt.Errorf("vault store: decode owner: %w", err)
	}
	addr, err := crypto.DecodeAddress(s.Address)
	if err != nil {
		return nil, fmt.Errorf("vault store: decode vault address: %w", err)
	}
	oracleKey, err := crypto.DecodeAddress(s.OracleKey)
	if err != nil {
		return nil, fmt.Errorf("vault store: decode oracle key: %w", err)
	}
	rawCommitment, err := hex.DecodeString(s.OwnershipCommitment)
	if err != nil || len(rawCommitment) != 32 {
		return nil, fmt.Errorf("vault store: decode ownership commitment")
	}
	v := &Vault{
		Owner:            owner,
		Address:          addr,
		CollateralAmount: s.CollateralAmount,
		DebtAmount:       s.DebtAmount,
		OracleKey:        oracleKey,
		InteractionFlag:  s.InteractionFlag,
	}
	copy(v.OwnershipCommitment[:], rawCommitment)
	return v, nil
}
