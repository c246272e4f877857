package vault

import (
	"zkusd/crypto"
)

// Vault is a single collateralized debt position. One instance exists per
// owner; it is created once and only ever driven back toward the zero state by
// redeem/burn or liquidation, never destroyed.
type Vault struct {
	// Owner is the account the vault was deployed for. Collateral redeemed
	// and zkUSD withdrawn are paid to this address.
	Owner crypto.Address
	// Address is the vault's module account. Minted zkUSD accrues here until
	// the owner withdraws it.
	Address crypto.Address
	// CollateralAmount is the locked collateral in native units. Increased
	// only by deposit, decreased only by redeem and liquidation.
	CollateralAmount uint64
	// DebtAmount is the outstanding minted zkUSD. Increased only by mint,
	// decreased only by burn and liquidation.
	DebtAmount uint64
	// OwnershipCommitment is the keccak commitment fixed at deploy time.
	// Authorization for every mutating operation is a preimage of it.
	OwnershipCommitment [32]byte
	// OracleKey is the address attestation signatures must recover to. A
	// protocol-wide constant, held per vault so each instance verifies
	// against the key it was deployed with.
	OracleKey crypto.Address
	// InteractionFlag is set by mint, burn and liquidate and consumed exactly
	// once by the external admin authority check.
	InteractionFlag bool
}

// Clone returns a deep copy so engine operations can stage mutations without
// touching the persisted instance until commit.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

type storedVault struct {
	Owner               string `json:"owner"`
	Address             string `json:"address"`
	CollateralAmount    uint64 `json:"collateralAmount"`
	DebtAmount          uint64 `json:"debtAmount"`
	OwnershipCommitment string `json:"ownershipCommitment"`
	OracleKey           string `json:"oracleKey"`
	InteractionFlag     bool   `json:"interactionFlag"`
}
