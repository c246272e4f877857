package events

import (
	"strconv"

	"zkusd/crypto"
)

const (
	// TypeVaultCreated is emitted when a vault is deployed with a fresh
	// ownership commitment.
	TypeVaultCreated = "vault.created"
	// TypeCollateralDeposited is emitted whenever collateral is locked.
	TypeCollateralDeposited = "vault.collateral_deposited"
	// TypeCollateralRedeemed is emitted whenever collateral is released back
	// to the owner.
	TypeCollateralRedeemed = "vault.collateral_redeemed"
	// TypeZkUSDMinted is emitted when debt is taken on and zkUSD minted.
	TypeZkUSDMinted = "vault.minted"
	// TypeZkUSDBurned is emitted when debt is repaid and zkUSD burned.
	TypeZkUSDBurned = "vault.burned"
	// TypeVaultLiquidated is emitted when an undercollateralized vault is
	// closed out by a liquidator.
	TypeVaultLiquidated = "vault.liquidated"
)

type VaultCreated struct {
	Owner crypto.Address
}

func (VaultCreated) EventType() string { return TypeVaultCreated }

func (e VaultCreated) Attributes() map[string]string {
	return map[string]string{"owner": e.Owner.String()}
}

type CollateralDeposited struct {
	Owner  crypto.Address
	Amount uint64
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

func (e CollateralDeposited) Attributes() map[string]string {
	return map[string]string{
		"owner":  e.Owner.String(),
		"amount": strconv.FormatUint(e.Amount, 10),
	}
}

type CollateralRedeemed struct {
	Owner  crypto.Address
	Amount uint64
}

func (CollateralRedeemed) EventType() string { return TypeCollateralRedeemed }

func (e CollateralRedeemed) Attributes() map[string]string {
	return map[string]string{
		"owner":  e.Owner.String(),
		"amount": strconv.FormatUint(e.Amount, 10),
	}
}

type ZkUSDMinted struct {
	Owner        crypto.Address
	Amount       uint64
	HealthFactor uint64
}

func (ZkUSDMinted) EventType() string { return TypeZkUSDMinted }

func (e ZkUSDMinted) Attributes() map[string]string {
	return map[string]string{
		"owner":        e.Owner.String(),
		"amount":       strconv.FormatUint(e.Amount, 10),
		"healthFactor": strconv.FormatUint(e.HealthFactor, 10),
	}
}

type ZkUSDBurned struct {
	Owner  crypto.Address
	Amount uint64
}

func (ZkUSDBurned) EventType() string { return TypeZkUSDBurned }

func (e ZkUSDBurned) Attributes() map[string]string {
	return map[string]string{
		"owner":  e.Owner.String(),
		"amount": strconv.FormatUint(e.Amount, 10),
	}
}

type VaultLiquidated struct {
	Owner      crypto.Address
	Liquidator crypto.Address
	Collateral uint64
	Debt       uint64
}

func (VaultLiquidated) EventType() string { return TypeVaultLiquidated }

func (e VaultLiquidated) Attributes() map[string]string {
	return map[string]string{
		"owner":      e.Owner.String(),
		"liquidator": e.Liquidator.String(),
		"collateral": strconv.FormatUint(e.Collateral, 10),
		"debt":       strconv.FormatUint(e.Debt, 10),
	}
}
