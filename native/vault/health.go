package vault

// Precision normalizes collateral decimal scale against the oracle price
// scale. Both are carried with nine decimal places.
const Precision = 1_000_000_000

// MinCollateralRatio is the over-collateralization floor in percent. Debt may
// be minted up to 100/150 (two thirds) of the collateral's USD value.
const MinCollateralRatio = 150

// SolvencyThreshold is the health factor at which a vault sits exactly on the
// collateral ratio floor. At or above it the vault is solvent; at or below it
// the vault is eligible for liquidation. Both boundaries are closed at 100.
const SolvencyThreshold = 100

// HealthFactor maps a vault's collateral, debt and the attested price to a
// two-decimal percentage solvency ratio:
//
//	usdValue       = floor(collateral * price / Precision)
//	maxAllowedDebt = floor(usdValue * 100 / 150)
//	healthFactor   = floor(maxAllowedDebt * 100 / debt)
//
// Zero debt yields MaxHealthFactor. Every multiplication runs through a
// 256-bit intermediate so no step loses precision before its floor divide.
func HealthFactor(collateral, debt, price uint64) (uint64, error) {
	usdValue, err := MulDiv(collateral, price, Precision)
	if err != nil {
		return 0, err
	}
	maxAllowedDebt, err := MulDiv(usdValue, SolvencyThreshold, MinCollateralRatio)
	if err != nil {
		return 0, err
	}
	if debt == 0 {
		return MaxHealthFactor, nil
	}
	return MulDiv(maxAllowedDebt, SolvencyThreshold, debt)
}
