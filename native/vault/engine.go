package vault

import (
	"errors"
	"math"

	"zkusd/core/events"
	"zkusd/crypto"
	nativecommon "zkusd/native/common"
)

var (
	errNilState = errors.New("vault engine: state not configured")
	errNilVault = errors.New("vault engine: vault not initialised")

	// ErrVaultExists is returned when deploying over an existing vault.
	ErrVaultExists = errors.New("vault engine: vault already exists for owner")
	// ErrVaultNotFound is returned when no vault exists for the owner.
	ErrVaultNotFound = errors.New("vault engine: vault not found")
	// ErrInvalidAmount rejects zero amounts on every transfer-like operation.
	ErrInvalidAmount = errors.New("vault engine: amount must be positive")
	// ErrInvalidSecret rejects vault deployment without an ownership secret.
	ErrInvalidSecret = errors.New("vault engine: ownership secret must not be empty")
	// ErrAmountExceedsDebt rejects burns larger than the outstanding debt.
	ErrAmountExceedsDebt = errors.New("vault engine: amount exceeds outstanding debt")
	// ErrInsufficientBalance is returned when the vault's minted balance does
	// not cover a withdrawal.
	ErrInsufficientBalance = errors.New("vault engine: insufficient balance")
	// ErrInsufficientCollateral is returned when a redeem exceeds the locked
	// collateral.
	ErrInsufficientCollateral = errors.New("vault engine: insufficient collateral")
	// ErrHealthTooLow blocks mints and redeems that would breach the
	// collateral ratio floor.
	ErrHealthTooLow = errors.New("vault engine: health factor below solvency threshold")
	// ErrHealthTooHigh protects solvent vaults from liquidation.
	ErrHealthTooHigh = errors.New("vault engine: health factor above liquidation threshold")
	// ErrInteractionFlagUnset is returned when the one-shot interaction flag
	// is consumed while clear.
	ErrInteractionFlagUnset = errors.New("vault engine: interaction flag not set")
)

const moduleName = "vault"

type engineState interface {
	GetVault(owner crypto.Address) (*Vault, error)
	PutVault(v *Vault) error
}

// TokenLedger is the external zkUSD fungible-token collaborator. A rejection
// from any call aborts the surrounding vault operation before state commits.
type TokenLedger interface {
	Mint(recipient crypto.Address, amount uint64) error
	Burn(owner crypto.Address, amount uint64) error
	Transfer(from, to crypto.Address, amount uint64) error
	BalanceOf(account crypto.Address) (uint64, error)
}

// CollateralLedger moves the collateral asset between the owner, the vault
// module account and liquidators.
type CollateralLedger interface {
	Transfer(from, to crypto.Address, amount uint64) error
	BalanceOf(account crypto.Address) (uint64, error)
}

// Engine owns the vault state transitions. Every operation re-reads the
// persisted vault, validates ownership, amount, oracle and solvency
// preconditions in that order, stages mutations on a clone and commits only
// after all collaborator calls succeed, so a failed operation has no partial
// effect.
type Engine struct {
	state       engineState
	token       TokenLedger
	collateral  CollateralLedger
	blockHeight uint64
	emitter     events.Emitter
	pauses      nativecommon.PauseView
}

// NewEngine constructs a vault engine wired to the token and collateral
// ledgers.
func NewEngine(token TokenLedger, collateral CollateralLedger) *Engine {
	return &Engine{token: token, collateral: collateral, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter wires the engine to a downstream event subscriber.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetBlockHeight records the chain height attestations are checked against.
func (e *Engine) SetBlockHeight(height uint64) {
	if e == nil {
		return
	}
	e.blockHeight = height
}

// BlockHeight returns the currently configured chain height.
func (e *Engine) BlockHeight() uint64 {
	if e == nil {
		return 0
	}
	return e.blockHeight
}

// CreateVault deploys a fresh vault for the owner with zero collateral and
// debt. The secret is never stored; only its commitment is.
func (e *Engine) CreateVault(owner crypto.Address, secret []byte, oracleKey crypto.Address) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, ErrInvalidSecret
	}
	existing, err := e.state.GetVault(owner)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrVaultExists
	}
	created := &Vault{
		Owner:               owner,
		Address:             crypto.DeriveVaultAddress(owner),
		OwnershipCommitment: SecretCommitment(secret),
		OracleKey:           oracleKey,
	}
	if err := e.state.PutVault(created); err != nil {
		return nil, err
	}
	e.emitter.Emit(events.VaultCreated{Owner: owner})
	return created.Clone(), nil
}

// DepositCollateral locks additional collateral in the vault. The collateral
// asset moves from the owner's account to the vault module account.
func (e *Engine) DepositCollateral(owner crypto.Address, amount uint64, secret []byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	current, err := e.loadVault(owner)
	if err != nil {
		return err
	}
	if err := CheckOwnership(secret, current.OwnershipCommitment); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if current.CollateralAmount > math.MaxUint64-amount {
		return errOverflow
	}
	if err := e.collateral.Transfer(owner, current.Address, amount); err != nil {
		return err
	}
	staged := current.Clone()
	staged.CollateralAmount += amount
	if err := e.state.PutVault(staged); err != nil {
		return err
	}
	e.emitter.Emit(events.CollateralDeposited{Owner: owner, Amount: amount})
	return nil
}

// RedeemCollateral releases collateral back to the owner provided the
// remaining position stays at or above the solvency threshold under the
// attested price.
func (e *Engine) RedeemCollateral(owner crypto.Address, amount uint64, secret []byte, att *PriceAttestation) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	current, err := e.loadVault(owner)
	if err != nil {
		return err
	}
	if err := CheckOwnership(secret, current.OwnershipCommitment); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if err := NewVerifier(current.OracleKey).Verify(att, e.blockHeight); err != nil {
		return err
	}
	if amount > current.CollateralAmount {
		return ErrInsufficientCollateral
	}
	remaining := current.CollateralAmount - amount
	health, err := HealthFactor(remaining, current.DebtAmount, att.Price)
	if err != nil {
		return err
	}
	if health < SolvencyThreshold {
		return ErrHealthTooLow
	}
	if err := e.collateral.Transfer(current.Address, owner, amount); err != nil {
		return err
	}
	staged := current.Clone()
	staged.CollateralAmount = remaining
	if err := e.state.PutVault(staged); err != nil {
		return err
	}
	e.emitter.Emit(events.CollateralRedeemed{Owner: owner, Amount: amount})
	return nil
}

// MintZkUSD takes on debt and mints the corresponding zkUSD into the vault
// module account. The projected position must remain solvent under the
// attested price.
func (e *Engine) MintZkUSD(owner crypto.Address, amount uint64, secret []byte, att *PriceAttestation) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	current, err := e.loadVault(owner)
	if err != nil {
		return err
	}
	if err := CheckOwnership(secret, current.OwnershipCommitment); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if err := NewVerifier(current.OracleKey).Verify(att, e.blockHeight); err != nil {
		return err
	}
	if current.DebtAmount > math.MaxUint64-amount {
		return errOverflow
	}
	projectedDebt := current.DebtAmount + amount
	health, err := HealthFactor(current.CollateralAmount, projectedDebt, att.Price)
	if err != nil {
		return err
	}
	if health < SolvencyThreshold {
		return ErrHealthTooLow
	}
	if err := e.token.Mint(current.Address, amount); err != nil {
		return err
	}
	staged := current.Clone()
	staged.DebtAmount = projectedDebt
	staged.InteractionFlag = true
	if err := e.state.PutVault(staged); err != nil {
		return err
	}
	e.emitter.Emit(events.ZkUSDMinted{Owner: owner, Amount: amount, HealthFactor: health})
	return nil
}

// WithdrawZkUSD moves already-minted zkUSD from the vault module account to
// the owner. It changes no debt and therefore carries no health factor check
// and does not raise the interaction flag.
func (e *Engine) WithdrawZkUSD(owner crypto.Address, amount uint64, secret []byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	current, err := e.loadVault(owner)
	if err != nil {
		return err
	}
	if err := CheckOwnership(secret, current.OwnershipCommitment); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	balance, err := e.token.BalanceOf(current.Address)
	if err != nil {
		return err
	}
	if amount > balance {
		return ErrInsufficientBalance
	}
	return e.token.Transfer(current.Address, owner, amount)
}

// BurnZkUSD repays debt by burning zkUSD from the owner's account.
func (e *Engine) BurnZkUSD(owner crypto.Address, amount uint64, secret []byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	current, err := e.loadVault(owner)
	if err != nil {
		return err
	}
	if err := CheckOwnership(secret, current.OwnershipCommitment); err != nil {
		return err
	}
	if amount == 0 {
		return ErrInvalidAmount
	}
	if amount > current.DebtAmount {
		return ErrAmountExceedsDebt
	}
	if err := e.token.Burn(owner, amount); err != nil {
		return err
	}
	staged := current.Clone()
	staged.DebtAmount -= amount
	staged.InteractionFlag = true
	if err := e.state.PutVault(staged); err != nil {
		return err
	}
	e.emitter.Emit(events.ZkUSDBurned{Owner: owner, Amount: amount})
	return nil
}

// Liquidate closes an undercollateralized vault: the liquidator's zkUSD covers
// the debt and is burned, and the entire collateral balance is transferred to
// the liquidator. A vault at a health factor of exactly the solvency threshold
// is eligible; both boundaries are closed at 100.
func (e *Engine) Liquidate(liquidator, owner crypto.Address, att *PriceAttestation) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	current, err := e.loadVault(owner)
	if err != nil {
		return err
	}
	if err := NewVerifier(current.OracleKey).Verify(att, e.blockHeight); err != nil {
		return err
	}
	health, err := HealthFactor(current.CollateralAmount, current.DebtAmount, att.Price)
	if err != nil {
		return err
	}
	if health > SolvencyThreshold {
		return ErrHealthTooHigh
	}
	if current.DebtAmount > 0 {
		if err := e.token.Burn(liquidator, current.DebtAmount); err != nil {
			return err
		}
	}
	if current.CollateralAmount > 0 {
		if err := e.collateral.Transfer(current.Address, liquidator, current.CollateralAmount); err != nil {
			return err
		}
	}
	staged := current.Clone()
	seizedCollateral := staged.CollateralAmount
	repaidDebt := staged.DebtAmount
	staged.CollateralAmount = 0
	staged.DebtAmount = 0
	staged.InteractionFlag = true
	if err := e.state.PutVault(staged); err != nil {
		return err
	}
	e.emitter.Emit(events.VaultLiquidated{
		Owner:      owner,
		Liquidator: liquidator,
		Collateral: seizedCollateral,
		Debt:       repaidDebt,
	})
	return nil
}

// GetHealthFactor computes the vault's current solvency ratio under the
// attested price. Pure read; it mutates nothing.
func (e *Engine) GetHealthFactor(owner crypto.Address, att *PriceAttestation) (uint64, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	current, err := e.loadVault(owner)
	if err != nil {
		return 0, err
	}
	if err := NewVerifier(current.OracleKey).Verify(att, e.blockHeight); err != nil {
		return 0, err
	}
	return HealthFactor(current.CollateralAmount, current.DebtAmount, att.Price)
}

// GetVault returns a copy of the persisted vault state.
func (e *Engine) GetVault(owner crypto.Address) (*Vault, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	return e.loadVault(owner)
}

// AssertInteractionFlag consumes the one-shot interaction flag. The first call
// after a mint, burn or liquidation succeeds and clears the flag; a second
// call fails, enforcing at most one downstream admin check per debt event.
func (e *Engine) AssertInteractionFlag(owner crypto.Address) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	current, err := e.loadVault(owner)
	if err != nil {
		return err
	}
	if !current.InteractionFlag {
		return ErrInteractionFlagUnset
	}
	staged := current.Clone()
	staged.InteractionFlag = false
	return e.state.PutVault(staged)
}

func (e *Engine) loadVault(owner crypto.Address) (*Vault, error) {
	v, err := e.state.GetVault(owner)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrVaultNotFound
	}
	return v.Clone(), nil
}
