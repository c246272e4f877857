package vault

import (
	"errors"
	"testing"

	nativecommon "zkusd/native/common"
)

type pausedModules map[string]bool

func (p pausedModules) IsPaused(module string) bool { return p[module] }

func TestPausedModuleRejectsMutations(t *testing.T) {
	f := newFixture(t)
	f.engine.SetPauses(pausedModules{moduleName: true})

	att := f.attest(t, Precision)
	if err := f.engine.DepositCollateral(f.owner, Precision, f.secret); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("deposit: expected ErrModulePaused, got %v", err)
	}
	if err := f.engine.MintZkUSD(f.owner, Precision, f.secret, att); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("mint: expected ErrModulePaused, got %v", err)
	}
	if err := f.engine.Liquidate(f.owner, f.owner, att); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("liquidate: expected ErrModulePaused, got %v", err)
	}
}

func TestPausedModuleBlocksFlagConsumption(t *testing.T) {
	f := newFixture(t)
	att := f.attest(t, Precision)
	if err := f.engine.DepositCollateral(f.owner, 3*Precision, f.secret); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := f.engine.MintZkUSD(f.owner, Precision, f.secret, att); err != nil {
		t.Fatalf("mint: %v", err)
	}

	f.engine.SetPauses(pausedModules{moduleName: true})
	if err := f.engine.AssertInteractionFlag(f.owner); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("assert flag: expected ErrModulePaused, got %v", err)
	}

	// The flag survives the rejected call and is consumable after unpause.
	f.engine.SetPauses(pausedModules{})
	if err := f.engine.AssertInteractionFlag(f.owner); err != nil {
		t.Fatalf("assert flag after unpause: %v", err)
	}
}

func TestUnpausedModuleAllowsMutations(t *testing.T) {
	f := newFixture(t)
	f.engine.SetPauses(pausedModules{})
	if err := f.engine.DepositCollateral(f.owner, Precision, f.secret); err != nil {
		t.Fatalf("deposit with pause view wired but clear: %v", err)
	}
}
