package token

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"zkusd/crypto"
	"zkusd/storage"
)

var (
	// ErrInvalidAmount rejects zero-amount ledger operations.
	ErrInvalidAmount = errors.New("token ledger: amount must be positive")
	// ErrInsufficientFunds is returned when a transfer or burn exceeds the
	// source balance.
	ErrInsufficientFunds = errors.New("token ledger: insufficient funds")
	// ErrSupplyOverflow guards the total supply counter.
	ErrSupplyOverflow = errors.New("token ledger: supply overflow")
)

// Ledger is a storage-backed fungible token ledger. One instance manages one
// asset; the daemon runs two, the zkUSD ledger and the collateral ledger, over
// distinct key prefixes in the same database.
type Ledger struct {
	mu     sync.Mutex
	db     storage.Database
	symbol string
}

// NewLedger constructs a ledger for the given asset symbol.
func NewLedger(db storage.Database, symbol string) *Ledger {
	return &Ledger{db: db, symbol: symbol}
}

// Symbol returns the asset symbol this ledger accounts for.
func (l *Ledger) Symbol() string { return l.symbol }

func (l *Ledger) balanceKey(account crypto.Address) []byte {
	return []byte(fmt.Sprintf("token/%s/balance/%s", l.symbol, account.String()))
}

func (l *Ledger) supplyKey() []byte {
	return []byte(fmt.Sprintf("token/%s/supply", l.symbol))
}

func (l *Ledger) read(key []byte) (uint64, error) {
	raw, err := l.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("token ledger: corrupt value at %s", key)
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (l *Ledger) write(key []byte, value uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	return l.db.Put(key, buf)
}

// Mint credits freshly issued units to the recipient and grows total supply.
func (l *Ledger) Mint(recipient crypto.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	supply, err := l.read(l.supplyKey())
	if err != nil {
		return err
	}
	if supply > math.MaxUint64-amount {
		return ErrSupplyOverflow
	}
	balance, err := l.read(l.balanceKey(recipient))
	if err != nil {
		return err
	}
	if err := l.write(l.balanceKey(recipient), balance+amount); err != nil {
		return err
	}
	return l.write(l.supplyKey(), supply+amount)
}

// Burn destroys units held by the owner and shrinks total supply.
func (l *Ledger) Burn(owner crypto.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance, err := l.read(l.balanceKey(owner))
	if err != nil {
		return err
	}
	if amount > balance {
		return ErrInsufficientFunds
	}
	supply, err := l.read(l.supplyKey())
	if err != nil {
		return err
	}
	if amount > supply {
		return fmt.Errorf("token ledger: supply underflow")
	}
	if err := l.write(l.balanceKey(owner), balance-amount); err != nil {
		return err
	}
	return l.write(l.supplyKey(), supply-amount)
}

// Transfer moves units between accounts without changing supply.
func (l *Ledger) Transfer(from, to crypto.Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBalance, err := l.read(l.balanceKey(from))
	if err != nil {
		return err
	}
	if amount > fromBalance {
		return ErrInsufficientFunds
	}
	toBalance, err := l.read(l.balanceKey(to))
	if err != nil {
		return err
	}
	if toBalance > math.MaxUint64-amount {
		return ErrSupplyOverflow
	}
	if err := l.write(l.balanceKey(from), fromBalance-amount); err != nil {
		return err
	}
	return l.write(l.balanceKey(to), toBalance+amount)
}

// BalanceOf returns the units held by the account, zero for unknown accounts.
func (l *Ledger) BalanceOf(account crypto.Address) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(l.balanceKey(account))
}

// TotalSupply returns the outstanding issued units.
func (l *Ledger) TotalSupply() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.read(l.supplyKey())
}
