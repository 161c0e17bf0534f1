package bank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"swapmarket/storage"
)

var (
	ErrNegativeAmount      = errors.New("bank: amount cannot be negative")
	ErrInsufficientBalance = errors.New("bank: insufficient balance")
)

var balancePrefix = []byte("bank/balance/")

// Ledger tracks native currency balances in the smallest unit. Transfers are
// final once they return nil.
type Ledger struct {
	mu sync.Mutex
	db storage.Database
}

// NewLedger returns a ledger persisting balances in db.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func balanceKey(addr [20]byte) []byte {
	key := make([]byte, 0, len(balancePrefix)+len(addr))
	key = append(key, balancePrefix...)
	return append(key, addr[:]...)
}

func (l *Ledger) load(addr [20]byte) (*big.Int, error) {
	raw, err := l.db.Get(balanceKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// Balance returns the current balance of addr.
func (l *Ledger) Balance(addr [20]byte) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.load(addr)
}

// Credit mints amount into addr. It backs faucets and test fixtures.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, err := l.load(addr)
	if err != nil {
		return err
	}
	return l.db.Put(balanceKey(addr), new(big.Int).Add(bal, amount).Bytes())
}

// Transfer moves amount from one account to another. A zero amount is a no-op.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromBal, err := l.load(from)
	if err != nil {
		return err
	}
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, fromBal, amount)
	}
	if from == to {
		return nil
	}
	toBal, err := l.load(to)
	if err != nil {
		return err
	}
	batch := l.db.NewBatch()
	batch.Put(balanceKey(from), new(big.Int).Sub(fromBal, amount).Bytes())
	batch.Put(balanceKey(to), new(big.Int).Add(toBal, amount).Bytes())
	return batch.Write()
}
