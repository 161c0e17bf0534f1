package fa2

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"swapmarket/storage"
)

var (
	ErrInsufficientBalance = errors.New("fa2: insufficient balance")
	ErrNotOperator         = errors.New("fa2: caller is not owner or operator")
	ErrZeroAmount          = errors.New("fa2: amount must be positive")
	ErrSupplyOverflow      = errors.New("fa2: balance overflow")
)

// Ledger is a multi-token (FA2 style) ledger: every (owner, token id) pair has
// a fungible balance, and owners may grant operators the right to move a given
// token id on their behalf.
type Ledger struct {
	mu       sync.Mutex
	contract [20]byte
	db       storage.Database
}

// NewLedger returns the ledger of the token contract at address contract.
// State is namespaced by contract so several ledgers may share one database.
func NewLedger(contract [20]byte, db storage.Database) *Ledger {
	return &Ledger{contract: contract, db: db}
}

// Contract returns the contract address of the ledger.
func (l *Ledger) Contract() [20]byte { return l.contract }

func (l *Ledger) balanceKey(owner [20]byte, tokenID uint64) []byte {
	key := make([]byte, 0, 4+20+4+20+8)
	key = append(key, "fa2/"...)
	key = append(key, l.contract[:]...)
	key = append(key, "/bal"...)
	key = append(key, owner[:]...)
	return binary.BigEndian.AppendUint64(key, tokenID)
}

func (l *Ledger) operatorKey(owner, operator [20]byte, tokenID uint64) []byte {
	key := make([]byte, 0, 4+20+4+40+8)
	key = append(key, "fa2/"...)
	key = append(key, l.contract[:]...)
	key = append(key, "/opr"...)
	key = append(key, owner[:]...)
	key = append(key, operator[:]...)
	return binary.BigEndian.AppendUint64(key, tokenID)
}

func (l *Ledger) balance(owner [20]byte, tokenID uint64) (uint64, error) {
	raw, err := l.db.Get(l.balanceKey(owner, tokenID))
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("fa2: corrupt balance record")
	}
	return binary.BigEndian.Uint64(raw), nil
}

func (l *Ledger) isOperator(owner, operator [20]byte, tokenID uint64) (bool, error) {
	return l.db.Has(l.operatorKey(owner, operator, tokenID))
}

// BalanceOf reports the balance owner holds of tokenID.
func (l *Ledger) BalanceOf(owner [20]byte, tokenID uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(owner, tokenID)
}

// IsOperator reports whether operator may move owner's tokenID balance.
func (l *Ledger) IsOperator(owner, operator [20]byte, tokenID uint64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.isOperator(owner, operator, tokenID)
}

// AddOperator grants operator transfer rights over owner's tokenID balance.
func (l *Ledger) AddOperator(owner, operator [20]byte, tokenID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Put(l.operatorKey(owner, operator, tokenID), []byte{1})
}

// RemoveOperator revokes a grant made with AddOperator.
func (l *Ledger) RemoveOperator(owner, operator [20]byte, tokenID uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.db.Delete(l.operatorKey(owner, operator, tokenID))
}

// Mint credits amount units of tokenID to owner.
func (l *Ledger) Mint(owner [20]byte, tokenID, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, err := l.balance(owner, tokenID)
	if err != nil {
		return err
	}
	if bal > math.MaxUint64-amount {
		return ErrSupplyOverflow
	}
	return l.db.Put(l.balanceKey(owner, tokenID), binary.BigEndian.AppendUint64(nil, bal+amount))
}

// Transfer moves amount units of tokenID from one owner to another. The
// operator must be the owner itself or hold an operator grant for the token.
func (l *Ledger) Transfer(operator, from, to [20]byte, tokenID, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if operator != from {
		ok, err := l.isOperator(from, operator, tokenID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotOperator
		}
	}
	fromBal, err := l.balance(from, tokenID)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, fromBal, amount)
	}
	if from == to {
		return nil
	}
	toBal, err := l.balance(to, tokenID)
	if err != nil {
		return err
	}
	if toBal > math.MaxUint64-amount {
		return ErrSupplyOverflow
	}
	batch := l.db.NewBatch()
	batch.Put(l.balanceKey(from, tokenID), binary.BigEndian.AppendUint64(nil, fromBal-amount))
	batch.Put(l.balanceKey(to, tokenID), binary.BigEndian.AppendUint64(nil, toBal+amount))
	return batch.Write()
}

// Registry resolves token contract addresses to their ledgers.
type Registry struct {
	mu      sync.RWMutex
	ledgers map[[20]byte]*Ledger
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{ledgers: make(map[[20]byte]*Ledger)}
}

// Register adds l under its contract address, replacing any previous entry.
func (r *Registry) Register(l *Ledger) {
	if l == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledgers[l.Contract()] = l
}

// Ledger returns the ledger deployed at contract.
func (r *Registry) Ledger(contract [20]byte) (*Ledger, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.ledgers[contract]
	return l, ok
}
