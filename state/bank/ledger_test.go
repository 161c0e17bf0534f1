package bank

import (
	"errors"
	"math/big"
	"testing"

	"swapmarket/storage"
)

func addr(fill byte) [20]byte {
	var a [20]byte
	for i := range a {
		a[i] = fill
	}
	return a
}

func TestLedgerTransfer(t *testing.T) {
	l := NewLedger(storage.NewMemDB())
	if err := l.Credit(addr(1), big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := l.Transfer(addr(1), addr(2), big.NewInt(40)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	from, _ := l.Balance(addr(1))
	to, _ := l.Balance(addr(2))
	if from.Int64() != 60 || to.Int64() != 40 {
		t.Fatalf("unexpected balances from=%s to=%s", from, to)
	}
}

func TestLedgerTransferInsufficient(t *testing.T) {
	l := NewLedger(storage.NewMemDB())
	err := l.Transfer(addr(1), addr(2), big.NewInt(1))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestLedgerZeroAmountIsNoop(t *testing.T) {
	l := NewLedger(storage.NewMemDB())
	if err := l.Transfer(addr(1), addr(2), big.NewInt(0)); err != nil {
		t.Fatalf("expected no error for zero amount: %v", err)
	}
	if err := l.Transfer(addr(1), addr(2), nil); err != nil {
		t.Fatalf("expected no error for nil amount: %v", err)
	}
}

func TestLedgerNegativeAmount(t *testing.T) {
	l := NewLedger(storage.NewMemDB())
	if err := l.Credit(addr(1), big.NewInt(-1)); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected negative amount error, got %v", err)
	}
	if err := l.Transfer(addr(1), addr(2), big.NewInt(-1)); !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("expected negative amount error, got %v", err)
	}
}
