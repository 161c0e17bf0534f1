package marketplace

import (
	"math/big"
)

const (
	// ModuleName identifies the marketplace in logs, metrics and pause views.
	ModuleName = "marketplace"

	// RoyaltyDenominator expresses royalties in permille.
	RoyaltyDenominator = 1000
	// MaxRoyalties is the highest royalty an offer may carry (100%).
	MaxRoyalties = 1000
	// FeeDenominator expresses the platform fee in permille.
	FeeDenominator = 1000
	// MaxFee bounds the platform fee (25%).
	MaxFee = 250
)

// Offer is a standing, partially fulfillable sale of escrowed token units at a
// fixed unit price. Only Amount changes after creation.
type Offer struct {
	ID            uint64
	Issuer        [20]byte
	TokenContract [20]byte
	TokenID       uint64
	// Amount is the number of units still held in escrow for the offer.
	Amount    uint64
	UnitPrice *big.Int
	// Royalties is the permille share of each sale paid to Creator.
	Royalties uint32
	Creator   [20]byte
}

// Clone returns a deep copy of the offer so callers can safely mutate the copy
// without affecting the stored instance.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	clone := *o
	if o.UnitPrice != nil {
		clone.UnitPrice = new(big.Int).Set(o.UnitPrice)
	} else {
		clone.UnitPrice = big.NewInt(0)
	}
	return &clone
}

// Config holds the administrative state of the marketplace.
type Config struct {
	Manager      [20]byte
	FeeRecipient [20]byte
	// Fee is the permille share of each sale paid to FeeRecipient.
	Fee    uint32
	Paused bool
}

// Genesis seeds a marketplace deployment.
type Genesis struct {
	Config      Config
	AllowedFA2s [][20]byte
}

// Call carries the authenticated caller and the value attached to an
// operation.
type Call struct {
	Sender [20]byte
	Value  *big.Int
}

func (c Call) value() *big.Int {
	if c.Value == nil {
		return big.NewInt(0)
	}
	return c.Value
}

func (c Call) hasValue() bool {
	return c.Value != nil && c.Value.Sign() != 0
}

// CreateOfferParams describes a new offer. The issuer is always the caller.
type CreateOfferParams struct {
	TokenContract [20]byte
	TokenID       uint64
	Amount        uint64
	UnitPrice     *big.Int
	Royalties     uint32
	Creator       [20]byte
}

// Payout is the split of a single unit sale.
type Payout struct {
	Royalty *big.Int
	Fee     *big.Int
	Issuer  *big.Int
}

// TokenLedger is the view of a token contract the marketplace needs: balance
// and operator queries plus operator-gated transfers.
type TokenLedger interface {
	BalanceOf(owner [20]byte, tokenID uint64) (uint64, error)
	IsOperator(owner, operator [20]byte, tokenID uint64) (bool, error)
	Transfer(operator, from, to [20]byte, tokenID, amount uint64) error
}

// LedgerResolver maps a token contract address to its ledger.
type LedgerResolver interface {
	Resolve(contract [20]byte) (TokenLedger, bool)
}

// LedgerResolverFunc adapts a function to LedgerResolver.
type LedgerResolverFunc func(contract [20]byte) (TokenLedger, bool)

// Resolve implements LedgerResolver.
func (f LedgerResolverFunc) Resolve(contract [20]byte) (TokenLedger, bool) { return f(contract) }

// Bank moves native currency between accounts.
type Bank interface {
	Transfer(from, to [20]byte, amount *big.Int) error
}
