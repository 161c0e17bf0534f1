package marketplace

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// SplitPayment divides a unit price into the royalty, platform fee and issuer
// shares. Both fractions are permille and truncate toward zero; the issuer
// receives whatever is left, so the three shares always sum to price.
//
// When royalties plus fee exceed 1000 permille, price minus both shares would
// go negative. The sale is not rejected in that case: the fee is capped to
// what the royalty leaves over and the issuer receives nothing.
func SplitPayment(price *big.Int, royalties, fee uint32) (Payout, error) {
	if price == nil {
		price = big.NewInt(0)
	}
	if price.Sign() < 0 {
		return Payout{}, fmt.Errorf("%w: negative price", ErrInvalidAmount)
	}
	if royalties > MaxRoyalties {
		return Payout{}, fmt.Errorf("%w: royalties %d exceed %d", ErrInvalidAmount, royalties, MaxRoyalties)
	}
	if fee > MaxFee {
		return Payout{}, fmt.Errorf("%w: fee %d exceeds %d", ErrInvalidAmount, fee, MaxFee)
	}
	total, overflow := uint256.FromBig(price)
	if overflow {
		return Payout{}, fmt.Errorf("%w: price exceeds 256 bits", ErrInvalidAmount)
	}
	royaltyShare := permille(total, royalties, RoyaltyDenominator)
	rest := new(uint256.Int).Sub(total, royaltyShare)
	feeShare := permille(total, fee, FeeDenominator)
	if feeShare.Gt(rest) {
		feeShare = new(uint256.Int).Set(rest)
	}
	issuerShare := new(uint256.Int).Sub(rest, feeShare)
	return Payout{
		Royalty: royaltyShare.ToBig(),
		Fee:     feeShare.ToBig(),
		Issuer:  issuerShare.ToBig(),
	}, nil
}

func permille(total *uint256.Int, parts uint32, denominator uint64) *uint256.Int {
	if parts == 0 || total.IsZero() {
		return new(uint256.Int)
	}
	share, _ := new(uint256.Int).MulDivOverflow(total, uint256.NewInt(uint64(parts)), uint256.NewInt(denominator))
	return share
}
