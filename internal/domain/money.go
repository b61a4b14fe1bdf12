package domain

import (
	"github.com/shopspring/decimal"
)

const BasisPointsDenominator = 10000

// MaxAmountCents caps a single agreement, deposit or withdrawal at
// 10,000,000,000,000.00 major units so wallet totals stay well inside int64.
const MaxAmountCents int64 = 1_000_000_000_000_000

// MaxBalanceCents bounds a wallet's available plus pending total.
const MaxBalanceCents int64 = 1 << 62

// ValidAmount reports whether cents is a positive amount within MaxAmountCents.
func ValidAmount(cents int64) bool {
	return cents > 0 && cents <= MaxAmountCents
}

// mulDiv returns floor(a * b / d) for non-negative operands. The product is
// taken in arbitrary precision so it cannot overflow int64.
func mulDiv(a, b, d int64) int64 {
	if a <= 0 || b <= 0 || d <= 0 {
		return 0
	}
	q, _ := decimal.NewFromInt(a).Mul(decimal.NewFromInt(b)).QuoRem(decimal.NewFromInt(d), 0)
	return q.IntPart()
}

// Fee returns floor(amount * bps / 10000). Amounts are non-negative.
func Fee(amountCents, basisPoints int64) int64 {
	return mulDiv(amountCents, basisPoints, BasisPointsDenominator)
}

// MilestoneFees splits feeCents across milestone net amounts in proportion to
// each amount. The last share takes the rounding remainder so the shares sum
// to feeCents exactly.
func MilestoneFees(feeCents, netCents int64, amounts []int64) []int64 {
	shares := make([]int64, len(amounts))
	if len(amounts) == 0 {
		return shares
	}
	var allocated int64
	for i, a := range amounts[:len(amounts)-1] {
		shares[i] = mulDiv(feeCents, a, netCents)
		allocated += shares[i]
	}
	shares[len(amounts)-1] = feeCents - allocated
	return shares
}

// SplitFee is the fee charged on the seller part of a split resolution:
// floor(remainingFee * sellerPortion / remaining).
func SplitFee(remainingFeeCents, sellerPortionCents, remainingCents int64) int64 {
	return mulDiv(remainingFeeCents, sellerPortionCents, remainingCents)
}

// FormatMinor renders minor units as a major-unit display string, e.g.
// 95000 GHS -> "950.00". Display only; balances stay integer.
func FormatMinor(cents int64, exponent int32) string {
	return decimal.New(cents, -exponent).StringFixed(exponent)
}
