package vault

import (
	"math"
	"math/big"
)

// mulDivFloor computes floor(a*b/d) with a 128-bit intermediate product so
// share valuations never overflow mid-calculation. Used on the mint path;
// flooring here means a depositor can never mint more than their assets are
// worth.
func mulDivFloor(a, b, d int64) (int64, error) {
	if d == 0 {
		return 0, ErrEmptyVault
	}
	product := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	quotient := product.Quo(product, big.NewInt(d))
	if !quotient.IsInt64() {
		return 0, ErrOverflow
	}
	return quotient.Int64(), nil
}

// mulDivCeil computes ceil(a*b/d). Used on the burn path; the ceiling
// guarantees the vault never pays out more value than the burned shares
// represent, with the rounding cost borne by the withdrawing party. The two
// helpers are deliberately separate: the rounding direction is the
// load-bearing property, not an implementation detail.
func mulDivCeil(a, b, d int64) (int64, error) {
	if d == 0 {
		return 0, ErrEmptyVault
	}
	product := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	quotient, remainder := new(big.Int).QuoRem(product, big.NewInt(d), new(big.Int))
	if remainder.Sign() != 0 {
		quotient.Add(quotient, big.NewInt(1))
	}
	if !quotient.IsInt64() {
		return 0, ErrOverflow
	}
	return quotient.Int64(), nil
}

// addChecked sums two non-negative amounts with overflow protection.
func addChecked(a, b int64) (int64, error) {
	if a > math.MaxInt64-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}
