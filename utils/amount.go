package utils

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// AmountUi converts base units to a human amount.
func AmountUi(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}

// ToBaseUnits floors a human amount to base units. Negative amounts and
// amounts that do not fit in a uint64 yield ok=false.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, bool) {
	units := amount.Shift(int32(decimals)).Floor()
	if units.Sign() < 0 {
		return 0, false
	}
	value := units.BigInt()
	if !value.IsUint64() {
		return 0, false
	}
	return value.Uint64(), true
}
