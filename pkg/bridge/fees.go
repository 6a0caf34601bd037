package bridge

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// USDCDecimals is the number of decimals of the bridged token.
const USDCDecimals = 6

// ComputeFees returns the flat-fee breakdown for a transfer. The fee
// does not scale with transfer size; netAmount = amount - fee.
func ComputeFees(amount *big.Int, flatFee int64) *FeeBreakdown {
	fee := big.NewInt(flatFee)
	return &FeeBreakdown{
		Amount:    new(big.Int).Set(amount),
		Fee:       fee,
		NetAmount: new(big.Int).Sub(amount, fee),
	}
}

// FormatUSDC renders an amount in smallest units as a decimal USDC
// string, e.g. 1000000 -> "1".
func FormatUSDC(units *big.Int) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -USDCDecimals).String()
}
