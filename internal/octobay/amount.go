package octobay

import (
	"math/big"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

// FormatEther renders a wei amount in ether units without rounding.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -etherDecimals).String()
}
