package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const weiPerEther = 18

// WeiToGwei converts a wei amount to gwei.
func WeiToGwei(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	return decimal.NewFromBigInt(wei, -9).InexactFloat64()
}

// Scale interprets a raw token amount with the given number of decimals.
func Scale(raw *big.Int, decimals int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, int32(-decimals))
}

// USDToWei converts a USD amount into wei of a native asset priced at nativeUSD.
func USDToWei(usd, nativeUSD decimal.Decimal) (*big.Int, error) {
	if !nativeUSD.IsPositive() {
		return nil, fmt.Errorf("native price must be positive, got %s", nativeUSD)
	}
	if usd.IsNegative() {
		return nil, fmt.Errorf("amount must not be negative, got %s", usd)
	}
	return usd.Shift(weiPerEther).DivRound(nativeUSD, 0).BigInt(), nil
}

// ParseAddress validates a 0x hex address.
func ParseAddress(raw string) (common.Address, error) {
	s := strings.TrimSpace(raw)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(s), nil
}
