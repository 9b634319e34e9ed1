package cost

import (
	"context"
	"errors"
	"fmt"

	"ArbPull/internal/domain/models"
)

var ErrNoFeeLevel = errors.New("no fee level for chain")

// GasEstimator prices the gas of both legs of an opportunity as a fraction
// of the reference notional, using the fee book collected this tick.
type GasEstimator struct {
	gasUnits          uint64
	referenceNotional float64
}

func NewGasEstimator(gasUnitsPerLeg uint64, referenceNotionalUSD float64) *GasEstimator {
	if gasUnitsPerLeg == 0 {
		gasUnitsPerLeg = 150_000
	}
	if referenceNotionalUSD <= 0 {
		referenceNotionalUSD = 50
	}
	return &GasEstimator{gasUnits: gasUnitsPerLeg, referenceNotional: referenceNotionalUSD}
}

func (g *GasEstimator) Estimate(_ context.Context, opp models.Opportunity, fees models.FeeBook) (float64, error) {
	var total float64
	for _, leg := range []models.Quote{opp.Buy, opp.Sell} {
		c, err := g.legCost(leg.Chain, fees)
		if err != nil {
			return 0, err
		}
		total += c
	}
	return total, nil
}

// LegUSD returns the USD gas cost of one transaction on chain.
func (g *GasEstimator) LegUSD(chain models.Chain, fees models.FeeBook) (float64, error) {
	fee, ok := fees[chain]
	if !ok {
		return 0, fmt.Errorf("%s: %w", chain, ErrNoFeeLevel)
	}
	if fee.GasPriceGwei < 0 || fee.NativeUSD <= 0 {
		return 0, fmt.Errorf("%s: invalid fee level (gwei=%g native=%g): %w", chain, fee.GasPriceGwei, fee.NativeUSD, ErrNoFeeLevel)
	}
	return fee.GasPriceGwei * float64(g.gasUnits) / 1e9 * fee.NativeUSD, nil
}

func (g *GasEstimator) legCost(chain models.Chain, fees models.FeeBook) (float64, error) {
	usd, err := g.LegUSD(chain, fees)
	if err != nil {
		return 0, err
	}
	return usd / g.referenceNotional, nil
}
