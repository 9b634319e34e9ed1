package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"time"

	"ArbPull/internal/domain/models"
	"ArbPull/pkg/evm"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	ErrUnknownTarget = errors.New("no pool configured for target")
	ErrEmptyPool     = errors.New("pool has no reserves")
)

// PoolSpec locates the constant-product pool quoting one target.
// The quote token is treated as a USD stablecoin when sizing liquidity.
type PoolSpec struct {
	Address       common.Address
	BaseIsToken0  bool
	BaseDecimals  int
	QuoteDecimals int
}

// EVMPriceReader prices a pair from UniswapV2-style pool reserves.
type EVMPriceReader struct {
	dialer evm.Dialer
	pools  map[models.Target]PoolSpec
	now    func() time.Time
}

func NewEVMPriceReader(d evm.Dialer, pools map[models.Target]PoolSpec) *EVMPriceReader {
	return &EVMPriceReader{dialer: d, pools: pools, now: time.Now}
}

// Targets lists the configured reads in a stable order.
func (r *EVMPriceReader) Targets() []models.Target {
	out := make([]models.Target, 0, len(r.pools))
	for t := range r.pools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (r *EVMPriceReader) ReadPrice(ctx context.Context, ep models.Endpoint, t models.Target) (models.Quote, error) {
	spec, ok := r.pools[t]
	if !ok {
		return models.Quote{}, fmt.Errorf("%s: %w", t, ErrUnknownTarget)
	}
	b, err := r.dialer.Backend(ctx, ep.URL)
	if err != nil {
		return models.Quote{}, err
	}
	vals, err := evm.Call(ctx, b, evm.UniswapV2Pair, spec.Address, "getReserves")
	if err != nil {
		return models.Quote{}, err
	}
	if len(vals) < 2 {
		return models.Quote{}, fmt.Errorf("getReserves: unexpected result len %d", len(vals))
	}
	r0, ok0 := vals[0].(*big.Int)
	r1, ok1 := vals[1].(*big.Int)
	if !ok0 || !ok1 {
		return models.Quote{}, fmt.Errorf("getReserves: unexpected types %T, %T", vals[0], vals[1])
	}

	price, liquidity, err := priceFromReserves(spec, r0, r1)
	if err != nil {
		return models.Quote{}, fmt.Errorf("%s: %w", t, err)
	}
	return models.Quote{
		Chain:        t.Chain,
		Venue:        t.Venue,
		Pair:         t.Pair,
		Price:        price,
		LiquidityUSD: liquidity,
		CollectedAt:  r.now(),
		Endpoint:     ep.URL,
	}, nil
}

// priceFromReserves returns quote-per-base price and pool depth in USD.
func priceFromReserves(spec PoolSpec, r0, r1 *big.Int) (float64, float64, error) {
	baseRaw, quoteRaw := r1, r0
	if spec.BaseIsToken0 {
		baseRaw, quoteRaw = r0, r1
	}
	base := evm.Scale(baseRaw, spec.BaseDecimals)
	quote := evm.Scale(quoteRaw, spec.QuoteDecimals)
	if !base.IsPositive() || !quote.IsPositive() {
		return 0, 0, ErrEmptyPool
	}
	price := quote.DivRound(base, 18).InexactFloat64()
	liquidity := quote.Mul(decimal.NewFromInt(2)).InexactFloat64()
	return price, liquidity, nil
}
