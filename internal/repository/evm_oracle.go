package repository

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"ArbPull/internal/domain/models"
	"ArbPull/pkg/evm"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoFeed      = errors.New("no price feed configured")
	ErrStaleAnswer = errors.New("price feed answer is stale")
)

// ChainlinkOracle reads native-asset USD prices from Chainlink aggregators
// deployed on a single chain.
type ChainlinkOracle struct {
	dialer evm.Dialer
	chain  models.Chain
	feeds  map[string]common.Address
	maxAge time.Duration
	now    func() time.Time

	mu       sync.Mutex
	decimals map[common.Address]uint8
}

// NewChainlinkOracle keys feeds by upper-cased asset symbol. maxAge <= 0
// accepts answers of any age.
func NewChainlinkOracle(d evm.Dialer, chain models.Chain, feeds map[string]common.Address, maxAge time.Duration) *ChainlinkOracle {
	norm := make(map[string]common.Address, len(feeds))
	for asset, addr := range feeds {
		norm[strings.ToUpper(asset)] = addr
	}
	return &ChainlinkOracle{
		dialer:   d,
		chain:    chain,
		feeds:    norm,
		maxAge:   maxAge,
		now:      time.Now,
		decimals: make(map[common.Address]uint8),
	}
}

func (o *ChainlinkOracle) OracleChain() models.Chain { return o.chain }

func (o *ChainlinkOracle) ReadNativeUSD(ctx context.Context, ep models.Endpoint, asset string) (float64, error) {
	feed, ok := o.feeds[strings.ToUpper(asset)]
	if !ok {
		return 0, fmt.Errorf("%s: %w", asset, ErrNoFeed)
	}
	b, err := o.dialer.Backend(ctx, ep.URL)
	if err != nil {
		return 0, err
	}

	dec, err := o.feedDecimals(ctx, b, feed)
	if err != nil {
		return 0, err
	}

	vals, err := evm.Call(ctx, b, evm.AggregatorV3, feed, "latestRoundData")
	if err != nil {
		return 0, err
	}
	if len(vals) != 5 {
		return 0, fmt.Errorf("latestRoundData: unexpected result len %d", len(vals))
	}
	answer, ok := vals[1].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("latestRoundData: unexpected answer type %T", vals[1])
	}
	if answer.Sign() <= 0 {
		return 0, fmt.Errorf("latestRoundData: non-positive answer %s", answer)
	}
	if updated, ok := vals[3].(*big.Int); ok && o.maxAge > 0 {
		age := o.now().Sub(time.Unix(updated.Int64(), 0))
		if age > o.maxAge {
			return 0, fmt.Errorf("%s updated %s ago: %w", asset, age.Truncate(time.Second), ErrStaleAnswer)
		}
	}
	return evm.Scale(answer, int(dec)).InexactFloat64(), nil
}

func (o *ChainlinkOracle) feedDecimals(ctx context.Context, b evm.Backend, feed common.Address) (uint8, error) {
	o.mu.Lock()
	dec, ok := o.decimals[feed]
	o.mu.Unlock()
	if ok {
		return dec, nil
	}

	vals, err := evm.Call(ctx, b, evm.AggregatorV3, feed, "decimals")
	if err != nil {
		return 0, err
	}
	dec, ok = vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected type %T", vals[0])
	}

	o.mu.Lock()
	o.decimals[feed] = dec
	o.mu.Unlock()
	return dec, nil
}
