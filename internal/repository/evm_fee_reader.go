package repository

import (
	"context"
	"fmt"
	"time"

	"ArbPull/internal/domain/models"
	"ArbPull/pkg/evm"
)

// EVMFeeReader reads eth_gasPrice. NativeUSD is filled in by the collector.
type EVMFeeReader struct {
	dialer evm.Dialer
	now    func() time.Time
}

func NewEVMFeeReader(d evm.Dialer) *EVMFeeReader {
	return &EVMFeeReader{dialer: d, now: time.Now}
}

func (r *EVMFeeReader) ReadFeeLevel(ctx context.Context, ep models.Endpoint, chain models.Chain) (models.FeeEstimate, error) {
	b, err := r.dialer.Backend(ctx, ep.URL)
	if err != nil {
		return models.FeeEstimate{}, err
	}
	wei, err := b.SuggestGasPrice(ctx)
	if err != nil {
		return models.FeeEstimate{}, fmt.Errorf("eth_gasPrice: %w", err)
	}
	if wei == nil || wei.Sign() <= 0 {
		return models.FeeEstimate{}, fmt.Errorf("eth_gasPrice: non-positive gas price")
	}
	return models.FeeEstimate{
		Chain:        chain,
		GasPriceGwei: evm.WeiToGwei(wei),
		CollectedAt:  r.now(),
		Endpoint:     ep.URL,
	}, nil
}
