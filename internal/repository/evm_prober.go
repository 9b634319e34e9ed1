package repository

import (
	"context"
	"fmt"

	"ArbPull/internal/domain/models"
	"ArbPull/pkg/evm"
)

// EVMProber pings an endpoint with eth_blockNumber.
type EVMProber struct {
	dialer evm.Dialer
}

func NewEVMProber(d evm.Dialer) *EVMProber {
	return &EVMProber{dialer: d}
}

func (p *EVMProber) Ping(ctx context.Context, ep models.Endpoint) (uint64, error) {
	b, err := p.dialer.Backend(ctx, ep.URL)
	if err != nil {
		return 0, err
	}
	n, err := b.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("eth_blockNumber: endpoint reports block 0")
	}
	return n, nil
}
