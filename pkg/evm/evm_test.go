package evm

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type callerFunc func(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error)

func (f callerFunc) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	return f(ctx, msg, block)
}

func TestCallGetReserves(t *testing.T) {
	pair, err := ParseAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")
	require.NoError(t, err)

	out, err := UniswapV2Pair.Methods["getReserves"].Outputs.Pack(big.NewInt(1000), big.NewInt(2000), uint32(7))
	require.NoError(t, err)

	var seen ethereum.CallMsg
	caller := callerFunc(func(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
		seen = msg
		return out, nil
	})

	vals, err := Call(context.Background(), caller, UniswapV2Pair, pair, "getReserves")
	require.NoError(t, err)
	require.Len(t, vals, 3)
	assert.Equal(t, int64(1000), vals[0].(*big.Int).Int64())
	assert.Equal(t, int64(2000), vals[1].(*big.Int).Int64())
	assert.Equal(t, uint32(7), vals[2].(uint32))

	require.NotNil(t, seen.To)
	assert.Equal(t, pair, *seen.To)
	assert.Equal(t, UniswapV2Pair.Methods["getReserves"].ID, seen.Data[:4])
}

func TestCallErrors(t *testing.T) {
	pair, _ := ParseAddress("0xB4e16d0168e52d35CaCD2c6185b44281Ec28C9Dc")

	failing := callerFunc(func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
		return nil, errors.New("execution reverted")
	})
	_, err := Call(context.Background(), failing, UniswapV2Pair, pair, "getReserves")
	assert.ErrorContains(t, err, "execution reverted")

	empty := callerFunc(func(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
		return nil, nil
	})
	_, err = Call(context.Background(), empty, UniswapV2Pair, pair, "getReserves")
	assert.ErrorContains(t, err, "empty result")

	_, err = Call(context.Background(), empty, UniswapV2Pair, pair, "nope")
	assert.ErrorContains(t, err, "pack nope")
}

func TestTreasuryWirePacks(t *testing.T) {
	to, _ := ParseAddress("0x000000000000000000000000000000000000dEaD")
	data, err := Treasury.Pack("wire", to, big.NewInt(1))
	require.NoError(t, err)
	assert.Len(t, data, 4+32+32)
}

func TestUnits(t *testing.T) {
	assert.InDelta(t, 1.5, WeiToGwei(big.NewInt(1_500_000_000)), 1e-12)
	assert.Equal(t, 0.0, WeiToGwei(nil))

	assert.True(t, Scale(big.NewInt(1_234_567), 6).Equal(decimal.RequireFromString("1.234567")))
	assert.True(t, Scale(nil, 6).IsZero())

	wei, err := USDToWei(decimal.NewFromInt(2), decimal.NewFromInt(2000))
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000", wei.String())

	_, err = USDToWei(decimal.NewFromInt(2), decimal.Zero)
	assert.Error(t, err)
	_, err = USDToWei(decimal.NewFromInt(-1), decimal.NewFromInt(2000))
	assert.Error(t, err)
}

func TestParseAddress(t *testing.T) {
	_, err := ParseAddress("not-an-address")
	assert.Error(t, err)

	a, err := ParseAddress(" 0x000000000000000000000000000000000000dEaD ")
	require.NoError(t, err)
	assert.Equal(t, "0x000000000000000000000000000000000000dEaD", a.Hex())
}

func TestPoolRejectsEmptyURL(t *testing.T) {
	p := NewPool()
	_, err := p.Client(context.Background(), "  ")
	assert.Error(t, err)
	assert.Equal(t, 0, p.Len())
	p.Close()
}
