package repository

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"ArbPull/internal/domain/models"
	domrepo "ArbPull/internal/domain/repository"
	"ArbPull/pkg/evm"
	applogger "ArbPull/pkg/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrForeignDestination = errors.New("destination is not the configured owner")
	ErrNoNativePrice      = errors.New("no native price to convert disbursement")
)

// NativePricer returns the last known USD price of a native asset.
type NativePricer interface {
	Lookup(asset string) (usd float64, fresh bool)
}

// TxBackend is what the treasury transactor needs from an RPC client.
type TxBackend interface {
	bind.ContractBackend
	bind.DeployBackend
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

type TreasuryContractConfig struct {
	Contract       string
	Owner          string
	PrivateKey     string
	ChainID        int64
	Native         string
	ReceiptTimeout time.Duration
}

// TreasuryContract wires profit to the owner through the treasury
// contract's wire(address,uint256), signing with an EIP-155 transactor.
type TreasuryContract struct {
	backend  TxBackend
	contract *bind.BoundContract
	address  common.Address
	owner    common.Address
	key      *ecdsa.PrivateKey
	chainID  *big.Int
	native   string
	prices   NativePricer
	timeout  time.Duration
	l        *applogger.Logger
}

func NewTreasuryContract(backend TxBackend, cfg TreasuryContractConfig, prices NativePricer, l *applogger.Logger) (*TreasuryContract, error) {
	addr, err := evm.ParseAddress(cfg.Contract)
	if err != nil {
		return nil, fmt.Errorf("treasury contract: %w", err)
	}
	owner, err := evm.ParseAddress(cfg.Owner)
	if err != nil {
		return nil, fmt.Errorf("treasury owner: %w", err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("treasury private key: %w", err)
	}
	if cfg.ChainID <= 0 {
		return nil, fmt.Errorf("treasury chain id must be positive")
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = 6 * time.Second
	}
	if cfg.Native == "" {
		cfg.Native = "ETH"
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &TreasuryContract{
		backend:  backend,
		contract: bind.NewBoundContract(addr, evm.Treasury, backend, backend, backend),
		address:  addr,
		owner:    owner,
		key:      key,
		chainID:  big.NewInt(cfg.ChainID),
		native:   strings.ToUpper(cfg.Native),
		prices:   prices,
		timeout:  cfg.ReceiptTimeout,
		l:        l,
	}, nil
}

func (t *TreasuryContract) Destination() string { return t.owner.Hex() }

// Signer is the address paying gas for wire transactions.
func (t *TreasuryContract) Signer() common.Address {
	return crypto.PubkeyToAddress(t.key.PublicKey)
}

// Disburse sends the wire and waits up to the receipt timeout for it to be
// mined. When the transaction was sent but not mined in time the hash is
// returned with the error; a revert wraps ErrWireReverted.
func (t *TreasuryContract) Disburse(ctx context.Context, amountUSD decimal.Decimal, destination string) (string, error) {
	to, err := evm.ParseAddress(destination)
	if err != nil {
		return "", err
	}
	if to != t.owner {
		return "", fmt.Errorf("%s: %w", to.Hex(), ErrForeignDestination)
	}
	wei, err := t.toWei(amountUSD)
	if err != nil {
		return "", err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(t.key, t.chainID)
	if err != nil {
		return "", fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := t.contract.Transact(opts, "wire", to, wei)
	if err != nil {
		return "", fmt.Errorf("send wire: %w", err)
	}
	hash := tx.Hash().Hex()
	t.l.Info("treasury wire sent",
		applogger.String("tx", hash),
		applogger.String("amount_usd", amountUSD.String()),
		applogger.String("wei", wei.String()),
	)

	waitCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, t.backend, tx)
	if err != nil {
		return hash, fmt.Errorf("wait wire %s: %w", hash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return hash, fmt.Errorf("wire %s in block %v: %w", hash, receipt.BlockNumber, domrepo.ErrWireReverted)
	}
	return hash, nil
}

// WireStatus looks up a wire sent by an earlier tick.
func (t *TreasuryContract) WireStatus(ctx context.Context, txHash string) (models.WireStatus, error) {
	hash := common.HexToHash(txHash)
	receipt, err := t.backend.TransactionReceipt(ctx, hash)
	switch {
	case err == nil && receipt.Status == types.ReceiptStatusSuccessful:
		return models.WireMined, nil
	case err == nil:
		return models.WireReverted, nil
	case !errors.Is(err, ethereum.NotFound):
		return "", fmt.Errorf("wire receipt %s: %w", txHash, err)
	}

	_, _, err = t.backend.TransactionByHash(ctx, hash)
	switch {
	case err == nil:
		return models.WirePending, nil
	case errors.Is(err, ethereum.NotFound):
		return models.WireNotFound, nil
	}
	return "", fmt.Errorf("wire lookup %s: %w", txHash, err)
}

func (t *TreasuryContract) toWei(amountUSD decimal.Decimal) (*big.Int, error) {
	usd, fresh := t.prices.Lookup(t.native)
	if usd <= 0 {
		return nil, fmt.Errorf("%s: %w", t.native, ErrNoNativePrice)
	}
	if !fresh {
		t.l.Warn("converting disbursement with a fallback native price",
			applogger.String("asset", t.native),
			applogger.Float64("usd", usd),
		)
	}
	return evm.USDToWei(amountUSD, decimal.NewFromFloat(usd))
}

// DryRunDisburser confirms every disbursement without sending anything.
type DryRunDisburser struct {
	destination string
	l           *applogger.Logger
}

func NewDryRunDisburser(destination string, l *applogger.Logger) *DryRunDisburser {
	if l == nil {
		l = applogger.Nop()
	}
	return &DryRunDisburser{destination: destination, l: l}
}

func (d *DryRunDisburser) Destination() string { return d.destination }

// WireStatus reports every dry-run wire as mined.
func (d *DryRunDisburser) WireStatus(context.Context, string) (models.WireStatus, error) {
	return models.WireMined, nil
}

func (d *DryRunDisburser) Disburse(_ context.Context, amountUSD decimal.Decimal, destination string) (string, error) {
	hash := "dryrun-" + uuid.NewString()
	d.l.Info("dry-run disbursement",
		applogger.String("amount_usd", amountUSD.String()),
		applogger.String("destination", destination),
		applogger.String("tx", hash),
	)
	return hash, nil
}
