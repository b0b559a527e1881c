// Package eth binds the ledger ports to the ExpenseTracker contract over JSON-RPC.
package eth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"splitledger/internal/ledger"
)

// transferGas is the fixed gas cost of a plain value transfer.
const transferGas = 21000

// Config holds the connection settings.
type Config struct {
	RPCURL          string
	Contract        common.Address
	PrivateKey      string // hex, optional; empty means read-only
	ExpectedChainID int64
}

// Backend is the part of an RPC client the ledger uses. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// Ledger is a contract-backed ledger.Ledger.
type Ledger struct {
	client   Backend
	contract *bind.BoundContract
	chainID  *big.Int
	key      *ecdsa.PrivateKey
	account  common.Address
	logger   *slog.Logger
}

var _ ledger.Ledger = (*Ledger)(nil)

// Dial connects to the RPC endpoint and binds the contract through New.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Ledger, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.RPCURL, err)
	}
	l, err := New(ctx, client, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	return l, nil
}

// New checks the chain id of backend and binds the contract. The ledger owns
// backend from here on and closes it in Close.
func New(ctx context.Context, backend Backend, cfg Config, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	parsed, err := abi.JSON(strings.NewReader(expenseTrackerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract ABI: %w", err)
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	if cfg.ExpectedChainID != 0 && chainID.Cmp(big.NewInt(cfg.ExpectedChainID)) != 0 {
		return nil, fmt.Errorf("%w: chain id %s, expected %d", ledger.ErrWrongNetwork, chainID, cfg.ExpectedChainID)
	}

	l := &Ledger{
		client:   backend,
		contract: bind.NewBoundContract(cfg.Contract, parsed, backend, backend, backend),
		chainID:  chainID,
		logger:   logger,
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("invalid private key: %w", err)
		}
		l.key = key
		l.account = crypto.PubkeyToAddress(key.PublicKey)
	}

	logger.Info("Connected to ledger",
		"chain_id", chainID.String(),
		"contract", cfg.Contract.Hex(),
		"account", l.account.Hex(),
		"read_only", l.key == nil)

	return l, nil
}

func (l *Ledger) Account() common.Address { return l.account }

func (l *Ledger) Close() error {
	l.client.Close()
	return nil
}

func (l *Ledger) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, From: l.account}
	if err := l.contract.Call(opts, &out, method, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

func (l *Ledger) callUint(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := l.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (l *Ledger) GetAllRegisteredPeople(ctx context.Context) ([]common.Address, error) {
	out, err := l.call(ctx, "getAllRegisteredPeople")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

func (l *Ledger) GetPerson(ctx context.Context, addr common.Address) (ledger.PersonRecord, error) {
	out, err := l.call(ctx, "getPerson", addr)
	if err != nil {
		return ledger.PersonRecord{}, err
	}
	return ledger.PersonRecord{
		Name:   *abi.ConvertType(out[0], new(string)).(*string),
		Wallet: *abi.ConvertType(out[1], new(common.Address)).(*common.Address),
	}, nil
}

func (l *Ledger) GetTotalRegisteredPeople(ctx context.Context) (uint64, error) {
	n, err := l.callUint(ctx, "getTotalRegisteredPeople")
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

func (l *Ledger) ExpenseCount(ctx context.Context) (uint64, error) {
	n, err := l.callUint(ctx, "expenseCount")
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

func (l *Ledger) GetExpenseBasicInfo(ctx context.Context, index uint64) (ledger.ExpenseInfo, error) {
	out, err := l.call(ctx, "getExpenseBasicInfo", new(big.Int).SetUint64(index))
	if err != nil {
		return ledger.ExpenseInfo{}, err
	}
	id := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	ts := *abi.ConvertType(out[2], new(*big.Int)).(**big.Int)
	return ledger.ExpenseInfo{
		ID:        id.Uint64(),
		Label:     *abi.ConvertType(out[1], new(string)).(*string),
		Timestamp: time.Unix(ts.Int64(), 0).UTC(),
	}, nil
}

func (l *Ledger) GetExpenseParticipants(ctx context.Context, index uint64) ([]common.Address, error) {
	out, err := l.call(ctx, "getExpenseParticipants", new(big.Int).SetUint64(index))
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address), nil
}

func (l *Ledger) GetAmountPaid(ctx context.Context, index uint64, addr common.Address) (*big.Int, error) {
	return l.callUint(ctx, "getAmountPaid", new(big.Int).SetUint64(index), addr)
}

func (l *Ledger) GetAmountOwed(ctx context.Context, index uint64, addr common.Address) (*big.Int, error) {
	return l.callUint(ctx, "getAmountOwed", new(big.Int).SetUint64(index), addr)
}

func (l *Ledger) GetNetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return l.callUint(ctx, "getNetBalance", addr)
}

func (l *Ledger) GetOverdueDebts(ctx context.Context, addr common.Address) (ledger.OverdueDebts, error) {
	out, err := l.call(ctx, "getOverdueDebts", addr)
	if err != nil {
		return ledger.OverdueDebts{}, err
	}
	ages := *abi.ConvertType(out[2], new([]*big.Int)).(*[]*big.Int)
	d := ledger.OverdueDebts{
		Creditors:  *abi.ConvertType(out[0], new([]common.Address)).(*[]common.Address),
		Amounts:    *abi.ConvertType(out[1], new([]*big.Int)).(*[]*big.Int),
		AgesInDays: make([]uint64, len(ages)),
	}
	for i, a := range ages {
		d.AgesInDays[i] = a.Uint64()
	}
	return d, nil
}

func (l *Ledger) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if l.key == nil {
		return nil, ledger.ErrReadOnly
	}
	opts, err := bind.NewKeyedTransactorWithChainID(l.key, l.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

func (l *Ledger) transact(ctx context.Context, method string, args ...interface{}) (ledger.PendingTx, error) {
	opts, err := l.transactOpts(ctx)
	if err != nil {
		return nil, err
	}
	tx, err := l.contract.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	l.logger.Info("Submitted transaction", "method", method, "tx_hash", tx.Hash().Hex())
	return &pendingTx{client: l.client, tx: tx}, nil
}

func (l *Ledger) RegisterPerson(ctx context.Context, name string) (ledger.PendingTx, error) {
	return l.transact(ctx, "registerPerson", name)
}

func (l *Ledger) UpdateName(ctx context.Context, name string) (ledger.PendingTx, error) {
	return l.transact(ctx, "updateName", name)
}

func (l *Ledger) AddExpense(ctx context.Context, label string, addrs []common.Address, paid, owed []*big.Int) (ledger.PendingTx, error) {
	return l.transact(ctx, "addExpense", label, addrs, paid, owed)
}

func (l *Ledger) Transfer(ctx context.Context, to common.Address, amount *big.Int) (ledger.PendingTx, error) {
	if l.key == nil {
		return nil, ledger.ErrReadOnly
	}
	nonce, err := l.client.PendingNonceAt(ctx, l.account)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int).Set(amount),
		Gas:      transferGas,
		GasPrice: gasPrice,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(l.chainID), l.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transfer: %w", err)
	}
	if err := l.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transfer: %w", err)
	}
	l.logger.Info("Submitted transfer", "to", to.Hex(), "value_wei", amount.String(), "tx_hash", signed.Hash().Hex())
	return &pendingTx{client: l.client, tx: signed}, nil
}

type pendingTx struct {
	client Backend
	tx     *types.Transaction
}

func (p *pendingTx) Hash() common.Hash { return p.tx.Hash() }

func (p *pendingTx) Wait(ctx context.Context) error {
	receipt, err := bind.WaitMined(ctx, p.client, p.tx)
	if err != nil {
		return fmt.Errorf("failed waiting for %s: %w", p.tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", ledger.ErrReverted, p.tx.Hash().Hex())
	}
	return nil
}
