package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"splitledger/internal/ledger/eth"
	"splitledger/internal/ledger/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.ReadOnly {
		config.PrivateKey = ""
	}

	switch config.Type {
	case EthBackend:
		return f.createEthBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createEthBackend(ctx context.Context, config Config) (*BackendResult, error) {
	l, err := eth.Dial(ctx, eth.Config{
		RPCURL:          config.RPCURL,
		Contract:        common.HexToAddress(config.Contract),
		PrivateKey:      config.PrivateKey,
		ExpectedChainID: config.ExpectedChainID,
	}, f.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect eth ledger: %w", err)
	}
	return &BackendResult{Ledger: l, Cleanup: l.Close}, nil
}

// createMemoryBackend builds a process-local chain. The acting account is
// derived from the private key, as on a real network.
func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	account, err := accountFromKey(config.PrivateKey)
	if err != nil {
		return nil, err
	}
	chain, err := memory.NewFromFile(config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize memory ledger: %w", err)
	}
	f.logger.Info("Memory ledger initialized",
		"seed_file", config.SeedFile,
		"account", account.Hex(),
		"read_only", account == (common.Address{}))

	l := chain.As(account)
	return &BackendResult{Ledger: l, Chain: chain, Cleanup: l.Close}, nil
}

func accountFromKey(hexKey string) (common.Address, error) {
	if hexKey == "" {
		return common.Address{}, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid private key: %w", err)
	}
	return crypto.PubkeyToAddress(key.PublicKey), nil
}
