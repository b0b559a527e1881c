package backend

import (
	"context"

	"splitledger/internal/ledger"
	"splitledger/internal/ledger/memory"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the ledger and its cleanup function.
type BackendResult struct {
	Ledger ledger.Ledger
	// Chain is set for the memory backend only.
	Chain   *memory.Chain
	Cleanup CleanupFunc
}

// Factory creates ledgers based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for ledger creation
type Config struct {
	Type BackendType

	// ReadOnly ignores the private key and yields a ledger with no account.
	ReadOnly   bool
	PrivateKey string

	// Ethereum specific
	RPCURL          string
	Contract        string
	ExpectedChainID int64

	// Memory backend specific
	SeedFile string
}

// BackendType represents the type of ledger backend
type BackendType string

const (
	EthBackend    BackendType = "eth"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case EthBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
