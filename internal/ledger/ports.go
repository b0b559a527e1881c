// Package ledger defines the ports to the remote expense ledger.
//
// The ledger only exposes point lookups and a count; there is no bulk query.
// Mutations return a PendingTx that must be awaited before the result is
// visible to readers.
package ledger

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrReadOnly is returned by write calls on a ledger opened without a signing key.
	ErrReadOnly = errors.New("ledger is read-only: no signing key configured")
	// ErrReverted is returned by Wait when the transaction was mined but failed.
	ErrReverted = errors.New("transaction reverted")
	// ErrWrongNetwork is returned on connect when the chain id does not match.
	ErrWrongNetwork = errors.New("connected to the wrong network")
	// ErrIndexOutOfRange is returned for expense lookups past ExpenseCount.
	ErrIndexOutOfRange = errors.New("expense index out of range")
)

// PersonRecord is the raw getPerson result. A zero Wallet means the address
// was never registered.
type PersonRecord struct {
	Name   string
	Wallet common.Address
}

// Registered reports whether the record belongs to a registered person.
func (r PersonRecord) Registered() bool {
	return r.Wallet != (common.Address{})
}

// ExpenseInfo is the raw getExpenseBasicInfo result.
type ExpenseInfo struct {
	ID        uint64
	Label     string
	Timestamp time.Time
}

// OverdueDebts is the raw getOverdueDebts result. The three slices are
// index-aligned. Amounts is reported by the ledger but not relied upon.
type OverdueDebts struct {
	Creditors  []common.Address
	Amounts    []*big.Int
	AgesInDays []uint64
}

// Reader is the read-only query surface of the ledger.
type Reader interface {
	GetAllRegisteredPeople(ctx context.Context) ([]common.Address, error)
	GetPerson(ctx context.Context, addr common.Address) (PersonRecord, error)
	GetTotalRegisteredPeople(ctx context.Context) (uint64, error)
	ExpenseCount(ctx context.Context) (uint64, error)
	GetExpenseBasicInfo(ctx context.Context, index uint64) (ExpenseInfo, error)
	GetExpenseParticipants(ctx context.Context, index uint64) ([]common.Address, error)
	GetAmountPaid(ctx context.Context, index uint64, addr common.Address) (*big.Int, error)
	GetAmountOwed(ctx context.Context, index uint64, addr common.Address) (*big.Int, error)
	GetNetBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	GetOverdueDebts(ctx context.Context, addr common.Address) (OverdueDebts, error)
}

// PendingTx is a submitted transaction that has not been confirmed yet.
type PendingTx interface {
	Hash() common.Hash
	// Wait blocks until the transaction is mined. It returns ErrReverted
	// when the ledger rejected it.
	Wait(ctx context.Context) error
}

// Writer is the mutation surface. Every call submits one transaction signed by
// the ledger's account.
type Writer interface {
	RegisterPerson(ctx context.Context, name string) (PendingTx, error)
	UpdateName(ctx context.Context, name string) (PendingTx, error)
	AddExpense(ctx context.Context, label string, addrs []common.Address, paid, owed []*big.Int) (PendingTx, error)
	// Transfer sends value directly to an address. It does not go through
	// the contract.
	Transfer(ctx context.Context, to common.Address, amount *big.Int) (PendingTx, error)
}

// Ledger is a connected ledger bound to one acting account.
type Ledger interface {
	Reader
	Writer
	// Account is the acting identity. It is the zero address for read-only ledgers.
	Account() common.Address
	Close() error
}
