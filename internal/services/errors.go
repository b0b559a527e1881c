package services

import (
	"errors"
	"sync/atomic"
)

var (
	ErrNotConnected      = errors.New("no ledger connection: connect a wallet first")
	ErrNotRegistered     = errors.New("account is not registered")
	ErrAlreadyRegistered = errors.New("account is already registered")
	ErrTxPending         = errors.New("another transaction is still pending")
	ErrNothingToSettle   = errors.New("debt amount is zero")
)

// TxGuard is the process-wide in-flight flag. At most one ledger mutation may
// be outstanding at a time.
type TxGuard struct {
	busy atomic.Bool
}

// TryAcquire claims the flag. It returns false when a mutation is already in flight.
func (g *TxGuard) TryAcquire() bool {
	return g.busy.CompareAndSwap(false, true)
}

// Release clears the flag.
func (g *TxGuard) Release() {
	g.busy.Store(false)
}

// Busy reports whether a mutation is in flight.
func (g *TxGuard) Busy() bool {
	return g.busy.Load()
}

// Do runs fn while holding the flag, or fails with ErrTxPending.
func (g *TxGuard) Do(fn func() error) error {
	if !g.TryAcquire() {
		return ErrTxPending
	}
	defer g.Release()
	return fn()
}
