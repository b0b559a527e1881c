package services

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"splitledger/internal/amqp"
	"splitledger/internal/core"
	"splitledger/internal/ledger"
	"splitledger/internal/ledger/memory"
)

var (
	alice = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000002")
	carol = common.HexToAddress("0x0000000000000000000000000000000000000003")
	dave  = common.HexToAddress("0x0000000000000000000000000000000000000004")
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newChain(opts ...memory.Option) *memory.Chain {
	return memory.NewChain(append([]memory.Option{memory.WithClock(func() time.Time { return testNow })}, opts...)...)
}

func register(t *testing.T, c *memory.Chain, addr common.Address, name string) {
	t.Helper()
	ctx := context.Background()
	tx, err := c.As(addr).RegisterPerson(ctx, name)
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	if err := tx.Wait(ctx); err != nil {
		t.Fatalf("register %s: wait: %v", name, err)
	}
}

func addExpense(t *testing.T, c *memory.Chain, from common.Address, label string, addrs []common.Address, paid, owed []*big.Int) {
	t.Helper()
	ctx := context.Background()
	tx, err := c.As(from).AddExpense(ctx, label, addrs, paid, owed)
	if err != nil {
		t.Fatalf("add expense %q: %v", label, err)
	}
	if err := tx.Wait(ctx); err != nil {
		t.Fatalf("add expense %q: wait: %v", label, err)
	}
}

// debtorChain registers bob as owing alice, carol and dave (in that order),
// with every debt older than the overdue threshold.
func debtorChain(t *testing.T, opts ...memory.Option) *memory.Chain {
	t.Helper()
	c := newChain(opts...)
	register(t, c, alice, "Alice")
	register(t, c, bob, "Bob")
	register(t, c, carol, "Carol")
	register(t, c, dave, "Dave")
	for _, cred := range []common.Address{alice, carol, dave} {
		addExpense(t, c, cred, "lunch", []common.Address{cred, bob},
			[]*big.Int{ether(2), big.NewInt(0)}, []*big.Int{ether(1), ether(1)})
	}
	c.Advance(10 * 24 * time.Hour)
	return c
}

// stubReader overrides selected reads of an underlying ledger.
type stubReader struct {
	ledger.Reader
	people  []common.Address
	overdue *ledger.OverdueDebts
	net     *big.Int
}

func (s stubReader) GetAllRegisteredPeople(ctx context.Context) ([]common.Address, error) {
	if s.people != nil {
		return s.people, nil
	}
	return s.Reader.GetAllRegisteredPeople(ctx)
}

func (s stubReader) GetOverdueDebts(ctx context.Context, addr common.Address) (ledger.OverdueDebts, error) {
	if s.overdue != nil {
		return *s.overdue, nil
	}
	return s.Reader.GetOverdueDebts(ctx, addr)
}

func (s stubReader) GetNetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	if s.net != nil {
		return new(big.Int).Set(s.net), nil
	}
	return s.Reader.GetNetBalance(ctx, addr)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.LedgerEvent
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, e amqp.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) kinds() []amqp.EventKind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.EventKind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

type recordingJournal struct {
	mu       sync.Mutex
	attempts []core.SettlementAttempt
}

func (j *recordingJournal) RecordSettlementAttempt(_ context.Context, a core.SettlementAttempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.attempts = append(j.attempts, a)
	return nil
}

func (j *recordingJournal) states() []core.SettlementState {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]core.SettlementState, len(j.attempts))
	for i, a := range j.attempts {
		out[i] = a.State
	}
	return out
}
