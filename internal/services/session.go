package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"splitledger/internal/amqp"
	"splitledger/internal/core"
	"splitledger/internal/ledger"
	"splitledger/internal/metrics"
)

// EventPublisher announces confirmed ledger mutations.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event amqp.LedgerEvent) error
}

// SettlementJournal persists settlement attempts.
type SettlementJournal interface {
	RecordSettlementAttempt(ctx context.Context, attempt core.SettlementAttempt) error
}

// SessionConfig holds configuration for a session
type SessionConfig struct {
	Reader ReaderConfig
	// TxWaitTimeout bounds each transaction wait (default: 0, no limit)
	TxWaitTimeout time.Duration
}

// State is what a session knows about the ledger for its account.
type State struct {
	Connected       bool
	Account         common.Address
	Registered      bool
	Name            string
	People          []core.Person
	Expenses        []core.Expense
	TotalRegistered uint64
	LoadedAt        time.Time
}

// DisplayName returns the registered name of addr, or its short form.
func (st State) DisplayName(addr common.Address) string {
	for _, p := range st.People {
		if p.Address == addr && p.Name != "" {
			return p.Name
		}
	}
	return core.ShortAddress(addr)
}

// Session holds the state of one connected identity. All derived state is
// rebuilt by Reload; nothing else writes it.
type Session struct {
	mu         sync.RWMutex
	ledger     ledger.Ledger
	state      State
	generation uint64

	guard     *TxGuard
	config    SessionConfig
	publisher EventPublisher
	journal   SettlementJournal
	logger    *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

func WithPublisher(p EventPublisher) SessionOption {
	return func(s *Session) { s.publisher = p }
}

func WithJournal(j SettlementJournal) SessionOption {
	return func(s *Session) { s.journal = j }
}

func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// WithGuard shares an in-flight flag with other sessions of the process.
func WithGuard(g *TxGuard) SessionOption {
	return func(s *Session) { s.guard = g }
}

// NewSession creates a disconnected session.
func NewSession(config SessionConfig, opts ...SessionOption) *Session {
	s := &Session{
		config: config,
		guard:  &TxGuard{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnAccountChanged switches the session to l and reloads from scratch.
// A nil ledger disconnects.
func (s *Session) OnAccountChanged(ctx context.Context, l ledger.Ledger) error {
	s.mu.Lock()
	s.ledger = l
	s.generation++
	s.state = State{}
	if l != nil {
		s.state.Connected = true
		s.state.Account = l.Account()
	}
	s.mu.Unlock()

	if l == nil {
		s.logger.InfoContext(ctx, "Session disconnected")
		return nil
	}
	s.logger.InfoContext(ctx, "Account changed", "account", l.Account().Hex())
	return s.Reload(ctx)
}

// Disconnect clears the identity and all derived state.
func (s *Session) Disconnect() {
	_ = s.OnAccountChanged(context.Background(), nil)
}

// State returns a copy of the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.state
	st.People = append([]core.Person(nil), s.state.People...)
	st.Expenses = append([]core.Expense(nil), s.state.Expenses...)
	return st
}

// Busy reports whether a mutation is in flight.
func (s *Session) Busy() bool {
	return s.guard.Busy()
}

// Reload re-reads registration, people and expenses. Without a ledger it is a
// no-op. A reload overtaken by an account change is discarded.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.RLock()
	l, gen := s.ledger, s.generation
	s.mu.RUnlock()
	if l == nil {
		return nil
	}

	next := State{Connected: true, Account: l.Account()}
	if next.Account != (common.Address{}) {
		rec, err := l.GetPerson(ctx, next.Account)
		if err != nil {
			return fmt.Errorf("check registration: %w", err)
		}
		next.Registered = rec.Registered()
		next.Name = rec.Name
	}

	total, err := l.GetTotalRegisteredPeople(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read registered people count", "error", err)
	}
	next.TotalRegistered = total

	if next.Registered {
		reader := NewLedgerReader(l, s.config.Reader, s.logger)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			people, err := reader.LoadPeople(gctx)
			next.People = people
			return err
		})
		g.Go(func() error {
			expenses, err := reader.LoadExpenses(gctx)
			next.Expenses = expenses
			return err
		})
		if err := g.Wait(); err != nil {
			return fmt.Errorf("reload ledger: %w", err)
		}
	}
	next.LoadedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	s.state = next
	return nil
}

func (s *Session) connected() (ledger.Ledger, State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ledger == nil || s.state.Account == (common.Address{}) {
		return nil, State{}, ErrNotConnected
	}
	return s.ledger, s.state, nil
}

func (s *Session) registered() (ledger.Ledger, State, error) {
	l, st, err := s.connected()
	if err != nil {
		return nil, st, err
	}
	if !st.Registered {
		return nil, st, ErrNotRegistered
	}
	return l, st, nil
}

// Register binds name to the session account.
func (s *Session) Register(ctx context.Context, name string) error {
	name, err := core.NormalizeName(name)
	if err != nil {
		return err
	}
	l, st, err := s.connected()
	if err != nil {
		return err
	}
	if st.Registered {
		return ErrAlreadyRegistered
	}
	return s.mutate(ctx, l, "register", amqp.EventRegistered, func(ctx context.Context) (ledger.PendingTx, error) {
		return l.RegisterPerson(ctx, name)
	})
}

// UpdateName renames the session account. An identical name is a no-op.
func (s *Session) UpdateName(ctx context.Context, name string) error {
	name, err := core.NormalizeName(name)
	if err != nil {
		return err
	}
	l, st, err := s.registered()
	if err != nil {
		return err
	}
	if name == st.Name {
		return nil
	}
	return s.mutate(ctx, l, "update_name", amqp.EventNameUpdated, func(ctx context.Context) (ledger.PendingTx, error) {
		return l.UpdateName(ctx, name)
	})
}

// AddExpense validates the draft and records it on the ledger.
func (s *Session) AddExpense(ctx context.Context, draft core.ExpenseDraft) error {
	if err := draft.Validate(); err != nil {
		return err
	}
	l, _, err := s.registered()
	if err != nil {
		return err
	}
	label := strings.TrimSpace(draft.Label)
	addrs, paid, owed := draft.Arrays()
	return s.mutate(ctx, l, "add_expense", amqp.EventExpenseAdded, func(ctx context.Context) (ledger.PendingTx, error) {
		return l.AddExpense(ctx, label, addrs, paid, owed)
	})
}

// CheckOverdue returns the session account's debts split into shown and actionable.
func (s *Session) CheckOverdue(ctx context.Context) (OverdueReport, error) {
	l, st, err := s.registered()
	if err != nil {
		return OverdueReport{}, err
	}
	debts, err := NewBalanceAggregator(l).OverdueDebts(ctx, st.Account)
	if err != nil {
		return OverdueReport{}, err
	}
	return DetectOverdue(debts), nil
}

// Settle runs the settlement loop for the session account.
func (s *Session) Settle(ctx context.Context, confirm Confirmer, reporters ...Reporter) (SettlementReport, error) {
	l, _, err := s.registered()
	if err != nil {
		return SettlementReport{}, err
	}

	opts := []SettlerOption{
		WithRefresh(s.Reload),
		WithSettlerLogger(s.logger),
		WithWaitTimeout(s.config.TxWaitTimeout),
		WithReporter(ReporterFunc(func(ctx context.Context, a core.SettlementAttempt) {
			if s.journal != nil {
				if err := s.journal.RecordSettlementAttempt(ctx, a); err != nil {
					s.logger.WarnContext(ctx, "Failed to journal settlement attempt", "run_id", a.RunID, "error", err)
				}
			}
			if a.State == core.StateConfirmed {
				s.publish(ctx, amqp.EventSettlement, a.Debtor, common.HexToHash(a.TxHash))
			}
		})),
	}
	for _, r := range reporters {
		opts = append(opts, WithReporter(r))
	}
	return NewSettler(l, s.guard, opts...).Run(ctx, confirm)
}

// mutate submits one transaction under the in-flight flag, waits for it,
// announces it and reloads.
func (s *Session) mutate(ctx context.Context, l ledger.Ledger, op string, kind amqp.EventKind, submit func(context.Context) (ledger.PendingTx, error)) error {
	if !s.guard.TryAcquire() {
		return ErrTxPending
	}
	tx, err := s.submitAndWait(ctx, submit)
	s.guard.Release()
	metrics.RecordWrite(op, err)
	if err != nil {
		s.logger.WarnContext(ctx, "Ledger write failed", "operation", op, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.logger.InfoContext(ctx, "Ledger write confirmed", "operation", op, "tx_hash", tx.Hash().Hex())

	s.publish(ctx, kind, l.Account(), tx.Hash())
	if err := s.Reload(ctx); err != nil {
		s.logger.WarnContext(ctx, "Reload after write failed", "operation", op, "error", err)
	}
	return nil
}

func (s *Session) submitAndWait(ctx context.Context, submit func(context.Context) (ledger.PendingTx, error)) (ledger.PendingTx, error) {
	tx, err := submit(ctx)
	if err != nil {
		return nil, err
	}
	waitCtx := ctx
	if s.config.TxWaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.config.TxWaitTimeout)
		defer cancel()
	}
	if err := tx.Wait(waitCtx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Session) publish(ctx context.Context, kind amqp.EventKind, account common.Address, hash common.Hash) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerEvent(ctx, *amqp.NewLedgerEvent(kind, account, hash)); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish ledger event", "kind", kind, "error", err)
	}
}
