package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"splitledger/internal/core"
	"splitledger/internal/ledger"
	"splitledger/internal/metrics"
)

// Confirmer asks the user whether a debt should be paid now.
type Confirmer interface {
	Confirm(ctx context.Context, debt core.Debt) (bool, error)
}

// ConfirmerFunc adapts a function to Confirmer.
type ConfirmerFunc func(ctx context.Context, debt core.Debt) (bool, error)

func (f ConfirmerFunc) Confirm(ctx context.Context, debt core.Debt) (bool, error) {
	return f(ctx, debt)
}

// Reporter observes every state transition of a settlement run.
type Reporter interface {
	Report(ctx context.Context, attempt core.SettlementAttempt)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, attempt core.SettlementAttempt)

func (f ReporterFunc) Report(ctx context.Context, attempt core.SettlementAttempt) {
	f(ctx, attempt)
}

// SettlementReport is the outcome of one Run. Attempts are in the order the
// debts were visited and hold their final state.
type SettlementReport struct {
	RunID    string
	Attempts []core.SettlementAttempt
}

func (r SettlementReport) count(state core.SettlementState) int {
	n := 0
	for _, a := range r.Attempts {
		if a.State == state {
			n++
		}
	}
	return n
}

func (r SettlementReport) Confirmed() int { return r.count(core.StateConfirmed) }
func (r SettlementReport) Failed() int    { return r.count(core.StateFailed) }
func (r SettlementReport) Skipped() int   { return r.count(core.StateSkipped) }

// Settler walks the actionable debts of the acting account one at a time,
// asking for confirmation and paying each confirmed debt with a direct
// transfer before moving on.
type Settler struct {
	ledger     ledger.Ledger
	aggregator *BalanceAggregator
	guard      *TxGuard
	reporters  []Reporter
	refresh    func(ctx context.Context) error
	logger     *slog.Logger
	now        func() time.Time
	waitLimit  time.Duration
}

// SettlerOption configures a Settler.
type SettlerOption func(*Settler)

// WithReporter adds an observer of state transitions.
func WithReporter(r Reporter) SettlerOption {
	return func(s *Settler) { s.reporters = append(s.reporters, r) }
}

// WithRefresh sets a hook run after each confirmed transfer, before the
// overdue list is recomputed.
func WithRefresh(fn func(ctx context.Context) error) SettlerOption {
	return func(s *Settler) { s.refresh = fn }
}

// WithSettlerLogger sets the logger.
func WithSettlerLogger(l *slog.Logger) SettlerOption {
	return func(s *Settler) { s.logger = l }
}

// WithClock sets the time source for attempt timestamps.
func WithClock(now func() time.Time) SettlerOption {
	return func(s *Settler) { s.now = now }
}

// WithWaitTimeout bounds how long a single transfer is awaited. Zero waits forever.
func WithWaitTimeout(d time.Duration) SettlerOption {
	return func(s *Settler) { s.waitLimit = d }
}

// NewSettler creates a settler. A nil guard gets a private one.
func NewSettler(l ledger.Ledger, guard *TxGuard, opts ...SettlerOption) *Settler {
	if guard == nil {
		guard = &TxGuard{}
	}
	s := &Settler{
		ledger:     l,
		aggregator: NewBalanceAggregator(l),
		guard:      guard,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Actionable computes the overdue report for the acting account.
func (s *Settler) Actionable(ctx context.Context) (OverdueReport, error) {
	if s.ledger == nil || s.ledger.Account() == (common.Address{}) {
		return OverdueReport{}, ErrNotConnected
	}
	debts, err := s.aggregator.OverdueDebts(ctx, s.ledger.Account())
	if err != nil {
		return OverdueReport{}, err
	}
	return DetectOverdue(debts), nil
}

// Run settles actionable debts sequentially.
//
// A declined debt is skipped. A failed transfer is reported and the run moves
// on to the next debt. After a confirmed transfer the overdue list is fetched
// again and the run continues over the fresh list; creditors already visited
// in this run are not offered again. A Confirmer error stops the run.
func (s *Settler) Run(ctx context.Context, confirm Confirmer) (SettlementReport, error) {
	report := SettlementReport{RunID: uuid.NewString()}

	overdue, err := s.Actionable(ctx)
	if err != nil {
		return report, err
	}
	queue := overdue.Actionable
	handled := make(map[common.Address]struct{}, len(queue))

	for i := 0; i < len(queue); i++ {
		debt := queue[i]
		if _, done := handled[debt.Creditor]; done {
			continue
		}
		handled[debt.Creditor] = struct{}{}

		attempt := core.SettlementAttempt{
			RunID:     report.RunID,
			Debtor:    s.ledger.Account(),
			Creditor:  debt.Creditor,
			Amount:    core.AbsWei(debt.Amount),
			AgeInDays: debt.AgeInDays,
			State:     core.StatePending,
			StartedAt: s.now(),
		}
		s.transition(ctx, &attempt, core.StateConfirming, nil)

		ok, err := confirm.Confirm(ctx, debt)
		if err != nil {
			s.transition(ctx, &attempt, core.StateFailed, err)
			report.Attempts = append(report.Attempts, attempt)
			return report, fmt.Errorf("settlement confirmation: %w", err)
		}
		if !ok {
			s.transition(ctx, &attempt, core.StateSkipped, nil)
			report.Attempts = append(report.Attempts, attempt)
			continue
		}

		if err := s.pay(ctx, debt, &attempt); err != nil {
			s.transition(ctx, &attempt, core.StateFailed, err)
			report.Attempts = append(report.Attempts, attempt)
			continue
		}
		s.transition(ctx, &attempt, core.StateConfirmed, nil)
		report.Attempts = append(report.Attempts, attempt)

		fresh, err := s.recompute(ctx)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to recompute overdue debts, continuing with previous list",
				"run_id", report.RunID, "error", err)
			continue
		}
		queue, i = fresh, -1
	}
	return report, nil
}

func (s *Settler) recompute(ctx context.Context) ([]core.Debt, error) {
	if s.refresh != nil {
		if err := s.refresh(ctx); err != nil {
			s.logger.WarnContext(ctx, "Refresh after settlement failed", "error", err)
		}
	}
	overdue, err := s.Actionable(ctx)
	if err != nil {
		return nil, err
	}
	return overdue.Actionable, nil
}

// pay submits and awaits one transfer while holding the in-flight flag.
func (s *Settler) pay(ctx context.Context, debt core.Debt, attempt *core.SettlementAttempt) error {
	if debt.Amount == nil || debt.Amount.Sign() <= 0 {
		return ErrNothingToSettle
	}
	return s.guard.Do(func() error {
		s.transition(ctx, attempt, core.StateSubmitting, nil)
		tx, err := s.ledger.Transfer(ctx, debt.Creditor, debt.Amount)
		metrics.RecordWrite("transfer", err)
		if err != nil {
			return fmt.Errorf("submit transfer: %w", err)
		}
		attempt.TxHash = tx.Hash().Hex()

		waitCtx := ctx
		if s.waitLimit > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, s.waitLimit)
			defer cancel()
		}
		if err := tx.Wait(waitCtx); err != nil {
			return fmt.Errorf("await transfer: %w", err)
		}
		return nil
	})
}

func (s *Settler) transition(ctx context.Context, attempt *core.SettlementAttempt, state core.SettlementState, err error) {
	attempt.State = state
	attempt.UpdatedAt = s.now()
	if err != nil {
		attempt.Error = err.Error()
	}
	if state.Terminal() {
		metrics.RecordSettlement(string(state))
		s.logger.InfoContext(ctx, "Settlement attempt finished",
			"run_id", attempt.RunID,
			"creditor", attempt.Creditor.Hex(),
			"amount_eth", core.FormatEther(attempt.Amount),
			"state", state,
			"tx_hash", attempt.TxHash,
			"error", attempt.Error)
	}
	for _, r := range s.reporters {
		r.Report(ctx, *attempt)
	}
}
