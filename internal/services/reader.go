package services

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"splitledger/internal/core"
	"splitledger/internal/ledger"
	"splitledger/internal/metrics"
)

// ReaderConfig holds configuration for the ledger reader
type ReaderConfig struct {
	// Concurrency caps parallel point queries (default: 8)
	Concurrency int
}

// DefaultReaderConfig returns sensible defaults
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{Concurrency: 8}
}

// LedgerReader rebuilds people and expenses from per-record ledger queries.
//
// A failure to list people or count expenses fails the whole read. Failures of
// individual records do not: a person that cannot be fetched is skipped, an
// expense that cannot be fetched is skipped, and a participant whose amounts
// cannot be fetched is kept with zero amounts and marked Degraded.
type LedgerReader struct {
	ledger ledger.Reader
	config ReaderConfig
	logger *slog.Logger
}

// NewLedgerReader creates a reader. A nil ledger yields empty results.
func NewLedgerReader(r ledger.Reader, config ReaderConfig, logger *slog.Logger) *LedgerReader {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultReaderConfig().Concurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerReader{ledger: r, config: config, logger: logger}
}

// LoadPeople returns every registered person in ledger order, one per address.
func (r *LedgerReader) LoadPeople(ctx context.Context) ([]core.Person, error) {
	if r.ledger == nil {
		return nil, nil
	}
	start := time.Now()
	defer func() { metrics.ObserveRead("load_people", time.Since(start)) }()

	addrs, err := r.ledger.GetAllRegisteredPeople(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list registered people: %w", err)
	}
	addrs = uniqueAddresses(addrs)

	results := make([]*core.Person, len(addrs))
	var g errgroup.Group
	g.SetLimit(r.config.Concurrency)
	for i, addr := range addrs {
		g.Go(func() error {
			p, err := r.loadPerson(ctx, addr)
			if err != nil {
				metrics.RecordDegraded(metrics.DegradedPerson)
				r.logger.WarnContext(ctx, "Skipping person", "address", addr.Hex(), "error", err)
				return nil
			}
			results[i] = p
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	people := make([]core.Person, 0, len(results))
	for _, p := range results {
		if p != nil {
			people = append(people, *p)
		}
	}
	return people, nil
}

func (r *LedgerReader) loadPerson(ctx context.Context, addr common.Address) (*core.Person, error) {
	rec, err := r.ledger.GetPerson(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("getPerson: %w", err)
	}
	if !rec.Registered() {
		return nil, fmt.Errorf("address is not registered")
	}
	bal, err := r.ledger.GetNetBalance(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("getNetBalance: %w", err)
	}
	return &core.Person{Address: addr, Name: rec.Name, NetBalance: bal}, nil
}

// LoadExpenses returns every expense ordered by ledger id.
func (r *LedgerReader) LoadExpenses(ctx context.Context) ([]core.Expense, error) {
	if r.ledger == nil {
		return nil, nil
	}
	start := time.Now()
	defer func() { metrics.ObserveRead("load_expenses", time.Since(start)) }()

	count, err := r.ledger.ExpenseCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read expense count: %w", err)
	}

	results := make([]*core.Expense, count)
	var g errgroup.Group
	g.SetLimit(r.config.Concurrency)
	for i := uint64(0); i < count; i++ {
		g.Go(func() error {
			e, err := r.loadExpense(ctx, i)
			if err != nil {
				metrics.RecordDegraded(metrics.DegradedExpense)
				r.logger.WarnContext(ctx, "Skipping expense", "index", i, "error", err)
				return nil
			}
			results[i] = e
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	expenses := make([]core.Expense, 0, len(results))
	for _, e := range results {
		if e != nil {
			expenses = append(expenses, *e)
		}
	}
	slices.SortStableFunc(expenses, func(a, b core.Expense) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return expenses, nil
}

func (r *LedgerReader) loadExpense(ctx context.Context, index uint64) (*core.Expense, error) {
	info, err := r.ledger.GetExpenseBasicInfo(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("getExpenseBasicInfo: %w", err)
	}
	addrs, err := r.ledger.GetExpenseParticipants(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("getExpenseParticipants: %w", err)
	}

	e := &core.Expense{
		ID:           info.ID,
		Label:        info.Label,
		Timestamp:    info.Timestamp,
		Participants: make([]core.Participant, len(addrs)),
	}
	for j, addr := range addrs {
		e.Participants[j] = r.loadParticipant(ctx, index, addr)
	}
	return e, nil
}

func (r *LedgerReader) loadParticipant(ctx context.Context, index uint64, addr common.Address) core.Participant {
	paid, err := r.ledger.GetAmountPaid(ctx, index, addr)
	if err == nil {
		var owed *big.Int
		owed, err = r.ledger.GetAmountOwed(ctx, index, addr)
		if err == nil {
			return core.Participant{Address: addr, AmountPaid: paid, AmountOwed: owed}
		}
	}
	metrics.RecordDegraded(metrics.DegradedParticipant)
	r.logger.WarnContext(ctx, "Using zero amounts for participant",
		"index", index, "address", addr.Hex(), "error", err)
	return core.Participant{Address: addr, AmountPaid: new(big.Int), AmountOwed: new(big.Int), Degraded: true}
}

// uniqueAddresses drops repeated and zero addresses, keeping first occurrences.
func uniqueAddresses(in []common.Address) []common.Address {
	seen := make(map[common.Address]struct{}, len(in))
	out := make([]common.Address, 0, len(in))
	for _, a := range in {
		if a == (common.Address{}) {
			continue
		}
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}
