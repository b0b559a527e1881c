package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"splitledger/internal/core"
	"splitledger/internal/ledger"
)

// ErrMalformedOverdue is returned when the ledger's overdue arrays are not aligned.
var ErrMalformedOverdue = errors.New("ledger returned misaligned overdue debts")

// BalanceAggregator derives balances and debts from the ledger's own figures.
type BalanceAggregator struct {
	ledger ledger.Reader
}

func NewBalanceAggregator(r ledger.Reader) *BalanceAggregator {
	return &BalanceAggregator{ledger: r}
}

// NetBalance returns the ledger's net balance for addr.
func (a *BalanceAggregator) NetBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	if a.ledger == nil {
		return new(big.Int), nil
	}
	bal, err := a.ledger.GetNetBalance(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to read net balance: %w", err)
	}
	return bal, nil
}

// OverdueDebts lists addr's creditors in ledger order with their ages.
//
// The per-creditor amounts reported by the ledger are not trusted. Every debt
// instead carries |NetBalance(addr)|, so a debtor owing several creditors sees
// the same figure on each line. This overstates the total when there is more
// than one creditor and is kept until the ledger can report per-pair amounts.
func (a *BalanceAggregator) OverdueDebts(ctx context.Context, addr common.Address) ([]core.Debt, error) {
	if a.ledger == nil {
		return nil, nil
	}
	raw, err := a.ledger.GetOverdueDebts(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to read overdue debts: %w", err)
	}
	if len(raw.Creditors) != len(raw.AgesInDays) {
		return nil, fmt.Errorf("%w: %d creditors, %d ages", ErrMalformedOverdue, len(raw.Creditors), len(raw.AgesInDays))
	}
	if len(raw.Creditors) == 0 {
		return nil, nil
	}

	bal, err := a.NetBalance(ctx, addr)
	if err != nil {
		return nil, err
	}
	amount := core.AbsWei(bal)

	debts := make([]core.Debt, len(raw.Creditors))
	for i, cred := range raw.Creditors {
		debts[i] = core.Debt{
			Creditor:  cred,
			Amount:    new(big.Int).Set(amount),
			AgeInDays: raw.AgesInDays[i],
		}
	}
	return debts, nil
}
