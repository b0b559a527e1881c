// Package sheets mirrors ledger expenses into a spreadsheet for people who
// prefer to read them there. The ledger stays authoritative.
package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"splitledger/internal/core"
)

// Header is the first row of a mirror sheet.
var Header = []any{"ID", "Date", "Label", "Total (ETH)", "Participants"}

// Ports for outbound adapters.
type (
	// ExpenseMirror appends one row per expense.
	ExpenseMirror interface {
		Append(ctx context.Context, e core.Expense) (rowRef string, err error)
	}
)

// Row renders an expense as a sheet row matching Header.
func Row(e core.Expense) []any {
	parts := make([]string, len(e.Participants))
	for i, p := range e.Participants {
		parts[i] = fmt.Sprintf("%s paid %s owes %s",
			p.Address.Hex(), core.FormatEther(p.AmountPaid), core.FormatEther(p.AmountOwed))
	}
	return []any{
		fmt.Sprint(e.ID),
		e.Timestamp.UTC().Format(time.DateTime),
		e.Label,
		core.FormatEther(e.Total()),
		strings.Join(parts, "; "),
	}
}
