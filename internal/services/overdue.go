package services

import "splitledger/internal/core"

// OverdueThresholdDays is the age a debt must exceed before settlement is offered.
const OverdueThresholdDays = 7

// OverdueReport splits debts into what is shown and what may be settled.
type OverdueReport struct {
	// Debts is every debt returned by the aggregator, in ledger order.
	Debts []core.Debt
	// Actionable is the subset older than OverdueThresholdDays.
	Actionable []core.Debt
}

// IsActionable reports whether d is old enough to be settled.
func IsActionable(d core.Debt) bool {
	return d.AgeInDays > OverdueThresholdDays
}

// DetectOverdue keeps all debts for display and filters the actionable ones.
func DetectOverdue(debts []core.Debt) OverdueReport {
	r := OverdueReport{Debts: debts}
	for _, d := range debts {
		if IsActionable(d) {
			r.Actionable = append(r.Actionable, d)
		}
	}
	return r
}
