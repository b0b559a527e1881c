package http

import (
	"math/big"
	"time"

	"splitledger/internal/core"
	"splitledger/internal/services"
)

// amountJSON carries wei as a decimal string next to its ether rendering.
type amountJSON struct {
	Wei   string `json:"wei"`
	Ether string `json:"ether"`
}

func newAmount(wei *big.Int) amountJSON {
	if wei == nil {
		wei = new(big.Int)
	}
	return amountJSON{Wei: wei.String(), Ether: core.FormatEther(wei)}
}

type personJSON struct {
	Address    string     `json:"address"`
	Name       string     `json:"name"`
	NetBalance amountJSON `json:"net_balance"`
	Status     string     `json:"status"`
}

func newPerson(p core.Person) personJSON {
	status := "settled"
	switch {
	case p.IsDebtor():
		status = "debtor"
	case p.IsCreditor():
		status = "creditor"
	}
	return personJSON{
		Address:    p.Address.Hex(),
		Name:       p.Name,
		NetBalance: newAmount(p.NetBalance),
		Status:     status,
	}
}

type participantJSON struct {
	Address    string     `json:"address"`
	AmountPaid amountJSON `json:"amount_paid"`
	AmountOwed amountJSON `json:"amount_owed"`
	Degraded   bool       `json:"degraded,omitempty"`
}

type expenseJSON struct {
	ID           uint64            `json:"id"`
	Label        string            `json:"label"`
	Timestamp    time.Time         `json:"timestamp"`
	Total        amountJSON        `json:"total"`
	Participants []participantJSON `json:"participants"`
}

func newExpense(e core.Expense) expenseJSON {
	out := expenseJSON{
		ID:           e.ID,
		Label:        e.Label,
		Timestamp:    e.Timestamp.UTC(),
		Total:        newAmount(e.Total()),
		Participants: make([]participantJSON, 0, len(e.Participants)),
	}
	for _, p := range e.Participants {
		out.Participants = append(out.Participants, participantJSON{
			Address:    p.Address.Hex(),
			AmountPaid: newAmount(p.AmountPaid),
			AmountOwed: newAmount(p.AmountOwed),
			Degraded:   p.Degraded,
		})
	}
	return out
}

type debtJSON struct {
	Creditor   string     `json:"creditor"`
	Amount     amountJSON `json:"amount"`
	AgeInDays  uint64     `json:"age_in_days"`
	Actionable bool       `json:"actionable"`
}

type overdueJSON struct {
	Debtor     string     `json:"debtor"`
	Debts      []debtJSON `json:"debts"`
	Actionable int        `json:"actionable"`
}

func newDebt(d core.Debt) debtJSON {
	return debtJSON{
		Creditor:   d.Creditor.Hex(),
		Amount:     newAmount(d.Amount),
		AgeInDays:  d.AgeInDays,
		Actionable: services.IsActionable(d),
	}
}

type attemptJSON struct {
	RunID     string     `json:"run_id"`
	Debtor    string     `json:"debtor"`
	Creditor  string     `json:"creditor"`
	Amount    amountJSON `json:"amount"`
	AgeInDays uint64     `json:"age_in_days"`
	State     string     `json:"state"`
	TxHash    string     `json:"tx_hash,omitempty"`
	Error     string     `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func newAttempt(a core.SettlementAttempt) attemptJSON {
	return attemptJSON{
		RunID:     a.RunID,
		Debtor:    a.Debtor.Hex(),
		Creditor:  a.Creditor.Hex(),
		Amount:    newAmount(a.Amount),
		AgeInDays: a.AgeInDays,
		State:     string(a.State),
		TxHash:    a.TxHash,
		Error:     a.Error,
		StartedAt: a.StartedAt.UTC(),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
}

type summaryJSON struct {
	Registered      int        `json:"registered"`
	Debtors         int        `json:"debtors"`
	Creditors       int        `json:"creditors"`
	Outstanding     amountJSON `json:"outstanding"`
	Fiat            string     `json:"fiat,omitempty"`
	OutstandingFiat string     `json:"outstanding_fiat,omitempty"`
	TotalRegistered uint64     `json:"total_registered"`
	RefreshedAt     *time.Time `json:"refreshed_at,omitempty"`
}
