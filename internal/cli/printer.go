package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/common"

	"splitledger/internal/core"
	"splitledger/internal/services"
)

// Printer renders session state for a terminal.
type Printer struct {
	out   io.Writer
	money Money
}

func NewPrinter(out io.Writer, money Money) *Printer {
	return &Printer{out: out, money: money}
}

// Account prints who is connected and whether they are registered.
func (p *Printer) Account(st services.State) {
	switch {
	case !st.Connected || st.Account == (common.Address{}):
		fmt.Fprintln(p.out, "Not connected.")
	case !st.Registered:
		fmt.Fprintf(p.out, "Account %s is not registered. Run `register <name>` first.\n", st.Account.Hex())
	default:
		fmt.Fprintf(p.out, "Account %s registered as %q.\n", st.Account.Hex(), st.Name)
	}
	fmt.Fprintf(p.out, "Registered people on the ledger: %d\n", st.TotalRegistered)
}

// People prints every loaded person with their net balance and a summary line.
func (p *Printer) People(ctx context.Context, st services.State) {
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tADDRESS\tNET BALANCE\tSTATUS")
	for _, person := range st.People {
		status := "settled"
		switch {
		case person.IsDebtor():
			status = "owes"
		case person.IsCreditor():
			status = "is owed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.DisplayName(person.Address), person.Address.Hex(),
			p.money.Format(ctx, person.NetBalance), status)
	}
	_ = tw.Flush()

	sum := core.Summarize(st.People)
	fmt.Fprintf(p.out, "\n%d people, %d owing, %d owed. Outstanding: %s\n",
		sum.Registered, sum.Debtors, sum.Creditors, p.money.Format(ctx, sum.Outstanding))
}

// Expenses prints every loaded expense with its shares.
func (p *Printer) Expenses(ctx context.Context, st services.State) {
	if len(st.Expenses) == 0 {
		fmt.Fprintln(p.out, "No expenses yet.")
		return
	}
	for _, e := range st.Expenses {
		fmt.Fprintf(p.out, "#%d %s  %s  total %s\n", e.ID, e.Timestamp.Local().Format("2006-01-02 15:04"),
			e.Label, p.money.Format(ctx, e.Total()))
		tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
		for _, part := range e.Participants {
			fmt.Fprintf(tw, "    %s\tpaid %s\towes %s\n", st.DisplayName(part.Address),
				core.FormatEtherFixed(part.AmountPaid, EtherPlaces), core.FormatEtherFixed(part.AmountOwed, EtherPlaces))
		}
		_ = tw.Flush()
	}
}

// Overdue prints every debt and marks the ones that can be settled.
func (p *Printer) Overdue(ctx context.Context, st services.State, report services.OverdueReport) {
	if len(report.Debts) == 0 {
		fmt.Fprintln(p.out, "You have no outstanding debts.")
		return
	}
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREDITOR\tAMOUNT\tAGE\tSETTLE")
	for _, d := range report.Debts {
		settle := "not yet"
		if services.IsActionable(d) {
			settle = "now"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d days\t%s\n", st.DisplayName(d.Creditor), p.money.Format(ctx, d.Amount), d.AgeInDays, settle)
	}
	_ = tw.Flush()
	fmt.Fprintf(p.out, "\n%d of %d debts are older than %d days and can be settled.\n",
		len(report.Actionable), len(report.Debts), services.OverdueThresholdDays)
}

// Progress returns a reporter printing settlement transitions as they happen.
func (p *Printer) Progress(names func(common.Address) string) services.Reporter {
	return services.ReporterFunc(func(_ context.Context, a core.SettlementAttempt) {
		switch a.State {
		case core.StateSubmitting:
			fmt.Fprintf(p.out, "Sending transfer to %s...\n", names(a.Creditor))
		case core.StateConfirmed:
			fmt.Fprintf(p.out, "Paid %s. Transaction %s\n", names(a.Creditor), a.TxHash)
		case core.StateFailed:
			fmt.Fprintf(p.out, "Payment to %s failed: %s\n", names(a.Creditor), a.Error)
		case core.StateSkipped:
			fmt.Fprintf(p.out, "Skipped %s.\n", names(a.Creditor))
		}
	})
}

// Settlement prints the outcome of a settlement run.
func (p *Printer) Settlement(report services.SettlementReport) {
	if len(report.Attempts) == 0 {
		fmt.Fprintln(p.out, "No debts are old enough to settle.")
		return
	}
	fmt.Fprintf(p.out, "Settlement run %s: %d paid, %d failed, %d skipped.\n",
		report.RunID, report.Confirmed(), report.Failed(), report.Skipped())
}
