package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"splitledger/internal/cli"
	"splitledger/internal/core"
	"splitledger/internal/services"
)

var errUsage = errors.New("usage")

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "status":
		a.printer.Account(a.session.State())
		return nil
	case "register":
		return a.register(ctx, args)
	case "rename":
		return a.rename(ctx, args)
	case "add-expense":
		return a.addExpense(ctx, args)
	case "people":
		return a.people(ctx)
	case "expenses":
		return a.expenses(ctx)
	case "overdue":
		return a.overdue(ctx)
	case "settle":
		return a.settle(ctx)
	case "history":
		return a.history(ctx, args)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) register(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	if err := a.session.Register(ctx, strings.Join(args, " ")); err != nil {
		return err
	}
	a.printer.Account(a.session.State())
	return nil
}

func (a *app) rename(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	if err := a.session.UpdateName(ctx, strings.Join(args, " ")); err != nil {
		return err
	}
	a.printer.Account(a.session.State())
	return nil
}

func (a *app) addExpense(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add-expense", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	label := fs.String("label", "", "expense label")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	shares, err := cli.ParseShares(fs.Args())
	if err != nil {
		return err
	}
	draft := core.ExpenseDraft{Label: *label, Participants: shares}
	if err := a.session.AddExpense(ctx, draft); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Recorded %q for %s.\n", strings.TrimSpace(*label), a.money.Format(ctx, core.Expense{Participants: shares}.Total()))
	return nil
}

func (a *app) requireRegistered() (services.State, error) {
	st := a.session.State()
	if !st.Registered {
		a.printer.Account(st)
		return st, services.ErrNotRegistered
	}
	return st, nil
}

func (a *app) people(ctx context.Context) error {
	st, err := a.requireRegistered()
	if err != nil {
		return err
	}
	a.printer.People(ctx, st)
	fmt.Fprintf(a.out, "Registered on the ledger: %d\n", st.TotalRegistered)
	return nil
}

func (a *app) expenses(ctx context.Context) error {
	st, err := a.requireRegistered()
	if err != nil {
		return err
	}
	a.printer.Expenses(ctx, st)
	return nil
}

func (a *app) overdue(ctx context.Context) error {
	report, err := a.session.CheckOverdue(ctx)
	if err != nil {
		return err
	}
	a.printer.Overdue(ctx, a.session.State(), report)
	return nil
}

func (a *app) settle(ctx context.Context) error {
	st := a.session.State()
	names := st.DisplayName
	prompter := cli.NewPrompter(a.in, a.out, a.money, names)
	report, err := a.session.Settle(ctx, prompter, a.printer.Progress(names))
	a.printer.Settlement(report)
	return err
}

func (a *app) history(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	limit := fs.Int("limit", 20, "number of attempts to show")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	attempts, err := a.journal.ListSettlementAttempts(ctx, *limit)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		fmt.Fprintln(a.out, "No settlement attempts recorded.")
		return nil
	}
	st := a.session.State()
	for _, at := range attempts {
		line := fmt.Sprintf("%s  %-9s  %s -> %s  %s ETH",
			at.UpdatedAt.Local().Format("2006-01-02 15:04"), at.State,
			st.DisplayName(at.Debtor), st.DisplayName(at.Creditor),
			core.FormatEtherFixed(at.Amount, cli.EtherPlaces))
		if at.TxHash != "" {
			line += "  " + at.TxHash
		}
		if at.Error != "" {
			line += "  (" + at.Error + ")"
		}
		fmt.Fprintln(a.out, line)
	}
	return nil
}
