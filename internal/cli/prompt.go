package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"splitledger/internal/core"
	"splitledger/internal/services"
)

// Prompter is a services.Confirmer asking on a terminal.
type Prompter struct {
	in    *bufio.Reader
	out   io.Writer
	money Money
	names func(common.Address) string
}

var _ services.Confirmer = (*Prompter)(nil)

// NewPrompter reads answers from in and writes questions to out. names
// resolves creditor display names and may be nil.
func NewPrompter(in io.Reader, out io.Writer, money Money, names func(common.Address) string) *Prompter {
	if names == nil {
		names = core.ShortAddress
	}
	return &Prompter{in: bufio.NewReader(in), out: out, money: money, names: names}
}

// Confirm asks whether debt should be paid now. Only "y" and "yes" accept.
// A closed input is an error so that an unattended run stops.
func (p *Prompter) Confirm(ctx context.Context, debt core.Debt) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(p.out, "Pay %s to %s (%d days overdue)? [y/N]: ",
		p.money.Format(ctx, debt.Amount), p.names(debt.Creditor), debt.AgeInDays)

	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		fmt.Fprintln(p.out)
		return false, fmt.Errorf("read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
