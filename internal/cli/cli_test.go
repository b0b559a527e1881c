package cli

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"splitledger/internal/core"
	"splitledger/internal/services"
)

var (
	alice = common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000002")
)

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

type fixedOracle struct {
	rate decimal.Decimal
	err  error
}

func (o fixedOracle) EtherPrice(context.Context, string) (decimal.Decimal, error) {
	return o.rate, o.err
}

func TestParseShare(t *testing.T) {
	p, err := ParseShare(" 0x0000000000000000000000000000000000000001:1,5:0.5 ")
	if err != nil {
		t.Fatalf("ParseShare() error = %v", err)
	}
	if p.Address != alice || p.AmountPaid.String() != "1500000000000000000" || p.AmountOwed.String() != "500000000000000000" {
		t.Errorf("ParseShare() = {%s %s %s}", p.Address.Hex(), p.AmountPaid, p.AmountOwed)
	}

	bad := []string{
		"0x0000000000000000000000000000000000000001:1",
		"nope:1:1",
		"0x0000000000000000000000000000000000000001:-1:0",
		"0x0000000000000000000000000000000000000001:1:x",
	}
	for _, s := range bad {
		if _, err := ParseShare(s); err == nil {
			t.Errorf("ParseShare(%q) error = nil", s)
		}
	}

	if _, err := ParseShares([]string{"0x0000000000000000000000000000000000000001:1:0", "bad"}); err == nil {
		t.Error("ParseShares() with one bad share error = nil")
	}
}

func TestMoneyFormat(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		money Money
		want  string
	}{
		{"ether only", Money{}, "1.50000 ETH"},
		{"with fiat", Money{Oracle: fixedOracle{rate: decimal.NewFromInt(2000)}, Fiat: "inr"}, "1.50000 ETH (3000.00 INR)"},
		{"oracle offline", Money{Oracle: fixedOracle{err: errors.New("offline")}, Fiat: "inr"}, "1.50000 ETH"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.Format(ctx, big.NewInt(15e17)); got != tt.want {
				t.Errorf("Format() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPrompterAnswers(t *testing.T) {
	debt := core.Debt{Creditor: alice, Amount: ether(1), AgeInDays: 9}
	names := func(common.Address) string { return "Alice" }

	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\n", false},
		{"y", true},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		p := NewPrompter(strings.NewReader(tt.input), &out, Money{}, names)
		ok, err := p.Confirm(context.Background(), debt)
		if err != nil {
			t.Errorf("input %q: Confirm() error = %v", tt.input, err)
			continue
		}
		if ok != tt.want {
			t.Errorf("input %q: Confirm() = %v, want %v", tt.input, ok, tt.want)
		}
		if !strings.Contains(out.String(), "Pay 1.00000 ETH to Alice (9 days overdue)?") {
			t.Errorf("input %q: prompt = %q", tt.input, out.String())
		}
	}
}

func TestPrompterClosedInputIsError(t *testing.T) {
	p := NewPrompter(strings.NewReader(""), &bytes.Buffer{}, Money{}, nil)
	if _, err := p.Confirm(context.Background(), core.Debt{Creditor: alice, Amount: ether(1)}); err == nil {
		t.Error("Confirm() on closed input error = nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p = NewPrompter(strings.NewReader("y\n"), &bytes.Buffer{}, Money{}, nil)
	if _, err := p.Confirm(ctx, core.Debt{Creditor: alice, Amount: ether(1)}); !errors.Is(err, context.Canceled) {
		t.Errorf("Confirm() with cancelled ctx error = %v, want context.Canceled", err)
	}
}

func TestPrinterOverdue(t *testing.T) {
	var out bytes.Buffer
	st := services.State{People: []core.Person{{Address: alice, Name: "Alice"}}}
	report := services.DetectOverdue([]core.Debt{
		{Creditor: alice, Amount: ether(1), AgeInDays: 9},
		{Creditor: bob, Amount: ether(1), AgeInDays: 2},
	})

	NewPrinter(&out, Money{}).Overdue(context.Background(), st, report)
	text := out.String()
	for _, want := range []string{"Alice", core.ShortAddress(bob), "now", "not yet", "1 of 2 debts are older than 7 days"} {
		if !strings.Contains(text, want) {
			t.Errorf("overdue output missing %q:\n%s", want, text)
		}
	}

	out.Reset()
	NewPrinter(&out, Money{}).Overdue(context.Background(), st, services.OverdueReport{})
	if got := out.String(); got != "You have no outstanding debts.\n" {
		t.Errorf("empty overdue output = %q", got)
	}
}

func TestPrinterPeopleAndSettlement(t *testing.T) {
	var out bytes.Buffer
	p := NewPrinter(&out, Money{})
	st := services.State{People: []core.Person{
		{Address: alice, Name: "Alice", NetBalance: ether(1)},
		{Address: bob, Name: "Bob", NetBalance: new(big.Int).Neg(ether(1))},
	}}
	p.People(context.Background(), st)
	text := out.String()
	for _, want := range []string{"is owed", "2 people, 1 owing, 1 owed. Outstanding: 1.00000 ETH"} {
		if !strings.Contains(text, want) {
			t.Errorf("people output missing %q:\n%s", want, text)
		}
	}

	out.Reset()
	p.Settlement(services.SettlementReport{RunID: "r1", Attempts: []core.SettlementAttempt{
		{State: core.StateConfirmed}, {State: core.StateSkipped}, {State: core.StateFailed},
	}})
	if got, want := out.String(), "Settlement run r1: 1 paid, 1 failed, 1 skipped.\n"; got != want {
		t.Errorf("settlement output = %q, want %q", got, want)
	}

	out.Reset()
	progress := p.Progress(func(common.Address) string { return "Alice" })
	progress.Report(context.Background(), core.SettlementAttempt{State: core.StateConfirmed, TxHash: "0xabc"})
	if got, want := out.String(), "Paid Alice. Transaction 0xabc\n"; got != want {
		t.Errorf("progress output = %q, want %q", got, want)
	}
}
