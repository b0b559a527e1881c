package services

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"slices"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"splitledger/internal/core"
	"splitledger/internal/ledger/memory"
)

func addresses(people []core.Person) []common.Address {
	out := make([]common.Address, len(people))
	for i, p := range people {
		out[i] = p.Address
	}
	return out
}

func TestLoadPeople(t *testing.T) {
	ctx := context.Background()
	c := newChain()
	register(t, c, alice, "Alice")
	register(t, c, bob, "Bob")
	register(t, c, carol, "Carol")
	addExpense(t, c, alice, "Dinner", []common.Address{alice, bob},
		[]*big.Int{ether(10), big.NewInt(0)}, []*big.Int{ether(5), ether(5)})

	r := NewLedgerReader(c.As(alice), DefaultReaderConfig(), quietLogger())
	people, err := r.LoadPeople(ctx)
	if err != nil {
		t.Fatalf("LoadPeople() error = %v", err)
	}

	total, err := c.As(alice).GetTotalRegisteredPeople(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if uint64(len(people)) != total {
		t.Fatalf("loaded %d people, ledger has %d", len(people), total)
	}

	if people[0].Address != alice || people[0].Name != "Alice" || people[0].NetBalance.Cmp(ether(5)) != 0 {
		t.Errorf("people[0] = %+v, want Alice owed 5 ETH", people[0])
	}
	if people[1].NetBalance.Cmp(ether(-5)) != 0 || !people[1].IsDebtor() {
		t.Errorf("people[1] = %+v, want a debtor of 5 ETH", people[1])
	}
	if people[2].NetBalance.Sign() != 0 {
		t.Errorf("people[2] net balance = %s, want 0", people[2].NetBalance)
	}
}

func TestLoadPeopleEmpty(t *testing.T) {
	people, err := NewLedgerReader(newChain().As(alice), DefaultReaderConfig(), quietLogger()).LoadPeople(context.Background())
	if err != nil {
		t.Fatalf("LoadPeople() error = %v", err)
	}
	if len(people) != 0 {
		t.Fatalf("LoadPeople() = %+v, want none", people)
	}
}

func TestLoadPeopleNeverDuplicatesAddresses(t *testing.T) {
	c := newChain()
	register(t, c, alice, "Alice")
	register(t, c, bob, "Bob")

	// ledger lists an address twice, plus the zero address and an unregistered one
	r := NewLedgerReader(stubReader{
		Reader: c.As(alice),
		people: []common.Address{alice, bob, alice, {}, carol, bob},
	}, DefaultReaderConfig(), quietLogger())

	people, err := r.LoadPeople(context.Background())
	if err != nil {
		t.Fatalf("LoadPeople() error = %v", err)
	}
	if got := addresses(people); !slices.Equal(got, []common.Address{alice, bob}) {
		t.Fatalf("loaded addresses = %v, want [alice bob] once each", got)
	}
}

func TestLoadPeopleSkipsFailedAddress(t *testing.T) {
	c := newChain(memory.WithFaults(func(op memory.Op) error {
		if op.Method == memory.MethodGetNetBalance && op.Addr == bob {
			return errors.New("rpc timeout")
		}
		return nil
	}))
	register(t, c, alice, "Alice")
	register(t, c, bob, "Bob")
	register(t, c, carol, "Carol")

	people, err := NewLedgerReader(c.As(alice), DefaultReaderConfig(), quietLogger()).LoadPeople(context.Background())
	if err != nil {
		t.Fatalf("LoadPeople() error = %v", err)
	}
	if got := addresses(people); !slices.Equal(got, []common.Address{alice, carol}) {
		t.Fatalf("loaded addresses = %v, want [alice carol]", got)
	}
}

func TestLoadPeopleListFailure(t *testing.T) {
	c := newChain(memory.WithFaults(func(op memory.Op) error {
		if op.Method == memory.MethodGetAllRegisteredPeople {
			return errors.New("node down")
		}
		return nil
	}))
	if _, err := NewLedgerReader(c.As(alice), DefaultReaderConfig(), quietLogger()).LoadPeople(context.Background()); err == nil {
		t.Fatal("expected error when the people list cannot be read")
	}
}

func TestLoadExpensesDinner(t *testing.T) {
	ctx := context.Background()
	c := newChain()
	register(t, c, alice, "Alice")
	register(t, c, bob, "Bob")
	addExpense(t, c, alice, "Dinner", []common.Address{alice, bob},
		[]*big.Int{ether(10), big.NewInt(0)}, []*big.Int{ether(5), ether(5)})

	expenses, err := NewLedgerReader(c.As(alice), DefaultReaderConfig(), quietLogger()).LoadExpenses(ctx)
	if err != nil {
		t.Fatalf("LoadExpenses() error = %v", err)
	}
	if len(expenses) != 1 {
		t.Fatalf("len(expenses) = %d, want 1", len(expenses))
	}

	e := expenses[0]
	if e.ID != 1 || e.Label != "Dinner" || !e.Timestamp.Equal(testNow) {
		t.Fatalf("expense = {%d %q %v}, want {1 \"Dinner\" %v}", e.ID, e.Label, e.Timestamp, testNow)
	}
	if len(e.Participants) != 2 {
		t.Fatalf("len(Participants) = %d, want 2", len(e.Participants))
	}
	a, b := e.Participants[0], e.Participants[1]
	if a.Address != alice || a.AmountPaid.Cmp(ether(10)) != 0 || a.AmountOwed.Cmp(ether(5)) != 0 {
		t.Errorf("alice share = %+v, want paid 10 owes 5", a)
	}
	if b.Address != bob || b.AmountPaid.Sign() != 0 || b.AmountOwed.Cmp(ether(5)) != 0 {
		t.Errorf("bob share = %+v, want paid 0 owes 5", b)
	}
	if e.Degraded() {
		t.Error("a clean read must not be marked degraded")
	}
}

func TestLoadExpensesPreservesParticipantOrder(t *testing.T) {
	c := newChain()
	register(t, c, alice, "Alice")
	register(t, c, bob, "Bob")
	register(t, c, carol, "Carol")
	order := []common.Address{carol, alice, bob}
	addExpense(t, c, alice, "Trip", order,
		[]*big.Int{ether(3), ether(0), ether(0)}, []*big.Int{ether(1), ether(1), ether(1)})

	expenses, err := NewLedgerReader(c.As(alice), DefaultReaderConfig(), quietLogger()).LoadExpenses(context.Background())
	if err != nil {
		t.Fatalf("LoadExpenses() error = %v", err)
	}
	if len(expenses) != 1 {
		t.Fatalf("len(expenses) = %d, want 1", len(expenses))
	}
	got := make([]common.Address, len(expenses[0].Participants))
	for i, p := range expenses[0].Participants {
		got[i] = p.Address
	}
	if !slices.Equal(got, order) {
		t.Fatalf("participant order = %v, want %v", got, order)
	}
}

func TestLoadExpensesIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newChain()
	register(t, c, alice, "Alice")
	register(t, c, bob, "Bob")
	for i := 0; i < 5; i++ {
		addExpense(t, c, alice, "round", []common.Address{alice, bob},
			[]*big.Int{ether(int64(i + 1)), big.NewInt(0)}, []*big.Int{big.NewInt(0), ether(int64(i + 1))})
	}

	r := NewLedgerReader(c.As(alice), ReaderConfig{Concurrency: 3}, quietLogger())
	first, err := r.LoadExpenses(ctx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.LoadExpenses(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if len(first) != 5 {
		t.Fatalf("len(expenses) = %d, want 5", len(first))
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("two reads of an unchanged ledger differ:\n%+v\n%+v", first, second)
	}
	for i, e := range first {
		if e.ID != uint64(i+1) {
			t.Errorf("expenses[%d].ID = %d, expenses must be in ledger id order", i, e.ID)
		}
	}
}

func TestLoadExpensesDegradation(t *testing.T) {
	ctx := context.Background()
	c := newChain()
	register(t, c, alice, "Alice")
	register(t, c, bob, "Bob")
	for _, label := range []string{"first", "second", "third"} {
		addExpense(t, c, alice, label, []common.Address{alice, bob},
			[]*big.Int{ether(2), big.NewInt(0)}, []*big.Int{ether(1), ether(1)})
	}

	c.SetFaults(func(op memory.Op) error {
		switch {
		case op.Method == memory.MethodGetExpenseParticipants && op.Index == 1:
			return errors.New("expense unavailable")
		case op.Method == memory.MethodGetAmountOwed && op.Index == 2 && op.Addr == bob:
			return errors.New("amount unavailable")
		}
		return nil
	})

	expenses, err := NewLedgerReader(c.As(alice), DefaultReaderConfig(), quietLogger()).LoadExpenses(ctx)
	if err != nil {
		t.Fatalf("LoadExpenses() error = %v", err)
	}

	// expense-level failure skips, participant-level failure degrades
	if len(expenses) != 2 || expenses[0].Label != "first" || expenses[1].Label != "third" {
		t.Fatalf("loaded %+v, want first and third", expenses)
	}
	if expenses[0].Degraded() {
		t.Error("first expense read cleanly but is marked degraded")
	}

	third := expenses[1]
	if len(third.Participants) != 2 {
		t.Fatalf("len(Participants) = %d, want 2", len(third.Participants))
	}
	if p := third.Participants[0]; p.AmountPaid.Cmp(ether(2)) != 0 || p.Degraded {
		t.Errorf("alice share = %+v, want clean paid 2", p)
	}
	p := third.Participants[1]
	if p.Address != bob || p.AmountPaid.Sign() != 0 || p.AmountOwed.Sign() != 0 || !p.Degraded {
		t.Errorf("bob share = %+v, want degraded zero amounts", p)
	}
	if !third.Degraded() {
		t.Error("third expense must report degraded")
	}
}

func TestLoadExpensesCountFailure(t *testing.T) {
	c := newChain(memory.WithFaults(func(op memory.Op) error {
		if op.Method == memory.MethodExpenseCount {
			return errors.New("node down")
		}
		return nil
	}))
	if _, err := NewLedgerReader(c.As(alice), DefaultReaderConfig(), quietLogger()).LoadExpenses(context.Background()); err == nil {
		t.Fatal("expected error when the expense count cannot be read")
	}
}

func TestReaderWithoutLedger(t *testing.T) {
	r := NewLedgerReader(nil, DefaultReaderConfig(), nil)
	people, err := r.LoadPeople(context.Background())
	if err != nil || len(people) != 0 {
		t.Fatalf("LoadPeople() = %v, %v; want empty, nil", people, err)
	}
	expenses, err := r.LoadExpenses(context.Background())
	if err != nil || len(expenses) != 0 {
		t.Fatalf("LoadExpenses() = %v, %v; want empty, nil", expenses, err)
	}
}
