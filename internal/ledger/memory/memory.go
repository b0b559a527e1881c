// Package memory is an in-process ledger with the same query and mutation
// semantics as the deployed contract. It backs tests and the demo backend.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"splitledger/internal/ledger"
)

// Method names used for call accounting and fault injection.
const (
	MethodGetAllRegisteredPeople   = "getAllRegisteredPeople"
	MethodGetPerson                = "getPerson"
	MethodGetTotalRegisteredPeople = "getTotalRegisteredPeople"
	MethodExpenseCount             = "expenseCount"
	MethodGetExpenseBasicInfo      = "getExpenseBasicInfo"
	MethodGetExpenseParticipants   = "getExpenseParticipants"
	MethodGetAmountPaid            = "getAmountPaid"
	MethodGetAmountOwed            = "getAmountOwed"
	MethodGetNetBalance            = "getNetBalance"
	MethodGetOverdueDebts          = "getOverdueDebts"
	MethodRegisterPerson           = "registerPerson"
	MethodUpdateName               = "updateName"
	MethodAddExpense               = "addExpense"
	MethodTransfer                 = "transfer"
)

// Op describes one ledger call as seen by a FaultFunc.
type Op struct {
	Method  string
	Account common.Address // caller
	Index   uint64         // expense index, when relevant
	Addr    common.Address // queried address or transfer recipient
	Wait    bool           // true when the fault is checked while awaiting a tx
}

// FaultFunc returns a non-nil error to make the described call fail.
type FaultFunc func(op Op) error

type person struct {
	name   string
	wallet common.Address
}

type expense struct {
	id           uint64
	label        string
	timestamp    time.Time
	participants []common.Address
	paid         map[common.Address]*big.Int
	owed         map[common.Address]*big.Int
}

// Chain holds the shared ledger state. Use As to act on it as an account.
type Chain struct {
	mu       sync.Mutex
	order    []common.Address
	people   map[common.Address]person
	expenses []expense
	net      map[common.Address]*big.Int
	wallets  map[common.Address]*big.Int

	clock  func() time.Time
	offset time.Duration
	faults FaultFunc

	txSeq       uint64
	inFlight    int
	maxInFlight int
	calls       map[string]int
}

// Option configures a Chain.
type Option func(*Chain)

// WithClock sets the time source used for expense timestamps and overdue ages.
func WithClock(clock func() time.Time) Option {
	return func(c *Chain) { c.clock = clock }
}

// WithFaults installs a fault injector.
func WithFaults(fn FaultFunc) Option {
	return func(c *Chain) { c.faults = fn }
}

// NewChain returns an empty ledger.
func NewChain(opts ...Option) *Chain {
	c := &Chain{
		people:  map[common.Address]person{},
		net:     map[common.Address]*big.Int{},
		wallets: map[common.Address]*big.Int{},
		clock:   time.Now,
		calls:   map[string]int{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// As returns a ledger acting as account. The zero address yields a read-only ledger.
func (c *Chain) As(account common.Address) *Ledger {
	return &Ledger{chain: c, account: account}
}

// SetFaults replaces the fault injector. Pass nil to clear it.
func (c *Chain) SetFaults(fn FaultFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faults = fn
}

// Advance moves the chain clock forward.
func (c *Chain) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}

// Fund credits wei to an account's wallet.
func (c *Chain) Fund(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.walletLocked(addr).Add(c.walletLocked(addr), wei)
}

// WalletBalance returns the wallet balance of addr in wei.
func (c *Chain) WalletBalance(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.walletLocked(addr))
}

// Calls returns how many times method was invoked.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

// InFlightTransfers returns the number of submitted, unresolved transfers.
func (c *Chain) InFlightTransfers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// MaxInFlightTransfers returns the highest number of transfers ever unresolved at once.
func (c *Chain) MaxInFlightTransfers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxInFlight
}

func (c *Chain) now() time.Time {
	return c.clock().Add(c.offset)
}

func (c *Chain) walletLocked(addr common.Address) *big.Int {
	w, ok := c.wallets[addr]
	if !ok {
		w = new(big.Int)
		c.wallets[addr] = w
	}
	return w
}

func (c *Chain) netLocked(addr common.Address) *big.Int {
	n, ok := c.net[addr]
	if !ok {
		n = new(big.Int)
		c.net[addr] = n
	}
	return n
}

// enter records a call and consults the fault injector. Callers hold c.mu.
func (c *Chain) enter(op Op) error {
	if !op.Wait {
		c.calls[op.Method]++
	}
	if c.faults != nil {
		if err := c.faults(op); err != nil {
			return err
		}
	}
	return nil
}

func (c *Chain) expenseLocked(index uint64) (expense, error) {
	if index >= uint64(len(c.expenses)) {
		return expense{}, fmt.Errorf("%w: %d", ledger.ErrIndexOutOfRange, index)
	}
	return c.expenses[index], nil
}

// overdueLocked derives, for debtor, every creditor it shares an unbalanced
// expense with, ordered by first occurrence. Age counts from the oldest such expense.
func (c *Chain) overdueLocked(debtor common.Address) ledger.OverdueDebts {
	var (
		out    ledger.OverdueDebts
		pos    = map[common.Address]int{}
		oldest []time.Time
	)
	now := c.now()
	for _, e := range c.expenses {
		paid, owed := e.paid[debtor], e.owed[debtor]
		if paid == nil || owed == nil || owed.Cmp(paid) <= 0 {
			continue
		}
		shortfall := new(big.Int).Sub(owed, paid)
		for _, cred := range e.participants {
			if cred == debtor || e.paid[cred].Cmp(e.owed[cred]) <= 0 {
				continue
			}
			i, seen := pos[cred]
			if !seen {
				i = len(out.Creditors)
				pos[cred] = i
				out.Creditors = append(out.Creditors, cred)
				out.Amounts = append(out.Amounts, new(big.Int))
				oldest = append(oldest, e.timestamp)
			}
			out.Amounts[i].Add(out.Amounts[i], shortfall)
			if e.timestamp.Before(oldest[i]) {
				oldest[i] = e.timestamp
			}
		}
	}
	out.AgesInDays = make([]uint64, len(out.Creditors))
	for i, ts := range oldest {
		if age := now.Sub(ts); age > 0 {
			out.AgesInDays[i] = uint64(age / (24 * time.Hour))
		}
	}
	return out
}

// Ledger is a view of a Chain bound to one account.
type Ledger struct {
	chain   *Chain
	account common.Address
}

var _ ledger.Ledger = (*Ledger)(nil)

func (l *Ledger) Account() common.Address { return l.account }

func (l *Ledger) Close() error { return nil }

func (l *Ledger) GetAllRegisteredPeople(_ context.Context) ([]common.Address, error) {
	c := l.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(Op{Method: MethodGetAllRegisteredPeople, Account: l.account}); err != nil {
		return nil, err
	}
	return append([]common.Address(nil), c.order...), nil
}

func (l *Ledger) GetPerson(_ context.Context, addr common.Address) (ledger.PersonRecord, error) {
	c := l.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(Op{Method: MethodGetPerson, Account: l.account, Addr: addr}); err != nil {
		return ledger.PersonRecord{}, err
	}
	p := c.people[addr]
	return ledger.PersonRecord{Name: p.name, Wallet: p.wallet}, nil
}

func (l *Ledger) GetTotalRegisteredPeople(_ context.Context) (uint64, error) {
	c := l.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(Op{Method: MethodGetTotalRegisteredPeople, Account: l.account}); err != nil {
		return 0, err
	}
	return uint64(len(c.order)), nil
}

func (l *Ledger) ExpenseCount(_ context.Context) (uint64, error) {
	c := l.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(Op{Method: MethodExpenseCount, Account: l.account}); err != nil {
		return 0, err
	}
	return uint64(len(c.expenses)), nil
}

func (l *Ledger) GetExpenseBasicInfo(_ context.Context, index uint64) (ledger.ExpenseInfo, error) {
	c := l.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(Op{Method: MethodGetExpenseBasicInfo, Account: l.account, Index: index}); err != nil {
		return ledger.ExpenseInfo{}, err
	}
	e, err := c.expenseLocked(index)
	if err != nil {
		return ledger.ExpenseInfo{}, err
	}
	return ledger.ExpenseInfo{ID: e.id, Label: e.label, Timestamp: e.timestamp}, nil
}

func (l *Ledger) GetExpenseParticipants(_ context.Context, index uint64) ([]common.Address, error) {
	c := l.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(Op{Method: MethodGetExpenseParticipants, Account: l.account, Index: index}); err != nil {
		return nil, err
	}
	e, err := c.expenseLocked(index)
	if err != nil {
		return nil, err
	}
	return append([]common.Address(nil), e.participants...), nil
}

func (l *Ledger) GetAmountPaid(_ context.Context, index uint64, addr common.Address) (*big.Int, error) {
	return l.amount(MethodGetAmountPaid, index, addr, func(e expense) map[common.Address]*big.Int { return e.paid })
}

func (l *Ledger) GetAmountOwed(_ context.Context, index uint64, addr common.Address) (*big.Int, error) {
	return l.amount(MethodGetAmountOwed, index, addr, func(e expense) map[common.Address]*big.Int { return e.owed })
}

func (l *Ledger) amount(method string, index uint64, addr common.Address, pick func(expense) map[common.Address]*big.Int) (*big.Int, error) {
	c := l.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(Op{Method: method, Account: l.account, Index: index, Addr: addr}); err != nil {
		return nil, err
	}
	e, err := c.expenseLocked(index)
	if err != nil {
		return nil, err
	}
	v := pick(e)[addr]
	if v == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(v), nil
}

func (l *Ledger) GetNetBalance(_ context.Context, addr common.Address) (*big.Int, error) {
	c := l.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(Op{Method: MethodGetNetBalance, Account: l.account, Addr: addr}); err != nil {
		return nil, err
	}
	return new(big.Int).Set(c.netLocked(addr)), nil
}

func (l *Ledger) GetOverdueDebts(_ context.Context, addr common.Address) (ledger.OverdueDebts, error) {
	c := l.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enter(Op{Method: MethodGetOverdueDebts, Account: l.account, Addr: addr}); err != nil {
		return ledger.OverdueDebts{}, err
	}
	return c.overdueLocked(addr), nil
}

func (l *Ledger) RegisterPerson(_ context.Context, name string) (ledger.PendingTx, error) {
	return l.submit(Op{Method: MethodRegisterPerson}, func(c *Chain) error {
		if _, ok := c.people[l.account]; ok {
			return errors.New("already registered")
		}
		if name == "" {
			return errors.New("name required")
		}
		c.people[l.account] = person{name: name, wallet: l.account}
		c.order = append(c.order, l.account)
		return nil
	})
}

func (l *Ledger) UpdateName(_ context.Context, name string) (ledger.PendingTx, error) {
	return l.submit(Op{Method: MethodUpdateName}, func(c *Chain) error {
		p, ok := c.people[l.account]
		if !ok {
			return errors.New("not registered")
		}
		if name == "" {
			return errors.New("name required")
		}
		p.name = name
		c.people[l.account] = p
		return nil
	})
}

func (l *Ledger) AddExpense(_ context.Context, label string, addrs []common.Address, paid, owed []*big.Int) (ledger.PendingTx, error) {
	addrs = append([]common.Address(nil), addrs...)
	paid, owed = cloneAmounts(paid), cloneAmounts(owed)
	return l.submit(Op{Method: MethodAddExpense}, func(c *Chain) error {
		if _, ok := c.people[l.account]; !ok {
			return errors.New("sender not registered")
		}
		if len(addrs) == 0 || len(addrs) != len(paid) || len(addrs) != len(owed) {
			return errors.New("array length mismatch")
		}
		e := expense{
			id:           uint64(len(c.expenses)) + 1,
			label:        label,
			timestamp:    c.now(),
			participants: addrs,
			paid:         make(map[common.Address]*big.Int, len(addrs)),
			owed:         make(map[common.Address]*big.Int, len(addrs)),
		}
		for i, a := range addrs {
			if _, ok := c.people[a]; !ok {
				return fmt.Errorf("participant %s not registered", a.Hex())
			}
			if _, dup := e.paid[a]; dup {
				return fmt.Errorf("duplicate participant %s", a.Hex())
			}
			e.paid[a], e.owed[a] = paid[i], owed[i]
		}
		for i, a := range addrs {
			n := c.netLocked(a)
			n.Add(n, paid[i])
			n.Sub(n, owed[i])
		}
		c.expenses = append(c.expenses, e)
		return nil
	})
}

// Transfer moves wallet funds only. The ledger's balances are not touched,
// matching a plain value transfer that bypasses the contract.
func (l *Ledger) Transfer(_ context.Context, to common.Address, amount *big.Int) (ledger.PendingTx, error) {
	amount = new(big.Int).Set(amount)
	c := l.chain
	tx, err := l.submit(Op{Method: MethodTransfer, Addr: to}, func(c *Chain) error {
		from := c.walletLocked(l.account)
		if from.Cmp(amount) < 0 {
			return errors.New("insufficient funds")
		}
		from.Sub(from, amount)
		dst := c.walletLocked(to)
		dst.Add(dst, amount)
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.inFlight++
	if c.inFlight > c.maxInFlight {
		c.maxInFlight = c.inFlight
	}
	c.mu.Unlock()
	tx.transfer = true
	return tx, nil
}

func (l *Ledger) submit(op Op, apply func(*Chain) error) (*pendingTx, error) {
	if l.account == (common.Address{}) {
		return nil, ledger.ErrReadOnly
	}
	c := l.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	op.Account = l.account
	if err := c.enter(op); err != nil {
		return nil, err
	}
	c.txSeq++
	return &pendingTx{
		chain: c,
		hash:  common.BigToHash(new(big.Int).SetUint64(c.txSeq)),
		op:    op,
		apply: apply,
	}, nil
}

func cloneAmounts(in []*big.Int) []*big.Int {
	out := make([]*big.Int, len(in))
	for i, v := range in {
		if v == nil {
			out[i] = new(big.Int)
			continue
		}
		out[i] = new(big.Int).Set(v)
	}
	return out
}

// pendingTx applies its mutation when awaited.
type pendingTx struct {
	chain    *Chain
	hash     common.Hash
	op       Op
	apply    func(*Chain) error
	transfer bool

	once     sync.Once
	err      error
	released bool // guarded by chain.mu
}

func (t *pendingTx) Hash() common.Hash { return t.hash }

// Wait applies the mutation once. A transfer stops counting as in flight as
// soon as its submitter stops waiting, even when ctx was already done.
func (t *pendingTx) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		t.chain.mu.Lock()
		t.releaseLocked()
		t.chain.mu.Unlock()
		return err
	}
	t.once.Do(func() {
		c := t.chain
		c.mu.Lock()
		defer c.mu.Unlock()
		t.releaseLocked()
		op := t.op
		op.Wait = true
		if err := c.enter(op); err != nil {
			t.err = err
			return
		}
		if err := t.apply(c); err != nil {
			t.err = fmt.Errorf("%w: %s", ledger.ErrReverted, err)
		}
	})
	return t.err
}

func (t *pendingTx) releaseLocked() {
	if t.transfer && !t.released {
		t.released = true
		t.chain.inFlight--
	}
}
