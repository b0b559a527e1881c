package core

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MaxLabelLength bounds expense labels.
	MaxLabelLength = 200
	// MaxNameLength bounds registered display names.
	MaxNameLength = 64
)

type (
	// Person is a registered ledger identity.
	Person struct {
		Address    common.Address
		Name       string
		NetBalance *big.Int // wei; negative = net debtor
	}

	// Participant is one address's share of an expense.
	Participant struct {
		Address    common.Address
		AmountPaid *big.Int // wei
		AmountOwed *big.Int // wei
		// Degraded marks zero placeholder amounts used when the real ones
		// could not be read.
		Degraded bool
	}

	// Expense is an immutable ledger record. ID is ledger-assigned.
	Expense struct {
		ID           uint64
		Label        string
		Timestamp    time.Time
		Participants []Participant
	}

	// Debt is derived from the ledger's overdue query. It is never persisted.
	Debt struct {
		Creditor  common.Address
		Amount    *big.Int // wei
		AgeInDays uint64
	}

	// ExpenseDraft is the caller input for a new expense.
	ExpenseDraft struct {
		Label        string
		Participants []Participant
	}
)

var (
	ErrEmptyLabel           = errors.New("empty expense label")
	ErrLabelTooLong         = fmt.Errorf("expense label too long (max %d characters)", MaxLabelLength)
	ErrNoParticipants       = errors.New("at least one participant is required")
	ErrInvalidParticipant   = errors.New("invalid participant")
	ErrDuplicateParticipant = errors.New("duplicate participant address")
	ErrNegativeAmount       = errors.New("negative amount")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrEmptyName            = errors.New("empty name")
	ErrNameTooLong          = fmt.Errorf("name too long (max %d characters)", MaxNameLength)
)

// IsDebtor reports whether the person owes money overall.
func (p Person) IsDebtor() bool {
	return p.NetBalance != nil && p.NetBalance.Sign() < 0
}

// IsCreditor reports whether the person is owed money overall.
func (p Person) IsCreditor() bool {
	return p.NetBalance != nil && p.NetBalance.Sign() > 0
}

// Degraded reports whether any participant carries placeholder amounts.
func (e Expense) Degraded() bool {
	for _, p := range e.Participants {
		if p.Degraded {
			return true
		}
	}
	return false
}

// Participant returns the share of addr in the expense, if present.
func (e Expense) Participant(addr common.Address) (Participant, bool) {
	for _, p := range e.Participants {
		if p.Address == addr {
			return p, true
		}
	}
	return Participant{}, false
}

// Total returns the sum of all amounts paid in the expense.
func (e Expense) Total() *big.Int {
	total := new(big.Int)
	for _, p := range e.Participants {
		if p.AmountPaid != nil {
			total.Add(total, p.AmountPaid)
		}
	}
	return total
}

// NormalizeName trims the name and checks its bounds.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	if len(name) > MaxNameLength {
		return "", ErrNameTooLong
	}
	return name, nil
}

// Validate rejects drafts that must never reach the ledger.
func (d ExpenseDraft) Validate() error {
	label := strings.TrimSpace(d.Label)
	if label == "" {
		return ErrEmptyLabel
	}
	if len(label) > MaxLabelLength {
		return ErrLabelTooLong
	}
	if len(d.Participants) == 0 {
		return ErrNoParticipants
	}

	seen := make(map[common.Address]struct{}, len(d.Participants))
	for i, p := range d.Participants {
		if p.Address == (common.Address{}) {
			return fmt.Errorf("participant %d: %w: missing address", i, ErrInvalidParticipant)
		}
		if p.AmountPaid == nil || p.AmountOwed == nil {
			return fmt.Errorf("participant %d: %w: missing amount", i, ErrInvalidParticipant)
		}
		if p.AmountPaid.Sign() < 0 || p.AmountOwed.Sign() < 0 {
			return fmt.Errorf("participant %d: %w", i, ErrNegativeAmount)
		}
		if _, dup := seen[p.Address]; dup {
			return fmt.Errorf("participant %s: %w", p.Address.Hex(), ErrDuplicateParticipant)
		}
		seen[p.Address] = struct{}{}
	}
	return nil
}

// Arrays splits the draft into the index-aligned arrays the ledger expects.
func (d ExpenseDraft) Arrays() (addresses []common.Address, paid []*big.Int, owed []*big.Int) {
	addresses = make([]common.Address, len(d.Participants))
	paid = make([]*big.Int, len(d.Participants))
	owed = make([]*big.Int, len(d.Participants))
	for i, p := range d.Participants {
		addresses[i] = p.Address
		paid[i] = new(big.Int).Set(p.AmountPaid)
		owed[i] = new(big.Int).Set(p.AmountOwed)
	}
	return addresses, paid, owed
}
