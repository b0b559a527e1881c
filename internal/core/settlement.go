package core

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// SettlementState is the position of one debt in a settlement run.
type SettlementState string

const (
	StatePending    SettlementState = "pending"
	StateConfirming SettlementState = "confirming"
	StateSubmitting SettlementState = "submitting"
	StateConfirmed  SettlementState = "confirmed"
	StateFailed     SettlementState = "failed"
	StateSkipped    SettlementState = "skipped"
)

// Terminal reports whether no further transition can happen from s.
func (s SettlementState) Terminal() bool {
	switch s {
	case StateConfirmed, StateFailed, StateSkipped:
		return true
	}
	return false
}

// SettlementAttempt records what happened to one debt during one run.
type SettlementAttempt struct {
	RunID     string
	Debtor    common.Address
	Creditor  common.Address
	Amount    *big.Int
	AgeInDays uint64
	State     SettlementState
	TxHash    string
	Error     string
	StartedAt time.Time
	UpdatedAt time.Time
}
