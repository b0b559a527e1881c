package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventKind names the ledger mutation an event reports.
type EventKind string

const (
	EventRegistered   EventKind = "registered"
	EventNameUpdated  EventKind = "name_updated"
	EventExpenseAdded EventKind = "expense_added"
	EventSettlement   EventKind = "settlement"
)

// IsValid reports whether k is a known event kind.
func (k EventKind) IsValid() bool {
	switch k {
	case EventRegistered, EventNameUpdated, EventExpenseAdded, EventSettlement:
		return true
	}
	return false
}

// LedgerEvent announces a confirmed ledger mutation. It carries no ledger data:
// consumers re-read the ledger to observe the change.
type LedgerEvent struct {
	Kind      EventKind `json:"kind"`
	Account   string    `json:"account"`
	TxHash    string    `json:"tx_hash"`
	Timestamp time.Time `json:"timestamp"`
}

// NewLedgerEvent creates an event stamped with the current time
func NewLedgerEvent(kind EventKind, account common.Address, txHash common.Hash) *LedgerEvent {
	return &LedgerEvent{
		Kind:      kind,
		Account:   account.Hex(),
		TxHash:    txHash.Hex(),
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// LedgerEventFromJSON decodes and validates an event
func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if !e.Kind.IsValid() {
		return nil, fmt.Errorf("unknown event kind %q", e.Kind)
	}
	return &e, nil
}
