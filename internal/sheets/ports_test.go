package sheets

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"splitledger/internal/core"
)

func TestRow(t *testing.T) {
	alice := common.HexToAddress("0x0000000000000000000000000000000000000001")
	bob := common.HexToAddress("0x0000000000000000000000000000000000000002")
	half, _ := new(big.Int).SetString("500000000000000000", 10)
	one, _ := new(big.Int).SetString("1000000000000000000", 10)

	row := Row(core.Expense{
		ID:        7,
		Label:     "Dinner",
		Timestamp: time.Date(2025, 3, 1, 20, 30, 0, 0, time.UTC),
		Participants: []core.Participant{
			{Address: alice, AmountPaid: one, AmountOwed: half},
			{Address: bob, AmountPaid: new(big.Int), AmountOwed: half},
		},
	})

	if len(row) != len(Header) {
		t.Fatalf("row has %d columns, header has %d", len(row), len(Header))
	}
	want := []any{
		"7",
		"2025-03-01 20:30:00",
		"Dinner",
		"1",
		alice.Hex() + " paid 1 owes 0.5; " + bob.Hex() + " paid 0 owes 0.5",
	}
	for i := range want {
		if row[i] != want[i] {
			t.Errorf("column %d = %v, want %v", i, row[i], want[i])
		}
	}
}
