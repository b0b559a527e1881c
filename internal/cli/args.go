package cli

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"splitledger/internal/core"
)

// ParseShare parses "address:paid:owed" with amounts in ETH.
func ParseShare(s string) (core.Participant, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return core.Participant{}, fmt.Errorf("share %q: want address:paid:owed", s)
	}
	if !common.IsHexAddress(parts[0]) {
		return core.Participant{}, fmt.Errorf("share %q: %w", s, core.ErrInvalidParticipant)
	}
	paid, err := core.ParseEther(parts[1])
	if err != nil {
		return core.Participant{}, fmt.Errorf("share %q paid: %w", s, err)
	}
	owed, err := core.ParseEther(parts[2])
	if err != nil {
		return core.Participant{}, fmt.Errorf("share %q owed: %w", s, err)
	}
	return core.Participant{
		Address:    common.HexToAddress(parts[0]),
		AmountPaid: paid,
		AmountOwed: owed,
	}, nil
}

// ParseShares parses every share, stopping at the first invalid one.
func ParseShares(shares []string) ([]core.Participant, error) {
	out := make([]core.Participant, 0, len(shares))
	for _, s := range shares {
		p, err := ParseShare(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
