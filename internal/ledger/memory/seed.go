package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"splitledger/internal/core"
)

// Seed is the on-disk format of a demo ledger. Amounts are decimal ETH strings.
type Seed struct {
	People   []SeedPerson  `json:"people"`
	Expenses []SeedExpense `json:"expenses"`
}

type SeedPerson struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Funds   string `json:"funds,omitempty"`
}

type SeedExpense struct {
	Label        string      `json:"label"`
	DaysAgo      int         `json:"days_ago"`
	Participants []SeedShare `json:"participants"`
}

type SeedShare struct {
	Address string `json:"address"`
	Paid    string `json:"paid"`
	Owed    string `json:"owed"`
}

// NewFromFile builds a chain from a seed file. A missing file yields an empty chain.
func NewFromFile(path string, opts ...Option) (*Chain, error) {
	c := NewChain(opts...)
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	if err := c.Load(seed); err != nil {
		return nil, err
	}
	return c, nil
}

// Load writes the seed straight into the chain state, bypassing transactions.
func (c *Chain) Load(seed Seed) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, p := range seed.People {
		if !common.IsHexAddress(p.Address) {
			return fmt.Errorf("seed person %q: invalid address %q", p.Name, p.Address)
		}
		addr := common.HexToAddress(p.Address)
		if _, ok := c.people[addr]; !ok {
			c.order = append(c.order, addr)
		}
		c.people[addr] = person{name: p.Name, wallet: addr}
		if p.Funds != "" {
			funds, err := core.ParseEther(p.Funds)
			if err != nil {
				return fmt.Errorf("seed person %q funds: %w", p.Name, err)
			}
			w := c.walletLocked(addr)
			w.Add(w, funds)
		}
	}

	now := c.now()
	for _, se := range seed.Expenses {
		e := expense{
			id:        uint64(len(c.expenses)) + 1,
			label:     se.Label,
			timestamp: now.Add(-time.Duration(se.DaysAgo) * 24 * time.Hour),
			paid:      map[common.Address]*big.Int{},
			owed:      map[common.Address]*big.Int{},
		}
		for _, sh := range se.Participants {
			if !common.IsHexAddress(sh.Address) {
				return fmt.Errorf("seed expense %q: invalid address %q", se.Label, sh.Address)
			}
			addr := common.HexToAddress(sh.Address)
			paid, err := core.ParseEther(sh.Paid)
			if err != nil {
				return fmt.Errorf("seed expense %q paid: %w", se.Label, err)
			}
			owed, err := core.ParseEther(sh.Owed)
			if err != nil {
				return fmt.Errorf("seed expense %q owed: %w", se.Label, err)
			}
			e.participants = append(e.participants, addr)
			e.paid[addr], e.owed[addr] = paid, owed
			n := c.netLocked(addr)
			n.Add(n, paid)
			n.Sub(n, owed)
		}
		c.expenses = append(c.expenses, e)
	}
	return nil
}
