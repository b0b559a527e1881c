package core

import "math/big"

// Summary is a compact view over the loaded people.
type Summary struct {
	Registered  int
	Debtors     int
	Creditors   int
	Outstanding *big.Int // sum of negative balances, as a positive wei amount
}

// Summarize counts debtors and creditors and totals what debtors owe.
func Summarize(people []Person) Summary {
	s := Summary{Registered: len(people), Outstanding: new(big.Int)}
	for _, p := range people {
		switch {
		case p.IsDebtor():
			s.Debtors++
			s.Outstanding.Sub(s.Outstanding, p.NetBalance)
		case p.IsCreditor():
			s.Creditors++
		}
	}
	return s
}
