package cli

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"splitledger/internal/core"
	"splitledger/internal/price"
)

// EtherPlaces is how many decimals amounts are shown with.
const EtherPlaces = 5

// Money renders wei amounts, adding a fiat value when an oracle is set.
type Money struct {
	Oracle price.Oracle
	Fiat   string
}

// Format renders wei as "1.50000 ETH", or "1.50000 ETH (3000.00 INR)" when a
// quote is available. Oracle failures only drop the fiat part.
func (m Money) Format(ctx context.Context, wei *big.Int) string {
	s := core.FormatEtherFixed(wei, EtherPlaces) + " ETH"
	if m.Oracle == nil || m.Fiat == "" {
		return s
	}
	v, err := price.ToFiat(ctx, m.Oracle, wei, m.Fiat)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%s (%s %s)", s, v.StringFixed(2), strings.ToUpper(m.Fiat))
}
