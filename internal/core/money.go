// Package core provides the ledger domain types and amount handling.
//
// Amounts are carried as wei (*big.Int), the ledger's smallest unit. This file
// converts between wei and decimal ether strings for input and display.
package core

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// EtherDecimals is the fixed-point scale of one ether in wei.
const EtherDecimals = 18

// ParseEther converts a decimal ether string to wei.
//
// Both dot (1.5) and comma (1,5) decimal separators are accepted. Negative
// values and values finer than one wei are rejected. Zero is allowed: a
// participant may pay or owe nothing.
//
// Examples:
//
//	ParseEther("1")     -> 1000000000000000000
//	ParseEther("0,25")  -> 250000000000000000
//	ParseEther("-1")    -> ErrNegativeAmount
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if d.IsNegative() {
		return nil, ErrNegativeAmount
	}
	wei := d.Shift(EtherDecimals)
	if !wei.IsInteger() {
		return nil, ErrInvalidAmount
	}
	return wei.BigInt(), nil
}

// EtherDecimal returns wei as an exact decimal ether value.
func EtherDecimal(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals)
}

// FormatEther renders wei as the shortest exact ether string ("2.5").
func FormatEther(wei *big.Int) string {
	return EtherDecimal(wei).String()
}

// FormatEtherFixed renders wei with a fixed number of decimals ("-2.50000").
func FormatEtherFixed(wei *big.Int, places int32) string {
	return EtherDecimal(wei).StringFixed(places)
}

// AbsWei returns |x| as a new value. A nil input is treated as zero.
func AbsWei(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Abs(x)
}

// ShortAddress renders the first eight characters of an address for display.
func ShortAddress(addr common.Address) string {
	return addr.Hex()[:8] + "..."
}
