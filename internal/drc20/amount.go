package drc20

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseAmount parses a DRC-20 amount string per spec.md §4.8: an
// integer or fixed-decimal literal with no leading sign, no leading or
// trailing dot, and no spaces, whose fractional part length is at most
// decimals. The result is scaled by 10^decimals into a *big.Int.
//
// No third-party decimal library is used here: the grammar is a
// narrow, fully-specified subset (digits, at most one dot, bounded
// fractional length) that a general decimal parser would not simplify,
// and the scaled result must be an exact integer rather than a rounded
// float, which is what the overflow guard against max_supply needs.
func ParseAmount(s string, decimals uint8) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("drc20: empty amount")
	}
	if strings.ContainsAny(s, " \t\n\r") {
		return nil, fmt.Errorf("drc20: amount %q contains whitespace", s)
	}
	if s[0] == '+' || s[0] == '-' {
		return nil, fmt.Errorf("drc20: amount %q has a leading sign", s)
	}

	intPart, fracPart, hasDot := strings.Cut(s, ".")
	if hasDot {
		if intPart == "" || fracPart == "" {
			return nil, fmt.Errorf("drc20: amount %q has a leading or trailing dot", s)
		}
		if len(fracPart) > int(decimals) {
			return nil, fmt.Errorf("drc20: amount %q has more than %d fractional digits", s, decimals)
		}
	}

	if !isAllDigits(intPart) || (hasDot && !isAllDigits(fracPart)) {
		return nil, fmt.Errorf("drc20: amount %q is not a valid decimal literal", s)
	}

	padded := fracPart + strings.Repeat("0", int(decimals)-len(fracPart))
	digits := intPart + padded

	result, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("drc20: amount %q failed to parse as an integer", s)
	}
	return result, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
