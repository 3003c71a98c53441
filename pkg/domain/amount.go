package domain

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// Decimals is the fixed fractional precision of every on-ledger amount.
// All accounting runs on scaled integers; decimal strings exist only at the
// display boundary.
const Decimals = 18

var wad = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(Decimals))

// Wad returns 10^Decimals as a fresh value.
func Wad() *uint256.Int { return new(uint256.Int).Set(wad) }

// FormatUnits renders a scaled integer amount as a decimal string,
// trimming trailing fractional zeros ("1500000000000000000" -> "1.5").
func FormatUnits(amount *uint256.Int) string {
	if amount == nil {
		return "0"
	}
	quo := new(uint256.Int)
	rem := new(uint256.Int)
	quo.DivMod(amount, wad, rem)
	if rem.IsZero() {
		return quo.Dec()
	}
	frac := fmt.Sprintf("%018s", rem.Dec())
	frac = strings.TrimRight(frac, "0")
	return quo.Dec() + "." + frac
}

// ParseUnits converts a decimal string to a scaled integer amount.
// More than Decimals fractional digits is an error, not a silent truncation.
func ParseUnits(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Decimals {
		return nil, fmt.Errorf("amount %q: more than %d fractional digits", s, Decimals)
	}
	frac += strings.Repeat("0", Decimals-len(frac))

	w, err := uint256.FromDecimal(whole)
	if err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	out, overflow := new(uint256.Int).MulOverflow(w, wad)
	if overflow {
		return nil, fmt.Errorf("amount %q: overflows 256 bits", s)
	}
	if trimmed := strings.TrimLeft(frac, "0"); trimmed != "" {
		f, err := uint256.FromDecimal(trimmed)
		if err != nil {
			return nil, fmt.Errorf("amount %q: %w", s, err)
		}
		out.Add(out, f)
	}
	return out, nil
}
