// Package domain holds the typed identifiers shared across services.
//
// Keeping these in one dependency-light package lets stores, services, and
// transport agree on identity types without importing each other.
package domain

import (
	"fmt"
	"strings"
)

// Address is a 20-byte ledger account or contract address in 0x-prefixed hex.
// Addresses are stored lowercased so map lookups and comparisons are stable
// regardless of the checksum casing callers supply.
type Address string

// ZeroAddress is the ledger's null address.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// ParseAddress validates and normalizes a hex address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return "", fmt.Errorf("address %q: want 0x-prefixed 40 hex chars", s)
	}
	for _, c := range s[2:] {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'f', c >= 'A' && c <= 'F':
		default:
			return "", fmt.Errorf("address %q: invalid hex character %q", s, c)
		}
	}
	return Address(strings.ToLower(s)), nil
}

// MustAddress parses an address and panics on failure. For tests and fixtures.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Address) String() string { return string(a) }

// IsZero reports whether the address is empty or the null address.
func (a Address) IsZero() bool { return a == "" || a == ZeroAddress }

// Short returns the leading 8 characters for log output.
func (a Address) Short() string {
	if len(a) < 8 {
		return string(a)
	}
	return string(a[:8])
}

// CertificateID identifies one semi-fungible carbon certificate.
type CertificateID uint64

func (id CertificateID) String() string { return fmt.Sprintf("%d", uint64(id)) }
