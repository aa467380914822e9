// Package domain contains the upstream bounded context's core types: the
// watched-account identifier, raw frame shape, and session statistics.
package domain

import "github.com/ethereum/go-ethereum/common"

// Account is a watched trading identifier. On the Hyperliquid wire format
// this is an Ethereum-style hex address.
type Account string

// ParseAccount validates s as a hex address and returns it normalized to
// its canonical (EIP-55) form.
func ParseAccount(s string) (Account, bool) {
	if !common.IsHexAddress(s) {
		return "", false
	}
	return Account(common.HexToAddress(s).Hex()), true
}

// String returns the account as a plain string.
func (a Account) String() string {
	return string(a)
}

// WatchedSet is a lookup set of accounts configured for monitoring.
type WatchedSet map[Account]struct{}

// NewWatchedSet builds a WatchedSet from a list of raw account strings,
// normalizing and deduplicating each one.
func NewWatchedSet(accounts []string) (WatchedSet, error) {
	set := make(WatchedSet, len(accounts))
	for _, raw := range accounts {
		acct, ok := ParseAccount(raw)
		if !ok {
			return nil, &InvalidAccountError{Raw: raw}
		}
		set[acct] = struct{}{}
	}
	return set, nil
}

// Contains reports whether account is in the watched set.
func (s WatchedSet) Contains(account Account) bool {
	_, ok := s[account]
	return ok
}

// List returns the watched accounts as a slice, in no particular order.
func (s WatchedSet) List() []Account {
	out := make([]Account, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	return out
}

// InvalidAccountError reports a configured account that is not a valid
// hex address.
type InvalidAccountError struct {
	Raw string
}

func (e *InvalidAccountError) Error() string {
	return "invalid account address: " + e.Raw
}
