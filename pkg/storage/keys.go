package storage

import (
	"encoding/binary"
)

// Key layout
//
// Every contract and the host ledger own a namespace opened with Prefix:
//
//	b:       → bank balances and account nonces
//	c:<addr> → contract state for the contract at <addr>
//	h:       → block records and chain metadata
//
// Inside a namespace keys are built with Key from fixed-width components so
// that byte order matches iteration order.

// Key concatenates key components.
func Key(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Uint64Key encodes n as 8 big-endian bytes.
func Uint64Key(n uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, n)
}

// PrefixEnd returns the exclusive upper bound for a prefix scan, or nil when
// the prefix is all 0xff and the scan is unbounded.
func PrefixEnd(prefix []byte) []byte {
	bound := clone(prefix)
	for i := len(bound) - 1; i >= 0; i-- {
		if bound[i] < 0xff {
			bound[i]++
			return bound[:i+1]
		}
	}
	return nil
}
