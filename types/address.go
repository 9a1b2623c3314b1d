package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Address identifies a participant or a module account.
type Address [20]byte

// ZeroAddress is never a valid participant.
var ZeroAddress Address

// ModuleAddress derives the account an engine holds value in. Module
// accounts have no private key; only their engine moves their funds.
func ModuleAddress(name string) Address {
	sum := sha256.Sum256([]byte("module/" + name))
	var a Address
	copy(a[:], sum[:20])
	return a
}

// ParseAddress decodes a 40-character hex string.
func ParseAddress(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("parse address: %w", err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("parse address: want %d bytes, got %d", len(a), len(b))
	}
	copy(a[:], b)
	return a, nil
}

func (a Address) String() string { return hex.EncodeToString(a[:]) }

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Compare orders addresses bytewise.
func (a Address) Compare(b Address) int { return bytes.Compare(a[:], b[:]) }

// MarshalText lets addresses appear as hex in YAML genesis files.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText parses a hex address.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
