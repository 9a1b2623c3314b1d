package app

import (
	"crypto/sha256"
	"fmt"

	"github.com/blockberries/dao/auth"
	"github.com/blockberries/dao/election"
	"github.com/blockberries/dao/governance"
	"github.com/blockberries/dao/ledger"
	"github.com/blockberries/dao/staking"
	"github.com/blockberries/dao/treasury"
	"github.com/blockberries/dao/types"
)

// State is the whole application state. It is created at genesis and
// replaced only through executed blocks.
type State struct {
	Height     uint64           `cramberry:"1"`
	Ledger     ledger.State     `cramberry:"2"`
	Auth       auth.State       `cramberry:"3"`
	Staking    staking.State    `cramberry:"4"`
	Governance governance.State `cramberry:"5"`
	Treasury   treasury.State   `cramberry:"6"`
	Election   election.State   `cramberry:"7"`
	// Time is the block time of Height in unix seconds. Queries resolve
	// lazy phases and pending yield against it.
	Time uint64 `cramberry:"8"`
}

func (s *State) clone() *State {
	return &State{
		Height:     s.Height,
		Time:       s.Time,
		Ledger:     s.Ledger.Clone(),
		Auth:       s.Auth.Clone(),
		Staking:    s.Staking.Clone(),
		Governance: s.Governance.Clone(),
		Treasury:   s.Treasury.Clone(),
		Election:   s.Election.Clone(),
	}
}

// encode serializes the state for hashing and persistence.
func (s *State) encode() ([]byte, error) {
	data, err := types.Encode(s)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return data, nil
}

// appHash computes a deterministic SHA256 of the serialized state.
func (s *State) appHash() (types.AppHash, error) {
	data, err := s.encode()
	if err != nil {
		return types.AppHash{}, err
	}
	return types.AppHash(sha256.Sum256(data)), nil
}

func decodeState(data []byte) (*State, error) {
	s := &State{}
	if err := types.Decode(data, s); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return s, nil
}

// DecodeState decodes a persisted snapshot and recomputes its app hash.
func DecodeState(data []byte) (*State, types.AppHash, error) {
	s, err := decodeState(data)
	if err != nil {
		return nil, types.AppHash{}, err
	}
	h, err := s.appHash()
	return s, h, err
}
