// Package ledger holds the fungible balances the DAO engines move value
// through. Engines only see the ValueLedger capability; Bank is the
// in-application implementation backing it.
package ledger

import (
	"fmt"
	"sort"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/types"
)

// Denominations held by the bank.
const (
	// DenomToken is the governance token: staked principal, treasury funds,
	// proposal and election weight fallback.
	DenomToken = "token"
	// DenomAux is the secondary asset accepted as auxiliary stake.
	DenomAux = "aux"
)

// ValueLedger is the balance and transfer capability of one denomination.
//
// Transfer moves value out of an account the calling engine controls (its
// module account). TransferFrom pulls value from the account of the
// operation's sender; there are no allowances, the sender authorizes the
// pull by signing the transaction.
type ValueLedger interface {
	BalanceOf(id types.Address) uint64
	TotalSupply() uint64
	Transfer(from, to types.Address, amount uint64) error
	TransferFrom(from, to types.Address, amount uint64) error
}

// Account is one balance entry.
type Account struct {
	Owner   types.Address `cramberry:"1"`
	Balance uint64        `cramberry:"2"`
}

// Denom is the balance table of one denomination, sorted by owner.
type Denom struct {
	Name     string    `cramberry:"1"`
	Supply   uint64    `cramberry:"2"`
	Accounts []Account `cramberry:"3"`
}

// State is the persisted bank state.
type State struct {
	Denoms []Denom `cramberry:"1"`
}

// NewState returns a state with both denominations and no balances.
func NewState() State {
	return State{Denoms: []Denom{{Name: DenomAux}, {Name: DenomToken}}}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := State{Denoms: make([]Denom, len(s.Denoms))}
	for i, d := range s.Denoms {
		c.Denoms[i] = Denom{
			Name:     d.Name,
			Supply:   d.Supply,
			Accounts: append([]Account(nil), d.Accounts...),
		}
	}
	return c
}

// Bank implements ValueLedger for every denomination of a State.
type Bank struct {
	state *State
}

// NewBank binds a bank to state.
func NewBank(state *State) *Bank {
	return &Bank{state: state}
}

// Ledger returns the capability for one denomination.
func (b *Bank) Ledger(denom string) ValueLedger {
	return denomLedger{bank: b, denom: denom}
}

func (b *Bank) denom(name string) (*Denom, error) {
	for i := range b.state.Denoms {
		if b.state.Denoms[i].Name == name {
			return &b.state.Denoms[i], nil
		}
	}
	return nil, fmt.Errorf("%w: unknown denom %q", dao.ErrInvalidInput, name)
}

func (d *Denom) find(owner types.Address) (int, bool) {
	i := sort.Search(len(d.Accounts), func(i int) bool {
		return d.Accounts[i].Owner.Compare(owner) >= 0
	})
	return i, i < len(d.Accounts) && d.Accounts[i].Owner == owner
}

func (d *Denom) balance(owner types.Address) uint64 {
	if i, ok := d.find(owner); ok {
		return d.Accounts[i].Balance
	}
	return 0
}

func (d *Denom) set(owner types.Address, amount uint64) {
	i, ok := d.find(owner)
	switch {
	case ok && amount == 0:
		d.Accounts = append(d.Accounts[:i], d.Accounts[i+1:]...)
	case ok:
		d.Accounts[i].Balance = amount
	case amount > 0:
		d.Accounts = append(d.Accounts, Account{})
		copy(d.Accounts[i+1:], d.Accounts[i:])
		d.Accounts[i] = Account{Owner: owner, Balance: amount}
	}
}

// Balance returns the balance of owner in denom.
func (b *Bank) Balance(denom string, owner types.Address) uint64 {
	d, err := b.denom(denom)
	if err != nil {
		return 0
	}
	return d.balance(owner)
}

// Supply returns the total supply of denom.
func (b *Bank) Supply(denom string) uint64 {
	d, err := b.denom(denom)
	if err != nil {
		return 0
	}
	return d.Supply
}

// Mint credits new supply. Only genesis mints.
func (b *Bank) Mint(denom string, to types.Address, amount uint64) error {
	d, err := b.denom(denom)
	if err != nil {
		return err
	}
	if to.IsZero() {
		return dao.ErrZeroAddress
	}
	if d.Supply+amount < d.Supply {
		return fmt.Errorf("%w: %s supply overflow", dao.ErrInvariantViolation, denom)
	}
	d.Supply += amount
	d.set(to, d.balance(to)+amount)
	return nil
}

// Send moves amount of denom from one account to another.
func (b *Bank) Send(denom string, from, to types.Address, amount uint64) error {
	d, err := b.denom(denom)
	if err != nil {
		return fmt.Errorf("%w: %w", dao.ErrTransferFailed, err)
	}
	if to.IsZero() {
		return fmt.Errorf("%w: %w", dao.ErrTransferFailed, dao.ErrZeroAddress)
	}
	have := d.balance(from)
	if have < amount {
		return fmt.Errorf("%w: %s balance %d of %s below %d",
			dao.ErrTransferFailed, denom, have, from, amount)
	}
	if amount == 0 || from == to {
		return nil
	}
	d.set(from, have-amount)
	d.set(to, d.balance(to)+amount)
	return nil
}

// Accounts returns a copy of the balance table of denom.
func (b *Bank) Accounts(denom string) []Account {
	d, err := b.denom(denom)
	if err != nil {
		return nil
	}
	return append([]Account(nil), d.Accounts...)
}

type denomLedger struct {
	bank  *Bank
	denom string
}

func (l denomLedger) BalanceOf(id types.Address) uint64 { return l.bank.Balance(l.denom, id) }
func (l denomLedger) TotalSupply() uint64               { return l.bank.Supply(l.denom) }

func (l denomLedger) Transfer(from, to types.Address, amount uint64) error {
	return l.bank.Send(l.denom, from, to, amount)
}

func (l denomLedger) TransferFrom(from, to types.Address, amount uint64) error {
	return l.bank.Send(l.denom, from, to, amount)
}
