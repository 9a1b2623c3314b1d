package governance

import (
	"sort"

	"github.com/blockberries/dao/types"
)

// Status is the lifecycle state of a proposal.
type Status uint8

const (
	StatusPending Status = iota
	StatusActive
	StatusDefeated
	StatusSucceeded
	StatusQueued
	StatusExecuted
	StatusCancelled
)

var statusNames = [...]string{"pending", "active", "defeated", "succeeded", "queued", "executed", "cancelled"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusDefeated || s == StatusExecuted || s == StatusCancelled
}

// Category classifies a proposal.
type Category uint8

const (
	CategoryGeneral Category = iota
	CategoryTreasury
	CategoryElection
	CategoryRoles
	categoryEnd
)

// Choice is a vote option.
type Choice uint8

const (
	Against Choice = iota
	For
	Abstain
)

func (c Choice) String() string {
	switch c {
	case Against:
		return "against"
	case For:
		return "for"
	case Abstain:
		return "abstain"
	default:
		return "invalid"
	}
}

// Proposal is one governance proposal. Only the Queued, Executed and
// Cancelled states are stored; the others are resolved from the vote
// totals and the current height.
type Proposal struct {
	ID            uint64               `cramberry:"1"`
	Proposer      types.Address        `cramberry:"2"`
	Category      Category             `cramberry:"3"`
	Action        types.ProposalAction `cramberry:"4"`
	Description   string               `cramberry:"5"`
	CreatedHeight uint64               `cramberry:"6"`
	CreatedAt     uint64               `cramberry:"7"`
	StartHeight   uint64               `cramberry:"8"`
	EndHeight     uint64               `cramberry:"9"`
	// QuorumVotes is fixed from total supply at creation.
	QuorumVotes  uint64 `cramberry:"10"`
	ForVotes     uint64 `cramberry:"11"`
	AgainstVotes uint64 `cramberry:"12"`
	AbstainVotes uint64 `cramberry:"13"`
	Voters       uint64 `cramberry:"14"`
	Status       Status `cramberry:"15"`
	ETA          uint64 `cramberry:"16"`
	ExecutedAt   uint64 `cramberry:"17"`
}

// Receipt is one immutable vote record.
type Receipt struct {
	ProposalID uint64        `cramberry:"1"`
	Voter      types.Address `cramberry:"2"`
	Choice     Choice        `cramberry:"3"`
	Weight     uint64        `cramberry:"4"`
}

// Delegation routes a delegator's own weight to a delegatee.
type Delegation struct {
	Delegator types.Address `cramberry:"1"`
	Delegatee types.Address `cramberry:"2"`
}

// State is the persisted governance state.
type State struct {
	Params    Params     `cramberry:"1"`
	Proposals []Proposal `cramberry:"2"`
	// Receipts is sorted by (proposal, voter).
	Receipts []Receipt `cramberry:"3"`
	// Delegations is sorted by delegator.
	Delegations []Delegation `cramberry:"4"`
	// Delegates indexes the same rows by (delegatee, delegator).
	Delegates []Delegation `cramberry:"5"`
}

// NewState returns an empty state with the given parameters.
func NewState(p Params) State {
	return State{Params: p}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := State{
		Params:      s.Params,
		Proposals:   make([]Proposal, len(s.Proposals)),
		Receipts:    append([]Receipt(nil), s.Receipts...),
		Delegations: append([]Delegation(nil), s.Delegations...),
		Delegates:   append([]Delegation(nil), s.Delegates...),
	}
	for i, p := range s.Proposals {
		p.Action.Payload = append([]byte(nil), p.Action.Payload...)
		c.Proposals[i] = p
	}
	return c
}

func (s *State) findReceipt(id uint64, voter types.Address) (int, bool) {
	rs := s.Receipts
	i := sort.Search(len(rs), func(i int) bool {
		if rs[i].ProposalID != id {
			return rs[i].ProposalID > id
		}
		return rs[i].Voter.Compare(voter) >= 0
	})
	return i, i < len(rs) && rs[i].ProposalID == id && rs[i].Voter == voter
}

func (s *State) findDelegation(delegator types.Address) (int, bool) {
	ds := s.Delegations
	i := sort.Search(len(ds), func(i int) bool { return ds[i].Delegator.Compare(delegator) >= 0 })
	return i, i < len(ds) && ds[i].Delegator == delegator
}

func delegateLess(a, b Delegation) bool {
	if c := a.Delegatee.Compare(b.Delegatee); c != 0 {
		return c < 0
	}
	return a.Delegator.Compare(b.Delegator) < 0
}

func (s *State) findDelegate(d Delegation) (int, bool) {
	ds := s.Delegates
	i := sort.Search(len(ds), func(i int) bool { return !delegateLess(ds[i], d) })
	return i, i < len(ds) && ds[i] == d
}

// delegatorsOf returns the index rows of delegatee.
func (s *State) delegatorsOf(delegatee types.Address) []Delegation {
	ds := s.Delegates
	lo := sort.Search(len(ds), func(i int) bool { return ds[i].Delegatee.Compare(delegatee) >= 0 })
	hi := lo
	for hi < len(ds) && ds[hi].Delegatee == delegatee {
		hi++
	}
	return ds[lo:hi]
}

func insertAt[T any](s []T, i int, v T) []T {
	var zero T
	s = append(s, zero)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeAt[T any](s []T, i int) []T {
	return append(s[:i], s[i+1:]...)
}
