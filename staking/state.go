package staking

import (
	"sort"

	"github.com/blockberries/dao/types"
)

// LockState is the withdrawal state of a stake.
type LockState uint8

const (
	Locked LockState = iota
	Unlocking
	Unlocked
)

func (s LockState) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	case Unlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Stake is one participant's position.
type Stake struct {
	Owner       types.Address `cramberry:"1"`
	Principal   uint64        `cramberry:"2"`
	Auxiliary   uint64        `cramberry:"3"`
	StartTime   uint64        `cramberry:"4"`
	LockedAt    uint64        `cramberry:"5"`
	LastAccrual uint64        `cramberry:"6"`
	Checkpoint  Uint128       `cramberry:"7"`
	// Carry is accrued yield not yet claimed or compounded.
	Carry        uint64    `cramberry:"8"`
	Claimed      uint64    `cramberry:"9"`
	Accrued      uint64    `cramberry:"10"`
	Lock         LockState `cramberry:"11"`
	UnlockAt     uint64    `cramberry:"12"`
	AutoCompound bool      `cramberry:"13"`
	Effective    uint64    `cramberry:"14"`
	VotingWeight uint64    `cramberry:"15"`
}

// LockAt resolves the lock state at time now. An unlock request becomes
// Unlocked once its delay has elapsed.
func (s Stake) LockAt(now uint64) LockState {
	if s.Lock == Unlocking && now >= s.UnlockAt {
		return Unlocked
	}
	return s.Lock
}

// State is the persisted staking state.
type State struct {
	Params Params `cramberry:"1"`
	// Stakes is sorted by owner.
	Stakes         []Stake `cramberry:"2"`
	TotalPrincipal uint64  `cramberry:"3"`
	TotalAuxiliary uint64  `cramberry:"4"`
	TotalEffective uint64  `cramberry:"5"`
	RewardPerUnit  Uint128 `cramberry:"6"`
	RewardRate     uint64  `cramberry:"7"`
	PeriodFinish   uint64  `cramberry:"8"`
	LastUpdate     uint64  `cramberry:"9"`
	// Undistributed is the part of the reward pool not yet emitted.
	Undistributed uint64 `cramberry:"10"`
	TotalEmitted  uint64 `cramberry:"11"`
}

// NewState returns an empty state with the given parameters.
func NewState(p Params) State {
	return State{Params: p}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := s
	c.Params.Tiers = append([]Tier(nil), s.Params.Tiers...)
	c.Stakes = append([]Stake(nil), s.Stakes...)
	return c
}

func (s *State) find(owner types.Address) (int, bool) {
	i := sort.Search(len(s.Stakes), func(i int) bool {
		return s.Stakes[i].Owner.Compare(owner) >= 0
	})
	return i, i < len(s.Stakes) && s.Stakes[i].Owner == owner
}

func (s *State) insert(st Stake) *Stake {
	i, _ := s.find(st.Owner)
	s.Stakes = append(s.Stakes, Stake{})
	copy(s.Stakes[i+1:], s.Stakes[i:])
	s.Stakes[i] = st
	return &s.Stakes[i]
}

func (s *State) remove(owner types.Address) {
	if i, ok := s.find(owner); ok {
		s.Stakes = append(s.Stakes[:i], s.Stakes[i+1:]...)
	}
}

// emissionAt is the reward emitted between LastUpdate and now: the
// elapsed share of the time left until PeriodFinish. Rounding stays in the
// pool and is spread over what remains, so at PeriodFinish the pool is
// empty.
func (s *State) emissionAt(now uint64) uint64 {
	if s.TotalEffective == 0 {
		return 0
	}
	end := min(now, s.PeriodFinish)
	if end <= s.LastUpdate {
		return 0
	}
	return mulDiv(s.Undistributed, end-s.LastUpdate, s.PeriodFinish-s.LastUpdate)
}

// rewardPerUnitAt is the accumulator value at now without mutating state.
func (s *State) rewardPerUnitAt(now uint64) Uint128 {
	return s.RewardPerUnit.Add(perUnit(s.emissionAt(now), s.TotalEffective))
}
