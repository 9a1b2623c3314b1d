package election

import (
	"fmt"
	"sort"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/types"
)

// Params configures the election engine. Durations are in seconds.
type Params struct {
	NominationDuration     uint64 `cramberry:"1" yaml:"nomination_duration"`
	CampaignDuration       uint64 `cramberry:"2" yaml:"campaign_duration"`
	VotingDuration         uint64 `cramberry:"3" yaml:"voting_duration"`
	NominationStake        uint64 `cramberry:"4" yaml:"nomination_stake"`
	MinCandidateBalance    uint64 `cramberry:"5" yaml:"min_candidate_balance"`
	MaxConcurrentElections uint32 `cramberry:"6" yaml:"max_concurrent_elections"`
	QuorumPercentage       uint32 `cramberry:"7" yaml:"quorum_percentage"`
	TermLength             uint64 `cramberry:"8" yaml:"term_length"`
}

const day = 24 * 60 * 60

// DefaultParams returns the parameters used when genesis sets none.
func DefaultParams() Params {
	return Params{
		NominationDuration:     7 * day,
		CampaignDuration:       7 * day,
		VotingDuration:         7 * day,
		NominationStake:        1_000,
		MinCandidateBalance:    10_000,
		MaxConcurrentElections: 3,
		QuorumPercentage:       30,
		TermLength:             180 * day,
	}
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	switch {
	case p.VotingDuration == 0:
		return fmt.Errorf("%w: voting_duration must be positive", dao.ErrInvalidInput)
	case p.QuorumPercentage > 100:
		return fmt.Errorf("%w: quorum_percentage above 100", dao.ErrInvalidInput)
	case p.MaxConcurrentElections == 0:
		return fmt.Errorf("%w: max_concurrent_elections must be positive", dao.ErrInvalidInput)
	case p.TermLength == 0:
		return fmt.Errorf("%w: term_length must be positive", dao.ErrInvalidInput)
	}
	return nil
}

// Phase is the stage of an election. It is derived from the clock and the
// election's boundaries on every read.
type Phase uint8

const (
	PhaseNotStarted Phase = iota
	PhaseNomination
	PhaseCampaign
	PhaseVoting
	PhaseEnded
	PhaseCancelled
)

var phaseNames = [...]string{"not_started", "nomination", "campaign", "voting", "ended", "cancelled"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

// Candidate is one nominee of an election.
type Candidate struct {
	Addr        types.Address `cramberry:"1"`
	Name        string        `cramberry:"2"`
	Platform    string        `cramberry:"3"`
	Stake       uint64        `cramberry:"4"`
	Votes       uint64        `cramberry:"5"`
	Supporters  uint64        `cramberry:"6"`
	Active      bool          `cramberry:"7"`
	Elected     bool          `cramberry:"8"`
	Refunded    bool          `cramberry:"9"`
	NominatedAt uint64        `cramberry:"10"`
}

// Election is a contest for one position.
type Election struct {
	ID            uint64        `cramberry:"1"`
	Position      string        `cramberry:"2"`
	CreatedBy     types.Address `cramberry:"3"`
	StartsAt      uint64        `cramberry:"4"`
	NominationEnd uint64        `cramberry:"5"`
	CampaignEnd   uint64        `cramberry:"6"`
	VotingEnd     uint64        `cramberry:"7"`
	// Candidates keeps nomination order, which breaks ties.
	Candidates  []Candidate   `cramberry:"8"`
	TotalVotes  uint64        `cramberry:"9"`
	QuorumVotes uint64        `cramberry:"10"`
	Winner      types.Address `cramberry:"11"`
	HasWinner   bool          `cramberry:"12"`
	Finalized   bool          `cramberry:"13"`
	Cancelled   bool          `cramberry:"14"`
	ClosedAt    uint64        `cramberry:"15"`
}

// PhaseAt resolves the phase of e at time now.
func (e Election) PhaseAt(now uint64) Phase {
	switch {
	case e.Cancelled:
		return PhaseCancelled
	case e.Finalized || now >= e.VotingEnd:
		return PhaseEnded
	case now < e.StartsAt:
		return PhaseNotStarted
	case now < e.NominationEnd:
		return PhaseNomination
	case now < e.CampaignEnd:
		return PhaseCampaign
	default:
		return PhaseVoting
	}
}

// Open reports whether the election still holds its position slot.
func (e Election) Open() bool { return !e.Finalized && !e.Cancelled }

func (e *Election) candidate(addr types.Address) (*Candidate, bool) {
	for i := range e.Candidates {
		if e.Candidates[i].Addr == addr {
			return &e.Candidates[i], true
		}
	}
	return nil, false
}

// Receipt is one election vote.
type Receipt struct {
	ElectionID uint64        `cramberry:"1"`
	Voter      types.Address `cramberry:"2"`
	Candidate  types.Address `cramberry:"3"`
	Weight     uint64        `cramberry:"4"`
}

// Leadership is a term in a position.
type Leadership struct {
	Position   string        `cramberry:"1"`
	Holder     types.Address `cramberry:"2"`
	ElectionID uint64        `cramberry:"3"`
	TermStart  uint64        `cramberry:"4"`
	TermEnd    uint64        `cramberry:"5"`
	Score      uint8         `cramberry:"6"`
	Active     bool          `cramberry:"7"`
	EndedAt    uint64        `cramberry:"8"`
}

// HeldAt reports whether the term is in force at now.
func (l Leadership) HeldAt(now uint64) bool { return l.Active && now < l.TermEnd }

// State is the persisted election state.
type State struct {
	Params    Params     `cramberry:"1"`
	Elections []Election `cramberry:"2"`
	// Receipts is sorted by (election, voter).
	Receipts []Receipt `cramberry:"3"`
	// Leaders holds the latest term of each position, sorted by position.
	Leaders []Leadership `cramberry:"4"`
	// History holds every ended term in the order it ended.
	History []Leadership `cramberry:"5"`
}

// NewState returns an empty state with the given parameters.
func NewState(p Params) State {
	return State{Params: p}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := State{
		Params:    s.Params,
		Elections: make([]Election, len(s.Elections)),
		Receipts:  append([]Receipt(nil), s.Receipts...),
		Leaders:   append([]Leadership(nil), s.Leaders...),
		History:   append([]Leadership(nil), s.History...),
	}
	for i, e := range s.Elections {
		e.Candidates = append([]Candidate(nil), e.Candidates...)
		c.Elections[i] = e
	}
	return c
}

func (s *State) findReceipt(id uint64, voter types.Address) (int, bool) {
	rs := s.Receipts
	i := sort.Search(len(rs), func(i int) bool {
		if rs[i].ElectionID != id {
			return rs[i].ElectionID > id
		}
		return rs[i].Voter.Compare(voter) >= 0
	})
	return i, i < len(rs) && rs[i].ElectionID == id && rs[i].Voter == voter
}

func (s *State) findLeader(position string) (int, bool) {
	ls := s.Leaders
	i := sort.Search(len(ls), func(i int) bool { return ls[i].Position >= position })
	return i, i < len(ls) && ls[i].Position == position
}
