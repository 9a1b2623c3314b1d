package treasury

import (
	"fmt"
	"sort"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/types"
)

// Params configures the treasury engine.
type Params struct {
	MinProjectAmount  uint64 `cramberry:"1" yaml:"min_project_amount"`
	MaxProjectAmount  uint64 `cramberry:"2" yaml:"max_project_amount"`
	MaxActiveProjects uint32 `cramberry:"3" yaml:"max_active_projects"`
	InsuranceBps      uint32 `cramberry:"4" yaml:"insurance_bps"`
	MaxMilestones     uint32 `cramberry:"5" yaml:"max_milestones"`
}

// DefaultParams returns the parameters used when genesis sets none.
func DefaultParams() Params {
	return Params{
		MinProjectAmount:  1_000,
		MaxProjectAmount:  10_000_000,
		MaxActiveProjects: 20,
		InsuranceBps:      500,
		MaxMilestones:     16,
	}
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	switch {
	case p.MinProjectAmount == 0 || p.MaxProjectAmount < p.MinProjectAmount:
		return fmt.Errorf("%w: project amount bounds", dao.ErrInvalidInput)
	case p.MaxActiveProjects == 0:
		return fmt.Errorf("%w: max_active_projects must be positive", dao.ErrInvalidInput)
	case p.InsuranceBps > 10_000:
		return fmt.Errorf("%w: insurance_bps above 10000", dao.ErrInvalidInput)
	}
	return nil
}

// Status is the lifecycle state of a project.
type Status uint8

const (
	StatusProposed Status = iota
	StatusApproved
	StatusActive
	StatusCompleted
	StatusFailed
	StatusCancelled
)

var statusNames = [...]string{"proposed", "approved", "active", "completed", "failed", "cancelled"}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// Category is the budget line a project draws on.
type Category uint8

const (
	CategoryDevelopment Category = iota
	CategoryResearch
	CategoryCommunity
	CategoryMarketing
	CategoryOperations
	categoryEnd
)

var categoryNames = [...]string{"development", "research", "community", "marketing", "operations"}

func (c Category) String() string {
	if c < categoryEnd {
		return categoryNames[c]
	}
	return "unknown"
}

// Milestone is a slice of a project's funding released on verified
// completion.
type Milestone struct {
	Description string `cramberry:"1"`
	Amount      uint64 `cramberry:"2"`
	Deadline    uint64 `cramberry:"3"`
	Completed   bool   `cramberry:"4"`
	Released    bool   `cramberry:"5"`
	CompletedAt uint64 `cramberry:"6"`
	ReleasedAt  uint64 `cramberry:"7"`
}

// Project is a funded venture expected to return its funding plus yield.
type Project struct {
	ID                uint64        `cramberry:"1"`
	Proposer          types.Address `cramberry:"2"`
	Recipient         types.Address `cramberry:"3"`
	Category          Category      `cramberry:"4"`
	Title             string        `cramberry:"5"`
	Requested         uint64        `cramberry:"6"`
	Funded            uint64        `cramberry:"7"`
	Returned          uint64        `cramberry:"8"`
	Disbursed         uint64        `cramberry:"9"`
	ExpectedYieldBps  uint32        `cramberry:"10"`
	ActualYieldBps    uint32        `cramberry:"11"`
	Profit            uint64        `cramberry:"12"`
	InsuranceFee      uint64        `cramberry:"13"`
	InsurancePayout   uint64        `cramberry:"14"`
	Status            Status        `cramberry:"15"`
	CreatedAt         uint64        `cramberry:"16"`
	StartedAt         uint64        `cramberry:"17"`
	FundedAt          uint64        `cramberry:"18"`
	ClosedAt          uint64        `cramberry:"19"`
	RepaymentDeadline uint64        `cramberry:"20"`
	Milestones        []Milestone   `cramberry:"21"`
}

// MilestoneTotal is the sum of milestone amounts.
func (p Project) MilestoneTotal() uint64 {
	var sum uint64
	for _, m := range p.Milestones {
		sum += m.Amount
	}
	return sum
}

// FundingAllocation is planned spend for one quarter. It records intent
// and does not constrain funding.
type FundingAllocation struct {
	Year        uint32 `cramberry:"1"`
	Quarter     uint8  `cramberry:"2"`
	Development uint64 `cramberry:"3"`
	Research    uint64 `cramberry:"4"`
	Community   uint64 `cramberry:"5"`
	Marketing   uint64 `cramberry:"6"`
	Operations  uint64 `cramberry:"7"`
	SetAt       uint64 `cramberry:"8"`
}

// Total is the planned spend across categories.
func (a FundingAllocation) Total() uint64 {
	return a.Development + a.Research + a.Community + a.Marketing + a.Operations
}

// State is the persisted treasury state. The treasury module account
// holds Balance plus InsurancePool.
type State struct {
	Params Params `cramberry:"1"`
	// Balance is spendable treasury funds, including committed funds not
	// yet released.
	Balance uint64 `cramberry:"2"`
	// Committed is funding promised to active projects and not released.
	Committed     uint64    `cramberry:"3"`
	InsurancePool uint64    `cramberry:"4"`
	Projects      []Project `cramberry:"5"`
	// Active holds the IDs of active projects in ascending order.
	Active []uint64 `cramberry:"6"`
	// Allocations is sorted by (year, quarter).
	Allocations []FundingAllocation `cramberry:"7"`
	TotalProfit uint64              `cramberry:"8"`
}

// NewState returns an empty state with the given parameters.
func NewState(p Params) State {
	return State{Params: p}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	c := s
	c.Projects = make([]Project, len(s.Projects))
	for i, p := range s.Projects {
		p.Milestones = append([]Milestone(nil), p.Milestones...)
		c.Projects[i] = p
	}
	c.Active = append([]uint64(nil), s.Active...)
	c.Allocations = append([]FundingAllocation(nil), s.Allocations...)
	return c
}

func (s *State) addActive(id uint64) {
	i := sort.Search(len(s.Active), func(i int) bool { return s.Active[i] >= id })
	s.Active = append(s.Active, 0)
	copy(s.Active[i+1:], s.Active[i:])
	s.Active[i] = id
}

func (s *State) removeActive(id uint64) {
	i := sort.Search(len(s.Active), func(i int) bool { return s.Active[i] >= id })
	if i < len(s.Active) && s.Active[i] == id {
		s.Active = append(s.Active[:i], s.Active[i+1:]...)
	}
}

func (s *State) findAllocation(year uint32, quarter uint8) (int, bool) {
	as := s.Allocations
	i := sort.Search(len(as), func(i int) bool {
		if as[i].Year != year {
			return as[i].Year > year
		}
		return as[i].Quarter >= quarter
	})
	return i, i < len(as) && as[i].Year == year && as[i].Quarter == quarter
}
