package governance

import (
	"fmt"

	"github.com/blockberries/dao"
)

// Params configures the governance engine. Voting is measured in blocks,
// the execution timelock in seconds.
type Params struct {
	ProposalThreshold   uint64 `cramberry:"1" yaml:"proposal_threshold"`
	VotingPeriod        uint64 `cramberry:"2" yaml:"voting_period"`
	QuorumBps           uint32 `cramberry:"3" yaml:"quorum_bps"`
	ExecutionDelay      uint64 `cramberry:"4" yaml:"execution_delay"`
	MaxDescriptionBytes uint32 `cramberry:"5" yaml:"max_description_bytes"`
}

// DefaultParams returns the parameters used when genesis sets none.
func DefaultParams() Params {
	return Params{
		ProposalThreshold:   1_000,
		VotingPeriod:        100,
		QuorumBps:           400,
		ExecutionDelay:      0,
		MaxDescriptionBytes: 4096,
	}
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	if p.VotingPeriod == 0 {
		return fmt.Errorf("%w: voting_period must be positive", dao.ErrInvalidInput)
	}
	if p.QuorumBps > 10_000 {
		return fmt.Errorf("%w: quorum_bps above 10000", dao.ErrInvalidInput)
	}
	return nil
}
