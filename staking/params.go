package staking

import (
	"fmt"

	"github.com/blockberries/dao"
)

// Tier is one rung of the stake-size bonus ladder.
type Tier struct {
	Threshold uint64 `cramberry:"1" yaml:"threshold"`
	BonusBps  uint32 `cramberry:"2" yaml:"bonus_bps"`
}

// Params configures the staking engine. Durations are in seconds; rates
// and bonuses in basis points.
type Params struct {
	MinStake              uint64 `cramberry:"1" yaml:"min_stake"`
	MaxCapacity           uint64 `cramberry:"2" yaml:"max_capacity"`
	MinHoldPeriod         uint64 `cramberry:"3" yaml:"min_hold_period"`
	UnlockDelay           uint64 `cramberry:"4" yaml:"unlock_delay"`
	PenaltyBps            uint32 `cramberry:"5" yaml:"penalty_bps"`
	RewardWindow          uint64 `cramberry:"6" yaml:"reward_window"`
	BaseMultiplierBps     uint32 `cramberry:"7" yaml:"base_multiplier_bps"`
	AuxBonusBps           uint32 `cramberry:"8" yaml:"aux_bonus_bps"`
	LongDurationBonusBps  uint32 `cramberry:"9" yaml:"long_duration_bonus_bps"`
	LongDurationThreshold uint64 `cramberry:"10" yaml:"long_duration_threshold"`
	AutoCompoundBonusBps  uint32 `cramberry:"11" yaml:"auto_compound_bonus_bps"`
	// Tiers is ordered by strictly descending threshold.
	Tiers              []Tier `cramberry:"12" yaml:"tiers"`
	AuxVotingWeightBps uint32 `cramberry:"13" yaml:"aux_voting_weight_bps"`
}

const day = 24 * 60 * 60

// DefaultParams returns the parameters used when genesis sets none.
func DefaultParams() Params {
	return Params{
		MinStake:              100,
		MaxCapacity:           1_000_000_000,
		MinHoldPeriod:         7 * day,
		UnlockDelay:           14 * day,
		PenaltyBps:            1_000,
		RewardWindow:          30 * day,
		BaseMultiplierBps:     10_000,
		AuxBonusBps:           1_000,
		LongDurationBonusBps:  2_000,
		LongDurationThreshold: 180 * day,
		AutoCompoundBonusBps:  500,
		Tiers: []Tier{
			{Threshold: 1_000_000, BonusBps: 3_000},
			{Threshold: 100_000, BonusBps: 2_000},
			{Threshold: 10_000, BonusBps: 1_000},
			{Threshold: 1_000, BonusBps: 500},
		},
		AuxVotingWeightBps: 5_000,
	}
}

// Validate checks the parameters are usable.
func (p Params) Validate() error {
	switch {
	case p.MinStake == 0:
		return fmt.Errorf("%w: min_stake must be positive", dao.ErrInvalidInput)
	case p.MaxCapacity < p.MinStake:
		return fmt.Errorf("%w: max_capacity below min_stake", dao.ErrInvalidInput)
	case p.RewardWindow == 0:
		return fmt.Errorf("%w: reward_window must be positive", dao.ErrInvalidInput)
	case p.PenaltyBps > bpsDenom:
		return fmt.Errorf("%w: penalty_bps above 10000", dao.ErrInvalidInput)
	case p.BaseMultiplierBps == 0:
		return fmt.Errorf("%w: base_multiplier_bps must be positive", dao.ErrInvalidInput)
	}
	for i := 1; i < len(p.Tiers); i++ {
		if p.Tiers[i].Threshold >= p.Tiers[i-1].Threshold {
			return fmt.Errorf("%w: tier thresholds must be strictly descending", dao.ErrInvalidInput)
		}
	}
	return nil
}
