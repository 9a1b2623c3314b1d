// Package staking implements the staking engine: principal and auxiliary
// stakes, continuous yield from a shared reward pool, and the
// stake-derived voting weight governance and elections read.
//
// Yield follows a single accrual law. The undistributed pool drains
// linearly until PeriodFinish: over any interval it emits the interval's
// share of the time left in the window, so the whole pool is out by the
// end of it. The emission is shared pro rata over effective balances through a
// reward-per-unit accumulator. A stake's effective balance is its
// principal scaled by its multiplier; the multiplier is re-evaluated at
// every checkpoint of that stake.
package staking

import (
	"fmt"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/ledger"
	"github.com/blockberries/dao/types"
)

// ModuleAddress holds staked principal, auxiliary stake and the reward pool.
var ModuleAddress = types.ModuleAddress("staking")

var (
	ErrNoStake   = fmt.Errorf("%w: no stake", dao.ErrInvalidInput)
	ErrNotLocked = fmt.Errorf("%w: stake is not locked", dao.ErrInvalidState)
	ErrHoldTime  = fmt.Errorf("%w: minimum holding period not reached", dao.ErrInvalidState)
	ErrUnlocking = fmt.Errorf("%w: unlock delay not elapsed", dao.ErrInvalidState)
	ErrNoYield   = fmt.Errorf("%w: no yield to claim", dao.ErrAlreadyDone)
	ErrCompounds = fmt.Errorf("%w: stake auto-compounds its yield", dao.ErrInvalidState)
)

// Engine executes staking operations against a State.
type Engine struct {
	state *State
	token ledger.ValueLedger
	aux   ledger.ValueLedger
}

// New binds an engine to state. token carries principal and rewards; aux
// carries auxiliary stake.
func New(state *State, token, aux ledger.ValueLedger) *Engine {
	return &Engine{state: state, token: token, aux: aux}
}

// accrue brings the accumulator up to now.
func (e *Engine) accrue(now uint64) {
	st := e.state
	if emit := st.emissionAt(now); emit > 0 {
		st.RewardPerUnit = st.RewardPerUnit.Add(perUnit(emit, st.TotalEffective))
		st.Undistributed -= emit
		st.TotalEmitted += emit
	}
	if now > st.LastUpdate {
		st.LastUpdate = now
	}
}

// checkpoint settles the yield a stake earned since its last checkpoint
// and rolls it into principal when the stake auto-compounds. It returns
// the amount rolled.
func (e *Engine) checkpoint(call types.Call, s *Stake) uint64 {
	st := e.state
	if due := owed(s.Effective, st.RewardPerUnit.Sub(s.Checkpoint)); due > 0 {
		s.Carry += due
		s.Accrued += due
	}
	s.Checkpoint = st.RewardPerUnit
	s.LastAccrual = call.Now()

	if !s.AutoCompound || s.Carry == 0 || s.Lock != Locked {
		return 0
	}
	room := st.Params.MaxCapacity - min(st.Params.MaxCapacity, st.TotalPrincipal)
	roll := min(s.Carry, room)
	if roll == 0 {
		return 0
	}
	s.Carry -= roll
	s.Claimed += roll
	s.Principal += roll
	st.TotalPrincipal += roll
	call.Emit("yield_compounded",
		types.Attr("owner", s.Owner.String()),
		types.AttrAmount("amount", roll))
	return roll
}

// Multiplier is the yield multiplier of s at time now, in basis points.
func (e *Engine) Multiplier(s Stake, now uint64) uint32 {
	p := e.state.Params
	m := p.BaseMultiplierBps
	if s.Auxiliary > 0 {
		m += p.AuxBonusBps
	}
	if s.StartTime > 0 && now >= s.StartTime && now-s.StartTime >= p.LongDurationThreshold {
		m += p.LongDurationBonusBps
	}
	if s.AutoCompound {
		m += p.AutoCompoundBonusBps
	}
	return m + e.Tier(s.Principal).BonusBps
}

// refresh recomputes the derived fields of s and the pool totals.
func (e *Engine) refresh(s *Stake, now uint64) {
	st := e.state
	st.TotalEffective -= s.Effective
	s.Effective = bps(s.Principal, e.Multiplier(*s, now))
	st.TotalEffective += s.Effective
	s.VotingWeight = e.deriveWeight(*s)
}

// deriveWeight is the only source of a stake's voting weight.
func (e *Engine) deriveWeight(s Stake) uint64 {
	if s.Lock != Locked {
		return 0
	}
	return s.Principal + bps(s.Auxiliary, e.state.Params.AuxVotingWeightBps)
}

func (e *Engine) stakeOf(owner types.Address) (*Stake, error) {
	i, ok := e.state.find(owner)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoStake, owner)
	}
	return &e.state.Stakes[i], nil
}

func (e *Engine) relock(s *Stake, now uint64) {
	s.Lock = Locked
	s.LockedAt = now
	s.UnlockAt = 0
}

// StakePrincipal adds amount of the token to the caller's stake, creating
// it on first use. autoCompound replaces the stake's compounding flag.
// Staking into a stake that is unlocking re-locks it.
func (e *Engine) StakePrincipal(call types.Call, amount uint64, autoCompound bool) error {
	st := e.state
	if amount == 0 {
		return dao.ErrZeroAmount
	}
	now := call.Now()
	i, exists := st.find(call.Caller)
	var principal uint64
	if exists {
		principal = st.Stakes[i].Principal
	}
	if principal+amount < st.Params.MinStake {
		return fmt.Errorf("%w: %d < %d", dao.ErrBelowMinimum, principal+amount, st.Params.MinStake)
	}

	e.accrue(now)
	var s *Stake
	if exists {
		s = &st.Stakes[i]
		e.checkpoint(call, s)
	}
	if st.TotalPrincipal+amount > st.Params.MaxCapacity || st.TotalPrincipal+amount < st.TotalPrincipal {
		return fmt.Errorf("%w: %d staked, capacity %d", dao.ErrCapacityExceeded, st.TotalPrincipal, st.Params.MaxCapacity)
	}
	if !exists {
		s = st.insert(Stake{Owner: call.Caller, Checkpoint: st.RewardPerUnit, LastAccrual: now})
	}
	if s.Principal == 0 {
		s.StartTime = now
	}
	if s.Lock != Locked || !exists {
		e.relock(s, now)
	}
	s.Principal += amount
	s.AutoCompound = autoCompound
	st.TotalPrincipal += amount
	e.refresh(s, now)

	if err := e.token.TransferFrom(call.Caller, ModuleAddress, amount); err != nil {
		return fmt.Errorf("stake: %w", err)
	}
	call.Emit("stake",
		types.Attr("owner", call.Caller.String()),
		types.AttrAmount("amount", amount),
		types.AttrAmount("principal", s.Principal))
	return nil
}

// StakeAuxiliary adds amount of the auxiliary asset to the caller's
// existing stake.
func (e *Engine) StakeAuxiliary(call types.Call, amount uint64) error {
	if amount == 0 {
		return dao.ErrZeroAmount
	}
	s, err := e.stakeOf(call.Caller)
	if err != nil {
		return err
	}
	now := call.Now()
	if s.LockAt(now) != Locked {
		return ErrNotLocked
	}
	e.accrue(now)
	e.checkpoint(call, s)
	s.Auxiliary += amount
	e.state.TotalAuxiliary += amount
	e.refresh(s, now)

	if err := e.aux.TransferFrom(call.Caller, ModuleAddress, amount); err != nil {
		return fmt.Errorf("stake auxiliary: %w", err)
	}
	call.Emit("stake_auxiliary",
		types.Attr("owner", call.Caller.String()),
		types.AttrAmount("amount", amount))
	return nil
}

// RequestUnlock starts the unlock delay. The stake stops counting as
// voting weight immediately.
func (e *Engine) RequestUnlock(call types.Call) error {
	s, err := e.stakeOf(call.Caller)
	if err != nil {
		return err
	}
	now := call.Now()
	if s.Lock != Locked {
		return ErrNotLocked
	}
	if now < s.LockedAt+e.state.Params.MinHoldPeriod {
		return fmt.Errorf("%w: eligible at %d", ErrHoldTime, s.LockedAt+e.state.Params.MinHoldPeriod)
	}
	e.accrue(now)
	e.checkpoint(call, s)
	s.Lock = Unlocking
	s.UnlockAt = now + e.state.Params.UnlockDelay
	e.refresh(s, now)
	call.Emit("unlock_requested",
		types.Attr("owner", call.Caller.String()),
		types.AttrUint("unlock_at", s.UnlockAt))
	return nil
}

func (e *Engine) unlocked(call types.Call) (*Stake, error) {
	s, err := e.stakeOf(call.Caller)
	if err != nil {
		return nil, err
	}
	switch s.LockAt(call.Now()) {
	case Locked:
		return nil, ErrNotLocked
	case Unlocking:
		return nil, fmt.Errorf("%w: unlocks at %d", ErrUnlocking, s.UnlockAt)
	}
	return s, nil
}

// Unstake withdraws amount of principal after the unlock delay. Whatever
// remains staked is locked again.
func (e *Engine) Unstake(call types.Call, amount uint64) error {
	if amount == 0 {
		return dao.ErrZeroAmount
	}
	s, err := e.unlocked(call)
	if err != nil {
		return err
	}
	if amount > s.Principal {
		return fmt.Errorf("%w: unstake %d of %d", dao.ErrInsufficientFunds, amount, s.Principal)
	}
	now := call.Now()
	e.accrue(now)
	e.checkpoint(call, s)
	s.Principal -= amount
	e.state.TotalPrincipal -= amount
	e.settleUnlock(s, now)
	e.refresh(s, now)

	if err := e.token.Transfer(ModuleAddress, call.Caller, amount); err != nil {
		return fmt.Errorf("unstake: %w", err)
	}
	call.Emit("unstake",
		types.Attr("owner", call.Caller.String()),
		types.AttrAmount("amount", amount),
		types.AttrAmount("principal", s.Principal))
	return nil
}

// UnstakeAuxiliary withdraws auxiliary stake on the same unlock rules as
// principal.
func (e *Engine) UnstakeAuxiliary(call types.Call, amount uint64) error {
	if amount == 0 {
		return dao.ErrZeroAmount
	}
	s, err := e.unlocked(call)
	if err != nil {
		return err
	}
	if amount > s.Auxiliary {
		return fmt.Errorf("%w: unstake %d of %d auxiliary", dao.ErrInsufficientFunds, amount, s.Auxiliary)
	}
	now := call.Now()
	e.accrue(now)
	e.checkpoint(call, s)
	s.Auxiliary -= amount
	e.state.TotalAuxiliary -= amount
	e.settleUnlock(s, now)
	e.refresh(s, now)

	if err := e.aux.Transfer(ModuleAddress, call.Caller, amount); err != nil {
		return fmt.Errorf("unstake auxiliary: %w", err)
	}
	call.Emit("unstake_auxiliary",
		types.Attr("owner", call.Caller.String()),
		types.AttrAmount("amount", amount))
	return nil
}

// settleUnlock re-locks a partially withdrawn stake. A fully withdrawn
// stake stays Unlocked; its record is kept so unclaimed yield survives.
func (e *Engine) settleUnlock(s *Stake, now uint64) {
	if s.Principal > 0 || s.Auxiliary > 0 {
		e.relock(s, now)
		return
	}
	s.Lock = Unlocked
}

// ClaimYield pays out the caller's accrued yield.
func (e *Engine) ClaimYield(call types.Call) (uint64, error) {
	s, err := e.stakeOf(call.Caller)
	if err != nil {
		return 0, err
	}
	if s.AutoCompound {
		return 0, ErrCompounds
	}
	now := call.Now()
	e.accrue(now)
	e.checkpoint(call, s)
	amount := s.Carry
	if amount == 0 {
		return 0, ErrNoYield
	}
	s.Carry = 0
	s.Claimed += amount
	e.refresh(s, now)

	if err := e.token.Transfer(ModuleAddress, call.Caller, amount); err != nil {
		return 0, fmt.Errorf("claim yield: %w", err)
	}
	call.Emit("yield_claimed",
		types.Attr("owner", call.Caller.String()),
		types.AttrAmount("amount", amount))
	return amount, nil
}

// Compound moves the caller's accrued yield into principal.
func (e *Engine) Compound(call types.Call) (uint64, error) {
	s, err := e.stakeOf(call.Caller)
	if err != nil {
		return 0, err
	}
	now := call.Now()
	if s.LockAt(now) != Locked {
		return 0, ErrNotLocked
	}
	e.accrue(now)
	if rolled := e.checkpoint(call, s); rolled > 0 {
		// Auto-compounding stake, rolled over up to capacity.
		e.refresh(s, now)
		return rolled, nil
	}
	amount := s.Carry
	if amount == 0 {
		return 0, ErrNoYield
	}
	st := e.state
	if st.TotalPrincipal+amount > st.Params.MaxCapacity {
		return 0, fmt.Errorf("%w: %d staked, capacity %d", dao.ErrCapacityExceeded, st.TotalPrincipal, st.Params.MaxCapacity)
	}
	s.Carry = 0
	s.Claimed += amount
	s.Principal += amount
	st.TotalPrincipal += amount
	e.refresh(s, now)
	call.Emit("yield_compounded",
		types.Attr("owner", call.Caller.String()),
		types.AttrAmount("amount", amount))
	return amount, nil
}

// PenaltyExit returns the caller's principal and auxiliary stake minus
// PenaltyBps with no unlock delay and deletes the stake. The principal fee
// and any unclaimed yield go back to the reward pool; the auxiliary fee
// stays in the module account.
func (e *Engine) PenaltyExit(call types.Call) (principalOut, auxOut uint64, err error) {
	s, err := e.stakeOf(call.Caller)
	if err != nil {
		return 0, 0, err
	}
	now := call.Now()
	st := e.state
	e.accrue(now)
	e.checkpoint(call, s)

	fee := bps(s.Principal, st.Params.PenaltyBps)
	auxFee := bps(s.Auxiliary, st.Params.PenaltyBps)
	principalOut = s.Principal - fee
	auxOut = s.Auxiliary - auxFee
	forfeited := s.Carry

	st.TotalPrincipal -= s.Principal
	st.TotalAuxiliary -= s.Auxiliary
	st.TotalEffective -= s.Effective
	st.remove(call.Caller)
	e.replenish(now, fee+forfeited)

	if principalOut > 0 {
		if err := e.token.Transfer(ModuleAddress, call.Caller, principalOut); err != nil {
			return 0, 0, fmt.Errorf("penalty exit: %w", err)
		}
	}
	if auxOut > 0 {
		if err := e.aux.Transfer(ModuleAddress, call.Caller, auxOut); err != nil {
			return 0, 0, fmt.Errorf("penalty exit: %w", err)
		}
	}
	call.Emit("penalty_exit",
		types.Attr("owner", call.Caller.String()),
		types.AttrAmount("principal_out", principalOut),
		types.AttrAmount("aux_out", auxOut),
		types.AttrAmount("fee", fee),
		types.AttrAmount("aux_fee", auxFee),
		types.AttrAmount("forfeited", forfeited))
	return principalOut, auxOut, nil
}

// replenish adds amount, already held by the module, to the undistributed
// pool and spreads the whole pool over a fresh window. Replenishing before
// a window ends raises the rate for the rest of the pool. RewardRate is the
// nominal whole-token rate for display; emission does not read it.
func (e *Engine) replenish(now, amount uint64) {
	st := e.state
	e.accrue(now)
	st.Undistributed += amount
	st.RewardRate = st.Undistributed / st.Params.RewardWindow
	st.PeriodFinish = now + st.Params.RewardWindow
	st.LastUpdate = now
}

// FundRewards pulls amount from the caller into the reward pool. The
// treasury calls it from its module account to route profit to stakers.
func (e *Engine) FundRewards(call types.Call, amount uint64) error {
	if amount == 0 {
		return dao.ErrZeroAmount
	}
	e.replenish(call.Now(), amount)
	if err := e.token.TransferFrom(call.Caller, ModuleAddress, amount); err != nil {
		return fmt.Errorf("fund rewards: %w", err)
	}
	call.Emit("rewards_funded",
		types.Attr("from", call.Caller.String()),
		types.AttrAmount("amount", amount),
		types.AttrAmount("rate", e.state.RewardRate),
		types.AttrUint("period_finish", e.state.PeriodFinish))
	return nil
}

// EffectiveVotingWeight is the stake-derived voting weight of id.
func (e *Engine) EffectiveVotingWeight(id types.Address) uint64 {
	i, ok := e.state.find(id)
	if !ok {
		return 0
	}
	return e.state.Stakes[i].VotingWeight
}

// Stake returns a copy of the stake of id.
func (e *Engine) Stake(id types.Address) (Stake, bool) {
	i, ok := e.state.find(id)
	if !ok {
		return Stake{}, false
	}
	return e.state.Stakes[i], true
}

// PendingYield is the yield id could claim at time now.
func (e *Engine) PendingYield(id types.Address, now uint64) uint64 {
	s, ok := e.Stake(id)
	if !ok {
		return 0
	}
	acc := e.state.rewardPerUnitAt(now)
	return s.Carry + owed(s.Effective, acc.Sub(s.Checkpoint))
}

// TierInfo is a resolved rung of the tier ladder. Level 0 means no tier.
type TierInfo struct {
	Level     uint8  `cramberry:"1"`
	Threshold uint64 `cramberry:"2"`
	BonusBps  uint32 `cramberry:"3"`
}

// Tier resolves principal against the descending ladder: the highest
// threshold the principal meets wins.
func (e *Engine) Tier(principal uint64) TierInfo {
	tiers := e.state.Params.Tiers
	for i, t := range tiers {
		if principal >= t.Threshold {
			return TierInfo{Level: uint8(len(tiers) - i), Threshold: t.Threshold, BonusBps: t.BonusBps}
		}
	}
	return TierInfo{}
}

// TotalStaked is the sum of all principal.
func (e *Engine) TotalStaked() uint64 { return e.state.TotalPrincipal }

// RewardPool is the amount not yet emitted.
func (e *Engine) RewardPool() uint64 { return e.state.Undistributed }

// PoolSummary is the queryable view of the pool.
type PoolSummary struct {
	TotalPrincipal uint64 `cramberry:"1"`
	TotalAuxiliary uint64 `cramberry:"2"`
	TotalEffective uint64 `cramberry:"3"`
	Undistributed  uint64 `cramberry:"4"`
	RewardRate     uint64 `cramberry:"5"`
	PeriodFinish   uint64 `cramberry:"6"`
	TotalEmitted   uint64 `cramberry:"7"`
	Stakers        uint64 `cramberry:"8"`
}

// Summary returns the pool totals.
func (e *Engine) Summary() PoolSummary {
	st := e.state
	return PoolSummary{
		TotalPrincipal: st.TotalPrincipal,
		TotalAuxiliary: st.TotalAuxiliary,
		TotalEffective: st.TotalEffective,
		Undistributed:  st.Undistributed,
		RewardRate:     st.RewardRate,
		PeriodFinish:   st.PeriodFinish,
		TotalEmitted:   st.TotalEmitted,
		Stakers:        uint64(len(st.Stakes)),
	}
}
