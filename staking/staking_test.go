package staking

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/ledger"
	"github.com/blockberries/dao/types"
)

var (
	alice  = types.ModuleAddress("test/alice")
	bob    = types.ModuleAddress("test/bob")
	funder = types.ModuleAddress("test/funder")
)

const t0 = 1_000_000

type fixture struct {
	t      *testing.T
	bank   *ledger.Bank
	state  *State
	engine *Engine
	events *types.EventLog
}

// flatParams has no bonuses so effective balance equals principal.
func flatParams() Params {
	return Params{
		MinStake:           100,
		MaxCapacity:        1_000_000,
		MinHoldPeriod:      10,
		UnlockDelay:        20,
		PenaltyBps:         1_000,
		RewardWindow:       100,
		BaseMultiplierBps:  10_000,
		AuxVotingWeightBps: 5_000,
	}
}

func newFixture(t *testing.T, p Params) *fixture {
	t.Helper()
	bankState := ledger.NewState()
	bank := ledger.NewBank(&bankState)
	for _, who := range []types.Address{alice, bob, funder} {
		require.NoError(t, bank.Mint(ledger.DenomToken, who, 1_000_000))
		require.NoError(t, bank.Mint(ledger.DenomAux, who, 1_000_000))
	}
	st := NewState(p)
	return &fixture{
		t:      t,
		bank:   bank,
		state:  &st,
		engine: New(&st, bank.Ledger(ledger.DenomToken), bank.Ledger(ledger.DenomAux)),
		events: &types.EventLog{},
	}
}

func (f *fixture) at(now uint64, who types.Address) types.Call {
	return types.Call{Caller: who, Clock: types.BlockClock{BlockHeight: now - t0 + 1, BlockTime: now}, Events: f.events}
}

func (f *fixture) tokens(who types.Address) uint64 {
	return f.bank.Balance(ledger.DenomToken, who)
}

func TestStakeMinimumAndCapacity(t *testing.T) {
	p := flatParams()
	p.MaxCapacity = 1_000
	f := newFixture(t, p)

	require.ErrorIs(t, f.engine.StakePrincipal(f.at(t0, alice), 0, false), dao.ErrZeroAmount)
	require.ErrorIs(t, f.engine.StakePrincipal(f.at(t0, alice), 99, false), dao.ErrBelowMinimum)
	require.NoError(t, f.engine.StakePrincipal(f.at(t0, alice), 600, false))
	require.ErrorIs(t, f.engine.StakePrincipal(f.at(t0, bob), 401, false), dao.ErrCapacityExceeded)
	require.NoError(t, f.engine.StakePrincipal(f.at(t0, bob), 400, false))

	assert.Equal(t, uint64(1_000), f.engine.TotalStaked())
	assert.Equal(t, uint64(1_000), f.tokens(ModuleAddress))
	assert.Equal(t, uint64(1_000_000-600), f.tokens(alice))
}

func TestYieldAccruesProRata(t *testing.T) {
	f := newFixture(t, flatParams())
	require.NoError(t, f.engine.StakePrincipal(f.at(t0, alice), 1_000, false))
	require.NoError(t, f.engine.FundRewards(f.at(t0, funder), 10_000))
	assert.Equal(t, uint64(100), f.state.RewardRate)

	assert.Equal(t, uint64(1_000), f.engine.PendingYield(alice, t0+10))

	require.NoError(t, f.engine.StakePrincipal(f.at(t0+10, bob), 1_000, false))
	assert.Equal(t, uint64(1_500), f.engine.PendingYield(alice, t0+20))
	assert.Equal(t, uint64(500), f.engine.PendingYield(bob, t0+20))

	got, err := f.engine.ClaimYield(f.at(t0+20, alice))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500), got)
	assert.Equal(t, uint64(1_000_000-1_000+1_500), f.tokens(alice))

	_, err = f.engine.ClaimYield(f.at(t0+20, alice))
	require.ErrorIs(t, err, ErrNoYield)
	require.ErrorIs(t, err, dao.ErrAlreadyDone)

	s, _ := f.engine.Stake(alice)
	assert.Equal(t, s.Accrued, s.Claimed)
}

func TestEmissionBoundedByPool(t *testing.T) {
	f := newFixture(t, flatParams())
	require.NoError(t, f.engine.StakePrincipal(f.at(t0, alice), 1_000, false))
	require.NoError(t, f.engine.FundRewards(f.at(t0, funder), 10_000))

	assert.Equal(t, uint64(10_000), f.engine.PendingYield(alice, t0+100))
	assert.Equal(t, uint64(10_000), f.engine.PendingYield(alice, t0+10_000), "nothing emitted after the window")

	got, err := f.engine.ClaimYield(f.at(t0+10_000, alice))
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), got)
	assert.Zero(t, f.engine.RewardPool())
}

func TestSmallPoolDrainsOverDefaultWindow(t *testing.T) {
	p := DefaultParams()
	f := newFixture(t, p)
	require.NoError(t, f.engine.StakePrincipal(f.at(t0, alice), 1_000, false))
	// Far below one token per second over the window.
	require.NoError(t, f.engine.FundRewards(f.at(t0, funder), 900_000))

	half := f.engine.PendingYield(alice, t0+p.RewardWindow/2)
	assert.InDelta(t, 450_000, float64(half), 1)

	got, err := f.engine.ClaimYield(f.at(t0+p.RewardWindow/2, alice))
	require.NoError(t, err)
	assert.Equal(t, half, got)

	// The rest is out by the end of the window and nothing after it.
	end := f.engine.PendingYield(alice, t0+p.RewardWindow)
	assert.Equal(t, end, f.engine.PendingYield(alice, t0+10*p.RewardWindow))
	got, err = f.engine.ClaimYield(f.at(t0+10*p.RewardWindow, alice))
	require.NoError(t, err)
	assert.InDelta(t, 900_000, float64(half+got), 2)
	assert.Zero(t, f.engine.RewardPool())
}

func TestOddPoolLeavesNothingStranded(t *testing.T) {
	f := newFixture(t, flatParams())
	require.NoError(t, f.engine.StakePrincipal(f.at(t0, alice), 1_000, false))
	require.NoError(t, f.engine.FundRewards(f.at(t0, funder), 1_099))
	for now := uint64(t0 + 7); now < t0+100; now += 7 {
		require.NoError(t, f.engine.StakePrincipal(f.at(now, bob), 100, false))
	}

	_, err := f.engine.ClaimYield(f.at(t0+100, alice))
	require.NoError(t, err)
	_, err = f.engine.ClaimYield(f.at(t0+100, bob))
	require.NoError(t, err)
	assert.Zero(t, f.engine.RewardPool())
	assert.Equal(t, uint64(1_099), f.state.TotalEmitted)
}

func TestReplenishMidWindowAccelerates(t *testing.T) {
	f := newFixture(t, flatParams())
	require.NoError(t, f.engine.StakePrincipal(f.at(t0, alice), 1_000, false))
	require.NoError(t, f.engine.FundRewards(f.at(t0, funder), 10_000))

	// Half the window later 5000 remain; adding 5000 spreads 10000 over a
	// fresh window.
	require.NoError(t, f.engine.FundRewards(f.at(t0+50, funder), 5_000))
	assert.Equal(t, uint64(10_000), f.engine.RewardPool())
	assert.Equal(t, uint64(100), f.state.RewardRate)
	assert.Equal(t, uint64(t0+150), f.state.PeriodFinish)
	assert.Equal(t, uint64(15_000), f.engine.PendingYield(alice, t0+150))
}

func TestUnlockLifecycle(t *testing.T) {
	f := newFixture(t, flatParams())
	e := f.engine
	require.NoError(t, e.StakePrincipal(f.at(t0, alice), 1_000, false))
	assert.Equal(t, uint64(1_000), e.EffectiveVotingWeight(alice))

	require.ErrorIs(t, e.RequestUnlock(f.at(t0+9, alice)), ErrHoldTime)
	require.ErrorIs(t, e.Unstake(f.at(t0+9, alice), 10), ErrNotLocked)

	require.NoError(t, e.RequestUnlock(f.at(t0+10, alice)))
	assert.Zero(t, e.EffectiveVotingWeight(alice), "unlocking stake carries no weight")
	require.ErrorIs(t, e.RequestUnlock(f.at(t0+11, alice)), ErrNotLocked)

	err := e.Unstake(f.at(t0+29, alice), 10)
	require.ErrorIs(t, err, ErrUnlocking)

	s, _ := e.Stake(alice)
	assert.Equal(t, Unlocked, s.LockAt(t0+30))

	require.ErrorIs(t, e.Unstake(f.at(t0+30, alice), 1_001), dao.ErrInsufficientFunds)
	require.NoError(t, e.Unstake(f.at(t0+30, alice), 400))

	s, _ = e.Stake(alice)
	assert.Equal(t, Locked, s.Lock, "remainder re-locks")
	assert.Equal(t, uint64(t0+30), s.LockedAt)
	assert.Equal(t, uint64(600), e.EffectiveVotingWeight(alice))
	assert.Equal(t, uint64(1_000_000-600), f.tokens(alice))

	// Re-locked: a fresh hold period applies.
	require.ErrorIs(t, e.RequestUnlock(f.at(t0+35, alice)), ErrHoldTime)
}

func TestFullUnstakeKeepsRecord(t *testing.T) {
	f := newFixture(t, flatParams())
	e := f.engine
	require.NoError(t, e.StakePrincipal(f.at(t0, alice), 1_000, false))
	require.NoError(t, e.FundRewards(f.at(t0, funder), 10_000))
	require.NoError(t, e.RequestUnlock(f.at(t0+10, alice)))
	require.NoError(t, e.Unstake(f.at(t0+30, alice), 1_000))

	s, ok := e.Stake(alice)
	require.True(t, ok)
	assert.Equal(t, Unlocked, s.Lock)
	assert.Zero(t, s.Principal)
	assert.Equal(t, uint64(3_000), s.Carry)

	got, err := e.ClaimYield(f.at(t0+40, alice))
	require.NoError(t, err)
	assert.Equal(t, uint64(3_000), got, "no accrual without principal")
}

func TestStakingWhileUnlockingRelocks(t *testing.T) {
	f := newFixture(t, flatParams())
	e := f.engine
	require.NoError(t, e.StakePrincipal(f.at(t0, alice), 1_000, false))
	require.NoError(t, e.RequestUnlock(f.at(t0+10, alice)))
	require.NoError(t, e.StakePrincipal(f.at(t0+12, alice), 100, false))

	s, _ := e.Stake(alice)
	assert.Equal(t, Locked, s.Lock)
	assert.Equal(t, uint64(1_100), e.EffectiveVotingWeight(alice))
}

func TestAuxiliaryStake(t *testing.T) {
	p := flatParams()
	p.AuxBonusBps = 1_000
	f := newFixture(t, p)
	e := f.engine

	require.ErrorIs(t, e.StakeAuxiliary(f.at(t0, alice), 100), ErrNoStake)
	require.NoError(t, e.StakePrincipal(f.at(t0, alice), 1_000, false))
	require.NoError(t, e.StakeAuxiliary(f.at(t0, alice), 400))

	s, _ := e.Stake(alice)
	assert.Equal(t, uint64(1_100), s.Effective, "aux bonus applies to principal")
	assert.Equal(t, uint64(1_200), e.EffectiveVotingWeight(alice), "aux counts at half weight")
	assert.Equal(t, uint64(400), f.bank.Balance(ledger.DenomAux, ModuleAddress))

	require.ErrorIs(t, e.UnstakeAuxiliary(f.at(t0+1, alice), 100), ErrNotLocked)
	require.NoError(t, e.RequestUnlock(f.at(t0+10, alice)))
	require.NoError(t, e.UnstakeAuxiliary(f.at(t0+30, alice), 400))
	s, _ = e.Stake(alice)
	assert.Equal(t, uint64(1_000), s.Effective)
	assert.Equal(t, Locked, s.Lock)
}

func TestPenaltyExit(t *testing.T) {
	f := newFixture(t, flatParams())
	e := f.engine
	require.NoError(t, e.StakePrincipal(f.at(t0, alice), 1_000, false))
	require.NoError(t, e.StakeAuxiliary(f.at(t0, alice), 500))
	require.NoError(t, e.StakePrincipal(f.at(t0, bob), 1_000, false))
	require.NoError(t, e.FundRewards(f.at(t0, funder), 10_000))

	out, auxOut, err := e.PenaltyExit(f.at(t0+10, alice))
	require.NoError(t, err)
	assert.Equal(t, uint64(900), out)
	assert.Equal(t, uint64(450), auxOut)

	_, ok := e.Stake(alice)
	assert.False(t, ok, "record cleared")
	assert.Zero(t, e.EffectiveVotingWeight(alice))
	assert.Equal(t, uint64(1_000), e.TotalStaked())

	// 9000 left undistributed + 100 fee + 500 forfeited yield.
	assert.Equal(t, uint64(9_600), e.RewardPool())
	assert.Equal(t, uint64(50), f.bank.Balance(ledger.DenomAux, ModuleAddress), "aux fee withheld")

	_, _, err = e.PenaltyExit(f.at(t0+10, alice))
	require.ErrorIs(t, err, ErrNoStake)
}

func TestAutoCompound(t *testing.T) {
	f := newFixture(t, flatParams())
	e := f.engine
	require.NoError(t, e.StakePrincipal(f.at(t0, alice), 1_000, true))
	require.NoError(t, e.FundRewards(f.at(t0, funder), 10_000))

	_, err := e.ClaimYield(f.at(t0+10, alice))
	require.ErrorIs(t, err, ErrCompounds)

	require.NoError(t, e.StakePrincipal(f.at(t0+10, alice), 100, true))
	s, _ := e.Stake(alice)
	assert.Equal(t, uint64(2_100), s.Principal, "1000 yield rolled in at checkpoint")
	assert.Zero(t, s.Carry)
	assert.Equal(t, s.Accrued, s.Claimed)
	assert.Equal(t, uint64(2_100), e.EffectiveVotingWeight(alice))
}

func TestCompound(t *testing.T) {
	f := newFixture(t, flatParams())
	e := f.engine
	require.NoError(t, e.StakePrincipal(f.at(t0, alice), 1_000, false))
	_, err := e.Compound(f.at(t0, alice))
	require.ErrorIs(t, err, ErrNoYield)

	require.NoError(t, e.FundRewards(f.at(t0, funder), 10_000))
	got, err := e.Compound(f.at(t0+5, alice))
	require.NoError(t, err)
	assert.Equal(t, uint64(500), got)
	s, _ := e.Stake(alice)
	assert.Equal(t, uint64(1_500), s.Principal)
	assert.Equal(t, uint64(1_500), e.TotalStaked())
}

func TestCompoundOnAutoCompoundingStake(t *testing.T) {
	f := newFixture(t, flatParams())
	e := f.engine
	require.NoError(t, e.StakePrincipal(f.at(t0, alice), 1_000, true))
	require.NoError(t, e.FundRewards(f.at(t0, funder), 10_000))

	got, err := e.Compound(f.at(t0+5, alice))
	require.NoError(t, err)
	assert.Equal(t, uint64(500), got)
	s, _ := e.Stake(alice)
	assert.Equal(t, uint64(1_500), s.Principal)
	assert.Zero(t, s.Carry)

	// Yield settled while unlocking is carried, then rolled by Compound
	// once the remainder re-locks.
	require.NoError(t, e.RequestUnlock(f.at(t0+10, alice)))
	require.NoError(t, e.Unstake(f.at(t0+30, alice), 500))
	s, _ = e.Stake(alice)
	require.Equal(t, Locked, s.Lock)
	carry := s.Carry
	require.NotZero(t, carry)

	got, err = e.Compound(f.at(t0+30, alice))
	require.NoError(t, err)
	assert.Equal(t, carry, got)
	s, _ = e.Stake(alice)
	assert.Zero(t, s.Carry)
	assert.Equal(t, s.Accrued, s.Claimed)

	_, err = e.Compound(f.at(t0+30, alice))
	require.ErrorIs(t, err, ErrNoYield)
}

func TestLongDurationBonusAtNextCheckpoint(t *testing.T) {
	p := flatParams()
	p.LongDurationThreshold = 50
	p.LongDurationBonusBps = 10_000
	f := newFixture(t, p)
	e := f.engine
	require.NoError(t, e.StakePrincipal(f.at(t0, alice), 1_000, false))
	assert.Equal(t, uint32(10_000), e.Multiplier(f.state.Stakes[0], t0+49))
	assert.Equal(t, uint32(20_000), e.Multiplier(f.state.Stakes[0], t0+50))

	s, _ := e.Stake(alice)
	assert.Equal(t, uint64(1_000), s.Effective, "not applied until checkpoint")
	require.NoError(t, e.StakePrincipal(f.at(t0+50, alice), 100, false))
	s, _ = e.Stake(alice)
	assert.Equal(t, uint64(2_200), s.Effective)
}

func TestTierLookupMonotonic(t *testing.T) {
	st := NewState(DefaultParams())
	e := New(&st, nil, nil)

	assert.Equal(t, uint8(0), e.Tier(999).Level)
	assert.Equal(t, uint8(1), e.Tier(1_000).Level)
	assert.Equal(t, uint8(4), e.Tier(1_000_000).Level)
	assert.Equal(t, uint32(3_000), e.Tier(5_000_000).BonusBps)

	var prev uint8
	for p := uint64(0); p <= 2_000_000; p += 997 {
		lvl := e.Tier(p).Level
		require.GreaterOrEqual(t, lvl, prev, "tier decreased at principal %d", p)
		prev = lvl
	}
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, DefaultParams().Validate())

	p := DefaultParams()
	p.Tiers[1].Threshold = p.Tiers[0].Threshold
	require.ErrorIs(t, p.Validate(), dao.ErrInvalidInput)

	p = DefaultParams()
	p.RewardWindow = 0
	require.Error(t, p.Validate())
}

// TestRandomSequences drives one participant through random operations and
// checks that unstake never exceeds principal, claims never exceed
// accruals, and the module always holds what it owes.
func TestRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for round := 0; round < 20; round++ {
		f := newFixture(t, flatParams())
		e := f.engine
		now := uint64(t0)
		require.NoError(t, e.StakePrincipal(f.at(now, bob), 500, false))
		require.NoError(t, e.FundRewards(f.at(now, funder), 50_000))

		for step := 0; step < 200; step++ {
			now += uint64(rng.IntN(15))
			call := f.at(now, alice)
			before, _ := e.Stake(alice)
			switch rng.IntN(7) {
			case 0:
				_ = e.StakePrincipal(call, uint64(100+rng.IntN(1_000)), rng.IntN(4) == 0)
			case 1:
				_ = e.RequestUnlock(call)
			case 2:
				amount := uint64(1 + rng.IntN(1_500))
				err := e.Unstake(call, amount)
				if err == nil {
					require.LessOrEqual(t, amount, before.Principal+before.Carry)
				}
			case 3:
				_, _ = e.ClaimYield(call)
			case 4:
				_, _ = e.Compound(call)
			case 5:
				if rng.IntN(10) == 0 {
					_, _, _ = e.PenaltyExit(call)
				}
			case 6:
				_ = e.FundRewards(f.at(now, funder), uint64(rng.IntN(5_000)+1))
			}

			if s, ok := e.Stake(alice); ok {
				require.LessOrEqual(t, s.Claimed+s.Carry, s.Accrued)
			}
			var owedCarry uint64
			for _, s := range f.state.Stakes {
				owedCarry += s.Carry
			}
			require.GreaterOrEqual(t, f.tokens(ModuleAddress),
				f.state.TotalPrincipal+f.state.Undistributed+owedCarry)
		}
	}
}

func TestUnstakeNeverExceedsPrincipal(t *testing.T) {
	f := newFixture(t, flatParams())
	e := f.engine
	require.NoError(t, e.StakePrincipal(f.at(t0, alice), 1_000, false))
	require.NoError(t, e.RequestUnlock(f.at(t0+10, alice)))
	for _, amount := range []uint64{1_001, 5_000, 1 << 62} {
		require.ErrorIs(t, e.Unstake(f.at(t0+30, alice), amount), dao.ErrInsufficientFunds)
	}
	s, _ := e.Stake(alice)
	assert.Equal(t, uint64(1_000), s.Principal)
}
