package treasury

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/auth"
	"github.com/blockberries/dao/ledger"
	"github.com/blockberries/dao/staking"
	"github.com/blockberries/dao/types"
)

var (
	alice   = types.ModuleAddress("test/alice")
	bob     = types.ModuleAddress("test/bob")
	manager = types.ModuleAddress("test/manager")
	auditor = types.ModuleAddress("test/auditor")
)

const t0 = 1_000

type fixture struct {
	bank    *ledger.Bank
	state   *State
	staking *staking.Engine
	engine  *Engine
	events  *types.EventLog
}

func testParams() Params {
	return Params{
		MinProjectAmount:  1_000,
		MaxProjectAmount:  50_000,
		MaxActiveProjects: 2,
		InsuranceBps:      500,
		MaxMilestones:     4,
	}
}

func newFixture(t *testing.T, deposit uint64) *fixture {
	t.Helper()
	bankState := ledger.NewState()
	bank := ledger.NewBank(&bankState)
	require.NoError(t, bank.Mint(ledger.DenomToken, alice, 1_000_000))
	require.NoError(t, bank.Mint(ledger.DenomToken, bob, 1_000_000))

	authState := auth.State{}
	reg := auth.NewRegistry(&authState)
	require.NoError(t, reg.Grant(types.Call{}, auth.RoleTreasuryManager, manager))
	require.NoError(t, reg.Grant(types.Call{}, auth.RoleAuditor, auditor))

	stakingState := staking.NewState(staking.DefaultParams())
	stk := staking.New(&stakingState, bank.Ledger(ledger.DenomToken), bank.Ledger(ledger.DenomAux))

	st := NewState(testParams())
	f := &fixture{
		bank:    bank,
		state:   &st,
		staking: stk,
		engine:  New(&st, bank.Ledger(ledger.DenomToken), reg, stk),
		events:  &types.EventLog{},
	}
	if deposit > 0 {
		require.NoError(t, f.engine.Deposit(f.at(t0, alice), deposit))
	}
	return f
}

func (f *fixture) at(now uint64, who types.Address) types.Call {
	return types.Call{Caller: who, Clock: types.BlockClock{BlockHeight: now, BlockTime: now}, Events: f.events}
}

func (f *fixture) tokens(who types.Address) uint64 { return f.bank.Balance(ledger.DenomToken, who) }

// activeProject proposes, approves, adds the given milestones and funds a
// project for bob.
func (f *fixture) activeProject(t *testing.T, amount uint64, milestones ...uint64) uint64 {
	t.Helper()
	e := f.engine
	id, err := e.ProposeProject(f.at(t0, alice), bob, CategoryResearch, amount, 2_000, t0+1_000, "lab")
	require.NoError(t, err)
	require.NoError(t, e.ApproveProject(f.at(t0, manager), id))
	for _, m := range milestones {
		_, err := e.AddMilestone(f.at(t0, bob), id, "step", m, t0+500)
		require.NoError(t, err)
	}
	require.NoError(t, e.FundProject(f.at(t0, manager), id))
	return id
}

func TestSplitProfitExact(t *testing.T) {
	s := SplitProfit(1_000)
	assert.Equal(t, ProfitSplit{ToStakers: 700, ToTreasury: 100, ToRestaking: 200}, s)

	s = SplitProfit(7)
	assert.Equal(t, uint64(4), s.ToStakers)
	assert.Equal(t, uint64(1), s.ToRestaking)
	assert.Equal(t, uint64(2), s.ToTreasury, "remainder absorbed by treasury")

	check := func(p uint64) {
		s := SplitProfit(p)
		require.Equal(t, p, s.ToStakers+s.ToTreasury+s.ToRestaking, "profit %d", p)
	}
	for p := uint64(0); p < 5_000; p++ {
		check(p)
	}
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10_000; i++ {
		check(rng.Uint64())
	}
	check(^uint64(0))
}

func TestProjectLifecycle(t *testing.T) {
	f := newFixture(t, 100_000)
	e := f.engine

	id, err := e.ProposeProject(f.at(t0, alice), bob, CategoryDevelopment, 10_000, 1_500, t0+1_000, "indexer")
	require.NoError(t, err)
	require.ErrorIs(t, e.ApproveProject(f.at(t0, alice), id), dao.ErrUnauthorized)
	_, err = e.AddMilestone(f.at(t0, bob), id, "early", 1_000, t0+500)
	require.ErrorIs(t, err, dao.ErrInvalidState, "milestones only while approved")
	require.NoError(t, e.ApproveProject(f.at(t0+1, manager), id))
	require.ErrorIs(t, e.FundProject(f.at(t0+1, manager), id), dao.ErrInvalidState, "no milestones yet")

	_, err = e.AddMilestone(f.at(t0+1, bob), id, "alpha", 6_000, t0+500)
	require.NoError(t, err)
	_, err = e.AddMilestone(f.at(t0+1, alice), id, "beta", 4_000, t0+500)
	require.ErrorIs(t, err, dao.ErrUnauthorized)
	_, err = e.AddMilestone(f.at(t0+1, manager), id, "beta", 4_000, t0+500)
	require.NoError(t, err)
	_, err = e.AddMilestone(f.at(t0+1, bob), id, "gamma", 1, t0+500)
	require.ErrorIs(t, err, ErrMilestoneSum)
	require.ErrorIs(t, err, dao.ErrInvariantViolation)

	require.NoError(t, e.FundProject(f.at(t0+2, manager), id))
	sum := e.Summary()
	assert.Equal(t, uint64(99_500), sum.Balance)
	assert.Equal(t, uint64(500), sum.InsurancePool)
	assert.Equal(t, uint64(10_000), sum.Committed)
	assert.Equal(t, []uint64{id}, e.ActiveProjectIDs())

	require.ErrorIs(t, e.ReleaseMilestoneFunds(f.at(t0+3, auditor), id, 0), dao.ErrInvalidState)
	require.ErrorIs(t, e.CompleteMilestone(f.at(t0+3, alice), id, 0), ErrNotRecipient)
	require.NoError(t, e.CompleteMilestone(f.at(t0+3, bob), id, 0))
	require.ErrorIs(t, e.CompleteMilestone(f.at(t0+3, bob), id, 0), dao.ErrAlreadyDone)
	require.ErrorIs(t, e.CompleteMilestone(f.at(t0+3, bob), id, 9), dao.ErrInvalidInput)

	require.ErrorIs(t, e.ReleaseMilestoneFunds(f.at(t0+4, manager), id, 0), dao.ErrUnauthorized)
	require.NoError(t, e.ReleaseMilestoneFunds(f.at(t0+4, auditor), id, 0))
	assert.Equal(t, uint64(1_006_000), f.tokens(bob))
	err = e.ReleaseMilestoneFunds(f.at(t0+4, auditor), id, 0)
	require.ErrorIs(t, err, dao.ErrAlreadyDone, "a milestone is released at most once")
	assert.Equal(t, uint64(1_006_000), f.tokens(bob))

	require.ErrorIs(t, e.ReturnFunds(f.at(t0+5, alice), id, 1), ErrNotRecipient)
	require.NoError(t, e.ReturnFunds(f.at(t0+5, bob), id, 5_000))
	p, _ := e.Project(id)
	assert.Equal(t, StatusActive, p.Status)
	assert.Zero(t, p.ActualYieldBps, "yield computed only once fully returned")

	require.NoError(t, e.ReturnFunds(f.at(t0+6, bob), id, 7_000))
	p, _ = e.Project(id)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, uint64(2_000), p.Profit)
	assert.Equal(t, uint32(2_000), p.ActualYieldBps)
	assert.Empty(t, e.ActiveProjectIDs())

	sum = e.Summary()
	assert.Equal(t, uint64(103_700), sum.Balance)
	assert.Zero(t, sum.Committed)
	assert.Equal(t, uint64(1_800), f.staking.RewardPool(), "staker and restaking shares")
	assert.Equal(t, uint64(1_800), f.tokens(staking.ModuleAddress))
	assert.Equal(t, sum.Balance+sum.InsurancePool, f.tokens(ModuleAddress))

	require.ErrorIs(t, e.ReturnFunds(f.at(t0+7, bob), id, 1), dao.ErrInvalidState)
}

func TestFundRequiresCoverage(t *testing.T) {
	f := newFixture(t, 10_000)
	id, err := f.engine.ProposeProject(f.at(t0, alice), bob, CategoryCommunity, 10_000, 0, t0+1_000, "meetup")
	require.NoError(t, err)
	require.NoError(t, f.engine.ApproveProject(f.at(t0, manager), id))
	_, err = f.engine.AddMilestone(f.at(t0, bob), id, "all", 10_000, t0+10)
	require.NoError(t, err)

	err = f.engine.FundProject(f.at(t0, manager), id)
	require.ErrorIs(t, err, dao.ErrInsufficientFunds, "fee is not covered")

	require.NoError(t, f.engine.Deposit(f.at(t0, alice), 500))
	require.NoError(t, f.engine.FundProject(f.at(t0, manager), id))
	assert.Zero(t, f.engine.Available())
}

func TestProposeValidation(t *testing.T) {
	f := newFixture(t, 0)
	e := f.engine
	_, err := e.ProposeProject(f.at(t0, alice), types.ZeroAddress, CategoryResearch, 5_000, 0, t0+1, "")
	require.ErrorIs(t, err, dao.ErrInvalidInput)
	_, err = e.ProposeProject(f.at(t0, alice), bob, CategoryResearch, 999, 0, t0+1, "")
	require.ErrorIs(t, err, dao.ErrInvalidInput)
	_, err = e.ProposeProject(f.at(t0, alice), bob, CategoryResearch, 50_001, 0, t0+1, "")
	require.ErrorIs(t, err, dao.ErrInvalidInput)
	_, err = e.ProposeProject(f.at(t0, alice), bob, Category(5), 5_000, 0, t0+1, "")
	require.ErrorIs(t, err, dao.ErrInvalidInput)
	_, err = e.ProposeProject(f.at(t0, alice), bob, CategoryResearch, 5_000, 0, t0, "")
	require.ErrorIs(t, err, dao.ErrInvalidInput)
}

func TestActiveProjectCap(t *testing.T) {
	f := newFixture(t, 100_000)
	f.activeProject(t, 5_000, 5_000)
	f.activeProject(t, 5_000, 5_000)
	_, err := f.engine.ProposeProject(f.at(t0, alice), bob, CategoryResearch, 5_000, 0, t0+10, "")
	require.ErrorIs(t, err, ErrTooManyProjects)
}

func TestCompleteAfterDeadline(t *testing.T) {
	f := newFixture(t, 100_000)
	id := f.activeProject(t, 5_000, 5_000)
	require.ErrorIs(t, f.engine.CompleteMilestone(f.at(t0+501, bob), id, 0), dao.ErrInvalidState)
	require.NoError(t, f.engine.CompleteMilestone(f.at(t0+500, bob), id, 0))
}

func TestMarkProjectFailed(t *testing.T) {
	f := newFixture(t, 100_000)
	e := f.engine
	id := f.activeProject(t, 20_000, 20_000)
	assert.Equal(t, uint64(1_000), e.InsurancePool())

	require.NoError(t, e.ReturnFunds(f.at(t0+10, bob), id, 12_000))
	_, err := e.MarkProjectFailed(f.at(t0+10, auditor), id)
	require.ErrorIs(t, err, dao.ErrUnauthorized)
	_, err = e.MarkProjectFailed(f.at(t0+10, manager), id)
	require.ErrorIs(t, err, ErrNotFailing)

	balance := e.TreasuryBalance()
	payout, err := e.MarkProjectFailed(f.at(t0+1_001, manager), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000), payout, "capped at the pool")
	assert.Zero(t, e.InsurancePool())
	assert.Equal(t, balance+1_000, e.TreasuryBalance())
	assert.Zero(t, f.state.Committed)

	p, _ := e.Project(id)
	assert.Equal(t, StatusFailed, p.Status)
	assert.Empty(t, e.ActiveProjectIDs())
	_, err = e.MarkProjectFailed(f.at(t0+1_002, manager), id)
	require.ErrorIs(t, err, dao.ErrInvalidState)
}

func TestMarkFailedBelowHalfReturned(t *testing.T) {
	f := newFixture(t, 100_000)
	first := f.activeProject(t, 40_000, 40_000)
	id := f.activeProject(t, 2_000, 2_000)
	assert.Equal(t, uint64(2_100), f.engine.InsurancePool())

	require.NoError(t, f.engine.ReturnFunds(f.at(t0+1, bob), id, 999))
	payout, err := f.engine.MarkProjectFailed(f.at(t0+1, manager), id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_001), payout, "shortfall smaller than pool")
	assert.Equal(t, uint64(1_099), f.engine.InsurancePool())
	assert.Equal(t, []uint64{first}, f.engine.ActiveProjectIDs())
}

func TestMarkFailedHalfOfOddFunding(t *testing.T) {
	f := newFixture(t, 100_000)
	e := f.engine

	short := f.activeProject(t, 1_001, 1_001)
	require.NoError(t, e.ReturnFunds(f.at(t0+1, bob), short, 500))
	_, err := e.MarkProjectFailed(f.at(t0+1, manager), short)
	require.NoError(t, err, "500 is below half of 1001")

	half := f.activeProject(t, 1_001, 1_001)
	require.NoError(t, e.ReturnFunds(f.at(t0+1, bob), half, 501))
	_, err = e.MarkProjectFailed(f.at(t0+1, manager), half)
	require.ErrorIs(t, err, ErrNotFailing)
}

func TestCancelProject(t *testing.T) {
	f := newFixture(t, 100_000)
	e := f.engine
	id, err := e.ProposeProject(f.at(t0, alice), bob, CategoryMarketing, 5_000, 0, t0+10, "")
	require.NoError(t, err)
	require.ErrorIs(t, e.CancelProject(f.at(t0, alice), id), dao.ErrUnauthorized)
	require.NoError(t, e.CancelProject(f.at(t0, manager), id))
	require.ErrorIs(t, e.ApproveProject(f.at(t0, manager), id), dao.ErrInvalidState)

	active := f.activeProject(t, 5_000, 5_000)
	require.ErrorIs(t, e.CancelProject(f.at(t0, manager), active), dao.ErrInvalidState)
	_, err = e.Project(99)
	require.ErrorIs(t, err, ErrUnknownProject)
}

func TestFundingAllocation(t *testing.T) {
	f := newFixture(t, 0)
	e := f.engine
	plan := FundingAllocation{Year: 2026, Quarter: 3, Development: 10, Research: 20, Community: 30, Marketing: 40, Operations: 50}

	require.ErrorIs(t, e.SetFundingAllocation(f.at(t0, alice), plan), dao.ErrUnauthorized)
	bad := plan
	bad.Quarter = 5
	require.ErrorIs(t, e.SetFundingAllocation(f.at(t0, manager), bad), dao.ErrInvalidInput)

	require.NoError(t, e.SetFundingAllocation(f.at(t0, manager), plan))
	earlier := plan
	earlier.Quarter = 1
	require.NoError(t, e.SetFundingAllocation(f.at(t0, manager), earlier))
	plan.Research = 25
	require.NoError(t, e.SetFundingAllocation(f.at(t0+1, manager), plan))

	got, ok := e.FundingAllocation(2026, 3)
	require.True(t, ok)
	assert.Equal(t, uint64(155), got.Total())
	assert.Equal(t, uint64(t0+1), got.SetAt)
	assert.Len(t, f.state.Allocations, 2)
	assert.Equal(t, uint8(1), f.state.Allocations[0].Quarter)

	_, ok = e.FundingAllocation(2027, 1)
	assert.False(t, ok)
}
