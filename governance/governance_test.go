package governance

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/auth"
	"github.com/blockberries/dao/ledger"
	"github.com/blockberries/dao/types"
)

var (
	alice    = types.ModuleAddress("test/alice")
	bob      = types.ModuleAddress("test/bob")
	carol    = types.ModuleAddress("test/carol")
	guardian = types.ModuleAddress("test/guardian")
)

type weights map[types.Address]uint64

func (w weights) EffectiveVotingWeight(id types.Address) uint64 { return w[id] }

type fixture struct {
	state   *State
	engine  *Engine
	weights weights
	mux     *Mux
	events  *types.EventLog
}

func newFixture(t *testing.T, p Params) *fixture {
	t.Helper()
	bankState := ledger.NewState()
	bank := ledger.NewBank(&bankState)
	require.NoError(t, bank.Mint(ledger.DenomToken, alice, 1_000_000))

	authState := auth.State{}
	reg := auth.NewRegistry(&authState)
	require.NoError(t, reg.Grant(types.Call{}, auth.RoleGuardian, guardian))

	st := NewState(p)
	w := weights{alice: 5_000, bob: 3_000, carol: 100}
	mux := NewMux()
	return &fixture{
		state:   &st,
		engine:  New(&st, w, bank.Ledger(ledger.DenomToken), reg, mux),
		weights: w,
		mux:     mux,
		events:  &types.EventLog{},
	}
}

func (f *fixture) at(height uint64, who types.Address) types.Call {
	return types.Call{
		Caller: who,
		Clock:  types.BlockClock{BlockHeight: height, BlockTime: 1_000 + height*5},
		Events: f.events,
	}
}

func testParams() Params {
	return Params{ProposalThreshold: 1_000, VotingPeriod: 10, QuorumBps: 400, MaxDescriptionBytes: 64}
}

func signal() types.ProposalAction { return types.ProposalAction{Kind: types.ActionNone} }

func TestCreateProposalThreshold(t *testing.T) {
	f := newFixture(t, testParams())
	_, err := f.engine.CreateProposal(f.at(5, carol), CategoryGeneral, signal(), "x")
	require.ErrorIs(t, err, dao.ErrInsufficientWeight)

	id, err := f.engine.CreateProposal(f.at(5, alice), CategoryGeneral, signal(), "x")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id)

	p, err := f.engine.Proposal(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), p.StartHeight)
	assert.Equal(t, uint64(15), p.EndHeight)
	assert.Equal(t, uint64(40_000), p.QuorumVotes, "4% of 1,000,000 supply")

	s, _ := f.engine.ProposalState(id, 5)
	assert.Equal(t, StatusPending, s)
	s, _ = f.engine.ProposalState(id, 6)
	assert.Equal(t, StatusActive, s)
}

func TestCreateProposalValidation(t *testing.T) {
	f := newFixture(t, testParams())
	cases := []struct {
		name   string
		cat    Category
		action types.ProposalAction
		desc   string
	}{
		{"bad category", Category(9), signal(), ""},
		{"long description", CategoryGeneral, signal(), string(make([]byte, 65))},
		{"treasury outside namespace", CategoryTreasury, types.ProposalAction{Kind: types.ActionTreasury, Target: "auth.grant"}, ""},
		{"call without target", CategoryGeneral, types.ProposalAction{Kind: types.ActionCall}, ""},
		{"signal with payload", CategoryGeneral, types.ProposalAction{Payload: []byte{1}}, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := f.engine.CreateProposal(f.at(1, alice), c.cat, c.action, c.desc)
			require.ErrorIs(t, err, dao.ErrInvalidInput)
		})
	}
}

func TestVotingAndResolution(t *testing.T) {
	f := newFixture(t, Params{ProposalThreshold: 1_000, VotingPeriod: 10, QuorumBps: 50})
	e := f.engine
	id, err := e.CreateProposal(f.at(1, alice), CategoryGeneral, signal(), "")
	require.NoError(t, err)

	_, err = e.CastVote(f.at(1, alice), id, For)
	require.ErrorIs(t, err, ErrNotActive, "voting opens one block after creation")

	w, err := e.CastVote(f.at(2, alice), id, For)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000), w)

	_, err = e.CastVote(f.at(3, alice), id, Against)
	require.ErrorIs(t, err, dao.ErrAlreadyVoted)

	_, err = e.CastVote(f.at(3, bob), id, Against)
	require.NoError(t, err)
	_, err = e.CastVote(f.at(11, carol), id, Abstain)
	require.NoError(t, err)
	_, err = e.CastVote(f.at(11, types.ModuleAddress("nobody")), id, For)
	require.ErrorIs(t, err, dao.ErrInsufficientWeight)

	_, err = e.CastVote(f.at(11, guardian), id, For)
	require.ErrorIs(t, err, dao.ErrInsufficientWeight)

	p, _ := e.Proposal(id)
	assert.Equal(t, uint64(5_000), p.ForVotes)
	assert.Equal(t, uint64(3_000), p.AgainstVotes)
	assert.Equal(t, uint64(100), p.AbstainVotes)
	assert.Equal(t, uint64(3), p.Voters)

	var sum [3]uint64
	for _, r := range f.state.Receipts {
		sum[r.Choice] += r.Weight
	}
	assert.Equal(t, [3]uint64{p.AgainstVotes, p.ForVotes, p.AbstainVotes}, sum)

	_, err = e.CastVote(f.at(12, types.ModuleAddress("late")), id, For)
	require.ErrorIs(t, err, ErrNotActive)

	for h := uint64(12); h < 20; h++ {
		s, _ := e.ProposalState(id, h)
		assert.Equal(t, StatusSucceeded, s, "height %d", h)
	}
}

func TestResolveQuorumAndTies(t *testing.T) {
	base := Proposal{StartHeight: 2, EndHeight: 10, QuorumVotes: 1_000}
	cases := []struct {
		name                string
		forV, against, abst uint64
		want                Status
	}{
		{"below quorum", 600, 399, 5_000, StatusDefeated},
		{"quorum reached", 600, 400, 0, StatusSucceeded},
		{"tie", 500, 500, 0, StatusDefeated},
		{"against wins", 400, 700, 0, StatusDefeated},
		{"abstain excluded", 999, 0, 10_000, StatusDefeated},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := base
			p.ForVotes, p.AgainstVotes, p.AbstainVotes = c.forV, c.against, c.abst
			assert.Equal(t, c.want, Resolve(p, 11))
			assert.Equal(t, Resolve(p, 11), Resolve(p, 1_000), "resolution is stable")
		})
	}
}

func succeeded(t *testing.T, f *fixture, action types.ProposalAction) uint64 {
	t.Helper()
	id, err := f.engine.CreateProposal(f.at(1, alice), CategoryGeneral, action, "")
	require.NoError(t, err)
	_, err = f.engine.CastVote(f.at(2, alice), id, For)
	require.NoError(t, err)
	return id
}

func TestExecuteDispatchesAsModule(t *testing.T) {
	p := testParams()
	p.QuorumBps = 10
	f := newFixture(t, p)
	var got struct {
		caller  types.Address
		payload []byte
	}
	f.mux.Handle("treasury.fund", func(call types.Call, payload []byte) error {
		got.caller, got.payload = call.Caller, payload
		return nil
	})
	id := succeeded(t, f, types.ProposalAction{Kind: types.ActionTreasury, Target: "treasury.fund", Payload: []byte{7}})

	require.ErrorIs(t, f.engine.ExecuteProposal(f.at(5, bob), id), ErrNotSucceeded)
	require.NoError(t, f.engine.ExecuteProposal(f.at(12, bob), id))
	assert.Equal(t, ModuleAddress, got.caller)
	assert.Equal(t, []byte{7}, got.payload)

	pr, _ := f.engine.Proposal(id)
	assert.Equal(t, StatusExecuted, pr.Status)
	assert.Equal(t, uint64(1_060), pr.ExecutedAt)

	require.ErrorIs(t, f.engine.ExecuteProposal(f.at(13, bob), id), dao.ErrInvalidState)
}

func TestExecuteRevertsOnDispatchFailure(t *testing.T) {
	p := testParams()
	p.QuorumBps = 10
	f := newFixture(t, p)
	boom := errors.New("boom")
	f.mux.Handle("ledger.transfer", func(types.Call, []byte) error { return fmt.Errorf("%w: %w", dao.ErrTransferFailed, boom) })
	id := succeeded(t, f, types.ProposalAction{Kind: types.ActionCall, Target: "ledger.transfer"})

	err := f.engine.ExecuteProposal(f.at(12, bob), id)
	require.ErrorIs(t, err, dao.ErrExecutionReverted)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, dao.CodeExecutionReverted, dao.ResultCode(err))

	id2 := succeeded(t, f, types.ProposalAction{Kind: types.ActionCall, Target: "nowhere"})
	err = f.engine.ExecuteProposal(f.at(12, bob), id2)
	require.ErrorIs(t, err, dao.ErrExecutionReverted)
}

func TestExecuteRejectsReentry(t *testing.T) {
	p := testParams()
	p.QuorumBps = 10
	f := newFixture(t, p)
	var inner error
	f.mux.Handle("governance.execute", func(call types.Call, payload []byte) error {
		inner = f.engine.ExecuteProposal(call, 2)
		return inner
	})
	id := succeeded(t, f, types.ProposalAction{Kind: types.ActionCall, Target: "governance.execute"})
	succeeded(t, f, signal())

	err := f.engine.ExecuteProposal(f.at(12, bob), id)
	require.ErrorIs(t, inner, dao.ErrReentrant)
	require.ErrorIs(t, err, dao.ErrExecutionReverted)
	require.NoError(t, f.engine.ExecuteProposal(f.at(12, bob), 2), "guard released after return")
}

func TestQueueAndTimelock(t *testing.T) {
	p := testParams()
	p.QuorumBps = 10
	p.ExecutionDelay = 100
	f := newFixture(t, p)
	id := succeeded(t, f, signal())

	require.ErrorIs(t, f.engine.QueueProposal(f.at(5, bob), id), ErrNotSucceeded)
	require.ErrorIs(t, f.engine.ExecuteProposal(f.at(12, bob), id), dao.ErrInvalidState)
	require.NoError(t, f.engine.QueueProposal(f.at(12, bob), id))

	pr, _ := f.engine.Proposal(id)
	assert.Equal(t, uint64(1_060+100), pr.ETA)
	require.ErrorIs(t, f.engine.ExecuteProposal(f.at(13, bob), id), ErrTimelock)
	require.NoError(t, f.engine.ExecuteProposal(f.at(40, bob), id))
}

func TestQueueRequiresDelay(t *testing.T) {
	p := testParams()
	p.QuorumBps = 10
	f := newFixture(t, p)
	id := succeeded(t, f, signal())
	require.ErrorIs(t, f.engine.QueueProposal(f.at(12, bob), id), dao.ErrInvalidState)
}

func TestCancel(t *testing.T) {
	p := testParams()
	p.QuorumBps = 10
	f := newFixture(t, p)
	id := succeeded(t, f, signal())

	require.ErrorIs(t, f.engine.CancelProposal(f.at(3, alice), id), dao.ErrUnauthorized)
	require.NoError(t, f.engine.CancelProposal(f.at(3, guardian), id))
	s, _ := f.engine.ProposalState(id, 100)
	assert.Equal(t, StatusCancelled, s)
	require.ErrorIs(t, f.engine.CancelProposal(f.at(4, guardian), id), dao.ErrInvalidState)
	require.ErrorIs(t, f.engine.ExecuteProposal(f.at(12, bob), id), ErrNotSucceeded)

	// Defeated is terminal.
	id2, err := f.engine.CreateProposal(f.at(1, alice), CategoryGeneral, signal(), "")
	require.NoError(t, err)
	require.ErrorIs(t, f.engine.CancelProposal(f.at(50, guardian), id2), dao.ErrInvalidState)

	_, err = f.engine.ProposalState(99, 1)
	require.ErrorIs(t, err, ErrUnknownProposal)
}
