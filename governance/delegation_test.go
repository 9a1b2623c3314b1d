package governance

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/types"
)

func TestDelegationMovesWeight(t *testing.T) {
	f := newFixture(t, testParams())
	e := f.engine

	require.ErrorIs(t, e.DelegateVotes(f.at(1, alice), alice), ErrSelfDelegation)
	require.ErrorIs(t, e.DelegateVotes(f.at(1, alice), types.ZeroAddress), dao.ErrInvalidInput)
	require.ErrorIs(t, e.RevokeDelegation(f.at(1, alice)), ErrNotDelegating)

	require.NoError(t, e.DelegateVotes(f.at(1, alice), bob))
	assert.Zero(t, e.EffectiveWeight(alice))
	assert.Equal(t, uint64(8_000), e.EffectiveWeight(bob))
	require.ErrorIs(t, e.DelegateVotes(f.at(1, alice), bob), dao.ErrAlreadyDone)

	// Re-delegation moves the whole weight away from the prior delegatee.
	require.NoError(t, e.DelegateVotes(f.at(2, alice), carol))
	assert.Equal(t, uint64(3_000), e.EffectiveWeight(bob))
	assert.Equal(t, uint64(5_100), e.EffectiveWeight(carol))
	to, ok := e.Delegatee(alice)
	require.True(t, ok)
	assert.Equal(t, carol, to)

	// Delegated weight is not transitive.
	require.NoError(t, e.DelegateVotes(f.at(3, carol), bob))
	assert.Equal(t, uint64(3_100), e.EffectiveWeight(bob))
	assert.Equal(t, uint64(5_000), e.EffectiveWeight(carol))

	require.NoError(t, e.RevokeDelegation(f.at(4, alice)))
	assert.Equal(t, uint64(5_000), e.EffectiveWeight(alice))
	assert.Zero(t, e.EffectiveWeight(carol))
	assert.Len(t, f.state.Delegates, len(f.state.Delegations))
}

func TestDelegatedWeightCanPropose(t *testing.T) {
	f := newFixture(t, testParams())
	e := f.engine
	dave := types.ModuleAddress("test/dave")
	f.weights[dave] = 900

	_, err := e.CreateProposal(f.at(1, carol), CategoryGeneral, signal(), "")
	require.ErrorIs(t, err, dao.ErrInsufficientWeight)
	require.NoError(t, e.DelegateVotes(f.at(1, dave), carol))
	_, err = e.CreateProposal(f.at(1, carol), CategoryGeneral, signal(), "")
	require.NoError(t, err)
}

// TestDelegationRoundTrip checks that delegate then revoke restores the
// delegator's full weight and removes it from the delegatee, for any
// weights.
func TestDelegationRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	for i := 0; i < 200; i++ {
		f := newFixture(t, testParams())
		e := f.engine
		f.weights[alice] = rng.Uint64N(1 << 40)
		f.weights[bob] = rng.Uint64N(1 << 40)
		if i%10 == 0 {
			f.weights[alice] = 0
		}
		beforeA, beforeB := e.EffectiveWeight(alice), e.EffectiveWeight(bob)

		require.NoError(t, e.DelegateVotes(f.at(1, alice), bob))
		require.Equal(t, beforeB+beforeA, e.EffectiveWeight(bob))
		require.Zero(t, e.EffectiveWeight(alice))

		require.NoError(t, e.RevokeDelegation(f.at(2, alice)))
		require.Equal(t, beforeA, e.EffectiveWeight(alice))
		require.Equal(t, beforeB, e.EffectiveWeight(bob))
		require.Empty(t, f.state.Delegations)
		require.Empty(t, f.state.Delegates)
	}
}

func TestDelegateIndexSorted(t *testing.T) {
	f := newFixture(t, testParams())
	e := f.engine
	for i := 0; i < 30; i++ {
		from := types.ModuleAddress(string(rune('A' + i)))
		to := []types.Address{alice, bob, carol}[i%3]
		require.NoError(t, e.DelegateVotes(f.at(1, from), to))
	}
	for i := 1; i < len(f.state.Delegates); i++ {
		require.True(t, delegateLess(f.state.Delegates[i-1], f.state.Delegates[i]))
	}
	for i := 1; i < len(f.state.Delegations); i++ {
		require.Negative(t, f.state.Delegations[i-1].Delegator.Compare(f.state.Delegations[i].Delegator))
	}
	assert.Len(t, f.state.delegatorsOf(bob), 10)
}

// Weight cast before delegating stays on the proposal, so the delegatee
// can count it again.
func TestVoteThenDelegateCountsTwice(t *testing.T) {
	f := newFixture(t, testParams())
	e := f.engine
	id, err := e.CreateProposal(f.at(1, alice), CategoryGeneral, signal(), "")
	require.NoError(t, err)

	_, err = e.CastVote(f.at(2, alice), id, For)
	require.NoError(t, err)
	require.NoError(t, e.DelegateVotes(f.at(3, alice), bob))
	w, err := e.CastVote(f.at(3, bob), id, For)
	require.NoError(t, err)
	assert.Equal(t, uint64(8_000), w)

	p, _ := e.Proposal(id)
	assert.Equal(t, uint64(13_000), p.ForVotes)
}
