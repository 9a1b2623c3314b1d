package governance

import (
	"fmt"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/types"
)

// EffectiveWeight is the weight id votes with: its own stake-derived
// weight unless it delegates, plus the own weight of everyone delegating
// to it. Delegated weight is not transitive.
func (e *Engine) EffectiveWeight(id types.Address) uint64 {
	var w uint64
	if _, delegating := e.state.findDelegation(id); !delegating {
		w = e.own(id)
	}
	for _, d := range e.state.delegatorsOf(id) {
		w += e.own(d.Delegator)
	}
	return w
}

func (e *Engine) own(id types.Address) uint64 {
	if e.weights == nil {
		return 0
	}
	return e.weights.EffectiveVotingWeight(id)
}

// Delegatee returns who id delegates to.
func (e *Engine) Delegatee(id types.Address) (types.Address, bool) {
	i, ok := e.state.findDelegation(id)
	if !ok {
		return types.ZeroAddress, false
	}
	return e.state.Delegations[i].Delegatee, true
}

// DelegateVotes moves the caller's whole own weight to delegatee, taking
// it away from any previous delegatee. Votes already cast keep their
// weight, so a delegatee voting afterwards on the same proposal counts it
// a second time.
func (e *Engine) DelegateVotes(call types.Call, delegatee types.Address) error {
	if delegatee.IsZero() {
		return dao.ErrZeroAddress
	}
	if delegatee == call.Caller {
		return ErrSelfDelegation
	}
	st := e.state
	d := Delegation{Delegator: call.Caller, Delegatee: delegatee}
	i, exists := st.findDelegation(call.Caller)
	var previous types.Address
	if exists {
		previous = st.Delegations[i].Delegatee
		if previous == delegatee {
			return fmt.Errorf("%w: already delegating to %s", dao.ErrAlreadyDone, delegatee)
		}
		e.unindex(st.Delegations[i])
		st.Delegations[i] = d
	} else {
		st.Delegations = insertAt(st.Delegations, i, d)
	}
	j, _ := st.findDelegate(d)
	st.Delegates = insertAt(st.Delegates, j, d)

	attrs := []types.EventAttribute{
		types.Attr("delegator", call.Caller.String()),
		types.Attr("delegatee", delegatee.String()),
	}
	if exists {
		attrs = append(attrs, types.Attr("previous", previous.String()))
	}
	call.Emit("delegate", attrs...)
	return nil
}

// RevokeDelegation returns the caller's own weight to itself.
func (e *Engine) RevokeDelegation(call types.Call) error {
	st := e.state
	i, ok := st.findDelegation(call.Caller)
	if !ok {
		return ErrNotDelegating
	}
	prior := st.Delegations[i]
	e.unindex(prior)
	st.Delegations = removeAt(st.Delegations, i)
	call.Emit("delegation_revoked",
		types.Attr("delegator", call.Caller.String()),
		types.Attr("previous", prior.Delegatee.String()))
	return nil
}

func (e *Engine) unindex(d Delegation) {
	if j, ok := e.state.findDelegate(d); ok {
		e.state.Delegates = removeAt(e.state.Delegates, j)
	}
}
