// Package governance implements the proposal lifecycle: creation gated by
// voting weight, one snapshotted vote per identity, lazy resolution
// against a quorum of total supply, and execution through a call router.
// It also owns vote delegation.
package governance

import (
	"fmt"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/auth"
	"github.com/blockberries/dao/ledger"
	"github.com/blockberries/dao/reentry"
	"github.com/blockberries/dao/types"
)

// ModuleAddress is the identity executed proposals act as.
var ModuleAddress = types.ModuleAddress("governance")

var (
	ErrUnknownProposal = fmt.Errorf("%w: unknown proposal", dao.ErrInvalidInput)
	ErrNotActive       = fmt.Errorf("%w: proposal is not active", dao.ErrInvalidState)
	ErrNotSucceeded    = fmt.Errorf("%w: proposal has not succeeded", dao.ErrInvalidState)
	ErrTimelock        = fmt.Errorf("%w: timelock has not expired", dao.ErrInvalidState)
	ErrSelfDelegation  = fmt.Errorf("%w: cannot delegate to self", dao.ErrInvalidInput)
	ErrNotDelegating   = fmt.Errorf("%w: no delegation", dao.ErrInvalidState)
	ErrNoRouter        = fmt.Errorf("%w: no call router", dao.ErrInvalidState)
)

// WeightSource is the stake-derived voting weight of an identity.
type WeightSource interface {
	EffectiveVotingWeight(id types.Address) uint64
}

// Engine executes governance operations against a State.
type Engine struct {
	state     *State
	weights   WeightSource
	supply    ledger.ValueLedger
	authz     auth.Authorizer
	router    Router
	executing *reentry.Guard
}

// New binds an engine to state. supply provides the total supply quorum
// is measured against.
func New(state *State, weights WeightSource, supply ledger.ValueLedger, authz auth.Authorizer, router Router) *Engine {
	return &Engine{
		state:     state,
		weights:   weights,
		supply:    supply,
		authz:     authz,
		router:    router,
		executing: reentry.New("execute proposal"),
	}
}

func (e *Engine) proposal(id uint64) (*Proposal, error) {
	if id == 0 || id > uint64(len(e.state.Proposals)) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownProposal, id)
	}
	return &e.state.Proposals[id-1], nil
}

// Resolve computes the state of p at height. It depends only on the
// stored status, the vote totals and the snapshotted quorum, so reading it
// repeatedly after the window closes always gives the same answer.
func Resolve(p Proposal, height uint64) Status {
	switch p.Status {
	case StatusQueued, StatusExecuted, StatusCancelled:
		return p.Status
	}
	switch {
	case height < p.StartHeight:
		return StatusPending
	case height <= p.EndHeight:
		return StatusActive
	}
	decisive := p.ForVotes + p.AgainstVotes
	if decisive < p.QuorumVotes || p.ForVotes <= p.AgainstVotes {
		return StatusDefeated
	}
	return StatusSucceeded
}

// ProposalState is the resolved state of proposal id at height.
func (e *Engine) ProposalState(id, height uint64) (Status, error) {
	p, err := e.proposal(id)
	if err != nil {
		return 0, err
	}
	return Resolve(*p, height), nil
}

// Proposal returns a copy of proposal id.
func (e *Engine) Proposal(id uint64) (Proposal, error) {
	p, err := e.proposal(id)
	if err != nil {
		return Proposal{}, err
	}
	return *p, nil
}

// Receipt returns the vote of voter on proposal id.
func (e *Engine) Receipt(id uint64, voter types.Address) (Receipt, bool) {
	i, ok := e.state.findReceipt(id, voter)
	if !ok {
		return Receipt{}, false
	}
	return e.state.Receipts[i], true
}

// CreateProposal opens a proposal. The caller's effective weight must
// reach ProposalThreshold. Voting opens at the next height and stays open
// for VotingPeriod blocks.
func (e *Engine) CreateProposal(call types.Call, category Category, action types.ProposalAction, description string) (uint64, error) {
	p := e.state.Params
	if category >= categoryEnd {
		return 0, fmt.Errorf("%w: category %d", dao.ErrInvalidInput, category)
	}
	if p.MaxDescriptionBytes > 0 && len(description) > int(p.MaxDescriptionBytes) {
		return 0, fmt.Errorf("%w: description exceeds %d bytes", dao.ErrInvalidInput, p.MaxDescriptionBytes)
	}
	if err := validateAction(action); err != nil {
		return 0, err
	}
	if w := e.EffectiveWeight(call.Caller); w < p.ProposalThreshold {
		return 0, fmt.Errorf("%w: %d < %d", dao.ErrInsufficientWeight, w, p.ProposalThreshold)
	}

	height := call.Height()
	id := uint64(len(e.state.Proposals)) + 1
	e.state.Proposals = append(e.state.Proposals, Proposal{
		ID:            id,
		Proposer:      call.Caller,
		Category:      category,
		Action:        action,
		Description:   description,
		CreatedHeight: height,
		CreatedAt:     call.Now(),
		StartHeight:   height + 1,
		EndHeight:     height + p.VotingPeriod,
		QuorumVotes:   quorum(e.supply.TotalSupply(), p.QuorumBps),
	})
	call.Emit("proposal_created",
		types.AttrUint("proposal_id", id),
		types.Attr("proposer", call.Caller.String()),
		types.Attr("target", action.Target),
		types.AttrUint("end_height", height+p.VotingPeriod))
	return id, nil
}

func quorum(supply uint64, bps uint32) uint64 {
	return supply/10_000*uint64(bps) + supply%10_000*uint64(bps)/10_000
}

// CastVote records the caller's vote with its current effective weight.
func (e *Engine) CastVote(call types.Call, id uint64, choice Choice) (uint64, error) {
	p, err := e.proposal(id)
	if err != nil {
		return 0, err
	}
	if choice > Abstain {
		return 0, fmt.Errorf("%w: choice %d", dao.ErrInvalidInput, choice)
	}
	if s := Resolve(*p, call.Height()); s != StatusActive {
		return 0, fmt.Errorf("%w: %s", ErrNotActive, s)
	}
	i, voted := e.state.findReceipt(id, call.Caller)
	if voted {
		return 0, dao.ErrAlreadyVoted
	}
	weight := e.EffectiveWeight(call.Caller)
	if weight == 0 {
		return 0, fmt.Errorf("%w: no voting weight", dao.ErrInsufficientWeight)
	}

	e.state.Receipts = insertAt(e.state.Receipts, i, Receipt{
		ProposalID: id,
		Voter:      call.Caller,
		Choice:     choice,
		Weight:     weight,
	})
	switch choice {
	case For:
		p.ForVotes += weight
	case Against:
		p.AgainstVotes += weight
	case Abstain:
		p.AbstainVotes += weight
	}
	p.Voters++
	call.Emit("vote_cast",
		types.AttrUint("proposal_id", id),
		types.Attr("voter", call.Caller.String()),
		types.Attr("choice", choice.String()),
		types.AttrAmount("weight", weight))
	return weight, nil
}

// QueueProposal starts the execution timelock of a succeeded proposal.
// Only meaningful when ExecutionDelay is set.
func (e *Engine) QueueProposal(call types.Call, id uint64) error {
	p, err := e.proposal(id)
	if err != nil {
		return err
	}
	delay := e.state.Params.ExecutionDelay
	if delay == 0 {
		return fmt.Errorf("%w: no execution delay configured", dao.ErrInvalidState)
	}
	if s := Resolve(*p, call.Height()); s != StatusSucceeded {
		return fmt.Errorf("%w: %s", ErrNotSucceeded, s)
	}
	p.Status = StatusQueued
	p.ETA = call.Now() + delay
	call.Emit("proposal_queued", types.AttrUint("proposal_id", id), types.AttrUint("eta", p.ETA))
	return nil
}

// ExecuteProposal marks a succeeded (or queued and matured) proposal
// executed and dispatches its action as the governance module. A failed
// dispatch fails the whole operation with dao.ErrExecutionReverted.
func (e *Engine) ExecuteProposal(call types.Call, id uint64) error {
	release, err := e.executing.Enter()
	if err != nil {
		return err
	}
	defer release()

	p, err := e.proposal(id)
	if err != nil {
		return err
	}
	s := Resolve(*p, call.Height())
	if e.state.Params.ExecutionDelay > 0 {
		if s != StatusQueued {
			return fmt.Errorf("%w: %s, queue it first", dao.ErrInvalidState, s)
		}
		if call.Now() < p.ETA {
			return fmt.Errorf("%w: eta %d", ErrTimelock, p.ETA)
		}
	} else if s != StatusSucceeded {
		return fmt.Errorf("%w: %s", ErrNotSucceeded, s)
	}

	p.Status = StatusExecuted
	p.ExecutedAt = call.Now()
	action := p.Action
	call.Emit("proposal_executed",
		types.AttrUint("proposal_id", id),
		types.Attr("target", action.Target))

	if action.Kind == types.ActionNone {
		return nil
	}
	if e.router == nil {
		return fmt.Errorf("%w: proposal %d: %w", dao.ErrExecutionReverted, id, ErrNoRouter)
	}
	if err := e.router.Dispatch(call.As(ModuleAddress), action.Target, action.Payload); err != nil {
		return fmt.Errorf("%w: proposal %d: %w", dao.ErrExecutionReverted, id, err)
	}
	return nil
}

// CancelProposal is the guardian override; it applies to any proposal not
// yet defeated, executed or cancelled.
func (e *Engine) CancelProposal(call types.Call, id uint64) error {
	if err := auth.Require(e.authz, auth.RoleGuardian, call.Caller); err != nil {
		return err
	}
	p, err := e.proposal(id)
	if err != nil {
		return err
	}
	if s := Resolve(*p, call.Height()); s.Terminal() {
		return fmt.Errorf("%w: proposal is %s", dao.ErrInvalidState, s)
	}
	p.Status = StatusCancelled
	call.Emit("proposal_cancelled", types.AttrUint("proposal_id", id))
	return nil
}

// Summary is the queryable view of a proposal.
type Summary struct {
	Proposal Proposal `cramberry:"1"`
	State    Status   `cramberry:"2"`
}

// Count is the number of proposals ever created.
func (e *Engine) Count() uint64 { return uint64(len(e.state.Proposals)) }
