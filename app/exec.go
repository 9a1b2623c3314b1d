package app

import (
	"errors"
	"fmt"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/election"
	"github.com/blockberries/dao/governance"
	"github.com/blockberries/dao/staking"
	"github.com/blockberries/dao/treasury"
	"github.com/blockberries/dao/types"
)

// errDecode marks a transaction whose envelope or payload does not parse.
var errDecode = errors.New("malformed transaction")

// ErrModuleSender rejects envelopes that claim to come from a module
// account. Module accounts only act through engine calls.
var ErrModuleSender = fmt.Errorf("%w: sender is a module account", dao.ErrUnauthorized)

var moduleAccounts = []types.Address{
	GenesisAddress,
	staking.ModuleAddress,
	governance.ModuleAddress,
	treasury.ModuleAddress,
	election.ModuleAddress,
}

// checkSender rejects the zero address and module accounts.
func checkSender(sender types.Address) error {
	if sender.IsZero() {
		return dao.ErrZeroAddress
	}
	for _, m := range moduleAccounts {
		if sender == m {
			return fmt.Errorf("%w: %s", ErrModuleSender, sender)
		}
	}
	return nil
}

func resultCode(err error) uint32 {
	if errors.Is(err, errDecode) {
		return dao.CodeDecode
	}
	return dao.ResultCode(err)
}

// decodeMsg decodes a payload. An empty payload is the zero message.
func decodeMsg(payload []byte, m any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := types.Decode(payload, m); err != nil {
		return fmt.Errorf("%w: %w", errDecode, err)
	}
	return nil
}

// handler executes one decoded payload and returns the outcome data.
type handler func(e *engines, call types.Call, payload []byte) ([]byte, error)

func handle[M any](fn func(e *engines, call types.Call, m M) ([]byte, error)) handler {
	return func(e *engines, call types.Call, payload []byte) ([]byte, error) {
		var m M
		if err := decodeMsg(payload, &m); err != nil {
			return nil, err
		}
		return fn(e, call, m)
	}
}

// PenaltyExitResult is the outcome data of a penalty exit.
type PenaltyExitResult struct {
	Principal uint64 `cramberry:"1"`
	Auxiliary uint64 `cramberry:"2"`
}

// ElectionResult is the outcome data of a finalized election.
type ElectionResult struct {
	Winner    types.Address `cramberry:"1"`
	HasWinner bool          `cramberry:"2"`
}

func u64(v uint64, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	return types.EncodeUint64(v), nil
}

func none(err error) ([]byte, error) { return nil, err }

var handlers = map[types.TxKind]handler{
	types.TxSend: handle(func(e *engines, call types.Call, m types.MsgSend) ([]byte, error) {
		return none(e.send(call, m))
	}),

	types.TxStake: handle(func(e *engines, call types.Call, m types.MsgStake) ([]byte, error) {
		return none(e.staking.StakePrincipal(call, m.Amount, m.AutoCompound))
	}),
	types.TxStakeAuxiliary: handle(func(e *engines, call types.Call, m types.MsgStakeAuxiliary) ([]byte, error) {
		return none(e.staking.StakeAuxiliary(call, m.Amount))
	}),
	types.TxRequestUnlock: handle(func(e *engines, call types.Call, _ types.MsgRequestUnlock) ([]byte, error) {
		return none(e.staking.RequestUnlock(call))
	}),
	types.TxUnstake: handle(func(e *engines, call types.Call, m types.MsgUnstake) ([]byte, error) {
		return none(e.staking.Unstake(call, m.Amount))
	}),
	types.TxUnstakeAuxiliary: handle(func(e *engines, call types.Call, m types.MsgUnstakeAuxiliary) ([]byte, error) {
		return none(e.staking.UnstakeAuxiliary(call, m.Amount))
	}),
	types.TxClaimYield: handle(func(e *engines, call types.Call, _ types.MsgClaimYield) ([]byte, error) {
		return u64(e.staking.ClaimYield(call))
	}),
	types.TxCompound: handle(func(e *engines, call types.Call, _ types.MsgCompound) ([]byte, error) {
		return u64(e.staking.Compound(call))
	}),
	types.TxPenaltyExit: handle(func(e *engines, call types.Call, _ types.MsgPenaltyExit) ([]byte, error) {
		p, a, err := e.staking.PenaltyExit(call)
		if err != nil {
			return nil, err
		}
		return types.Encode(PenaltyExitResult{Principal: p, Auxiliary: a})
	}),
	types.TxFundRewards: handle(func(e *engines, call types.Call, m types.MsgFundRewards) ([]byte, error) {
		return none(e.staking.FundRewards(call, m.Amount))
	}),

	types.TxCreateProposal: handle(func(e *engines, call types.Call, m types.MsgCreateProposal) ([]byte, error) {
		return u64(e.governance.CreateProposal(call, governance.Category(m.Category), m.Action, m.Description))
	}),
	types.TxCastVote: handle(func(e *engines, call types.Call, m types.MsgCastVote) ([]byte, error) {
		return u64(e.governance.CastVote(call, m.ProposalID, governance.Choice(m.Choice)))
	}),
	types.TxQueueProposal: handle(func(e *engines, call types.Call, m types.MsgQueueProposal) ([]byte, error) {
		return none(e.governance.QueueProposal(call, m.ProposalID))
	}),
	types.TxExecuteProposal: handle(func(e *engines, call types.Call, m types.MsgExecuteProposal) ([]byte, error) {
		return none(e.governance.ExecuteProposal(call, m.ProposalID))
	}),
	types.TxCancelProposal: handle(func(e *engines, call types.Call, m types.MsgCancelProposal) ([]byte, error) {
		return none(e.governance.CancelProposal(call, m.ProposalID))
	}),
	types.TxDelegate: handle(func(e *engines, call types.Call, m types.MsgDelegate) ([]byte, error) {
		return none(e.governance.DelegateVotes(call, m.Delegatee))
	}),
	types.TxRevokeDelegation: handle(func(e *engines, call types.Call, _ types.MsgRevokeDelegation) ([]byte, error) {
		return none(e.governance.RevokeDelegation(call))
	}),

	types.TxDeposit: handle(func(e *engines, call types.Call, m types.MsgDeposit) ([]byte, error) {
		return none(e.treasury.Deposit(call, m.Amount))
	}),
	types.TxProposeProject: handle(func(e *engines, call types.Call, m types.MsgProposeProject) ([]byte, error) {
		return u64(e.treasury.ProposeProject(call, m.Recipient, treasury.Category(m.Category),
			m.Amount, m.ExpectedYieldBps, m.RepaymentDeadline, m.Title))
	}),
	types.TxApproveProject: handle(func(e *engines, call types.Call, m types.MsgApproveProject) ([]byte, error) {
		return none(e.treasury.ApproveProject(call, m.ProjectID))
	}),
	types.TxCancelProject: handle(func(e *engines, call types.Call, m types.MsgCancelProject) ([]byte, error) {
		return none(e.treasury.CancelProject(call, m.ProjectID))
	}),
	types.TxAddMilestone: handle(func(e *engines, call types.Call, m types.MsgAddMilestone) ([]byte, error) {
		i, err := e.treasury.AddMilestone(call, m.ProjectID, m.Description, m.Amount, m.Deadline)
		return u64(uint64(i), err)
	}),
	types.TxFundProject: handle(func(e *engines, call types.Call, m types.MsgFundProject) ([]byte, error) {
		return none(e.treasury.FundProject(call, m.ProjectID))
	}),
	types.TxCompleteMilestone: handle(func(e *engines, call types.Call, m types.MsgCompleteMilestone) ([]byte, error) {
		return none(e.treasury.CompleteMilestone(call, m.ProjectID, m.Index))
	}),
	types.TxReleaseMilestone: handle(func(e *engines, call types.Call, m types.MsgReleaseMilestone) ([]byte, error) {
		return none(e.treasury.ReleaseMilestoneFunds(call, m.ProjectID, m.Index))
	}),
	types.TxReturnFunds: handle(func(e *engines, call types.Call, m types.MsgReturnFunds) ([]byte, error) {
		return none(e.treasury.ReturnFunds(call, m.ProjectID, m.Amount))
	}),
	types.TxMarkProjectFailed: handle(func(e *engines, call types.Call, m types.MsgMarkProjectFailed) ([]byte, error) {
		return u64(e.treasury.MarkProjectFailed(call, m.ProjectID))
	}),
	types.TxSetFundingAllocation: handle(func(e *engines, call types.Call, m types.MsgSetFundingAllocation) ([]byte, error) {
		return none(e.treasury.SetFundingAllocation(call, allocation(m)))
	}),

	types.TxCreateElection: handle(func(e *engines, call types.Call, m types.MsgCreateElection) ([]byte, error) {
		return u64(e.election.CreateElection(call, m.Position, m.StartsAt))
	}),
	types.TxNominate: handle(func(e *engines, call types.Call, m types.MsgNominate) ([]byte, error) {
		return none(e.election.NominateCandidate(call, m.ElectionID, m.Name, m.Platform))
	}),
	types.TxElectionVote: handle(func(e *engines, call types.Call, m types.MsgElectionVote) ([]byte, error) {
		return u64(e.election.Vote(call, m.ElectionID, m.Candidate))
	}),
	types.TxFinalizeElection: handle(func(e *engines, call types.Call, m types.MsgFinalizeElection) ([]byte, error) {
		w, ok, err := e.election.FinalizeElection(call, m.ElectionID)
		if err != nil {
			return nil, err
		}
		return types.Encode(ElectionResult{Winner: w, HasWinner: ok})
	}),
	types.TxWithdrawCandidacy: handle(func(e *engines, call types.Call, m types.MsgWithdrawCandidacy) ([]byte, error) {
		return none(e.election.WithdrawCandidacy(call, m.ElectionID))
	}),
	types.TxResignPosition: handle(func(e *engines, call types.Call, m types.MsgResignPosition) ([]byte, error) {
		return none(e.election.ResignPosition(call, m.Position))
	}),
	types.TxCancelElection: handle(func(e *engines, call types.Call, m types.MsgCancelElection) ([]byte, error) {
		return none(e.election.CancelElection(call, m.ElectionID))
	}),
	types.TxUpdatePerformance: handle(func(e *engines, call types.Call, m types.MsgUpdatePerformance) ([]byte, error) {
		return none(e.election.UpdatePerformance(call, m.Position, m.Score))
	}),
}

// send moves the caller's own balance.
func (e *engines) send(call types.Call, m types.MsgSend) error {
	if m.Amount == 0 {
		return dao.ErrZeroAmount
	}
	if err := e.bank.Send(m.Denom, call.Caller, m.To, m.Amount); err != nil {
		return err
	}
	call.Emit("transfer",
		types.Attr("from", call.Caller.String()),
		types.Attr("to", m.To.String()),
		types.Attr("denom", m.Denom),
		types.AttrAmount("amount", m.Amount))
	return nil
}

// executeTx runs tx against s. On success s holds the result; on failure
// s is untouched and the outcome carries the error code.
func executeTx(s *State, clock types.Clock, index uint32, tx types.Tx) types.TxOutcome {
	env, err := types.DecodeEnvelope(tx)
	if err != nil {
		return types.TxOutcome{Index: index, Code: dao.CodeDecode, Info: err.Error()}
	}
	if err := checkSender(env.Sender); err != nil {
		return types.TxOutcome{Index: index, Code: resultCode(err), Info: err.Error()}
	}
	h, ok := handlers[env.Kind]
	if !ok {
		return types.TxOutcome{Index: index, Code: dao.CodeDecode, Info: fmt.Sprintf("no handler for %s", env.Kind)}
	}

	next := s.clone()
	log := &types.EventLog{}
	call := types.Call{Caller: env.Sender, Clock: clock, Events: log}
	data, err := h(bind(next), call, env.Payload)
	if err != nil {
		return types.TxOutcome{
			Index: index,
			Code:  resultCode(err),
			Info:  fmt.Sprintf("%s: %v", env.Kind, err),
		}
	}
	*s = *next
	return types.TxOutcome{
		Index:  index,
		Data:   data,
		Events: append([]types.Event{txEvent(env)}, log.Events()...),
	}
}

func txEvent(env types.Envelope) types.Event {
	return types.Event{
		Kind: "tx",
		Attributes: []types.EventAttribute{
			types.Attr("kind", env.Kind.String()),
			types.Attr("sender", env.Sender.String()),
		},
	}
}

var (
	_ treasury.RewardSink     = (*staking.Engine)(nil)
	_ election.WeightSource   = (*staking.Engine)(nil)
	_ governance.WeightSource = (*staking.Engine)(nil)
)
