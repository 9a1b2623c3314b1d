package types

import "fmt"

// TxKind selects the operation an Envelope carries.
type TxKind uint8

// Transaction kinds. Values are part of the wire format.
const (
	TxUnknown TxKind = iota

	TxSend

	TxStake
	TxStakeAuxiliary
	TxRequestUnlock
	TxUnstake
	TxUnstakeAuxiliary
	TxClaimYield
	TxCompound
	TxPenaltyExit
	TxFundRewards

	TxCreateProposal
	TxCastVote
	TxQueueProposal
	TxExecuteProposal
	TxCancelProposal
	TxDelegate
	TxRevokeDelegation

	TxDeposit
	TxProposeProject
	TxApproveProject
	TxCancelProject
	TxAddMilestone
	TxFundProject
	TxCompleteMilestone
	TxReleaseMilestone
	TxReturnFunds
	TxMarkProjectFailed
	TxSetFundingAllocation

	TxCreateElection
	TxNominate
	TxElectionVote
	TxFinalizeElection
	TxWithdrawCandidacy
	TxResignPosition
	TxCancelElection
	TxUpdatePerformance

	txKindEnd
)

var txKindNames = [...]string{
	TxUnknown:              "unknown",
	TxSend:                 "send",
	TxStake:                "stake",
	TxStakeAuxiliary:       "stake_auxiliary",
	TxRequestUnlock:        "request_unlock",
	TxUnstake:              "unstake",
	TxUnstakeAuxiliary:     "unstake_auxiliary",
	TxClaimYield:           "claim_yield",
	TxCompound:             "compound",
	TxPenaltyExit:          "penalty_exit",
	TxFundRewards:          "fund_rewards",
	TxCreateProposal:       "create_proposal",
	TxCastVote:             "cast_vote",
	TxQueueProposal:        "queue_proposal",
	TxExecuteProposal:      "execute_proposal",
	TxCancelProposal:       "cancel_proposal",
	TxDelegate:             "delegate",
	TxRevokeDelegation:     "revoke_delegation",
	TxDeposit:              "deposit",
	TxProposeProject:       "propose_project",
	TxApproveProject:       "approve_project",
	TxCancelProject:        "cancel_project",
	TxAddMilestone:         "add_milestone",
	TxFundProject:          "fund_project",
	TxCompleteMilestone:    "complete_milestone",
	TxReleaseMilestone:     "release_milestone",
	TxReturnFunds:          "return_funds",
	TxMarkProjectFailed:    "mark_project_failed",
	TxSetFundingAllocation: "set_funding_allocation",
	TxCreateElection:       "create_election",
	TxNominate:             "nominate",
	TxElectionVote:         "election_vote",
	TxFinalizeElection:     "finalize_election",
	TxWithdrawCandidacy:    "withdraw_candidacy",
	TxResignPosition:       "resign_position",
	TxCancelElection:       "cancel_election",
	TxUpdatePerformance:    "update_performance",
}

func (k TxKind) String() string {
	if k < txKindEnd {
		return txKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k names a known operation.
func (k TxKind) Valid() bool { return k > TxUnknown && k < txKindEnd }

// Envelope is the decoded form of a Tx. Sender is the caller identity of
// every engine operation; the engine authenticates it before ordering.
type Envelope struct {
	Sender  Address `cramberry:"1"`
	Kind    TxKind  `cramberry:"2"`
	Payload []byte  `cramberry:"3"`
}

// NewTx encodes msg as the payload of an envelope of the given kind.
func NewTx(sender Address, kind TxKind, msg any) (Tx, error) {
	payload, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	data, err := Encode(Envelope{Sender: sender, Kind: kind, Payload: payload})
	if err != nil {
		return nil, err
	}
	return Tx(data), nil
}

// DecodeEnvelope parses a raw transaction.
func DecodeEnvelope(tx Tx) (Envelope, error) {
	var env Envelope
	if len(tx) == 0 {
		return env, fmt.Errorf("empty transaction")
	}
	if err := Decode(tx, &env); err != nil {
		return env, err
	}
	if !env.Kind.Valid() {
		return env, fmt.Errorf("unknown tx kind %d", uint8(env.Kind))
	}
	return env, nil
}
