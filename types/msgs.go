package types

// Ledger.

type MsgSend struct {
	To     Address `cramberry:"1"`
	Denom  string  `cramberry:"2"`
	Amount uint64  `cramberry:"3"`
}

// Staking.

type MsgStake struct {
	Amount       uint64 `cramberry:"1"`
	AutoCompound bool   `cramberry:"2"`
}

type MsgStakeAuxiliary struct {
	Amount uint64 `cramberry:"1"`
}

type MsgRequestUnlock struct{}

type MsgUnstake struct {
	Amount uint64 `cramberry:"1"`
}

type MsgUnstakeAuxiliary struct {
	Amount uint64 `cramberry:"1"`
}

type MsgClaimYield struct{}

type MsgCompound struct{}

type MsgPenaltyExit struct{}

// MsgFundRewards moves the sender's tokens into the staking reward pool
// and restarts the distribution window.
type MsgFundRewards struct {
	Amount uint64 `cramberry:"1"`
}

// Governance.

// ActionKind selects how an executed proposal is dispatched.
type ActionKind uint8

const (
	// ActionNone is a signalling proposal; executing it dispatches nothing.
	ActionNone ActionKind = iota
	// ActionTreasury instructs the treasury. Target must be a treasury route.
	ActionTreasury
	// ActionCall is a generic authorized call to any registered route.
	ActionCall
)

// ProposalAction is what a proposal does once executed. Target names a
// route of the call router (e.g. "treasury.fund"); Payload is the
// cramberry-encoded message that route expects.
type ProposalAction struct {
	Kind    ActionKind `cramberry:"1"`
	Target  string     `cramberry:"2"`
	Payload []byte     `cramberry:"3"`
}

type MsgCreateProposal struct {
	Category    uint8          `cramberry:"1"`
	Action      ProposalAction `cramberry:"2"`
	Description string         `cramberry:"3"`
}

type MsgCastVote struct {
	ProposalID uint64 `cramberry:"1"`
	Choice     uint8  `cramberry:"2"`
}

type MsgQueueProposal struct {
	ProposalID uint64 `cramberry:"1"`
}

type MsgExecuteProposal struct {
	ProposalID uint64 `cramberry:"1"`
}

type MsgCancelProposal struct {
	ProposalID uint64 `cramberry:"1"`
}

type MsgDelegate struct {
	Delegatee Address `cramberry:"1"`
}

type MsgRevokeDelegation struct{}

// MsgRoleChange is the payload of the auth.grant and auth.revoke routes.
type MsgRoleChange struct {
	Role   string  `cramberry:"1"`
	Holder Address `cramberry:"2"`
}

// Treasury.

type MsgDeposit struct {
	Amount uint64 `cramberry:"1"`
}

type MsgProposeProject struct {
	Recipient         Address `cramberry:"1"`
	Category          uint8   `cramberry:"2"`
	Amount            uint64  `cramberry:"3"`
	ExpectedYieldBps  uint32  `cramberry:"4"`
	RepaymentDeadline uint64  `cramberry:"5"`
	Title             string  `cramberry:"6"`
}

type MsgApproveProject struct {
	ProjectID uint64 `cramberry:"1"`
}

type MsgCancelProject struct {
	ProjectID uint64 `cramberry:"1"`
}

type MsgAddMilestone struct {
	ProjectID   uint64 `cramberry:"1"`
	Description string `cramberry:"2"`
	Amount      uint64 `cramberry:"3"`
	Deadline    uint64 `cramberry:"4"`
}

type MsgFundProject struct {
	ProjectID uint64 `cramberry:"1"`
}

type MsgCompleteMilestone struct {
	ProjectID uint64 `cramberry:"1"`
	Index     uint32 `cramberry:"2"`
}

type MsgReleaseMilestone struct {
	ProjectID uint64 `cramberry:"1"`
	Index     uint32 `cramberry:"2"`
}

type MsgReturnFunds struct {
	ProjectID uint64 `cramberry:"1"`
	Amount    uint64 `cramberry:"2"`
}

type MsgMarkProjectFailed struct {
	ProjectID uint64 `cramberry:"1"`
}

// MsgSetFundingAllocation records planned spend for a quarter, one amount
// per project category.
type MsgSetFundingAllocation struct {
	Year        uint32 `cramberry:"1"`
	Quarter     uint8  `cramberry:"2"`
	Development uint64 `cramberry:"3"`
	Research    uint64 `cramberry:"4"`
	Community   uint64 `cramberry:"5"`
	Marketing   uint64 `cramberry:"6"`
	Operations  uint64 `cramberry:"7"`
}

// Election.

type MsgCreateElection struct {
	Position string `cramberry:"1"`
	StartsAt uint64 `cramberry:"2"`
}

type MsgNominate struct {
	ElectionID uint64 `cramberry:"1"`
	Name       string `cramberry:"2"`
	Platform   string `cramberry:"3"`
}

type MsgElectionVote struct {
	ElectionID uint64  `cramberry:"1"`
	Candidate  Address `cramberry:"2"`
}

type MsgFinalizeElection struct {
	ElectionID uint64 `cramberry:"1"`
}

type MsgWithdrawCandidacy struct {
	ElectionID uint64 `cramberry:"1"`
}

type MsgResignPosition struct {
	Position string `cramberry:"1"`
}

type MsgCancelElection struct {
	ElectionID uint64 `cramberry:"1"`
}

type MsgUpdatePerformance struct {
	Position string `cramberry:"1"`
	Score    uint8  `cramberry:"2"`
}
