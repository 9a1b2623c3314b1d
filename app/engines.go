package app

import (
	"github.com/blockberries/dao/auth"
	"github.com/blockberries/dao/election"
	"github.com/blockberries/dao/governance"
	"github.com/blockberries/dao/ledger"
	"github.com/blockberries/dao/staking"
	"github.com/blockberries/dao/treasury"
	"github.com/blockberries/dao/types"
)

// engines binds every engine to one State. Engines are rebuilt for every
// transaction so each one only ever sees its own clone.
type engines struct {
	bank       *ledger.Bank
	auth       *auth.Registry
	staking    *staking.Engine
	governance *governance.Engine
	treasury   *treasury.Engine
	election   *election.Engine
	router     *governance.Mux
}

func bind(s *State) *engines {
	bank := ledger.NewBank(&s.Ledger)
	token := bank.Ledger(ledger.DenomToken)
	reg := auth.NewRegistry(&s.Auth)
	stk := staking.New(&s.Staking, token, bank.Ledger(ledger.DenomAux))

	e := &engines{
		bank:     bank,
		auth:     reg,
		staking:  stk,
		treasury: treasury.New(&s.Treasury, token, reg, stk),
		election: election.New(&s.Election, token, reg, stk),
		router:   governance.NewMux(),
	}
	e.governance = governance.New(&s.Governance, stk, token, reg, e.router)
	e.routes()
	return e
}

// Router targets executed proposals can dispatch to.
const (
	RouteTreasuryApprove  = "treasury.approve"
	RouteTreasuryFund     = "treasury.fund"
	RouteTreasuryCancel   = "treasury.cancel"
	RouteTreasuryFail     = "treasury.fail"
	RouteTreasuryAllocate = "treasury.allocate"
	RouteAuthGrant        = "auth.grant"
	RouteAuthRevoke       = "auth.revoke"
	RouteElectionCreate   = "election.create"
	RouteElectionCancel   = "election.cancel"
	RouteLedgerTransfer   = "ledger.transfer"
)

// route adapts a typed handler to a router Handler.
func route[M any](fn func(call types.Call, m M) error) governance.Handler {
	return func(call types.Call, payload []byte) error {
		var m M
		if err := decodeMsg(payload, &m); err != nil {
			return err
		}
		return fn(call, m)
	}
}

func (e *engines) routes() {
	mux := e.router
	mux.Handle(RouteTreasuryApprove, route(func(call types.Call, m types.MsgApproveProject) error {
		return e.treasury.ApproveProject(call, m.ProjectID)
	}))
	mux.Handle(RouteTreasuryFund, route(func(call types.Call, m types.MsgFundProject) error {
		return e.treasury.FundProject(call, m.ProjectID)
	}))
	mux.Handle(RouteTreasuryCancel, route(func(call types.Call, m types.MsgCancelProject) error {
		return e.treasury.CancelProject(call, m.ProjectID)
	}))
	mux.Handle(RouteTreasuryFail, route(func(call types.Call, m types.MsgMarkProjectFailed) error {
		_, err := e.treasury.MarkProjectFailed(call, m.ProjectID)
		return err
	}))
	mux.Handle(RouteTreasuryAllocate, route(func(call types.Call, m types.MsgSetFundingAllocation) error {
		return e.treasury.SetFundingAllocation(call, allocation(m))
	}))
	mux.Handle(RouteAuthGrant, route(func(call types.Call, m types.MsgRoleChange) error {
		return e.auth.Grant(call, m.Role, m.Holder)
	}))
	mux.Handle(RouteAuthRevoke, route(func(call types.Call, m types.MsgRoleChange) error {
		return e.auth.Revoke(call, m.Role, m.Holder)
	}))
	mux.Handle(RouteElectionCreate, route(func(call types.Call, m types.MsgCreateElection) error {
		_, err := e.election.CreateElection(call, m.Position, m.StartsAt)
		return err
	}))
	mux.Handle(RouteElectionCancel, route(func(call types.Call, m types.MsgCancelElection) error {
		return e.election.CancelElection(call, m.ElectionID)
	}))
	mux.Handle(RouteLedgerTransfer, route(func(call types.Call, m types.MsgSend) error {
		return e.send(call, m)
	}))
}

func allocation(m types.MsgSetFundingAllocation) treasury.FundingAllocation {
	return treasury.FundingAllocation{
		Year:        m.Year,
		Quarter:     m.Quarter,
		Development: m.Development,
		Research:    m.Research,
		Community:   m.Community,
		Marketing:   m.Marketing,
		Operations:  m.Operations,
	}
}
