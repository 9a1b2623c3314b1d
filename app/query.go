package app

import (
	"fmt"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/election"
	"github.com/blockberries/dao/governance"
	"github.com/blockberries/dao/staking"
	"github.com/blockberries/dao/types"
)

// Query paths. Address arguments are the raw 20 bytes; IDs are 8 bytes
// big-endian (types.EncodeUint64). Values are cramberry-encoded.
const (
	PathBalance          types.QueryPath = "/ledger/balance"
	PathStake            types.QueryPath = "/staking/stake"
	PathStakingWeight    types.QueryPath = "/staking/weight"
	PathStakingPool      types.QueryPath = "/staking/pool"
	PathProposal         types.QueryPath = "/governance/proposal"
	PathProposalState    types.QueryPath = "/governance/state"
	PathGovernanceWeight types.QueryPath = "/governance/weight"
	PathTreasurySummary  types.QueryPath = "/treasury/summary"
	PathProject          types.QueryPath = "/treasury/project"
	PathActiveProjects   types.QueryPath = "/treasury/active"
	PathAllocation       types.QueryPath = "/treasury/allocation"
	PathElection         types.QueryPath = "/election/election"
	PathLeadership       types.QueryPath = "/election/leadership"
	PathRoleHolders      types.QueryPath = "/auth/holders"
)

// StakeInfo answers PathStake.
type StakeInfo struct {
	Stake        staking.Stake    `cramberry:"1"`
	PendingYield uint64           `cramberry:"2"`
	Tier         staking.TierInfo `cramberry:"3"`
	Multiplier   uint32           `cramberry:"4"`
}

// ElectionInfo answers PathElection.
type ElectionInfo struct {
	Election election.Election `cramberry:"1"`
	Phase    election.Phase    `cramberry:"2"`
}

// LeadershipInfo answers PathLeadership.
type LeadershipInfo struct {
	Current election.Leadership   `cramberry:"1"`
	Held    bool                  `cramberry:"2"`
	History []election.Leadership `cramberry:"3"`
}

// AllocationKey is the argument of PathAllocation.
type AllocationKey struct {
	Year    uint32 `cramberry:"1"`
	Quarter uint8  `cramberry:"2"`
}

// IDList answers PathActiveProjects.
type IDList struct {
	IDs []uint64 `cramberry:"1"`
}

// AddressList answers PathRoleHolders.
type AddressList struct {
	Addresses []types.Address `cramberry:"1"`
}

// BalanceQuery builds the argument of PathBalance.
func BalanceQuery(addr types.Address, denom string) []byte {
	return append(addr[:], denom...)
}

type querier func(e *engines, s *State, data []byte) ([]byte, error)

var queriers = map[types.QueryPath]querier{
	PathBalance: func(e *engines, _ *State, data []byte) ([]byte, error) {
		if len(data) <= len(types.Address{}) {
			return nil, fmt.Errorf("%w: want address and denom", dao.ErrInvalidInput)
		}
		addr, _ := addressArg(data[:20])
		return types.EncodeUint64(e.bank.Balance(string(data[20:]), addr)), nil
	},
	PathStake: func(e *engines, s *State, data []byte) ([]byte, error) {
		addr, err := addressArg(data)
		if err != nil {
			return nil, err
		}
		st, ok := e.staking.Stake(addr)
		if !ok {
			return nil, fmt.Errorf("%w: %s", staking.ErrNoStake, addr)
		}
		return types.Encode(StakeInfo{
			Stake:        st,
			PendingYield: e.staking.PendingYield(addr, s.Time),
			Tier:         e.staking.Tier(st.Principal),
			Multiplier:   e.staking.Multiplier(st, s.Time),
		})
	},
	PathStakingWeight: func(e *engines, _ *State, data []byte) ([]byte, error) {
		addr, err := addressArg(data)
		if err != nil {
			return nil, err
		}
		return types.EncodeUint64(e.staking.EffectiveVotingWeight(addr)), nil
	},
	PathStakingPool: func(e *engines, _ *State, _ []byte) ([]byte, error) {
		return types.Encode(e.staking.Summary())
	},
	PathProposal: func(e *engines, s *State, data []byte) ([]byte, error) {
		pid, err := types.DecodeUint64(data)
		if err != nil {
			return nil, fmt.Errorf("%w: proposal id: %w", dao.ErrInvalidInput, err)
		}
		p, err := e.governance.Proposal(pid)
		if err != nil {
			return nil, err
		}
		return types.Encode(governance.Summary{Proposal: p, State: governance.Resolve(p, s.Height)})
	},
	PathProposalState: func(e *engines, s *State, data []byte) ([]byte, error) {
		pid, err := types.DecodeUint64(data)
		if err != nil {
			return nil, fmt.Errorf("%w: proposal id: %w", dao.ErrInvalidInput, err)
		}
		st, err := e.governance.ProposalState(pid, s.Height)
		if err != nil {
			return nil, err
		}
		return types.EncodeUint64(uint64(st)), nil
	},
	PathGovernanceWeight: func(e *engines, _ *State, data []byte) ([]byte, error) {
		addr, err := addressArg(data)
		if err != nil {
			return nil, err
		}
		return types.EncodeUint64(e.governance.EffectiveWeight(addr)), nil
	},
	PathTreasurySummary: func(e *engines, _ *State, _ []byte) ([]byte, error) {
		return types.Encode(e.treasury.Summary())
	},
	PathProject: func(e *engines, _ *State, data []byte) ([]byte, error) {
		pid, err := types.DecodeUint64(data)
		if err != nil {
			return nil, fmt.Errorf("%w: project id: %w", dao.ErrInvalidInput, err)
		}
		p, err := e.treasury.Project(pid)
		if err != nil {
			return nil, err
		}
		return types.Encode(p)
	},
	PathActiveProjects: func(e *engines, _ *State, _ []byte) ([]byte, error) {
		return types.Encode(IDList{IDs: e.treasury.ActiveProjectIDs()})
	},
	PathAllocation: func(e *engines, _ *State, data []byte) ([]byte, error) {
		var k AllocationKey
		if err := types.Decode(data, &k); err != nil {
			return nil, fmt.Errorf("%w: allocation key: %w", dao.ErrInvalidInput, err)
		}
		a, ok := e.treasury.FundingAllocation(k.Year, k.Quarter)
		if !ok {
			return nil, fmt.Errorf("%w: no allocation for %d Q%d", dao.ErrInvalidInput, k.Year, k.Quarter)
		}
		return types.Encode(a)
	},
	PathElection: func(e *engines, s *State, data []byte) ([]byte, error) {
		eid, err := types.DecodeUint64(data)
		if err != nil {
			return nil, fmt.Errorf("%w: election id: %w", dao.ErrInvalidInput, err)
		}
		el, err := e.election.Election(eid)
		if err != nil {
			return nil, err
		}
		return types.Encode(ElectionInfo{Election: el, Phase: el.PhaseAt(s.Time)})
	},
	PathLeadership: func(e *engines, s *State, data []byte) ([]byte, error) {
		position := string(data)
		cur, ok := e.election.CurrentLeadership(position)
		return types.Encode(LeadershipInfo{
			Current: cur,
			Held:    ok && cur.HeldAt(s.Time),
			History: e.election.LeadershipHistory(position),
		})
	},
	PathRoleHolders: func(e *engines, _ *State, data []byte) ([]byte, error) {
		return types.Encode(AddressList{Addresses: e.auth.Holders(string(data))})
	},
}

func addressArg(data []byte) (types.Address, error) {
	var a types.Address
	if len(data) != len(a) {
		return a, fmt.Errorf("%w: want %d-byte address, got %d bytes", dao.ErrInvalidInput, len(a), len(data))
	}
	copy(a[:], data)
	return a, nil
}

func query(s *State, req types.StateQuery) types.StateQueryResult {
	q, ok := queriers[req.Path]
	if !ok {
		return types.StateQueryResult{
			Code:   dao.CodeInvalidInput,
			Info:   fmt.Sprintf("unknown query path %q", req.Path),
			Height: s.Height,
		}
	}
	value, err := q(bind(s), s, req.Data)
	if err != nil {
		return types.StateQueryResult{Code: resultCode(err), Info: err.Error(), Key: req.Data, Height: s.Height}
	}
	return types.StateQueryResult{Key: req.Data, Value: value, Height: s.Height}
}
