package app

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/blockberries/dao/auth"
	"github.com/blockberries/dao/election"
	"github.com/blockberries/dao/governance"
	"github.com/blockberries/dao/ledger"
	"github.com/blockberries/dao/staking"
	"github.com/blockberries/dao/treasury"
	"github.com/blockberries/dao/types"
)

// GenesisAddress funds the treasury and the reward pool at genesis. It is
// a module account, so nothing can spend from it afterwards.
var GenesisAddress = types.ModuleAddress("genesis")

// GenesisAccount is an initial balance.
type GenesisAccount struct {
	Address types.Address `yaml:"address"`
	Token   uint64        `yaml:"token"`
	Aux     uint64        `yaml:"aux"`
}

// GenesisRole seeds one role holder.
type GenesisRole struct {
	Role   string        `yaml:"role"`
	Holder types.Address `yaml:"holder"`
}

// Params groups the engine parameters.
type Params struct {
	Staking    staking.Params    `yaml:"staking"`
	Governance governance.Params `yaml:"governance"`
	Treasury   treasury.Params   `yaml:"treasury"`
	Election   election.Params   `yaml:"election"`
}

// Genesis is the application state carried in GenesisDoc.AppState.
type Genesis struct {
	Accounts []GenesisAccount `yaml:"accounts"`
	Roles    []GenesisRole    `yaml:"roles"`
	// Treasury and RewardPool are minted and deposited into the treasury
	// and the staking reward pool.
	Treasury   uint64 `yaml:"treasury"`
	RewardPool uint64 `yaml:"reward_pool"`
	Params     Params `yaml:"params"`
}

// DefaultGenesis has default parameters and no balances.
func DefaultGenesis() Genesis {
	return Genesis{
		Params: Params{
			Staking:    staking.DefaultParams(),
			Governance: governance.DefaultParams(),
			Treasury:   treasury.DefaultParams(),
			Election:   election.DefaultParams(),
		},
	}
}

// ParseGenesis decodes YAML (or JSON) app state over the defaults. Empty
// input yields DefaultGenesis.
func ParseGenesis(data []byte) (Genesis, error) {
	g := DefaultGenesis()
	if len(data) == 0 {
		return g, nil
	}
	if err := yaml.Unmarshal(data, &g); err != nil {
		return g, fmt.Errorf("parse genesis app state: %w", err)
	}
	return g, g.Validate()
}

// Marshal renders g as YAML.
func (g Genesis) Marshal() ([]byte, error) {
	return yaml.Marshal(g)
}

// Validate checks parameters and seeds.
func (g Genesis) Validate() error {
	var errs []error
	if err := g.Params.Staking.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("staking: %w", err))
	}
	if err := g.Params.Governance.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("governance: %w", err))
	}
	if err := g.Params.Treasury.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("treasury: %w", err))
	}
	if err := g.Params.Election.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("election: %w", err))
	}
	for i, a := range g.Accounts {
		if a.Address.IsZero() {
			errs = append(errs, fmt.Errorf("account %d: zero address", i))
		}
	}
	return errors.Join(errs...)
}

// Build creates the initial state. clock is the genesis clock the treasury
// and reward pool deposits are made at.
//
// The governance module is always granted the treasury manager and
// election admin roles so executed proposals can act through the router.
func (g Genesis) Build(clock types.Clock) (*State, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	s := &State{
		Height:     clock.Height(),
		Time:       clock.Now(),
		Ledger:     ledger.NewState(),
		Staking:    staking.NewState(g.Params.Staking),
		Governance: governance.NewState(g.Params.Governance),
		Treasury:   treasury.NewState(g.Params.Treasury),
		Election:   election.NewState(g.Params.Election),
	}
	e := bind(s)
	for _, a := range g.Accounts {
		if err := e.bank.Mint(ledger.DenomToken, a.Address, a.Token); err != nil {
			return nil, fmt.Errorf("genesis account %s: %w", a.Address, err)
		}
		if err := e.bank.Mint(ledger.DenomAux, a.Address, a.Aux); err != nil {
			return nil, fmt.Errorf("genesis account %s: %w", a.Address, err)
		}
	}

	call := types.Call{Caller: GenesisAddress, Clock: clock, Events: &types.EventLog{}}
	roles := append([]GenesisRole{
		{Role: auth.RoleTreasuryManager, Holder: governance.ModuleAddress},
		{Role: auth.RoleElectionAdmin, Holder: governance.ModuleAddress},
	}, g.Roles...)
	for _, r := range roles {
		if e.auth.HasRole(r.Role, r.Holder) {
			continue
		}
		if err := e.auth.Grant(call, r.Role, r.Holder); err != nil {
			return nil, fmt.Errorf("genesis role %s: %w", r.Role, err)
		}
	}

	if g.Treasury > 0 {
		if err := e.bank.Mint(ledger.DenomToken, GenesisAddress, g.Treasury); err != nil {
			return nil, err
		}
		if err := e.treasury.Deposit(call, g.Treasury); err != nil {
			return nil, fmt.Errorf("genesis treasury: %w", err)
		}
	}
	if g.RewardPool > 0 {
		if err := e.bank.Mint(ledger.DenomToken, GenesisAddress, g.RewardPool); err != nil {
			return nil, err
		}
		if err := e.staking.FundRewards(call, g.RewardPool); err != nil {
			return nil, fmt.Errorf("genesis reward pool: %w", err)
		}
	}
	return s, nil
}
