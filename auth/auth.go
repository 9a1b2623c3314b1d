// Package auth answers "is this caller authorized for role R". Role holders
// are seeded at genesis and changed only through executed governance
// proposals.
package auth

import (
	"fmt"
	"sort"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/types"
)

// Roles checked by the engines.
const (
	RoleTreasuryManager = "treasury_manager"
	RoleAuditor         = "auditor"
	RoleGuardian        = "guardian"
	RoleElectionAdmin   = "election_admin"
)

// Roles lists every known role.
var Roles = []string{RoleAuditor, RoleElectionAdmin, RoleGuardian, RoleTreasuryManager}

// Authorizer is the capability privileged entry points check.
type Authorizer interface {
	HasRole(role string, caller types.Address) bool
}

// Grant is one (role, holder) pair.
type Grant struct {
	Role   string        `cramberry:"1"`
	Holder types.Address `cramberry:"2"`
}

// State is the role table, sorted by (role, holder).
type State struct {
	Grants []Grant `cramberry:"1"`
}

// Clone returns a deep copy.
func (s State) Clone() State {
	return State{Grants: append([]Grant(nil), s.Grants...)}
}

// Registry implements Authorizer over a State.
type Registry struct {
	state *State
}

// NewRegistry binds a registry to state.
func NewRegistry(state *State) *Registry {
	return &Registry{state: state}
}

func less(a, b Grant) bool {
	if a.Role != b.Role {
		return a.Role < b.Role
	}
	return a.Holder.Compare(b.Holder) < 0
}

func (r *Registry) find(g Grant) (int, bool) {
	gs := r.state.Grants
	i := sort.Search(len(gs), func(i int) bool { return !less(gs[i], g) })
	return i, i < len(gs) && gs[i] == g
}

// HasRole reports whether caller holds role.
func (r *Registry) HasRole(role string, caller types.Address) bool {
	_, ok := r.find(Grant{Role: role, Holder: caller})
	return ok
}

// Holders returns the holders of role in address order.
func (r *Registry) Holders(role string) []types.Address {
	var out []types.Address
	for _, g := range r.state.Grants {
		if g.Role == role {
			out = append(out, g.Holder)
		}
	}
	return out
}

// Grant gives role to holder.
func (r *Registry) Grant(call types.Call, role string, holder types.Address) error {
	if err := validRole(role); err != nil {
		return err
	}
	if holder.IsZero() {
		return dao.ErrZeroAddress
	}
	g := Grant{Role: role, Holder: holder}
	i, ok := r.find(g)
	if ok {
		return fmt.Errorf("%w: %s already holds %s", dao.ErrAlreadyDone, holder, role)
	}
	r.state.Grants = append(r.state.Grants, Grant{})
	copy(r.state.Grants[i+1:], r.state.Grants[i:])
	r.state.Grants[i] = g
	call.Emit("role_granted", types.Attr("role", role), types.Attr("holder", holder.String()))
	return nil
}

// Revoke removes role from holder.
func (r *Registry) Revoke(call types.Call, role string, holder types.Address) error {
	if err := validRole(role); err != nil {
		return err
	}
	i, ok := r.find(Grant{Role: role, Holder: holder})
	if !ok {
		return fmt.Errorf("%w: %s does not hold %s", dao.ErrInvalidState, holder, role)
	}
	r.state.Grants = append(r.state.Grants[:i], r.state.Grants[i+1:]...)
	call.Emit("role_revoked", types.Attr("role", role), types.Attr("holder", holder.String()))
	return nil
}

func validRole(role string) error {
	for _, r := range Roles {
		if r == role {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown role %q", dao.ErrInvalidInput, role)
}

// Require returns dao.ErrUnauthorized unless caller holds role.
func Require(a Authorizer, role string, caller types.Address) error {
	if a == nil || !a.HasRole(role, caller) {
		return fmt.Errorf("%w: %s lacks role %s", dao.ErrUnauthorized, caller, role)
	}
	return nil
}
