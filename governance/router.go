package governance

import (
	"fmt"
	"sort"
	"strings"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/types"
)

// Router dispatches an executed proposal's action. The call it receives
// acts as the governance module account.
type Router interface {
	Dispatch(call types.Call, target string, payload []byte) error
}

// Handler serves one route.
type Handler func(call types.Call, payload []byte) error

// Mux is a Router over named routes such as "treasury.fund".
type Mux struct {
	routes map[string]Handler
}

// NewMux returns an empty router.
func NewMux() *Mux {
	return &Mux{routes: make(map[string]Handler)}
}

// Handle registers h for target. Registering a target twice panics.
func (m *Mux) Handle(target string, h Handler) {
	if _, dup := m.routes[target]; dup {
		panic(fmt.Sprintf("governance: duplicate route %q", target))
	}
	m.routes[target] = h
}

// Dispatch implements Router.
func (m *Mux) Dispatch(call types.Call, target string, payload []byte) error {
	h, ok := m.routes[target]
	if !ok {
		return fmt.Errorf("%w: unknown route %q", dao.ErrInvalidInput, target)
	}
	return h(call, payload)
}

// Targets lists the registered routes in order.
func (m *Mux) Targets() []string {
	out := make([]string, 0, len(m.routes))
	for t := range m.routes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// TreasuryPrefix is the route namespace treasury actions must use.
const TreasuryPrefix = "treasury."

func validateAction(a types.ProposalAction) error {
	switch a.Kind {
	case types.ActionNone:
		if a.Target != "" || len(a.Payload) > 0 {
			return fmt.Errorf("%w: signalling proposal carries a call", dao.ErrInvalidInput)
		}
	case types.ActionTreasury:
		if !strings.HasPrefix(a.Target, TreasuryPrefix) {
			return fmt.Errorf("%w: treasury action target %q", dao.ErrInvalidInput, a.Target)
		}
	case types.ActionCall:
		if a.Target == "" {
			return fmt.Errorf("%w: call action without target", dao.ErrInvalidInput)
		}
	default:
		return fmt.Errorf("%w: action kind %d", dao.ErrInvalidInput, a.Kind)
	}
	return nil
}
