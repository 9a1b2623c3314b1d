// Package reentry provides the busy flag that protects entry points which
// call out to the ledger or to governance targets.
package reentry

import (
	"fmt"
	"sync/atomic"

	"github.com/blockberries/dao"
)

// Guard is an in-progress flag for one entry point. The zero value is
// ready to use. A Guard must not be copied after first use.
type Guard struct {
	busy atomic.Bool
	name string
}

// New returns a guard whose errors name the protected operation.
func New(name string) *Guard {
	return &Guard{name: name}
}

// Enter marks the operation in progress. The returned release func clears
// the flag and must be deferred by the caller. A second Enter before the
// release fails with dao.ErrReentrant.
func (g *Guard) Enter() (release func(), err error) {
	if !g.busy.CompareAndSwap(false, true) {
		if g.name == "" {
			return nil, dao.ErrReentrant
		}
		return nil, fmt.Errorf("%s: %w", g.name, dao.ErrReentrant)
	}
	return func() { g.busy.Store(false) }, nil
}

// Busy reports whether the operation is currently in progress.
func (g *Guard) Busy() bool { return g.busy.Load() }
