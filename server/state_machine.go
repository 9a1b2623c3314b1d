// Package server wraps a DAO application with the lifecycle state machine
// the consensus engine must follow, and routes the optional Simulation
// capability.
package server

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// phase is a state of the lifecycle state machine.
type phase uint32

const (
	// phaseInit: waiting for Handshake. No other calls allowed.
	phaseInit phase = iota
	// phaseReady: between blocks. CheckTx, Query and Simulate may run
	// concurrently; ExecuteBlock is the only sequential call allowed.
	phaseReady
	// phaseExecuting: ExecuteBlock is running.
	phaseExecuting
	// phaseExecuted: ExecuteBlock returned; Commit must come next.
	phaseExecuted
	// phaseCommitting: Commit is running.
	phaseCommitting
)

var phaseNames = [...]string{"Init", "Ready", "Executing", "Executed", "Committing"}

func (p phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("unknown(%d)", uint32(p))
}

// LifecycleGuard enforces the call order Handshake, then ExecuteBlock and
// Commit alternating. Out-of-order calls are programming errors in the
// engine and panic.
type LifecycleGuard struct {
	phase atomic.Uint32
	// seq serializes ExecuteBlock and Commit.
	seq sync.Mutex
	// ready gates the concurrent calls.
	ready atomic.Bool
}

// NewLifecycleGuard creates a guard in the Init state.
func NewLifecycleGuard() *LifecycleGuard {
	return &LifecycleGuard{}
}

// State returns the name of the current state.
func (g *LifecycleGuard) State() string {
	return phase(g.phase.Load()).String()
}

func (g *LifecycleGuard) violation(op string, want phase) {
	panic(fmt.Sprintf("dao: %s called in state %s (expected %s)", op, phase(g.phase.Load()), want))
}

// enterSeq takes the sequential lock and moves from -> to, or panics.
func (g *LifecycleGuard) enterSeq(op string, from, to phase) {
	g.seq.Lock()
	if !g.phase.CompareAndSwap(uint32(from), uint32(to)) {
		g.seq.Unlock()
		g.violation(op, from)
	}
}

func (g *LifecycleGuard) leaveSeq(to phase) {
	g.phase.Store(uint32(to))
	g.seq.Unlock()
}

// AcquireHandshake transitions Init to Ready. Panics if not in Init.
func (g *LifecycleGuard) AcquireHandshake() {
	if !g.phase.CompareAndSwap(uint32(phaseInit), uint32(phaseReady)) {
		g.violation("Handshake", phaseInit)
	}
}

// CompleteHandshake enables the concurrent calls.
func (g *LifecycleGuard) CompleteHandshake() { g.ready.Store(true) }

// FailHandshake returns to Init so the handshake can be retried.
func (g *LifecycleGuard) FailHandshake() { g.phase.Store(uint32(phaseInit)) }

// AcquireExecute transitions Ready to Executing. It blocks while another
// sequential call runs and panics if not in Ready.
func (g *LifecycleGuard) AcquireExecute() { g.enterSeq("ExecuteBlock", phaseReady, phaseExecuting) }

// CompleteExecute transitions Executing to Executed.
func (g *LifecycleGuard) CompleteExecute() { g.leaveSeq(phaseExecuted) }

// FailExecute returns to Ready so the block can be retried.
func (g *LifecycleGuard) FailExecute() { g.leaveSeq(phaseReady) }

// AcquireCommit transitions Executed to Committing. Panics if not in
// Executed.
func (g *LifecycleGuard) AcquireCommit() { g.enterSeq("Commit", phaseExecuted, phaseCommitting) }

// CompleteCommit transitions Committing to Ready.
func (g *LifecycleGuard) CompleteCommit() { g.leaveSeq(phaseReady) }

// CheckConcurrent panics unless Handshake has completed.
func (g *LifecycleGuard) CheckConcurrent() {
	if !g.ready.Load() {
		panic("dao: concurrent call before Handshake completed")
	}
}

// IsReady reports whether the guard is between blocks.
func (g *LifecycleGuard) IsReady() bool {
	return phase(g.phase.Load()) == phaseReady
}
