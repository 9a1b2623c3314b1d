// Package dao defines the boundary between a consensus engine and the
// community treasury application: a token-holding community that stakes,
// votes on proposals, funds milestone-gated projects and elects rotating
// leadership.
//
// The core [Lifecycle] interface is required. [Simulator] is an optional
// capability discovered via Go type assertion at handshake time.
package dao

import (
	"context"

	"github.com/blockberries/dao/types"
)

// Lifecycle is the interface the engine drives. Every DAO operation is a
// transaction inside a finalized block.
//
// The engine guarantees the following call order:
//  1. Handshake is called exactly once, before anything else.
//  2. ExecuteBlock(h) is called exactly once per committed height h.
//  3. Commit is called exactly once after each ExecuteBlock.
//  4. CheckTx, Query may be called concurrently at any time after Handshake.
type Lifecycle interface {
	// Handshake is called once on every startup (cold start or restart).
	//
	// If LastCommitted is nil, this is a fresh genesis and Genesis carries
	// the initial balances, role holders and engine parameters in AppState.
	Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error)

	// CheckTx gate-checks a transaction before it enters the mempool.
	// It decodes the envelope only; state-dependent checks happen at
	// execution. MUST be safe for concurrent use.
	CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error)

	// ExecuteBlock executes every transaction of a finalized block in
	// order. A transaction either applies all of its changes or none of
	// them; failures are reported per transaction in the outcome.
	//
	// MUST NOT persist state, that happens in Commit. The returned AppHash
	// is a deterministic fingerprint of the resulting state.
	ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error)

	// Commit makes the state of the last ExecuteBlock the committed state
	// and persists it when a store is configured.
	Commit(ctx context.Context) (types.CommitResult, error)

	// Query reads the last committed state. MUST be safe for concurrent
	// use, including concurrently with ExecuteBlock.
	Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error)
}

// Simulator dry-runs a transaction against committed state without
// persisting anything.
//
// Declared via: types.CapSimulation in HandshakeResponse.Capabilities
type Simulator interface {
	Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error)
}

// Application embeds every interface a full DAO application provides.
type Application interface {
	Lifecycle
	Simulator
}

// Connection represents a transport-agnostic connection to a DAO
// application. Both gRPC clients and in-process adapters implement this.
type Connection interface {
	Lifecycle

	// Capabilities returns the capabilities discovered at handshake.
	// Must only be called after Handshake completes.
	Capabilities() types.Capabilities

	// AsSimulator returns the Simulator interface if available.
	AsSimulator() Simulator

	// Close terminates the connection.
	Close() error
}
