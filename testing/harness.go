package daotest

import (
	"context"
	"testing"
	"time"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/server"
	"github.com/blockberries/dao/types"
)

// GenesisTime is the genesis time of DefaultGenesis. MakeBlock places
// block h at GenesisTime + 5h seconds.
var GenesisTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// BlockInterval is the time between consecutive MakeBlock heights.
const BlockInterval = 5 * time.Second

// Harness drives an application through the server's lifecycle
// state machine.
type Harness struct {
	t   *testing.T
	srv *server.Server
}

// NewHarness creates a test harness wrapping the given application.
func NewHarness(t *testing.T, app dao.Lifecycle) *Harness {
	t.Helper()
	return &Harness{t: t, srv: server.New(app)}
}

// Server returns the underlying server for direct access.
func (h *Harness) Server() *server.Server {
	return h.srv
}

// Genesis performs a genesis handshake with the given genesis doc.
func (h *Harness) Genesis(genesis types.GenesisDoc) types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(context.Background(), types.HandshakeRequest{
		Genesis: &genesis,
	})
	if err != nil {
		h.t.Fatalf("Handshake (genesis) failed: %v", err)
	}
	return resp
}

// GenesisWith performs a genesis handshake with DefaultGenesis carrying
// appState.
func (h *Harness) GenesisWith(appState []byte) types.HandshakeResponse {
	h.t.Helper()
	doc := DefaultGenesis()
	doc.AppState = appState
	return h.Genesis(doc)
}

// GenesisDefault performs a genesis handshake with a default
// genesis document.
func (h *Harness) GenesisDefault() types.HandshakeResponse {
	h.t.Helper()
	return h.Genesis(DefaultGenesis())
}

// Restart performs a restart handshake at the given block.
func (h *Harness) Restart(block types.BlockID) types.HandshakeResponse {
	h.t.Helper()
	resp, err := h.srv.Handshake(context.Background(), types.HandshakeRequest{
		LastCommitted: &block,
	})
	if err != nil {
		h.t.Fatalf("Handshake (restart) failed: %v", err)
	}
	return resp
}

// ExecuteBlock executes a block without committing.
func (h *Harness) ExecuteBlock(block types.FinalizedBlock) types.BlockOutcome {
	h.t.Helper()
	outcome, err := h.srv.ExecuteBlock(context.Background(), block)
	if err != nil {
		h.t.Fatalf("ExecuteBlock (height=%d) failed: %v", block.Height, err)
	}
	return outcome
}

// Commit commits the last executed block.
func (h *Harness) Commit() types.CommitResult {
	h.t.Helper()
	result, err := h.srv.Commit(context.Background())
	if err != nil {
		h.t.Fatalf("Commit failed: %v", err)
	}
	return result
}

// ExecuteAndCommit is a convenience that executes a block and
// commits, returning the block outcome.
func (h *Harness) ExecuteAndCommit(block types.FinalizedBlock) types.BlockOutcome {
	h.t.Helper()
	outcome := h.ExecuteBlock(block)
	h.Commit()
	return outcome
}

// CheckTx submits a transaction for mempool gate-checking.
func (h *Harness) CheckTx(tx types.Tx) types.GateVerdict {
	h.t.Helper()
	verdict, err := h.srv.CheckTx(context.Background(), tx, types.MempoolFirstSeen)
	if err != nil {
		h.t.Fatalf("CheckTx failed: %v", err)
	}
	return verdict
}

// RecheckTx re-validates a previously admitted transaction.
func (h *Harness) RecheckTx(tx types.Tx) types.GateVerdict {
	h.t.Helper()
	verdict, err := h.srv.CheckTx(context.Background(), tx, types.MempoolRevalidation)
	if err != nil {
		h.t.Fatalf("RecheckTx failed: %v", err)
	}
	return verdict
}

// Query reads application state at the latest height.
func (h *Harness) Query(path types.QueryPath, data []byte) types.StateQueryResult {
	h.t.Helper()
	result, err := h.srv.Query(context.Background(), types.StateQuery{
		Path: path,
		Data: data,
	})
	if err != nil {
		h.t.Fatalf("Query failed: %v", err)
	}
	return result
}

// Simulate dry-runs tx. The application must declare CapSimulation.
func (h *Harness) Simulate(tx types.Tx) types.TxOutcome {
	h.t.Helper()
	out, err := h.srv.Simulate(context.Background(), tx)
	if err != nil {
		h.t.Fatalf("Simulate failed: %v", err)
	}
	return out
}

// MustSucceed executes and commits a block and asserts every transaction
// succeeded.
func (h *Harness) MustSucceed(block types.FinalizedBlock) types.BlockOutcome {
	h.t.Helper()
	outcome := h.ExecuteAndCommit(block)
	for _, o := range outcome.TxOutcomes {
		if !o.OK() {
			h.t.Fatalf("height %d tx %d: code=%d info=%q", block.Height, o.Index, o.Code, o.Info)
		}
	}
	return outcome
}

// MustAcceptTx asserts that a transaction is accepted.
func (h *Harness) MustAcceptTx(tx types.Tx) {
	h.t.Helper()
	v := h.CheckTx(tx)
	if !v.Accepted() {
		h.t.Fatalf("expected tx accepted, got code=%d info=%q", v.Code, v.Info)
	}
}

// MustRejectTx asserts that a transaction is rejected.
func (h *Harness) MustRejectTx(tx types.Tx) {
	h.t.Helper()
	v := h.CheckTx(tx)
	if v.Accepted() {
		h.t.Fatal("expected tx rejected, got accepted")
	}
}

// --- Helper Factories ---

// DefaultGenesis returns a genesis document with no application
// state. Applications fall back to their default genesis.
func DefaultGenesis() types.GenesisDoc {
	return types.GenesisDoc{
		ChainID:       "test-chain",
		GenesisTime:   types.TimeToTimestamp(GenesisTime),
		InitialHeight: 1,
		MaxTxBytes:    64 * 1024,
	}
}

// BlockTime is the Unix time MakeBlock assigns to height.
func BlockTime(height uint64) uint64 {
	return uint64(GenesisTime.Add(time.Duration(height) * BlockInterval).Unix())
}

// HeightAt returns the first MakeBlock height whose time is at or after
// the Unix time ts.
func HeightAt(ts uint64) uint64 {
	start := uint64(GenesisTime.Unix())
	if ts <= start {
		return 0
	}
	step := uint64(BlockInterval / time.Second)
	return (ts - start + step - 1) / step
}

// MakeBlock creates a FinalizedBlock at the given height with
// the provided transactions.
func MakeBlock(height uint64, txs ...types.Tx) types.FinalizedBlock {
	t := GenesisTime.Add(time.Duration(height) * BlockInterval)
	return types.FinalizedBlock{
		Height: height,
		Time:   types.TimeToTimestamp(t),
		Txs:    txs,
	}
}

// MakeEmptyBlock creates an empty FinalizedBlock at the given height.
func MakeEmptyBlock(height uint64) types.FinalizedBlock {
	return MakeBlock(height)
}
