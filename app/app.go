// Package app is the community treasury DAO as a block application. It
// routes every transaction of a finalized block to the staking,
// governance, treasury and election engines, keeps the state of the last
// executed block staged until Commit, and answers queries from the
// committed state.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/types"
)

// Compile-time interface checks.
var (
	_ dao.Lifecycle   = (*App)(nil)
	_ dao.Simulator   = (*App)(nil)
	_ dao.Application = (*App)(nil)
)

// Store persists committed state. found is false when nothing has been
// saved yet.
type Store interface {
	SaveState(ctx context.Context, height uint64, state []byte) error
	LoadState(ctx context.Context) (height uint64, state []byte, found bool, err error)
}

// Indexer receives the outcome of every committed block.
type Indexer interface {
	IndexBlock(ctx context.Context, height, blockTime uint64, outcome types.BlockOutcome) error
}

// App is the DAO application.
type App struct {
	mu      sync.RWMutex
	current *State
	hash    types.AppHash

	// Staging area (between ExecuteBlock and Commit).
	staged struct {
		state   *State
		hash    types.AppHash
		outcome types.BlockOutcome
	}

	logger       *slog.Logger
	promRegistry prometheus.Registerer
	store        Store
	indexer      Indexer
	metrics      appMetrics
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) { a.logger = logger }
}

// WithPromRegistry registers the application metrics with reg.
func WithPromRegistry(reg prometheus.Registerer) Option {
	return func(a *App) { a.promRegistry = reg }
}

// WithStore persists committed state and restores it on restart.
func WithStore(s Store) Option {
	return func(a *App) { a.store = s }
}

// WithIndexer feeds committed block outcomes to idx.
func WithIndexer(idx Indexer) Option {
	return func(a *App) { a.indexer = idx }
}

// New creates an application with no state. State is created by the
// genesis handshake or restored from the store on restart.
func New(opts ...Option) *App {
	a := &App{}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a.metrics.init(a.promRegistry)
	return a
}

// Handshake initializes state from genesis or reports the restored state.
func (a *App) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	if req.LastCommitted == nil {
		return a.genesis(req.Genesis)
	}
	return a.restart(ctx, *req.LastCommitted)
}

func (a *App) genesis(doc *types.GenesisDoc) (types.HandshakeResponse, error) {
	if doc == nil {
		return types.HandshakeResponse{}, errors.New("genesis handshake without genesis document")
	}
	g, err := ParseGenesis(doc.AppState)
	if err != nil {
		return types.HandshakeResponse{}, err
	}
	height := doc.InitialHeight
	if height > 0 {
		height--
	}
	genesisTime := doc.GenesisTime.Unix()
	if genesisTime < 0 {
		genesisTime = 0
	}
	s, err := g.Build(types.BlockClock{BlockHeight: height, BlockTime: uint64(genesisTime)})
	if err != nil {
		return types.HandshakeResponse{}, fmt.Errorf("build genesis state: %w", err)
	}
	h, err := s.appHash()
	if err != nil {
		return types.HandshakeResponse{}, err
	}

	a.mu.Lock()
	a.current, a.hash = s, h
	a.mu.Unlock()
	a.metrics.observe(s)
	a.logger.Info("genesis state created",
		"chain_id", doc.ChainID,
		"accounts", len(g.Accounts),
		"treasury", g.Treasury,
		"reward_pool", g.RewardPool,
		"app_hash", fmt.Sprintf("%x", h[:8]))
	return types.HandshakeResponse{AppHash: &h, Capabilities: types.CapSimulation}, nil
}

func (a *App) restart(ctx context.Context, last types.BlockID) (types.HandshakeResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		if a.store == nil {
			return types.HandshakeResponse{}, errors.New("restart handshake without state or store")
		}
		height, data, found, err := a.store.LoadState(ctx)
		if err != nil {
			return types.HandshakeResponse{}, fmt.Errorf("load state: %w", err)
		}
		if !found {
			return types.HandshakeResponse{}, fmt.Errorf("no persisted state for restart at height %d", last.Height)
		}
		s, err := decodeState(data)
		if err != nil {
			return types.HandshakeResponse{}, dao.NewHaltError(height, err.Error())
		}
		if s.Height != height {
			return types.HandshakeResponse{}, dao.NewHaltError(height,
				fmt.Sprintf("persisted state is for height %d", s.Height))
		}
		h, err := s.appHash()
		if err != nil {
			return types.HandshakeResponse{}, err
		}
		a.current, a.hash = s, h
		a.metrics.observe(s)
	}
	if a.current.Height != last.Height {
		a.logger.Warn("restart height differs from engine",
			"app_height", a.current.Height,
			"engine_height", last.Height)
	}
	h := a.hash
	return types.HandshakeResponse{
		LastBlock:    &types.BlockID{Height: a.current.Height},
		AppHash:      &h,
		Capabilities: types.CapSimulation,
	}, nil
}

// CheckTx admits transactions whose envelope decodes. State-dependent
// checks happen at execution.
func (a *App) CheckTx(_ context.Context, tx types.Tx, _ types.MempoolContext) (types.GateVerdict, error) {
	env, err := types.DecodeEnvelope(tx)
	if err != nil {
		a.metrics.checkTxRejected.Inc()
		return types.Reject(dao.CodeDecode, err), nil
	}
	if err := checkSender(env.Sender); err != nil {
		a.metrics.checkTxRejected.Inc()
		return types.Reject(resultCode(err), err), nil
	}
	return types.Admit(env.Sender), nil
}

// ExecuteBlock executes the block's transactions in order against a copy
// of the committed state and stages the result.
func (a *App) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	a.mu.RLock()
	if a.current == nil {
		a.mu.RUnlock()
		return types.BlockOutcome{}, errors.New("execute block before genesis")
	}
	s := a.current.clone()
	a.mu.RUnlock()

	clock := types.ClockFor(block)
	if clock.BlockTime < s.Time {
		return types.BlockOutcome{}, dao.NewHaltError(block.Height,
			fmt.Sprintf("block time %d before previous block time %d", clock.BlockTime, s.Time))
	}
	s.Height, s.Time = block.Height, clock.BlockTime

	outcomes := make([]types.TxOutcome, len(block.Txs))
	for i, tx := range block.Txs {
		if err := ctx.Err(); err != nil {
			return types.BlockOutcome{}, err
		}
		outcomes[i] = executeTx(s, clock, uint32(i), tx)
		a.observeTx(tx, outcomes[i])
	}
	a.metrics.blockTxs.Observe(float64(len(block.Txs)))

	h, err := s.appHash()
	if err != nil {
		return types.BlockOutcome{}, dao.NewHaltError(block.Height, err.Error())
	}
	outcome := types.BlockOutcome{TxOutcomes: outcomes, AppHash: h}

	a.mu.Lock()
	a.staged.state = s
	a.staged.hash = h
	a.staged.outcome = outcome
	a.mu.Unlock()
	return outcome, nil
}

func (a *App) observeTx(tx types.Tx, out types.TxOutcome) {
	kind := "unknown"
	if env, err := types.DecodeEnvelope(tx); err == nil {
		kind = env.Kind.String()
	}
	a.metrics.txsTotal.WithLabelValues(kind).Inc()
	if !out.OK() {
		a.metrics.txFailures.WithLabelValues(strconv.FormatUint(uint64(out.Code), 10)).Inc()
		a.logger.Debug("tx failed", "index", out.Index, "kind", kind, "code", out.Code, "info", out.Info)
	}
}

// Commit makes the staged state current, persists it and indexes the
// block outcome.
func (a *App) Commit(ctx context.Context) (types.CommitResult, error) {
	a.mu.Lock()
	s := a.staged.state
	if s == nil {
		a.mu.Unlock()
		return types.CommitResult{}, errors.New("commit without executed block")
	}
	a.current, a.hash = s, a.staged.hash
	outcome := a.staged.outcome
	a.staged.state = nil
	a.staged.outcome = types.BlockOutcome{}
	a.mu.Unlock()

	a.metrics.observe(s)
	if a.store != nil {
		data, err := s.encode()
		if err != nil {
			return types.CommitResult{}, err
		}
		if err := a.store.SaveState(ctx, s.Height, data); err != nil {
			return types.CommitResult{}, fmt.Errorf("persist height %d: %w", s.Height, err)
		}
	}
	if a.indexer != nil {
		if err := a.indexer.IndexBlock(ctx, s.Height, s.Time, outcome); err != nil {
			// The index is derived data; a failure must not stop the chain.
			a.logger.Error("index block", "height", s.Height, "error", err)
		}
	}
	a.logger.Debug("committed", "height", s.Height, "txs", len(outcome.TxOutcomes))
	return types.CommitResult{}, nil
}

// Query reads the committed state.
func (a *App) Query(_ context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return types.StateQueryResult{Code: dao.CodeInvalidState, Info: "no state"}, nil
	}
	return query(a.current, req), nil
}

// Simulate executes tx against a copy of the committed state at the next
// height and discards the result.
func (a *App) Simulate(_ context.Context, tx types.Tx) (types.TxOutcome, error) {
	a.mu.RLock()
	if a.current == nil {
		a.mu.RUnlock()
		return types.TxOutcome{}, errors.New("simulate before genesis")
	}
	s := a.current.clone()
	a.mu.RUnlock()

	clock := types.BlockClock{BlockHeight: s.Height + 1, BlockTime: s.Time}
	return executeTx(s, clock, 0, tx), nil
}

// Height is the last committed height.
func (a *App) Height() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.current == nil {
		return 0
	}
	return a.current.Height
}

// AppHash is the hash of the committed state.
func (a *App) AppHash() types.AppHash {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.hash
}
