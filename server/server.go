package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/types"
)

// ErrNotSupported is returned for capabilities the application did not
// declare.
var ErrNotSupported = errors.New("dao: capability not supported")

// Server wraps a DAO application with lifecycle enforcement and
// capability routing. The consensus engine talks to the application
// only through a Server.
type Server struct {
	app    dao.Lifecycle
	guard  *LifecycleGuard
	caps   types.Capabilities
	logger *slog.Logger

	simulator dao.Simulator

	// Outcome of the last ExecuteBlock, held until Commit.
	mu          sync.Mutex
	lastOutcome *types.BlockOutcome
	lastHeight  uint64
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates a Server wrapping app.
func New(app dao.Lifecycle, opts ...Option) *Server {
	s := &Server{
		app:   app,
		guard: NewLifecycleGuard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.simulator, _ = app.(dao.Simulator)
	return s
}

// Handshake runs the application handshake, validates the declared
// capabilities and moves the state machine to Ready.
func (s *Server) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	s.guard.AcquireHandshake()

	resp, err := s.app.Handshake(ctx, req)
	if err != nil {
		s.guard.FailHandshake()
		return resp, err
	}
	if err := s.discoverCapabilities(resp.Capabilities); err != nil {
		s.guard.FailHandshake()
		return resp, err
	}

	s.caps = resp.Capabilities
	s.guard.CompleteHandshake()
	s.logger.Info("handshake complete",
		"genesis", req.LastCommitted == nil,
		"capabilities", resp.Capabilities.String())
	return resp, nil
}

// CheckTx gate-checks a transaction. Safe for concurrent use.
func (s *Server) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	s.guard.CheckConcurrent()
	return s.app.CheckTx(ctx, tx, mctx)
}

// ExecuteBlock executes a finalized block.
func (s *Server) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	s.guard.AcquireExecute()

	outcome, err := s.app.ExecuteBlock(ctx, block)
	if err != nil {
		s.guard.FailExecute()
		if h, ok := dao.IsHalt(err); ok {
			s.logger.Error("application requested halt", "height", h.Height, "reason", h.Reason)
		}
		return outcome, err
	}

	s.mu.Lock()
	s.lastOutcome = &outcome
	s.lastHeight = block.Height
	s.mu.Unlock()

	s.guard.CompleteExecute()
	return outcome, nil
}

// Commit commits the state of the last ExecuteBlock.
func (s *Server) Commit(ctx context.Context) (types.CommitResult, error) {
	s.guard.AcquireCommit()

	result, err := s.app.Commit(ctx)

	s.mu.Lock()
	height := s.lastHeight
	s.lastOutcome = nil
	s.mu.Unlock()

	s.guard.CompleteCommit()
	if err != nil {
		s.logger.Error("commit failed", "height", height, "error", err)
	}
	return result, err
}

// Query reads committed state. Safe for concurrent use.
func (s *Server) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	s.guard.CheckConcurrent()
	return s.app.Query(ctx, req)
}

// Capabilities returns the capabilities declared at handshake.
func (s *Server) Capabilities() types.Capabilities {
	return s.caps
}

// Simulate delegates to the Simulator. Safe for concurrent use.
func (s *Server) Simulate(ctx context.Context, tx types.Tx) (types.TxOutcome, error) {
	if s.simulator == nil {
		return types.TxOutcome{}, fmt.Errorf("%w: Simulation", ErrNotSupported)
	}
	s.guard.CheckConcurrent()
	return s.simulator.Simulate(ctx, tx)
}

// AsSimulator returns the Simulator if it was declared, nil otherwise.
func (s *Server) AsSimulator() dao.Simulator {
	if s.caps.Has(types.CapSimulation) {
		return s.simulator
	}
	return nil
}

// LastOutcome returns the outcome held between ExecuteBlock and Commit,
// or nil.
func (s *Server) LastOutcome() *types.BlockOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOutcome
}

// Close is a no-op for the server wrapper.
func (s *Server) Close() error { return nil }

// discoverCapabilities checks the declared capabilities against the
// interfaces the application implements.
func (s *Server) discoverCapabilities(declared types.Capabilities) error {
	_, hasSimulator := s.app.(dao.Simulator)
	if declared.Has(types.CapSimulation) && !hasSimulator {
		return errors.New("dao: app declared CapSimulation but does not implement Simulator")
	}
	if !declared.Has(types.CapSimulation) && hasSimulator {
		s.logger.Warn("app implements Simulator but did not declare it; capability will not be used")
	}
	return nil
}
