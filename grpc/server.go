package daogrpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/server"
	"github.com/blockberries/dao/types"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ DAOServiceServer = (*GRPCServer)(nil)

// GRPCServer exposes a DAO application over gRPC. Domain types are
// serialized directly via cramberry.
type GRPCServer struct {
	srv    *server.Server
	logger *slog.Logger
}

// Option configures a GRPCServer.
type Option func(*GRPCServer)

// WithLogger sets the logger of the transport and the wrapped server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *GRPCServer) { s.logger = logger }
}

// NewGRPCServer creates a gRPC server wrapping app.
func NewGRPCServer(app dao.Lifecycle, opts ...Option) *GRPCServer {
	s := &GRPCServer{}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.srv = server.New(app, server.WithLogger(s.logger))
	return s
}

// Register adds the DAO service to a gRPC server.
func (s *GRPCServer) Register(gs grpc.ServiceRegistrar) {
	RegisterDAOServiceServer(gs, s)
}

// NewServer creates a grpc.Server with the service and interceptors
// registered.
func (s *GRPCServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(s.recoverInterceptor, s.logInterceptor))
	gs := grpc.NewServer(opts...)
	s.Register(gs)
	return gs
}

// Serve serves on lis until the listener fails.
func (s *GRPCServer) Serve(lis net.Listener, opts ...grpc.ServerOption) error {
	return s.NewServer(opts...).Serve(lis)
}

// Server returns the underlying server.
func (s *GRPCServer) Server() *server.Server {
	return s.srv
}

func (s *GRPCServer) logInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.Warn("rpc failed", "method", info.FullMethod, "duration", time.Since(start), "error", err)
	} else {
		s.logger.Debug("rpc", "method", info.FullMethod, "duration", time.Since(start))
	}
	return resp, err
}

// recoverInterceptor turns lifecycle violations into FailedPrecondition
// instead of taking the process down.
func (s *GRPCServer) recoverInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("rpc panicked", "method", info.FullMethod, "panic", r)
			err = status.Errorf(codes.FailedPrecondition, "%v", r)
		}
	}()
	return handler(ctx, req)
}

// toStatus maps application errors to gRPC status codes.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	code := codes.Internal
	if _, ok := dao.IsHalt(err); ok {
		code = codes.Aborted
	} else if errors.Is(err, server.ErrNotSupported) {
		code = codes.Unimplemented
	} else if errors.Is(err, dao.ErrInvalidInput) {
		code = codes.InvalidArgument
	} else if errors.Is(err, dao.ErrInvalidState) {
		code = codes.FailedPrecondition
	}
	return status.Error(code, err.Error())
}

func (s *GRPCServer) Handshake(ctx context.Context, req *types.HandshakeRequest) (*types.HandshakeResponse, error) {
	resp, err := s.srv.Handshake(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &resp, nil
}

func (s *GRPCServer) CheckTx(ctx context.Context, req *CheckTxRequest) (*types.GateVerdict, error) {
	verdict, err := s.srv.CheckTx(ctx, req.Tx, req.Context)
	if err != nil {
		return nil, toStatus(err)
	}
	return &verdict, nil
}

func (s *GRPCServer) ExecuteBlock(ctx context.Context, block *types.FinalizedBlock) (*types.BlockOutcome, error) {
	outcome, err := s.srv.ExecuteBlock(ctx, *block)
	if err != nil {
		return nil, toStatus(err)
	}
	return &outcome, nil
}

func (s *GRPCServer) Commit(ctx context.Context, _ *CommitRequest) (*types.CommitResult, error) {
	result, err := s.srv.Commit(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &result, nil
}

func (s *GRPCServer) Query(ctx context.Context, req *types.StateQuery) (*types.StateQueryResult, error) {
	result, err := s.srv.Query(ctx, *req)
	if err != nil {
		return nil, toStatus(err)
	}
	return &result, nil
}

func (s *GRPCServer) Simulate(ctx context.Context, req *SimulateRequest) (*types.TxOutcome, error) {
	if !s.srv.Capabilities().Has(types.CapSimulation) {
		return nil, toStatus(fmt.Errorf("%w: Simulation", server.ErrNotSupported))
	}
	outcome, err := s.srv.Simulate(ctx, req.Tx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &outcome, nil
}
