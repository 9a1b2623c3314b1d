package daogrpc

import (
	"context"

	"github.com/blockberries/dao/types"

	"google.golang.org/grpc"
)

const serviceName = "dao.v1.DAOService"

// DAOServiceServer is the server-side interface of the DAO gRPC service.
type DAOServiceServer interface {
	Handshake(context.Context, *types.HandshakeRequest) (*types.HandshakeResponse, error)
	CheckTx(context.Context, *CheckTxRequest) (*types.GateVerdict, error)
	ExecuteBlock(context.Context, *types.FinalizedBlock) (*types.BlockOutcome, error)
	Commit(context.Context, *CommitRequest) (*types.CommitResult, error)
	Query(context.Context, *types.StateQuery) (*types.StateQueryResult, error)
	Simulate(context.Context, *SimulateRequest) (*types.TxOutcome, error)
}

// RegisterDAOServiceServer registers srv on a gRPC server.
func RegisterDAOServiceServer(s grpc.ServiceRegistrar, srv DAOServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

// unary builds a method handler that decodes Req, runs the interceptor
// chain and calls the service method.
func unary[Req, Resp any](method string, call func(DAOServiceServer, context.Context, *Req) (*Resp, error)) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, r any) (any, error) {
			resp, err := call(srv.(DAOServiceServer), ctx, r.(*Req))
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
		if interceptor == nil {
			return handler(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, req, info, handler)
	}
}

// fullMethod builds the full gRPC method path.
func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DAOServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Handshake", Handler: unary("Handshake", DAOServiceServer.Handshake)},
		{MethodName: "CheckTx", Handler: unary("CheckTx", DAOServiceServer.CheckTx)},
		{MethodName: "ExecuteBlock", Handler: unary("ExecuteBlock", DAOServiceServer.ExecuteBlock)},
		{MethodName: "Commit", Handler: unary("Commit", DAOServiceServer.Commit)},
		{MethodName: "Query", Handler: unary("Query", DAOServiceServer.Query)},
		{MethodName: "Simulate", Handler: unary("Simulate", DAOServiceServer.Simulate)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dao/v1/service.cram",
}
