// Package local provides an in-process DAO connection.
//
// A consensus engine compiled into the same binary as the application
// talks to it through this adapter: calls go through the lifecycle guard
// and capability discovery of the server package with no serialization.
package local

import (
	"context"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/server"
	"github.com/blockberries/dao/types"
)

var _ dao.Connection = (*Connection)(nil)

// Connection wraps a local application.
type Connection struct {
	srv *server.Server
}

// NewConnection creates an in-process connection to app.
func NewConnection(app dao.Lifecycle, opts ...server.Option) *Connection {
	return &Connection{srv: server.New(app, opts...)}
}

func (c *Connection) Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	return c.srv.Handshake(ctx, req)
}

func (c *Connection) CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error) {
	return c.srv.CheckTx(ctx, tx, mctx)
}

func (c *Connection) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	return c.srv.ExecuteBlock(ctx, block)
}

func (c *Connection) Commit(ctx context.Context) (types.CommitResult, error) {
	return c.srv.Commit(ctx)
}

func (c *Connection) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	return c.srv.Query(ctx, req)
}

func (c *Connection) Capabilities() types.Capabilities {
	return c.srv.Capabilities()
}

func (c *Connection) AsSimulator() dao.Simulator {
	return c.srv.AsSimulator()
}

func (c *Connection) Close() error { return c.srv.Close() }

// Server returns the underlying server.
func (c *Connection) Server() *server.Server {
	return c.srv
}
