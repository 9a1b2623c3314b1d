package server

import (
	"context"
	"errors"
	"testing"

	"github.com/blockberries/dao"
	"github.com/blockberries/dao/types"
)

// testApp is a minimal application to avoid an import cycle with
// daotest.
type testApp struct {
	caps           types.Capabilities
	handshakeCalls int
	haltAt         uint64
}

var _ dao.Lifecycle = (*testApp)(nil)

func (a *testApp) Handshake(_ context.Context, _ types.HandshakeRequest) (types.HandshakeResponse, error) {
	a.handshakeCalls++
	return types.HandshakeResponse{Capabilities: a.caps}, nil
}

func (a *testApp) CheckTx(_ context.Context, _ types.Tx, _ types.MempoolContext) (types.GateVerdict, error) {
	return types.GateVerdict{Code: 0}, nil
}

func (a *testApp) ExecuteBlock(_ context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	if a.haltAt != 0 && block.Height == a.haltAt {
		return types.BlockOutcome{}, dao.NewHaltError(block.Height, "test halt")
	}
	outcomes := make([]types.TxOutcome, len(block.Txs))
	for i := range block.Txs {
		outcomes[i] = types.TxOutcome{Index: uint32(i), Code: 0}
	}
	return types.BlockOutcome{
		TxOutcomes: outcomes,
		AppHash:    types.AppHash{0x01},
	}, nil
}

func (a *testApp) Commit(_ context.Context) (types.CommitResult, error) {
	return types.CommitResult{}, nil
}

func (a *testApp) Query(_ context.Context, _ types.StateQuery) (types.StateQueryResult, error) {
	return types.StateQueryResult{}, nil
}

// simApp adds the Simulation capability.
type simApp struct {
	testApp
}

var _ dao.Application = (*simApp)(nil)

func (a *simApp) Simulate(_ context.Context, _ types.Tx) (types.TxOutcome, error) {
	return types.TxOutcome{Code: 0}, nil
}

func genesisRequest() types.HandshakeRequest {
	return types.HandshakeRequest{Genesis: &types.GenesisDoc{ChainID: "test"}}
}

func TestServer_Handshake_Genesis(t *testing.T) {
	app := &testApp{}
	srv := New(app)

	resp, err := srv.Handshake(context.Background(), genesisRequest())
	if err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if resp.Capabilities != 0 {
		t.Errorf("expected no capabilities, got %s", resp.Capabilities)
	}
	if app.handshakeCalls != 1 {
		t.Errorf("expected 1 handshake call, got %d", app.handshakeCalls)
	}
}

func TestServer_Handshake_UndeclaredInterface(t *testing.T) {
	app := &testApp{caps: types.CapSimulation}
	srv := New(app)

	if _, err := srv.Handshake(context.Background(), genesisRequest()); err == nil {
		t.Fatal("expected error for CapSimulation without Simulator")
	}

	// The guard is back in Init; a fixed app can retry.
	app.caps = 0
	if _, err := srv.Handshake(context.Background(), genesisRequest()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestServer_ExecuteCommitCycle(t *testing.T) {
	srv := New(&testApp{})

	if _, err := srv.Handshake(context.Background(), genesisRequest()); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}

	block := types.FinalizedBlock{
		Height: 1,
		Txs:    []types.Tx{{0x01}},
	}

	outcome, err := srv.ExecuteBlock(context.Background(), block)
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if len(outcome.TxOutcomes) != 1 {
		t.Errorf("expected 1 tx outcome, got %d", len(outcome.TxOutcomes))
	}

	if srv.LastOutcome() == nil {
		t.Error("expected non-nil LastOutcome between execute and commit")
	}

	if _, err := srv.Commit(context.Background()); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	if srv.LastOutcome() != nil {
		t.Error("expected nil LastOutcome after commit")
	}
}

func TestServer_HaltReturnsToReady(t *testing.T) {
	srv := New(&testApp{haltAt: 1})
	if _, err := srv.Handshake(context.Background(), genesisRequest()); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}

	_, err := srv.ExecuteBlock(context.Background(), types.FinalizedBlock{Height: 1})
	var halt *dao.HaltError
	if !errors.As(err, &halt) {
		t.Fatalf("expected HaltError, got %v", err)
	}
	if halt.Height != 1 {
		t.Errorf("halt height = %d, want 1", halt.Height)
	}
	if srv.LastOutcome() != nil {
		t.Error("failed execute must not leave an outcome")
	}
	if !srv.guard.IsReady() {
		t.Errorf("expected Ready, got %s", srv.guard.State())
	}
}

func TestServer_CheckTxConcurrent(t *testing.T) {
	srv := New(&testApp{})

	if _, err := srv.Handshake(context.Background(), genesisRequest()); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			if _, err := srv.CheckTx(context.Background(), types.Tx{0x01}, types.MempoolFirstSeen); err != nil {
				t.Errorf("CheckTx error: %v", err)
			}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestServer_CapabilityGating(t *testing.T) {
	// Implemented but not declared: not exposed.
	srv := New(&simApp{})
	if _, err := srv.Handshake(context.Background(), genesisRequest()); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if srv.AsSimulator() != nil {
		t.Error("expected nil Simulator when not declared")
	}

	// Not implemented at all.
	plain := New(&testApp{})
	if _, err := plain.Handshake(context.Background(), genesisRequest()); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if _, err := plain.Simulate(context.Background(), types.Tx{0x01}); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
}

func TestServer_CapabilityFullAccess(t *testing.T) {
	srv := New(&simApp{testApp{caps: types.CapSimulation}})

	if _, err := srv.Handshake(context.Background(), genesisRequest()); err != nil {
		t.Fatalf("handshake failed: %v", err)
	}
	if srv.Capabilities() != types.CapSimulation {
		t.Errorf("capabilities = %s", srv.Capabilities())
	}
	if srv.AsSimulator() == nil {
		t.Fatal("expected non-nil Simulator")
	}
	out, err := srv.Simulate(context.Background(), types.Tx{0x01})
	if err != nil || !out.OK() {
		t.Fatalf("simulate: %v %+v", err, out)
	}
}
