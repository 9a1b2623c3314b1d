package daotest

import (
	"testing"

	"github.com/blockberries/dao/types"
)

// Addr returns a deterministic, non-zero address for a test account.
func Addr(name string) types.Address {
	return types.ModuleAddress("account/" + name)
}

// Tx encodes msg in an envelope from sender, failing the test on error.
func Tx(tb testing.TB, sender types.Address, kind types.TxKind, msg any) types.Tx {
	tb.Helper()
	tx, err := types.NewTx(sender, kind, msg)
	if err != nil {
		tb.Fatalf("encode %s tx: %v", kind, err)
	}
	return tx
}

// Payload encodes a route payload for a proposal action.
func Payload(tb testing.TB, msg any) []byte {
	tb.Helper()
	data, err := types.Encode(msg)
	if err != nil {
		tb.Fatalf("encode payload: %v", err)
	}
	return data
}
