package indexer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/dao/app"
	"github.com/blockberries/dao/types"
)

var _ app.Indexer = (*Indexer)(nil)

func openMem(t *testing.T) *Indexer {
	t.Helper()
	x, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = x.Close() })
	return x
}

func stakeOutcome(sender types.Address, amount string) types.BlockOutcome {
	return types.BlockOutcome{
		TxOutcomes: []types.TxOutcome{
			{
				Index: 0,
				Events: []types.Event{
					{Kind: "tx", Attributes: []types.EventAttribute{
						types.Attr("kind", "stake"),
						types.Attr("sender", sender.String()),
					}},
					{Kind: "staked", Attributes: []types.EventAttribute{
						types.Attr("staker", sender.String()),
						{Key: "amount", Value: amount},
					}},
				},
			},
			{Index: 1, Code: 6, Info: "insufficient funds"},
		},
		BlockEvents: []types.Event{
			{Kind: "rewards_checkpoint", Attributes: []types.EventAttribute{types.Attr("rate", "3")}},
		},
		AppHash: types.AppHash{1, 2, 3},
	}
}

func TestIndexAndQuery(t *testing.T) {
	x := openMem(t)
	ctx := context.Background()
	alice := types.ModuleAddress("account/alice")
	bob := types.ModuleAddress("account/bob")

	require.NoError(t, x.IndexBlock(ctx, 1, 100, stakeOutcome(alice, "500")))
	require.NoError(t, x.IndexBlock(ctx, 2, 105, stakeOutcome(bob, "700")))

	last, err := x.LastHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)

	staked, err := x.Events(ctx, Filter{Kind: "staked"})
	require.NoError(t, err)
	require.Len(t, staked, 2)
	assert.Equal(t, uint64(1), staked[0].Height)
	assert.Equal(t, int64(0), staked[0].TxIndex)
	assert.Equal(t, 1, staked[0].EventIndex)
	amount, ok := staked[0].Get("amount")
	require.True(t, ok)
	assert.Equal(t, "500", amount)

	byStaker, err := x.Events(ctx, Filter{Kind: "staked", Attributes: map[string]string{"staker": bob.String()}})
	require.NoError(t, err)
	require.Len(t, byStaker, 1)
	assert.Equal(t, uint64(2), byStaker[0].Height)

	// Non-indexed attributes are not searchable.
	byAmount, err := x.Events(ctx, Filter{Attributes: map[string]string{"amount": "700"}})
	require.NoError(t, err)
	assert.Empty(t, byAmount)

	block, err := x.Events(ctx, Filter{Kind: "rewards_checkpoint", FromHeight: 2, ToHeight: 2})
	require.NoError(t, err)
	require.Len(t, block, 1)
	assert.Equal(t, int64(-1), block[0].TxIndex)

	limited, err := x.Events(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestTxsBySender(t *testing.T) {
	x := openMem(t)
	ctx := context.Background()
	alice := types.ModuleAddress("account/alice")

	require.NoError(t, x.IndexBlock(ctx, 1, 100, stakeOutcome(alice, "1")))
	require.NoError(t, x.IndexBlock(ctx, 2, 105, stakeOutcome(alice, "2")))

	txs, err := x.TxsBySender(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, uint64(2), txs[0].Height)
	assert.Equal(t, "stake", txs[0].Kind)
	assert.Equal(t, uint32(0), txs[0].Code)
}

func TestReindexReplacesHeight(t *testing.T) {
	x := openMem(t)
	ctx := context.Background()
	alice := types.ModuleAddress("account/alice")

	require.NoError(t, x.IndexBlock(ctx, 1, 100, stakeOutcome(alice, "1")))
	require.NoError(t, x.IndexBlock(ctx, 1, 100, stakeOutcome(alice, "2")))

	staked, err := x.Events(ctx, Filter{Kind: "staked"})
	require.NoError(t, err)
	require.Len(t, staked, 1)
	amount, _ := staked[0].Get("amount")
	assert.Equal(t, "2", amount)
}

func TestReopenKeepsIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	ctx := context.Background()

	x, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, x.IndexBlock(ctx, 7, 100, types.BlockOutcome{}))
	require.NoError(t, x.Close())

	// Migrations are recorded and not re-applied.
	x, err = Open(path)
	require.NoError(t, err)
	defer x.Close()
	last, err := x.LastHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), last)
}

func TestUpSection(t *testing.T) {
	sql := "-- +migrate Up\nCREATE TABLE a (x INTEGER);\n-- +migrate Down\nDROP TABLE a;\n"
	assert.Equal(t, "\nCREATE TABLE a (x INTEGER);\n", upSection(sql))
}
