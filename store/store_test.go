package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/dao/app"
)

var _ app.Store = (*Store)(nil)

func openMem(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEmptyStore(t *testing.T) {
	s := openMem(t)
	_, _, found, err := s.LoadState(context.Background())
	require.NoError(t, err)
	assert.False(t, found)

	_, err = s.StateAt(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveLoad(t *testing.T) {
	s := openMem(t)
	ctx := context.Background()
	require.NoError(t, s.SaveState(ctx, 1, []byte("one")))
	require.NoError(t, s.SaveState(ctx, 2, []byte("two")))

	height, state, found, err := s.LoadState(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(2), height)
	assert.Equal(t, []byte("two"), state)

	old, err := s.StateAt(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), old)
}

func TestRetention(t *testing.T) {
	s := openMem(t, WithRetain(3))
	ctx := context.Background()
	for h := uint64(1); h <= 6; h++ {
		require.NoError(t, s.SaveState(ctx, h, []byte{byte(h)}))
	}
	heights, err := s.Heights(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{4, 5, 6}, heights)

	_, err = s.StateAt(ctx, 3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(WithDataDir(dir))
	require.NoError(t, err)
	require.NoError(t, s.SaveState(ctx, 9, []byte("nine")))
	require.NoError(t, s.Close())

	s, err = Open(WithDataDir(dir))
	require.NoError(t, err)
	defer s.Close()
	height, state, found, err := s.LoadState(ctx)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(9), height)
	assert.Equal(t, []byte("nine"), state)
}

func TestCancelledContext(t *testing.T) {
	s := openMem(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.SaveState(ctx, 1, nil), context.Canceled)
}
