package kv

import (
	"testing"

	"github.com/spknetwork/storage-coordinator/testing/require"
)

func setupDB(t *testing.T) *Store {
	store, err := NewKVStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestNewKVStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewKVStore(dir)
	require.NoError(t, err)
	path := store.DatabasePath()
	require.NoError(t, store.Close())

	reopened, err := NewKVStore(dir)
	require.NoError(t, err)
	require.Equal(t, path, reopened.DatabasePath())
	require.NoError(t, reopened.Close())
}

func TestClearDB(t *testing.T) {
	dir := t.TempDir()
	store, err := NewKVStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	require.NoError(t, store.ClearDB())

	// A cleared directory opens fresh.
	store, err = NewKVStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())
}
