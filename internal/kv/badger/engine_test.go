package badger

import (
	"context"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/require"
)

type record struct {
	Value string
}

func init() {
	gob.Register(record{})
}

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEnginePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t)

	ok, err := e.Put(ctx, "records", "k1", record{Value: "a"})
	require.NoError(t, err)
	require.True(t, ok)

	got, found, err := e.Get(ctx, "records", "k1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, record{Value: "a"}, got)
}

func TestEngineGetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t)
	_, found, err := e.Get(ctx, "records", "missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestEngineRemove(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t)
	_, _ = e.Put(ctx, "records", "k1", record{Value: "a"})

	existed, err := e.Remove(ctx, "records", "k1")
	require.NoError(t, err)
	require.True(t, existed)

	_, found, err := e.Get(ctx, "records", "k1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestTransactionCommitAppliesWrites(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t)

	txn, err := e.Transaction(ctx, "records")
	require.NoError(t, err)
	_, err = txn.Put("records", "k1", record{Value: "committed"})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	got, found, err := e.Get(ctx, "records", "k1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, record{Value: "committed"}, got)
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t)

	txn, err := e.Transaction(ctx, "records")
	require.NoError(t, err)
	_, err = txn.Put("records", "k1", record{Value: "never"})
	require.NoError(t, err)
	require.NoError(t, txn.Rollback())

	_, found, err := e.Get(ctx, "records", "k1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestKeysListsAllKeysInStore(t *testing.T) {
	ctx := context.Background()
	e := openTestEngine(t)
	_, _ = e.Put(ctx, "records", "a", record{Value: "1"})
	_, _ = e.Put(ctx, "records", "b", record{Value: "2"})
	_, _ = e.Put(ctx, "chains", "c", record{Value: "3"})

	it, err := e.Keys(ctx, "records")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, it.Collect())
}
