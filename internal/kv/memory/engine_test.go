package memory

import (
	"context"
	"encoding/gob"
	"testing"

	"github.com/stretchr/testify/require"
)

type widget struct {
	Name string
}

func init() {
	gob.Register(widget{})
}

func TestEnginePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := New()

	ok, err := e.Put(ctx, "records", "k1", widget{Name: "a"})
	require.NoError(t, err)
	require.True(t, ok)

	got, found, err := e.Get(ctx, "records", "k1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, widget{Name: "a"}, got)
}

func TestEngineGetMissingReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	e := New()
	_, found, err := e.Get(ctx, "records", "missing")
	require.NoError(t, err)
	require.False(t, found)
}

func TestEngineDeepClonesOnPutAndGet(t *testing.T) {
	ctx := context.Background()
	e := New()

	w := widget{Name: "original"}
	_, err := e.Put(ctx, "records", "k1", w)
	require.NoError(t, err)
	w.Name = "mutated-after-put"

	got1, _, err := e.Get(ctx, "records", "k1")
	require.NoError(t, err)
	require.Equal(t, "original", got1.(widget).Name)

	first := got1.(widget)
	first.Name = "mutated-after-get"
	got2, _, err := e.Get(ctx, "records", "k1")
	require.NoError(t, err)
	require.Equal(t, "original", got2.(widget).Name)
}

func TestTransactionCommitAppliesWrites(t *testing.T) {
	ctx := context.Background()
	e := New()

	txn, err := e.Transaction(ctx, "records")
	require.NoError(t, err)
	_, err = txn.Put("records", "k1", widget{Name: "committed"})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	got, found, err := e.Get(ctx, "records", "k1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, widget{Name: "committed"}, got)
}

func TestTransactionRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	e := New()

	txn, err := e.Transaction(ctx, "records")
	require.NoError(t, err)
	_, err = txn.Put("records", "k1", widget{Name: "never"})
	require.NoError(t, err)
	require.NoError(t, txn.Rollback())

	_, found, err := e.Get(ctx, "records", "k1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestTransactionReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	e := New()

	txn, err := e.Transaction(ctx, "records")
	require.NoError(t, err)
	_, err = txn.Put("records", "k1", widget{Name: "staged"})
	require.NoError(t, err)

	got, found, err := txn.Get("records", "k1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, widget{Name: "staged"}, got)
	require.NoError(t, txn.Rollback())
}

func TestKeysListsAllKeysInStore(t *testing.T) {
	ctx := context.Background()
	e := New()
	_, _ = e.Put(ctx, "records", "a", widget{Name: "1"})
	_, _ = e.Put(ctx, "records", "b", widget{Name: "2"})

	it, err := e.Keys(ctx, "records")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, it.Collect())
}
