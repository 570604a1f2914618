package local_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angular/tactical/internal/backend"
	"github.com/angular/tactical/internal/backend/local"
)

func TestRequestAndMutateAreCaptured(t *testing.T) {
	ch := local.New(4)
	defer ch.Close()

	require.NoError(t, ch.Request("k"))
	require.NoError(t, ch.Mutate("k", "base1", map[string]any{"v": 1}, nil))

	require.Equal(t, local.Request{Key: "k"}, <-ch.Requests())
	require.Equal(t, local.Mutate{Key: "k", Base: "base1", Value: map[string]any{"v": 1}}, <-ch.Mutates())
}

func TestPushAndFailDeliverInboundFrames(t *testing.T) {
	ch := local.New(4)
	defer ch.Close()

	ch.Push(backend.DataFrame{Key: "k", Version: "v1"})
	ch.Fail(backend.FailureFrame{Key: "k", Reason: "rejected"})

	require.Equal(t, backend.DataFrame{Key: "k", Version: "v1"}, <-ch.Data())
	require.Equal(t, backend.FailureFrame{Key: "k", Reason: "rejected"}, <-ch.Failed())
}

func TestOperationsAfterCloseFail(t *testing.T) {
	ch := local.New(1)
	require.NoError(t, ch.Close())

	require.Error(t, ch.Request("k"))
	require.Error(t, ch.Mutate("k", "base1", nil, nil))
}
