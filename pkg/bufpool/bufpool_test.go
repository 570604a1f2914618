package bufpool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angular/tactical/pkg/bufpool"
)

func TestGetReturnsEmptyBuffer(t *testing.T) {
	p := bufpool.New()
	buf := p.Get()
	require.Equal(t, 0, buf.Len())
}

func TestPutRecycledBufferComesBackEmpty(t *testing.T) {
	p := bufpool.New()
	buf := p.Get()
	buf.WriteString("leftover")
	p.Put(buf)

	again := p.Get()
	require.Equal(t, 0, again.Len())
}
