// Package bufpool recycles the scratch buffers the kv engines run values
// through encoding/gob with, avoiding a fresh allocation on every
// Get/Put/Transaction call.
package bufpool

import (
	"bytes"
	"sync"
)

// Pool is a sync.Pool of *bytes.Buffer, reset before each Get so callers
// never observe a previous user's bytes.
type Pool struct {
	pool sync.Pool
}

// New returns an empty Pool; buffers are allocated lazily on first Get.
func New() *Pool {
	return &Pool{
		pool: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
	}
}

// Get returns a buffer with length zero, ready to encode into.
func (p *Pool) Get() *bytes.Buffer {
	buf := p.pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns buf to the pool for reuse.
func (p *Pool) Put(buf *bytes.Buffer) {
	p.pool.Put(buf)
}
