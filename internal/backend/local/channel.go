// Package local provides an in-process backend.Channel, useful for tests
// and for wiring a Data Manager directly to a backend implementation
// running in the same process. It is grounded on the chat example's
// per-client channel plus mutex-guarded client map: outbound calls are
// buffered onto plain Go channels that a test (or an in-process server)
// drains; inbound frames are injected the same way.
package local

import (
	"sync"

	"github.com/angular/tactical/internal/backend"
)

// Request is an outbound request(key) call captured for inspection.
type Request struct {
	Key any
}

// Mutate is an outbound mutate(key, base, value, context) call captured
// for inspection.
type Mutate struct {
	Key     any
	Base    string
	Value   any
	Context any
}

// Channel is an in-process backend.Channel. Outbound Request/Mutate calls
// are appended to buffered channels a test can drain with Requests()/
// Mutates(); inbound frames are delivered with Push/Fail.
type Channel struct {
	mu     sync.Mutex
	closed bool

	requests chan Request
	mutates  chan Mutate
	data     chan backend.DataFrame
	failed   chan backend.FailureFrame
}

var _ backend.Channel = (*Channel)(nil)

// New creates an in-process Channel with the given buffer size for each of
// its four internal channels.
func New(buffer int) *Channel {
	return &Channel{
		requests: make(chan Request, buffer),
		mutates:  make(chan Mutate, buffer),
		data:     make(chan backend.DataFrame, buffer),
		failed:   make(chan backend.FailureFrame, buffer),
	}
}

func (c *Channel) Request(key any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.requests <- Request{Key: key}
	return nil
}

func (c *Channel) Mutate(key any, base string, value any, context any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.mutates <- Mutate{Key: key, Base: base, Value: value, Context: context}
	return nil
}

func (c *Channel) Data() <-chan backend.DataFrame {
	return c.data
}

func (c *Channel) Failed() <-chan backend.FailureFrame {
	return c.failed
}

// Push injects an inbound DataFrame, as a backend server would.
func (c *Channel) Push(frame backend.DataFrame) {
	c.data <- frame
}

// Fail injects an inbound FailureFrame, as a backend server would.
func (c *Channel) Fail(frame backend.FailureFrame) {
	c.failed <- frame
}

// Requests returns the channel of captured outbound Request calls.
func (c *Channel) Requests() <-chan Request {
	return c.requests
}

// Mutates returns the channel of captured outbound Mutate calls.
func (c *Channel) Mutates() <-chan Mutate {
	return c.mutates
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.requests)
	close(c.mutates)
	close(c.data)
	close(c.failed)
	return nil
}

type closedError struct{}

func (closedError) Error() string { return "backend/local: channel closed" }

var errClosed = closedError{}
