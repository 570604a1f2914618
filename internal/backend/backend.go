// Package backend defines the bidirectional frame channel between a client
// and the backend server that authors chain pushes (spec.md §6). The store
// and data manager depend only on the Channel interface; concrete
// transports live in subpackages.
package backend

// DataFrame is an inbound frame carrying the backend's latest value for a
// key. If MutationContext is non-nil, the frame is the backend's reply to a
// previously-submitted mutation and carries back the Context that mutation
// was committed with.
type DataFrame struct {
	Key             any
	Version         string
	Data            any
	MutationContext any
}

// FailureFrame is an inbound frame reporting that a submitted mutation was
// rejected for a reason other than a version conflict.
type FailureFrame struct {
	Key           any
	BaseVersion   string
	Context       any
	Reason        string
	DebuggingInfo any
}

// Channel is the outbound request/mutate, inbound data/failed contract a
// backend transport must implement.
type Channel interface {
	// Request asks the backend for the latest version of key.
	Request(key any) error
	// Mutate submits a local mutation for key, based on base, to the
	// backend.
	Mutate(key any, base string, value any, context any) error
	// Data is the stream of inbound DataFrames.
	Data() <-chan DataFrame
	// Failed is the stream of inbound FailureFrames.
	Failed() <-chan FailureFrame
	// Close releases resources held by the channel.
	Close() error
}
