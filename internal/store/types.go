// Package store implements the version chain store: the data model, the
// transactional state machine, and the two observable event streams
// (spec.md §3, §4.2). It mediates between an application, a pluggable
// kv.Engine, and (indirectly, via the data manager) a backend channel.
package store

import (
	"encoding/gob"

	"github.com/angular/tactical/internal/keyenc"
)

const (
	// ChainsStore is the KV object store holding one ChainState blob per
	// chain, keyed by ChainKey.Serial.
	ChainsStore = "chains"
	// RecordsStore is the KV object store holding one Entry blob per
	// record, keyed by RecordKey.Serial.
	RecordsStore = "records"
)

// Record is a single (version, value, context) triple. Records returned by
// Fetch are always values produced fresh from a KV read, never memory
// shared with a previously returned Record.
type Record struct {
	Version keyenc.Version
	Value   any
	Context any
}

// ChainState is the persisted per-chain metadata: the head of the chain and
// any pending mutations superseded by a server push but not yet resolved by
// the application.
type ChainState struct {
	Current  keyenc.Version
	Outdated []keyenc.Version
}

// Entry is the persisted record payload stored in RecordsStore.
type Entry struct {
	Value   any
	Context any
}

// OutdatedMutation is emitted on the Outdated stream when a push supersedes
// a pending mutation that was not the push's resolved target.
type OutdatedMutation struct {
	Key      keyenc.ChainKey
	Current  Record
	Mutation Record
	Initial  Record
}

// PendingMutation is emitted on the Pending stream whenever Commit lays a
// new local mutation on top of the current version.
type PendingMutation struct {
	Key      keyenc.ChainKey
	Mutation Record
}

func init() {
	gob.Register(ChainState{})
	gob.Register(Entry{})

	// Value and Context are declared any because the store is agnostic to
	// what an application pushes, but every call site in this package (and
	// spec.md's own scenarios) passes JSON-shaped map[string]any/[]any
	// payloads through them. gob requires every concrete type that appears
	// behind an interface to be registered, so the composite shapes are
	// registered here; the scalar leaves (string, float64, bool, nil) are
	// already covered by gob's own built-in registrations.
	gob.Register(map[string]any{})
	gob.Register([]any{})
}
