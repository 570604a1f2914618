// Package memory provides the default in-memory kv.Engine implementation.
// Every value that crosses Get, Put, or a Transaction is round-tripped
// through encoding/gob, which both deep-clones it (so callers can never
// observe or corrupt another caller's copy) and requires engine callers to
// register any concrete types they store with gob.Register — the same
// contract the teacher's event bus SaveState/LoadState relies on.
package memory

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"

	"github.com/angular/tactical/internal/kv"
	"github.com/angular/tactical/pkg/bufpool"
	"github.com/angular/tactical/pkg/sequence"
)

var bufferPool = bufpool.New()

// Engine is the default in-memory kv.Engine. The zero value is not usable;
// construct with New.
type Engine struct {
	mu   sync.Mutex
	data map[string]map[string][]byte
}

var _ kv.Engine = (*Engine)(nil)

// New creates an empty in-memory engine.
func New() *Engine {
	return &Engine{data: make(map[string]map[string][]byte)}
}

func (e *Engine) Get(_ context.Context, store, key string) (any, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.getLocked(store, key)
}

func (e *Engine) getLocked(store, key string) (any, bool, error) {
	raw, ok := e.data[store][key]
	if !ok {
		return nil, false, nil
	}
	val, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (e *Engine) Put(_ context.Context, store, key string, value any) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.putLocked(store, key, value)
}

func (e *Engine) putLocked(store, key string, value any) (bool, error) {
	encoded, err := encode(value)
	if err != nil {
		return false, err
	}
	if e.data[store] == nil {
		e.data[store] = make(map[string][]byte)
	}
	e.data[store][key] = encoded
	return true, nil
}

func (e *Engine) Remove(_ context.Context, store, key string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removeLocked(store, key)
}

func (e *Engine) removeLocked(store, key string) (bool, error) {
	m := e.data[store]
	_, existed := m[key]
	delete(m, key)
	return existed, nil
}

func (e *Engine) Keys(_ context.Context, store string) (*sequence.Iterator[string], error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]string, 0, len(e.data[store]))
	for k := range e.data[store] {
		keys = append(keys, k)
	}
	return sequence.From(keys), nil
}

func (e *Engine) Transaction(_ context.Context, _ ...string) (kv.Transaction, error) {
	e.mu.Lock()
	return &transaction{
		engine:  e,
		writes:  make(map[string]map[string][]byte),
		removed: make(map[string]map[string]struct{}),
	}, nil
}

func (e *Engine) Close() error {
	return nil
}

// transaction holds the engine's lock for its entire lifetime, giving it
// exclusive access to the whole database, and stages writes/removes in
// local overlays rather than applying them to the engine directly — so that
// an operation which fails partway through can Rollback without any of its
// earlier writes becoming visible. Reads inside the transaction see its own
// staged writes (read-your-own-writes) layered over the committed data.
type transaction struct {
	engine  *Engine
	done    bool
	writes  map[string]map[string][]byte
	removed map[string]map[string]struct{}
}

func (t *transaction) Get(store, key string) (any, bool, error) {
	if t.done {
		return nil, false, fmt.Errorf("kv/memory: transaction already closed")
	}
	if _, gone := t.removed[store][key]; gone {
		return nil, false, nil
	}
	if raw, ok := t.writes[store][key]; ok {
		val, err := decode(raw)
		if err != nil {
			return nil, false, err
		}
		return val, true, nil
	}
	return t.engine.getLocked(store, key)
}

func (t *transaction) Put(store, key string, value any) (bool, error) {
	if t.done {
		return false, fmt.Errorf("kv/memory: transaction already closed")
	}
	encoded, err := encode(value)
	if err != nil {
		return false, err
	}
	if t.writes[store] == nil {
		t.writes[store] = make(map[string][]byte)
	}
	t.writes[store][key] = encoded
	delete(t.removed[store], key)
	return true, nil
}

func (t *transaction) Remove(store, key string) (bool, error) {
	if t.done {
		return false, fmt.Errorf("kv/memory: transaction already closed")
	}
	_, existed, err := t.Get(store, key)
	if err != nil {
		return false, err
	}
	delete(t.writes[store], key)
	if t.removed[store] == nil {
		t.removed[store] = make(map[string]struct{})
	}
	t.removed[store][key] = struct{}{}
	return existed, nil
}

func (t *transaction) Commit() error {
	if t.done {
		return nil
	}
	for store, byKey := range t.writes {
		for key, raw := range byKey {
			if t.engine.data[store] == nil {
				t.engine.data[store] = make(map[string][]byte)
			}
			t.engine.data[store][key] = raw
		}
	}
	for store, keys := range t.removed {
		for key := range keys {
			delete(t.engine.data[store], key)
		}
	}
	return t.close()
}

func (t *transaction) Rollback() error {
	return t.close()
}

func (t *transaction) close() error {
	if t.done {
		return nil
	}
	t.done = true
	t.engine.mu.Unlock()
	return nil
}

func encode(v any) ([]byte, error) {
	buf := bufferPool.Get()
	defer bufferPool.Put(buf)

	// Encoding through a pointer to the interface records v's concrete type
	// on the wire, which is what lets decode restore it into a bare any.
	if err := gob.NewEncoder(buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("kv/memory: encode: %w", err)
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decode(raw []byte) (any, error) {
	var v any
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return nil, fmt.Errorf("kv/memory: decode: %w", err)
	}
	return v, nil
}
