// Package badger provides an optional persistent kv.Engine backed by
// github.com/dgraph-io/badger/v4, grounded on the badger usage patterns
// found across the retrieval pack (txn.Set/txn.Get/txn.Delete inside
// db.Update/db.View, ValueCopy to detach returned bytes from badger's
// internal buffers). Store names are folded into the badger key so a
// single badger.DB backs every "chains"/"records" namespace.
package badger

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/angular/tactical/internal/kv"
	"github.com/angular/tactical/pkg/bufpool"
	"github.com/angular/tactical/pkg/sequence"
)

var bufferPool = bufpool.New()

// Engine is a badger-backed kv.Engine.
type Engine struct {
	db *badgerdb.DB
}

var _ kv.Engine = (*Engine)(nil)

// Open opens (or creates) a badger database at path.
func Open(path string) (*Engine, error) {
	opts := badgerdb.DefaultOptions(path)
	opts.Logger = nil
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kv/badger: open: %w", err)
	}
	return &Engine{db: db}, nil
}

func (e *Engine) Close() error {
	return e.db.Close()
}

func (e *Engine) Get(_ context.Context, store, key string) (any, bool, error) {
	var raw []byte
	err := e.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(namespacedKey(store, key))
		if err != nil {
			if err == badgerdb.ErrKeyNotFound {
				return nil
			}
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("kv/badger: get: %w", err)
	}
	if raw == nil {
		return nil, false, nil
	}
	val, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (e *Engine) Put(_ context.Context, store, key string, value any) (bool, error) {
	encoded, err := encode(value)
	if err != nil {
		return false, err
	}
	err = e.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(namespacedKey(store, key), encoded)
	})
	if err != nil {
		return false, fmt.Errorf("kv/badger: put: %w", err)
	}
	return true, nil
}

func (e *Engine) Remove(_ context.Context, store, key string) (bool, error) {
	existed := false
	err := e.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(namespacedKey(store, key)); err == nil {
			existed = true
		}
		err := txn.Delete(namespacedKey(store, key))
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("kv/badger: remove: %w", err)
	}
	return existed, nil
}

func (e *Engine) Keys(_ context.Context, store string) (*sequence.Iterator[string], error) {
	prefix := []byte(store + "\x00")
	var keys []string
	err := e.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			full := it.Item().KeyCopy(nil)
			keys = append(keys, string(full[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("kv/badger: keys: %w", err)
	}
	return sequence.From(keys), nil
}

// Transaction opens a badger read-write transaction over the whole
// database; the store names are not used. It takes no lock: badger detects
// conflicting concurrent transactions at Commit and fails the later one.
func (e *Engine) Transaction(_ context.Context, _ ...string) (kv.Transaction, error) {
	txn := e.db.NewTransaction(true)
	return &transaction{txn: txn}, nil
}

type transaction struct {
	txn  *badgerdb.Txn
	done bool
}

func (t *transaction) Get(store, key string) (any, bool, error) {
	item, err := t.txn.Get(namespacedKey(store, key))
	if err != nil {
		if err == badgerdb.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("kv/badger: txn get: %w", err)
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, fmt.Errorf("kv/badger: txn get: %w", err)
	}
	val, err := decode(raw)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (t *transaction) Put(store, key string, value any) (bool, error) {
	encoded, err := encode(value)
	if err != nil {
		return false, err
	}
	if err := t.txn.Set(namespacedKey(store, key), encoded); err != nil {
		return false, fmt.Errorf("kv/badger: txn put: %w", err)
	}
	return true, nil
}

func (t *transaction) Remove(store, key string) (bool, error) {
	_, existed, err := t.Get(store, key)
	if err != nil {
		return false, err
	}
	if err := t.txn.Delete(namespacedKey(store, key)); err != nil && err != badgerdb.ErrKeyNotFound {
		return false, fmt.Errorf("kv/badger: txn remove: %w", err)
	}
	return existed, nil
}

func (t *transaction) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	if err := t.txn.Commit(); err != nil {
		return fmt.Errorf("kv/badger: commit: %w", err)
	}
	return nil
}

func (t *transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	t.txn.Discard()
	return nil
}

func namespacedKey(store, key string) []byte {
	return []byte(store + "\x00" + key)
}

func encode(v any) ([]byte, error) {
	buf := bufferPool.Get()
	defer bufferPool.Put(buf)

	// Encoding through a pointer to the interface records v's concrete type
	// on the wire, which is what lets decode restore it into a bare any.
	if err := gob.NewEncoder(buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("kv/badger: encode: %w", err)
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

func decode(raw []byte) (any, error) {
	var v any
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return nil, fmt.Errorf("kv/badger: decode: %w", err)
	}
	return v, nil
}
