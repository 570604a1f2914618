package store

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/angular/tactical/internal/eventstream"
	"github.com/angular/tactical/internal/keyenc"
	"github.com/angular/tactical/internal/kv"
	"github.com/angular/tactical/internal/log"
	"github.com/angular/tactical/internal/store/storemetrics"
)

// Store is the version chain store. All five operations (Fetch, Push,
// Commit, Abandon, plus the two event streams) are safe for concurrent use:
// every operation is run to completion on one internal dispatch goroutine,
// so operations on the same — or different — chains never interleave with
// each other. The only suspension points inside an operation are the
// underlying kv.Engine calls (spec.md §5).
type Store struct {
	engine  kv.Engine
	logger  log.Log
	metrics *storemetrics.Collector

	outdated *eventstream.Stream[OutdatedMutation]
	pending  *eventstream.Stream[PendingMutation]

	cmds   chan func()
	closed chan struct{}
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the default no-op logger.
func WithLogger(l log.Log) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics attaches a storemetrics.Collector observing every operation.
func WithMetrics(m *storemetrics.Collector) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a Store over engine and starts its dispatch goroutine.
func New(engine kv.Engine, opts ...Option) *Store {
	s := &Store{
		engine:   engine,
		logger:   log.New(log.LevelSilent),
		outdated: eventstream.New[OutdatedMutation](),
		pending:  eventstream.New[PendingMutation](),
		cmds:     make(chan func()),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Close stops the dispatch goroutine. Operations already dispatched run to
// completion; no new operation may be started afterward.
func (s *Store) Close() error {
	close(s.closed)
	return nil
}

// Outdated is the hot-multicast stream of OutdatedMutation events, emitted
// when a Push supersedes a pending mutation it does not resolve. It has no
// replay: subscribers only observe emissions made after they subscribe.
func (s *Store) Outdated() *eventstream.Stream[OutdatedMutation] {
	return s.outdated
}

// Pending is the hot-multicast stream of PendingMutation events, emitted
// whenever Commit succeeds. It has no replay.
func (s *Store) Pending() *eventstream.Stream[PendingMutation] {
	return s.pending
}

func (s *Store) run() {
	for {
		select {
		case fn := <-s.cmds:
			fn()
		case <-s.closed:
			return
		}
	}
}

// dispatch runs fn on the store's single dispatch goroutine and blocks
// until it completes.
func (s *Store) dispatch(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		fn()
		close(done)
	}
	select {
	case s.cmds <- wrapped:
	case <-s.closed:
		return fmt.Errorf("store: closed")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fetch returns the record for key. If version is nil, the chain's current
// record is returned (or nil if the chain has no ChainState, or the KV
// store is corrupt and the current record is missing). If version is
// supplied, the record at exactly that version is returned, or nil if
// absent; ChainState is never consulted in that case.
func (s *Store) Fetch(ctx context.Context, key keyenc.ChainKey, version *keyenc.Version) (*Record, error) {
	var (
		rec *Record
		err error
	)
	dispatchErr := s.dispatch(ctx, func() {
		rec, err = s.fetch(ctx, key, version)
	})
	if dispatchErr != nil {
		return nil, dispatchErr
	}
	return rec, err
}

func (s *Store) fetch(ctx context.Context, key keyenc.ChainKey, version *keyenc.Version) (*Record, error) {
	if version != nil {
		return s.readRecord(ctx, key, *version)
	}
	state, ok, err := s.readChainState(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return s.readRecord(ctx, key, state.Current)
}

// Push ingests a server-authoritative version for key (spec.md §4.2).
func (s *Store) Push(ctx context.Context, key keyenc.ChainKey, base string, value any, resolves *keyenc.Version) error {
	var opErr error
	dispatchErr := s.dispatch(ctx, func() {
		opErr = s.push(ctx, key, base, value, resolves)
	})
	if dispatchErr != nil {
		return dispatchErr
	}
	return opErr
}

func (s *Store) push(ctx context.Context, key keyenc.ChainKey, base string, value any, resolves *keyenc.Version) error {
	pushV := keyenc.Version{Base: base, Sub: 0}

	txn, err := s.engine.Transaction(ctx, ChainsStore, RecordsStore)
	if err != nil {
		return fmt.Errorf("store: push: %w", err)
	}

	stateRaw, hasState, err := txn.Get(ChainsStore, key.Serial)
	if err != nil {
		_ = txn.Rollback()
		return fmt.Errorf("store: push: %w", err)
	}

	if !hasState {
		newState := ChainState{Current: pushV}
		if err := s.writeState(txn, key, newState); err != nil {
			_ = txn.Rollback()
			return err
		}
		if err := s.writeEntry(txn, key, pushV, Entry{Value: value, Context: map[string]any{}}); err != nil {
			_ = txn.Rollback()
			return err
		}
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("store: push: %w", err)
		}
		s.observe(func(m *storemetrics.Collector) { m.PushCreated() })
		return nil
	}

	state := stateRaw.(ChainState)
	prev := state.Current
	hasPrev := true

	isOutdated := hasPrev && prev.Sub > 0
	isResolved := resolves != nil && prev.Equal(*resolves)

	state.Current = pushV
	if isOutdated && !isResolved {
		state.Outdated = append(state.Outdated, prev)
	}

	if err := s.writeState(txn, key, state); err != nil {
		_ = txn.Rollback()
		return err
	}
	if err := s.writeEntry(txn, key, pushV, Entry{Value: value, Context: map[string]any{}}); err != nil {
		_ = txn.Rollback()
		return err
	}

	var emitOutdated *OutdatedMutation
	if hasPrev && !prev.Equal(pushV) {
		if prev.IsInitial() || isResolved {
			if _, err := s.removeRecord(txn, key, prev); err != nil {
				_ = txn.Rollback()
				return err
			}
			if prev.Sub > 0 {
				if _, err := s.removeRecord(txn, key, prev.Initial()); err != nil {
					_ = txn.Rollback()
					return err
				}
			}
		} else {
			mutationEntry, ok, err := s.readEntry(txn, key, prev)
			if err != nil {
				_ = txn.Rollback()
				return err
			}
			initialEntry, initOK, err := s.readEntry(txn, key, prev.Initial())
			if err != nil {
				_ = txn.Rollback()
				return err
			}
			if ok && initOK {
				emitOutdated = &OutdatedMutation{
					Key:      key,
					Current:  Record{Version: pushV, Value: value, Context: map[string]any{}},
					Mutation: Record{Version: prev, Value: mutationEntry.Value, Context: mutationEntry.Context},
					Initial:  Record{Version: prev.Initial(), Value: initialEntry.Value, Context: initialEntry.Context},
				}
			}
		}
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("store: push: %w", err)
	}

	s.logger.Debug("store: pushed version",
		log.String("key", key.Serial), log.String("base", base))
	s.observe(func(m *storemetrics.Collector) { m.Push() })
	if emitOutdated != nil {
		s.logger.Debug("store: mutation outdated by push", log.String("key", key.Serial))
		s.observe(func(m *storemetrics.Collector) { m.OutdatedEmitted() })
		s.outdated.Emit(*emitOutdated)
	}
	return nil
}

// Commit layers a local mutation on the current version of key (spec.md
// §4.2). target must equal the chain's current version or an
// OutdatedTargetVersionError is returned.
func (s *Store) Commit(ctx context.Context, key keyenc.ChainKey, target keyenc.Version, mutation any, mutationContext any) error {
	var opErr error
	dispatchErr := s.dispatch(ctx, func() {
		opErr = s.commit(ctx, key, target, mutation, mutationContext)
	})
	if dispatchErr != nil {
		return dispatchErr
	}
	return opErr
}

func (s *Store) commit(ctx context.Context, key keyenc.ChainKey, target keyenc.Version, mutation any, mutationContext any) error {
	txn, err := s.engine.Transaction(ctx, ChainsStore, RecordsStore)
	if err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	stateRaw, hasState, err := txn.Get(ChainsStore, key.Serial)
	if err != nil {
		_ = txn.Rollback()
		return fmt.Errorf("store: commit: %w", err)
	}
	if !hasState {
		_ = txn.Rollback()
		return &KeyNotFoundError{Key: key}
	}
	state := stateRaw.(ChainState)
	prev := state.Current
	if prev == (keyenc.Version{}) {
		_ = txn.Rollback()
		return &KeyNotFoundError{Key: key}
	}

	if !target.Equal(prev) {
		_ = txn.Rollback()
		return &OutdatedTargetVersionError{
			Key: key, Current: prev, Target: target,
			Mutation: mutation, Context: mutationContext,
		}
	}

	mutV := keyenc.Version{Base: prev.Base, Sub: randomSub()}
	state.Current = mutV

	if err := s.writeState(txn, key, state); err != nil {
		_ = txn.Rollback()
		return err
	}
	if err := s.writeEntry(txn, key, mutV, Entry{Value: mutation, Context: mutationContext}); err != nil {
		_ = txn.Rollback()
		return err
	}
	if prev.Sub != 0 {
		if _, err := s.removeRecord(txn, key, prev); err != nil {
			_ = txn.Rollback()
			return err
		}
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}

	s.logger.Debug("store: committed mutation",
		log.String("key", key.Serial), log.String("version", mutV.String()))
	s.observe(func(m *storemetrics.Collector) { m.Commit() })
	s.pending.Emit(PendingMutation{
		Key:      key,
		Mutation: Record{Version: mutV, Value: mutation, Context: mutationContext},
	})
	return nil
}

// Abandon discards a pending or outdated mutation (spec.md §4.2). target
// must not be an initial (sub == 0) version.
func (s *Store) Abandon(ctx context.Context, key keyenc.ChainKey, target keyenc.Version) error {
	var opErr error
	dispatchErr := s.dispatch(ctx, func() {
		opErr = s.abandon(ctx, key, target)
	})
	if dispatchErr != nil {
		return dispatchErr
	}
	return opErr
}

func (s *Store) abandon(ctx context.Context, key keyenc.ChainKey, target keyenc.Version) error {
	txn, err := s.engine.Transaction(ctx, ChainsStore, RecordsStore)
	if err != nil {
		return fmt.Errorf("store: abandon: %w", err)
	}

	stateRaw, hasState, err := txn.Get(ChainsStore, key.Serial)
	if err != nil {
		_ = txn.Rollback()
		return fmt.Errorf("store: abandon: %w", err)
	}
	if !hasState {
		_ = txn.Rollback()
		return &KeyNotFoundError{Key: key}
	}
	state := stateRaw.(ChainState)

	hasCurrent := state.Current != (keyenc.Version{})
	if !hasCurrent {
		_ = txn.Rollback()
		return nil
	}
	if target.IsInitial() {
		_ = txn.Rollback()
		return &InvalidInitialTargetVersionError{Key: key, Target: target}
	}

	if target.Equal(state.Current) {
		state.Current = target.Initial()
		if _, err := s.removeRecord(txn, key, target); err != nil {
			_ = txn.Rollback()
			return err
		}
	} else {
		idx := -1
		for i, v := range state.Outdated {
			if v.Equal(target) {
				idx = i
				break
			}
		}
		if idx == -1 {
			_ = txn.Rollback()
			return nil
		}
		state.Outdated = append(state.Outdated[:idx], state.Outdated[idx+1:]...)
		if _, err := s.removeRecord(txn, key, target); err != nil {
			_ = txn.Rollback()
			return err
		}
		if _, err := s.removeRecord(txn, key, target.Initial()); err != nil {
			_ = txn.Rollback()
			return err
		}
	}

	if err := s.writeState(txn, key, state); err != nil {
		_ = txn.Rollback()
		return err
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("store: abandon: %w", err)
	}
	s.logger.Debug("store: abandoned version",
		log.String("key", key.Serial), log.String("version", target.String()))
	s.observe(func(m *storemetrics.Collector) { m.Abandon() })
	return nil
}

func (s *Store) readChainState(ctx context.Context, key keyenc.ChainKey) (ChainState, bool, error) {
	raw, ok, err := s.engine.Get(ctx, ChainsStore, key.Serial)
	if err != nil {
		return ChainState{}, false, fmt.Errorf("store: read chain state: %w", err)
	}
	if !ok {
		return ChainState{}, false, nil
	}
	return raw.(ChainState), true, nil
}

func (s *Store) readRecord(ctx context.Context, key keyenc.ChainKey, version keyenc.Version) (*Record, error) {
	rk := keyenc.RecordKey{Chain: key, Version: version}
	raw, ok, err := s.engine.Get(ctx, RecordsStore, rk.Serial())
	if err != nil {
		return nil, fmt.Errorf("store: read record: %w", err)
	}
	if !ok {
		return nil, nil
	}
	entry := raw.(Entry)
	return &Record{Version: version, Value: entry.Value, Context: entry.Context}, nil
}

func (s *Store) readEntry(txn kv.Transaction, key keyenc.ChainKey, version keyenc.Version) (Entry, bool, error) {
	rk := keyenc.RecordKey{Chain: key, Version: version}
	raw, ok, err := txn.Get(RecordsStore, rk.Serial())
	if err != nil {
		return Entry{}, false, fmt.Errorf("store: read entry: %w", err)
	}
	if !ok {
		return Entry{}, false, nil
	}
	return raw.(Entry), true, nil
}

func (s *Store) writeState(txn kv.Transaction, key keyenc.ChainKey, state ChainState) error {
	if _, err := txn.Put(ChainsStore, key.Serial, state); err != nil {
		return fmt.Errorf("store: write chain state: %w", err)
	}
	return nil
}

func (s *Store) writeEntry(txn kv.Transaction, key keyenc.ChainKey, version keyenc.Version, entry Entry) error {
	rk := keyenc.RecordKey{Chain: key, Version: version}
	if _, err := txn.Put(RecordsStore, rk.Serial(), entry); err != nil {
		return fmt.Errorf("store: write entry: %w", err)
	}
	return nil
}

func (s *Store) removeRecord(txn kv.Transaction, key keyenc.ChainKey, version keyenc.Version) (bool, error) {
	rk := keyenc.RecordKey{Chain: key, Version: version}
	existed, err := txn.Remove(RecordsStore, rk.Serial())
	if err != nil {
		return false, fmt.Errorf("store: remove record: %w", err)
	}
	return existed, nil
}

func (s *Store) observe(fn func(*storemetrics.Collector)) {
	if s.metrics != nil {
		fn(s.metrics)
	}
}

// randomSub draws a uniformly random sub version in [1, 2^32-1] (spec.md
// §3): mutations only need to be unique within one pending-mutation slot,
// since they are always rebased before leaving the client, so a random
// draw is used instead of a per-chain persisted counter.
func randomSub() uint32 {
	for {
		if v := rand.Uint32(); v != 0 {
			return v
		}
	}
}
