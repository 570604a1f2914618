// Package datamanager implements the thin reactive fan-out joining a
// version chain store with a backend channel, exposing per-key streams and
// update handles to the application (spec.md §4.3). Its map-of-named-
// resources-guarded-by-a-mutex shape is grounded on the teacher's
// internal/core/sync/manager package.
package datamanager

import (
	"context"
	"sync"

	"github.com/angular/tactical/internal/backend"
	"github.com/angular/tactical/internal/eventstream"
	"github.com/angular/tactical/internal/keyenc"
	"github.com/angular/tactical/internal/log"
	"github.com/angular/tactical/internal/store"
)

// Manager is the per-key fan-out sitting between one Store and one
// backend.Channel.
type Manager struct {
	store   *store.Store
	channel backend.Channel
	logger  log.Log

	mu     sync.Mutex
	perKey map[string]*keyState

	failures   *eventstream.Stream[backend.FailureFrame]
	pendingSub eventstream.Subscription

	cancel context.CancelFunc
	done   chan struct{}
}

type keyState struct {
	key    keyenc.ChainKey
	stream *eventstream.ReplayStream[store.Record]
}

// New creates a Manager over s and ch and starts its backend-ingress loop.
// The loop runs until ctx is canceled or Close is called.
func New(ctx context.Context, s *store.Store, ch backend.Channel, logger log.Log) *Manager {
	if logger == nil {
		logger = log.New(log.LevelSilent)
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m := &Manager{
		store:    s,
		channel:  ch,
		logger:   logger.With(log.String("component", "datamanager")),
		perKey:   make(map[string]*keyState),
		failures: eventstream.New[backend.FailureFrame](),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	m.pendingSub = s.Pending().Subscribe(m.onPending)
	go m.ingressLoop(loopCtx)
	return m
}

// Close stops the backend-ingress loop and unsubscribes from the store's
// pending stream. It does not close the underlying store or channel.
func (m *Manager) Close() error {
	m.pendingSub.Cancel()
	m.cancel()
	<-m.done
	return nil
}

// Failures is the stream of inbound FailureFrames the application should
// subscribe to in order to learn when a submitted mutation was rejected.
func (m *Manager) Failures() *eventstream.Stream[backend.FailureFrame] {
	return m.failures
}

// Request ensures a per-key stream exists for structuredKey, issuing a
// backend request and a Store.Fetch on first use, and subscribes onValue to
// every record observed for that key from then on (replayed once
// synchronously if a record is already known).
func (m *Manager) Request(ctx context.Context, structuredKey any, onValue func(value any)) (eventstream.Subscription, error) {
	state, err := m.ensureKeyState(ctx, structuredKey)
	if err != nil {
		return nil, err
	}
	return state.stream.Subscribe(func(rec store.Record) {
		onValue(rec.Value)
	}), nil
}

// BeginUpdate ensures a per-key stream exists for structuredKey and
// subscribes onUpdate to every record observed for that key, each wrapped
// in an Updater carrying the version it was fetched at.
func (m *Manager) BeginUpdate(ctx context.Context, structuredKey any, onUpdate func(*Updater)) (eventstream.Subscription, error) {
	state, err := m.ensureKeyState(ctx, structuredKey)
	if err != nil {
		return nil, err
	}
	return state.stream.Subscribe(func(rec store.Record) {
		onUpdate(&Updater{
			store:   m.store,
			Key:     state.key,
			Version: rec.Version,
			Value:   rec.Value,
		})
	}), nil
}

func (m *Manager) ensureKeyState(ctx context.Context, structuredKey any) (*keyState, error) {
	key, err := keyenc.NewChainKey(structuredKey)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if st, ok := m.perKey[key.Serial]; ok {
		m.mu.Unlock()
		return st, nil
	}
	serial := key.Serial
	st := &keyState{key: key}
	st.stream = eventstream.NewReplay[store.Record](func() {
		m.mu.Lock()
		delete(m.perKey, serial)
		m.mu.Unlock()
	})
	m.perKey[serial] = st
	m.mu.Unlock()

	if err := m.channel.Request(structuredKey); err != nil {
		m.logger.Warn("backend request failed", log.String("key", serial), log.Error(err))
	}

	rec, err := m.store.Fetch(ctx, key, nil)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		st.stream.Emit(*rec)
	}
	return st, nil
}

// onPending forwards every locally-committed mutation to the backend as a
// mutate frame.
func (m *Manager) onPending(ev store.PendingMutation) {
	err := m.channel.Mutate(ev.Key.Structured, ev.Mutation.Version.Base, ev.Mutation.Value, ev.Mutation.Context)
	if err != nil {
		m.logger.Warn("backend mutate failed", log.String("key", ev.Key.Serial), log.Error(err))
	}
}

func (m *Manager) ingressLoop(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case frame, ok := <-m.channel.Data():
			if !ok {
				return
			}
			m.handleData(ctx, frame)
		case frame, ok := <-m.channel.Failed():
			if !ok {
				return
			}
			m.failures.Emit(frame)
		case <-ctx.Done():
			return
		}
	}
}

// handleData applies an inbound data frame to the store and, if a per-key
// stream exists for it, pushes the resulting record onto that stream.
//
// When the frame carries a MutationContext, it answers a previously
// submitted mutation. At most one mutation can be pending per chain (the
// store's invariant), so the chain's current version — if it is a pending
// mutation — is exactly the one this push resolves.
func (m *Manager) handleData(ctx context.Context, frame backend.DataFrame) {
	key, err := keyenc.NewChainKey(frame.Key)
	if err != nil {
		m.logger.Error("inbound data frame has unencodable key", log.Error(err))
		return
	}

	var resolves *keyenc.Version
	if frame.MutationContext != nil {
		if current, ferr := m.store.Fetch(ctx, key, nil); ferr == nil && current != nil && current.Version.Sub != 0 {
			v := current.Version
			resolves = &v
		}
	}

	if err := m.store.Push(ctx, key, frame.Version, frame.Data, resolves); err != nil {
		m.logger.Error("push from inbound data frame failed", log.String("key", key.Serial), log.Error(err))
		return
	}

	m.mu.Lock()
	st, ok := m.perKey[key.Serial]
	m.mu.Unlock()
	if !ok {
		return
	}

	rec, err := m.store.Fetch(ctx, key, nil)
	if err != nil || rec == nil {
		return
	}
	st.stream.Emit(*rec)
}
