package datamanager

import (
	"context"

	"github.com/angular/tactical/internal/keyenc"
	"github.com/angular/tactical/internal/store"
)

// Updater is a handle on one observed record, offered through BeginUpdate.
// Commit layers a new value on top of Version via the store; the empty
// commit context matches the contract in spec.md §4.3 ("Updater.commit()
// invokes Store.commit(key, version, value, context={})").
type Updater struct {
	store *store.Store

	Key     keyenc.ChainKey
	Version keyenc.Version
	Value   any
}

// Commit submits u.Value (which the application may have modified since
// observing u) as a new local mutation layered on u.Version. On success,
// the resulting PendingMutation is forwarded to the backend by the Manager
// that produced u.
func (u *Updater) Commit(ctx context.Context) error {
	return u.store.Commit(ctx, u.Key, u.Version, u.Value, map[string]any{})
}
