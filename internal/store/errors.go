package store

import (
	"fmt"

	"github.com/angular/tactical/internal/keyenc"
)

// KeyNotFoundError is returned by Commit when the chain has no ChainState
// (or no current version) yet, and by Abandon when the chain has no
// ChainState; Abandon on a chain without a current version is a no-op.
type KeyNotFoundError struct {
	Key keyenc.ChainKey
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("store: key not found: %s", e.Key.Serial)
}

// OutdatedTargetVersionError is returned by Commit when the caller's target
// version no longer matches the chain's current version.
type OutdatedTargetVersionError struct {
	Key      keyenc.ChainKey
	Current  keyenc.Version
	Target   keyenc.Version
	Mutation any
	Context  any
}

func (e *OutdatedTargetVersionError) Error() string {
	return fmt.Sprintf("store: outdated target version for %s: target=%s current=%s",
		e.Key.Serial, e.Target, e.Current)
}

// InvalidInitialTargetVersionError is returned by Abandon when asked to
// abandon an initial (sub == 0) version, which is never a pending or
// outdated mutation.
type InvalidInitialTargetVersionError struct {
	Key    keyenc.ChainKey
	Target keyenc.Version
}

func (e *InvalidInitialTargetVersionError) Error() string {
	return fmt.Sprintf("store: invalid initial target version for %s: %s", e.Key.Serial, e.Target)
}
