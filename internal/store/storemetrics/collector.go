// Package storemetrics counts store operations for observability. It plays
// the role the retrieval pack's event bus gives EventBusObserver/
// EventBusMetrics: a best-effort counter snapshot, cheap enough to update
// unconditionally on the store's single dispatch goroutine.
package storemetrics

import "sync/atomic"

// Collector accumulates counts of store operations. The zero value is
// ready to use; a nil *Collector is never dereferenced by the store
// (metrics are only recorded when one is attached via store.WithMetrics).
type Collector struct {
	pushCreated     atomic.Uint64
	push            atomic.Uint64
	commit          atomic.Uint64
	abandon         atomic.Uint64
	outdatedEmitted atomic.Uint64
}

// Snapshot is a point-in-time copy of accumulated counters.
type Snapshot struct {
	PushesCreated   uint64
	Pushes          uint64
	Commits         uint64
	Abandons        uint64
	OutdatedEmitted uint64
}

func (c *Collector) PushCreated()     { c.pushCreated.Add(1) }
func (c *Collector) Push()            { c.push.Add(1) }
func (c *Collector) Commit()          { c.commit.Add(1) }
func (c *Collector) Abandon()         { c.abandon.Add(1) }
func (c *Collector) OutdatedEmitted() { c.outdatedEmitted.Add(1) }

// Snapshot returns a copy of the current counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		PushesCreated:   c.pushCreated.Load(),
		Pushes:          c.push.Load(),
		Commits:         c.commit.Load(),
		Abandons:        c.abandon.Load(),
		OutdatedEmitted: c.outdatedEmitted.Load(),
	}
}
