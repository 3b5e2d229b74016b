// sim/snapshot.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"log/slog"
	"maps"
	"time"
)

// Snapshot is an opaque token for a point in a domain's history. It
// records a position in the log together with the clock, the actor id
// counter and the pending work at that point.
type Snapshot struct {
	d       *Domain
	pos     *logEntry
	now     time.Time
	counter uint64
	queue   []workItem
}

func (s Snapshot) IsZero() bool {
	return s.d == nil
}

// Seq returns the sequence number of the log entry the snapshot refers
// to, or zero for the empty history.
func (s Snapshot) Seq() uint64 {
	if s.pos == nil {
		return 0
	}
	return s.pos.seq
}

func (s Snapshot) Time() time.Time {
	return s.now
}

func (s Snapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Uint64("seq", s.Seq()),
		slog.Time("time", s.now),
		slog.Int("queued", len(s.queue)))
}

// TakeSnapshot captures the domain's current point in time. It may be
// called between work items, or from within a work item, in which case the
// snapshot excludes the rest of that item's effects.
func (d *Domain) TakeSnapshot() Snapshot {
	if d.head != nil && d.head.checkpoint == nil {
		d.head.checkpoint = maps.Clone(d.actors)
	}

	s := Snapshot{
		d:       d,
		pos:     d.head,
		now:     d.now,
		counter: d.counter,
		queue:   d.queue.capture(),
	}
	d.lg.Debug("took snapshot", slog.Any("snapshot", s))
	return s
}

// Restore returns the domain to the point in time captured by s: actor
// states, which actors exist, the clock, the id counter and the pending
// work are all as they were when s was taken. Snapshots may be restored
// any number of times in any order; dispatching after restoring an older
// snapshot starts a new branch of the history without affecting other
// snapshots.
func (d *Domain) Restore(s Snapshot) error {
	if s.d != d {
		return ErrSnapshotForeign
	}
	if d.failure != nil {
		return ErrDomainStopped
	}

	u, err := d.materialize(s.pos, true)
	if err != nil {
		return fmt.Errorf("restoring snapshot %d: %w", s.Seq(), err)
	}

	d.actors = u
	d.head = s.pos
	d.now = s.now
	d.counter = s.counter
	d.queue, d.pending = rebuildQueue(s.queue)
	d.epoch++

	d.lg.Debug("restored snapshot", slog.Any("snapshot", s))

	for _, h := range d.restoreHooks {
		h()
	}
	return nil
}

// OnRestore registers a function to be called after every Restore, for
// components that cache values derived from actor state.
func (d *Domain) OnRestore(fn func()) {
	d.restoreHooks = append(d.restoreHooks, fn)
}
