// sim/history.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"bytes"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/felix-b/atc/util"
)

type entryKind uint8

const (
	entryCreated entryKind = iota + 1
	entryApplied
	entryDestroyed
)

func (k entryKind) String() string {
	switch k {
	case entryCreated:
		return "created"
	case entryApplied:
		return "applied"
	case entryDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// logEntry is one node of the domain's history. Entries are linked to
// their parent, so the history is a tree: restoring an older snapshot and
// then dispatching grows a new branch while the entries of other branches
// stay reachable from the snapshots that reference them.
type logEntry struct {
	parent  *logEntry
	seq     uint64
	kind    entryKind
	actor   ActorID
	tag     TypeTag
	payload any // activation for created entries, the event for applied ones
	at      time.Time

	// checkpoint, if non-nil, is the universe after this entry has been
	// applied.
	checkpoint universe
}

func (e *logEntry) LogValue() slog.Value {
	if e == nil {
		return slog.StringValue("root")
	}
	return slog.GroupValue(
		slog.Uint64("seq", e.seq),
		slog.String("kind", e.kind.String()),
		slog.String("actor", string(e.actor)),
		slog.String("payload", fmt.Sprintf("%T", e.payload)))
}

// path returns the entries from the root to e, oldest first, stopping
// early (exclusive) at the first ancestor with a checkpoint when
// useCheckpoints is set. The returned base is that ancestor, or nil.
func (e *logEntry) path(useCheckpoints bool) (base *logEntry, entries []*logEntry) {
	for ; e != nil; e = e.parent {
		if useCheckpoints && e.checkpoint != nil {
			base = e
			break
		}
		entries = append(entries, e)
	}
	slices.Reverse(entries)
	return base, entries
}

// materialize reconstructs the universe as of pos by folding the log
// forward from the nearest checkpointed ancestor.
func (d *Domain) materialize(pos *logEntry, useCheckpoints bool) (universe, error) {
	base, entries := pos.path(useCheckpoints)

	u := make(universe)
	if base != nil {
		u = maps.Clone(base.checkpoint)
	}

	d.lg.Debug("materializing", slog.Any("pos", pos), slog.Any("base", base),
		slog.Int("entries", len(entries)))

	for _, e := range entries {
		if err := d.fold(u, e); err != nil {
			return nil, err
		}
	}
	return u, nil
}

// fold applies a single log entry to u.
func (d *Domain) fold(u universe, e *logEntry) (err error) {
	t, ok := d.types[e.tag]
	if !ok {
		return fmt.Errorf("%s: %w", e.tag, ErrUnknownActorType)
	}

	d.pure = true
	defer func() {
		d.pure = false
		if r := recover(); r != nil {
			err = fmt.Errorf("replaying entry %d for %s: %v", e.seq, e.actor, r)
		}
	}()

	switch e.kind {
	case entryCreated:
		c := &Context{Domain: d, Self: Ref{d: d, id: e.actor}, Replaying: true}
		st, err := t.new(c, e.payload)
		if err != nil {
			return fmt.Errorf("replaying creation of %s: %w", e.actor, err)
		}
		u[e.actor] = slot{tag: e.tag, state: st, created: e.seq}

	case entryApplied:
		s, ok := u[e.actor]
		if !ok {
			return fmt.Errorf("replaying entry %d: %s: %w", e.seq, e.actor, ErrActorNotFound)
		}
		s.state = t.reduce(s.state, e.payload)
		u[e.actor] = s

	case entryDestroyed:
		delete(u, e.actor)
	}
	return nil
}

// Verify recomputes the whole universe by replaying the log from the root
// and checks that every actor's state matches the live state. States are
// compared by their msgpack encodings.
func (d *Domain) Verify() error {
	u, err := d.materialize(d.head, false)
	if err != nil {
		return err
	}

	if len(u) != len(d.actors) {
		return fmt.Errorf("replay has %d actors, live has %d: %w", len(u), len(d.actors),
			ErrReplayDiverged)
	}

	for _, id := range d.actors.sortedIDs(nil) {
		live := d.actors[id]
		replayed, ok := u[id]
		if !ok || replayed.tag != live.tag {
			return fmt.Errorf("%s: %w", id, ErrReplayDiverged)
		}

		lb, err := util.EncodeMsgpack(live.state)
		if err != nil {
			return fmt.Errorf("%s: encoding live state: %w", id, err)
		}
		rb, err := util.EncodeMsgpack(replayed.state)
		if err != nil {
			return fmt.Errorf("%s: encoding replayed state: %w", id, err)
		}
		if !bytes.Equal(lb, rb) {
			d.lg.Warn("replay diverged", slog.String("actor", string(id)),
				slog.Any("live", live.state), slog.Any("replayed", replayed.state))
			return fmt.Errorf("%s: %w", id, ErrReplayDiverged)
		}
	}
	return nil
}
