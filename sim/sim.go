// sim/sim.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package sim provides the simulation kernel: event-sourced actors hosted
// by scheduling domains, each with its own virtual clock, work queue and
// replayable history.
package sim

import (
	"container/heap"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/felix-b/atc/log"
	"github.com/felix-b/atc/util"

	"github.com/goforj/godump"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultStartTime is the virtual time at which new domains start unless
// WithStartTime is given. It is fixed so that runs are reproducible.
var DefaultStartTime = time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)

// Domain is one scheduling domain: a set of actors, a virtual clock and a
// queue of pending work. Apart from Inject, a Domain's methods must only be
// called from the goroutine running it (or, for manually-driven domains,
// from the single goroutine that steps it).
type Domain struct {
	name string
	lg   *log.Logger

	types  map[TypeTag]*actorType
	actors universe

	head    *logEntry
	seq     uint64 // last log sequence number; never reused
	counter uint64 // actor id counter; part of snapshot state

	now     time.Time
	queue   workQueue
	pending map[uint64]*workItem
	workSeq uint64 // never reused

	// epoch is incremented by Restore so that an in-progress Step stops
	// executing the batch it started with.
	epoch uint64
	// pure is set while factories and reducers run during replay.
	pure bool

	failure *DomainError

	inboxMu   sync.Mutex
	inbox     []func() error
	inboxWake chan struct{}

	restoreHooks []func()

	timeScale     float64
	anchorWall    time.Time
	anchorVirtual time.Time
}

type DomainOption func(*Domain)

func WithLogger(lg *log.Logger) DomainOption {
	return func(d *Domain) { d.lg = lg }
}

func WithStartTime(t time.Time) DomainOption {
	return func(d *Domain) { d.now = t }
}

// WithTimeScale sets how fast virtual time advances relative to wall time
// when the domain is driven by Run. A scale of zero or less runs work as
// fast as possible.
func WithTimeScale(scale float64) DomainOption {
	return func(d *Domain) { d.timeScale = scale }
}

func NewDomain(name string, opts ...DomainOption) *Domain {
	d := &Domain{
		name:      name,
		types:     make(map[TypeTag]*actorType),
		actors:    make(universe),
		now:       DefaultStartTime,
		pending:   make(map[uint64]*workItem),
		inboxWake: make(chan struct{}, 1),
		timeScale: 1,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.lg = d.lg.With(slog.String("domain", name))
	return d
}

func (d *Domain) Name() string {
	return d.name
}

func (d *Domain) Logger() *log.Logger {
	return d.lg
}

// Now returns the domain's current virtual time.
func (d *Domain) Now() time.Time {
	return d.now
}

// Seq returns the sequence number of the most recent log entry on the
// current branch of the domain's history, or zero if there is none.
func (d *Domain) Seq() uint64 {
	if d.head == nil {
		return 0
	}
	return d.head.seq
}

// NextSeq returns the sequence number that the next log entry will be
// given. Sequence numbers increase monotonically across all branches of
// the domain's history.
func (d *Domain) NextSeq() uint64 {
	return d.seq + 1
}

// Err returns the error that stopped the domain, if any.
func (d *Domain) Err() error {
	if d.failure == nil {
		return nil
	}
	return d.failure
}

func (d *Domain) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("name", d.name),
		slog.Time("now", d.now),
		slog.Uint64("seq", d.Seq()),
		slog.Int("actors", len(d.actors)),
		slog.Int("queued", len(d.queue)))
}

///////////////////////////////////////////////////////////////////////////
// Actors

func (d *Domain) create(tag TypeTag, activation any) (Ref, error) {
	if d.pure {
		panic(ErrReplayMutation)
	}

	t, ok := d.types[tag]
	if !ok {
		return Ref{}, fmt.Errorf("%s: %w", tag, ErrUnknownActorType)
	}

	id := ActorID(fmt.Sprintf("%s#%d", tag, d.counter+1))
	ref := Ref{d: d, id: id}

	d.pure = true
	st, err := func() (any, error) {
		defer func() { d.pure = false }()
		return t.new(&Context{Domain: d, Self: ref}, activation)
	}()
	if err != nil {
		return Ref{}, fmt.Errorf("creating %s: %w", tag, err)
	}

	d.counter++
	e := d.append(entryCreated, id, tag, activation)
	d.actors[id] = slot{tag: tag, state: st, created: e.seq}

	d.lg.Debug("created actor", slog.String("id", string(id)))
	return ref, nil
}

// Dispatch applies e to the actor referenced by r using its type's reducer
// and records the event in the domain's log. It is the only way actor
// state changes.
func (d *Domain) Dispatch(r Ref, e Event) error {
	if d.pure {
		panic(ErrReplayMutation)
	}

	s, ok := d.actors[r.id]
	if !ok || r.d != d {
		return fmt.Errorf("%s: %w", r.id, ErrActorNotFound)
	}

	s.state = d.types[s.tag].reduce(s.state, e)
	d.actors[r.id] = s
	d.append(entryApplied, r.id, s.tag, e)

	d.lg.Debug("dispatched", slog.String("id", string(r.id)), slog.String("event", fmt.Sprintf("%T", e)))
	return nil
}

// Destroy removes the actor from the domain.
func (d *Domain) Destroy(r Ref) error {
	if d.pure {
		panic(ErrReplayMutation)
	}

	s, ok := d.actors[r.id]
	if !ok || r.d != d {
		return fmt.Errorf("%s: %w", r.id, ErrActorNotFound)
	}

	delete(d.actors, r.id)
	d.append(entryDestroyed, r.id, s.tag, nil)

	d.lg.Debug("destroyed actor", slog.String("id", string(r.id)))
	return nil
}

// Send synchronously delivers msg to the receiver of the actor referenced
// by r. Actors whose type has no receiver ignore messages.
func (d *Domain) Send(r Ref, msg any) error {
	if d.pure {
		panic(ErrReplayMutation)
	}

	s, ok := d.actors[r.id]
	if !ok || r.d != d {
		return fmt.Errorf("%s: %w", r.id, ErrActorNotFound)
	}

	t := d.types[s.tag]
	if t.receive == nil {
		d.lg.Debug("actor has no receiver", slog.String("id", string(r.id)),
			slog.String("msg", fmt.Sprintf("%T", msg)))
		return nil
	}
	return t.receive(&Context{Domain: d, Self: r}, r, msg)
}

// Ref returns a reference to the actor with the given id; it does not
// check that the actor exists.
func (d *Domain) Ref(id ActorID) Ref {
	return Ref{d: d, id: id}
}

// Actors returns references to all existing actors with the given tag, or
// all actors if tag is empty, in creation order.
func (d *Domain) Actors(tag TypeTag) []Ref {
	ids := d.actors.sortedIDs(func(s slot) bool { return tag == "" || s.tag == tag })
	refs := make([]Ref, len(ids))
	for i, id := range ids {
		refs[i] = Ref{d: d, id: id}
	}
	return refs
}

func (d *Domain) append(kind entryKind, id ActorID, tag TypeTag, payload any) *logEntry {
	d.seq++
	e := &logEntry{
		parent:  d.head,
		seq:     d.seq,
		kind:    kind,
		actor:   id,
		tag:     tag,
		payload: payload,
		at:      d.now,
	}
	d.head = e
	return e
}

///////////////////////////////////////////////////////////////////////////
// Scheduling

func (d *Domain) enqueue(due time.Time, fn func() error) *workItem {
	if d.pure {
		panic(ErrReplayMutation)
	}

	d.workSeq++
	it := &workItem{due: due, seq: d.workSeq, fn: fn}
	heap.Push(&d.queue, it)
	d.pending[it.seq] = it
	return it
}

// DeferNow schedules fn to run on the next step, without advancing the
// clock.
func (d *Domain) DeferNow(fn func() error) {
	d.enqueue(d.now, fn)
}

// DeferBy schedules fn to run no earlier than delay from now.
func (d *Domain) DeferBy(delay time.Duration, fn func() error) {
	d.enqueue(d.now.Add(max(0, delay)), fn)
}

// ScheduleDelay is like DeferBy but returns a handle that can be used to
// cancel the work item before it runs.
func (d *Domain) ScheduleDelay(delay time.Duration, fn func() error) DelayHandle {
	it := d.enqueue(d.now.Add(max(0, delay)), fn)
	return DelayHandle{d: d, id: it.seq}
}

func (d *Domain) cancel(id uint64) {
	if it, ok := d.pending[id]; ok {
		heap.Remove(&d.queue, it.index)
		delete(d.pending, id)
		d.lg.Debug("cancelled work", slog.Uint64("id", id))
	}
}

// NextDue returns the due time of the earliest pending work item.
func (d *Domain) NextDue() (time.Time, bool) {
	if len(d.queue) == 0 {
		return time.Time{}, false
	}
	return d.queue[0].due, true
}

// Inject queues fn to run on the domain's goroutine. It is the only Domain
// method that may be called from other goroutines.
func (d *Domain) Inject(fn func() error) {
	d.inboxMu.Lock()
	d.inbox = append(d.inbox, fn)
	d.inboxMu.Unlock()

	select {
	case d.inboxWake <- struct{}{}:
	default:
	}
}

func (d *Domain) drainInbox() {
	d.inboxMu.Lock()
	fns := d.inbox
	d.inbox = nil
	d.inboxMu.Unlock()

	for _, fn := range fns {
		d.DeferNow(fn)
	}
}

// Step advances the clock to the earliest due work item, if it is in the
// future, and then executes every item due by then that was queued before
// the step began, in (due time, enqueue order). Work queued during the
// step runs on a later step. Step returns false if there was nothing to
// do.
func (d *Domain) Step() (bool, error) {
	if d.failure != nil {
		return false, ErrDomainStopped
	}

	d.drainInbox()
	if len(d.queue) == 0 {
		return false, nil
	}

	if due := d.queue[0].due; due.After(d.now) {
		d.now = due
	}

	limit, epoch := d.workSeq, d.epoch
	for len(d.queue) > 0 && d.epoch == epoch {
		it := d.queue[0]
		if it.due.After(d.now) || it.seq > limit {
			break
		}
		heap.Pop(&d.queue)
		delete(d.pending, it.seq)

		if err := d.execute(it); err != nil {
			d.failure = &DomainError{Domain: d.name, At: d.now, Err: err}
			d.lg.Error("domain stopped", slog.Any("error", err), slog.Time("at", d.now))
			return true, d.failure
		}
	}
	return true, nil
}

func (d *Domain) execute(it *workItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.lg.ReportCrash(r)
			err = fmt.Errorf("%w: %v", ErrWorkPanicked, r)
		}
	}()

	return it.fn()
}

// RunUntil executes all work due up to and including t and then advances
// the clock to t.
func (d *Domain) RunUntil(t time.Time) error {
	for {
		if d.failure != nil {
			return ErrDomainStopped
		}
		d.drainInbox()

		next, ok := d.NextDue()
		if !ok || next.After(t) {
			break
		}
		if _, err := d.Step(); err != nil {
			return err
		}
	}

	if t.After(d.now) {
		d.now = t
	}
	return nil
}

// RunFor is RunUntil(Now() + delay).
func (d *Domain) RunFor(delay time.Duration) error {
	return d.RunUntil(d.now.Add(delay))
}

// Drain steps the domain until its queue is empty or limit steps have
// run, whichever comes first; it returns the number of steps taken.
func (d *Domain) Drain(limit int) (int, error) {
	n := 0
	for ; n < limit; n++ {
		ran, err := d.Step()
		if err != nil {
			return n, err
		} else if !ran {
			break
		}
	}
	return n, nil
}

// Run drives the domain in real time, mapping wall-clock time to virtual
// time through the domain's time scale, until ctx is cancelled or a work
// item fails. Cancellation is a normal shutdown and returns nil; a failure
// returns a *DomainError.
func (d *Domain) Run(ctx context.Context) error {
	if d.failure != nil {
		return ErrDomainStopped
	}

	ctx, span := otel.Tracer("github.com/felix-b/atc/sim").Start(ctx, "Domain.Run",
		trace.WithAttributes(attribute.String("domain", d.name)))
	defer span.End()

	d.lg.Info("domain running", slog.Float64("time_scale", d.timeScale), slog.Time("now", d.now))

	d.anchor()
	epoch := d.epoch

	for {
		if ctx.Err() != nil {
			d.lg.Info("domain cancelled", slog.Time("now", d.now))
			return nil
		}

		d.drainInbox()

		next, ok := d.NextDue()
		vnow := d.virtualNow()
		if ok && (d.timeScale <= 0 || !next.After(vnow)) {
			if _, err := d.Step(); err != nil {
				span.RecordError(err)
				return err
			}
			if d.epoch != epoch {
				// A restore moved the clock; start measuring from there.
				d.anchor()
				epoch = d.epoch
			}
			continue
		}

		if vnow.After(d.now) {
			d.now = vnow
		}

		var timer *time.Timer
		var timeout <-chan time.Time
		if ok {
			wait := time.Duration(float64(next.Sub(vnow)) / d.timeScale)
			timer = time.NewTimer(wait)
			timeout = timer.C
		}

		select {
		case <-ctx.Done():
		case <-d.inboxWake:
		case <-timeout:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (d *Domain) anchor() {
	d.anchorWall = time.Now()
	d.anchorVirtual = d.now
}

func (d *Domain) virtualNow() time.Time {
	if d.timeScale <= 0 {
		return d.now
	}
	elapsed := time.Duration(float64(time.Since(d.anchorWall)) * d.timeScale)
	return d.anchorVirtual.Add(elapsed)
}

///////////////////////////////////////////////////////////////////////////
// Debugging

// Dump writes a human-readable rendering of every actor's state to w.
// States are passed through their msgpack encoding first so that handles
// print as ids.
func (d *Domain) Dump(w io.Writer) error {
	type dumped struct {
		ID    ActorID
		Tag   TypeTag
		State any
	}

	var all []dumped
	for _, id := range d.actors.sortedIDs(nil) {
		s := d.actors[id]
		b, err := util.EncodeMsgpack(s.state)
		if err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		var generic any
		if err := msgpack.Unmarshal(b, &generic); err != nil {
			return fmt.Errorf("%s: %w", id, err)
		}
		all = append(all, dumped{ID: id, Tag: s.tag, State: generic})
	}

	godump.Fdump(w, all)
	return nil
}
