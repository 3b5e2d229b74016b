// sim/actor.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/vmihailenco/msgpack/v5"
)

// ActorID identifies an actor within its domain; ids have the form
// "<tag>#<n>".
type ActorID string

// TypeTag names a registered actor type.
type TypeTag string

// Event describes one transition of one actor's state. Events must be
// immutable values: they are retained in the domain's log and folded again
// whenever a snapshot is restored.
type Event any

// Context is passed to actor factories and receivers.
type Context struct {
	Domain *Domain
	Self   Ref
	// Replaying is set when a factory is invoked to reconstruct an actor
	// from the log rather than to create it.
	Replaying bool
}

// ActorType describes one kind of actor. New builds the initial state
// from the activation payload; it must be a pure function of its
// arguments since it is invoked again when the log is replayed, so it may
// not create actors, dispatch events or schedule work. Reduce folds one
// event into the state and returns the new state; it must not modify its
// argument. Receive is optional and handles messages delivered with Send.
type ActorType[S any] struct {
	Tag     TypeTag
	New     func(c *Context, activation any) (S, error)
	Reduce  func(state S, e Event) S
	Receive func(c *Context, self Handle[S], msg any) error
}

type actorType struct {
	tag     TypeTag
	new     func(c *Context, activation any) (any, error)
	reduce  func(state any, e Event) any
	receive func(c *Context, self Ref, msg any) error
}

// Register adds an actor type to the domain's registry. All types must be
// registered before the first actor is created.
func Register[S any](d *Domain, t ActorType[S]) error {
	if t.Tag == "" || t.New == nil || t.Reduce == nil {
		return fmt.Errorf("%q: %w", t.Tag, ErrInvalidActorType)
	}
	if _, ok := d.types[t.Tag]; ok {
		return fmt.Errorf("%s: %w", t.Tag, ErrDuplicateActorType)
	}

	at := &actorType{
		tag: t.Tag,
		new: func(c *Context, activation any) (any, error) {
			return t.New(c, activation)
		},
		reduce: func(state any, e Event) any {
			return t.Reduce(state.(S), e)
		},
	}
	if t.Receive != nil {
		at.receive = func(c *Context, self Ref, msg any) error {
			return t.Receive(c, Handle[S]{Ref: self}, msg)
		}
	}
	d.types[t.Tag] = at

	d.lg.Debug("registered actor type", slog.String("tag", string(t.Tag)))
	return nil
}

// MustRegister is like Register but panics on error; it is intended for
// startup code where a registration failure is a programming error.
func MustRegister[S any](d *Domain, t ActorType[S]) {
	if err := Register(d, t); err != nil {
		panic(err)
	}
}

// Create allocates a new actor of the given type, invoking its factory
// with the activation payload. The activation is retained in the log, so
// callers must not modify it afterward.
func Create[S any](d *Domain, tag TypeTag, activation any) (Handle[S], error) {
	ref, err := d.create(tag, activation)
	if err != nil {
		return Handle[S]{}, err
	}
	if _, ok := d.actors[ref.id].state.(S); !ok {
		return Handle[S]{}, fmt.Errorf("%s: %w", ref.id, ErrActorTypeMismatch)
	}
	return Handle[S]{Ref: ref}, nil
}

// HandleOf converts an untyped reference into a typed handle, verifying
// that the actor currently exists with state type S.
func HandleOf[S any](r Ref) (Handle[S], error) {
	h := Handle[S]{Ref: r}
	if _, err := h.Resolve(); err != nil {
		return Handle[S]{}, err
	}
	return h, nil
}

///////////////////////////////////////////////////////////////////////////
// Ref

// Ref is an untyped actor handle: a (domain, id) pair that owns nothing.
// Refs remain valid across snapshot restores; whether they resolve depends
// on which actors exist at the current point of the domain's history.
// Refs may only be used on their domain's goroutine.
type Ref struct {
	d  *Domain
	id ActorID
}

func (r Ref) ID() ActorID {
	return r.id
}

func (r Ref) Domain() *Domain {
	return r.d
}

func (r Ref) IsZero() bool {
	return r.d == nil && r.id == ""
}

// Exists reports whether the referenced actor exists at the current point
// in time.
func (r Ref) Exists() bool {
	if r.d == nil {
		return false
	}
	_, ok := r.d.actors[r.id]
	return ok
}

// Tag returns the type tag of the referenced actor.
func (r Ref) Tag() (TypeTag, error) {
	s, err := r.slot()
	if err != nil {
		return "", err
	}
	return s.tag, nil
}

// Send delivers msg synchronously to the actor's Receive function.
func (r Ref) Send(msg any) error {
	if r.d == nil {
		return fmt.Errorf("%s: %w", r.id, ErrActorNotFound)
	}
	return r.d.Send(r, msg)
}

// Dispatch applies e to the referenced actor.
func (r Ref) Dispatch(e Event) error {
	if r.d == nil {
		return fmt.Errorf("%s: %w", r.id, ErrActorNotFound)
	}
	return r.d.Dispatch(r, e)
}

// Destroy removes the referenced actor from the domain.
func (r Ref) Destroy() error {
	if r.d == nil {
		return fmt.Errorf("%s: %w", r.id, ErrActorNotFound)
	}
	return r.d.Destroy(r)
}

func (r Ref) slot() (slot, error) {
	if r.d == nil {
		return slot{}, fmt.Errorf("%s: %w", r.id, ErrActorNotFound)
	}
	s, ok := r.d.actors[r.id]
	if !ok {
		return slot{}, fmt.Errorf("%s: %w", r.id, ErrActorNotFound)
	}
	return s, nil
}

func (r Ref) String() string {
	return string(r.id)
}

func (r Ref) LogValue() slog.Value {
	return slog.StringValue(string(r.id))
}

// EncodeMsgpack encodes only the id so that refs held in actor state can
// be recorded and compared without following the domain pointer.
func (r Ref) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.EncodeString(string(r.id))
}

///////////////////////////////////////////////////////////////////////////
// Handle

// Handle is a typed Ref.
type Handle[S any] struct {
	Ref
}

// Actor is a resolved view of an actor at the current point in time.
type Actor[S any] struct {
	ID    ActorID
	Tag   TypeTag
	State S
}

func (h Handle[S]) Resolve() (Actor[S], error) {
	s, err := h.slot()
	if err != nil {
		return Actor[S]{}, err
	}
	st, ok := s.state.(S)
	if !ok {
		return Actor[S]{}, fmt.Errorf("%s: %w", h.id, ErrActorTypeMismatch)
	}
	return Actor[S]{ID: h.id, Tag: s.tag, State: st}, nil
}

func (h Handle[S]) State() (S, error) {
	a, err := h.Resolve()
	return a.State, err
}

// MustState returns the actor's state and panics if the actor cannot be
// resolved. It is intended for use inside work items, where a failure to
// resolve is a logic error that should stop the domain.
func (h Handle[S]) MustState() S {
	st, err := h.State()
	if err != nil {
		panic(err)
	}
	return st
}

///////////////////////////////////////////////////////////////////////////
// universe

type slot struct {
	tag   TypeTag
	state any
	// created is the log sequence number of the actor's creation; it
	// fixes the iteration order of Actors.
	created uint64
}

// universe maps ids to actor slots. Slots hold immutable states, so a
// shallow copy of the map is a complete copy of the universe.
type universe map[ActorID]slot

func (u universe) sortedIDs(pred func(slot) bool) []ActorID {
	var ids []ActorID
	for id, s := range u {
		if pred == nil || pred(s) {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(a, b ActorID) int {
		sa, sb := u[a].created, u[b].created
		if sa < sb {
			return -1
		} else if sa > sb {
			return 1
		}
		return 0
	})
	return ids
}
