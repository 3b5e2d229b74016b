// world/world.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package world populates a domain with pilots and controllers that talk
// to one another over the radio medium. Each of them is an actor that owns
// a radio station and a conversation machine; the machine scripts what
// they say and the medium decides who hears it.
package world

import (
	"context"
	"log/slog"
	"time"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/log"
	"github.com/felix-b/atc/math"
	"github.com/felix-b/atc/radio"
	"github.com/felix-b/atc/refdata"
	"github.com/felix-b/atc/sim"
	"github.com/felix-b/atc/speech"
	"github.com/felix-b/atc/util"
)

const (
	// DefaultReplyTimeout is how long a pilot waits for an answer before
	// calling again.
	DefaultReplyTimeout = 45 * time.Second

	DefaultMinReaction = 500 * time.Millisecond
	DefaultMaxReaction = 2 * time.Second
)

// World is the population of one domain. All of its methods must be
// called on the domain's goroutine, except Events and Close.
type World struct {
	d          *sim.Domain
	lg         *log.Logger
	medium     *radio.Medium
	refdata    refdata.Provider
	verbalizer *speech.Verbalizer
	synth      *speech.RetryingSynthesizer
	events     *sim.EventStream[Event]

	ctx    context.Context
	cancel context.CancelFunc

	seed         uint64
	reaction     [2]time.Duration
	replyTimeout time.Duration
	mediumOpts   []radio.MediumOption
}

type Option func(*World)

// WithSeed sets the seed that, combined with each speaker's callsign,
// determines reaction times and phrasing.
func WithSeed(seed uint64) Option {
	return func(w *World) { w.seed = seed }
}

// WithReactionTime sets the range of the delay between the frequency going
// quiet and a speaker keying the microphone.
func WithReactionTime(lo, hi time.Duration) Option {
	return func(w *World) { w.reaction = [2]time.Duration{lo, hi} }
}

func WithReplyTimeout(d time.Duration) Option {
	return func(w *World) { w.replyTimeout = d }
}

func WithVerbalizer(v *speech.Verbalizer) Option {
	return func(w *World) { w.verbalizer = v }
}

// WithSynthesizer has every transmission synthesized when it goes on the
// air; the audio is posted to the event stream once it is ready.
func WithSynthesizer(s *speech.RetryingSynthesizer) Option {
	return func(w *World) { w.synth = s }
}

func WithMediumOptions(opts ...radio.MediumOption) Option {
	return func(w *World) { w.mediumOpts = append(w.mediumOpts, opts...) }
}

// New registers the pilot and controller actor types with d and returns
// its world. Airports are looked up in p.
func New(d *sim.Domain, p refdata.Provider, opts ...Option) (*World, error) {
	w := &World{
		d:            d,
		lg:           d.Logger(),
		refdata:      p,
		seed:         1,
		reaction:     [2]time.Duration{DefaultMinReaction, DefaultMaxReaction},
		replyTimeout: DefaultReplyTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.verbalizer == nil {
		w.verbalizer = speech.NewVerbalizer(speech.WithVerbalizerLogger(w.lg))
	}

	var err error
	if w.medium, err = radio.NewMedium(d, w.mediumOpts...); err != nil {
		return nil, err
	}
	if err := sim.Register(d, w.pilotType()); err != nil {
		return nil, err
	}
	if err := sim.Register(d, w.controllerType()); err != nil {
		return nil, err
	}

	w.events = sim.NewEventStream[Event](w.lg)
	w.ctx, w.cancel = context.WithCancel(context.Background())
	return w, nil
}

func (w *World) Domain() *sim.Domain { return w.d }

func (w *World) Medium() *radio.Medium { return w.medium }

// Events returns the stream of observations; it may be subscribed to from
// any goroutine.
func (w *World) Events() *sim.EventStream[Event] { return w.events }

// Close cancels outstanding speech synthesis and stops the event stream.
func (w *World) Close() {
	w.cancel()
	if w.synth != nil {
		w.synth.Wait()
	}
	w.events.Destroy()
}

func (w *World) Pilots() []Pilot {
	return util.MapSlice(w.d.Actors(PilotTag), func(r sim.Ref) Pilot { return Pilot{Ref: r} })
}

func (w *World) Controllers() []Controller {
	return util.MapSlice(w.d.Actors(ControllerTag), func(r sim.Ref) Controller { return Controller{Ref: r} })
}

///////////////////////////////////////////////////////////////////////////
// Events

type EventKind uint8

const (
	// EventMoved is posted when an aircraft changes phase or position.
	EventMoved EventKind = iota
	// EventTransmission is posted when a station goes on the air.
	EventTransmission
	// EventAudio carries the synthesized audio of a transmission, or the
	// error that prevented it.
	EventAudio
)

func (k EventKind) String() string {
	switch k {
	case EventMoved:
		return "Moved"
	case EventTransmission:
		return "Transmission"
	case EventAudio:
		return "Audio"
	default:
		return "Unknown"
	}
}

// Event is an observation of the world for code outside the domain.
type Event struct {
	Kind     EventKind
	Time     time.Time
	Actor    sim.ActorID
	Callsign aviation.Callsign
	Position math.Point2LL
	Altitude float32

	// Set for EventMoved.
	Phase Phase

	// Set for EventTransmission and EventAudio.
	Frequency aviation.Frequency
	Message   aviation.MessageType
	Text      string
	Audio     []byte
	Err       error
}

func (e Event) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", e.Kind.String()),
		slog.Time("time", e.Time),
		slog.String("callsign", string(e.Callsign)),
		slog.String("text", e.Text))
}

func (w *World) post(e Event) {
	e.Time = w.d.Now()
	w.events.Post(e)
}
