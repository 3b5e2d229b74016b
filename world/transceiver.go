// world/transceiver.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package world

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/conversation"
	"github.com/felix-b/atc/radio"
	"github.com/felix-b/atc/rand"
	"github.com/felix-b/atc/sim"
	"github.com/felix-b/atc/speech"
	"github.com/felix-b/atc/util"
)

// AgentState is the part of a pilot's or controller's state that deals
// with talking: the radio, the conversation machine and the transmission
// that is waiting for the frequency or on the air.
type AgentState struct {
	Callsign aviation.Callsign
	Role     speech.Role
	Voice    speech.Voice
	Rate     float32
	Station  radio.Station
	Machine  conversation.Machine

	// Outbox waits for the frequency to go quiet; OnAir is being
	// transmitted.
	Outbox *Transmission
	OnAir  *Transmission
	// Keying is the pending reaction delay before Outbox goes on the air
	// and Completion the end of OnAir.
	Keying     sim.DelayHandle
	Completion sim.DelayHandle
	// Draws counts the random draws made so far, so that each one gets a
	// fresh, reproducible generator.
	Draws uint64
}

type Transmission struct {
	Message   aviation.Message
	Utterance speech.Utterance
	// Reaction is the delay between the frequency going quiet and the
	// speaker keying the microphone.
	Reaction time.Duration
}

func (a AgentState) Speaker() speech.Speaker {
	return speech.Speaker{Callsign: a.Callsign, Role: a.Role, Voice: a.Voice, Rate: a.Rate}
}

func (a AgentState) rand(seed uint64) rand.Rand {
	return rand.New(seed ^ util.HashString64(string(a.Callsign)) + a.Draws*0x9e3779b97f4a7c15)
}

///////////////////////////////////////////////////////////////////////////
// Events

// agentEvent is implemented by the events that change an AgentState, so
// that the pilot and controller reducers can share them.
type agentEvent interface {
	apply(a AgentState) AgentState
}

type machineSet struct {
	Machine conversation.Machine
}

type outboxSet struct {
	Outbox *Transmission
}

type keyingArmed struct {
	Handle sim.DelayHandle
}

type keyed struct{}

type completionArmed struct {
	Handle sim.DelayHandle
}

type transmissionEnded struct{}

func (e machineSet) apply(a AgentState) AgentState {
	a.Machine = e.Machine
	return a
}

func (e outboxSet) apply(a AgentState) AgentState {
	a.Outbox = e.Outbox
	a.Draws++
	return a
}

func (e keyingArmed) apply(a AgentState) AgentState {
	a.Keying = e.Handle
	return a
}

func (keyed) apply(a AgentState) AgentState {
	a.OnAir, a.Outbox = a.Outbox, nil
	a.Keying = sim.DelayHandle{}
	return a
}

func (e completionArmed) apply(a AgentState) AgentState {
	a.Completion = e.Handle
	return a
}

func (transmissionEnded) apply(a AgentState) AgentState {
	a.OnAir = nil
	a.Completion = sim.DelayHandle{}
	return a
}

///////////////////////////////////////////////////////////////////////////
// transceiver

// transceiver connects an actor's conversation machine to its radio
// station; it is the machine's conversation.Host. It holds no state of its
// own, so one can be made whenever it is needed, including in work items
// that run after a snapshot has been restored.
//
// Listener notifications arrive while the medium is in the middle of an
// operation, so every call into the medium or the machine that results
// from one is deferred.
type transceiver[S any] struct {
	w     *World
	self  sim.Handle[S]
	agent func(S) AgentState
}

func (t transceiver[S]) context() *conversation.Context {
	return &conversation.Context{Domain: t.w.d, Self: t.self.Ref, Host: t}
}

func (t transceiver[S]) state() (AgentState, error) {
	s, err := t.self.State()
	if err != nil {
		return AgentState{}, err
	}
	return t.agent(s), nil
}

func (t transceiver[S]) Machine() (conversation.Machine, error) {
	a, err := t.state()
	return a.Machine, err
}

func (t transceiver[S]) SetMachine(m conversation.Machine) error {
	return t.self.Dispatch(machineSet{Machine: m})
}

// Tune retunes the station unless it is already on f; retuning aborts
// whatever the station is hearing.
func (t transceiver[S]) Tune(f aviation.Frequency) error {
	a, err := t.state()
	if err != nil {
		return err
	}
	st, err := a.Station.State()
	if err != nil {
		return err
	}
	if st.Frequency == f {
		return nil
	}
	t.later(func() error { return t.w.medium.Tune(a.Station, f) })
	return nil
}

// Transmit puts msg in the outbox, replacing anything that has not yet
// gone on the air.
func (t transceiver[S]) Transmit(msg aviation.Message) error {
	a, err := t.state()
	if err != nil {
		return err
	}

	r := a.rand(t.w.seed)
	u, err := t.w.verbalizer.Verbalize(&r, a.Speaker(), msg)
	if err != nil {
		return err
	}
	tx := &Transmission{
		Message:   msg,
		Utterance: u,
		Reaction:  r.DurationBetween(t.w.reaction[0], t.w.reaction[1]),
	}
	if err := t.self.Dispatch(outboxSet{Outbox: tx}); err != nil {
		return err
	}

	t.later(t.pump)
	return nil
}

// pump arms the reaction delay if there is something to say and the
// frequency is quiet. Otherwise it does nothing: it runs again whenever
// the station returns to silence.
func (t transceiver[S]) pump() error {
	a, err := t.state()
	if errors.Is(err, sim.ErrActorNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if a.Outbox == nil || a.OnAir != nil || a.Keying.Pending() {
		return nil
	}

	st, err := a.Station.State()
	if err != nil {
		return err
	}
	if st.Status != radio.StatusSilence {
		return nil
	}

	h := t.w.d.ScheduleDelay(a.Outbox.Reaction, t.key)
	return t.self.Dispatch(keyingArmed{Handle: h})
}

// key starts the transmission if the frequency is still quiet; someone
// else may have started talking during the reaction delay.
func (t transceiver[S]) key() error {
	a, err := t.state()
	if errors.Is(err, sim.ErrActorNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if a.Outbox == nil || a.OnAir != nil {
		return t.self.Dispatch(keyingArmed{})
	}

	st, err := a.Station.State()
	if err != nil {
		return err
	}
	if st.Status != radio.StatusSilence {
		t.w.lg.Debug("frequency taken", slog.String("callsign", string(a.Callsign)),
			slog.String("status", st.Status.String()))
		return t.self.Dispatch(keyingArmed{})
	}

	tx := a.Outbox
	if err := t.self.Dispatch(keyed{}); err != nil {
		return err
	}
	if err := t.w.medium.BeginTransmission(a.Station); err != nil {
		return fmt.Errorf("%s: %w", a.Callsign, err)
	}

	h := t.w.d.ScheduleDelay(tx.Utterance.Duration, t.complete)
	if err := t.self.Dispatch(completionArmed{Handle: h}); err != nil {
		return err
	}

	t.w.lg.Info("transmitting", slog.String("callsign", string(a.Callsign)),
		slog.String("frequency", st.Frequency.String()), slog.String("text", tx.Utterance.Text))
	t.w.post(Event{
		Kind:      EventTransmission,
		Actor:     t.self.ID(),
		Callsign:  a.Callsign,
		Position:  st.Location,
		Altitude:  st.Altitude,
		Frequency: st.Frequency,
		Message:   aviation.TypeOf(tx.Message),
		Text:      tx.Utterance.Text,
	})
	t.synthesize(a, st, tx)
	return nil
}

func (t transceiver[S]) complete() error {
	a, err := t.state()
	if errors.Is(err, sim.ErrActorNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if a.OnAir == nil {
		return nil
	}
	return t.w.medium.CompleteTransmission(a.Station, a.OnAir.Message)
}

// synthesize requests audio for the transmission. The audio goes straight
// to the event stream and never into the domain, whose history must not
// depend on how long synthesis takes.
func (t transceiver[S]) synthesize(a AgentState, st radio.StationState, tx *Transmission) {
	if t.w.synth == nil {
		return
	}
	e := Event{
		Kind:      EventAudio,
		Actor:     t.self.ID(),
		Callsign:  a.Callsign,
		Position:  st.Location,
		Altitude:  st.Altitude,
		Frequency: st.Frequency,
		Message:   aviation.TypeOf(tx.Message),
		Text:      tx.Utterance.Text,
		Time:      t.w.d.Now(),
	}
	t.w.synth.Request(t.w.ctx, tx.Utterance, func(audio []byte, err error) {
		e.Audio, e.Err = audio, err
		t.w.events.Post(e)
	})
}

// handle processes the radio notifications that concern the transceiver
// itself. Messages the station received are returned for the owner to
// decide what to do with.
func (t transceiver[S]) handle(msg any) (aviation.Message, bool, error) {
	switch n := msg.(type) {
	case radio.StatusChanged:
		a, err := t.state()
		if err != nil {
			return nil, false, err
		}
		if n.Station != a.Station.ID() {
			return nil, false, nil
		}

		if n.Old == radio.StatusTransmitting {
			a.Completion.Cancel()
			if err := t.self.Dispatch(transmissionEnded{}); err != nil {
				return nil, false, err
			}
			t.fire(conversation.TriggerTransmissionFinished)
		}
		if n.New == radio.StatusTransmitting {
			t.fire(conversation.TriggerTransmissionStarted)
		}
		if n.New == radio.StatusSilence {
			t.later(t.pump)
		}
		return nil, false, nil

	case radio.MessageReceived:
		if n.Message == nil || n.Message.MessageHeader().From == t.self.ID() {
			return nil, false, nil
		}
		return n.Message, true, nil

	default:
		return nil, false, fmt.Errorf("%s: unexpected message %T", t.self.ID(), msg)
	}
}

// later runs fn as a separate work item, provided the actor still exists
// by then.
func (t transceiver[S]) later(fn func() error) {
	t.w.d.DeferNow(func() error {
		if !t.self.Exists() {
			return nil
		}
		return fn()
	})
}

func (t transceiver[S]) fire(trigger conversation.Trigger) {
	t.later(func() error { return conversation.Fire(t.context(), trigger) })
}

func (t transceiver[S]) receive(msg aviation.Message) {
	t.later(func() error { return conversation.Receive(t.context(), msg) })
}
