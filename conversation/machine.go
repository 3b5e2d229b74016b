// conversation/machine.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package conversation implements the hierarchical state machines that
// script radio conversations. A Machine is an immutable value: feeding it
// a stimulus returns the next machine along with the effects the host
// should carry out, which lets machines live inside event-sourced actor
// state.
package conversation

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/sim"
	"github.com/felix-b/atc/util"

	"github.com/vmihailenco/msgpack/v5"
)

// Definition is the immutable, validated state table shared by all
// machines built from it.
type Definition struct {
	name    string
	initial string
	states  map[string]*state
	order   []string
}

func (d *Definition) Name() string {
	return d.name
}

// States returns the names of all states in declaration order.
func (d *Definition) States() []string {
	return slices.Clone(d.order)
}

// NewMachine returns a machine that has not yet entered its initial state.
func (d *Definition) NewMachine() Machine {
	return Machine{def: d}
}

// leaf descends from name through initial sub-states.
func (d *Definition) leaf(name string) string {
	for {
		s := d.states[name]
		if s.initial == "" {
			return name
		}
		name = s.initial
	}
}

func (d *Definition) checkAutoLoops() error {
	for _, name := range d.order {
		seen := make(map[string]bool)
		for s := d.states[name]; s.auto != ""; {
			if seen[s.name] {
				return fmt.Errorf("%s: %w", name, ErrAutoTransitionLoop)
			}
			seen[s.name] = true
			s = d.states[d.leaf(s.auto)]
		}
	}
	return nil
}

///////////////////////////////////////////////////////////////////////////
// Effects

// Effect is an instruction for the machine's host; hosts run effects in
// the order they are returned.
type Effect interface {
	isEffect()
}

// Tune asks the host to tune its radio.
type Tune struct {
	State     string
	Frequency aviation.Frequency
}

// Transmit asks the host to build a message and transmit it as soon as
// the frequency is quiet. The host must fire TriggerTransmissionStarted
// and then TriggerTransmissionFinished.
type Transmit struct {
	State   string
	Factory MessageFactory
}

type Invoke struct {
	State    string
	Callback Callback
}

// ScheduleDelay asks the host to schedule a delay and report the handle
// with WithDelay; when it is due, the host calls DelayElapsed(Token).
type ScheduleDelay struct {
	Token string
	Delay time.Duration
}

// CancelDelay asks the host to cancel a delay that was scheduled earlier.
type CancelDelay struct {
	Token  string
	Handle sim.DelayHandle
}

// Entered reports that a state was entered.
type Entered struct {
	State string
}

func (Tune) isEffect()          {}
func (Transmit) isEffect()      {}
func (Invoke) isEffect()        {}
func (ScheduleDelay) isEffect() {}
func (CancelDelay) isEffect()   {}
func (Entered) isEffect()       {}

///////////////////////////////////////////////////////////////////////////
// Machine

// Machine is the state of one conversation: where it is, what it has
// memorized and which delays are pending. Machines are values; every
// method returns a new machine and leaves its receiver untouched.
type Machine struct {
	def     *Definition
	current string
	memory  map[aviation.MessageType]aviation.Message
	delays  map[string]sim.DelayHandle
}

func (m Machine) Definition() *Definition {
	return m.def
}

// State returns the name of the current leaf state, or the empty string
// if the machine has not been started.
func (m Machine) State() string {
	return m.current
}

func (m Machine) Started() bool {
	return m.current != ""
}

// In reports whether the current state is name or one of its sub-states.
func (m Machine) In(name string) bool {
	for s := m.current; s != ""; s = parentOf(s) {
		if s == name {
			return true
		}
	}
	return false
}

// Memorized returns the message of type t memorized most recently.
func (m Machine) Memorized(t aviation.MessageType) (aviation.Message, bool) {
	msg, ok := m.memory[t]
	return msg, ok
}

// Recall returns the memorized message of type t as a T.
func Recall[T aviation.Message](m Machine, t aviation.MessageType) (T, error) {
	var zero T
	msg, ok := m.memory[t]
	if !ok {
		return zero, fmt.Errorf("%s: %w", t, ErrNothingMemorized)
	}
	v, ok := msg.(T)
	if !ok {
		return zero, fmt.Errorf("%s is a %T: %w", t, msg, ErrMemorizedTypeMismatch)
	}
	return v, nil
}

// Start enters the definition's initial state. Starting a machine twice
// does nothing.
func (m Machine) Start() (Machine, []Effect) {
	if m.Started() || m.def == nil {
		return m, nil
	}
	return m.transition(m.def.initial, nil)
}

// Fire delivers a trigger. Triggers the current state has no transition
// for are ignored.
func (m Machine) Fire(t Trigger) (Machine, []Effect) {
	target, ok := m.find(func(s *state) (string, bool) {
		target, ok := s.triggers[t]
		return target, ok
	})
	if !ok {
		return m, nil
	}
	return m.transition(target, nil)
}

// Receive delivers a message. Messages the current state has no
// transition for are ignored.
func (m Machine) Receive(msg aviation.Message) (Machine, []Effect) {
	typ := aviation.TypeOf(msg)

	var mt messageTransition
	_, ok := m.find(func(s *state) (string, bool) {
		var ok bool
		mt, ok = s.messages[typ]
		return mt.target, ok
	})
	if !ok {
		return m, nil
	}

	if mt.memorize {
		m.memory = util.WithMapEntry(m.memory, typ, msg)
	}
	return m.transition(mt.target, nil)
}

// DelayElapsed reports that the delay identified by token is due. Delays
// that were released by an earlier transition are ignored.
func (m Machine) DelayElapsed(token string) (Machine, []Effect) {
	if _, ok := m.delays[token]; !ok {
		return m, nil
	}
	m.delays = util.WithoutMapEntry(m.delays, token)
	return m.Fire(elapsedTrigger(token))
}

// WithDelay records the handle of a delay scheduled in response to a
// ScheduleDelay effect. It returns false if the machine has already left
// the state that asked for the delay, in which case the host should
// cancel it.
func (m Machine) WithDelay(token string, h sim.DelayHandle) (Machine, bool) {
	if m.current != token {
		return m, false
	}
	m.delays = util.WithMapEntry(m.delays, token, h)
	return m, true
}

// PendingDelays returns the tokens of delays recorded with WithDelay that
// have neither elapsed nor been released.
func (m Machine) PendingDelays() []string {
	return util.SortedMapKeys(m.delays)
}

// find walks from the current leaf towards the root for as long as
// parents inherit, returning the first match.
func (m Machine) find(match func(*state) (string, bool)) (string, bool) {
	if !m.Started() {
		return "", false
	}
	for s := m.def.states[m.current]; s != nil; {
		if target, ok := match(s); ok {
			return target, true
		}
		p, ok := m.def.states[s.parent]
		if !ok || !p.inherit {
			break
		}
		s = p
	}
	return "", false
}

// transition leaves the current leaf and enters target, then follows
// initial sub-states and automatic transitions until it reaches a leaf
// that waits.
func (m Machine) transition(target string, effects []Effect) (Machine, []Effect) {
	for {
		for _, token := range util.SortedMapKeys(m.delays) {
			effects = append(effects, CancelDelay{Token: token, Handle: m.delays[token]})
		}
		m.delays = nil

		// Every state on the path from the current leaf up to, but not
		// including, the nearest common ancestor is exited; target is
		// entered even when it is an ancestor of the current leaf.
		active := make(map[string]bool)
		for s := m.current; s != ""; s = parentOf(s) {
			active[s] = true
		}
		var entering []string
		for s := target; s != "" && !(active[s] && s != target); s = parentOf(s) {
			entering = append(entering, s)
		}
		slices.Reverse(entering)
		for s := m.def.states[target]; s.initial != ""; s = m.def.states[s.initial] {
			entering = append(entering, s.initial)
		}

		for _, name := range entering {
			effects = append(effects, Entered{State: name})
			for _, a := range m.def.states[name].entry {
				switch a.kind {
				case actionTune:
					effects = append(effects, Tune{State: name, Frequency: a.frequency})
				case actionTransmit:
					effects = append(effects, Transmit{State: name, Factory: a.factory})
				case actionInvoke:
					effects = append(effects, Invoke{State: name, Callback: a.callback})
				case actionDelay:
					effects = append(effects, ScheduleDelay{Token: name, Delay: a.delay})
				}
			}
		}
		m.current = entering[len(entering)-1]

		next := m.def.states[m.current].auto
		if next == "" {
			return m, effects
		}
		target = next
	}
}

func (m Machine) LogValue() slog.Value {
	name := ""
	if m.def != nil {
		name = m.def.name
	}
	return slog.GroupValue(
		slog.String("definition", name),
		slog.String("state", m.current),
		slog.Any("memorized", util.SortedMapKeys(m.memory)),
		slog.Any("delays", util.SortedMapKeys(m.delays)))
}

// EncodeMsgpack encodes the machine without its definition, which holds
// callbacks, so that actor states holding machines can be recorded and
// compared.
func (m Machine) EncodeMsgpack(enc *msgpack.Encoder) error {
	name := ""
	if m.def != nil {
		name = m.def.name
	}
	return enc.Encode(struct {
		Definition string                                   `msgpack:"definition"`
		State      string                                   `msgpack:"state"`
		Memory     map[aviation.MessageType]aviation.Message `msgpack:"memory,omitempty"`
		Delays     map[string]sim.DelayHandle               `msgpack:"delays,omitempty"`
	}{name, m.current, m.memory, m.delays})
}
