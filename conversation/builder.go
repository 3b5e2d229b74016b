// conversation/builder.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package conversation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felix-b/atc/aviation"
)

// Trigger is a named stimulus. Triggers whose names start with '$' are
// reserved.
type Trigger string

const (
	// TriggerTransmissionStarted and TriggerTransmissionFinished are fired by
	// hosts when their own radio starts and finishes transmitting.
	TriggerTransmissionStarted  Trigger = "$transmission-started"
	TriggerTransmissionFinished Trigger = "$transmission-finished"
)

func elapsedTrigger(token string) Trigger {
	return Trigger("$elapsed:" + token)
}

// Callback runs on entry to a state or as a sequence step.
type Callback func(c *Context) error

// MessageFactory builds a message when its state is entered.
type MessageFactory func(c *Context) (aviation.Message, error)

type actionKind uint8

const (
	actionTune actionKind = iota
	actionTransmit
	actionInvoke
	actionDelay
)

type action struct {
	kind      actionKind
	frequency aviation.Frequency
	factory   MessageFactory
	callback  Callback
	delay     time.Duration
}

type messageTransition struct {
	target   string
	memorize bool
}

type state struct {
	name     string
	parent   string
	children []string
	initial  string
	// inherit makes the state's sub-states forward stimuli they do not
	// handle to it.
	inherit bool
	// declared distinguishes states named by the caller from parents that
	// were created implicitly.
	declared bool

	triggers     map[Trigger]string
	triggerOrder []Trigger
	messages     map[aviation.MessageType]messageTransition
	messageOrder []aviation.MessageType

	entry []action
	// auto, if set, is taken as soon as the state has been entered.
	auto string
}

///////////////////////////////////////////////////////////////////////////
// Builder

// Builder assembles a Definition. State names are hierarchical, with '/'
// separating a sub-state from its parent; parents that are not declared
// explicitly are created on demand and enter their first sub-state.
type Builder struct {
	name          string
	states        map[string]*state
	order         []string
	conversations []*ConversationBuilder
	errs          []error
}

func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		states: make(map[string]*state),
	}
}

func parentOf(name string) string {
	if idx := strings.LastIndex(name, "/"); idx != -1 {
		return name[:idx]
	}
	return ""
}

func (b *Builder) lookup(name string) *state {
	if s, ok := b.states[name]; ok {
		return s
	}

	s := &state{
		name:     name,
		parent:   parentOf(name),
		triggers: make(map[Trigger]string),
		messages: make(map[aviation.MessageType]messageTransition),
	}
	b.states[name] = s
	b.order = append(b.order, name)

	if s.parent != "" {
		p := b.lookup(s.parent)
		p.children = append(p.children, name)
		if p.initial == "" {
			p.initial = name
		}
	}
	return s
}

func (b *Builder) declare(name string) *state {
	if name == "" {
		b.errs = append(b.errs, fmt.Errorf("empty state name: %w", ErrUnknownState))
	}
	s := b.lookup(name)
	if s.declared {
		b.errs = append(b.errs, fmt.Errorf("%s: %w", name, ErrDuplicateState))
	}
	s.declared = true
	return s
}

// State declares a state and returns a builder for its transitions.
func (b *Builder) State(name string) *StateBuilder {
	return &StateBuilder{b: b, s: b.declare(name)}
}

///////////////////////////////////////////////////////////////////////////
// StateBuilder

type StateBuilder struct {
	b *Builder
	s *state
}

func (sb *StateBuilder) Name() string {
	return sb.s.name
}

// On adds a transition to target when trigger fires.
func (sb *StateBuilder) On(trigger Trigger, target string) *StateBuilder {
	if _, ok := sb.s.triggers[trigger]; !ok {
		sb.s.triggerOrder = append(sb.s.triggerOrder, trigger)
	}
	sb.s.triggers[trigger] = target
	return sb
}

// OnMessage adds a transition to target when a message of the given type
// is received; if memorize is set the message is remembered, replacing
// any earlier message of the same type.
func (sb *StateBuilder) OnMessage(t aviation.MessageType, target string, memorize bool) *StateBuilder {
	if _, ok := sb.s.messages[t]; !ok {
		sb.s.messageOrder = append(sb.s.messageOrder, t)
	}
	sb.s.messages[t] = messageTransition{target: target, memorize: memorize}
	return sb
}

// OnEnter adds a callback invoked each time the state is entered.
func (sb *StateBuilder) OnEnter(cb Callback) *StateBuilder {
	sb.s.entry = append(sb.s.entry, action{kind: actionInvoke, callback: cb})
	return sb
}

// Inherit makes the state's sub-states forward triggers and messages they
// have no transition for to this state.
func (sb *StateBuilder) Inherit() *StateBuilder {
	sb.s.inherit = true
	return sb
}

// Initial sets the sub-state entered when the state is entered. It
// defaults to the first sub-state declared.
func (sb *StateBuilder) Initial(child string) *StateBuilder {
	sb.s.initial = child
	return sb
}

///////////////////////////////////////////////////////////////////////////
// Conversations

// ConversationBuilder describes a state that tunes the radio, transmits a
// message and then waits for a reply. It is expanded into sub-states when
// the definition is built:
//
//	name/TRANSMIT/AWAIT_SILENCE       waiting for the frequency to go quiet
//	name/TRANSMIT/TRANSMIT            on the air
//	name/AWAIT_RECEIVE                waiting for the reply
//	name/READBACK_OF_<Type>/...       reading the reply back
//	name/$READY                       nothing left to do
//
// Sub-states forward unhandled stimuli to name, so transitions added with
// On and OnMessage apply throughout the exchange.
type ConversationBuilder struct {
	*StateBuilder

	monitor  aviation.Frequency
	transmit *transmitClause
	receive  *receiveClause
	timeout  *timeoutClause
}

type transmitClause struct {
	factory MessageFactory
	target  string
}

type timeoutClause struct {
	delay  time.Duration
	target string
}

type receiveClause struct {
	messageType aviation.MessageType
	memorize    bool
	readback    MessageFactory
	target      string
}

func (b *Builder) Conversation(name string) *ConversationBuilder {
	cb := &ConversationBuilder{StateBuilder: b.State(name)}
	cb.s.inherit = true
	b.conversations = append(b.conversations, cb)
	return cb
}

// Monitor tunes the radio to f when the conversation state is entered.
func (cb *ConversationBuilder) Monitor(f aviation.Frequency) *ConversationBuilder {
	cb.monitor = f
	return cb
}

// Transmit sends the message built by factory once the frequency is
// quiet. If transitionTo is empty the conversation goes on to its receive
// clause, or becomes ready if there is none.
func (cb *ConversationBuilder) Transmit(factory MessageFactory, transitionTo string) *ConversationBuilder {
	cb.transmit = &transmitClause{factory: factory, target: transitionTo}
	return cb
}

// Receive waits for a message of type t. If readback is non-nil, the
// reply is read back before moving to transitionTo.
func (cb *ConversationBuilder) Receive(t aviation.MessageType, memorize bool, readback MessageFactory,
	transitionTo string) *ConversationBuilder {
	cb.receive = &receiveClause{messageType: t, memorize: memorize, readback: readback, target: transitionTo}
	return cb
}

// Timeout stops waiting for the reply after d of virtual time and goes to
// transitionTo. If transitionTo is empty the exchange starts over from the
// top, which retransmits.
func (cb *ConversationBuilder) Timeout(d time.Duration, transitionTo string) *ConversationBuilder {
	cb.timeout = &timeoutClause{delay: d, target: transitionTo}
	return cb
}

func (b *Builder) expandConversation(cb *ConversationBuilder) {
	name := cb.s.name
	if len(cb.s.children) > 0 {
		b.errs = append(b.errs, fmt.Errorf("%s: conversation states may not have explicit sub-states: %w",
			name, ErrInvalidConversation))
		return
	}

	if cb.monitor != 0 {
		// Tuning comes before any OnEnter callbacks.
		cb.s.entry = append([]action{{kind: actionTune, frequency: cb.monitor}}, cb.s.entry...)
	}

	ready := name + "/$READY"
	awaitReceive := name + "/AWAIT_RECEIVE"

	// transmitting declares the AWAIT_SILENCE and TRANSMIT sub-states of
	// prefix and returns prefix.
	transmitting := func(prefix string, factory MessageFactory, then string) string {
		b.declare(prefix).inherit = true
		await := b.declare(prefix + "/AWAIT_SILENCE")
		await.entry = append(await.entry, action{kind: actionTransmit, factory: factory})
		await.triggers[TriggerTransmissionStarted] = prefix + "/TRANSMIT"
		await.triggerOrder = append(await.triggerOrder, TriggerTransmissionStarted)

		tx := b.declare(prefix + "/TRANSMIT")
		tx.triggers[TriggerTransmissionFinished] = then
		tx.triggerOrder = append(tx.triggerOrder, TriggerTransmissionFinished)
		return prefix
	}

	afterTransmit := ready
	if cb.receive != nil {
		afterTransmit = awaitReceive
	}

	if cb.transmit != nil {
		if cb.transmit.factory == nil {
			b.errs = append(b.errs, fmt.Errorf("%s: nil message factory: %w", name, ErrInvalidConversation))
		}
		then := afterTransmit
		if cb.transmit.target != "" {
			then = cb.transmit.target
		}
		cb.s.initial = transmitting(name+"/TRANSMIT", cb.transmit.factory, then)
	}

	if rc := cb.receive; rc != nil {
		if rc.messageType == "" {
			b.errs = append(b.errs, fmt.Errorf("%s: receive clause has no message type: %w", name,
				ErrInvalidConversation))
		}
		then := rc.target
		if then == "" {
			then = ready
		}

		await := b.declare(awaitReceive)
		target := then
		if rc.readback != nil {
			target = transmitting(name+"/READBACK_OF_"+string(rc.messageType), rc.readback, then)
		}
		await.messages[rc.messageType] = messageTransition{target: target, memorize: rc.memorize}
		await.messageOrder = append(await.messageOrder, rc.messageType)

		if to := cb.timeout; to != nil {
			if to.delay <= 0 {
				b.errs = append(b.errs, fmt.Errorf("%s: timeout %s: %w", name, to.delay, ErrInvalidConversation))
			}
			target := to.target
			if target == "" {
				target = name
			}
			await.entry = append(await.entry, action{kind: actionDelay, delay: to.delay})
			await.triggers[elapsedTrigger(awaitReceive)] = target
			await.triggerOrder = append(await.triggerOrder, elapsedTrigger(awaitReceive))
		}

		if cb.transmit == nil {
			cb.s.initial = awaitReceive
		}
	}

	if cb.timeout != nil && cb.receive == nil {
		b.errs = append(b.errs, fmt.Errorf("%s: timeout without a receive clause: %w", name,
			ErrInvalidConversation))
	}

	b.declare(ready)
	if cb.transmit == nil && cb.receive == nil {
		cb.s.initial = ready
	}
}

///////////////////////////////////////////////////////////////////////////
// Sequences

// Step is one link of a sequence; see Do, Delay, AwaitTrigger and GoTo.
type Step struct {
	kind     stepKind
	callback Callback
	delay    time.Duration
	trigger  Trigger
	target   string
}

type stepKind uint8

const (
	stepDo stepKind = iota + 1
	stepDelay
	stepAwait
	stepGoTo
)

// Do invokes cb and moves on to the next step immediately.
func Do(cb Callback) Step { return Step{kind: stepDo, callback: cb} }

// Delay waits for d of virtual time before moving on.
func Delay(d time.Duration) Step { return Step{kind: stepDelay, delay: d} }

// AwaitTrigger waits until t fires.
func AwaitTrigger(t Trigger) Step { return Step{kind: stepAwait, trigger: t} }

// GoTo transitions to target; it must be the last step.
func GoTo(target string) Step { return Step{kind: stepGoTo, target: target} }

// Sequence declares a state whose sub-states name/$STEP0, name/$STEP1, ...
// run the given steps in order. If the last step is not a GoTo, the state
// rests in a final name/$STEPn sub-state.
func (b *Builder) Sequence(name string, steps ...Step) *StateBuilder {
	sb := b.State(name)
	if len(steps) == 0 {
		b.errs = append(b.errs, fmt.Errorf("%s: empty sequence: %w", name, ErrInvalidStep))
		return sb
	}

	stepName := func(i int) string { return fmt.Sprintf("%s/$STEP%d", name, i) }
	sb.s.initial = stepName(0)

	for i, step := range steps {
		s := b.declare(stepName(i))
		next := stepName(i + 1)

		switch step.kind {
		case stepDo:
			if step.callback == nil {
				b.errs = append(b.errs, fmt.Errorf("%s: nil callback: %w", s.name, ErrInvalidStep))
			}
			s.entry = append(s.entry, action{kind: actionInvoke, callback: step.callback})
			s.auto = next

		case stepDelay:
			if step.delay < 0 {
				b.errs = append(b.errs, fmt.Errorf("%s: negative delay %s: %w", s.name, step.delay,
					ErrInvalidStep))
			}
			s.entry = append(s.entry, action{kind: actionDelay, delay: step.delay})
			s.triggers[elapsedTrigger(s.name)] = next
			s.triggerOrder = append(s.triggerOrder, elapsedTrigger(s.name))

		case stepAwait:
			s.triggers[step.trigger] = next
			s.triggerOrder = append(s.triggerOrder, step.trigger)

		case stepGoTo:
			if i != len(steps)-1 {
				b.errs = append(b.errs, fmt.Errorf("%s: transition step must be last: %w", s.name,
					ErrInvalidStep))
			}
			s.auto = step.target

		default:
			b.errs = append(b.errs, fmt.Errorf("%s: %w", s.name, ErrInvalidStep))
		}
	}

	if steps[len(steps)-1].kind != stepGoTo {
		b.declare(stepName(len(steps)))
	}
	return sb
}

///////////////////////////////////////////////////////////////////////////
// Build

// Build expands conversation states, validates the result and returns an
// immutable Definition whose machines start in initial.
func (b *Builder) Build(initial string) (*Definition, error) {
	for _, cb := range b.conversations {
		b.expandConversation(cb)
	}
	b.conversations = nil

	errs := b.errs
	check := func(from, target string) {
		if _, ok := b.states[target]; !ok {
			errs = append(errs, fmt.Errorf("%s -> %q: %w", from, target, ErrUnknownState))
		}
	}

	check("initial", initial)
	for _, name := range b.order {
		s := b.states[name]
		for _, t := range s.triggerOrder {
			check(name, s.triggers[t])
		}
		for _, t := range s.messageOrder {
			check(name, s.messages[t].target)
		}
		if s.auto != "" {
			check(name, s.auto)
		}
		if s.initial != "" {
			if c, ok := b.states[s.initial]; !ok || c.parent != name {
				errs = append(errs, fmt.Errorf("%s: initial sub-state %q: %w", name, s.initial,
					ErrUnknownState))
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	d := &Definition{
		name:    b.name,
		initial: initial,
		states:  b.states,
		order:   b.order,
	}
	if err := d.checkAutoLoops(); err != nil {
		return nil, err
	}
	return d, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild(initial string) *Definition {
	d, err := b.Build(initial)
	if err != nil {
		panic(err)
	}
	return d
}
