// conversation/machine_test.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package conversation

import (
	"bytes"
	"errors"
	"slices"
	"testing"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/util"
)

var (
	pilot = aviation.Party{ID: "world.pilot#1", Callsign: "N123AB"}
	tower = aviation.Party{ID: "world.controller#1", Callsign: "Palo Alto Tower"}
)

func readyForDeparture(*Context) (aviation.Message, error) {
	return aviation.ReadyForDeparture{
		Header: aviation.Header{Type: aviation.MessageReadyForDeparture, From: pilot.ID, To: tower.ID},
		Runway: "31",
	}, nil
}

func takeoffReadback(*Context) (aviation.Message, error) {
	return aviation.TakeoffReadback{
		Header: aviation.Header{Type: aviation.MessageTakeoffReadback, From: pilot.ID, To: tower.ID},
		Runway: "31",
	}, nil
}

func takeoffClearance(runway string) aviation.TakeoffClearance {
	return aviation.TakeoffClearance{
		Header: aviation.Header{Type: aviation.MessageTakeoffClearance, From: tower.ID, To: pilot.ID},
		Runway: runway,
	}
}

func entered(effects []Effect) []string {
	var s []string
	for _, e := range effects {
		if e, ok := e.(Entered); ok {
			s = append(s, e.State)
		}
	}
	return s
}

func TestTriggers(t *testing.T) {
	b := NewBuilder("abc")
	b.State("BEGIN").On("A", "MIDDLE")
	b.State("MIDDLE").On("B", "END")
	b.State("END")
	def, err := b.Build("BEGIN")
	if err != nil {
		t.Fatal(err)
	}

	m := def.NewMachine()
	if m.Started() {
		t.Errorf("expected an unstarted machine")
	}
	if m2, effects := m.Fire("A"); m2.State() != "" || len(effects) != 0 {
		t.Errorf("expected triggers to be ignored before Start")
	}

	m, effects := m.Start()
	if m.State() != "BEGIN" {
		t.Errorf("expected BEGIN, got %q", m.State())
	}
	if e := entered(effects); !slices.Equal(e, []string{"BEGIN"}) {
		t.Errorf("expected [BEGIN], got %v", e)
	}

	for _, state := range []string{"BEGIN", "MIDDLE", "END"} {
		if m.State() != state {
			t.Errorf("expected %s, got %s", state, m.State())
		}
		// Unrecognized triggers change nothing.
		for _, trig := range []Trigger{"C", "B", TriggerTransmissionStarted} {
			if state == "MIDDLE" && trig == "B" {
				continue
			}
			if m2, effects := m.Fire(trig); m2.State() != state || len(effects) != 0 {
				t.Errorf("%s: expected %q to be ignored, went to %s with %d effects", state, trig,
					m2.State(), len(effects))
			}
		}

		switch state {
		case "BEGIN":
			m, _ = m.Fire("A")
		case "MIDDLE":
			m, _ = m.Fire("B")
		}
	}

	// Machines are values.
	m0, _ := def.NewMachine().Start()
	m1, _ := m0.Fire("A")
	if m0.State() != "BEGIN" || m1.State() != "MIDDLE" {
		t.Errorf("expected BEGIN and MIDDLE, got %s and %s", m0.State(), m1.State())
	}
	if m2, _ := m1.Start(); m2.State() != "MIDDLE" {
		t.Errorf("expected Start on a started machine to do nothing, got %s", m2.State())
	}
}

func TestConversationExchange(t *testing.T) {
	f := aviation.NewFrequency(120.6)

	b := NewBuilder("departure")
	b.Conversation("BEGIN").
		Monitor(f).
		Transmit(readyForDeparture, "").
		Receive(aviation.MessageTakeoffClearance, true, takeoffReadback, "END")
	b.State("END")
	def, err := b.Build("BEGIN")
	if err != nil {
		t.Fatal(err)
	}

	var tunes []aviation.Frequency
	var sent []aviation.MessageType
	collect := func(effects []Effect) {
		for _, e := range effects {
			switch e := e.(type) {
			case Tune:
				tunes = append(tunes, e.Frequency)
			case Transmit:
				msg, err := e.Factory(nil)
				if err != nil {
					t.Fatal(err)
				}
				sent = append(sent, aviation.TypeOf(msg))
			}
		}
	}

	m, effects := def.NewMachine().Start()
	collect(effects)
	if m.State() != "BEGIN/TRANSMIT/AWAIT_SILENCE" {
		t.Errorf("expected BEGIN/TRANSMIT/AWAIT_SILENCE, got %s", m.State())
	}
	if e := entered(effects); !slices.Equal(e, []string{"BEGIN", "BEGIN/TRANSMIT", "BEGIN/TRANSMIT/AWAIT_SILENCE"}) {
		t.Errorf("unexpected entered states %v", e)
	}
	if !slices.Equal(tunes, []aviation.Frequency{f}) {
		t.Errorf("expected a single tune to %s, got %v", f, tunes)
	}
	if !slices.Equal(sent, []aviation.MessageType{aviation.MessageReadyForDeparture}) {
		t.Errorf("expected ReadyForDeparture to be transmitted, got %v", sent)
	}

	m, effects = m.Fire(TriggerTransmissionStarted)
	collect(effects)
	if m.State() != "BEGIN/TRANSMIT/TRANSMIT" {
		t.Errorf("expected BEGIN/TRANSMIT/TRANSMIT, got %s", m.State())
	}
	m, effects = m.Fire(TriggerTransmissionFinished)
	collect(effects)
	if m.State() != "BEGIN/AWAIT_RECEIVE" {
		t.Errorf("expected BEGIN/AWAIT_RECEIVE, got %s", m.State())
	}

	if _, err := Recall[aviation.TakeoffClearance](m, aviation.MessageTakeoffClearance); !errors.Is(err, ErrNothingMemorized) {
		t.Errorf("expected ErrNothingMemorized, got %v", err)
	}

	// Other messages are ignored.
	if m2, effects := m.Receive(aviation.GoAround{Header: aviation.Header{Type: aviation.MessageGoAround}}); m2.State() != m.State() || len(effects) != 0 {
		t.Errorf("expected GoAround to be ignored, went to %s", m2.State())
	}

	m, effects = m.Receive(takeoffClearance("31"))
	collect(effects)
	if m.State() != "BEGIN/READBACK_OF_TakeoffClearance/AWAIT_SILENCE" {
		t.Errorf("expected readback, got %s", m.State())
	}
	tc, err := Recall[aviation.TakeoffClearance](m, aviation.MessageTakeoffClearance)
	if err != nil {
		t.Errorf("unexpected error %v", err)
	} else if tc.Runway != "31" {
		t.Errorf("expected runway 31, got %q", tc.Runway)
	}
	if !slices.Equal(sent, []aviation.MessageType{aviation.MessageReadyForDeparture, aviation.MessageTakeoffReadback}) {
		t.Errorf("expected the readback to be the second transmission, got %v", sent)
	}

	m, effects = m.Fire(TriggerTransmissionStarted)
	collect(effects)
	m, effects = m.Fire(TriggerTransmissionFinished)
	collect(effects)
	if m.State() != "END" {
		t.Errorf("expected END, got %s", m.State())
	}
	if len(tunes) != 1 || len(sent) != 2 {
		t.Errorf("expected 1 tune and 2 transmissions, got %d and %d", len(tunes), len(sent))
	}
}

func TestConversationWithoutTransmit(t *testing.T) {
	b := NewBuilder("listen")
	b.Conversation("LISTEN").Receive(aviation.MessageReadyForDeparture, false, nil, "")
	def, err := b.Build("LISTEN")
	if err != nil {
		t.Fatal(err)
	}

	m, _ := def.NewMachine().Start()
	if m.State() != "LISTEN/AWAIT_RECEIVE" {
		t.Errorf("expected LISTEN/AWAIT_RECEIVE, got %s", m.State())
	}
	msg, _ := readyForDeparture(nil)
	m, _ = m.Receive(msg)
	if m.State() != "LISTEN/$READY" {
		t.Errorf("expected LISTEN/$READY, got %s", m.State())
	}
	if _, ok := m.Memorized(aviation.MessageReadyForDeparture); ok {
		t.Errorf("expected the message not to be memorized")
	}

	b = NewBuilder("idle")
	b.Conversation("IDLE")
	def2, err := b.Build("IDLE")
	if err != nil {
		t.Fatal(err)
	}
	if m, _ := def2.NewMachine().Start(); m.State() != "IDLE/$READY" {
		t.Errorf("expected IDLE/$READY, got %s", m.State())
	}
}

func TestOnEnterOncePerTransition(t *testing.T) {
	b := NewBuilder("enter")
	b.State("A").On("again", "A").On("go", "B").OnEnter(func(*Context) error { return nil })
	b.State("B").OnEnter(func(*Context) error { return nil })
	def, err := b.Build("A")
	if err != nil {
		t.Fatal(err)
	}

	invokes := func(effects []Effect) (n int) {
		for _, e := range effects {
			if _, ok := e.(Invoke); ok {
				n++
			}
		}
		return
	}

	m, effects := def.NewMachine().Start()
	if n := invokes(effects); n != 1 {
		t.Errorf("expected 1 callback on start, got %d", n)
	}
	m, effects = m.Fire("again")
	if n := invokes(effects); n != 1 || m.State() != "A" {
		t.Errorf("expected 1 callback on self transition, got %d in %s", n, m.State())
	}
	if _, effects = m.Fire("nothing"); invokes(effects) != 0 {
		t.Errorf("expected no callback for an ignored trigger")
	}
	m, effects = m.Fire("go")
	if n := invokes(effects); n != 1 || m.State() != "B" {
		t.Errorf("expected 1 callback entering B, got %d in %s", n, m.State())
	}
}

func TestMemorizeOverwrites(t *testing.T) {
	b := NewBuilder("memory")
	b.State("WAIT").OnMessage(aviation.MessageTakeoffClearance, "WAIT", true)
	def, err := b.Build("WAIT")
	if err != nil {
		t.Fatal(err)
	}

	m0, _ := def.NewMachine().Start()
	m1, _ := m0.Receive(takeoffClearance("13"))
	m2, _ := m1.Receive(takeoffClearance("31"))

	if tc, err := Recall[aviation.TakeoffClearance](m2, aviation.MessageTakeoffClearance); err != nil || tc.Runway != "31" {
		t.Errorf("expected runway 31, got %q (%v)", tc.Runway, err)
	}
	// Earlier machines keep what they had.
	if tc, err := Recall[aviation.TakeoffClearance](m1, aviation.MessageTakeoffClearance); err != nil || tc.Runway != "13" {
		t.Errorf("expected runway 13, got %q (%v)", tc.Runway, err)
	}
	if _, err := Recall[aviation.TakeoffClearance](m0, aviation.MessageTakeoffClearance); !errors.Is(err, ErrNothingMemorized) {
		t.Errorf("expected ErrNothingMemorized, got %v", err)
	}
	if _, err := Recall[aviation.GoAround](m2, aviation.MessageTakeoffClearance); !errors.Is(err, ErrMemorizedTypeMismatch) {
		t.Errorf("expected ErrMemorizedTypeMismatch, got %v", err)
	}
}

func TestInheritance(t *testing.T) {
	b := NewBuilder("inherit")
	b.Conversation("TAXI").
		Transmit(readyForDeparture, "").
		Receive(aviation.MessageTakeoffClearance, true, nil, "DONE").
		OnMessage(aviation.MessageGoAround, "ABORTED", false)
	b.State("PLAIN").On("abort", "ABORTED")
	b.State("PLAIN/INNER")
	b.State("ABORTED")
	b.State("DONE")
	def, err := b.Build("TAXI")
	if err != nil {
		t.Fatal(err)
	}

	m, _ := def.NewMachine().Start()
	if m.State() != "TAXI/TRANSMIT/AWAIT_SILENCE" {
		t.Fatalf("expected TAXI/TRANSMIT/AWAIT_SILENCE, got %s", m.State())
	}
	if !m.In("TAXI") || !m.In("TAXI/TRANSMIT") || m.In("TAXI/AWAIT_RECEIVE") {
		t.Errorf("unexpected In results for %s", m.State())
	}

	// Conversation sub-states forward to the conversation state.
	m2, _ := m.Receive(aviation.GoAround{Header: aviation.Header{Type: aviation.MessageGoAround}})
	if m2.State() != "ABORTED" {
		t.Errorf("expected ABORTED, got %s", m2.State())
	}

	// Other sub-states only do when their parent inherits.
	b = NewBuilder("masked")
	b.State("PLAIN").On("abort", "ABORTED")
	b.State("PLAIN/INNER")
	b.State("ABORTED")
	def, err = b.Build("PLAIN")
	if err != nil {
		t.Fatal(err)
	}
	m, _ = def.NewMachine().Start()
	if m.State() != "PLAIN/INNER" {
		t.Fatalf("expected PLAIN/INNER, got %s", m.State())
	}
	if m2, _ := m.Fire("abort"); m2.State() != "PLAIN/INNER" {
		t.Errorf("expected abort to be masked, got %s", m2.State())
	}

	b = NewBuilder("forwarded")
	b.State("PLAIN").On("abort", "ABORTED").Inherit()
	b.State("PLAIN/INNER")
	b.State("ABORTED")
	def, err = b.Build("PLAIN")
	if err != nil {
		t.Fatal(err)
	}
	m, _ = def.NewMachine().Start()
	if m2, _ := m.Fire("abort"); m2.State() != "ABORTED" {
		t.Errorf("expected ABORTED, got %s", m2.State())
	}
}

func TestBuildErrors(t *testing.T) {
	for _, test := range []struct {
		name  string
		build func(b *Builder)
		err   error
	}{
		{
			name: "duplicate",
			build: func(b *Builder) {
				b.State("A")
				b.State("A")
			},
			err: ErrDuplicateState,
		},
		{
			name: "unknown target",
			build: func(b *Builder) {
				b.State("A").On("x", "B")
			},
			err: ErrUnknownState,
		},
		{
			name: "unknown message target",
			build: func(b *Builder) {
				b.State("A").OnMessage(aviation.MessageGoAround, "B", false)
			},
			err: ErrUnknownState,
		},
		{
			name: "empty sequence",
			build: func(b *Builder) {
				b.Sequence("A")
			},
			err: ErrInvalidStep,
		},
		{
			name: "misplaced goto",
			build: func(b *Builder) {
				b.State("B")
				b.Sequence("A", GoTo("B"), AwaitTrigger("x"))
			},
			err: ErrInvalidStep,
		},
		{
			name: "loop",
			build: func(b *Builder) {
				b.Sequence("A", Do(func(*Context) error { return nil }), GoTo("A"))
			},
			err: ErrAutoTransitionLoop,
		},
		{
			name: "clashing conversation",
			build: func(b *Builder) {
				b.Conversation("A").Transmit(readyForDeparture, "")
				b.State("A/TRANSMIT")
			},
			err: ErrInvalidConversation,
		},
		{
			name: "nil factory",
			build: func(b *Builder) {
				b.Conversation("A").Transmit(nil, "")
			},
			err: ErrInvalidConversation,
		},
	} {
		b := NewBuilder(test.name)
		test.build(b)
		if _, err := b.Build("A"); !errors.Is(err, test.err) {
			t.Errorf("%s: expected %v, got %v", test.name, test.err, err)
		}
	}

	if _, err := NewBuilder("x").Build("A"); !errors.Is(err, ErrUnknownState) {
		t.Errorf("expected ErrUnknownState for a missing initial state, got %v", err)
	}
}

func TestEncodeMsgpack(t *testing.T) {
	b := NewBuilder("memory")
	b.State("WAIT").OnMessage(aviation.MessageTakeoffClearance, "WAIT", true)
	def := b.MustBuild("WAIT")

	m, _ := def.NewMachine().Start()
	m, _ = m.Receive(takeoffClearance("31"))

	again, _ := def.NewMachine().Start()
	again, _ = again.Receive(takeoffClearance("31"))

	b1, err := util.EncodeMsgpack(m)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := util.EncodeMsgpack(again)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b1, b2) {
		t.Errorf("expected identical encodings")
	}

	other, _ := again.Receive(takeoffClearance("13"))
	if b3, _ := util.EncodeMsgpack(other); bytes.Equal(b1, b3) {
		t.Errorf("expected a different encoding after memorizing another message")
	}
}

func TestDescribe(t *testing.T) {
	b := NewBuilder("departure")
	b.Conversation("BEGIN").
		Monitor(aviation.NewFrequency(120.6)).
		Transmit(readyForDeparture, "").
		Receive(aviation.MessageTakeoffClearance, true, takeoffReadback, "END")
	b.State("END")
	def := b.MustBuild("BEGIN")

	js, err := def.Describe()
	if err != nil {
		t.Fatal(err)
	}
	s := string(js)

	// States appear in declaration order.
	last := -1
	for _, name := range []string{`"BEGIN"`, `"END"`, `"BEGIN/TRANSMIT"`, `"BEGIN/TRANSMIT/AWAIT_SILENCE"`,
		`"BEGIN/AWAIT_RECEIVE"`, `"BEGIN/$READY"`} {
		idx := bytes.Index(js[max(0, last):], []byte(name+": {"))
		if idx == -1 {
			t.Errorf("%s missing or out of order in %s", name, s)
			continue
		}
		last += idx + 1
	}
	for _, frag := range []string{`"tune 120.600"`, `"$transmission-started": "BEGIN/TRANSMIT/TRANSMIT"`, `"memorize": true`} {
		if !bytes.Contains(js, []byte(frag)) {
			t.Errorf("expected %s in %s", frag, s)
		}
	}
}
