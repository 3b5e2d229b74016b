// radio/medium_test.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package radio

import (
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/math"
	"github.com/felix-b/atc/sim"
)

var kpao = math.Point2LL{-122.115, 37.461}

const towerFrequency aviation.Frequency = 118600

type listenerState struct{}

type fixture struct {
	t        *testing.T
	d        *sim.Domain
	m        *Medium
	listener sim.Ref
	events   []string
}

func newFixture(t *testing.T, opts ...MediumOption) *fixture {
	t.Helper()

	f := &fixture{t: t, d: sim.NewDomain("test")}
	var err error
	if f.m, err = NewMedium(f.d, opts...); err != nil {
		t.Fatal(err)
	}

	sim.MustRegister(f.d, sim.ActorType[listenerState]{
		Tag: "test.listener",
		New: func(*sim.Context, any) (listenerState, error) { return listenerState{}, nil },
		Reduce: func(s listenerState, e sim.Event) listenerState {
			return s
		},
		Receive: func(c *sim.Context, self sim.Handle[listenerState], msg any) error {
			switch n := msg.(type) {
			case StatusChanged:
				f.events = append(f.events, fmt.Sprintf("%s %s", n.Callsign, n.New))
			case MessageReceived:
				st, err := Station{Ref: c.Domain.Ref(n.Station)}.State()
				if err != nil {
					return err
				}
				f.events = append(f.events, fmt.Sprintf("%s received %s", st.Callsign, aviation.TypeOf(n.Message)))
			}
			return nil
		},
	})
	h, err := sim.Create[listenerState](f.d, "test.listener", nil)
	if err != nil {
		t.Fatal(err)
	}
	f.listener = h.Ref
	return f
}

func (f *fixture) station(cfg StationConfig) Station {
	f.t.Helper()
	s, err := f.m.NewStation(cfg)
	if err != nil {
		f.t.Fatal(err)
	}
	if err := f.m.AddListener(s, f.listener); err != nil {
		f.t.Fatal(err)
	}
	return s
}

func (f *fixture) ground(callsign string, loc math.Point2LL, freq aviation.Frequency) Station {
	return f.station(StationConfig{Callsign: aviation.Callsign(callsign), Frequency: freq, Location: loc,
		Antenna: 30})
}

func (f *fixture) air(callsign string, loc math.Point2LL, alt float32, freq aviation.Frequency) Station {
	return f.station(StationConfig{Callsign: aviation.Callsign(callsign), Frequency: freq, Location: loc,
		Altitude: alt, Airborne: true})
}

func (f *fixture) powerOn(stations ...Station) {
	f.t.Helper()
	for _, s := range stations {
		if err := f.m.PowerOn(s); err != nil {
			f.t.Fatal(err)
		}
	}
}

func (f *fixture) expectEvents(what string, expected ...string) {
	f.t.Helper()
	if !slices.Equal(f.events, expected) {
		f.t.Errorf("%s: expected %v, got %v", what, expected, f.events)
	}
	f.events = nil
}

func (f *fixture) expectStatus(s Station, status Status) {
	f.t.Helper()
	st, err := s.State()
	if err != nil {
		f.t.Fatal(err)
	}
	if st.Status != status {
		f.t.Errorf("%s: expected %s, got %s", st.Callsign, status, st.Status)
	}
}

func callsigns(t *testing.T, stations []Station) []string {
	t.Helper()
	var s []string
	for _, st := range stations {
		state, err := st.State()
		if err != nil {
			t.Fatal(err)
		}
		s = append(s, string(state.Callsign))
	}
	return s
}

func downwind(f *fixture) aviation.Message {
	return aviation.PatternReport{
		Header: aviation.Header{Type: aviation.MessagePatternReport, Created: f.d.Now()},
		Leg:    "downwind",
		Runway: "31",
	}
}

func TestTransmissionOrder(t *testing.T) {
	f := newFixture(t)
	g := f.ground("G", kpao, towerFrequency)
	a1 := f.air("A1", math.Offset2LL(kpao, 90, 5), 1500, towerFrequency)
	a2 := f.air("A2", math.Offset2LL(kpao, 180, 8), 2000, towerFrequency)
	a3 := f.air("A3", math.Offset2LL(kpao, 270, 3), 1000, towerFrequency)

	f.powerOn(g, a1, a2, a3)
	f.expectEvents("power on", "G Silence", "A1 Silence", "A2 Silence", "A3 Silence")

	group, err := f.m.GroupOf(g)
	if err != nil {
		t.Fatal(err)
	}
	if cs := callsigns(t, group); !slices.Equal(cs, []string{"A3", "A2", "A1", "G"}) {
		t.Errorf("expected most recent joiner first, got %v", cs)
	}

	if err := f.m.BeginTransmission(a2); err != nil {
		t.Fatal(err)
	}
	f.expectEvents("begin", "A2 Transmitting", "A3 ReceivingSingleTransmission",
		"A1 ReceivingSingleTransmission", "G ReceivingSingleTransmission")

	if err := f.m.CompleteTransmission(a2, downwind(f)); err != nil {
		t.Fatal(err)
	}
	f.expectEvents("complete",
		"A3 received PatternReport", "A3 DetectingSilence",
		"A1 received PatternReport", "A1 DetectingSilence",
		"G received PatternReport", "G DetectingSilence",
		"A2 DetectingSilence")

	// Everyone returns to silence after the quiet interval, and not before.
	if err := f.d.RunFor(DefaultQuietInterval - time.Second); err != nil {
		t.Fatal(err)
	}
	f.expectEvents("before quiet interval")
	for _, s := range []Station{g, a1, a2, a3} {
		f.expectStatus(s, StatusDetectingSilence)
	}

	if err := f.d.RunFor(time.Second); err != nil {
		t.Fatal(err)
	}
	f.expectEvents("after quiet interval", "A3 Silence", "A1 Silence", "G Silence", "A2 Silence")

	if err := f.d.Verify(); err != nil {
		t.Errorf("unexpected replay error %v", err)
	}
}

func TestAbortTransmission(t *testing.T) {
	f := newFixture(t, WithQuietInterval(30*time.Second))
	g := f.ground("G", kpao, towerFrequency)
	a1 := f.air("A1", math.Offset2LL(kpao, 90, 5), 1500, towerFrequency)
	f.powerOn(g, a1)
	f.events = nil

	if err := f.m.BeginTransmission(g); err != nil {
		t.Fatal(err)
	}
	if err := f.m.AbortTransmission(g); err != nil {
		t.Fatal(err)
	}
	f.expectEvents("abort", "G Transmitting", "A1 ReceivingSingleTransmission", "A1 DetectingSilence",
		"G DetectingSilence")

	if err := f.d.RunFor(29 * time.Second); err != nil {
		t.Fatal(err)
	}
	f.expectStatus(g, StatusDetectingSilence)
	if err := f.d.RunFor(time.Second); err != nil {
		t.Fatal(err)
	}
	f.expectStatus(g, StatusSilence)
	f.expectStatus(a1, StatusSilence)
}

func TestNewTransmissionCancelsQuietTimer(t *testing.T) {
	f := newFixture(t)
	g := f.ground("G", kpao, towerFrequency)
	a1 := f.air("A1", math.Offset2LL(kpao, 90, 5), 1500, towerFrequency)
	f.powerOn(g, a1)

	if err := f.m.BeginTransmission(a1); err != nil {
		t.Fatal(err)
	}
	if err := f.m.CompleteTransmission(a1, downwind(f)); err != nil {
		t.Fatal(err)
	}
	if err := f.d.RunFor(5 * time.Second); err != nil {
		t.Fatal(err)
	}
	if err := f.m.BeginTransmission(g); err != nil {
		t.Fatal(err)
	}
	if err := f.d.RunFor(time.Minute); err != nil {
		t.Fatal(err)
	}
	f.expectStatus(g, StatusTransmitting)
	f.expectStatus(a1, StatusReceivingSingleTransmission)
}

func TestCollision(t *testing.T) {
	f := newFixture(t)
	g := f.ground("G", kpao, towerFrequency)
	a1 := f.air("A1", math.Offset2LL(kpao, 90, 5), 1500, towerFrequency)
	a2 := f.air("A2", math.Offset2LL(kpao, 180, 8), 2000, towerFrequency)
	a3 := f.air("A3", math.Offset2LL(kpao, 270, 3), 1000, towerFrequency)
	f.powerOn(g, a1, a2, a3)

	if err := f.m.BeginTransmission(a1); err != nil {
		t.Fatal(err)
	}
	if err := f.m.BeginTransmission(a3); err != nil {
		t.Fatal(err)
	}
	f.events = nil
	f.expectStatus(g, StatusReceivingMultipleTransmissions)
	f.expectStatus(a2, StatusReceivingMultipleTransmissions)

	if err := f.m.CompleteTransmission(a1, downwind(f)); err != nil {
		t.Fatal(err)
	}
	f.expectEvents("first completes", "A1 DetectingSilence")
	f.expectStatus(g, StatusReceivingMultipleTransmissions)

	if err := f.m.CompleteTransmission(a3, downwind(f)); err != nil {
		t.Fatal(err)
	}
	f.expectEvents("second completes", "A2 DetectingSilence", "G DetectingSilence", "A3 DetectingSilence")
}

func TestCollisionSenderWaitsForSilence(t *testing.T) {
	f := newFixture(t)
	g := f.ground("G", kpao, towerFrequency)
	a1 := f.air("A1", math.Offset2LL(kpao, 90, 5), 1500, towerFrequency)
	a3 := f.air("A3", math.Offset2LL(kpao, 270, 3), 1000, towerFrequency)
	f.powerOn(g, a1, a3)

	if err := f.m.BeginTransmission(a1); err != nil {
		t.Fatal(err)
	}
	if err := f.m.BeginTransmission(a3); err != nil {
		t.Fatal(err)
	}
	if err := f.m.CompleteTransmission(a1, downwind(f)); err != nil {
		t.Fatal(err)
	}

	// A3 is still on the air, so A1 must not return to Silence.
	if err := f.d.RunFor(2*DefaultQuietInterval + time.Second); err != nil {
		t.Fatal(err)
	}
	f.expectStatus(a1, StatusDetectingSilence)
	f.expectStatus(a3, StatusTransmitting)

	if err := f.m.CompleteTransmission(a3, downwind(f)); err != nil {
		t.Fatal(err)
	}
	if err := f.d.RunFor(2 * DefaultQuietInterval); err != nil {
		t.Fatal(err)
	}
	for _, s := range []Station{g, a1, a3} {
		f.expectStatus(s, StatusSilence)
	}
}

func TestTransmissionErrors(t *testing.T) {
	f := newFixture(t)
	g := f.ground("G", kpao, towerFrequency)

	if err := f.m.BeginTransmission(g); !errors.Is(err, ErrPoweredOff) {
		t.Errorf("expected ErrPoweredOff, got %v", err)
	}
	f.powerOn(g)
	if err := f.m.CompleteTransmission(g, downwind(f)); !errors.Is(err, ErrNotTransmitting) {
		t.Errorf("expected ErrNotTransmitting, got %v", err)
	}
	if err := f.m.BeginTransmission(g); err != nil {
		t.Fatal(err)
	}
	if err := f.m.BeginTransmission(g); !errors.Is(err, ErrAlreadyTransmitting) {
		t.Errorf("expected ErrAlreadyTransmitting, got %v", err)
	}

	if _, err := f.m.NewStation(StationConfig{Callsign: "X"}); !errors.Is(err, ErrInvalidStation) {
		t.Errorf("expected ErrInvalidStation, got %v", err)
	}
}

func TestGroups(t *testing.T) {
	f := newFixture(t)

	// Far apart: never in the same group.
	east := f.air("EAST", math.Point2LL{40, 40}, 35000, towerFrequency)
	west := f.air("WEST", math.Point2LL{-140, 40}, 35000, towerFrequency)
	// Within normal VHF range.
	g := f.ground("G", kpao, towerFrequency)
	near := f.air("NEAR", math.Offset2LL(kpao, 45, 15), 3000, towerFrequency)
	// Close by, but on another frequency.
	ground := f.ground("GND", math.Offset2LL(kpao, 0, 0.5), 121700)
	// Two ground stations beyond the ground-to-ground minimum range.
	far := f.ground("FAR", math.Offset2LL(kpao, 0, 30), towerFrequency)

	f.powerOn(east, west, g, near, ground, far)

	for _, test := range []struct {
		s        Station
		expected []string
	}{
		{s: east, expected: []string{"EAST"}},
		{s: west, expected: []string{"WEST"}},
		{s: g, expected: []string{"FAR", "NEAR", "G"}},
		{s: near, expected: []string{"FAR", "NEAR", "G"}},
		{s: ground, expected: []string{"GND"}},
	} {
		group, err := f.m.GroupOf(test.s)
		if err != nil {
			t.Fatal(err)
		}
		if cs := callsigns(t, group); !slices.Equal(cs, test.expected) {
			t.Errorf("expected %v, got %v", test.expected, cs)
		}
	}

	// FAR reaches NEAR, which is airborne, so all three are connected.
	group, err := f.m.GroupOf(far)
	if err != nil {
		t.Fatal(err)
	}
	if cs := callsigns(t, group); !slices.Equal(cs, []string{"FAR", "NEAR", "G"}) {
		t.Errorf("expected [FAR NEAR G], got %v", cs)
	}
	gs, _ := g.State()
	fs, _ := far.State()
	if f.m.Reachable(gs, fs) {
		t.Errorf("expected G and FAR not to reach one another directly")
	}

	// Retuning leaves the group and rejoins as the most recent member.
	if err := f.m.Tune(near, 121700); err != nil {
		t.Fatal(err)
	}
	group, _ = f.m.GroupOf(g)
	if cs := callsigns(t, group); !slices.Equal(cs, []string{"G"}) {
		t.Errorf("expected [G], got %v", cs)
	}
	group, _ = f.m.GroupOf(ground)
	if cs := callsigns(t, group); !slices.Equal(cs, []string{"NEAR", "GND"}) {
		t.Errorf("expected [NEAR GND], got %v", cs)
	}

	// Moving brings a station into range; once it has landed, it is too
	// low to reach FAR.
	if err := f.m.Move(west, math.Offset2LL(kpao, 180, 10), 0, false); err != nil {
		t.Fatal(err)
	}
	group, _ = f.m.GroupOf(g)
	if cs := callsigns(t, group); !slices.Equal(cs, []string{"G", "WEST"}) {
		t.Errorf("expected [G WEST], got %v", cs)
	}

	// Stations that are off belong to no group.
	if err := f.m.PowerOff(g); err != nil {
		t.Fatal(err)
	}
	if group, _ := f.m.GroupOf(g); len(group) != 0 {
		t.Errorf("expected no group, got %v", callsigns(t, group))
	}
}

func TestRange(t *testing.T) {
	f := newFixture(t, WithRange(10, 100))
	for _, test := range []struct {
		ha, hb, expected float32
	}{
		{ha: 6, hb: 6, expected: 10},
		{ha: 30, hb: 3000, expected: 1.23 * (math.Sqrt(30) + math.Sqrt(3000))},
		{ha: 35000, hb: 35000, expected: 100},
		// The higher station extends the range even when the lower one stays put.
		{ha: 30, hb: 1500, expected: 1.23 * (math.Sqrt(30) + math.Sqrt(1500))},
	} {
		if r := f.m.Range(test.ha, test.hb); math.Abs(r-test.expected) > 0.01 {
			t.Errorf("%v/%v: expected %v, got %v", test.ha, test.hb, test.expected, r)
		}
	}
}

func TestTransmissionUndoneByRestore(t *testing.T) {
	f := newFixture(t)
	g := f.ground("G", kpao, towerFrequency)
	a1 := f.air("A1", math.Offset2LL(kpao, 90, 5), 1500, towerFrequency)
	f.powerOn(g, a1)

	snap := f.d.TakeSnapshot()
	if err := f.m.BeginTransmission(a1); err != nil {
		t.Fatal(err)
	}
	if err := f.m.CompleteTransmission(a1, downwind(f)); err != nil {
		t.Fatal(err)
	}
	f.expectStatus(g, StatusDetectingSilence)

	if err := f.d.Restore(snap); err != nil {
		t.Fatal(err)
	}
	f.expectStatus(g, StatusSilence)
	f.expectStatus(a1, StatusSilence)
	if _, ok := f.d.NextDue(); ok {
		t.Errorf("expected the quiet timers to be gone after restore")
	}

	group, err := f.m.GroupOf(g)
	if err != nil {
		t.Fatal(err)
	}
	if cs := callsigns(t, group); !slices.Equal(cs, []string{"A1", "G"}) {
		t.Errorf("expected [A1 G], got %v", cs)
	}
	if err := f.m.BeginTransmission(g); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}
