// world/traffic.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package world

import (
	"slices"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/math"
	"github.com/felix-b/atc/sim"
)

// Traffic is what an observer knows about an aircraft.
type Traffic struct {
	Pilot    Pilot
	Callsign aviation.Callsign
	Phase    Phase
	Position math.Point2LL
	Altitude float32
	// Distance is the distance from the center of the query in nautical
	// miles.
	Distance float32
}

// TrafficQuery selects the aircraft within RadiusNM of Center. A zero
// radius matches everything.
type TrafficQuery struct {
	Center   math.Point2LL
	RadiusNM float32
}

func (q TrafficQuery) Matches(p math.Point2LL) bool {
	return q.RadiusNM <= 0 || math.NMDistance2LL(q.Center, p) <= q.RadiusNM
}

// Traffic returns the aircraft that match q, nearest first. It must be
// called on the domain's goroutine; observers elsewhere use Watch.
func (w *World) Traffic(q TrafficQuery) ([]Traffic, error) {
	var traffic []Traffic
	for _, p := range w.Pilots() {
		st, err := p.State()
		if err != nil {
			return nil, err
		}
		if !q.Matches(st.Position) {
			continue
		}
		traffic = append(traffic, Traffic{
			Pilot:    p,
			Callsign: st.Callsign,
			Phase:    st.Phase,
			Position: st.Position,
			Altitude: st.Altitude,
			Distance: math.NMDistance2LL(q.Center, st.Position),
		})
	}

	slices.SortStableFunc(traffic, func(a, b Traffic) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})
	return traffic, nil
}

// TrafficWatch delivers the events that happen within the area of a
// query. It may be used from any goroutine.
type TrafficWatch struct {
	q   TrafficQuery
	sub *sim.Subscription[Event]
}

// Watch subscribes to the events located within q. Events posted before
// the call are not delivered.
func (w *World) Watch(q TrafficQuery) *TrafficWatch {
	return &TrafficWatch{q: q, sub: w.events.Subscribe()}
}

// Get returns the matching events since the previous call.
func (tw *TrafficWatch) Get() []Event {
	var events []Event
	for _, e := range tw.sub.Get() {
		if tw.q.Matches(e.Position) {
			events = append(events, e)
		}
	}
	return events
}

func (tw *TrafficWatch) Close() {
	tw.sub.Unsubscribe()
}
