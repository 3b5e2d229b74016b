// world/pilot.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package world

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/conversation"
	"github.com/felix-b/atc/math"
	"github.com/felix-b/atc/radio"
	"github.com/felix-b/atc/refdata"
	"github.com/felix-b/atc/sim"
	"github.com/felix-b/atc/speech"
)

// PilotTag is the actor type tag of pilots.
const PilotTag sim.TypeTag = "world.pilot"

// How long the parts of a flight take that involve no talking.
const (
	TaxiTime     = 2 * time.Minute
	ClimbOutTime = 2 * time.Minute
	FinalTime    = 90 * time.Second
)

type Pilot = sim.Handle[PilotState]

type Phase uint8

const (
	PhaseParked Phase = iota
	PhaseTaxiing
	PhaseHoldingShort
	PhaseDeparting
	PhaseDeparted
	PhaseDownwind
	PhaseFinal
	PhaseGoingAround
	PhaseLanded
)

func (p Phase) String() string {
	if int(p) >= len(phaseNames) {
		return fmt.Sprintf("Phase(%d)", p)
	}
	return phaseNames[p]
}

var phaseNames = [...]string{"Parked", "Taxiing", "HoldingShort", "Departing", "Departed", "Downwind",
	"Final", "GoingAround", "Landed"}

// Airborne reports whether the aircraft is flying in this phase.
func (p Phase) Airborne() bool {
	return p >= PhaseDeparting && p <= PhaseGoingAround
}

type PilotConfig struct {
	Callsign   aviation.Callsign   `yaml:"callsign"`
	Airport    string              `yaml:"airport"`
	Ramp       string              `yaml:"ramp"`
	Voice      speech.Voice        `yaml:"voice"`
	Rate       float32             `yaml:"rate"`
	FlightPlan aviation.FlightPlan `yaml:"flight_plan"`
}

type pilotActivation struct {
	Config  PilotConfig
	Airport refdata.Airport
	Station radio.Station
}

type PilotState struct {
	AgentState

	Airport  refdata.Airport
	Ramp     string
	Plan     aviation.FlightPlan
	Phase    Phase
	Position math.Point2LL
	Altitude float32
}

func (p PilotState) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("callsign", string(p.Callsign)),
		slog.String("phase", p.Phase.String()),
		slog.String("state", p.Machine.State()),
		slog.Float64("altitude", float64(p.Altitude)))
}

type pilotMoved struct {
	Phase    Phase
	Position math.Point2LL
	Altitude float32
}

func (w *World) pilotType() sim.ActorType[PilotState] {
	return sim.ActorType[PilotState]{
		Tag:     PilotTag,
		New:     w.newPilot,
		Reduce:  reducePilot,
		Receive: w.receivePilot,
	}
}

func (w *World) newPilot(c *sim.Context, activation any) (PilotState, error) {
	act, ok := activation.(pilotActivation)
	if !ok {
		return PilotState{}, fmt.Errorf("%T: %w", activation, ErrInvalidActivation)
	}
	def, err := w.pilotDefinition(act.Airport, act.Config.FlightPlan)
	if err != nil {
		return PilotState{}, err
	}

	return PilotState{
		AgentState: AgentState{
			Callsign: act.Config.Callsign,
			Role:     speech.RolePilot,
			Voice:    act.Config.Voice,
			Rate:     act.Config.Rate,
			Station:  act.Station,
			Machine:  def.NewMachine(),
		},
		Airport:  act.Airport,
		Ramp:     act.Config.Ramp,
		Plan:     act.Config.FlightPlan,
		Phase:    PhaseParked,
		Position: act.Airport.Location,
		Altitude: float32(act.Airport.Elevation),
	}, nil
}

func reducePilot(s PilotState, e sim.Event) PilotState {
	switch e := e.(type) {
	case agentEvent:
		s.AgentState = e.apply(s.AgentState)
	case pilotMoved:
		s.Phase, s.Position, s.Altitude = e.Phase, e.Position, e.Altitude
	}
	return s
}

func (w *World) pilotTransceiver(p Pilot) transceiver[PilotState] {
	return transceiver[PilotState]{w: w, self: p, agent: func(s PilotState) AgentState { return s.AgentState }}
}

func (w *World) receivePilot(c *sim.Context, self Pilot, msg any) error {
	t := w.pilotTransceiver(self)
	m, ok, err := t.handle(msg)
	if err != nil || !ok {
		return err
	}
	// Pilots only answer what is addressed to them.
	if m.MessageHeader().To == self.ID() {
		t.receive(m)
	}
	return nil
}

// NewPilot creates an aircraft parked at its airport with its radio on,
// and starts its flight. It calls into the medium directly, so it must not
// be called from a radio notification.
func (w *World) NewPilot(cfg PilotConfig) (Pilot, error) {
	ap, err := w.refdata.Airport(cfg.Airport)
	if err != nil {
		return Pilot{}, fmt.Errorf("%s: %w", cfg.Callsign, err)
	}
	if cfg.FlightPlan.Rules == aviation.FlightRulesUnknown {
		cfg.FlightPlan.Rules = aviation.FlightRulesVFR
	}
	if cfg.FlightPlan.DepartureAirport == "" {
		cfg.FlightPlan.DepartureAirport = ap.ICAO
	}
	if cfg.FlightPlan.DepartureRunway == "" {
		cfg.FlightPlan.DepartureRunway = ap.ActiveRunway().ID
	}

	first := FacilityGround
	if cfg.FlightPlan.Rules == aviation.FlightRulesIFR {
		first = FacilityClearance
	}
	station, err := w.medium.NewStation(radio.StationConfig{
		Callsign:  cfg.Callsign,
		Frequency: first.Frequency(ap),
		Location:  ap.Location,
		Elevation: float32(ap.Elevation),
		Antenna:   radio.MinAntennaHeight,
	})
	if err != nil {
		return Pilot{}, err
	}

	p, err := sim.Create[PilotState](w.d, PilotTag, pilotActivation{Config: cfg, Airport: ap, Station: station})
	if err != nil {
		return Pilot{}, err
	}
	if err := w.medium.AddListener(station, p.Ref); err != nil {
		return Pilot{}, err
	}
	if err := w.medium.PowerOn(station); err != nil {
		return Pilot{}, err
	}

	w.lg.Info("pilot created", slog.Any("pilot", p), slog.String("callsign", string(cfg.Callsign)),
		slog.String("airport", ap.ICAO), slog.String("rules", cfg.FlightPlan.Rules.String()))
	w.post(Event{Kind: EventMoved, Actor: p.ID(), Callsign: cfg.Callsign, Position: ap.Location,
		Altitude: float32(ap.Elevation), Phase: PhaseParked})

	return p, conversation.Start(w.pilotTransceiver(p).context())
}

///////////////////////////////////////////////////////////////////////////
// Flight script

// pilotScript builds the conversation definition that takes an aircraft
// from the ramp around the pattern, or out to its departure frequency if
// it is going somewhere else.
type pilotScript struct {
	w    *World
	ap   refdata.Airport
	plan aviation.FlightPlan
}

func (w *World) pilotDefinition(ap refdata.Airport, plan aviation.FlightPlan) (*conversation.Definition, error) {
	ps := pilotScript{w: w, ap: ap, plan: plan}
	timeout := w.replyTimeout
	b := conversation.NewBuilder("pilot/" + ap.ICAO + "/" + plan.Rules.String())

	initial := "TAXI"
	if plan.Rules == aviation.FlightRulesIFR {
		initial = "CLEARANCE"
		b.Conversation("CLEARANCE").
			Monitor(FacilityClearance.Frequency(ap)).
			Transmit(ps.clearanceRequest, "").
			Receive(aviation.MessageIFRClearance, true, ps.clearanceReadback, "TAXI").
			Timeout(timeout, "")
	}

	b.Conversation("TAXI").
		Monitor(FacilityGround.Frequency(ap)).
		Transmit(ps.taxiRequest, "").
		Receive(aviation.MessageTaxiClearance, true, ps.taxiReadback, "TAXIING").
		Timeout(timeout, "")

	b.Sequence("TAXIING",
		conversation.Do(ps.move(PhaseTaxiing)),
		conversation.Delay(TaxiTime),
		conversation.Do(ps.move(PhaseHoldingShort)),
		conversation.GoTo("DEPARTURE"))

	afterTakeoff := "DOWNWIND"
	if !plan.IsLocal() {
		afterTakeoff = "DEPARTED"
	}

	b.Conversation("DEPARTURE").
		Monitor(FacilityTower.Frequency(ap)).
		Transmit(ps.readyForDeparture, "").
		Receive(aviation.MessageTakeoffClearance, true, ps.takeoffReadback, "CLIMBOUT").
		Timeout(timeout, "")

	b.Sequence("CLIMBOUT",
		conversation.Do(ps.move(PhaseDeparting)),
		conversation.Delay(ClimbOutTime),
		conversation.GoTo(afterTakeoff))

	if plan.IsLocal() {
		b.Conversation("DOWNWIND").
			Transmit(ps.patternReport, "").
			Receive(aviation.MessageLandingClearance, true, ps.landingReadback, "FINAL").
			Timeout(timeout, "").
			OnEnter(ps.move(PhaseDownwind))

		b.Sequence("FINAL",
			conversation.Do(ps.move(PhaseFinal)),
			conversation.Delay(FinalTime),
			conversation.Do(ps.move(PhaseLanded)),
			conversation.GoTo("LANDED")).
			OnMessage(aviation.MessageGoAround, "GO_AROUND", true).
			Inherit()

		b.Sequence("GO_AROUND",
			conversation.Do(ps.move(PhaseGoingAround)),
			conversation.Delay(ClimbOutTime),
			conversation.GoTo("DOWNWIND"))

		b.State("LANDED")
	} else {
		cb := b.Conversation("DEPARTED")
		if f := ap.Frequencies.Departure; f != 0 {
			cb.Monitor(f)
		}
		cb.OnEnter(ps.move(PhaseDeparted))
	}

	return b.Build(initial)
}

func (ps pilotScript) self(c *conversation.Context) (PilotState, error) {
	return Pilot{Ref: c.Self}.State()
}

func (ps pilotScript) header(c *conversation.Context, t aviation.MessageType, to aviation.Party) (aviation.Header, error) {
	st, err := ps.self(c)
	if err != nil {
		return aviation.Header{}, err
	}
	from := aviation.Party{ID: c.Self.ID(), Callsign: st.Callsign}
	return aviation.NewHeader(t, from, to, c.Now()), nil
}

// call addresses a facility; the pilot does not know who is working it.
func (ps pilotScript) call(c *conversation.Context, t aviation.MessageType, f Facility) (aviation.Header, error) {
	return ps.header(c, t, aviation.Party{Callsign: f.Callsign(ps.ap)})
}

// runway is the runway the pilot was cleared to taxi to, or the planned
// one.
func (ps pilotScript) runway(c *conversation.Context) string {
	m, err := c.Machine()
	if err != nil {
		return ps.plan.DepartureRunway
	}
	if tc, err := conversation.Recall[aviation.TaxiClearance](m, aviation.MessageTaxiClearance); err == nil {
		return tc.Runway
	}
	return ps.plan.DepartureRunway
}

func (ps pilotScript) clearanceRequest(c *conversation.Context) (aviation.Message, error) {
	h, err := ps.call(c, aviation.MessageClearanceRequest, FacilityClearance)
	if err != nil {
		return nil, err
	}
	return aviation.ClearanceRequest{Header: h, Destination: ps.plan.ArrivalAirport, ATIS: ps.ap.ATIS,
		Rules: ps.plan.Rules}, nil
}

func (ps pilotScript) clearanceReadback(c *conversation.Context) (aviation.Message, error) {
	m, err := c.Machine()
	if err != nil {
		return nil, err
	}
	clr, err := conversation.Recall[aviation.IFRClearance](m, aviation.MessageIFRClearance)
	if err != nil {
		return nil, err
	}
	h, err := ps.header(c, aviation.MessageClearanceReadback, clr.Sender())
	if err != nil {
		return nil, err
	}
	return aviation.ClearanceReadback{Header: h, Squawk: clr.Squawk}, nil
}

func (ps pilotScript) taxiRequest(c *conversation.Context) (aviation.Message, error) {
	st, err := ps.self(c)
	if err != nil {
		return nil, err
	}
	h, err := ps.call(c, aviation.MessageTaxiRequest, FacilityGround)
	if err != nil {
		return nil, err
	}
	return aviation.TaxiRequest{Header: h, Location: st.Ramp, ATIS: ps.ap.ATIS}, nil
}

func (ps pilotScript) taxiReadback(c *conversation.Context) (aviation.Message, error) {
	m, err := c.Machine()
	if err != nil {
		return nil, err
	}
	tc, err := conversation.Recall[aviation.TaxiClearance](m, aviation.MessageTaxiClearance)
	if err != nil {
		return nil, err
	}
	h, err := ps.header(c, aviation.MessageTaxiReadback, tc.Sender())
	if err != nil {
		return nil, err
	}
	return aviation.TaxiReadback{Header: h, Runway: tc.Runway, HoldShort: tc.HoldShort}, nil
}

func (ps pilotScript) readyForDeparture(c *conversation.Context) (aviation.Message, error) {
	h, err := ps.call(c, aviation.MessageReadyForDeparture, FacilityTower)
	if err != nil {
		return nil, err
	}
	return aviation.ReadyForDeparture{Header: h, Runway: ps.runway(c)}, nil
}

func (ps pilotScript) takeoffReadback(c *conversation.Context) (aviation.Message, error) {
	m, err := c.Machine()
	if err != nil {
		return nil, err
	}
	tc, err := conversation.Recall[aviation.TakeoffClearance](m, aviation.MessageTakeoffClearance)
	if err != nil {
		return nil, err
	}
	h, err := ps.header(c, aviation.MessageTakeoffReadback, tc.Sender())
	if err != nil {
		return nil, err
	}
	return aviation.TakeoffReadback{Header: h, Runway: tc.Runway}, nil
}

func (ps pilotScript) patternReport(c *conversation.Context) (aviation.Message, error) {
	h, err := ps.call(c, aviation.MessagePatternReport, FacilityTower)
	if err != nil {
		return nil, err
	}
	return aviation.PatternReport{Header: h, Leg: "downwind", Runway: ps.runway(c)}, nil
}

func (ps pilotScript) landingReadback(c *conversation.Context) (aviation.Message, error) {
	m, err := c.Machine()
	if err != nil {
		return nil, err
	}
	lc, err := conversation.Recall[aviation.LandingClearance](m, aviation.MessageLandingClearance)
	if err != nil {
		return nil, err
	}
	h, err := ps.header(c, aviation.MessageLandingReadback, lc.Sender())
	if err != nil {
		return nil, err
	}
	return aviation.LandingReadback{Header: h, Runway: lc.Runway}, nil
}

// move returns a callback that puts the aircraft where it is in the given
// phase of the flight and moves its radio along.
func (ps pilotScript) move(phase Phase) conversation.Callback {
	return func(c *conversation.Context) error {
		st, err := ps.self(c)
		if err != nil {
			return err
		}
		pos, alt := ps.positionFor(c, phase)

		p := Pilot{Ref: c.Self}
		if err := p.Dispatch(pilotMoved{Phase: phase, Position: pos, Altitude: alt}); err != nil {
			return err
		}
		c.Domain.Logger().Info("pilot moved", slog.String("callsign", string(st.Callsign)),
			slog.String("phase", phase.String()))
		ps.w.post(Event{Kind: EventMoved, Actor: p.ID(), Callsign: st.Callsign, Position: pos, Altitude: alt,
			Phase: phase})

		station := st.Station
		ps.w.pilotTransceiver(p).later(func() error {
			return ps.w.medium.Move(station, pos, alt, phase.Airborne())
		})
		return nil
	}
}

// positionFor places the aircraft relative to the threshold of its runway.
// Pattern legs are a mile from the runway on the side of the traffic
// direction.
func (ps pilotScript) positionFor(c *conversation.Context, phase Phase) (math.Point2LL, float32) {
	elev := float32(ps.ap.Elevation)
	pattern := float32(ps.ap.PatternAltitude)
	if pattern == 0 {
		pattern = elev + 1000
	}

	rwy, ok := ps.ap.Runway(ps.runway(c))
	if !ok {
		rwy = ps.ap.ActiveRunway()
	}
	if rwy.Threshold.IsZero() {
		rwy.Threshold = ps.ap.Location
	}

	traffic := rwy.Traffic
	if m, err := c.Machine(); err == nil {
		if tc, err := conversation.Recall[aviation.TakeoffClearance](m, aviation.MessageTakeoffClearance); err == nil &&
			tc.Traffic != "" {
			traffic = tc.Traffic
		}
	}
	side := float32(-90)
	if traffic == "right" {
		side = 90
	}

	switch phase {
	case PhaseParked:
		return ps.ap.Location, elev
	case PhaseTaxiing:
		return math.Offset2LL(ps.ap.Location, rwy.Heading+180, 0.2), elev
	case PhaseHoldingShort, PhaseLanded:
		return rwy.Threshold, elev
	case PhaseDeparting, PhaseGoingAround:
		return math.Offset2LL(rwy.Threshold, rwy.Heading, 1.5), elev + 500
	case PhaseDownwind:
		return math.Offset2LL(rwy.Threshold, rwy.Heading+side, 1), pattern
	case PhaseFinal:
		return math.Offset2LL(rwy.Threshold, rwy.Heading+180, 2), elev + 600
	default:
		return math.Offset2LL(rwy.Threshold, rwy.Heading, 5), max(pattern, float32(ps.plan.Altitude))
	}
}
