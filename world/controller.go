// world/controller.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package world

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/conversation"
	"github.com/felix-b/atc/radio"
	"github.com/felix-b/atc/refdata"
	"github.com/felix-b/atc/sim"
	"github.com/felix-b/atc/speech"
	"github.com/felix-b/atc/util"
)

// ControllerTag is the actor type tag of controllers.
const ControllerTag sim.TypeTag = "world.controller"

const (
	// TowerAntenna is the antenna height of controllers' stations, in feet.
	TowerAntenna = 60

	DefaultInitialAltitude = 5000
	DefaultRoute           = "radar vectors"
	// LandingInterval is how long an aircraft cleared to land counts
	// towards the landing sequence.
	LandingInterval = 3 * time.Minute

	firstSquawk aviation.Squawk = 0o4201
)

const triggerAnswer conversation.Trigger = "answer"

type Controller = sim.Handle[ControllerState]

// Facility is the position a controller works at an airport.
type Facility uint8

const (
	FacilityClearance Facility = iota
	FacilityGround
	FacilityTower
)

func (f Facility) String() string {
	switch f {
	case FacilityClearance:
		return "Clearance"
	case FacilityGround:
		return "Ground"
	case FacilityTower:
		return "Tower"
	default:
		return fmt.Sprintf("Facility(%d)", f)
	}
}

func (f *Facility) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "clearance", "delivery", "clearance delivery":
		*f = FacilityClearance
	case "ground":
		*f = FacilityGround
	case "tower":
		*f = FacilityTower
	default:
		return fmt.Errorf("%q: %w", string(b), ErrInvalidFacility)
	}
	return nil
}

// Frequency returns the facility's frequency at ap. Airports without a
// clearance delivery frequency have ground issue clearances, and airports
// without a ground frequency have the tower do everything.
func (f Facility) Frequency(ap refdata.Airport) aviation.Frequency {
	fr := ap.Frequencies
	switch {
	case f == FacilityClearance && fr.Clearance != 0:
		return fr.Clearance
	case f <= FacilityGround && fr.Ground != 0:
		return fr.Ground
	default:
		return fr.Tower
	}
}

// Callsign returns how the facility at ap is addressed, e.g. "Palo Alto
// Ground".
func (f Facility) Callsign(ap refdata.Airport) aviation.Callsign {
	name := ap.Name
	if name == "" {
		name = ap.ICAO
	}
	return aviation.Callsign(name + " " + f.String())
}

// Answers reports whether a controller working f answers requests of type
// t.
func (f Facility) Answers(t aviation.MessageType) bool {
	switch t {
	case aviation.MessageClearanceRequest:
		return f == FacilityClearance
	case aviation.MessageTaxiRequest:
		return f == FacilityGround
	case aviation.MessageReadyForDeparture, aviation.MessagePatternReport:
		return f == FacilityTower
	default:
		return false
	}
}

type ControllerConfig struct {
	Airport  string       `yaml:"airport"`
	Facility Facility     `yaml:"facility"`
	Voice    speech.Voice `yaml:"voice"`
	Rate     float32      `yaml:"rate"`
	// InitialAltitude and Route go into IFR clearances.
	InitialAltitude int    `yaml:"initial_altitude"`
	Route           string `yaml:"route"`
}

type controllerActivation struct {
	Config  ControllerConfig
	Airport refdata.Airport
	Station radio.Station
}

type ControllerState struct {
	AgentState

	Airport  refdata.Airport
	Facility Facility
	Config   ControllerConfig
	// Requests are answered in the order they were heard.
	Requests   []aviation.Message
	NextSquawk aviation.Squawk
	Landings   []LandingSlot
}

// LandingSlot is an aircraft in the landing sequence.
type LandingSlot struct {
	Callsign aviation.Callsign
	Until    time.Time
}

func (s ControllerState) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("callsign", string(s.Callsign)),
		slog.String("state", s.Machine.State()),
		slog.Int("requests", len(s.Requests)))
}

// landingNumber is the position in the landing sequence that the next
// aircraft cleared to land gets at time now.
func (s ControllerState) landingNumber(now time.Time) int {
	n := 1
	for _, l := range s.Landings {
		if l.Until.After(now) {
			n++
		}
	}
	return n
}

type requestQueued struct {
	Request aviation.Message
}

// requestAnswered removes the head of the queue and does the bookkeeping
// for the answer.
type requestAnswered struct {
	Squawked bool
	Landing  *LandingSlot
	Now      time.Time
}

func (w *World) controllerType() sim.ActorType[ControllerState] {
	return sim.ActorType[ControllerState]{
		Tag:     ControllerTag,
		New:     w.newController,
		Reduce:  reduceController,
		Receive: w.receiveController,
	}
}

func (w *World) newController(c *sim.Context, activation any) (ControllerState, error) {
	act, ok := activation.(controllerActivation)
	if !ok {
		return ControllerState{}, fmt.Errorf("%T: %w", activation, ErrInvalidActivation)
	}
	def, err := w.controllerDefinition(act.Airport, act.Config)
	if err != nil {
		return ControllerState{}, err
	}

	return ControllerState{
		AgentState: AgentState{
			Callsign: act.Config.Facility.Callsign(act.Airport),
			Role:     speech.RoleController,
			Voice:    act.Config.Voice,
			Rate:     act.Config.Rate,
			Station:  act.Station,
			Machine:  def.NewMachine(),
		},
		Airport:    act.Airport,
		Facility:   act.Config.Facility,
		Config:     act.Config,
		NextSquawk: firstSquawk,
	}, nil
}

func reduceController(s ControllerState, e sim.Event) ControllerState {
	switch e := e.(type) {
	case agentEvent:
		s.AgentState = e.apply(s.AgentState)

	case requestQueued:
		s.Requests = append(slices.Clip(s.Requests), e.Request)

	case requestAnswered:
		if len(s.Requests) > 0 {
			s.Requests = slices.Clone(s.Requests[1:])
		}
		if e.Squawked {
			s.NextSquawk = nextSquawk(s.NextSquawk)
		}
		s.Landings = util.FilterSlice(s.Landings, func(l LandingSlot) bool {
			return l.Until.After(e.Now)
		})
		if e.Landing != nil {
			s.Landings = append(s.Landings, *e.Landing)
		}
	}
	return s
}

// nextSquawk skips codes ending in 00, which are reserved for blocks.
func nextSquawk(sq aviation.Squawk) aviation.Squawk {
	sq++
	if sq > 0o7777 {
		sq = firstSquawk
	}
	if sq%0o100 == 0 {
		sq++
	}
	return sq
}

func (w *World) controllerTransceiver(c Controller) transceiver[ControllerState] {
	return transceiver[ControllerState]{w: w, self: c,
		agent: func(s ControllerState) AgentState { return s.AgentState }}
}

// receiveController queues the requests that the controller's facility
// answers. Everything else, readbacks included, is ignored.
func (w *World) receiveController(c *sim.Context, self Controller, msg any) error {
	t := w.controllerTransceiver(self)
	m, ok, err := t.handle(msg)
	if err != nil || !ok {
		return err
	}

	st, err := self.State()
	if err != nil {
		return err
	}
	h := m.MessageHeader()
	if !st.Facility.Answers(h.Type) {
		return nil
	}
	if (h.To != "" && h.To != self.ID()) || (h.ToCallsign != "" && h.ToCallsign != st.Callsign) {
		return nil
	}
	if slices.ContainsFunc(st.Requests, func(r aviation.Message) bool {
		return r.MessageHeader().From == h.From && r.MessageHeader().Type == h.Type
	}) {
		// A repeated call from someone who is already waiting.
		return nil
	}

	if err := self.Dispatch(requestQueued{Request: m}); err != nil {
		return err
	}
	w.lg.Debug("request queued", slog.String("controller", string(st.Callsign)), slog.Any("request", h))

	if st.Machine.In("LISTEN") {
		t.fire(triggerAnswer)
	}
	return nil
}

// NewController creates a controller for a facility at an airport with its
// radio on and listening. Like NewPilot it must not be called from a radio
// notification.
func (w *World) NewController(cfg ControllerConfig) (Controller, error) {
	ap, err := w.refdata.Airport(cfg.Airport)
	if err != nil {
		return Controller{}, fmt.Errorf("%s %s: %w", cfg.Airport, cfg.Facility, err)
	}
	if cfg.InitialAltitude == 0 {
		cfg.InitialAltitude = DefaultInitialAltitude
	}
	if cfg.Route == "" {
		cfg.Route = DefaultRoute
	}

	station, err := w.medium.NewStation(radio.StationConfig{
		Callsign:  cfg.Facility.Callsign(ap),
		Frequency: cfg.Facility.Frequency(ap),
		Location:  ap.Location,
		Elevation: float32(ap.Elevation),
		Antenna:   TowerAntenna,
	})
	if err != nil {
		return Controller{}, err
	}

	ctl, err := sim.Create[ControllerState](w.d, ControllerTag,
		controllerActivation{Config: cfg, Airport: ap, Station: station})
	if err != nil {
		return Controller{}, err
	}
	if err := w.medium.AddListener(station, ctl.Ref); err != nil {
		return Controller{}, err
	}
	if err := w.medium.PowerOn(station); err != nil {
		return Controller{}, err
	}

	w.lg.Info("controller created", slog.Any("controller", ctl),
		slog.String("callsign", string(cfg.Facility.Callsign(ap))),
		slog.String("frequency", cfg.Facility.Frequency(ap).String()))
	return ctl, conversation.Start(w.controllerTransceiver(ctl).context())
}

///////////////////////////////////////////////////////////////////////////
// Answers

type controllerScript struct {
	w   *World
	ap  refdata.Airport
	cfg ControllerConfig
}

// controllerDefinition listens until there is a request and then answers
// the oldest one.
func (w *World) controllerDefinition(ap refdata.Airport, cfg ControllerConfig) (*conversation.Definition, error) {
	cs := controllerScript{w: w, ap: ap, cfg: cfg}
	b := conversation.NewBuilder("controller/" + ap.ICAO + "/" + cfg.Facility.String())

	b.Conversation("LISTEN").
		Monitor(cfg.Facility.Frequency(ap)).
		OnEnter(cs.answerPending).
		On(triggerAnswer, "ANSWER")

	b.Conversation("ANSWER").
		Transmit(cs.answer, "ANSWERED")

	b.Sequence("ANSWERED",
		conversation.Do(cs.dequeue),
		conversation.GoTo("LISTEN"))

	return b.Build("LISTEN")
}

func (cs controllerScript) self(c *conversation.Context) (ControllerState, error) {
	return Controller{Ref: c.Self}.State()
}

func (cs controllerScript) answerPending(c *conversation.Context) error {
	st, err := cs.self(c)
	if err != nil {
		return err
	}
	if len(st.Requests) > 0 {
		cs.w.controllerTransceiver(Controller{Ref: c.Self}).fire(triggerAnswer)
	}
	return nil
}

func (cs controllerScript) answer(c *conversation.Context) (aviation.Message, error) {
	st, err := cs.self(c)
	if err != nil {
		return nil, err
	}
	if len(st.Requests) == 0 {
		return nil, fmt.Errorf("%s: nothing to answer", st.Callsign)
	}
	req := st.Requests[0]

	from := aviation.Party{ID: c.Self.ID(), Callsign: st.Callsign}
	header := func(t aviation.MessageType) aviation.Header {
		return aviation.NewHeader(t, from, req.MessageHeader().Sender(), c.Now())
	}
	rwy := cs.ap.ActiveRunway()

	switch req := req.(type) {
	case aviation.ClearanceRequest:
		return aviation.IFRClearance{
			Header:             header(aviation.MessageIFRClearance),
			Destination:        req.Destination,
			Route:              cs.cfg.Route,
			InitialAltitude:    cs.cfg.InitialAltitude,
			DepartureFrequency: cs.ap.Frequencies.Departure,
			Squawk:             st.NextSquawk,
		}, nil

	case aviation.TaxiRequest:
		tc := aviation.TaxiClearance{
			Header:         header(aviation.MessageTaxiClearance),
			Runway:         rwy.ID,
			TowerFrequency: FacilityTower.Frequency(cs.ap),
		}
		if tr, ok := cs.ap.TaxiRoute(req.Location, rwy.ID); ok {
			tc.Taxiways, tc.HoldShort = slices.Clone(tr.Taxiways), tr.HoldShort
		}
		if tc.TowerFrequency == cs.cfg.Facility.Frequency(cs.ap) {
			tc.TowerFrequency = 0
		}
		return tc, nil

	case aviation.ReadyForDeparture:
		runway := req.Runway
		if runway == "" {
			runway = rwy.ID
		}
		traffic := rwy.Traffic
		if r, ok := cs.ap.Runway(runway); ok {
			traffic = r.Traffic
		}
		if traffic == "" {
			traffic = "left"
		}
		return aviation.TakeoffClearance{Header: header(aviation.MessageTakeoffClearance), Runway: runway,
			Traffic: traffic}, nil

	case aviation.PatternReport:
		runway := req.Runway
		if runway == "" {
			runway = rwy.ID
		}
		return aviation.LandingClearance{Header: header(aviation.MessageLandingClearance), Runway: runway,
			Number: st.landingNumber(c.Now())}, nil

	default:
		return nil, fmt.Errorf("%s: %w", aviation.TypeOf(req), speech.ErrUnsupportedMessageType)
	}
}

func (cs controllerScript) dequeue(c *conversation.Context) error {
	st, err := cs.self(c)
	if err != nil {
		return err
	}
	if len(st.Requests) == 0 {
		return nil
	}

	ev := requestAnswered{Now: c.Now()}
	switch req := st.Requests[0].(type) {
	case aviation.ClearanceRequest:
		ev.Squawked = true
	case aviation.PatternReport:
		ev.Landing = &LandingSlot{Callsign: req.FromCallsign, Until: c.Now().Add(LandingInterval)}
	}
	return Controller{Ref: c.Self}.Dispatch(ev)
}
