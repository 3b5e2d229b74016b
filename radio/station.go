// radio/station.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package radio

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/math"
	"github.com/felix-b/atc/sim"
)

// StationTag is the actor type tag of radio stations.
const StationTag sim.TypeTag = "radio.station"

type Status uint8

const (
	StatusOff Status = iota
	StatusSilence
	StatusTransmitting
	StatusReceivingSingleTransmission
	// StatusReceivingMultipleTransmissions is a collision: two or more
	// stations in the group are transmitting at once and none of them can
	// be understood.
	StatusReceivingMultipleTransmissions
	StatusDetectingSilence
)

func (s Status) String() string {
	switch s {
	case StatusOff:
		return "Off"
	case StatusSilence:
		return "Silence"
	case StatusTransmitting:
		return "Transmitting"
	case StatusReceivingSingleTransmission:
		return "ReceivingSingleTransmission"
	case StatusReceivingMultipleTransmissions:
		return "ReceivingMultipleTransmissions"
	case StatusDetectingSilence:
		return "DetectingSilence"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// Receiving reports whether a station with this status is hearing one or
// more transmissions.
func (s Status) Receiving() bool {
	return s == StatusReceivingSingleTransmission || s == StatusReceivingMultipleTransmissions
}

// StationConfig is the activation payload of a station.
type StationConfig struct {
	Callsign  aviation.Callsign  `yaml:"callsign"`
	Frequency aviation.Frequency `yaml:"frequency"`
	Location  math.Point2LL      `yaml:"location"`
	// Elevation is the elevation of the ground below the station, in feet.
	Elevation float32 `yaml:"elevation"`
	// Altitude is the station's altitude in feet MSL; it is only used for
	// airborne stations.
	Altitude float32 `yaml:"altitude"`
	// Antenna is the height of the antenna above the ground, in feet, for
	// stations that are not airborne.
	Antenna  float32 `yaml:"antenna"`
	Airborne bool    `yaml:"airborne"`
}

// StationState is the event-sourced state of one radio station.
type StationState struct {
	Callsign  aviation.Callsign
	Frequency aviation.Frequency
	Location  math.Point2LL
	Elevation float32
	Altitude  float32
	Antenna   float32
	Airborne  bool

	Powered bool
	// JoinedAt is the log sequence number of the station's latest power-on
	// or retune; it orders the members of propagation groups.
	JoinedAt uint64
	Status   Status
	// Garbled is set while the station hears more than one transmission.
	Garbled bool
	// Senders are the stations whose transmissions the station is
	// currently hearing.
	Senders []sim.ActorID
	// Audience holds the stations that are hearing the station's own
	// transmission, in notification order.
	Audience  []sim.ActorID
	Listeners []sim.Ref
	// Quiet is the pending DetectingSilence to Silence transition.
	Quiet sim.DelayHandle
}

// Height returns the station's antenna height above ground level in feet,
// which determines its radio horizon.
func (s StationState) Height() float32 {
	if s.Airborne {
		return max(MinAntennaHeight, s.Altitude-s.Elevation)
	}
	return max(MinAntennaHeight, s.Antenna)
}

func (s StationState) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("callsign", string(s.Callsign)),
		slog.String("frequency", s.Frequency.String()),
		slog.String("status", s.Status.String()),
		slog.Bool("powered", s.Powered),
		slog.Bool("garbled", s.Garbled),
		slog.Uint64("joined_at", s.JoinedAt))
}

// MinAntennaHeight is the height in feet used for stations whose antenna is
// lower.
const MinAntennaHeight = 6

///////////////////////////////////////////////////////////////////////////
// Events

type poweredOn struct {
	JoinedAt uint64
}

type poweredOff struct{}

type tuned struct {
	Frequency aviation.Frequency
	JoinedAt  uint64
}

type moved struct {
	Location math.Point2LL
	Altitude float32
	Airborne bool
}

// statusSet replaces the station's transceiver status along with the
// bookkeeping that goes with it.
type statusSet struct {
	Status   Status
	Garbled  bool
	Senders  []sim.ActorID
	Audience []sim.ActorID
}

type quietArmed struct {
	Handle sim.DelayHandle
}

type listenerAdded struct {
	Listener sim.Ref
}

type listenerRemoved struct {
	Listener sim.ActorID
}

func newStation(c *sim.Context, activation any) (StationState, error) {
	cfg, ok := activation.(StationConfig)
	if !ok {
		return StationState{}, fmt.Errorf("%T: %w", activation, ErrInvalidStation)
	}
	if cfg.Callsign == "" || cfg.Frequency <= 0 {
		return StationState{}, fmt.Errorf("%q on %s: %w", cfg.Callsign, cfg.Frequency, ErrInvalidStation)
	}
	return StationState{
		Callsign:  cfg.Callsign,
		Frequency: cfg.Frequency,
		Location:  cfg.Location,
		Elevation: cfg.Elevation,
		Altitude:  cfg.Altitude,
		Antenna:   cfg.Antenna,
		Airborne:  cfg.Airborne,
		Status:    StatusOff,
	}, nil
}

func reduceStation(s StationState, e sim.Event) StationState {
	switch e := e.(type) {
	case poweredOn:
		s.Powered = true
		s.JoinedAt = e.JoinedAt
		s.Status = StatusSilence
	case poweredOff:
		s.Powered = false
		s.Status = StatusOff
		s.Garbled = false
		s.Senders, s.Audience = nil, nil
		s.Quiet = sim.DelayHandle{}
	case tuned:
		s.Frequency = e.Frequency
		s.JoinedAt = e.JoinedAt
	case moved:
		s.Location = e.Location
		s.Altitude = e.Altitude
		s.Airborne = e.Airborne
	case statusSet:
		s.Status = e.Status
		s.Garbled = e.Garbled
		s.Senders = e.Senders
		s.Audience = e.Audience
		s.Quiet = sim.DelayHandle{}
	case quietArmed:
		s.Quiet = e.Handle
	case listenerAdded:
		if !slices.ContainsFunc(s.Listeners, func(r sim.Ref) bool { return r.ID() == e.Listener.ID() }) {
			s.Listeners = append(slices.Clip(s.Listeners), e.Listener)
		}
	case listenerRemoved:
		s.Listeners = slices.DeleteFunc(slices.Clone(s.Listeners),
			func(r sim.Ref) bool { return r.ID() == e.Listener })
	}
	return s
}

// StationType returns the actor type of radio stations; NewMedium
// registers it.
func StationType() sim.ActorType[StationState] {
	return sim.ActorType[StationState]{
		Tag:    StationTag,
		New:    newStation,
		Reduce: reduceStation,
	}
}

///////////////////////////////////////////////////////////////////////////
// Notifications

// StatusChanged is sent to a station's listeners when its status changes.
type StatusChanged struct {
	Station  sim.ActorID
	Callsign aviation.Callsign
	Old, New Status
}

// MessageReceived is sent to a station's listeners when it has received a
// complete transmission.
type MessageReceived struct {
	Station sim.ActorID
	From    sim.ActorID
	Message aviation.Message
}
