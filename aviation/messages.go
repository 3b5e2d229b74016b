// aviation/messages.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package aviation

import (
	"log/slog"
	"time"

	"github.com/felix-b/atc/sim"
)

// MessageType discriminates conversational messages; conversation state
// machines match and memorize messages by type.
type MessageType string

const (
	MessageClearanceRequest  MessageType = "ClearanceRequest"
	MessageIFRClearance      MessageType = "IFRClearance"
	MessageClearanceReadback MessageType = "ClearanceReadback"
	MessageTaxiRequest       MessageType = "TaxiRequest"
	MessageTaxiClearance     MessageType = "TaxiClearance"
	MessageTaxiReadback      MessageType = "TaxiReadback"
	MessageReadyForDeparture MessageType = "ReadyForDeparture"
	MessageTakeoffClearance  MessageType = "TakeoffClearance"
	MessageTakeoffReadback   MessageType = "TakeoffReadback"
	MessagePatternReport     MessageType = "PatternReport"
	MessageLandingClearance  MessageType = "LandingClearance"
	MessageLandingReadback   MessageType = "LandingReadback"
	MessageGoAround          MessageType = "GoAround"
)

// Message is a typed, immutable radio utterance. Messages are carried in
// actor events, so implementations must be plain values.
type Message interface {
	MessageHeader() Header
}

// Party identifies one side of an exchange.
type Party struct {
	ID       sim.ActorID `msgpack:"id"`
	Callsign Callsign    `msgpack:"callsign"`
}

type Header struct {
	Type         MessageType `msgpack:"type"`
	From         sim.ActorID `msgpack:"from"`
	To           sim.ActorID `msgpack:"to,omitempty"`
	FromCallsign Callsign    `msgpack:"from_callsign"`
	ToCallsign   Callsign    `msgpack:"to_callsign,omitempty"`
	Created      time.Time   `msgpack:"created"`
}

func NewHeader(t MessageType, from, to Party, created time.Time) Header {
	return Header{
		Type:         t,
		From:         from.ID,
		To:           to.ID,
		FromCallsign: from.Callsign,
		ToCallsign:   to.Callsign,
		Created:      created,
	}
}

func (h Header) MessageHeader() Header { return h }

// Sender returns the party the message came from.
func (h Header) Sender() Party {
	return Party{ID: h.From, Callsign: h.FromCallsign}
}

func (h Header) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", string(h.Type)),
		slog.String("from", string(h.FromCallsign)),
		slog.String("to", string(h.ToCallsign)),
		slog.Time("created", h.Created))
}

// TypeOf returns m's type, or the empty string for a nil message.
func TypeOf(m Message) MessageType {
	if m == nil {
		return ""
	}
	return m.MessageHeader().Type
}

///////////////////////////////////////////////////////////////////////////
// Clearance delivery

type ClearanceRequest struct {
	Header
	Destination string
	ATIS        string
	Rules       FlightRules
}

type IFRClearance struct {
	Header
	Destination        string
	Route              string
	InitialAltitude    int
	DepartureFrequency Frequency
	Squawk             Squawk
}

type ClearanceReadback struct {
	Header
	Squawk Squawk
}

///////////////////////////////////////////////////////////////////////////
// Ground

type TaxiRequest struct {
	Header
	Location string
	ATIS     string
}

type TaxiClearance struct {
	Header
	Runway         string
	Taxiways       []string
	HoldShort      string
	TowerFrequency Frequency
}

type TaxiReadback struct {
	Header
	Runway    string
	HoldShort string
}

///////////////////////////////////////////////////////////////////////////
// Tower

type ReadyForDeparture struct {
	Header
	Runway string
}

// Traffic is "left" or "right".
type TakeoffClearance struct {
	Header
	Runway  string
	Traffic string
}

type TakeoffReadback struct {
	Header
	Runway string
}

// PatternReport is a pilot's downwind call.
type PatternReport struct {
	Header
	Leg    string
	Runway string
}

type LandingClearance struct {
	Header
	Runway string
	// Number is the aircraft's position in the landing sequence.
	Number int
}

type LandingReadback struct {
	Header
	Runway string
}

type GoAround struct {
	Header
	Runway string
	Reason string
}
