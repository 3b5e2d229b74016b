// aviation/aviation_test.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package aviation

import (
	"errors"
	"testing"
	"time"
)

func TestFrequency(t *testing.T) {
	for _, test := range []struct {
		in   string
		khz  Frequency
		text string
	}{
		{in: "121.9", khz: 121900, text: "121.900"},
		{in: "118.75", khz: 118750, text: "118.750"},
		{in: "124350", khz: 124350, text: "124.350"},
		{in: " 126.025 ", khz: 126025, text: "126.025"},
	} {
		f, err := ParseFrequency(test.in)
		if err != nil {
			t.Errorf("%q: unexpected error %v", test.in, err)
			continue
		}
		if f != test.khz {
			t.Errorf("%q: expected %d, got %d", test.in, test.khz, f)
		}
		if f.String() != test.text {
			t.Errorf("%q: expected %q, got %q", test.in, test.text, f.String())
		}
	}

	for _, bad := range []string{"", "abc", "-118.7", "0"} {
		if _, err := ParseFrequency(bad); !errors.Is(err, ErrInvalidFrequency) {
			t.Errorf("%q: expected ErrInvalidFrequency, got %v", bad, err)
		}
	}

	if f := NewFrequency(118.7); f != 118700 {
		t.Errorf("expected 118700, got %d", f)
	}
}

func TestSquawk(t *testing.T) {
	sq, err := ParseSquawk("4721")
	if err != nil {
		t.Fatal(err)
	}
	if sq.String() != "4721" {
		t.Errorf("expected 4721, got %s", sq)
	}
	for _, bad := range []string{"4781", "123", "12345"} {
		if _, err := ParseSquawk(bad); err != ErrInvalidSquawkCode {
			t.Errorf("%q: expected ErrInvalidSquawkCode, got %v", bad, err)
		}
	}
}

func TestFlightRules(t *testing.T) {
	var fr FlightRules
	if err := fr.UnmarshalText([]byte("vfr")); err != nil || fr != FlightRulesVFR {
		t.Errorf("expected VFR, got %v (%v)", fr, err)
	}
	if err := fr.UnmarshalText([]byte("XYZ")); !errors.Is(err, ErrInvalidFlightRules) {
		t.Errorf("expected ErrInvalidFlightRules, got %v", err)
	}
	if s := FlightRules(17).String(); s != "Unknown" {
		t.Errorf("expected Unknown, got %s", s)
	}
}

func TestFormatAltitude(t *testing.T) {
	for _, test := range []struct {
		alt  int
		text string
	}{
		{alt: 850, text: "800"},
		{alt: 3000, text: "3,000"},
		{alt: 4500, text: "4,500"},
		{alt: 23000, text: "FL230"},
	} {
		if s := FormatAltitude(test.alt); s != test.text {
			t.Errorf("%d: expected %q, got %q", test.alt, test.text, s)
		}
	}
}

func TestMessageHeader(t *testing.T) {
	at := time.Date(2026, time.January, 1, 12, 0, 0, 0, time.UTC)
	pilot := Party{ID: "world.pilot#1", Callsign: "N123AB"}
	tower := Party{ID: "world.controller#2", Callsign: "Palo Alto Tower"}

	var m Message = ReadyForDeparture{
		Header: NewHeader(MessageReadyForDeparture, pilot, tower, at),
		Runway: "31",
	}
	h := m.MessageHeader()
	if h.Type != MessageReadyForDeparture || TypeOf(m) != MessageReadyForDeparture {
		t.Errorf("expected ReadyForDeparture, got %s", h.Type)
	}
	if h.Sender() != pilot {
		t.Errorf("expected %v, got %v", pilot, h.Sender())
	}
	if h.To != tower.ID || h.ToCallsign != tower.Callsign {
		t.Errorf("expected recipient %v, got %s/%s", tower, h.To, h.ToCallsign)
	}
	if !h.Created.Equal(at) {
		t.Errorf("expected %v, got %v", at, h.Created)
	}
	if TypeOf(nil) != "" {
		t.Errorf("expected empty type for nil message")
	}
}
