// aviation/aviation.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package aviation holds the vocabulary shared by the radio, conversation
// and world packages: callsigns, frequencies, flight plans and the typed
// messages that parties exchange over the radio.
package aviation

import (
	"fmt"
	"strconv"
	"strings"
)

type Callsign string

func (c Callsign) String() string { return string(c) }

// Frequencies are scaled by 1000 and then stored in integers.
type Frequency int

func NewFrequency(f float32) Frequency {
	// 0.5 is key for handling rounding!
	return Frequency(f*1000 + 0.5)
}

// ParseFrequency accepts either MHz with a decimal point ("121.9") or an
// integer number of kHz ("121900").
func ParseFrequency(s string) (Frequency, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ".") {
		khz, err := strconv.Atoi(s)
		if err != nil || khz <= 0 {
			return 0, fmt.Errorf("%q: %w", s, ErrInvalidFrequency)
		}
		return Frequency(khz), nil
	}

	mhz, err := strconv.ParseFloat(s, 64)
	if err != nil || mhz <= 0 {
		return 0, fmt.Errorf("%q: %w", s, ErrInvalidFrequency)
	}
	return Frequency(mhz*1000 + 0.5), nil
}

func (f Frequency) String() string {
	s := fmt.Sprintf("%03d.%03d", f/1000, f%1000)
	for len(s) < 7 {
		s += "0"
	}
	return s
}

// UnmarshalText lets frequencies be written as "118.7" in scenario files.
func (f *Frequency) UnmarshalText(b []byte) error {
	fr, err := ParseFrequency(string(b))
	if err != nil {
		return err
	}
	*f = fr
	return nil
}

///////////////////////////////////////////////////////////////////////////

type FlightRules int

const (
	FlightRulesUnknown FlightRules = iota
	FlightRulesIFR
	FlightRulesVFR
)

func (f FlightRules) String() string {
	if f < 0 || int(f) >= 3 {
		return "Unknown"
	}
	return [...]string{"Unknown", "IFR", "VFR"}[f]
}

func (f *FlightRules) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "IFR":
		*f = FlightRulesIFR
	case "VFR":
		*f = FlightRulesVFR
	default:
		return fmt.Errorf("%q: %w", string(b), ErrInvalidFlightRules)
	}
	return nil
}

// FlightPlan represents the flight plan from the perspective of the
// Aircraft: who they are, what they're doing, how they're going to get
// there.
type FlightPlan struct {
	Rules            FlightRules `yaml:"rules"`
	AircraftType     string      `yaml:"aircraft_type"`
	CruiseSpeed      int         `yaml:"cruise_speed"`
	DepartureAirport string      `yaml:"departure"`
	DepartureRunway  string      `yaml:"runway"`
	Altitude         int         `yaml:"altitude"`
	ArrivalAirport   string      `yaml:"arrival"`
	Route            string      `yaml:"route"`
	Remarks          string      `yaml:"remarks"`
}

// IsLocal reports whether the flight is a closed pattern at its departure
// airport.
func (fp FlightPlan) IsLocal() bool {
	return fp.ArrivalAirport == "" || fp.ArrivalAirport == fp.DepartureAirport
}

///////////////////////////////////////////////////////////////////////////
// Squawk Codes

type Squawk int

func (sq Squawk) String() string { return fmt.Sprintf("%04o", sq) }

func ParseSquawk(s string) (Squawk, error) {
	if len(s) != 4 {
		return Squawk(0), ErrInvalidSquawkCode
	}

	sq, err := strconv.ParseInt(s, 8, 32) // base 8!!!
	if err != nil || sq < 0 || sq > 0o7777 {
		return Squawk(0), ErrInvalidSquawkCode
	}
	return Squawk(sq), nil
}

///////////////////////////////////////////////////////////////////////////

func FormatAltitude(alt int) string {
	if alt >= 18000 {
		return "FL" + strconv.Itoa(alt/100)
	} else if alt < 1000 {
		return strconv.Itoa(100 * (alt / 100))
	} else {
		th := alt / 1000
		hu := (alt % 1000) / 100 * 100
		if hu == 0 {
			return strconv.Itoa(th) + ",000"
		} else {
			return fmt.Sprintf("%d,%03d", th, hu)
		}
	}
}
