// refdata/refdata.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package refdata provides the airport reference data that scenarios are
// built from. Reference data is read-only and shared between domains;
// providers hand out copies.
package refdata

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/math"
	"github.com/felix-b/atc/util"
)

type Provider interface {
	// Airport returns the airport with the given ICAO code or an error
	// wrapping ErrUnknownAirport.
	Airport(icao string) (Airport, error)
	// Airports returns the ICAO codes of all airports, sorted.
	Airports() []string
}

type Airport struct {
	ICAO      string        `yaml:"icao"`
	Name      string        `yaml:"name"`
	Location  math.Point2LL `yaml:"location"`
	Elevation int           `yaml:"elevation"`
	// PatternAltitude is the traffic pattern altitude in feet MSL.
	PatternAltitude int         `yaml:"pattern_altitude"`
	ATIS            string      `yaml:"atis"`
	Frequencies     Frequencies `yaml:"frequencies"`
	Runways         []Runway    `yaml:"runways"`
	TaxiRoutes      []TaxiRoute `yaml:"taxi_routes"`
}

type Frequencies struct {
	Clearance aviation.Frequency `yaml:"clearance"`
	Ground    aviation.Frequency `yaml:"ground"`
	Tower     aviation.Frequency `yaml:"tower"`
	Departure aviation.Frequency `yaml:"departure"`
}

type Runway struct {
	ID        string        `yaml:"id"`
	Heading   float32       `yaml:"heading"`
	Threshold math.Point2LL `yaml:"threshold"`
	// Traffic is the pattern direction, "left" or "right".
	Traffic string `yaml:"traffic"`
}

// TaxiRoute is the taxi clearance from a ramp location to a runway.
type TaxiRoute struct {
	From      string   `yaml:"from"`
	Runway    string   `yaml:"runway"`
	Taxiways  []string `yaml:"taxiways"`
	HoldShort string   `yaml:"hold_short"`
}

func (a Airport) Runway(id string) (Runway, bool) {
	for _, rwy := range a.Runways {
		if strings.EqualFold(rwy.ID, id) {
			return rwy, true
		}
	}
	return Runway{}, false
}

// ActiveRunway returns the runway in use, which is the first one listed.
func (a Airport) ActiveRunway() Runway {
	if len(a.Runways) == 0 {
		return Runway{}
	}
	return a.Runways[0]
}

// TaxiRoute returns the route from the given location to the runway; if
// there is no route from that location, the first route to the runway is
// returned.
func (a Airport) TaxiRoute(from, runway string) (TaxiRoute, bool) {
	var fallback *TaxiRoute
	for i, tr := range a.TaxiRoutes {
		if !strings.EqualFold(tr.Runway, runway) {
			continue
		}
		if strings.EqualFold(tr.From, from) {
			return tr, true
		}
		if fallback == nil {
			fallback = &a.TaxiRoutes[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return TaxiRoute{}, false
}

// Validate checks that the airport has what the simulation needs to run
// traffic at it.
func (a Airport) Validate() error {
	var errs []error
	if a.ICAO == "" {
		errs = append(errs, errors.New("missing ICAO code"))
	}
	if a.Frequencies.Tower <= 0 {
		errs = append(errs, errors.New("missing tower frequency"))
	}
	if len(a.Runways) == 0 {
		errs = append(errs, errors.New("no runways"))
	}
	for _, rwy := range a.Runways {
		num := strings.TrimRight(strings.ToUpper(rwy.ID), "LRC")
		n, err := strconv.Atoi(num)
		if err != nil || !util.IsAllNumbers(num) || n < 1 || n > 36 {
			errs = append(errs, fmt.Errorf("runway %q: invalid identifier", rwy.ID))
		}
		if rwy.Traffic != "" && rwy.Traffic != "left" && rwy.Traffic != "right" {
			errs = append(errs, fmt.Errorf("runway %q: traffic must be left or right", rwy.ID))
		}
	}
	for _, tr := range a.TaxiRoutes {
		if _, ok := a.Runway(tr.Runway); !ok {
			errs = append(errs, fmt.Errorf("taxi route from %q: unknown runway %q", tr.From, tr.Runway))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s: %w: %w", a.ICAO, ErrInvalidAirport, errors.Join(errs...))
	}
	return nil
}
