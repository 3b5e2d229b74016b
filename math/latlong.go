// math/latlong.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"fmt"
	gomath "math"
)

// NMPerLatitude is the number of nautical miles per degree of latitude.
const NMPerLatitude = 60

const NauticalMilesToFeet = 6076.12
const FeetToNauticalMiles = 1 / NauticalMilesToFeet

// Point2LL represents a 2D point on the Earth in latitude-longitude.
// Important: 0 (x) is longitude, 1 (y) is latitude
type Point2LL [2]float32

func (p Point2LL) Longitude() float32 {
	return p[0]
}

func (p Point2LL) Latitude() float32 {
	return p[1]
}

// DDString returns the position in decimal degrees, e.g.:
// (39.860901, -75.274864)
func (p Point2LL) DDString() string {
	return fmt.Sprintf("(%f, %f)", p[1], p[0]) // latitude, longitude
}

func (p Point2LL) IsZero() bool {
	return p[0] == 0 && p[1] == 0
}

// NMDistance2LL returns the great-circle distance between two points in
// nautical miles.
func NMDistance2LL(a Point2LL, b Point2LL) float32 {
	// https://www.movable-type.co.uk/scripts/latlong.html
	const R = 6371000 // metres
	rad := func(d float64) float64 { return float64(d) / 180 * gomath.Pi }
	lat1, lon1 := rad(float64(a[1])), rad(float64(a[0]))
	lat2, lon2 := rad(float64(b[1])), rad(float64(b[0]))
	dlat, dlon := lat2-lat1, lon2-lon1

	x := Sqr(gomath.Sin(dlat/2)) + gomath.Cos(lat1)*gomath.Cos(lat2)*Sqr(gomath.Sin(dlon/2))
	x = Clamp(x, 0, 1)
	c := 2 * gomath.Atan2(gomath.Sqrt(x), gomath.Sqrt(1-x))
	dm := R * c // in metres

	return float32(dm * 0.000539957)
}

// NMPerLongitudeAt returns the number of nautical miles per degree of
// longitude at the given point's latitude.
func NMPerLongitudeAt(p Point2LL) float32 {
	return NMPerLatitude * Cos(Radians(p[1]))
}

// Offset2LL returns the point at distance dist (nm) along heading hdg from
// the given point. It assumes a (locally) flat earth.
func Offset2LL(pll Point2LL, hdg float32, dist float32) Point2LL {
	nmPerLongitude := NMPerLongitudeAt(pll)
	if nmPerLongitude == 0 {
		return pll
	}
	h := Radians(hdg)
	dx, dy := Sin(h)*dist, Cos(h)*dist
	return Point2LL{pll[0] + dx/nmPerLongitude, pll[1] + dy/NMPerLatitude}
}

// HorizonNM returns the radio line-of-sight range in nautical miles
// between two antennas at the given heights above ground in feet, using
// the 4/3 effective earth radius approximation.
func HorizonNM(heightA, heightB float32) float32 {
	return 1.23 * (Sqrt(max(0, heightA)) + Sqrt(max(0, heightB)))
}
