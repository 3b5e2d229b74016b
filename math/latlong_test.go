// math/latlong_test.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	"testing"
)

func TestNMDistance2LL(t *testing.T) {
	// KJFK -> KLAX is about 2150 nm
	jfk := Point2LL{-73.7781, 40.6413}
	lax := Point2LL{-118.4085, 33.9416}
	if d := NMDistance2LL(jfk, lax); d < 2130 || d > 2170 {
		t.Errorf("expected ~2150nm, got %f", d)
	}

	if d := NMDistance2LL(jfk, jfk); d != 0 {
		t.Errorf("expected zero distance, got %f", d)
	}

	// One degree of latitude is 60nm.
	if d := NMDistance2LL(Point2LL{0, 10}, Point2LL{0, 11}); Abs(d-60) > 0.2 {
		t.Errorf("expected ~60nm, got %f", d)
	}
}

func TestNMDistance2LLFarApart(t *testing.T) {
	// Far beyond any radio horizon.
	d := NMDistance2LL(Point2LL{0, 40}, Point2LL{0, -140})
	if d < 5000 {
		t.Errorf("expected a very large distance, got %f", d)
	}
}

func TestOffset2LL(t *testing.T) {
	p := Point2LL{-122.375, 37.619}
	q := Offset2LL(p, 90, 5)
	if d := NMDistance2LL(p, q); Abs(d-5) > 0.05 {
		t.Errorf("expected 5nm offset, got %f", d)
	}
	if q[1] != p[1] {
		t.Errorf("expected latitude unchanged for an eastbound offset, got %f", q[1])
	}
}

func TestHorizonNM(t *testing.T) {
	for _, c := range []struct {
		a, b     float32
		min, max float32
	}{
		{0, 0, 0, 0},
		{100, 0, 12.2, 12.4},
		{10000, 30, 129, 130},
		{-50, 100, 12.2, 12.4},
	} {
		if h := HorizonNM(c.a, c.b); h < c.min || h > c.max {
			t.Errorf("HorizonNM(%f, %f): expected [%f,%f], got %f", c.a, c.b, c.min, c.max, h)
		}
	}
}

func TestClamp(t *testing.T) {
	if Clamp(5, 0, 3) != 3 || Clamp(-1, 0, 3) != 0 || Clamp(2, 0, 3) != 2 {
		t.Errorf("Clamp is broken")
	}
	if Sqr(3) != 9 || Abs(-2.5) != 2.5 {
		t.Errorf("Sqr/Abs are broken")
	}
}
