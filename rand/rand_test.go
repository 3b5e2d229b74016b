// rand/rand_test.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package rand

import (
	"testing"
	"time"
)

func TestSameSeedSameSequence(t *testing.T) {
	a, b := New(1234), New(1234)
	for i := 0; i < 100; i++ {
		if x, y := a.Intn(1<<30), b.Intn(1<<30); x != y {
			t.Fatalf("iteration %d: expected %d, got %d", i, x, y)
		}
	}

	c := New(4321)
	same := 0
	a.Seed(1234)
	for i := 0; i < 100; i++ {
		if a.Intn(1<<30) == c.Intn(1<<30) {
			same++
		}
	}
	if same == 100 {
		t.Errorf("expected different seeds to give different sequences")
	}
}

func TestIntnBounds(t *testing.T) {
	r := New(7)
	for i := 0; i < 1000; i++ {
		if v := r.Intn(5); v < 0 || v >= 5 {
			t.Fatalf("expected value in [0,5), got %d", v)
		}
	}
	if v := r.Intn(0); v != 0 {
		t.Errorf("expected 0 for an empty range, got %d", v)
	}
}

func TestDurationBetween(t *testing.T) {
	r := New(99)
	for i := 0; i < 500; i++ {
		d := r.DurationBetween(2*time.Second, 5*time.Second)
		if d < 2*time.Second || d > 5*time.Second {
			t.Fatalf("expected duration in [2s,5s], got %s", d)
		}
	}
	if d := r.DurationBetween(3*time.Second, time.Second); d != 3*time.Second {
		t.Errorf("expected lower bound for an inverted range, got %s", d)
	}
}
