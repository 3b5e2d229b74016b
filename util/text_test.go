// util/text_test.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"testing"
)

func TestStopShouting(t *testing.T) {
	input := "UNITED AIRLINES (North America)"
	expected := "United Airlines (North America)"
	ss := StopShouting(input)
	if ss != expected {
		t.Errorf("Got %q, expected %q", ss, expected)
	}
}

func TestIsAllNumbers(t *testing.T) {
	for _, c := range []struct {
		s      string
		expect bool
	}{
		{"1234", true},
		{"", true},
		{"12a4", false},
		{"N123", false},
	} {
		if IsAllNumbers(c.s) != c.expect {
			t.Errorf("%q: expected %v", c.s, c.expect)
		}
	}
}

func TestHashString64(t *testing.T) {
	if HashString64("N123AB") != HashString64("N123AB") {
		t.Errorf("expected stable hash")
	}
	if HashString64("N123AB") == HashString64("N123AC") {
		t.Errorf("expected different hashes")
	}
	// FNV-1a offset basis.
	if h := HashString64(""); h != 0xcbf29ce484222325 {
		t.Errorf("expected offset basis, got %x", h)
	}
}
