// util/generic_test.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"slices"
	"testing"
)

func TestSortedMapKeys(t *testing.T) {
	m := map[string]int{"KSFO": 1, "KOAK": 2, "KSJC": 3}
	if k := SortedMapKeys(m); !slices.Equal(k, []string{"KOAK", "KSFO", "KSJC"}) {
		t.Errorf("expected sorted keys, got %v", k)
	}
}

func TestWithMapEntryLeavesOriginal(t *testing.T) {
	m := map[string]int{"a": 1}
	m2 := WithMapEntry(m, "b", 2)
	if len(m) != 1 {
		t.Errorf("expected original map untouched, got %v", m)
	}
	if m2["a"] != 1 || m2["b"] != 2 {
		t.Errorf("expected a=1 b=2, got %v", m2)
	}

	m3 := WithoutMapEntry(m2, "a")
	if _, ok := m3["a"]; ok {
		t.Errorf("expected a removed, got %v", m3)
	}
	if len(m2) != 2 {
		t.Errorf("expected m2 untouched, got %v", m2)
	}
	if m4 := WithoutMapEntry(m3, "zzz"); len(m4) != 1 {
		t.Errorf("expected no change, got %v", m4)
	}
}

func TestSliceHelpers(t *testing.T) {
	s := []int{1, 2, 3, 4}
	if sq := MapSlice(s, func(v int) int { return v * v }); !slices.Equal(sq, []int{1, 4, 9, 16}) {
		t.Errorf("MapSlice: got %v", sq)
	}
	if ev := FilterSlice(s, func(v int) bool { return v%2 == 0 }); !slices.Equal(ev, []int{2, 4}) {
		t.Errorf("FilterSlice: got %v", ev)
	}
	if Select(true, "a", "b") != "a" || Select(false, "a", "b") != "b" {
		t.Errorf("Select is broken")
	}
}
