// sim/eventstream_test.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"slices"
	"testing"

	"github.com/felix-b/atc/log"
)

func TestEventStream(t *testing.T) {
	es := NewEventStream[int](log.Discard())
	defer es.Destroy()

	es.Post(0) // nobody listening

	a := es.Subscribe()
	es.Post(1)
	es.Post(2)
	b := es.Subscribe()
	es.Post(3)

	if ev := a.Get(); !slices.Equal(ev, []int{1, 2, 3}) {
		t.Errorf("a: expected [1 2 3], got %v", ev)
	}
	if ev := b.Get(); !slices.Equal(ev, []int{3}) {
		t.Errorf("b: expected [3], got %v", ev)
	}
	if ev := a.Get(); len(ev) != 0 {
		t.Errorf("a: expected nothing new, got %v", ev)
	}

	es.mu.Lock()
	es.compact()
	es.mu.Unlock()

	es.Post(4)
	if ev := b.Get(); !slices.Equal(ev, []int{4}) {
		t.Errorf("b: expected [4] after compaction, got %v", ev)
	}

	a.Unsubscribe()
	a.Unsubscribe()
	if ev := a.Get(); ev != nil {
		t.Errorf("expected nil from an unsubscribed subscription, got %v", ev)
	}
}
