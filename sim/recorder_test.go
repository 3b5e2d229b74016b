// sim/recorder_test.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func recordScript(t *testing.T) *Domain {
	t.Helper()
	d := newTestDomain(t)
	a, b := mustCreate(t, d, "alpha"), mustCreate(t, d, "bravo")

	for i := 0; i < 5; i++ {
		d.DeferBy(time.Duration(i)*time.Second, func() error {
			if err := a.Dispatch(incremented{By: i}); err != nil {
				return err
			}
			return b.Dispatch(peerAdded{Peer: a.Ref})
		})
	}
	d.DeferBy(10*time.Second, func() error { return b.Destroy() })

	if err := d.RunFor(time.Minute); err != nil {
		t.Fatal(err)
	}
	return d
}

func TestRecorderIsReproducible(t *testing.T) {
	for _, compress := range []bool{false, true} {
		var out [2]bytes.Buffer
		for i := range out {
			d := recordScript(t)
			if err := NewRecorder(d, WithCompression(compress)).Write(&out[i]); err != nil {
				t.Fatal(err)
			}
		}
		if !bytes.Equal(out[0].Bytes(), out[1].Bytes()) {
			t.Errorf("compress=%v: expected identical recordings", compress)
		}

		recs, err := ReadRecords(&out[0], compress)
		if err != nil {
			t.Fatal(err)
		}
		// 2 creations, 5 * 2 dispatches and a destruction
		if len(recs) != 13 {
			t.Fatalf("compress=%v: expected 13 records, got %d", compress, len(recs))
		}
		if recs[0].Kind != "created" || recs[12].Kind != "destroyed" {
			t.Errorf("unexpected kinds %q %q", recs[0].Kind, recs[12].Kind)
		}
		if !strings.HasSuffix(recs[3].Type, "peerAdded") {
			t.Errorf("expected peerAdded payload type, got %q", recs[3].Type)
		}
		for i, r := range recs {
			if r.Seq != uint64(i+1) {
				t.Errorf("record %d: expected seq %d, got %d", i, i+1, r.Seq)
			}
		}
	}
}

func TestRecorderFollowsCurrentBranch(t *testing.T) {
	d := newTestDomain(t)
	x := mustCreate(t, d, "x")
	s := d.TakeSnapshot()
	x.Dispatch(incremented{By: 1})
	x.Dispatch(incremented{By: 2})

	d.Restore(s)
	x.Dispatch(renamed{Name: "other"})

	recs := NewRecorder(d).Records()
	if len(recs) != 2 {
		t.Fatalf("expected 2 records on the current branch, got %d", len(recs))
	}
	if recs[1].Seq != 4 {
		t.Errorf("expected sequence numbers to keep increasing across branches, got %d", recs[1].Seq)
	}
}

func TestDump(t *testing.T) {
	d := newTestDomain(t)
	x := mustCreate(t, d, "xray")
	x.Dispatch(peerAdded{Peer: x.Ref})

	var b bytes.Buffer
	if err := d.Dump(&b); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(b.String(), "xray") || !strings.Contains(b.String(), "test.counter#1") {
		t.Errorf("expected dump to mention the actor, got %s", b.String())
	}
}
