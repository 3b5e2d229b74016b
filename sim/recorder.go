// sim/recorder.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"io"
	"time"

	"github.com/felix-b/atc/util"
)

// Record is the exported form of one log entry.
type Record struct {
	Seq     uint64    `msgpack:"seq"`
	Kind    string    `msgpack:"kind"`
	At      time.Time `msgpack:"at"`
	Actor   ActorID   `msgpack:"actor"`
	Tag     TypeTag   `msgpack:"tag"`
	Type    string    `msgpack:"type,omitempty"`
	Payload any       `msgpack:"payload,omitempty"`
}

// Recorder exports the current branch of a domain's history for offline
// inspection. Recordings are never read back into a running domain.
type Recorder struct {
	d        *Domain
	compress bool
}

type RecorderOption func(*Recorder)

// WithCompression makes the recorder zstd-compress its output.
func WithCompression(c bool) RecorderOption {
	return func(r *Recorder) { r.compress = c }
}

func NewRecorder(d *Domain, opts ...RecorderOption) *Recorder {
	r := &Recorder{d: d}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Records returns the entries from the root of the history to the
// domain's current position, oldest first.
func (r *Recorder) Records() []Record {
	_, entries := r.d.head.path(false)

	recs := make([]Record, len(entries))
	for i, e := range entries {
		recs[i] = Record{
			Seq:     e.seq,
			Kind:    e.kind.String(),
			At:      e.at,
			Actor:   e.actor,
			Tag:     e.tag,
			Payload: e.payload,
		}
		if e.payload != nil {
			recs[i].Type = fmt.Sprintf("%T", e.payload)
		}
	}
	return recs
}

// Write encodes the records to w as msgpack. The encoding is
// deterministic: two runs that dispatch the same events produce identical
// output.
func (r *Recorder) Write(w io.Writer) error {
	recs := r.Records()
	if r.compress {
		return util.WriteZstdMsgpack(w, recs)
	}
	return util.NewMsgpackEncoder(w).Encode(recs)
}

// ReadRecords decodes a recording produced by Recorder.Write. Payloads are
// decoded into generic maps.
func ReadRecords(rd io.Reader, compressed bool) ([]Record, error) {
	var recs []Record
	if compressed {
		if err := util.ReadZstdMsgpack(rd, &recs); err != nil {
			return nil, err
		}
		return recs, nil
	}

	b, err := io.ReadAll(rd)
	if err != nil {
		return nil, err
	}
	if err := util.DecodeMsgpack(b, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}
