// rand/rand.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package rand provides small deterministic PCG generators. Simulation code
// never uses a process-wide generator: every random decision is derived
// from an explicit seed so that replays draw the same numbers.
package rand

import (
	"time"

	"github.com/MichaelTJones/pcg"
)

const pcgSequence = 0xda3e39cb94b95bdb

type Rand struct {
	r *pcg.PCG32
}

// New returns a generator seeded with s.
func New(s uint64) Rand {
	r := Rand{r: pcg.NewPCG32()}
	r.Seed(s)
	return r
}

func (r *Rand) Seed(s uint64) {
	r.r.Seed(s, pcgSequence)
}

func (r *Rand) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(r.r.Bounded(uint32(n)))
}

func (r *Rand) Bool() bool {
	return r.r.Random()&1 == 1
}

// DurationBetween returns a uniformly distributed duration in [lo, hi],
// quantized to milliseconds.
func (r *Rand) DurationBetween(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	span := int((hi - lo) / time.Millisecond)
	return lo + time.Duration(r.Intn(span+1))*time.Millisecond
}

// SampleSlice uniformly randomly samples an element of a non-empty slice.
func SampleSlice[T any](r *Rand, slice []T) T {
	return slice[r.Intn(len(slice))]
}
