// log/race.go
// Copyright(c) 2025-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

//go:build race

package log

// RaceEnabled is true when the race detector is active; wall-clock
// sensitive tests use it to widen their tolerances.
const RaceEnabled = true
