// world/errors.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package world

import "errors"

var (
	ErrDuplicateCallsign = errors.New("duplicate callsign")
	ErrInvalidActivation = errors.New("invalid activation")
	ErrInvalidFacility   = errors.New("invalid facility")
	ErrInvalidScenario   = errors.New("invalid scenario")
	ErrUnknownTemplate   = errors.New("unknown aircraft template")
)
