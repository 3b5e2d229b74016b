// refdata/errors.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package refdata

import "errors"

var (
	ErrDuplicateAirport = errors.New("duplicate airport")
	ErrInvalidAirport   = errors.New("invalid airport")
	ErrUnknownAirport   = errors.New("unknown airport")
)
