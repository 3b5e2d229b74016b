// aviation/errors.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package aviation

import "errors"

var (
	ErrInvalidFlightRules = errors.New("Invalid flight rules")
	ErrInvalidFrequency   = errors.New("Invalid frequency")
	ErrInvalidSquawkCode  = errors.New("Invalid squawk code")
)
