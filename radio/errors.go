// radio/errors.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package radio

import "errors"

var (
	ErrAlreadyTransmitting = errors.New("Station is already transmitting")
	ErrInvalidStation      = errors.New("Invalid station configuration")
	ErrNotTransmitting     = errors.New("Station is not transmitting")
	ErrPoweredOff          = errors.New("Station is powered off")
)
