// conversation/errors.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package conversation

import "errors"

var (
	ErrAutoTransitionLoop    = errors.New("Steps transition in a loop without waiting")
	ErrDuplicateState        = errors.New("Duplicate state name")
	ErrInvalidConversation   = errors.New("Invalid conversation state")
	ErrInvalidStep           = errors.New("Invalid sequence step")
	ErrMemorizedTypeMismatch = errors.New("Memorized message has a different type")
	ErrNothingMemorized      = errors.New("No message of that type has been memorized")
	ErrUnknownState          = errors.New("Unknown state")
)
