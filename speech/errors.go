// speech/errors.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package speech

import "errors"

var (
	ErrInvalidPhrase          = errors.New("invalid phrase")
	ErrSynthesisUnavailable   = errors.New("speech synthesis unavailable")
	ErrUnsupportedMessageType = errors.New("message type cannot be verbalized")
)
