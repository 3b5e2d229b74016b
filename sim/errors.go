// sim/errors.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrActorNotFound      = errors.New("Actor not found")
	ErrActorTypeMismatch  = errors.New("Actor type mismatch")
	ErrDomainStopped      = errors.New("Domain stopped")
	ErrDuplicateActorType = errors.New("Duplicate actor type")
	ErrInvalidActorType   = errors.New("Invalid actor type")
	ErrReplayDiverged     = errors.New("Replay diverged from live state")
	ErrReplayMutation     = errors.New("Domain mutated during replay")
	ErrSnapshotForeign    = errors.New("Snapshot belongs to another domain")
	ErrUnknownActorType   = errors.New("Unknown actor type")
	ErrWorkPanicked       = errors.New("Work item panicked")
)

// DomainError is returned by a domain's run loop when a work item fails;
// the domain does not run any further work afterward.
type DomainError struct {
	Domain string
	At     time.Time
	Err    error
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("domain %s stopped at %s: %v", e.Domain, e.At.Format(time.RFC3339), e.Err)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}
