// conversation/driver.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package conversation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/felix-b/atc/aviation"
	"github.com/felix-b/atc/sim"
)

// Host is implemented by the actor that owns a machine. Machine and
// SetMachine read and replace the machine held in the actor's state;
// SetMachine is expected to do so by dispatching an event.
type Host interface {
	Machine() (Machine, error)
	SetMachine(m Machine) error
	// Tune retunes the host's radio.
	Tune(f aviation.Frequency) error
	// Transmit queues msg for transmission once the frequency is quiet.
	Transmit(msg aviation.Message) error
}

// Context is passed to callbacks and message factories.
type Context struct {
	Domain *sim.Domain
	Self   sim.Ref
	Host   Host
}

// Machine returns the host's current machine.
func (c *Context) Machine() (Machine, error) {
	return c.Host.Machine()
}

// Now returns the domain's virtual time.
func (c *Context) Now() time.Time {
	return c.Domain.Now()
}

// Start starts the host's machine.
func Start(c *Context) error {
	return Advance(c, Machine.Start)
}

// Fire delivers a trigger to the host's machine.
func Fire(c *Context, t Trigger) error {
	return Advance(c, func(m Machine) (Machine, []Effect) { return m.Fire(t) })
}

// Receive delivers a message to the host's machine.
func Receive(c *Context, msg aviation.Message) error {
	return Advance(c, func(m Machine) (Machine, []Effect) { return m.Receive(msg) })
}

// Advance applies a stimulus to the host's machine, stores the result and
// executes the effects. Callbacks run synchronously, so a callback that
// wants to stimulate the machine again must defer the work with
// sim.Domain.DeferNow.
func Advance(c *Context, stimulus func(Machine) (Machine, []Effect)) error {
	m, err := c.Host.Machine()
	if err != nil {
		return err
	}

	next, effects := stimulus(m)
	if len(effects) == 0 && next.current == m.current && len(next.delays) == len(m.delays) {
		c.Domain.Logger().Debug("conversation stimulus not handled", slog.Any("actor", c.Self),
			slog.String("state", m.current))
		return nil
	}

	if err := c.Host.SetMachine(next); err != nil {
		return err
	}
	return Execute(c, effects)
}

// Execute carries out effects in order.
func Execute(c *Context, effects []Effect) error {
	lg := c.Domain.Logger()

	for _, e := range effects {
		switch e := e.(type) {
		case Entered:
			lg.Debug("entered state", slog.Any("actor", c.Self), slog.String("state", e.State))

		case Tune:
			if err := c.Host.Tune(e.Frequency); err != nil {
				return fmt.Errorf("%s: tuning to %s: %w", e.State, e.Frequency, err)
			}

		case Transmit:
			msg, err := e.Factory(c)
			if err != nil {
				return fmt.Errorf("%s: building message: %w", e.State, err)
			}
			if err := c.Host.Transmit(msg); err != nil {
				return fmt.Errorf("%s: %w", e.State, err)
			}

		case Invoke:
			if err := e.Callback(c); err != nil {
				return fmt.Errorf("%s: %w", e.State, err)
			}

		case ScheduleDelay:
			token := e.Token
			h := c.Domain.ScheduleDelay(e.Delay, func() error {
				return Advance(c, func(m Machine) (Machine, []Effect) { return m.DelayElapsed(token) })
			})

			m, err := c.Host.Machine()
			if err != nil {
				h.Cancel()
				return err
			}
			if m, ok := m.WithDelay(token, h); ok {
				if err := c.Host.SetMachine(m); err != nil {
					return err
				}
			} else {
				h.Cancel()
			}

		case CancelDelay:
			e.Handle.Cancel()

		default:
			return fmt.Errorf("unexpected effect %T", e)
		}
	}
	return nil
}
