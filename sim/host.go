// sim/host.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/felix-b/atc/log"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/sync/errgroup"
)

// Host runs several domains concurrently, one goroutine per domain.
// Domains are independent: one failing does not stop the others.
type Host struct {
	RunID uuid.UUID

	lg      *log.Logger
	domains []*Domain

	mu     sync.Mutex
	eg     errgroup.Group
	cancel context.CancelFunc
	errs   map[string]error
	done   chan struct{}
}

func NewHost(lg *log.Logger, domains ...*Domain) *Host {
	id := uuid.New()
	return &Host{
		RunID:   id,
		lg:      lg.With(slog.String("run_id", id.String())),
		domains: domains,
		errs:    make(map[string]error),
	}
}

func (h *Host) Domains() []*Domain {
	return h.domains
}

// Start launches every domain's run loop. It returns immediately.
func (h *Host) Start(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ctx, h.cancel = context.WithCancel(ctx)
	h.done = make(chan struct{})

	for _, d := range h.domains {
		// A plain errgroup.Group: a failing domain must not cancel its
		// siblings.
		h.eg.Go(func() error {
			err := d.Run(ctx)
			if err != nil {
				h.lg.Error("domain failed", slog.String("domain", d.Name()), slog.Any("error", err))
				h.mu.Lock()
				h.errs[d.Name()] = err
				h.mu.Unlock()
			}
			return err
		})
	}

	go func() {
		_ = h.eg.Wait()
		close(h.done)
	}()

	h.lg.Info("host started", slog.Int("domains", len(h.domains)))
}

// Wait blocks until every domain has stopped and returns the domains'
// errors joined together.
func (h *Host) Wait() error {
	<-h.done
	return h.Err()
}

// Err returns the errors of the domains that have failed so far.
func (h *Host) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for _, d := range h.domains {
		if err, ok := h.errs[d.Name()]; ok {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Shutdown cancels all domains and waits up to grace for their goroutines
// to exit. It returns false if they did not; that is not an error, but the
// goroutines are abandoned.
func (h *Host) Shutdown(grace time.Duration) bool {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.mu.Unlock()

	if cancel == nil {
		return true
	}
	cancel()

	select {
	case <-done:
		h.lg.Info("host stopped")
		return true
	case <-time.After(grace):
		usage, _ := cpu.Percent(0, false)
		h.lg.Warn("domains did not stop within grace period", slog.Duration("grace", grace),
			slog.Any("cpu_usage", usage))
		return false
	}
}
