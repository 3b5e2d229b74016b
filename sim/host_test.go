// sim/host_test.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felix-b/atc/log"
)

func TestHostIsolatesDomainFailures(t *testing.T) {
	bad := NewDomain("bad", WithTimeScale(0))
	good := NewDomain("good", WithTimeScale(0))

	bad.DeferBy(time.Second, func() error { return errors.New("boom") })

	var ticks atomic.Int64
	var tick func() error
	tick = func() error {
		ticks.Add(1)
		good.DeferBy(time.Second, tick)
		return nil
	}
	good.DeferNow(tick)

	h := NewHost(log.Discard(), bad, good)
	h.Start(context.Background())

	// Wait for the bad domain to fail and the good one to keep ticking.
	deadline := time.Now().Add(5 * time.Second)
	for h.Err() == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	n := ticks.Load()
	for ticks.Load() < n+10 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if ticks.Load() < n+10 {
		t.Errorf("expected the good domain to keep running")
	}

	if !h.Shutdown(5 * time.Second) {
		t.Errorf("expected clean shutdown")
	}

	err := h.Wait()
	var de *DomainError
	if !errors.As(err, &de) || de.Domain != "bad" {
		t.Errorf("expected the bad domain's error, got %v", err)
	}
	if good.Err() != nil {
		t.Errorf("good domain should not have failed: %v", good.Err())
	}
}

func TestHostShutdownTimeout(t *testing.T) {
	d := NewDomain("stuck", WithTimeScale(0))
	release := make(chan struct{})
	d.DeferNow(func() error {
		<-release
		return nil
	})

	h := NewHost(log.Discard(), d)
	h.Start(context.Background())
	time.Sleep(10 * time.Millisecond)

	if h.Shutdown(10 * time.Millisecond) {
		t.Errorf("expected shutdown to time out")
	}

	close(release)
	if err := h.Wait(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestHostShutdownBeforeStart(t *testing.T) {
	h := NewHost(log.Discard())
	if !h.Shutdown(time.Second) {
		t.Errorf("expected true")
	}
}
