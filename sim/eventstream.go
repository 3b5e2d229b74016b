// sim/eventstream.go
// Copyright(c) 2022-2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sim

import (
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/felix-b/atc/log"
)

// EventStream is a basic pub/sub stream that carries immutable values out
// of a domain to observers running on other goroutines. A domain posts to
// the stream from its own goroutine; subscribers call Get whenever they
// like.
type EventStream[T any] struct {
	mu            sync.Mutex
	events        []T
	subscriptions map[*Subscription[T]]struct{}
	lastPost      time.Time
	warnedLong    bool
	done          chan struct{}
	lg            *log.Logger
}

type Subscription[T any] struct {
	stream *EventStream[T]
	// offset is offset in the EventStream events array up to which the
	// subscriber has consumed events so far.
	offset      int
	source      string
	lastGet     time.Time
	warnedNoGet bool
}

func (s *Subscription[T]) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("offset", s.offset),
		slog.String("source", s.source),
		slog.Time("last_get", s.lastGet))
}

// NewEventStream returns a stream along with a goroutine that periodically
// compacts it; Destroy stops the goroutine.
func NewEventStream[T any](lg *log.Logger) *EventStream[T] {
	es := &EventStream[T]{
		subscriptions: make(map[*Subscription[T]]struct{}),
		lastPost:      time.Now(),
		done:          make(chan struct{}),
		lg:            lg,
	}
	go es.monitor()
	return es
}

// Subscribe registers a new subscriber. Events posted before the call are
// never reported to it.
func (e *EventStream[T]) Subscribe() *Subscription[T] {
	// Record the subscriber's callsite, so that we can more easily debug
	// subscribers that aren't consuming events.
	_, fn, line, _ := runtime.Caller(1)
	source := fmt.Sprintf("%s:%d", fn, line)

	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &Subscription[T]{
		stream:  e,
		offset:  len(e.events),
		source:  source,
		lastGet: time.Now(),
	}
	e.subscriptions[sub] = struct{}{}
	return sub
}

func (e *EventStream[T]) monitor() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
		}

		e.mu.Lock()

		e.compact()

		if len(e.events) > 1000 && !e.warnedLong {
			// It's likely that one of the subscribers is out to lunch if
			// the stream has grown this long.
			e.lg.Warn("Long EventStream", slog.Int("length", len(e.events)),
				log.AnyPointerSlice("subscriptions", slices.Collect(maps.Keys(e.subscriptions))))
			e.warnedLong = true
		}

		// Only complain about idle subscribers while events are actually
		// being posted.
		if time.Since(e.lastPost) < 5*time.Second {
			for sub := range e.subscriptions {
				if d := time.Since(sub.lastGet); d > 10*time.Second && !sub.warnedNoGet {
					e.lg.Warn("Subscriber has not called Get() recently",
						slog.Duration("duration", d), slog.Any("subscriber", sub))
					sub.warnedNoGet = true
				}
			}
		}

		e.mu.Unlock()
	}
}

// Unsubscribe removes a subscriber from the subscriber list
func (s *Subscription[T]) Unsubscribe() {
	e := s.stream
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.subscriptions, s)
	s.stream = nil
}

// Post adds an event to the stream.
func (e *EventStream[T]) Post(event T) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Ignore the event if no one's paying attention.
	if len(e.subscriptions) > 0 {
		e.lastPost = time.Now()
		e.events = append(e.events, event)
	}
}

// Get returns all of the events posted since the last call to Get.
func (s *Subscription[T]) Get() []T {
	e := s.stream
	if e == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	events := slices.Clone(e.events[s.offset:])
	s.offset = len(e.events)
	s.lastGet = time.Now()
	s.warnedNoGet = false

	return events
}

func (e *EventStream[T]) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case <-e.done:
		return
	default:
	}
	close(e.done)
	clear(e.subscriptions)
}

// compact reclaims storage for events that all subscribers have seen.
func (e *EventStream[T]) compact() {
	minOffset := len(e.events)
	for sub := range e.subscriptions {
		if sub.offset < minOffset {
			minOffset = sub.offset
		}
	}

	if minOffset > cap(e.events)/2 {
		n := len(e.events) - minOffset

		copy(e.events, e.events[minOffset:])
		clear(e.events[n:])
		e.events = e.events[:n]

		for sub := range e.subscriptions {
			sub.offset -= minOffset
		}

		e.warnedLong = false
	}
}

func (e *EventStream[T]) LogValue() slog.Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	return slog.GroupValue(
		slog.Int("len", len(e.events)),
		slog.Int("cap", cap(e.events)),
		slog.Int("subscriptions", len(e.subscriptions)))
}
