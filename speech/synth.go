// speech/synth.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felix-b/atc/log"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Synthesizer turns spoken text into audio. Implementations are remote
// services; they are slow and they fail.
type Synthesizer interface {
	Synthesize(ctx context.Context, voice Voice, text string) ([]byte, error)
}

const (
	DefaultSynthesisRetries  = 4
	DefaultSynthesisInterval = 250 * time.Millisecond
	DefaultSynthesisTimeout  = 15 * time.Second
)

// RetryingSynthesizer wraps a Synthesizer with exponential backoff and a
// trace span per request. Request is the fire-and-forget entry point used
// from simulation code: it never blocks and every failure, including a
// panic in the wrapped synthesizer, is reported to the completion callback
// rather than propagated.
type RetryingSynthesizer struct {
	s          Synthesizer
	retries    uint64
	interval   time.Duration
	maxElapsed time.Duration
	tracer     trace.Tracer
	lg         *log.Logger
	wg         sync.WaitGroup
}

type SynthesizerOption func(*RetryingSynthesizer)

func WithRetries(n uint64) SynthesizerOption {
	return func(r *RetryingSynthesizer) { r.retries = n }
}

func WithRetryInterval(d time.Duration) SynthesizerOption {
	return func(r *RetryingSynthesizer) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithSynthesisTimeout bounds the total time spent on one request,
// retries included.
func WithSynthesisTimeout(d time.Duration) SynthesizerOption {
	return func(r *RetryingSynthesizer) {
		if d > 0 {
			r.maxElapsed = d
		}
	}
}

func WithSynthesizerLogger(lg *log.Logger) SynthesizerOption {
	return func(r *RetryingSynthesizer) { r.lg = lg }
}

func NewRetryingSynthesizer(s Synthesizer, opts ...SynthesizerOption) *RetryingSynthesizer {
	r := &RetryingSynthesizer{
		s:          s,
		retries:    DefaultSynthesisRetries,
		interval:   DefaultSynthesisInterval,
		maxElapsed: DefaultSynthesisTimeout,
		tracer:     otel.GetTracerProvider().Tracer("github.com/felix-b/atc/speech"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Synthesize calls the wrapped synthesizer until it succeeds, the retries
// run out or ctx is done. Errors wrapping ErrSynthesisUnavailable are not
// retried.
func (r *RetryingSynthesizer) Synthesize(ctx context.Context, voice Voice, text string) ([]byte, error) {
	if r.s == nil {
		return nil, ErrSynthesisUnavailable
	}

	ctx, span := r.tracer.Start(ctx, "speech.Synthesize",
		trace.WithAttributes(attribute.String("voice", string(voice)), attribute.Int("length", len(text))))
	defer span.End()

	start := time.Now()
	attempts := 0
	var audio []byte
	op := func() error {
		attempts++
		a, err := r.s.Synthesize(ctx, voice, text)
		if errors.Is(err, ErrSynthesisUnavailable) {
			return backoff.Permanent(err)
		} else if err != nil {
			return err
		}
		audio = a
		return nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.interval
	expo.MaxElapsedTime = r.maxElapsed
	b := backoff.WithContext(backoff.WithMaxRetries(expo, r.retries), ctx)

	err := backoff.RetryNotify(op, b, func(err error, next time.Duration) {
		r.lg.Debug("synthesis failed, retrying", slog.Any("error", err), slog.Duration("next", next),
			slog.Int("attempt", attempts))
	})
	span.SetAttributes(attribute.Int("attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%d attempts: %w", attempts, err)
	}

	r.lg.Debug("synthesized speech", slog.String("voice", string(voice)), slog.Int("bytes", len(audio)),
		slog.Duration("latency", time.Since(start)))
	return audio, nil
}

// Request synthesizes u on its own goroutine and passes the result to
// done, also on that goroutine. Callers that need the audio on a domain
// goroutine hand it over with sim.Domain.Inject.
func (r *RetryingSynthesizer) Request(ctx context.Context, u Utterance, done func(audio []byte, err error)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		audio, err := r.synthesizeSafely(ctx, u)
		if err != nil {
			r.lg.Warn("speech synthesis failed", slog.Any("utterance", u), slog.Any("error", err))
		}
		done(audio, err)
	}()
}

func (r *RetryingSynthesizer) synthesizeSafely(ctx context.Context, u Utterance) (audio []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.lg.ReportCrash(p)
			audio, err = nil, fmt.Errorf("%v: %w", p, ErrSynthesisUnavailable)
		}
	}()
	return r.Synthesize(ctx, u.Speaker.Voice, u.Spoken)
}

// Wait blocks until every outstanding Request has called its callback.
func (r *RetryingSynthesizer) Wait() {
	r.wg.Wait()
}
