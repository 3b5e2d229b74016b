// speech/synth_test.go
// Copyright(c) 2026 atc contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package speech

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felix-b/atc/log"
)

var errFlaky = errors.New("flaky")

type flakySynthesizer struct {
	mu       sync.Mutex
	calls    int
	failures int
	err      error
	panics   bool
}

func (f *flakySynthesizer) Synthesize(ctx context.Context, voice Voice, text string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.panics {
		panic("synthesizer exploded")
	}
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []byte(text), nil
}

func newTestSynthesizer(s Synthesizer) *RetryingSynthesizer {
	return NewRetryingSynthesizer(s, WithRetries(3), WithRetryInterval(time.Millisecond),
		WithSynthesizerLogger(log.Discard()))
}

func TestSynthesizeRetries(t *testing.T) {
	f := &flakySynthesizer{failures: 2, err: errFlaky}
	audio, err := newTestSynthesizer(f).Synthesize(context.Background(), "v", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if string(audio) != "hello" {
		t.Errorf("expected hello, got %q", audio)
	}
	if f.calls != 3 {
		t.Errorf("expected 3 calls, got %d", f.calls)
	}

	f = &flakySynthesizer{failures: 10, err: errFlaky}
	if _, err := newTestSynthesizer(f).Synthesize(context.Background(), "v", "hello"); !errors.Is(err, errFlaky) {
		t.Errorf("expected %v, got %v", errFlaky, err)
	}
	if f.calls != 4 {
		t.Errorf("expected one call and 3 retries, got %d calls", f.calls)
	}
}

func TestSynthesizeUnavailableIsNotRetried(t *testing.T) {
	f := &flakySynthesizer{failures: 10, err: ErrSynthesisUnavailable}
	if _, err := newTestSynthesizer(f).Synthesize(context.Background(), "v", "hello"); !errors.Is(err, ErrSynthesisUnavailable) {
		t.Errorf("expected %v, got %v", ErrSynthesisUnavailable, err)
	}
	if f.calls != 1 {
		t.Errorf("expected 1 call, got %d", f.calls)
	}

	if _, err := newTestSynthesizer(nil).Synthesize(context.Background(), "v", "hello"); !errors.Is(err, ErrSynthesisUnavailable) {
		t.Errorf("expected %v, got %v", ErrSynthesisUnavailable, err)
	}
}

func TestSynthesizeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &flakySynthesizer{failures: 10, err: errFlaky}
	if _, err := newTestSynthesizer(f).Synthesize(ctx, "v", "hello"); err == nil {
		t.Errorf("expected an error for a cancelled context")
	}
	if f.calls != 1 {
		t.Errorf("expected 1 call, got %d", f.calls)
	}
}

func TestRequest(t *testing.T) {
	type result struct {
		audio []byte
		err   error
	}
	results := make(chan result, 2)
	done := func(audio []byte, err error) { results <- result{audio, err} }

	u := Utterance{Speaker: pilot, Spoken: "ready to taxi"}

	s := newTestSynthesizer(&flakySynthesizer{failures: 1, err: errFlaky})
	s.Request(context.Background(), u, done)
	s.Wait()
	if r := <-results; r.err != nil || string(r.audio) != "ready to taxi" {
		t.Errorf("expected audio, got %q and %v", r.audio, r.err)
	}

	s = newTestSynthesizer(&flakySynthesizer{panics: true})
	s.Request(context.Background(), u, done)
	s.Wait()
	if r := <-results; !errors.Is(r.err, ErrSynthesisUnavailable) || r.audio != nil {
		t.Errorf("expected %v, got %q and %v", ErrSynthesisUnavailable, r.audio, r.err)
	}
}
