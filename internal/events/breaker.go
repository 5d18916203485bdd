package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lychee-technology/formflow"
	"go.uber.org/zap"
)

const (
	defaultFailureThreshold = 5
	defaultFailureWindow    = 30 * time.Second
	defaultPause            = time.Minute
)

// ErrPublisherPaused is returned while the breaker holds publishing back.
var ErrPublisherPaused = errors.New("event publishing paused after repeated failures")

// breaker counts recent publish failures and pauses publishing once
// threshold failures land within window.
type breaker struct {
	mu        sync.Mutex
	failures  []time.Time
	threshold int
	window    time.Duration
	pause     time.Duration
	openUntil time.Time
	now       func() time.Time
}

func newBreaker(threshold int, window, pause time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		window:    window,
		pause:     pause,
		failures:  make([]time.Time, 0, threshold),
		now:       time.Now,
	}
}

// recordFailure reports whether this failure opened the breaker.
func (b *breaker) recordFailure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, at := range b.failures {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	b.failures = append(kept, now)

	if len(b.failures) < b.threshold {
		return false
	}
	b.openUntil = now.Add(b.pause)
	b.failures = b.failures[:0]
	return true
}

func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = b.failures[:0]
	b.openUntil = time.Time{}
}

func (b *breaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.now().Before(b.openUntil)
}

// GuardedPublisher stops calling a failing broker for a while so that
// submissions are not slowed down by publish timeouts.
type GuardedPublisher struct {
	next    formflow.EventPublisher
	breaker *breaker
}

var _ formflow.EventPublisher = (*GuardedPublisher)(nil)

// Guard wraps next with the default failure policy.
func Guard(next formflow.EventPublisher) *GuardedPublisher {
	return &GuardedPublisher{
		next:    next,
		breaker: newBreaker(defaultFailureThreshold, defaultFailureWindow, defaultPause),
	}
}

func (p *GuardedPublisher) Publish(ctx context.Context, event formflow.SubmissionEvent) error {
	if p.breaker.isOpen() {
		return ErrPublisherPaused
	}
	if err := p.next.Publish(ctx, event); err != nil {
		if p.breaker.recordFailure() {
			zap.S().Warnw("pausing event publishing", "pause", p.breaker.pause, "error", err)
		}
		return err
	}
	p.breaker.recordSuccess()
	return nil
}

func (p *GuardedPublisher) Close() error {
	return p.next.Close()
}
