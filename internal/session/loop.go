package session

import (
	"context"
	"errors"
	"time"
)

// ErrStopped is returned for work posted after the loop has exited.
var ErrStopped = errors.New("session loop stopped")

const DefaultFrameInterval = 16 * time.Millisecond

// Loop runs every state mutation on a single goroutine. Handlers never
// overlap, so the state they touch needs no locking.
type Loop struct {
	events   chan func()
	interval time.Duration
	onFrame  func(now time.Time)
	stopped  chan struct{}
}

func NewLoop(frameInterval time.Duration, onFrame func(now time.Time)) *Loop {
	if frameInterval <= 0 {
		frameInterval = DefaultFrameInterval
	}
	return &Loop{
		events:   make(chan func(), 64),
		interval: frameInterval,
		onFrame:  onFrame,
		stopped:  make(chan struct{}),
	}
}

// Run processes events and frame ticks until ctx ends. It must be called
// once.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.stopped)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.events:
			fn()
		case now := <-ticker.C:
			if l.onFrame != nil {
				l.onFrame(now)
			}
		}
	}
}

// Post queues fn without waiting for it to run. It reports false once the
// loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}
	select {
	case l.events <- fn:
		return true
	case <-l.stopped:
		return false
	}
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case <-l.stopped:
		return ErrStopped
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		return ErrStopped
	case l.events <- wrapped:
	}

	select {
	case <-done:
		return nil
	case <-l.stopped:
		// The loop may have exited right after running fn.
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}
