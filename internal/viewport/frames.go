package viewport

import "time"

// FrameQueue defers work to the next animation frame. Callbacks requested
// while a frame is being flushed run on the following frame.
type FrameQueue struct {
	pending []func(now time.Time)
}

func (q *FrameQueue) Request(fn func(now time.Time)) {
	if fn == nil {
		return
	}
	q.pending = append(q.pending, fn)
}

// Flush runs the callbacks queued before this call and returns how many ran.
func (q *FrameQueue) Flush(now time.Time) int {
	batch := q.pending
	q.pending = nil
	for _, fn := range batch {
		fn(now)
	}
	return len(batch)
}

func (q *FrameQueue) Len() int { return len(q.pending) }
