package internal

import "time"

// ManualHost is a Host driven entirely by its owner: the clock only moves
// when Advance is called and slices are only granted by Flush. It runs
// nothing on its own, which makes scheduler behavior deterministic in tests
// and simulations.
//
// ManualHost is not safe for concurrent use; drive it from one goroutine.
type ManualHost struct {
	now time.Time

	flush FlushFunc

	timeoutFn func(now time.Time)
	timeoutAt time.Time

	frame      time.Duration
	deadline   time.Time
	needsPaint bool
}

func NewManualHost() *ManualHost {
	return &ManualHost{
		now:   time.Unix(0, 0),
		frame: defaultFrame,
	}
}

func (h *ManualHost) Now() time.Time { return h.now }

// Advance moves the clock forward and fires the pending timeout if its due
// time has been reached.
func (h *ManualHost) Advance(d time.Duration) {
	h.now = h.now.Add(d)

	if h.timeoutFn != nil && !h.timeoutAt.After(h.now) {
		fn := h.timeoutFn
		h.timeoutFn = nil
		fn(h.now)
	}
}

// Flush grants a single slice to the armed callback. It reports whether the
// scheduler said more work remains; false also when no callback is armed.
func (h *ManualHost) Flush() bool {
	if h.flush == nil {
		return false
	}

	flush := h.flush
	h.flush = nil
	h.deadline = h.now.Add(h.frame)
	h.needsPaint = false

	more := flush(true, h.now)
	if more && h.flush == nil {
		h.flush = flush // keep granting slices until idle
	}
	return more
}

// FlushAll grants slices until the scheduler reports idle. The clock does not
// move on its own; a task that never yields by itself will spin here forever.
func (h *ManualHost) FlushAll() {
	for h.Flush() {
	}
}

// HasPendingCallback reports whether a flush callback is armed.
func (h *ManualHost) HasPendingCallback() bool { return h.flush != nil }

// HasPendingTimeout reports whether a timeout is armed.
func (h *ManualHost) HasPendingTimeout() bool { return h.timeoutFn != nil }

func (h *ManualHost) RequestCallback(flush FlushFunc) { h.flush = flush }

func (h *ManualHost) CancelCallback() { h.flush = nil }

func (h *ManualHost) RequestTimeout(fn func(now time.Time), d time.Duration) {
	h.timeoutFn = fn
	h.timeoutAt = h.now.Add(d)
}

func (h *ManualHost) CancelTimeout() { h.timeoutFn = nil }

func (h *ManualHost) ShouldYield() bool {
	if h.needsPaint {
		return true
	}
	return !h.now.Before(h.deadline)
}

func (h *ManualHost) NotifyPaintNeeded() { h.needsPaint = true }

func (h *ManualHost) SetFrameBudget(fps int) {
	if fps > 0 && fps <= 125 {
		h.frame = time.Second / time.Duration(fps)
	} else {
		h.frame = defaultFrame
	}
}
