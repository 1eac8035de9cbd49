package internal

import (
	"sync"
	"time"
)

// defaultFrame is the slice budget when no frame rate has been set. Short
// enough to keep the host responsive, long enough to amortize loop overhead.
const defaultFrame = 5 * time.Millisecond

// LoopHost is the production Host: a single pump goroutine that grants
// slices back to back while the scheduler reports more work, then sleeps
// until the next request or timer.
type LoopHost struct {
	mu         sync.Mutex
	frame      time.Duration
	deadline   time.Time
	needsPaint bool

	flush FlushFunc
	seq   uint64
	timer *time.Timer

	wake   chan struct{}
	closed chan struct{}
}

// NewLoopHost creates a LoopHost and starts its pump goroutine. Call Close
// when the owning scheduler is discarded.
func NewLoopHost() *LoopHost {
	h := &LoopHost{
		frame:  defaultFrame,
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	go h.pump()
	return h
}

// Close stops the pump goroutine and disarms any pending timer.
func (h *LoopHost) Close() {
	h.mu.Lock()
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.mu.Unlock()

	select {
	case <-h.closed:
	default:
		close(h.closed)
	}
}

func (h *LoopHost) Now() time.Time { return time.Now() }

func (h *LoopHost) RequestCallback(flush FlushFunc) {
	h.mu.Lock()
	h.flush = flush
	h.seq++
	h.mu.Unlock()

	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *LoopHost) CancelCallback() {
	h.mu.Lock()
	h.flush = nil
	h.seq++
	h.mu.Unlock()
}

func (h *LoopHost) RequestTimeout(fn func(now time.Time), d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(d, func() {
		select {
		case <-h.closed:
			return
		default:
		}
		fn(time.Now())
	})
}

func (h *LoopHost) CancelTimeout() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

func (h *LoopHost) ShouldYield() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.needsPaint {
		return true
	}
	return !time.Now().Before(h.deadline)
}

func (h *LoopHost) NotifyPaintNeeded() {
	h.mu.Lock()
	h.needsPaint = true
	h.mu.Unlock()
}

func (h *LoopHost) SetFrameBudget(fps int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if fps > 0 && fps <= 125 {
		h.frame = time.Second / time.Duration(fps)
	} else {
		h.frame = defaultFrame
	}
}

func (h *LoopHost) pump() {
	for {
		select {
		case <-h.closed:
			return
		case <-h.wake:
		}

		for {
			h.mu.Lock()
			flush := h.flush
			seq := h.seq
			if flush == nil {
				h.mu.Unlock()
				break
			}
			now := time.Now()
			h.deadline = now.Add(h.frame)
			h.needsPaint = false
			h.mu.Unlock()

			more := flush(true, now)

			h.mu.Lock()
			if !more && h.seq == seq {
				// idle, and nothing re-armed while the slice ran
				h.flush = nil
			}
			done := h.flush == nil
			h.mu.Unlock()

			if done {
				break
			}

			select {
			case <-h.closed:
				return
			default:
			}
		}
	}
}
