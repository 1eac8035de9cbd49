package internal

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler interleaves prioritized units of work on a single host-granted
// execution thread. Ready tasks live in a min-heap keyed by expiration time,
// delayed tasks in a second heap keyed by start time. The host grants slices
// through flushWork; between tasks the work loop checks the slice budget and
// hands control back so the host event loop never blocks.
type Scheduler struct {
	mu   sync.Mutex
	host Host
	log  *zap.Logger

	taskQueue  taskHeap // ready, keyed by expiration time
	timerQueue taskHeap // delayed, keyed by start time

	taskIDCounter int64

	currentTask     *Task
	currentPriority Priority

	isHostCallbackScheduled bool
	isHostTimeoutScheduled  bool
	isPerformingWork        bool
	isPaused                bool
}

// Options configures a Scheduler.
type Options struct {
	Host Host
	Log  *zap.Logger
}

// Option configures Options.
type Option func(*Options)

// WithHost sets the host platform adapter. The default is a LoopHost.
func WithHost(h Host) Option {
	return func(o *Options) { o.Host = h }
}

// WithLogger sets the scheduler's logger. The default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *Options) { o.Log = log }
}

// ScheduleOptions configures a single Schedule call.
type ScheduleOptions struct {
	Delay time.Duration
}

// ScheduleOption configures ScheduleOptions.
type ScheduleOption func(*ScheduleOptions)

// WithDelay holds the task in the delayed queue until d has elapsed.
func WithDelay(d time.Duration) ScheduleOption {
	return func(o *ScheduleOptions) { o.Delay = d }
}

func NewScheduler(opts ...Option) *Scheduler {
	o := &Options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.Host == nil {
		o.Host = NewLoopHost()
	}
	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return &Scheduler{
		host:            o.Host,
		log:             o.Log,
		currentPriority: NormalPriority,
	}
}

// Schedule enqueues cb at the given priority and returns its handle, which
// the caller may pass to Cancel. With WithDelay the task sits in the delayed
// queue until its start time, then gets promoted to the ready queue.
func (s *Scheduler) Schedule(priority Priority, cb Callback, opts ...ScheduleOption) *Task {
	var so ScheduleOptions
	for _, opt := range opts {
		opt(&so)
	}

	if !priority.valid() {
		s.log.Warn("unknown priority level, falling back to normal",
			zap.Int("priority", int(priority)))
		priority = NormalPriority
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	currentTime := s.host.Now()

	startTime := currentTime
	if so.Delay > 0 {
		startTime = currentTime.Add(so.Delay)
	}

	s.taskIDCounter++
	task := &Task{
		id:             s.taskIDCounter,
		callback:       cb,
		priority:       priority,
		startTime:      startTime,
		expirationTime: startTime.Add(priority.timeout()),
	}

	if startTime.After(currentTime) {
		task.sortIndex = startTime
		s.timerQueue.Push(task)

		if s.taskQueue.Peek() == nil && task == s.timerQueue.Peek() {
			// this is now the soonest delayed task; re-arm the timer for it
			if s.isHostTimeoutScheduled {
				s.host.CancelTimeout()
			} else {
				s.isHostTimeoutScheduled = true
			}
			s.host.RequestTimeout(s.handleTimeout, startTime.Sub(currentTime))
		}

		s.log.Debug("task scheduled",
			zap.Int64("task", task.id),
			zap.Stringer("priority", priority),
			zap.Duration("delay", so.Delay))
		return task
	}

	task.sortIndex = task.expirationTime
	s.taskQueue.Push(task)

	if !s.isHostCallbackScheduled && !s.isPerformingWork {
		s.isHostCallbackScheduled = true
		s.host.RequestCallback(s.flushWork)
	}

	s.log.Debug("task scheduled",
		zap.Int64("task", task.id),
		zap.Stringer("priority", priority))
	return task
}

// Cancel marks the task so it is never invoked again. The task stays in its
// heap; removal by value would cost O(n), so the work loop drops the
// tombstone when it surfaces. Cancelling an already finished or cancelled
// task is a no-op, no matter how often it is repeated.
func (s *Scheduler) Cancel(t *Task) {
	if t == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t.callback = nil
	s.log.Debug("task cancelled", zap.Int64("task", t.id))
}

// RunWithPriority runs fn with the ambient priority set to the given level,
// so work scheduled inside fn inherits it without passing it explicitly. The
// previous level is restored even if fn panics. An unknown level degrades to
// normal.
func (s *Scheduler) RunWithPriority(priority Priority, fn func()) {
	if !priority.valid() {
		s.log.Warn("unknown priority level, falling back to normal",
			zap.Int("priority", int(priority)))
		priority = NormalPriority
	}

	s.mu.Lock()
	previous := s.currentPriority
	s.currentPriority = priority
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.currentPriority = previous
		s.mu.Unlock()
	}()

	fn()
}

// WrapCallback captures the ambient priority at wrap time. Whenever the
// returned function is later invoked, it re-establishes the captured
// priority around fn, then restores whatever was ambient at call time.
func (s *Scheduler) WrapCallback(fn func()) func() {
	s.mu.Lock()
	captured := s.currentPriority
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		previous := s.currentPriority
		s.currentPriority = captured
		s.mu.Unlock()

		defer func() {
			s.mu.Lock()
			s.currentPriority = previous
			s.mu.Unlock()
		}()

		fn()
	}
}

// CurrentPriority returns the ambient priority: the priority of the task
// presently executing, or whatever RunWithPriority established, or normal.
func (s *Scheduler) CurrentPriority() Priority {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentPriority
}

// Pause stalls the work loop: slices still arrive but refuse to dequeue.
// Meant for debugging.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isPaused = true
	s.log.Debug("scheduler paused")
}

// Resume lifts a Pause and re-arms the host callback if tasks are waiting.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isPaused = false
	if !s.isHostCallbackScheduled && !s.isPerformingWork && s.taskQueue.Peek() != nil {
		s.isHostCallbackScheduled = true
		s.host.RequestCallback(s.flushWork)
	}
	s.log.Debug("scheduler resumed")
}

// PeekTask returns the ready queue's front task without committing to run
// it, or nil when the ready queue is empty.
func (s *Scheduler) PeekTask() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskQueue.Peek()
}

// Len returns the number of queued tasks, delayed and cancelled included.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.taskQueue.Len() + s.timerQueue.Len()
}

// ShouldYield reports whether the running task should return a continuation
// and hand control back to the host.
func (s *Scheduler) ShouldYield() bool {
	return s.host.ShouldYield()
}

// advanceTimers promotes delayed tasks whose start time has elapsed into the
// ready queue, dropping cancelled ones on the way. Called with s.mu held.
func (s *Scheduler) advanceTimers(currentTime time.Time) {
	for {
		t := s.timerQueue.Peek()
		if t == nil {
			return
		}

		switch {
		case t.callback == nil:
			// cancelled before it was due
			s.timerQueue.Pop()
		case !t.startTime.After(currentTime):
			s.timerQueue.Pop()
			t.sortIndex = t.expirationTime
			s.taskQueue.Push(t)
			s.log.Debug("delayed task promoted", zap.Int64("task", t.id))
		default:
			// the rest are even further out, by heap order
			return
		}
	}
}

// handleTimeout is the delayed-task promotion entrypoint the host timer
// fires.
func (s *Scheduler) handleTimeout(currentTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isHostTimeoutScheduled = false
	s.advanceTimers(currentTime)

	if s.isHostCallbackScheduled {
		return
	}
	if s.taskQueue.Peek() != nil {
		s.isHostCallbackScheduled = true
		s.host.RequestCallback(s.flushWork)
	} else if first := s.timerQueue.Peek(); first != nil {
		s.isHostTimeoutScheduled = true
		s.host.RequestTimeout(s.handleTimeout, first.startTime.Sub(currentTime))
	}
}

// flushWork is the slice entrypoint handed to the host. If a task panics
// mid-slice the deferred block re-arms the host callback before the panic
// unwinds, so the remaining tasks still get a fresh slice.
func (s *Scheduler) flushWork(hasTimeRemaining bool, initialTime time.Time) (hasMoreWork bool) {
	s.mu.Lock()

	s.isHostCallbackScheduled = false
	if s.isHostTimeoutScheduled {
		// work is being flushed anyway; the timer is stale
		s.isHostTimeoutScheduled = false
		s.host.CancelTimeout()
	}

	s.isPerformingWork = true
	previousPriority := s.currentPriority

	completed := false
	defer func() {
		s.currentTask = nil
		s.currentPriority = previousPriority
		s.isPerformingWork = false

		if !completed && !s.isHostCallbackScheduled {
			s.isHostCallbackScheduled = true
			s.host.RequestCallback(s.flushWork)
		}

		s.mu.Unlock()
	}()

	hasMoreWork = s.workLoop(hasTimeRemaining, initialTime)
	completed = true
	return hasMoreWork
}

// workLoop pops ready tasks in priority order and runs each until it yields
// or completes, re-checking the slice budget between tasks. Called with s.mu
// held; the lock is released around each callback invocation.
func (s *Scheduler) workLoop(hasTimeRemaining bool, initialTime time.Time) bool {
	currentTime := initialTime
	s.advanceTimers(currentTime)

	s.currentTask = s.taskQueue.Peek()
	for s.currentTask != nil && !s.isPaused {
		t := s.currentTask

		if t.expirationTime.After(currentTime) && (!hasTimeRemaining || s.host.ShouldYield()) {
			// unexpired, and the slice budget is gone
			break
		}

		if cb := t.callback; cb != nil {
			t.callback = nil
			s.currentPriority = t.priority
			deadline := !t.expirationTime.After(currentTime)

			continuation := s.invoke(cb, deadline)

			currentTime = s.host.Now()
			if continuation != nil {
				// unfinished; the task stays at the front and resumes on
				// the next slice
				t.callback = continuation
				s.log.Debug("task yielded", zap.Int64("task", t.id))
			} else if s.taskQueue.Peek() == t {
				// the task may have mutated the queue while it ran, so only
				// pop if it is still the front
				s.taskQueue.Pop()
			}
			s.advanceTimers(currentTime)
		} else {
			// cancelled; drop the tombstone
			s.taskQueue.Pop()
		}

		s.currentTask = s.taskQueue.Peek()
	}

	if s.currentTask != nil && !s.isPaused {
		return true
	}
	// When paused this reports idle even with tasks still queued, so the host
	// stops granting slices instead of spinning on a stalled queue. Resume
	// re-arms the callback.
	if first := s.timerQueue.Peek(); first != nil {
		s.isHostTimeoutScheduled = true
		s.host.RequestTimeout(s.handleTimeout, first.startTime.Sub(currentTime))
	}
	return false
}

// invoke runs a task callback outside the scheduler lock so the task can
// schedule, cancel, or query freely. The deferred relock also holds on
// panic, keeping flushWork's cleanup valid while the panic unwinds.
func (s *Scheduler) invoke(cb Callback, deadline bool) Callback {
	s.mu.Unlock()
	defer s.mu.Lock()
	return cb(deadline)
}
