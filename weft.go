// Package weft is a cooperative priority task scheduler: it interleaves
// many units of application work on a single execution thread, yielding to
// the host between short slices so the host's event loop never blocks.
//
// Producers schedule resumable callbacks at one of five priority levels; the
// work loop runs them in expiration order, time-slicing long tasks through
// continuations. The companion lanes package provides the batching model a
// reconciler layers on top.
package weft

import (
	"github.com/weftkit/weft/internal"
	"github.com/weftkit/weft/lanes"
)

// Priority is the scheduling priority of a task.
type Priority = internal.Priority

const (
	Immediate    = internal.ImmediatePriority
	UserBlocking = internal.UserBlockingPriority
	Normal       = internal.NormalPriority
	Low          = internal.LowPriority
	Idle         = internal.IdlePriority
)

// Callback is a resumable unit of work: return nil when done, or a
// continuation to resume on the next slice.
type Callback = internal.Callback

// Host is the injected platform capability a scheduler runs against.
type Host = internal.Host

// FlushFunc is the slice entrypoint a scheduler hands to its host.
type FlushFunc = internal.FlushFunc

// ManualHost is a host with a virtual clock, for tests and deterministic
// simulations.
type ManualHost = internal.ManualHost

// LoopHost is the production host: a pump goroutine granting real-time
// slices.
type LoopHost = internal.LoopHost

// Option configures a Scheduler.
type Option = internal.Option

// ScheduleOption configures a single Schedule call.
type ScheduleOption = internal.ScheduleOption

var (
	// NewManualHost creates a virtual-clock host.
	NewManualHost = internal.NewManualHost

	// NewLoopHost creates the production host.
	NewLoopHost = internal.NewLoopHost

	// WithHost sets the scheduler's host adapter.
	WithHost = internal.WithHost

	// WithLogger sets the scheduler's logger.
	WithLogger = internal.WithLogger

	// WithDelay delays a scheduled task by the given duration.
	WithDelay = internal.WithDelay
)

// Task is a handle to a scheduled unit of work, usable with Cancel.
type Task struct {
	task *internal.Task
}

// Priority returns the priority the task was scheduled at.
func (t *Task) Priority() Priority { return t.task.Priority() }

// Scheduler owns a ready queue and a delayed queue of tasks and drives the
// host-yielding work loop over them. Create one per execution thread; for a
// per-goroutine ambient instance see Default.
type Scheduler struct {
	s *internal.Scheduler
}

// New creates a Scheduler. Without options it runs against a LoopHost and
// logs nowhere.
func New(opts ...Option) *Scheduler {
	return &Scheduler{internal.NewScheduler(opts...)}
}

// Schedule enqueues cb at the given priority and returns a handle the caller
// may later Cancel. WithDelay defers the task's start time.
func (s *Scheduler) Schedule(priority Priority, cb Callback, opts ...ScheduleOption) *Task {
	return &Task{s.s.Schedule(priority, cb, opts...)}
}

// Cancel prevents the task from being invoked again. Safe to call any number
// of times; cancelling a running task takes effect when it next yields.
func (s *Scheduler) Cancel(t *Task) {
	if t == nil {
		return
	}
	s.s.Cancel(t.task)
}

// RunWithPriority runs fn with the ambient priority set to the given level,
// restoring the previous level afterwards even if fn panics.
func (s *Scheduler) RunWithPriority(priority Priority, fn func()) {
	s.s.RunWithPriority(priority, fn)
}

// WrapCallback captures the ambient priority now and returns a function that
// re-establishes it around every later invocation of fn.
func (s *Scheduler) WrapCallback(fn func()) func() {
	return s.s.WrapCallback(fn)
}

// CurrentPriority returns the ambient priority.
func (s *Scheduler) CurrentPriority() Priority {
	return s.s.CurrentPriority()
}

// Pause stalls the work loop without discarding queued tasks.
func (s *Scheduler) Pause() { s.s.Pause() }

// Resume lifts a Pause.
func (s *Scheduler) Resume() { s.s.Resume() }

// PeekTask returns the next ready task without committing to run it, or nil.
func (s *Scheduler) PeekTask() *Task {
	t := s.s.PeekTask()
	if t == nil {
		return nil
	}
	return &Task{t}
}

// Len returns the number of queued tasks, delayed ones included.
func (s *Scheduler) Len() int { return s.s.Len() }

// ShouldYield reports whether the running task should return a continuation
// and hand control back to the host.
func (s *Scheduler) ShouldYield() bool { return s.s.ShouldYield() }

// Schedule enqueues cb on the calling goroutine's default scheduler.
func Schedule(priority Priority, cb Callback, opts ...ScheduleOption) *Task {
	return Default().Schedule(priority, cb, opts...)
}

// Cancel cancels a task on the calling goroutine's default scheduler.
func Cancel(t *Task) {
	Default().Cancel(t)
}

// RunWithPriority runs fn at the given ambient priority on the calling
// goroutine's default scheduler.
func RunWithPriority(priority Priority, fn func()) {
	Default().RunWithPriority(priority, fn)
}

// CurrentPriority returns the ambient priority of the calling goroutine's
// default scheduler.
func CurrentPriority() Priority {
	return Default().CurrentPriority()
}

// PriorityToLanePriority maps a scheduler priority onto the lane priority a
// reconciler should create work at.
func PriorityToLanePriority(p Priority) lanes.LanePriority {
	switch p {
	case Immediate:
		return lanes.SyncLanePriority
	case UserBlocking:
		return lanes.InputContinuousLanePriority
	case Normal, Low:
		return lanes.DefaultLanePriority
	case Idle:
		return lanes.IdleLanePriority
	default:
		return lanes.NoLanePriority
	}
}

// LanePriorityToPriority maps a lane priority back onto the scheduler
// priority its batch should be flushed at.
func LanePriorityToPriority(lp lanes.LanePriority) Priority {
	switch {
	case lp >= lanes.SyncBatchedLanePriority:
		return Immediate
	case lp >= lanes.InputContinuousLanePriority:
		return UserBlocking
	case lp >= lanes.SelectiveHydrationLanePriority:
		return Normal
	case lp >= lanes.OffscreenLanePriority:
		return Idle
	default:
		panic("weft: cannot map the empty lane priority")
	}
}
