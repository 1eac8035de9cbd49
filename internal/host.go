package internal

import "time"

// FlushFunc is the scheduler's flush entrypoint. A Host invokes it whenever
// it grants a slice, passing whether any time budget remains and the clock
// reading at the start of the slice. The return value reports whether more
// work remains, in which case the host should grant another slice soon.
type FlushFunc func(hasTimeRemaining bool, now time.Time) bool

// Host is the platform capability a Scheduler runs against. It is a thin
// wrapper over the platform's clock, timers and yield signal; everything else
// lives in the scheduler itself.
//
// A host grants slices one at a time and never concurrently: the scheduler
// assumes all flush and timeout invocations are serialized.
type Host interface {
	// Now returns the host clock. It must be monotonic.
	Now() time.Time

	// RequestCallback asks the host to grant a slice soon. At most one
	// callback is armed at a time; a new request replaces the previous one.
	RequestCallback(flush FlushFunc)

	// CancelCallback disarms the pending callback, if any.
	CancelCallback()

	// RequestTimeout asks the host to invoke fn once, after d has elapsed.
	// At most one timeout is armed at a time.
	RequestTimeout(fn func(now time.Time), d time.Duration)

	// CancelTimeout disarms the pending timeout, if any.
	CancelTimeout()

	// ShouldYield reports whether the current slice's budget is exhausted
	// and control should return to the host.
	ShouldYield() bool

	// NotifyPaintNeeded hints that the host has pending paint work, making
	// ShouldYield answer true for the remainder of the slice.
	NotifyPaintNeeded()

	// SetFrameBudget adjusts the slice budget to fit fps frames per second.
	// Out-of-range values reset the budget to the default.
	SetFrameBudget(fps int)
}
