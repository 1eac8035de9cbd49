//go:build wasm

package weft

import "sync"

var once sync.Once
var defaultScheduler *Scheduler

// Default returns the process-wide scheduler. Wasm is single-threaded, so a
// single instance serves every caller.
func Default() *Scheduler {
	once.Do(func() {
		defaultScheduler = New()
	})

	return defaultScheduler
}
