//go:build !wasm

package weft

import (
	"sync"

	"github.com/petermattis/goid"
)

var schedulers sync.Map

// Default returns the calling goroutine's scheduler, creating it on first
// use. Code that wants full control over host and logging should use New and
// hold the instance explicitly.
func Default() *Scheduler {
	gid := goid.Get()

	if s, ok := schedulers.Load(gid); ok {
		return s.(*Scheduler)
	}

	s := New()
	schedulers.Store(gid, s)
	return s
}
