package lanes

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var epoch = time.Unix(0, 0)

func TestNextLanes(t *testing.T) {
	t.Run("no pending work means no batch", func(t *testing.T) {
		r := NewRegistry()

		next, priority := r.NextLanes(NoLanes)

		assert.Equal(t, NoLanes, next)
		assert.Equal(t, NoLanePriority, priority)
	})

	t.Run("picks the most urgent pending batch", func(t *testing.T) {
		r := NewRegistry()
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)
		discreteLane := FindUpdateLane(InputDiscreteLanePriority, NoLanes)

		r.MarkUpdated(defaultLane, epoch)
		r.MarkUpdated(discreteLane, epoch)

		next, priority := r.NextLanes(NoLanes)

		assert.Equal(t, discreteLane, next)
		assert.Equal(t, InputDiscreteLanePriority, priority)
	})

	t.Run("widens to every pending lane of equal or higher priority", func(t *testing.T) {
		r := NewRegistry()
		discreteLane := FindUpdateLane(InputDiscreteLanePriority, NoLanes)

		r.MarkUpdated(SyncLane, epoch)
		r.MarkUpdated(discreteLane, epoch)

		next, priority := r.NextLanes(NoLanes)

		// selecting sync pulls in nothing below it; selecting from the top
		// always batches the full prefix that is pending
		assert.Equal(t, SyncLane, next)
		assert.Equal(t, SyncLanePriority, priority)

		r2 := NewRegistry()
		r2.MarkUpdated(discreteLane, epoch)
		r2.MarkUpdated(SyncBatchedLane, epoch)
		r2.MarkSuspended(SyncBatchedLane)

		next, _ = r2.NextLanes(NoLanes)

		// the discrete pick widens back up to the suspended sync-batched
		// lane: widening looks at pending, not at what was unblocked
		assert.Equal(t, discreteLane|SyncBatchedLane, next)
	})

	t.Run("suspended lanes are skipped by the pick", func(t *testing.T) {
		r := NewRegistry()
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)
		discreteLane := FindUpdateLane(InputDiscreteLanePriority, NoLanes)

		r.MarkUpdated(discreteLane, epoch)
		r.MarkUpdated(defaultLane, epoch)
		r.MarkSuspended(discreteLane)

		next, priority := r.NextLanes(NoLanes)

		// the batch priority comes from the unsuspended default lane, but
		// widening then pulls the suspended discrete lane back in: it is
		// still pending and of higher priority
		assert.Equal(t, defaultLane|discreteLane, next)
		assert.Equal(t, DefaultLanePriority, priority)
	})

	t.Run("pinged lanes revive suspended work", func(t *testing.T) {
		r := NewRegistry()
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)

		r.MarkUpdated(defaultLane, epoch)
		r.MarkSuspended(defaultLane)

		next, priority := r.NextLanes(NoLanes)
		assert.Equal(t, NoLanes, next)
		assert.Equal(t, NoLanePriority, priority)

		r.MarkPinged(defaultLane)

		next, priority = r.NextLanes(NoLanes)
		assert.Equal(t, defaultLane, next)
		assert.Equal(t, DefaultLanePriority, priority)
	})

	t.Run("idle work waits for non-idle work", func(t *testing.T) {
		r := NewRegistry()
		idleLane := FindUpdateLane(IdleLanePriority, NoLanes)
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)

		r.MarkUpdated(idleLane, epoch)
		r.MarkUpdated(defaultLane, epoch)

		next, _ := r.NextLanes(NoLanes)
		assert.Equal(t, defaultLane, next)

		r.MarkFinished(idleLane)

		next, priority := r.NextLanes(NoLanes)
		assert.Equal(t, idleLane, next)
		assert.Equal(t, IdleLanePriority, priority)
	})

	t.Run("keeps an in-progress batch over an equal interruption", func(t *testing.T) {
		r := NewRegistry()
		first := FindUpdateLane(DefaultLanePriority, NoLanes)
		second := FindUpdateLane(DefaultLanePriority, first)

		r.MarkUpdated(first, epoch)
		r.MarkUpdated(second, epoch)

		// both lanes are one batch when nothing is in progress
		next, _ := r.NextLanes(NoLanes)
		assert.Equal(t, first|second, next)

		// partial work on just the first lane survives the equal-priority rival
		next, priority := r.NextLanes(first)
		assert.Equal(t, first, next)
		assert.Equal(t, DefaultLanePriority, priority)
	})

	t.Run("a more urgent batch interrupts in-progress work", func(t *testing.T) {
		r := NewRegistry()
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)
		discreteLane := FindUpdateLane(InputDiscreteLanePriority, NoLanes)

		r.MarkUpdated(defaultLane, epoch)
		r.MarkUpdated(discreteLane, epoch)

		next, priority := r.NextLanes(defaultLane)

		assert.Equal(t, discreteLane, next)
		assert.Equal(t, InputDiscreteLanePriority, priority)
	})

	t.Run("a suspended in-progress batch is abandoned", func(t *testing.T) {
		r := NewRegistry()
		first := FindUpdateLane(DefaultLanePriority, NoLanes)
		second := FindUpdateLane(DefaultLanePriority, first)

		r.MarkUpdated(first, epoch)
		r.MarkUpdated(second, epoch)
		r.MarkSuspended(first)

		// the suspended wip set loses its preference; the new batch is the
		// widened rival, which may still include the suspended lane
		next, _ := r.NextLanes(first)

		assert.True(t, next.Has(second))
		assert.NotEqual(t, first, next)
	})

	t.Run("entangled lanes render together", func(t *testing.T) {
		r := NewRegistry()
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)
		transitionLane := FindTransitionLane(NoLanes, NoLanes)

		r.MarkUpdated(defaultLane, epoch)
		r.MarkUpdated(transitionLane, epoch)
		r.MarkEntangled(defaultLane | transitionLane)

		// the default batch would exclude the lower-priority transition lane,
		// but entanglement pulls it in
		next, _ := r.NextLanes(NoLanes)

		assert.True(t, next.Has(defaultLane))
		assert.True(t, next.Has(transitionLane))
	})
}

func TestStarvation(t *testing.T) {
	t.Run("pending lanes get a deadline on first scan", func(t *testing.T) {
		r := NewRegistry()
		discreteLane := FindUpdateLane(InputDiscreteLanePriority, NoLanes)
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)
		idleLane := FindUpdateLane(IdleLanePriority, NoLanes)

		r.MarkUpdated(discreteLane, epoch)
		r.MarkUpdated(defaultLane, epoch)
		r.MarkUpdated(idleLane, epoch)

		r.MarkStarvedLanesAsExpired(epoch)

		assert.Equal(t, epoch.Add(250*time.Millisecond), r.expirationTimes[laneIndex(discreteLane)])
		assert.Equal(t, epoch.Add(5000*time.Millisecond), r.expirationTimes[laneIndex(defaultLane)])
		assert.True(t, r.expirationTimes[laneIndex(idleLane)].IsZero(), "idle work never expires")
	})

	t.Run("a starved lane is forced through at sync priority", func(t *testing.T) {
		r := NewRegistry()
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)

		r.MarkUpdated(defaultLane, epoch)
		r.MarkStarvedLanesAsExpired(epoch)

		// repeated urgent interruptions keep the lane deferred
		r.MarkUpdated(SyncLane, epoch.Add(time.Second))

		r.MarkStarvedLanesAsExpired(epoch.Add(4 * time.Second))
		assert.Equal(t, NoLanes, r.Expired())

		r.MarkStarvedLanesAsExpired(epoch.Add(6 * time.Second))
		assert.True(t, r.Expired().Has(defaultLane))

		next, priority := r.NextLanes(NoLanes)
		assert.True(t, next.Has(defaultLane))
		assert.Equal(t, SyncLanePriority, priority)
	})

	t.Run("suspended lanes without a ping get no deadline", func(t *testing.T) {
		r := NewRegistry()
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)

		r.MarkUpdated(defaultLane, epoch)
		r.MarkSuspended(defaultLane)

		r.MarkStarvedLanesAsExpired(epoch)
		assert.True(t, r.expirationTimes[laneIndex(defaultLane)].IsZero())

		r.MarkPinged(defaultLane)
		r.MarkStarvedLanesAsExpired(epoch)
		assert.False(t, r.expirationTimes[laneIndex(defaultLane)].IsZero())
	})
}

func TestRegistryMarks(t *testing.T) {
	t.Run("an update unsuspends lower priority lanes", func(t *testing.T) {
		r := NewRegistry()
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)
		discreteLane := FindUpdateLane(InputDiscreteLanePriority, NoLanes)

		r.MarkUpdated(defaultLane, epoch)
		r.MarkSuspended(defaultLane)

		r.MarkUpdated(discreteLane, epoch)

		assert.Equal(t, NoLanes, r.Suspended())
	})

	t.Run("an update records its event time", func(t *testing.T) {
		r := NewRegistry()
		when := epoch.Add(3 * time.Second)

		r.MarkUpdated(SyncLane, when)

		assert.Equal(t, when, r.EventTime(SyncLane))
	})

	t.Run("updating with no lane is a logic error", func(t *testing.T) {
		r := NewRegistry()

		assert.Panics(t, func() {
			r.MarkUpdated(NoLane, epoch)
		})
	})

	t.Run("suspension clears an earlier ping", func(t *testing.T) {
		r := NewRegistry()
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)

		r.MarkUpdated(defaultLane, epoch)
		r.MarkSuspended(defaultLane)
		r.MarkPinged(defaultLane)
		assert.Equal(t, defaultLane, r.Pinged())

		r.MarkSuspended(defaultLane)
		assert.Equal(t, NoLanes, r.Pinged())
	})

	t.Run("pings only apply to suspended lanes", func(t *testing.T) {
		r := NewRegistry()
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)

		r.MarkUpdated(defaultLane, epoch)
		r.MarkPinged(defaultLane)

		assert.Equal(t, NoLanes, r.Pinged())
	})

	t.Run("expired and mutable-read marks are clamped to pending", func(t *testing.T) {
		r := NewRegistry()
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)

		r.MarkUpdated(defaultLane, epoch)
		r.MarkExpired(defaultLane | SyncLane)
		r.MarkMutableRead(defaultLane | SyncLane)

		assert.Equal(t, defaultLane, r.Expired())
		assert.Equal(t, defaultLane, r.MutableRead())
	})
}

func TestMarkFinished(t *testing.T) {
	t.Run("finished lanes are fully reset", func(t *testing.T) {
		r := NewRegistry()
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)
		transitionLane := FindTransitionLane(NoLanes, NoLanes)

		r.MarkUpdated(defaultLane, epoch)
		r.MarkUpdated(transitionLane, epoch)
		r.MarkSuspended(transitionLane)
		r.MarkEntangled(defaultLane | transitionLane)
		r.MarkStarvedLanesAsExpired(epoch)

		r.MarkFinished(transitionLane)

		assert.Equal(t, transitionLane, r.Pending())
		assert.Equal(t, NoLanes, r.Suspended())
		assert.Equal(t, NoLanes, r.Pinged())
		assert.True(t, r.EventTime(defaultLane).IsZero())
		assert.True(t, r.expirationTimes[laneIndex(defaultLane)].IsZero())
		assert.Equal(t, NoLanes, r.entanglements[laneIndex(defaultLane)])
	})

	t.Run("registers stay subsets of pending", func(t *testing.T) {
		r := NewRegistry()
		defaultLane := FindUpdateLane(DefaultLanePriority, NoLanes)
		idleLane := FindUpdateLane(IdleLanePriority, NoLanes)

		r.MarkUpdated(defaultLane, epoch)
		r.MarkUpdated(idleLane, epoch)
		r.MarkExpired(defaultLane | idleLane)
		r.MarkMutableRead(defaultLane)
		r.MarkEntangled(defaultLane | idleLane)

		r.MarkFinished(idleLane)

		pending := r.Pending()
		assert.True(t, r.Suspended().IsSubsetOf(pending))
		assert.True(t, r.Pinged().IsSubsetOf(pending))
		assert.True(t, r.Expired().IsSubsetOf(pending))
		assert.True(t, r.MutableRead().IsSubsetOf(pending))
		assert.True(t, r.Entangled().IsSubsetOf(pending))
	})

	t.Run("reset clears everything", func(t *testing.T) {
		r := NewRegistry()
		r.MarkUpdated(SyncLane, epoch)
		r.MarkEntangled(SyncLane)

		r.Reset()

		assert.False(t, r.HasWork())
		assert.Equal(t, NoLanes, r.Entangled())
		assert.True(t, r.EventTime(SyncLane).IsZero())
	})
}
