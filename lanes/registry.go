package lanes

import (
	"fmt"
	"time"
)

// Starvation deadlines per priority class. A lane can be deferred by more
// urgent interruptions only until its deadline passes; after that it is
// forced through at sync priority.
const (
	userBlockingExpiration = 250 * time.Millisecond
	normalExpiration       = 5000 * time.Millisecond
)

// Registry holds the lane bookkeeping for one render root: which lanes have
// pending work, which are suspended, pinged, expired or entangled, and the
// per-lane event and expiration timestamps.
//
// The registry has a single writer by construction: the reconciler mutates
// it from inside the scheduler's work slice.
type Registry struct {
	pendingLanes     Lanes
	suspendedLanes   Lanes
	pingedLanes      Lanes
	expiredLanes     Lanes
	mutableReadLanes Lanes
	entangledLanes   Lanes

	eventTimes      [TotalLanes]time.Time
	expirationTimes [TotalLanes]time.Time
	entanglements   [TotalLanes]Lanes
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Pending returns the lanes with work queued on them.
func (r *Registry) Pending() Lanes { return r.pendingLanes }

// Suspended returns the lanes blocked on something external.
func (r *Registry) Suspended() Lanes { return r.suspendedLanes }

// Pinged returns the suspended lanes whose blocking condition has resolved.
func (r *Registry) Pinged() Lanes { return r.pingedLanes }

// Expired returns the lanes forced to synchronous priority by starvation.
func (r *Registry) Expired() Lanes { return r.expiredLanes }

// Entangled returns the lanes that must render together with some other
// lane.
func (r *Registry) Entangled() Lanes { return r.entangledLanes }

// MutableRead returns the lanes that read from an external mutable source.
func (r *Registry) MutableRead() Lanes { return r.mutableReadLanes }

// HasWork reports whether any lane is pending.
func (r *Registry) HasWork() bool { return r.pendingLanes != NoLanes }

// EventTime returns the timestamp of the most recent update on the lane.
func (r *Registry) EventTime(lane Lane) time.Time {
	return r.eventTimes[laneIndex(lane)]
}

// NextLanes chooses the batch to work on next, together with its priority.
//
// Expired lanes trump everything: they are returned at sync priority so no
// update starves forever. Otherwise non-idle work is preferred over idle,
// unsuspended over suspended, and pinged over still-blocked. The chosen
// lanes are widened to every pending lane of equal or higher priority so a
// render always attempts the full batch, then unioned with whatever they are
// entangled with.
//
// If work is already in progress on wipLanes and the new choice is not more
// urgent, the in-progress set wins: partial work is not discarded for an
// equal or lower priority interruption, unless the in-progress set is itself
// suspended.
func (r *Registry) NextLanes(wipLanes Lanes) (Lanes, LanePriority) {
	pendingLanes := r.pendingLanes
	if pendingLanes == NoLanes {
		return NoLanes, NoLanePriority
	}

	nextLanes := NoLanes
	nextLanePriority := NoLanePriority

	suspendedLanes := r.suspendedLanes
	pingedLanes := r.pingedLanes

	if r.expiredLanes != NoLanes {
		nextLanes = r.expiredLanes
		nextLanePriority = SyncLanePriority
	} else if nonIdlePendingLanes := pendingLanes & NonIdleLanes; nonIdlePendingLanes != NoLanes {
		if unblocked := nonIdlePendingLanes &^ suspendedLanes; unblocked != NoLanes {
			nextLanes, nextLanePriority = HighestPriorityLanes(unblocked)
		} else if pinged := nonIdlePendingLanes & pingedLanes; pinged != NoLanes {
			nextLanes, nextLanePriority = HighestPriorityLanes(pinged)
		}
	} else {
		// only idle work left
		if unblocked := pendingLanes &^ suspendedLanes; unblocked != NoLanes {
			nextLanes, nextLanePriority = HighestPriorityLanes(unblocked)
		} else if pinged := pendingLanes & pingedLanes; pinged != NoLanes {
			nextLanes, nextLanePriority = HighestPriorityLanes(pinged)
		}
	}

	if nextLanes == NoLanes {
		// everything actionable is suspended and unpinged
		return NoLanes, NoLanePriority
	}

	// widen to the full batch: every pending lane at equal or higher priority
	nextLanes = pendingLanes & EqualOrHigherPriorityLanes(nextLanes)

	if wipLanes != NoLanes && wipLanes != nextLanes && !wipLanes.Has(suspendedLanes) {
		_, wipLanePriority := HighestPriorityLanes(wipLanes)
		if nextLanePriority <= wipLanePriority {
			return wipLanes, wipLanePriority
		}
	}

	// entangled lanes always render together
	if entangled := r.entangledLanes & nextLanes; entangled != NoLanes {
		for index := range entangled.Each() {
			nextLanes |= r.entanglements[index]
		}
	}

	return nextLanes, nextLanePriority
}

// MarkStarvedLanesAsExpired stamps a deadline on every pending lane that
// lacks one (unless it is suspended without a ping) and moves lanes whose
// deadline has passed into the expired set, where NextLanes forces them
// through regardless of more urgent interruptions.
func (r *Registry) MarkStarvedLanesAsExpired(now time.Time) {
	for index, lane := range r.pendingLanes.Each() {
		expirationTime := r.expirationTimes[index]
		if expirationTime.IsZero() {
			if !r.suspendedLanes.Has(lane) || r.pingedLanes.Has(lane) {
				r.expirationTimes[index] = computeExpirationTime(lane, now)
			}
		} else if !expirationTime.After(now) {
			r.expiredLanes |= lane
		}
	}
}

func computeExpirationTime(lane Lane, now time.Time) time.Time {
	_, priority := HighestPriorityLanes(lane)
	switch {
	case priority >= InputContinuousLanePriority:
		// user-adjacent work goes stale fast
		return now.Add(userBlockingExpiration)
	case priority >= TransitionLanePriority:
		return now.Add(normalExpiration)
	default:
		// retry, idle and offscreen work never expires
		return time.Time{}
	}
}

// MarkUpdated records a fresh update on the lane. The update also clears the
// suspended and pinged bits of every lane at equal or lower priority, since
// whatever was blocking them may be unblocked by the new work; interleaved
// updates should not be starved by a stale suspension.
func (r *Registry) MarkUpdated(updateLane Lane, eventTime time.Time) {
	if updateLane == NoLane {
		panic("lanes: update with no lane")
	}

	r.pendingLanes |= updateLane

	higherPriorityLanes := updateLane - 1 // every bit below updateLane
	r.suspendedLanes &= higherPriorityLanes
	r.pingedLanes &= higherPriorityLanes

	r.eventTimes[laneIndex(updateLane)] = eventTime
}

// MarkSuspended records that work on the lanes is blocked on something
// external. A suspension clears any earlier ping.
func (r *Registry) MarkSuspended(suspendedLanes Lanes) {
	r.suspendedLanes |= suspendedLanes
	r.pingedLanes &^= suspendedLanes
}

// MarkPinged records that the blocking condition of suspended lanes has
// resolved, making them eligible again. Lanes that are not currently
// suspended are ignored.
func (r *Registry) MarkPinged(pingedLanes Lanes) {
	r.pingedLanes |= r.suspendedLanes & pingedLanes
}

// MarkExpired forces pending lanes into the expired set.
func (r *Registry) MarkExpired(expiredLanes Lanes) {
	r.expiredLanes |= expiredLanes & r.pendingLanes
}

// MarkMutableRead records that pending lanes read from an external mutable
// source.
func (r *Registry) MarkMutableRead(updateLane Lane) {
	r.mutableReadLanes |= updateLane & r.pendingLanes
}

// MarkEntangled constrains the given lanes to always be serviced in the same
// batch. Entanglement exists so that several updates from one logical source
// are always rendered together, preventing visible tearing.
func (r *Registry) MarkEntangled(entangledLanes Lanes) {
	r.entangledLanes |= entangledLanes
	for index := range entangledLanes.Each() {
		r.entanglements[index] |= entangledLanes
	}
}

// MarkFinished reconciles the registry after a batch commits. remainingLanes
// is whatever was skipped during the batch and stays pending for a retry;
// every lane no longer pending has its flags and per-lane slots reset.
func (r *Registry) MarkFinished(remainingLanes Lanes) {
	noLongerPendingLanes := r.pendingLanes &^ remainingLanes

	r.pendingLanes = remainingLanes
	r.suspendedLanes = NoLanes
	r.pingedLanes = NoLanes
	r.expiredLanes &= remainingLanes
	r.mutableReadLanes &= remainingLanes
	r.entangledLanes &= remainingLanes

	for index := range noLongerPendingLanes.Each() {
		r.eventTimes[index] = time.Time{}
		r.expirationTimes[index] = time.Time{}
		r.entanglements[index] = NoLanes
	}
}

// Reset clears the registry wholesale, as when the owning root is discarded.
func (r *Registry) Reset() {
	*r = Registry{}
}

func (r *Registry) String() string {
	return fmt.Sprintf("Registry{pending: %v, suspended: %v, pinged: %v, expired: %v, entangled: %v}",
		r.pendingLanes, r.suspendedLanes, r.pingedLanes, r.expiredLanes, r.entangledLanes)
}
