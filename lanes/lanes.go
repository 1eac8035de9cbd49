// Package lanes implements the lane-based priority model a reconciler uses
// to tag, batch, defer, and retry units of rendering work.
//
// A lane is one bit in a 31-bit mask; lower bit positions are more urgent.
// Several lanes share a coarser LanePriority, which is how concurrent updates
// of the same class coalesce into a single batch. A Registry holds the lane
// bookkeeping for one render root.
package lanes

import (
	"fmt"
	"iter"
	"math/bits"
)

// Lanes is a bitmask of up to 31 lanes. Lane is the same type with the
// convention that exactly one bit is set.
type Lanes uint32

type Lane = Lanes

// TotalLanes is the number of usable bit positions.
const TotalLanes = 31

const (
	NoLanes Lanes = 0
	NoLane  Lane  = 0

	SyncLane        Lane = 0b0000000000000000000000000000001
	SyncBatchedLane Lane = 0b0000000000000000000000000000010

	InputDiscreteHydrationLane Lane  = 0b0000000000000000000000000000100
	InputDiscreteLanes         Lanes = 0b0000000000000000000000000011000

	InputContinuousHydrationLane Lane  = 0b0000000000000000000000000100000
	InputContinuousLanes         Lanes = 0b0000000000000000000000011000000

	DefaultHydrationLane Lane  = 0b0000000000000000000000100000000
	DefaultLanes         Lanes = 0b0000000000000000000111000000000

	TransitionHydrationLane Lane  = 0b0000000000000000001000000000000
	TransitionLanes         Lanes = 0b0000000001111111110000000000000

	RetryLanes Lanes = 0b0000011110000000000000000000000

	SelectiveHydrationLane Lane = 0b0000100000000000000000000000000

	NonIdleLanes Lanes = 0b0000111111111111111111111111111

	IdleHydrationLane Lane  = 0b0001000000000000000000000000000
	IdleLanes         Lanes = 0b0110000000000000000000000000000

	OffscreenLane Lane = 0b1000000000000000000000000000000
)

// LanePriority ranks the lane groups; higher ordinals are serviced first. It
// is a finer-grained ranking than the scheduler's five priority levels and
// independent of them.
type LanePriority int

const (
	NoLanePriority LanePriority = iota
	OffscreenLanePriority
	IdleLanePriority
	IdleHydrationLanePriority
	SelectiveHydrationLanePriority
	RetryLanePriority
	TransitionLanePriority
	TransitionHydrationLanePriority
	DefaultLanePriority
	DefaultHydrationLanePriority
	InputContinuousLanePriority
	InputContinuousHydrationLanePriority
	InputDiscreteLanePriority
	InputDiscreteHydrationLanePriority
	SyncBatchedLanePriority
	SyncLanePriority
)

// HighestPriorityLane returns the most urgent lane in the set: the lowest
// set bit, since low bit positions are reserved for the urgent classes.
func HighestPriorityLane(lanes Lanes) Lane {
	return lanes & -lanes
}

// LowestPriorityLane returns the least urgent lane in the set.
func LowestPriorityLane(lanes Lanes) Lane {
	if lanes == NoLanes {
		return NoLane
	}
	return Lane(1) << laneIndex(lanes)
}

// EqualOrHigherPriorityLanes widens the set to every lane at or above the
// priority of its least urgent member.
func EqualOrHigherPriorityLanes(lanes Lanes) Lanes {
	if lanes == NoLanes {
		return NoLanes
	}
	return (LowestPriorityLane(lanes) << 1) - 1
}

// laneIndex is the bit position of the set's least urgent lane.
func laneIndex(lanes Lanes) int {
	return bits.Len32(uint32(lanes)) - 1
}

// pickArbitraryLane picks some lane from the set. Which one does not matter
// for correctness, so take the cheapest.
func pickArbitraryLane(lanes Lanes) Lane {
	return HighestPriorityLane(lanes)
}

// Has reports whether the sets intersect.
func (l Lanes) Has(other Lanes) bool { return l&other != NoLanes }

// IsSubsetOf reports whether every lane of l is in set.
func (l Lanes) IsSubsetOf(set Lanes) bool { return l&set == l }

// Union returns both sets combined.
func (l Lanes) Union(other Lanes) Lanes { return l | other }

// Remove returns l without the lanes of other.
func (l Lanes) Remove(other Lanes) Lanes { return l &^ other }

// Count returns the number of lanes in the set.
func (l Lanes) Count() int { return bits.OnesCount32(uint32(l)) }

// Each iterates the individual lanes of the set, least urgent first,
// yielding each lane's bit position and single-bit mask.
func (l Lanes) Each() iter.Seq2[int, Lane] {
	return func(yield func(int, Lane) bool) {
		lanes := l
		for lanes != NoLanes {
			index := laneIndex(lanes)
			lane := Lane(1) << index
			if !yield(index, lane) {
				return
			}
			lanes &^= lane
		}
	}
}

func (l Lanes) String() string {
	return fmt.Sprintf("%031b", uint32(l))
}

// IncludesNonIdleWork reports whether the set holds anything more urgent
// than idle and offscreen work.
func IncludesNonIdleWork(lanes Lanes) bool {
	return lanes&NonIdleLanes != NoLanes
}

// IncludesOnlyRetries reports whether the set is all retry lanes.
func IncludesOnlyRetries(lanes Lanes) bool {
	return lanes&RetryLanes == lanes
}

// HighestPriorityLanes extracts the most urgent non-empty lane group from
// the set and reports that group's priority. The groups are mutually
// exclusive and ordered by bit position, so scanning them from most to least
// urgent classifies and extracts in a single pass.
//
// Panics when no group matches: a pending lane outside every group means the
// lane tables themselves are inconsistent, which is unrecoverable.
func HighestPriorityLanes(lanes Lanes) (Lanes, LanePriority) {
	if lanes.Has(SyncLane) {
		return SyncLane, SyncLanePriority
	}
	if lanes.Has(SyncBatchedLane) {
		return SyncBatchedLane, SyncBatchedLanePriority
	}
	if lanes.Has(InputDiscreteHydrationLane) {
		return InputDiscreteHydrationLane, InputDiscreteHydrationLanePriority
	}
	if l := InputDiscreteLanes & lanes; l != NoLanes {
		return l, InputDiscreteLanePriority
	}
	if lanes.Has(InputContinuousHydrationLane) {
		return InputContinuousHydrationLane, InputContinuousHydrationLanePriority
	}
	if l := InputContinuousLanes & lanes; l != NoLanes {
		return l, InputContinuousLanePriority
	}
	if lanes.Has(DefaultHydrationLane) {
		return DefaultHydrationLane, DefaultHydrationLanePriority
	}
	if l := DefaultLanes & lanes; l != NoLanes {
		return l, DefaultLanePriority
	}
	if lanes.Has(TransitionHydrationLane) {
		return TransitionHydrationLane, TransitionHydrationLanePriority
	}
	if l := TransitionLanes & lanes; l != NoLanes {
		return l, TransitionLanePriority
	}
	if l := RetryLanes & lanes; l != NoLanes {
		return l, RetryLanePriority
	}
	if lanes.Has(SelectiveHydrationLane) {
		return SelectiveHydrationLane, SelectiveHydrationLanePriority
	}
	if lanes.Has(IdleHydrationLane) {
		return IdleHydrationLane, IdleHydrationLanePriority
	}
	if l := IdleLanes & lanes; l != NoLanes {
		return l, IdleLanePriority
	}
	if lanes.Has(OffscreenLane) {
		return OffscreenLane, OffscreenLanePriority
	}
	panic(fmt.Sprintf("lanes: no matching lane group for %v", lanes))
}

// FindUpdateLane picks a lane for newly created work of the given priority,
// preferring one not already claimed by the in-progress batch so the new
// update does not interrupt it. When every lane of the class is claimed it
// falls through to the next class, and as a last resort reuses a claimed
// lane, accepting the interruption.
func FindUpdateLane(priority LanePriority, wipLanes Lanes) Lane {
	switch priority {
	case SyncLanePriority:
		return SyncLane
	case SyncBatchedLanePriority:
		return SyncBatchedLane
	case InputDiscreteLanePriority:
		if lane := pickArbitraryLane(InputDiscreteLanes &^ wipLanes); lane != NoLane {
			return lane
		}
		// shift to the next-lower class rather than interrupt
		return FindUpdateLane(InputContinuousLanePriority, wipLanes)
	case InputContinuousLanePriority:
		if lane := pickArbitraryLane(InputContinuousLanes &^ wipLanes); lane != NoLane {
			return lane
		}
		return FindUpdateLane(DefaultLanePriority, wipLanes)
	case DefaultLanePriority:
		if lane := pickArbitraryLane(DefaultLanes &^ wipLanes); lane != NoLane {
			return lane
		}
		if lane := pickArbitraryLane(TransitionLanes &^ wipLanes); lane != NoLane {
			return lane
		}
		return pickArbitraryLane(DefaultLanes)
	case IdleLanePriority:
		if lane := pickArbitraryLane(IdleLanes &^ wipLanes); lane != NoLane {
			return lane
		}
		return pickArbitraryLane(IdleLanes)
	default:
		panic(fmt.Sprintf("lanes: invalid update priority %d", priority))
	}
}

// FindTransitionLane picks a lane for a new transition, preferring one that
// is neither pending nor in progress.
func FindTransitionLane(wipLanes, pendingLanes Lanes) Lane {
	if lane := pickArbitraryLane(TransitionLanes &^ pendingLanes); lane != NoLane {
		return lane
	}
	if lane := pickArbitraryLane(TransitionLanes &^ wipLanes); lane != NoLane {
		return lane
	}
	return pickArbitraryLane(TransitionLanes)
}

// FindRetryLane picks a lane for retrying suspended work.
func FindRetryLane(wipLanes Lanes) Lane {
	if lane := pickArbitraryLane(RetryLanes &^ wipLanes); lane != NoLane {
		return lane
	}
	return pickArbitraryLane(RetryLanes)
}
