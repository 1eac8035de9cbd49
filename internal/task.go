package internal

import "time"

// Priority is the scheduling priority of a task. Higher priorities get
// shorter expiration timeouts, which is what orders them ahead of lower
// priority work in the ready queue.
type Priority int

const (
	NoPriority Priority = iota
	ImmediatePriority
	UserBlockingPriority
	NormalPriority
	LowPriority
	IdlePriority
)

func (p Priority) String() string {
	switch p {
	case ImmediatePriority:
		return "immediate"
	case UserBlockingPriority:
		return "user-blocking"
	case NormalPriority:
		return "normal"
	case LowPriority:
		return "low"
	case IdlePriority:
		return "idle"
	default:
		return "unknown"
	}
}

func (p Priority) valid() bool {
	return p >= ImmediatePriority && p <= IdlePriority
}

// Expiration timeouts per priority. An immediate task is born expired so it
// runs on the very next slice no matter what. Idle tasks carry the largest
// 31-bit signed millisecond value, which in practice means never.
const (
	immediateTimeout    = -1 * time.Millisecond
	userBlockingTimeout = 250 * time.Millisecond
	normalTimeout       = 5000 * time.Millisecond
	lowTimeout          = 10000 * time.Millisecond
	idleTimeout         = 1073741823 * time.Millisecond
)

func (p Priority) timeout() time.Duration {
	switch p {
	case ImmediatePriority:
		return immediateTimeout
	case UserBlockingPriority:
		return userBlockingTimeout
	case IdlePriority:
		return idleTimeout
	case LowPriority:
		return lowTimeout
	default:
		return normalTimeout
	}
}

// Callback is a resumable unit of work. The deadline flag tells it that its
// expiration time has passed, so it should finish synchronously instead of
// yielding. A nil return means the task is done; a non-nil return is a
// continuation the scheduler resumes on the next slice.
type Callback func(deadline bool) Callback

// Task is a unit of work owned by a Scheduler. It lives in exactly one of the
// two queues at a time: the timer queue while its start time is in the
// future, the ready queue afterwards. A task whose callback has been nulled
// is cancelled and gets dropped lazily when it reaches the front.
type Task struct {
	id       int64
	callback Callback
	priority Priority

	startTime      time.Time
	expirationTime time.Time

	// heap key: startTime while delayed, expirationTime once ready
	sortIndex time.Time
}

// Priority returns the priority the task was scheduled at.
func (t *Task) Priority() Priority { return t.priority }

// ID returns the task's monotonic insertion id.
func (t *Task) ID() int64 { return t.id }
