package internal

// taskHeap is a binary min-heap of tasks ordered by (sortIndex, id). The id
// tiebreak keeps equal keys in insertion order, so tasks at the same priority
// come out FIFO and the total order is deterministic.
//
// There is no removal by value: that would cost O(n) on an array heap.
// Cancellation nulls the task's callback instead, and the pop paths skip the
// tombstone when it surfaces.
type taskHeap struct {
	tasks []*Task
}

// Len returns the number of tasks in the heap, cancelled ones included.
func (h *taskHeap) Len() int { return len(h.tasks) }

// Push inserts a task in O(log n).
func (h *taskHeap) Push(t *Task) {
	h.tasks = append(h.tasks, t)
	h.siftUp(len(h.tasks) - 1)
}

// Peek returns the minimum task without removing it, or nil.
func (h *taskHeap) Peek() *Task {
	if len(h.tasks) == 0 {
		return nil
	}
	return h.tasks[0]
}

// Pop removes and returns the minimum task in O(log n), or nil.
func (h *taskHeap) Pop() *Task {
	n := len(h.tasks)
	if n == 0 {
		return nil
	}

	top := h.tasks[0]
	last := h.tasks[n-1]
	h.tasks[n-1] = nil // release the slot for GC
	h.tasks = h.tasks[:n-1]

	if n > 1 {
		h.tasks[0] = last
		h.siftDown(0)
	}

	return top
}

func (h *taskHeap) siftUp(i int) {
	node := h.tasks[i]
	for i > 0 {
		parent := (i - 1) / 2
		if !taskLess(node, h.tasks[parent]) {
			break
		}
		h.tasks[i] = h.tasks[parent]
		i = parent
	}
	h.tasks[i] = node
}

func (h *taskHeap) siftDown(i int) {
	node := h.tasks[i]
	n := len(h.tasks)
	for {
		child := 2*i + 1
		if child >= n {
			break
		}
		if right := child + 1; right < n && taskLess(h.tasks[right], h.tasks[child]) {
			child = right
		}
		if !taskLess(h.tasks[child], node) {
			break
		}
		h.tasks[i] = h.tasks[child]
		i = child
	}
	h.tasks[i] = node
}

func taskLess(a, b *Task) bool {
	if c := a.sortIndex.Compare(b.sortIndex); c != 0 {
		return c < 0
	}
	return a.id < b.id
}
