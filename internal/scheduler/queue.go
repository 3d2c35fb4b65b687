package scheduler

import (
	"container/heap"
	"sync"
	"time"
)

// flowHeap is a container/heap.Interface over QueuedFlow, ordered by
// priority then FIFO (timestamp) on ties, per §4.7.1.
type flowHeap []QueuedFlow

func (h flowHeap) Len() int { return len(h) }
func (h flowHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].Timestamp.Before(h[j].Timestamp)
}
func (h flowHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *flowHeap) Push(x any) { *h = append(*h, x.(QueuedFlow)) }

func (h *flowHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// deviceQueue is one device's priority queue, dedup set, and wake signal.
// Periodic re-enqueues of an already-queued flow are dropped (dedup);
// on-demand enqueues always go through.
type deviceQueue struct {
	mu       sync.Mutex
	heap     flowHeap
	queuedID map[string]bool // flow_id -> queued, for periodic dedup

	// runMu serializes dispatch: only one flow runs against this device's
	// ADB connection at a time, regardless of how many goroutines enqueue.
	runMu sync.Mutex

	wake chan struct{}

	workerStarted bool

	depth           int
	lastExecAt      time.Time
	totalExecutions int
	lastUnlockAt    time.Time

	// nextRunAt is the earliest known next periodic run across every flow
	// registered on this device, used by Scheduler.shouldLockDevice to
	// judge whether there's enough idle time left to sleep the screen.
	nextRunAt time.Time
}

// noteNextRun records t as a candidate next-scheduled-run time, keeping
// whichever of the current and new values is soonest.
func (dq *deviceQueue) noteNextRun(t time.Time) {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	if dq.nextRunAt.IsZero() || t.Before(dq.nextRunAt) {
		dq.nextRunAt = t
	}
}

func (dq *deviceQueue) timeUntilNextRun() (time.Duration, bool) {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	if dq.nextRunAt.IsZero() {
		return 0, false
	}
	return time.Until(dq.nextRunAt), true
}

func newDeviceQueue() *deviceQueue {
	return &deviceQueue{
		queuedID: make(map[string]bool),
		wake:     make(chan struct{}, 1),
	}
}

// enqueue adds q to the queue. When bypassDedup is false (periodic
// enqueues), a flow already queued is silently dropped.
func (dq *deviceQueue) enqueue(q QueuedFlow, bypassDedup bool) {
	dq.mu.Lock()
	if !bypassDedup && dq.queuedID[q.FlowID] {
		dq.mu.Unlock()
		return
	}
	heap.Push(&dq.heap, q)
	dq.queuedID[q.FlowID] = true
	dq.depth = dq.heap.Len()
	dq.mu.Unlock()

	select {
	case dq.wake <- struct{}{}:
	default:
	}
}

// pop removes and returns the highest-priority entry, or ok=false if the
// queue is empty.
func (dq *deviceQueue) pop() (QueuedFlow, bool) {
	dq.mu.Lock()
	defer dq.mu.Unlock()
	if dq.heap.Len() == 0 {
		return QueuedFlow{}, false
	}
	q := heap.Pop(&dq.heap).(QueuedFlow)
	delete(dq.queuedID, q.FlowID)
	dq.depth = dq.heap.Len()
	return q, true
}
