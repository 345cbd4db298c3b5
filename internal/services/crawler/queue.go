package crawler

import (
	"container/heap"
	"sync"
	"time"

	"github.com/ternarybob/scrawl/internal/models"
)

// QueueStats captures queue counters for the crawl summary.
type QueueStats struct {
	TotalPushed int
	TotalPopped int
	CurrentSize int
	MinDepth    int
	MaxDepth    int
}

// PriorityQueue is a closable min-heap of work items ordered by priority
// ascending (ties broken by insertion order). Pop blocks until an item
// arrives or the queue is closed and drained.
type PriorityQueue struct {
	items  *itemHeap
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
	seq    int64
	stats  QueueStats
}

type queueEntry struct {
	item models.WorkItem
	seq  int64
}

// itemHeap implements heap.Interface for priority ordering
type itemHeap []queueEntry

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].item.Priority != h[j].item.Priority {
		return h[i].item.Priority < h[j].item.Priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h *itemHeap) Push(x interface{}) {
	*h = append(*h, x.(queueEntry))
}

func (h *itemHeap) Pop() interface{} {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[0 : n-1]
	return entry
}

// NewPriorityQueue creates an empty open queue.
func NewPriorityQueue() *PriorityQueue {
	h := &itemHeap{}
	heap.Init(h)
	q := &PriorityQueue{items: h}
	q.cond = sync.NewCond(&q.mu)
	q.stats.MinDepth = -1
	q.stats.MaxDepth = -1
	return q
}

// Push adds one item and wakes one waiter. Returns false when closed.
func (q *PriorityQueue) Push(item models.WorkItem) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.pushLocked(item)
	q.cond.Signal()
	return true
}

// PushBatch adds several items and wakes all waiters. Returns the number
// of items accepted.
func (q *PriorityQueue) PushBatch(items []models.WorkItem) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0
	}
	for _, item := range items {
		q.pushLocked(item)
	}
	q.cond.Broadcast()
	return len(items)
}

func (q *PriorityQueue) pushLocked(item models.WorkItem) {
	q.seq++
	heap.Push(q.items, queueEntry{item: item, seq: q.seq})
	q.stats.TotalPushed++
	if q.stats.MinDepth < 0 || item.Depth < q.stats.MinDepth {
		q.stats.MinDepth = item.Depth
	}
	if item.Depth > q.stats.MaxDepth {
		q.stats.MaxDepth = item.Depth
	}
}

// Pop blocks until an item is available or the queue is closed and
// empty. The second return is false only in the closed-and-empty case.
func (q *PriorityQueue) Pop() (models.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if q.items.Len() > 0 {
			return q.popLocked(), true
		}
		if q.closed {
			return models.WorkItem{}, false
		}
		q.cond.Wait()
	}
}

// TryPop waits up to timeout for an item. Returns false on timeout or
// when the queue is closed and empty.
func (q *PriorityQueue) TryPop(timeout time.Duration) (models.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		if q.items.Len() > 0 {
			return q.popLocked(), true
		}
		if q.closed {
			return models.WorkItem{}, false
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return models.WorkItem{}, false
		}

		// Wake ourselves when the deadline passes; cond has no timed wait
		timer := time.AfterFunc(remaining, func() {
			q.cond.Broadcast()
		})
		q.cond.Wait()
		timer.Stop()
	}
}

// TryPopNonblocking returns immediately.
func (q *PriorityQueue) TryPopNonblocking() (models.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() == 0 {
		return models.WorkItem{}, false
	}
	return q.popLocked(), true
}

func (q *PriorityQueue) popLocked() models.WorkItem {
	entry := heap.Pop(q.items).(queueEntry)
	q.stats.TotalPopped++
	return entry.item
}

// Close marks the queue closed and wakes all waiters. Idempotent;
// remaining items stay poppable.
func (q *PriorityQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// IsClosed reports whether Close was called.
func (q *PriorityQueue) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Empty reports whether no items remain.
func (q *PriorityQueue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len() == 0
}

// Size returns the number of queued items.
func (q *PriorityQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Clear discards all queued items.
func (q *PriorityQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = &itemHeap{}
	heap.Init(q.items)
}

// Stats returns a snapshot of the queue counters.
func (q *PriorityQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	stats := q.stats
	stats.CurrentSize = q.items.Len()
	return stats
}
