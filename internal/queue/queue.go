package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrClosed is returned when operations are attempted on a closed queue.
var ErrClosed = errors.New("queue is closed")

// Priority selects the sub-queue an item is admitted to.
type Priority int

const (
	// PriorityHigh items are popped before any normal item.
	PriorityHigh Priority = iota
	// PriorityNormal is the default level.
	PriorityNormal
)

// String implements fmt.Stringer.
func (p Priority) String() string {
	if p == PriorityHigh {
		return "HIGH"
	}
	return "NORMAL"
}

// ParsePriority maps "HIGH" (any case) to PriorityHigh and anything else to
// PriorityNormal.
func ParsePriority(s string) Priority {
	if strings.EqualFold(strings.TrimSpace(s), "HIGH") {
		return PriorityHigh
	}
	return PriorityNormal
}

// Handler observes items entering or leaving the queue outside of Pop.
// Handlers run while the queue lock is held and must not call back into the
// queue.
type Handler[T any] func(item T, p Priority)

// Queue is a capacity-bounded two-level FIFO. The zero value is not usable;
// use New.
type Queue[T any] struct {
	high   []T
	normal []T

	capacity int // 0 means unbounded

	onEvict Handler[T]
	onAdmit Handler[T]

	mu       sync.Mutex
	notEmpty *sync.Cond

	closed bool
	stats  Stats
}

// Stats tracks queue counters.
type Stats struct {
	TotalEnqueued     int64
	TotalDequeued     int64
	TotalEvicted      int64
	TotalRejected     int64
	HighPriorityCount int64
	CurrentSize       int
	PeakSize          int
	LastEnqueue       time.Time
	LastDequeue       time.Time
}

// New creates a queue holding at most capacity items. A capacity of zero or
// less means unbounded.
func New[T any](capacity int) *Queue[T] {
	q := &Queue[T]{capacity: max(capacity, 0)}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// SetEvictHandler registers fn to be told about items displaced by a
// high-priority push. Passing nil removes the handler.
func (q *Queue[T]) SetEvictHandler(fn Handler[T]) {
	q.mu.Lock()
	q.onEvict = fn
	q.mu.Unlock()
}

// SetAdmitHandler registers fn to be told about every admitted item. It is
// called before Push returns, so for any item the admission notification
// precedes an eviction notification.
func (q *Queue[T]) SetAdmitHandler(fn Handler[T]) {
	q.mu.Lock()
	q.onAdmit = fn
	q.mu.Unlock()
}

// SetCapacity changes the bound. Shrinking below the current occupancy does
// not evict anything; it only constrains future pushes.
func (q *Queue[T]) SetCapacity(n int) {
	q.mu.Lock()
	q.capacity = max(n, 0)
	q.mu.Unlock()
}

// Capacity returns the current bound, zero when unbounded.
func (q *Queue[T]) Capacity() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.capacity
}

// Push admits item without blocking and reports whether it was admitted.
//
// When the queue is full a high-priority item displaces the oldest normal
// item, or the oldest high item if there are no normal ones. A normal item
// pushed onto a full queue is rejected and the queue is left unchanged.
func (q *Queue[T]) Push(item T, p Priority) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.stats.TotalRejected++
		return false
	}

	if q.capacity > 0 && q.size() >= q.capacity {
		if p != PriorityHigh {
			q.stats.TotalRejected++
			return false
		}
		q.evictOne()
	}

	if p == PriorityHigh {
		q.high = append(q.high, item)
		q.stats.HighPriorityCount++
	} else {
		p = PriorityNormal
		q.normal = append(q.normal, item)
	}

	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = time.Now()
	q.stats.CurrentSize = q.size()
	if q.stats.CurrentSize > q.stats.PeakSize {
		q.stats.PeakSize = q.stats.CurrentSize
	}

	if q.onAdmit != nil {
		q.onAdmit(item, p)
	}

	q.notEmpty.Signal()
	return true
}

// evictOne drops the oldest normal item, falling back to the oldest high
// item. The caller holds q.mu.
func (q *Queue[T]) evictOne() {
	var (
		victim T
		level  Priority
	)
	switch {
	case len(q.normal) > 0:
		victim, q.normal = shift(q.normal)
		level = PriorityNormal
	case len(q.high) > 0:
		victim, q.high = shift(q.high)
		level = PriorityHigh
	default:
		return
	}
	q.stats.TotalEvicted++
	if q.onEvict != nil {
		q.onEvict(victim, level)
	}
}

// Pop blocks until an item is available and returns it. High-priority items
// are returned first, FIFO within each level. Pop returns ErrClosed once the
// queue is closed and ctx.Err() when ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T

	// Wake the waiter below when ctx ends; Broadcast must happen under the
	// lock or the wakeup can be lost between the ctx check and Wait.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.notEmpty.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for q.size() == 0 && !q.closed && ctx.Err() == nil {
		q.notEmpty.Wait()
	}

	if q.closed {
		return zero, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	var item T
	if len(q.high) > 0 {
		item, q.high = shift(q.high)
	} else {
		item, q.normal = shift(q.normal)
	}

	q.stats.TotalDequeued++
	q.stats.LastDequeue = time.Now()
	q.stats.CurrentSize = q.size()

	return item, nil
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size()
}

// LenByPriority returns the occupancy of each level.
func (q *Queue[T]) LenByPriority() (high, normal int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.high), len(q.normal)
}

// Clear drops every queued item without notifying the evict handler.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.high = nil
	q.normal = nil
	q.stats.CurrentSize = 0
}

// Close wakes every blocked Pop and makes further pushes fail.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.notEmpty.Broadcast()
}

// IsClosed reports whether Close has been called.
func (q *Queue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Stats returns a copy of the queue counters.
func (q *Queue[T]) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

func (q *Queue[T]) size() int {
	return len(q.high) + len(q.normal)
}

// shift removes the first element. The vacated slot is zeroed so the backing
// array does not pin large values such as audio buffers.
func shift[T any](s []T) (T, []T) {
	var zero T
	item := s[0]
	s[0] = zero
	return item, s[1:]
}
