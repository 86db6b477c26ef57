package dispatch

import (
	"context"
	"errors"
	"sync"
)

// ErrBufferClosed is returned by ReceiveContext once a closed buffer is empty.
var ErrBufferClosed = errors.New("buffer closed")

// Buffer is a thread-safe FIFO ring that doubles its capacity when it reaches
// 70% full, so producers never block.
type Buffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int // next read
	tail   int // next write
	count  int
	closed bool

	received int64
	sent     int64
	resizes  int
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count         int
	Capacity      int
	TotalReceived int64
	TotalSent     int64
	ResizeCount   int
}

// NewBuffer creates a buffer with the given initial capacity.
func NewBuffer[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	b := &Buffer[T]{ring: make([]T, capacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends an item. It returns false if the buffer is closed.
func (b *Buffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := max(len(b.ring)*70/100, 1)
	if b.count+1 >= threshold {
		b.growLocked()
	}

	b.ring[b.tail] = item
	b.tail = (b.tail + 1) % len(b.ring)
	b.count++
	b.received++

	b.cond.Signal()
	return true
}

// Receive blocks until an item is available. It returns false once the buffer
// is closed and empty.
func (b *Buffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// ReceiveContext is Receive that also gives up when ctx is done.
func (b *Buffer[T]) ReceiveContext(ctx context.Context) (T, error) {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.cond.Broadcast()
		b.mu.Unlock()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	for b.count == 0 && !b.closed {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		b.cond.Wait()
	}
	if b.count == 0 {
		return zero, ErrBufferClosed
	}
	return b.popLocked(), nil
}

// TryReceive returns the next item without blocking.
func (b *Buffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// DrainTo removes up to limit items (all of them if limit <= 0) in FIFO order.
func (b *Buffer[T]) DrainTo(limit int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n := b.count
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]T, n)
	for i := range out {
		out[i] = b.popLocked()
	}
	return out
}

// Close stops further sends. Receivers drain what is left.
func (b *Buffer[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Closed reports whether Close was called.
func (b *Buffer[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the number of buffered items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the current capacity.
func (b *Buffer[T]) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ring)
}

// Stats returns buffer statistics.
func (b *Buffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:         b.count,
		Capacity:      len(b.ring),
		TotalReceived: b.received,
		TotalSent:     b.sent,
		ResizeCount:   b.resizes,
	}
}

func (b *Buffer[T]) popLocked() T {
	item := b.ring[b.head]
	var zero T
	b.ring[b.head] = zero
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.sent++
	return item
}

// growLocked doubles the ring and unwraps it so head is zero.
func (b *Buffer[T]) growLocked() {
	ring := make([]T, len(b.ring)*2)
	if b.count > 0 {
		if b.head < b.tail {
			copy(ring, b.ring[b.head:b.tail])
		} else {
			n := copy(ring, b.ring[b.head:])
			copy(ring[n:], b.ring[:b.tail])
		}
	}
	b.ring = ring
	b.head = 0
	b.tail = b.count
	b.resizes++
}
