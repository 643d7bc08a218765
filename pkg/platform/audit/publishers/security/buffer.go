package security

import (
	"sync"

	audit "medcourier/pkg/platform/audit"
)

const defaultBufferCapacity = 4096

// ringBuffer is a bounded, thread-safe FIFO of security events. When full,
// the oldest event is dropped to make room.
type ringBuffer struct {
	mu      sync.Mutex
	events  []audit.SecurityEvent
	head    int // next write position
	tail    int // next read position
	count   int
	dropped int64
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = defaultBufferCapacity
	}
	return &ringBuffer{events: make([]audit.SecurityEvent, capacity)}
}

// enqueue adds an event, dropping the oldest if necessary.
func (b *ringBuffer) enqueue(event audit.SecurityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.events)
	if b.count == capacity {
		b.tail = (b.tail + 1) % capacity
		b.count--
		b.dropped++
	}
	b.events[b.head] = event
	b.head = (b.head + 1) % capacity
	b.count++
}

// dequeueBatch removes up to n events, oldest first.
func (b *ringBuffer) dequeueBatch(n int) []audit.SecurityEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	n = min(n, b.count)
	out := make([]audit.SecurityEvent, n)
	capacity := len(b.events)
	for i := range n {
		out[i] = b.events[b.tail]
		b.tail = (b.tail + 1) % capacity
	}
	b.count -= n
	return out
}

func (b *ringBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *ringBuffer) droppedCount() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
