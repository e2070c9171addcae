// Package ingress implements the bounded, thread-safe producer/consumer
// queue that sits between the UDP receiver and the packet parser. One
// mutex protects the deque, the next-index counter, and the overflow
// callback; a condition variable backs WaitFor.
package ingress

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/scopelabs/daqpipe/internal/daqerr"
)

// Packet is a single received UDP datagram, tagged with the 16-bit
// monotonic index it was assigned on receipt.
type Packet struct {
	Index   uint16
	Payload []byte
}

// OverflowFunc is invoked synchronously, from within the Append call that
// detects the overflow, before ErrOverflow is returned. It must not
// re-enter the queue and must not block.
type OverflowFunc func()

// Queue is a bounded FIFO of ingress packets indexed by a 16-bit counter
// that wraps naturally at 2^16. It is safe for concurrent use by one
// writer (the receiver) and one or more readers.
type Queue struct {
	log *slog.Logger

	mu       sync.Mutex
	notEmpty *sync.Cond

	capacity int
	packets  []Packet
	bytes    int

	nextIndex uint16
	overflow  OverflowFunc
}

// New constructs a Queue with the given packet capacity. The next-index
// counter is seeded to 0.
func New(log *slog.Logger, capacity int) *Queue {
	q := &Queue{
		log:      log,
		capacity: capacity,
		packets:  make([]Packet, 0, capacity),
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// SetOverflowCallback installs or replaces the overflow callback.
func (q *Queue) SetOverflowCallback(fn OverflowFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.overflow = fn
}

// Append assigns the next 16-bit index to data, enqueues it, and notifies
// any waiters. It fails with daqerr.ErrOverflow when the queue is already
// at capacity, firing the overflow callback first; the queue is left
// unchanged (P7). Nil or zero-length payloads are rejected with
// daqerr.ErrInvalidArgument.
func (q *Queue) Append(data []byte) (uint16, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("append: empty payload: %w", daqerr.ErrInvalidArgument)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.packets) >= q.capacity {
		cb := q.overflow
		if cb != nil {
			cb()
		}
		q.log.Warn("ingress queue overflow", "capacity", q.capacity)
		return 0, fmt.Errorf("append: queue at capacity %d: %w", q.capacity, daqerr.ErrOverflow)
	}

	idx := q.nextIndex
	q.nextIndex++ // wraps naturally at 2^16

	q.packets = append(q.packets, Packet{Index: idx, Payload: data})
	q.bytes += len(data)
	q.notEmpty.Broadcast()

	return idx, nil
}

// PopOne removes and returns the head packet, or reports an empty queue.
func (q *Queue) PopOne() (Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.packets) == 0 {
		return Packet{}, false
	}
	p := q.packets[0]
	q.packets = q.packets[1:]
	q.bytes -= len(p.Payload)
	return p, true
}

// Drain removes and returns every packet currently queued, preserving
// index order (P1).
func (q *Queue) Drain() []Packet {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.packets) == 0 {
		return nil
	}
	out := q.packets
	q.packets = make([]Packet, 0, q.capacity)
	q.bytes = 0
	return out
}

// WaitFor blocks until the queue holds at least minCount packets. It
// loops on spurious wake-ups.
func (q *Queue) WaitFor(minCount int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.packets) < minCount {
		q.notEmpty.Wait()
	}
}

// Len returns the number of packets currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets)
}

// SizeInBytes returns the total payload size of every queued packet.
func (q *Queue) SizeInBytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

// IsEmpty reports whether the queue currently holds no packets.
func (q *Queue) IsEmpty() bool {
	return q.Len() == 0
}

// IsFull reports whether the queue is at capacity.
func (q *Queue) IsFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets) >= q.capacity
}
