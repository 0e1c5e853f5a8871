// ABOUTME: Heap-backed jitter buffer keyed by sequence number
// ABOUTME: Safe for concurrent Push from the receiver and Pop from playback
package jitter

import (
	"container/heap"
	"sync"

	"github.com/Resonate-Protocol/relay-go/pkg/protocol"
)

// Buffer is a priority queue of packets ordered ascending by sequence number
type Buffer struct {
	mu sync.Mutex
	q  packetQueue
}

// New creates an empty jitter buffer
func New() *Buffer {
	b := &Buffer{}
	heap.Init(&b.q)
	return b
}

// Push inserts a packet. Duplicates and stale packets are accepted;
// staleness is resolved when the packet reaches the front.
func (b *Buffer) Push(pkt protocol.AudioPacket) {
	b.mu.Lock()
	heap.Push(&b.q, pkt)
	b.mu.Unlock()
}

// Peek returns the packet with the lowest sequence number without removing it
func (b *Buffer) Peek() (protocol.AudioPacket, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.q) == 0 {
		return protocol.AudioPacket{}, false
	}
	return b.q[0], true
}

// Pop removes and returns the packet with the lowest sequence number
func (b *Buffer) Pop() (protocol.AudioPacket, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.q) == 0 {
		return protocol.AudioPacket{}, false
	}
	return heap.Pop(&b.q).(protocol.AudioPacket), true
}

// Len returns the number of buffered packets (the fill level)
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.q)
}

// Reset discards everything buffered
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.q = b.q[:0]
	b.mu.Unlock()
}

// packetQueue implements heap.Interface
type packetQueue []protocol.AudioPacket

func (q packetQueue) Len() int { return len(q) }

func (q packetQueue) Less(i, j int) bool { return q[i].Seq < q[j].Seq }

func (q packetQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *packetQueue) Push(x interface{}) {
	*q = append(*q, x.(protocol.AudioPacket))
}

func (q *packetQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = protocol.AudioPacket{}
	*q = old[:n-1]
	return item
}
