package broker

import (
	"context"
	"fmt"
	"sync"
)

// memoryQueueDepth bounds each in-process queue.
const memoryQueueDepth = 1024

// Memory is an in-process implementation of Publisher and Consumer with the
// same declare-if-absent and FIFO-per-queue semantics as Gateway. It backs
// tests and single-process runs where no broker is available.
type Memory struct {
	mu     sync.Mutex
	queues map[string]chan []byte
}

// NewMemory creates an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{queues: make(map[string]chan []byte)}
}

func (m *Memory) queue(name string) chan []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[name]
	if !ok {
		q = make(chan []byte, memoryQueueDepth)
		m.queues[name] = q
	}
	return q
}

// Enqueue appends payload to the named queue. A full queue is a publish
// failure, reported to the caller like any other.
func (m *Memory) Enqueue(ctx context.Context, name string, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	select {
	case m.queue(name) <- cp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("publish to %q: queue full", name)
	}
}

// Consume delivers queued payloads to h in FIFO order until ctx is
// cancelled.
func (m *Memory) Consume(ctx context.Context, name string, h Handler) error {
	q := m.queue(name)
	for {
		select {
		case payload := <-q:
			h(payload)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending reports the number of undelivered messages in a queue.
func (m *Memory) Pending(name string) int {
	return len(m.queue(name))
}
