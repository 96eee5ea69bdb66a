package client

import (
	"sync"

	"github.com/ezeslucky/drawio/internal/models"
)

// Queue buffers envelopes composed while the transport is down, in
// arrival order. It is in-memory and unbounded: connectivity loss must
// never block or reject an edit.
type Queue struct {
	mu      sync.Mutex
	pending []models.Envelope
}

func NewQueue() *Queue {
	return &Queue{}
}

// Enqueue appends the envelope to the tail of the buffer.
func (q *Queue) Enqueue(env models.Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, env)
}

// Flush walks the buffer head to tail, handing each envelope to
// trySend. An envelope is removed if and only if trySend reports
// success; a failed entry stays for the next tick while later entries
// are still attempted, so ordering across ticks is best-effort. The
// lock is held for the whole walk, so enqueues cannot interleave with
// a drain.
func (q *Queue) Flush(trySend func(models.Envelope) bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	remaining := q.pending[:0]
	for _, env := range q.pending {
		if !trySend(env) {
			remaining = append(remaining, env)
		}
	}
	for i := len(remaining); i < len(q.pending); i++ {
		q.pending[i] = models.Envelope{}
	}
	q.pending = remaining
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
