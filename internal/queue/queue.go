// Package queue holds the in-memory pending queue the broker serves from.
//
// The queue is a cache of journal state: FIFO, except that envelopes scheduled
// for the future are skipped in place until their time passes. It does no
// locking of its own; the broker serializes access together with the journal
// append that records each mutation.
package queue

import (
	"github.com/glimte/combus-go/contracts"
)

// PendingQueue is an ordered collection of envelopes awaiting delivery.
type PendingQueue struct {
	items []*contracts.Envelope
}

// New returns an empty queue.
func New() *PendingQueue {
	return &PendingQueue{}
}

// Enqueue appends an envelope at the back.
func (q *PendingQueue) Enqueue(env *contracts.Envelope) {
	q.items = append(q.items, env)
}

// EnqueueFront places an envelope at the head, ahead of everything pending.
// Used to return an envelope to its position after a failed hand-off.
func (q *PendingQueue) EnqueueFront(env *contracts.Envelope) {
	q.items = append([]*contracts.Envelope{env}, q.items...)
}

// PopAvailable removes and returns the first envelope whose available_at is
// not after now. Envelopes scheduled for the future are skipped without
// disturbing their relative order. Returns nil when nothing is available.
func (q *PendingQueue) PopAvailable(now int64) *contracts.Envelope {
	for i, env := range q.items {
		if env.AvailableAt() <= now {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return env
		}
	}
	return nil
}

// Len returns the number of pending envelopes.
func (q *PendingQueue) Len() int {
	return len(q.items)
}

// Items returns the pending envelopes in order. The slice is a copy; the
// envelopes are not.
func (q *PendingQueue) Items() []*contracts.Envelope {
	out := make([]*contracts.Envelope, len(q.items))
	copy(out, q.items)
	return out
}
