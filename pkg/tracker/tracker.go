// Package tracker is the sender-side half of the acknowledgment protocol: it
// correlates locally issued temp ids with server acks and drives each
// message's pending/sent/failed transition exactly once.
package tracker

import (
	"sync"
	"time"
)

// Status is the delivery state a sender shows for one of its own messages.
type Status int

const (
	StatusPending Status = iota
	StatusSent
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusSent:
		return "sent"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Tracker tracks pending sends for one session. Temp ids are unique within
// the session; the zero Tracker is not usable, call New.
type Tracker struct {
	mu      sync.Mutex
	lastID  int64
	pending map[int64]time.Time
	now     func() time.Time
}

func New() *Tracker {
	return &Tracker{
		pending: make(map[int64]time.Time),
		now:     time.Now,
	}
}

// NextTempID returns a session-unique correlation token. It follows the
// wall clock in milliseconds but always increases, so two sends within the
// same millisecond cannot collide.
func (t *Tracker) NextTempID() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.now().UnixMilli()
	if id <= t.lastID {
		id = t.lastID + 1
	}
	t.lastID = id
	return id
}

// Track registers a pending send under tempID.
func (t *Tracker) Track(tempID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[tempID] = t.now()
}

// Resolve matches an ack to its pending entry and removes it. ServerID > 0
// resolves to Sent, anything else to Failed. Unmatched acks (duplicate, or
// stale after a reconnect) report ok=false and change nothing.
func (t *Tracker) Resolve(tempID, serverID int64) (Status, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[tempID]; !ok {
		return StatusPending, false
	}
	delete(t.pending, tempID)

	if serverID > 0 {
		return StatusSent, true
	}
	return StatusFailed, true
}

// Expire gives up on entries pending longer than maxAge and returns their
// temp ids, each now Failed. How long to wait is the caller's policy.
func (t *Tracker) Expire(maxAge time.Duration) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-maxAge)
	var expired []int64
	for id, created := range t.pending {
		if created.Before(cutoff) {
			delete(t.pending, id)
			expired = append(expired, id)
		}
	}
	return expired
}

// Pending reports how many sends are still unresolved.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
