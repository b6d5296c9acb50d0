// internal/gauge/hold.go
package gauge

import (
	"time"

	"gauge-service/internal/model"
)

// Minimum time a state stays visible once it reaches the front of the queue
const (
	OnHold      = time.Second
	DefaultHold = 20 * time.Second
)

// HoldFor returns the minimum visible time of a state
func HoldFor(state model.DeviceState) time.Duration {
	if state == model.StateOn {
		return OnHold
	}
	return DefaultHold
}

// HoldEntry is a queued state with its dwell constraint
type HoldEntry struct {
	State     model.DeviceState
	MinHold   time.Duration
	EnteredAt time.Time
}

// HoldQueue filters computed states so each one stays visible for its minimum hold.
// The front entry is the visible state. EnteredAt is stamped when an entry becomes visible.
type HoldQueue struct {
	entries []HoldEntry
}

// NewHoldQueue creates a queue whose visible state is initial
func NewHoldQueue(initial model.DeviceState, now time.Time) *HoldQueue {
	return &HoldQueue{entries: []HoldEntry{{State: initial, EnteredAt: now}}}
}

// Push queues a state unless it is already queued. It reports whether the state was added.
func (q *HoldQueue) Push(state model.DeviceState, hold time.Duration) bool {
	for _, e := range q.entries {
		if e.State == state {
			return false
		}
	}
	q.entries = append(q.entries, HoldEntry{State: state, MinHold: hold})
	return true
}

// Settle drops the entries queued after state. A recomputed state that is already
// queued makes its successors stale; an unknown state leaves the queue as is.
func (q *HoldQueue) Settle(state model.DeviceState) {
	for i, e := range q.entries {
		if e.State == state {
			q.entries = q.entries[:i+1]
			return
		}
	}
}

// Visible advances past expired entries and returns the state to expose
func (q *HoldQueue) Visible(now time.Time) model.DeviceState {
	for len(q.entries) > 1 {
		front := q.entries[0]
		if now.Sub(front.EnteredAt) < front.MinHold {
			break
		}
		q.entries = q.entries[1:]
		q.entries[0].EnteredAt = now
	}
	return q.entries[0].State
}

// Entries returns a copy of the queue, front first
func (q *HoldQueue) Entries() []HoldEntry {
	out := make([]HoldEntry, len(q.entries))
	copy(out, q.entries)
	return out
}
