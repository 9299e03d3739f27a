package presence

import "sync"

// Status is a participant's presence as reported by the conversation backend.
type Status string

const (
	Online      Status = "online"
	Offline     Status = "offline"
	Unavailable Status = "unavailable"
)

// Event is one inbound presence update.
type Event struct {
	UserID string
	Status Status
}

// Tracker maps participant id to presence status. Upsert-only and
// last-write-wins: stale entries are corrected by the next event for that
// participant, not by a timeout.
type Tracker struct {
	mu      sync.RWMutex
	self    string
	entries map[string]Status
}

// NewTracker creates a tracker; self is the local participant id, which is
// always excluded from the aggregate online count.
func NewTracker(self string) *Tracker {
	return &Tracker{
		self:    self,
		entries: make(map[string]Status),
	}
}

// Apply upserts one presence event.
func (t *Tracker) Apply(evt Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[evt.UserID] = evt.Status
}

// OnlineCount returns the number of participants with status online or
// unavailable, excluding self.
func (t *Tracker) OnlineCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	count := 0
	for userID, status := range t.entries {
		if userID == t.self {
			continue
		}
		if status == Online || status == Unavailable {
			count++
		}
	}
	return count
}

// Status returns the tracked status for a participant.
func (t *Tracker) Status(userID string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.entries[userID]
	return s, ok
}

// Snapshot returns a copy of all tracked entries.
func (t *Tracker) Snapshot() map[string]Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Status, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// Reset drops all entries. Used when a session is discarded.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string]Status)
}
