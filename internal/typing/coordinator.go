package typing

import (
	"sync"
	"time"
)

// DefaultIdleTimeout is how long after the last local activity the outbound
// typing signal is retracted.
const DefaultIdleTimeout = 3000 * time.Millisecond

// Coordinator owns both halves of the typing signal for one room.
//
// Outbound: Activity sends typing=true immediately and (re)arms a single
// idle timer; when the timer expires, typing=false is sent exactly once.
// Each new activity cancels and re-arms the timer (debounce). MessageSent
// cancels the timer and retracts immediately.
//
// Inbound: ApplyRemote replaces the remote typing set wholesale for the
// active room, excluding self. There is no local expiry on inbound state;
// the backend emits updated (possibly empty) lists.
type Coordinator struct {
	mu     sync.Mutex
	roomID string
	self   string
	idle   time.Duration
	send   func(typing bool)

	timer *time.Timer
	gen   uint64 // invalidates stale timer callbacks
	users []string
}

// NewCoordinator creates a coordinator for roomID. send delivers the
// outbound signal; idle <= 0 selects DefaultIdleTimeout.
func NewCoordinator(roomID, self string, idle time.Duration, send func(typing bool)) *Coordinator {
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	return &Coordinator{
		roomID: roomID,
		self:   self,
		idle:   idle,
		send:   send,
	}
}

// Activity signals local typing: sends typing=true and re-arms the idle timer.
func (c *Coordinator) Activity() {
	c.mu.Lock()
	c.cancelLocked()
	c.gen++
	gen := c.gen
	c.timer = time.AfterFunc(c.idle, func() { c.expire(gen) })
	c.mu.Unlock()

	c.send(true)
}

func (c *Coordinator) expire(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		// A newer activity or a cancel superseded this timer.
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.mu.Unlock()

	c.send(false)
}

// MessageSent cancels the pending timer and retracts the typing signal
// immediately, regardless of timer state.
func (c *Coordinator) MessageSent() {
	c.mu.Lock()
	c.cancelLocked()
	c.mu.Unlock()

	c.send(false)
}

// Stop cancels the pending timer without sending anything. Used on teardown.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.cancelLocked()
	c.mu.Unlock()
}

// cancelLocked invalidates any armed timer. Caller holds c.mu.
func (c *Coordinator) cancelLocked() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// ApplyRemote replaces the typing set from an inbound event. Events for a
// different room are ignored; the self id is filtered out. Reports whether
// the event applied.
func (c *Coordinator) ApplyRemote(roomID string, userIDs []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if roomID != c.roomID {
		return false
	}
	users := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id == c.self {
			continue
		}
		users = append(users, id)
	}
	c.users = users
	return true
}

// UserIDs returns the participants currently signaling typing, self excluded.
func (c *Coordinator) UserIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.users))
	copy(out, c.users)
	return out
}
