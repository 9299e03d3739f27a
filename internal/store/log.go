package store

import (
	"fmt"
	"sync"
)

// Log is the in-memory reconciliation store for one room: an ordered,
// deduplicated message list that owns the optimistic insert/confirm/rollback
// lifecycle for locally originated sends. After Seed the visible order only
// grows by appending at the tail.
type Log struct {
	mu       sync.RWMutex
	messages []*Message
	ids      map[string]struct{}
	nextTemp int64
}

// Handle identifies one optimistic message for later confirm or rollback.
// Confirm and Rollback operate on the exact entry the handle points at,
// never on a best-effort id match.
type Handle struct {
	msg *Message
}

// NewLog creates an empty message log.
func NewLog() *Log {
	return &Log{
		ids: make(map[string]struct{}),
	}
}

// Seed replaces the entire list. Used once, after the initial history fetch;
// msgs must already be in chronological (oldest-first) order.
func (l *Log) Seed(msgs []Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = l.messages[:0]
	l.ids = make(map[string]struct{}, len(msgs))
	for i := range msgs {
		m := msgs[i]
		if _, dup := l.ids[m.ID]; dup {
			continue
		}
		l.messages = append(l.messages, &m)
		l.ids[m.ID] = struct{}{}
	}
}

// AppendRemote appends a server-delivered message unless an entry with the
// same id is already present. The sync loop redelivers events that arrived
// via history or a prior tick; the id check makes that harmless. Reports
// whether the message was added.
func (l *Log) AppendRemote(msg Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.ids[msg.ID]; dup {
		return false
	}
	msg.Origin = OriginRemote
	msg.Confirmed = true
	l.messages = append(l.messages, &msg)
	l.ids[msg.ID] = struct{}{}
	return true
}

// SendLocal appends an optimistic local echo with a temporary id and returns
// a handle for the eventual Confirm or Rollback.
func (l *Log) SendLocal(body, senderID, senderName string, timestamp int64) *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextTemp++
	msg := &Message{
		ID:         fmt.Sprintf("temp_%d", l.nextTemp),
		SenderID:   senderID,
		SenderName: senderName,
		Body:       body,
		Timestamp:  timestamp,
		Origin:     OriginLocal,
		Confirmed:  false,
	}
	l.messages = append(l.messages, msg)
	l.ids[msg.ID] = struct{}{}
	return &Handle{msg: msg}
}

// Confirm swaps the handle's temporary id for the server-issued one in place;
// the entry is never duplicated. If the sync loop already delivered the event
// under serverID (own echo racing the send acknowledgement), the temporary
// entry is removed instead so ids stay unique.
func (l *Log) Confirm(h *Handle, serverID string) {
	if h == nil || h.msg == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, present := l.ids[serverID]; present && serverID != h.msg.ID {
		l.removeLocked(h.msg)
		h.msg = nil
		return
	}
	delete(l.ids, h.msg.ID)
	h.msg.ID = serverID
	h.msg.Confirmed = true
	l.ids[serverID] = struct{}{}
}

// Rollback removes the handle's entry. Used when the send fails; the caller
// surfaces the failure inline and may re-queue via a fresh SendLocal.
func (l *Log) Rollback(h *Handle) {
	if h == nil || h.msg == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.removeLocked(h.msg)
	h.msg = nil
}

// removeLocked deletes the entry by pointer identity. Caller holds l.mu.
func (l *Log) removeLocked(target *Message) {
	for i, m := range l.messages {
		if m == target {
			l.messages = append(l.messages[:i], l.messages[i+1:]...)
			delete(l.ids, target.ID)
			return
		}
	}
}

// Snapshot returns a copy of the current list in visible order.
func (l *Log) Snapshot() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	for i, m := range l.messages {
		out[i] = *m
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
