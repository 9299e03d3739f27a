package status

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/daarion/roomsync/internal/bus"
)

// State represents the externally observable connection status of the engine.
type State string

const (
	Loading         State = "loading"
	Connecting      State = "connecting"
	Online          State = "online"
	Error           State = "error"
	Unauthenticated State = "unauthenticated"
)

// validTransitions defines allowed state transitions. Send failures never
// appear here: a failed send is reported inline and leaves the connection
// status untouched.
var validTransitions = map[State][]State{
	Loading:         {Unauthenticated, Connecting, Error},
	Connecting:      {Online, Error},
	Online:          {Connecting, Error},
	Error:           {Connecting, Unauthenticated},
	Unauthenticated: {Connecting, Error},
}

// Machine tracks and enforces connection status transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a state machine starting in the loading state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Loading,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns an error if the
// transition is invalid; the state is left unchanged in that case.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	allowed := validTransitions[m.current]
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.Event{
			Kind:      "session.status_changed",
			Timestamp: time.Now(),
			Payload: StatusChange{
				From: from,
				To:   to,
			},
		})
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
