package engine

import (
	"context"

	"github.com/daarion/roomsync/internal/presence"
	"github.com/daarion/roomsync/internal/room"
	"github.com/daarion/roomsync/internal/store"
)

// Conversation is the engine's view of the remote conversation backend.
// internal/matrix provides the production implementation; tests substitute
// an in-memory fake.
type Conversation interface {
	// JoinRoom joins the room. Already-a-member is not a failure; callers
	// treat any join error as non-fatal.
	JoinRoom(ctx context.Context, roomID string) error

	// History returns up to limit message events in transport order, which
	// is newest first. The engine reverses before seeding.
	History(ctx context.Context, roomID string, limit int) ([]store.Message, error)

	// InitialSync advances the backend's sync position to "now" so the
	// continuous loop does not replay what History already delivered.
	InitialSync(ctx context.Context) error

	// StartSync starts the continuous delivery loop. Starting twice
	// without StopSync is rejected.
	StartSync(onMessage func(store.Message)) error
	StopSync()

	// SendMessage sends a text body and returns the server event id.
	SendMessage(ctx context.Context, roomID, body string) (eventID string, err error)
	SendTyping(ctx context.Context, roomID string, isTyping bool) error

	// SubscribePresence and SubscribeTyping register ephemeral-event
	// callbacks and return their disposers, so teardown is structural
	// rather than reliant on nulling out a shared field.
	SubscribePresence(fn func(presence.Event)) (unsubscribe func())
	SubscribeTyping(fn func(roomID string, userIDs []string)) (unsubscribe func())
}

// Dialer builds a Conversation for a freshly resolved session.
type Dialer func(sess *room.Session) (Conversation, error)

// SessionResolver exchanges the application token for conversation
// credentials. internal/bootstrap provides the production implementation.
type SessionResolver interface {
	Resolve(ctx context.Context, slug, token string) (*room.Session, error)
}
