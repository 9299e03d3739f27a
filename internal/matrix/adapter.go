package matrix

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/daarion/roomsync/internal/bus"
	"github.com/daarion/roomsync/internal/presence"
	"github.com/daarion/roomsync/internal/room"
	"github.com/daarion/roomsync/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// typingAdvertiseTimeout is how long an outbound typing=true stays valid on
// the server side. Longer than the local debounce so the retraction always
// lands before the server-side expiry.
const typingAdvertiseTimeout = 30 * time.Second

// Adapter implements the engine's Conversation interface on top of a mautrix
// client: join, history fetch, the continuous sync loop, sends, and the
// ephemeral presence/typing feeds.
type Adapter struct {
	client *mautrix.Client
	bus    *bus.Bus
	logger *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	started   bool
	onMessage func(store.Message)

	nextSub     int
	presenceFns map[int]func(presence.Event)
	typingFns   map[int]func(roomID string, userIDs []string)
}

// NewAdapter creates an adapter for the given session credentials.
func NewAdapter(sess *room.Session, b *bus.Bus, logger *zap.Logger) (*Adapter, error) {
	client, err := mautrix.NewClient(sess.HomeserverURL, id.UserID(sess.UserID), sess.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	client.DeviceID = id.DeviceID(sess.DeviceID)

	a := &Adapter{
		client:      client,
		bus:         b,
		logger:      logger,
		presenceFns: make(map[int]func(presence.Event)),
		typingFns:   make(map[int]func(string, []string)),
	}

	syncer, ok := client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return nil, fmt.Errorf("unexpected syncer type: %T", client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, a.handleMessage)
	syncer.OnEventType(event.EphemeralEventTyping, a.handleTyping)
	syncer.OnEventType(event.EphemeralEventPresence, a.handlePresence)

	return a, nil
}

// JoinRoom joins the room. Already-a-member is not a failure on the server
// side; the caller treats any join error as non-fatal.
func (a *Adapter) JoinRoom(ctx context.Context, roomID string) error {
	if _, err := a.client.JoinRoomByID(ctx, id.RoomID(roomID)); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	return nil
}

// History fetches up to limit message events. The chunk is returned in
// transport order (newest first); the caller reverses before seeding.
func (a *Adapter) History(ctx context.Context, roomID string, limit int) ([]store.Message, error) {
	resp, err := a.client.Messages(ctx, id.RoomID(roomID), "", "", mautrix.DirectionBackward, nil, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	msgs := make([]store.Message, 0, len(resp.Chunk))
	for _, evt := range resp.Chunk {
		if msg, ok := MapEvent(evt); ok {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

// InitialSync performs one sync request and saves the next-batch token so the
// continuous loop starts delivering from "now" instead of replaying the
// timeline the history fetch already covered.
func (a *Adapter) InitialSync(ctx context.Context) error {
	resp, err := a.client.SyncRequest(ctx, 0, "", "", false, event.PresenceOnline)
	if err != nil {
		return fmt.Errorf("initial sync: %w", err)
	}
	a.client.Store.SaveNextBatch(ctx, a.client.UserID, resp.NextBatch)
	return nil
}

// StartSync starts the continuous sync loop in the background, delivering
// mapped message events to onMessage. A second start without an intervening
// StopSync is rejected: a duplicate loop would deliver every event twice.
func (a *Adapter) StartSync(onMessage func(store.Message)) error {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return errors.New("sync already started")
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.started = true
	a.cancel = cancel
	a.onMessage = onMessage
	a.mu.Unlock()

	go func() {
		err := a.client.SyncWithContext(ctx)

		a.mu.Lock()
		a.started = false
		a.cancel = nil
		a.mu.Unlock()

		if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("sync loop exited", zap.Error(err))
			a.bus.Publish(bus.Event{
				Kind:      "sync.failed",
				Timestamp: time.Now(),
				Payload:   err.Error(),
			})
		}
	}()
	return nil
}

// StopSync stops the sync loop. Idempotent; stopping an already-stopped
// adapter is a no-op.
func (a *Adapter) StopSync() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.started = false
	a.onMessage = nil
}

// SendMessage sends a text message and returns the server-issued event id.
func (a *Adapter) SendMessage(ctx context.Context, roomID, body string) (string, error) {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    body,
	}
	resp, err := a.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content,
		mautrix.ReqSendEvent{TransactionID: "roomsync-" + uuid.NewString()})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.EventID.String(), nil
}

// SendTyping advertises or retracts the typing signal for the room.
func (a *Adapter) SendTyping(ctx context.Context, roomID string, isTyping bool) error {
	timeout := time.Duration(0)
	if isTyping {
		timeout = typingAdvertiseTimeout
	}
	if _, err := a.client.UserTyping(ctx, id.RoomID(roomID), isTyping, timeout); err != nil {
		return fmt.Errorf("send typing: %w", err)
	}
	return nil
}

// SubscribePresence registers a presence callback and returns its disposer.
func (a *Adapter) SubscribePresence(fn func(presence.Event)) func() {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.presenceFns[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.presenceFns, id)
		a.mu.Unlock()
	}
}

// SubscribeTyping registers a typing callback and returns its disposer.
func (a *Adapter) SubscribeTyping(fn func(roomID string, userIDs []string)) func() {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.typingFns[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.typingFns, id)
		a.mu.Unlock()
	}
}

func (a *Adapter) handleMessage(_ context.Context, evt *event.Event) {
	a.mu.Lock()
	deliver := a.onMessage
	a.mu.Unlock()
	if deliver == nil {
		return
	}
	if msg, ok := MapEvent(evt); ok {
		deliver(msg)
	}
}

func (a *Adapter) handleTyping(_ context.Context, evt *event.Event) {
	_ = evt.Content.ParseRaw(evt.Type)
	content, ok := evt.Content.Parsed.(*event.TypingEventContent)
	if !ok {
		return
	}
	userIDs := make([]string, len(content.UserIDs))
	for i, uid := range content.UserIDs {
		userIDs[i] = uid.String()
	}

	for _, fn := range a.typingCallbacks() {
		fn(evt.RoomID.String(), userIDs)
	}
}

func (a *Adapter) handlePresence(_ context.Context, evt *event.Event) {
	_ = evt.Content.ParseRaw(evt.Type)
	content, ok := evt.Content.Parsed.(*event.PresenceEventContent)
	if !ok {
		return
	}
	update := presence.Event{
		UserID: evt.Sender.String(),
		Status: mapPresence(content.Presence),
	}

	for _, fn := range a.presenceCallbacks() {
		fn(update)
	}
}

// typingCallbacks snapshots the registry so callbacks run without a.mu held.
func (a *Adapter) typingCallbacks() []func(string, []string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]func(string, []string), 0, len(a.typingFns))
	for _, fn := range a.typingFns {
		out = append(out, fn)
	}
	return out
}

func (a *Adapter) presenceCallbacks() []func(presence.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]func(presence.Event), 0, len(a.presenceFns))
	for _, fn := range a.presenceFns {
		out = append(out, fn)
	}
	return out
}

func mapPresence(p event.Presence) presence.Status {
	switch p {
	case event.PresenceOnline:
		return presence.Online
	case event.PresenceUnavailable:
		return presence.Unavailable
	default:
		return presence.Offline
	}
}
