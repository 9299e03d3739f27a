package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/daarion/roomsync/internal/bootstrap"
	"github.com/daarion/roomsync/internal/bus"
	"github.com/daarion/roomsync/internal/presence"
	"github.com/daarion/roomsync/internal/room"
	"github.com/daarion/roomsync/internal/status"
	"github.com/daarion/roomsync/internal/store"
	"github.com/daarion/roomsync/internal/typing"
	"go.uber.org/zap"
)

// reconnectAttemptTimeout bounds one backoff-driven re-initialization.
const reconnectAttemptTimeout = time.Minute

// ErrTornDown is returned from operations on an engine after Teardown.
var ErrTornDown = errors.New("engine is torn down")

// ErrNoSession is returned when an operation needs a live session.
var ErrNoSession = errors.New("no live session")

// Options configures an Engine.
type Options struct {
	Slug     string
	Token    string
	Resolver SessionResolver
	Dial     Dialer
	Bus      *bus.Bus
	Logger   *zap.Logger

	HistoryLimit int           // initial history window; default 50
	TypingIdle   time.Duration // outbound typing debounce; default 3s

	AutoReconnect bool
	ReconnectBase time.Duration // default 1s
	ReconnectCap  time.Duration // default 30s
}

// Engine drives the conversation synchronization for exactly one room:
// bootstrap, join, history seed, the continuous sync loop, optimistic send
// reconciliation, and ephemeral presence/typing state. At most one live
// session exists per engine; Initialize discards the previous one.
type Engine struct {
	slug          string
	token         string
	resolver      SessionResolver
	dial          Dialer
	bus           *bus.Bus
	machine       *status.Machine
	logger        *zap.Logger
	historyLimit  int
	typingIdle    time.Duration
	autoReconnect bool
	backoff       backoff

	mu             sync.Mutex
	sess           *room.Session
	conv           Conversation
	log            *store.Log
	tracker        *presence.Tracker
	typing         *typing.Coordinator
	unsubPresence  func()
	unsubTyping    func()
	alive          bool // session live; event handlers check before mutating
	torndown       bool
	lastErr        string
	attempts       int
	reconnectTimer *time.Timer
	done           chan struct{}
}

// New creates an engine. Call Initialize to connect.
func New(opts Options) *Engine {
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	e := &Engine{
		slug:          opts.Slug,
		token:         opts.Token,
		resolver:      opts.Resolver,
		dial:          opts.Dial,
		bus:           opts.Bus,
		machine:       status.NewMachine(opts.Bus),
		logger:        opts.Logger,
		historyLimit:  opts.HistoryLimit,
		typingIdle:    opts.TypingIdle,
		autoReconnect: opts.AutoReconnect,
		backoff:       newBackoff(opts.ReconnectBase, opts.ReconnectCap),
		log:           store.NewLog(),
		done:          make(chan struct{}),
	}

	ch, unsub := opts.Bus.Subscribe("sync.failed", 8)
	go e.watchSyncFailures(ch, unsub)

	return e
}

// Initialize runs the full connection flow: bootstrap, join, history seed,
// initial sync, then the continuous sync loop. It is idempotent and safe to
// re-invoke; a previous live session is discarded first.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	if e.torndown {
		e.mu.Unlock()
		return ErrTornDown
	}
	e.discardSessionLocked()
	e.mu.Unlock()

	sess, err := e.resolver.Resolve(ctx, e.slug, e.token)
	if err != nil {
		if errors.Is(err, bootstrap.ErrNoToken) {
			e.fail(status.Unauthenticated, "authentication required")
			return err
		}
		detail := "chat bootstrap failed"
		var berr *bootstrap.Error
		if errors.As(err, &berr) {
			detail = berr.Detail
		}
		e.fail(status.Error, detail)
		return err
	}

	_ = e.machine.Transition(status.Connecting)
	e.logger.Info("session resolved",
		zap.String("homeserver", sess.HomeserverURL),
		zap.String("user_id", sess.UserID),
		zap.String("room_id", sess.RoomID),
	)

	conv, err := e.dial(sess)
	if err != nil {
		e.fail(status.Error, "connecting to conversation service failed")
		return fmt.Errorf("dial conversation service: %w", err)
	}

	if err := conv.JoinRoom(ctx, sess.RoomID); err != nil {
		// Covers "already joined"; never fatal.
		e.logger.Warn("join room", zap.Error(err))
	}

	history, err := conv.History(ctx, sess.RoomID, e.historyLimit)
	if err != nil {
		e.fail(status.Error, "loading room history failed")
		return err
	}
	// The transport delivers newest-first; the store requires ascending
	// order, so reverse before seeding.
	chronological := make([]store.Message, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		chronological = append(chronological, history[i])
	}

	sendTyping := func(isTyping bool) {
		if err := conv.SendTyping(context.Background(), sess.RoomID, isTyping); err != nil {
			e.logger.Warn("send typing", zap.Error(err), zap.Bool("typing", isTyping))
		}
	}

	e.mu.Lock()
	if e.torndown {
		e.mu.Unlock()
		conv.StopSync()
		return ErrTornDown
	}
	e.sess = sess
	e.conv = conv
	e.log.Seed(chronological)
	e.tracker = presence.NewTracker(sess.UserID)
	e.typing = typing.NewCoordinator(sess.RoomID, sess.UserID, e.typingIdle, sendTyping)
	e.unsubPresence = conv.SubscribePresence(e.onPresence)
	e.unsubTyping = conv.SubscribeTyping(e.onTyping)
	e.alive = true
	e.mu.Unlock()

	if err := conv.InitialSync(ctx); err != nil {
		e.failSession("starting sync failed")
		return err
	}
	if err := conv.StartSync(e.onRemoteMessage); err != nil {
		e.failSession("starting sync failed")
		return err
	}

	e.mu.Lock()
	e.attempts = 0
	e.lastErr = ""
	e.mu.Unlock()
	_ = e.machine.Transition(status.Online)
	e.logger.Info("room online", zap.String("room_id", sess.RoomID), zap.Int("seeded", len(chronological)))
	return nil
}

// Retry re-runs the full connection flow after a failure. Always available,
// even while automatic backoff is pending; it resets the attempt counter.
func (e *Engine) Retry(ctx context.Context) error {
	e.mu.Lock()
	e.attempts = 0
	if e.reconnectTimer != nil {
		e.reconnectTimer.Stop()
		e.reconnectTimer = nil
	}
	e.mu.Unlock()
	return e.Initialize(ctx)
}

// SendMessage appends an optimistic local echo, retracts the typing signal,
// then performs the network send. On acknowledgement the echo is confirmed
// in place under the server id; on failure it is rolled back and the error
// is reported inline — the connection status never changes for a failed send.
func (e *Engine) SendMessage(ctx context.Context, body string) error {
	e.mu.Lock()
	if !e.alive || e.conv == nil || e.sess == nil {
		e.mu.Unlock()
		return ErrNoSession
	}
	conv, sess, msgLog, coordinator := e.conv, e.sess, e.log, e.typing
	e.mu.Unlock()

	h := msgLog.SendLocal(body, sess.UserID, localpart(sess.UserID), time.Now().UnixMilli())
	e.publish("room.message", nil)
	coordinator.MessageSent()

	eventID, err := conv.SendMessage(ctx, sess.RoomID, body)
	if err != nil {
		msgLog.Rollback(h)
		e.publish("room.send_failed", err.Error())
		return fmt.Errorf("send message: %w", err)
	}

	msgLog.Confirm(h, eventID)
	e.publish("room.send_ack", eventID)
	return nil
}

// NotifyTyping signals local typing activity (debounced outbound typing).
func (e *Engine) NotifyTyping() {
	e.mu.Lock()
	coordinator := e.typing
	alive := e.alive
	e.mu.Unlock()
	if alive && coordinator != nil {
		coordinator.Activity()
	}
}

// Teardown releases all session resources: the typing timer, the
// presence/typing subscriptions, then the sync loop, in that order.
// Idempotent; the engine cannot be reused afterwards.
func (e *Engine) Teardown() {
	e.mu.Lock()
	if e.torndown {
		e.mu.Unlock()
		return
	}
	e.torndown = true
	e.discardSessionLocked()
	close(e.done)
	e.mu.Unlock()
	e.logger.Info("engine torn down", zap.String("room", e.slug))
}

// Messages returns the current timeline snapshot in visible order.
func (e *Engine) Messages() []store.Message {
	return e.log.Snapshot()
}

// Status returns the current connection status.
func (e *Engine) Status() status.State {
	return e.machine.Current()
}

// LastError returns the most recent user-facing failure message.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// OnlineCount returns the number of other participants currently online
// or unavailable.
func (e *Engine) OnlineCount() int {
	e.mu.Lock()
	tracker := e.tracker
	e.mu.Unlock()
	if tracker == nil {
		return 0
	}
	return tracker.OnlineCount()
}

// TypingUserIDs returns the participants currently signaling typing.
func (e *Engine) TypingUserIDs() []string {
	e.mu.Lock()
	coordinator := e.typing
	e.mu.Unlock()
	if coordinator == nil {
		return nil
	}
	return coordinator.UserIDs()
}

// discardSessionLocked releases the live session's resources in teardown
// order: typing timer, subscriptions, sync loop. Caller holds e.mu.
func (e *Engine) discardSessionLocked() {
	e.alive = false
	if e.reconnectTimer != nil {
		e.reconnectTimer.Stop()
		e.reconnectTimer = nil
	}
	if e.typing != nil {
		e.typing.Stop()
	}
	if e.unsubPresence != nil {
		e.unsubPresence()
		e.unsubPresence = nil
	}
	if e.unsubTyping != nil {
		e.unsubTyping()
		e.unsubTyping = nil
	}
	if e.conv != nil {
		e.conv.StopSync()
		e.conv = nil
	}
	e.sess = nil
}

// onRemoteMessage is the sync loop delivery callback.
func (e *Engine) onRemoteMessage(msg store.Message) {
	e.mu.Lock()
	if !e.alive {
		e.mu.Unlock()
		return
	}
	msgLog := e.log
	e.mu.Unlock()

	if msgLog.AppendRemote(msg) {
		e.publish("room.message", msg)
	}
}

func (e *Engine) onPresence(evt presence.Event) {
	e.mu.Lock()
	if !e.alive || e.tracker == nil {
		e.mu.Unlock()
		return
	}
	tracker := e.tracker
	e.mu.Unlock()

	tracker.Apply(evt)
	e.publish("room.presence", tracker.OnlineCount())
}

func (e *Engine) onTyping(roomID string, userIDs []string) {
	e.mu.Lock()
	if !e.alive || e.typing == nil {
		e.mu.Unlock()
		return
	}
	coordinator := e.typing
	e.mu.Unlock()

	if coordinator.ApplyRemote(roomID, userIDs) {
		e.publish("room.typing", coordinator.UserIDs())
	}
}

// watchSyncFailures reacts to an abnormal sync loop exit: the session is
// treated as lost, the status moves to error, and — when enabled — a
// backoff-delayed re-initialization is scheduled.
func (e *Engine) watchSyncFailures(ch <-chan bus.Event, unsub func()) {
	defer unsub()
	for {
		select {
		case <-e.done:
			return
		case <-ch:
			e.mu.Lock()
			if !e.alive {
				e.mu.Unlock()
				continue
			}
			e.discardSessionLocked()
			e.lastErr = "connection to conversation service lost"
			e.mu.Unlock()

			_ = e.machine.Transition(status.Error)
			e.logger.Warn("sync loop lost, session discarded")
			if e.autoReconnect {
				e.scheduleReconnect()
			}
		}
	}
}

func (e *Engine) scheduleReconnect() {
	e.mu.Lock()
	if e.torndown {
		e.mu.Unlock()
		return
	}
	attempt := e.attempts
	e.attempts++
	delay := e.backoff.Delay(attempt)
	e.reconnectTimer = time.AfterFunc(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), reconnectAttemptTimeout)
		defer cancel()
		if err := e.Initialize(ctx); err != nil && !errors.Is(err, ErrTornDown) {
			e.scheduleReconnect()
		}
	})
	e.mu.Unlock()
	e.logger.Info("reconnect scheduled", zap.Int("attempt", attempt+1), zap.Duration("delay", delay))
}

// fail records a user-facing failure message and moves to the given status.
func (e *Engine) fail(to status.State, msg string) {
	e.mu.Lock()
	e.lastErr = msg
	e.mu.Unlock()
	_ = e.machine.Transition(to)
}

// failSession is fail plus discarding the partially built session.
func (e *Engine) failSession(msg string) {
	e.mu.Lock()
	e.discardSessionLocked()
	e.lastErr = msg
	e.mu.Unlock()
	_ = e.machine.Transition(status.Error)
}

func (e *Engine) publish(kind string, payload any) {
	e.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// localpart extracts the display fallback from a user id like "@alice:hs".
func localpart(userID string) string {
	s := strings.TrimPrefix(userID, "@")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i]
	}
	return s
}
