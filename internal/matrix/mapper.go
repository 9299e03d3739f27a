package matrix

import (
	"github.com/daarion/roomsync/internal/store"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// MapEvent converts a raw timeline event into a store.Message. Only
// m.room.message events with a non-empty body map; everything else (state
// events, reactions, redacted bodies) reports false and is skipped.
func MapEvent(evt *event.Event) (store.Message, bool) {
	if evt == nil || evt.Type != event.EventMessage {
		return store.Message{}, false
	}
	_ = evt.Content.ParseRaw(evt.Type)
	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.Body == "" {
		return store.Message{}, false
	}
	return store.Message{
		ID:         evt.ID.String(),
		SenderID:   evt.Sender.String(),
		SenderName: displayName(evt.Sender),
		Body:       content.Body,
		Timestamp:  evt.Timestamp,
		Origin:     store.OriginRemote,
		Confirmed:  true,
	}, true
}

// displayName derives a render-ready name from the sender id. Profile
// lookups are a rendering concern; the localpart is enough for the engine.
func displayName(userID id.UserID) string {
	if local := userID.Localpart(); local != "" {
		return local
	}
	return userID.String()
}
