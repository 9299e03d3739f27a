package room

// Session holds the conversation credentials and room descriptor obtained
// from the bootstrap endpoint. Exactly one live session exists per engine
// instance; it is discarded wholesale on re-resolve or teardown.
type Session struct {
	HomeserverURL string
	UserID        string
	DeviceID      string
	AccessToken   string
	RoomID        string
	RoomAlias     string
	RoomName      string
	RoomSlug      string
}
