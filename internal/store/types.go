package store

// Origin tells whether a message was created locally or arrived from the
// conversation backend.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Message represents one entry in the room timeline.
type Message struct {
	ID         string
	SenderID   string
	SenderName string
	Body       string
	Timestamp  int64 // unix milliseconds
	Origin     Origin
	Confirmed  bool
}
