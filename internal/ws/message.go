package ws

type EventType string

const (
	// EventStateChanged carries the full view state after a gesture or setting change.
	EventStateChanged EventType = "state_changed"
	// EventChunkLoaded carries the full view state after a chunk was (re)loaded.
	EventChunkLoaded EventType = "chunk_loaded"
	// EventError carries {error} of a failed server round trip.
	EventError EventType = "error"
	// EventSync is sent by the browser to ask for the current state.
	EventSync EventType = "sync"
)

// IncomingMessage is what the browser sends to the server.
type IncomingMessage struct {
	Type EventType `json:"type"`
}

// OutgoingMessage is what the server sends to the browser.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// carriesState reports whether the payload is a full view state, which makes older
// unsent states of the same tab obsolete.
func (t EventType) carriesState() bool {
	return t == EventStateChanged || t == EventChunkLoaded
}
