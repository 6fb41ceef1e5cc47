package engine

import "time"

// EventKind is the closed set of native player signals the synchronizer
// consumes.
type EventKind int

const (
	EventPlay EventKind = iota
	EventPause
	EventSeeked
	EventTimeAdvance
)

func (k EventKind) String() string {
	switch k {
	case EventPlay:
		return "play"
	case EventPause:
		return "pause"
	case EventSeeked:
		return "seeked"
	case EventTimeAdvance:
		return "time_advance"
	default:
		return "unknown"
	}
}

// StreamEvent is a tagged native player signal from one stream.
type StreamEvent struct {
	StreamID string
	Kind     EventKind
	At       time.Time
}
