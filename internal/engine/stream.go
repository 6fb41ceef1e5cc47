package engine

// ReadyState mirrors the loading stages a media element moves through.
type ReadyState int

const (
	Unstarted ReadyState = iota
	HasMetadata
	CanPlay
	CanPlayThrough
)

func (s ReadyState) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case HasMetadata:
		return "has_metadata"
	case CanPlay:
		return "can_play"
	case CanPlayThrough:
		return "can_play_through"
	default:
		return "unknown"
	}
}

// MediaStream is one decodable media source: the handle the engine uses
// to observe and drive a player. Seeks and playback requests may be
// rejected by the underlying media stack; such failures are isolated to
// the one stream. Implementations must be safe for concurrent use.
type MediaStream interface {
	ID() string
	SourceURI() string

	ReadyState() ReadyState
	CurrentTime() float64
	// Duration reports the stream length in seconds; ok is false until
	// metadata has loaded.
	Duration() (float64, bool)
	Paused() bool

	Play() error
	Pause()
	SeekTo(seconds float64) error

	// BufferedAhead is the number of seconds buffered past the playhead.
	BufferedAhead() float64
	// InViewport reports whether the stream's rendered box lies fully
	// within the viewport.
	InViewport() bool
	// ReloadSource re-assigns the media source. Native buffers are not
	// explicitly truncatable, so this is the only buffer reset available.
	ReloadSource()

	// UserInitiated marks streams the user explicitly started, which the
	// governor may auto-resume after pausing them off-screen.
	UserInitiated() bool
	SetUserInitiated(v bool)

	// Destroy clears the source and releases the decoder.
	Destroy()
}
