package notify

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"segment-annotator/internal/engine"
)

// ErrNoPlayer is returned for playback commands when no UI client is
// connected to carry them out.
var ErrNoPlayer = errors.New("no player client connected")

// StreamReport is one player state snapshot from the UI, sent on every
// native player event and periodically while playing.
type StreamReport struct {
	StreamID    string  `json:"stream_id"`
	Kind        string  `json:"kind"` // play, pause, seeked, time_advance
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
	ReadyState  int     `json:"ready_state"`
	Paused      bool    `json:"paused"`
	BufferedEnd float64 `json:"buffered_end"`
	InViewport  bool    `json:"in_viewport"`
}

// streamCommand is one playback instruction to the UI.
type streamCommand struct {
	StreamID  string  `json:"stream_id"`
	Action    string  `json:"action"` // mount, play, pause, seek, reload, destroy
	SourceURI string  `json:"source_uri,omitempty"`
	Seconds   float64 `json:"seconds,omitempty"`
}

// RemoteStream is the engine-side handle of a player element hosted in
// the browser. Reported state is the source of truth; while the player
// reports itself playing, the playhead is extrapolated from the report
// timestamp so reads between reports stay monotonic.
type RemoteStream struct {
	id        string
	sourceURI string
	hub       *Hub

	mu            sync.Mutex
	reportedAt    time.Time
	currentTime   float64
	duration      float64
	readyState    engine.ReadyState
	paused        bool
	bufferedEnd   float64
	inViewport    bool
	userInitiated bool
}

func newRemoteStream(id, sourceURI string, hub *Hub) *RemoteStream {
	s := &RemoteStream{
		id:         id,
		sourceURI:  sourceURI,
		hub:        hub,
		paused:     true,
		inViewport: true,
	}
	hub.Broadcast("stream_command", streamCommand{
		StreamID:  id,
		Action:    "mount",
		SourceURI: sourceURI,
	})
	return s
}

// ID returns the stream's identity.
func (s *RemoteStream) ID() string { return s.id }

// SourceURI returns the mounted media source.
func (s *RemoteStream) SourceURI() string { return s.sourceURI }

// absorb applies a state report.
func (s *RemoteStream) absorb(r StreamReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportedAt = time.Now()
	s.currentTime = r.CurrentTime
	s.duration = r.Duration
	s.readyState = engine.ReadyState(r.ReadyState)
	s.paused = r.Paused
	s.bufferedEnd = r.BufferedEnd
	s.inViewport = r.InViewport
}

// ReadyState returns the last reported loading stage.
func (s *RemoteStream) ReadyState() engine.ReadyState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readyState
}

// CurrentTime returns the playhead, extrapolated past the last report
// while the player is running.
func (s *RemoteStream) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.currentTime
	if !s.paused && !s.reportedAt.IsZero() {
		t += time.Since(s.reportedAt).Seconds()
	}
	if s.duration > 0 && t > s.duration {
		t = s.duration
	}
	return t
}

// Duration returns the reported length; ok is false before metadata.
func (s *RemoteStream) Duration() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.duration <= 0 {
		return 0, false
	}
	return s.duration, true
}

// Paused returns the last reported paused flag.
func (s *RemoteStream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Play asks the player to start. The optimistic local flip keeps the
// synchronizer from reissuing the command before the next report lands.
func (s *RemoteStream) Play() error {
	if s.hub.ClientCount() == 0 {
		return ErrNoPlayer
	}
	s.hub.Broadcast("stream_command", streamCommand{StreamID: s.id, Action: "play"})
	s.mu.Lock()
	s.paused = false
	s.reportedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// Pause asks the player to stop.
func (s *RemoteStream) Pause() {
	s.hub.Broadcast("stream_command", streamCommand{StreamID: s.id, Action: "pause"})
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
}

// SeekTo asks the player to move the playhead.
func (s *RemoteStream) SeekTo(seconds float64) error {
	if s.hub.ClientCount() == 0 {
		return ErrNoPlayer
	}
	s.hub.Broadcast("stream_command", streamCommand{StreamID: s.id, Action: "seek", Seconds: seconds})
	s.mu.Lock()
	s.currentTime = seconds
	s.reportedAt = time.Now()
	s.mu.Unlock()
	return nil
}

// BufferedAhead returns the seconds buffered past the playhead.
func (s *RemoteStream) BufferedAhead() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ahead := s.bufferedEnd - s.currentTime
	if ahead < 0 {
		return 0
	}
	return ahead
}

// InViewport returns the last reported visibility.
func (s *RemoteStream) InViewport() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inViewport
}

// ReloadSource asks the player to re-assign its media source, the only
// way to shed an overgrown buffer.
func (s *RemoteStream) ReloadSource() {
	s.hub.Broadcast("stream_command", streamCommand{
		StreamID:  s.id,
		Action:    "reload",
		SourceURI: s.sourceURI,
	})
	s.mu.Lock()
	s.readyState = engine.Unstarted
	s.bufferedEnd = 0
	s.mu.Unlock()
}

// UserInitiated reports whether the user explicitly started this stream.
func (s *RemoteStream) UserInitiated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userInitiated
}

// SetUserInitiated marks the stream as explicitly started.
func (s *RemoteStream) SetUserInitiated(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userInitiated = v
}

// Destroy asks the player to unload and release the element.
func (s *RemoteStream) Destroy() {
	s.hub.Broadcast("stream_command", streamCommand{StreamID: s.id, Action: "destroy"})
}

// Registry mints remote streams and routes inbound player reports to
// them, forwarding playback events to the registered sink. It implements
// engine.StreamFactory.
type Registry struct {
	hub *Hub
	log *slog.Logger

	mu      sync.RWMutex
	streams map[string]*RemoteStream
	sink    func(engine.StreamEvent)
}

// NewRegistry builds a registry and hooks it into the hub's report path.
func NewRegistry(hub *Hub, log *slog.Logger) *Registry {
	r := &Registry{
		hub:     hub,
		log:     log,
		streams: make(map[string]*RemoteStream),
	}
	hub.OnReport(r.handleReport)
	return r
}

// SetEventSink registers the consumer of playback events, normally the
// session.
func (r *Registry) SetEventSink(fn func(engine.StreamEvent)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sink = fn
}

// NewStream mounts a player element in the UI and returns its handle.
func (r *Registry) NewStream(id, sourceURI string) engine.MediaStream {
	s := newRemoteStream(id, sourceURI, r.hub)
	r.mu.Lock()
	r.streams[id] = s
	r.mu.Unlock()
	return s
}

// handleReport absorbs a player report and forwards its event.
func (r *Registry) handleReport(report StreamReport) {
	r.mu.RLock()
	s, ok := r.streams[report.StreamID]
	sink := r.sink
	r.mu.RUnlock()
	if !ok {
		r.log.Debug("report for unknown stream", slog.String("stream_id", report.StreamID))
		return
	}
	s.absorb(report)

	kind, ok := eventKind(report.Kind)
	if !ok {
		r.log.Debug("report with unknown kind",
			slog.String("stream_id", report.StreamID),
			slog.String("kind", report.Kind))
		return
	}
	if sink != nil {
		sink(engine.StreamEvent{StreamID: report.StreamID, Kind: kind, At: time.Now()})
	}
}

func eventKind(kind string) (engine.EventKind, bool) {
	switch kind {
	case "play":
		return engine.EventPlay, true
	case "pause":
		return engine.EventPause, true
	case "seeked":
		return engine.EventSeeked, true
	case "time_advance":
		return engine.EventTimeAdvance, true
	default:
		return 0, false
	}
}
